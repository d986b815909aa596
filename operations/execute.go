package operations

import (
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrNotSerializable is returned when an input or output cannot be stored in a report without
// losing data.
var ErrNotSerializable = errors.New("data cannot be safely written to disk without data lost, " +
	"avoid type that can't be serialized")

const (
	defaultRetryAttempts = 10
	defaultRetryDelay    = 100 * time.Millisecond
)

// ExecuteConfig is the configuration for ExecuteOperation.
type ExecuteConfig[IN, DEP any] struct {
	retryConfig RetryConfig[IN, DEP]
}

// ExecuteOption configures ExecuteOperation.
type ExecuteOption[IN, DEP any] func(*ExecuteConfig[IN, DEP])

// RetryConfig controls retries of a failed operation.
type RetryConfig[IN, DEP any] struct {
	Enabled bool
	Policy  RetryPolicy
	// InputHook returns the input for the next attempt, e.g. with a raised gas limit.
	InputHook func(attempt uint, err error, input IN, deps DEP) IN
}

// RetryPolicy bounds the retries. Delays grow exponentially from Delay.
type RetryPolicy struct {
	MaxAttempts uint
	Delay       time.Duration
}

func (p RetryPolicy) options() []retry.Option {
	opts := []retry.Option{
		retry.Attempts(p.MaxAttempts),
		retry.LastErrorOnly(true),
	}
	if p.Delay > 0 {
		opts = append(opts, retry.Delay(p.Delay))
	}

	return opts
}

func newDisabledRetryConfig[IN, DEP any]() RetryConfig[IN, DEP] {
	return RetryConfig[IN, DEP]{
		Policy: RetryPolicy{
			MaxAttempts: defaultRetryAttempts,
			Delay:       defaultRetryDelay,
		},
	}
}

// WithRetry enables retries with the default policy.
func WithRetry[IN, DEP any]() ExecuteOption[IN, DEP] {
	return func(c *ExecuteConfig[IN, DEP]) {
		c.retryConfig.Enabled = true
	}
}

// WithRetryInput enables retries with the default policy and rewrites the input before each
// retry.
func WithRetryInput[IN, DEP any](hook func(uint, error, IN, DEP) IN) ExecuteOption[IN, DEP] {
	return func(c *ExecuteConfig[IN, DEP]) {
		c.retryConfig.Enabled = true
		c.retryConfig.InputHook = hook
	}
}

// WithRetryConfig replaces the retry configuration.
func WithRetryConfig[IN, DEP any](config RetryConfig[IN, DEP]) ExecuteOption[IN, DEP] {
	return func(c *ExecuteConfig[IN, DEP]) {
		c.retryConfig = config
	}
}

// ExecuteOperation runs operation and records a report of the execution.
//
// If the reporter already holds a successful report for the same definition and input, that report
// is returned and the operation is not run again. Skipped executions are not reported twice.
//
// Input and output must be JSON serializable (see IsSerializable), otherwise ErrNotSerializable
// is returned.
func ExecuteOperation[IN, OUT, DEP any](
	b Bundle,
	operation *Operation[IN, OUT, DEP],
	deps DEP,
	input IN,
	opts ...ExecuteOption[IN, DEP],
) (Report[IN, OUT], error) {
	if !IsSerializable(b.Logger, input) {
		return Report[IN, OUT]{}, fmt.Errorf("operation %s input: %w", operation.def.ID, ErrNotSerializable)
	}

	if prev, found := loadPreviousSuccessfulReport[IN, OUT](b, operation.def, input); found {
		b.Logger.Infow("Operation already executed. Returning previous result",
			"id", operation.def.ID, "version", operation.def.Version, "report_id", prev.ID)

		return prev, nil
	}

	cfg := &ExecuteConfig[IN, DEP]{retryConfig: newDisabledRetryConfig[IN, DEP]()}
	for _, opt := range opts {
		opt(cfg)
	}

	var (
		output OUT
		err    error
	)
	if cfg.retryConfig.Enabled {
		output, err = executeWithRetry(b, operation, deps, input, cfg.retryConfig)
	} else {
		output, err = operation.execute(b, deps, input)
	}

	if err == nil && !IsSerializable(b.Logger, output) {
		return Report[IN, OUT]{}, fmt.Errorf("operation %s output: %w", operation.def.ID, ErrNotSerializable)
	}

	report := NewReport(operation.def, input, output, err)
	if rerr := b.reporter.AddReport(genericReport(report)); rerr != nil {
		return Report[IN, OUT]{}, rerr
	}

	if report.Err != nil {
		return report, report.Err
	}

	return report, nil
}

func executeWithRetry[IN, OUT, DEP any](
	b Bundle, operation *Operation[IN, OUT, DEP], deps DEP, input IN, cfg RetryConfig[IN, DEP],
) (OUT, error) {
	current := input

	retryOpts := append(cfg.Policy.options(),
		retry.Context(b.GetContext()),
		retry.OnRetry(func(attempt uint, err error) {
			b.Logger.Warnw("Operation failed. Retrying...",
				"operation", operation.def.ID, "attempt", attempt, "error", err)

			if cfg.InputHook != nil {
				current = cfg.InputHook(attempt, err, current, deps)
			}
		}),
	)

	return retry.DoWithData(func() (OUT, error) {
		return operation.execute(b, deps, current)
	}, retryOpts...)
}

// ExecuteSequence runs sequence and reports it together with the operations it executed.
//
// A previous successful report for the same definition and input short-circuits execution, in
// which case the stored execution reports are returned.
func ExecuteSequence[IN, OUT, DEP any](
	b Bundle, sequence *Sequence[IN, OUT, DEP], deps DEP, input IN,
) (SequenceReport[IN, OUT], error) {
	if !IsSerializable(b.Logger, input) {
		return SequenceReport[IN, OUT]{}, fmt.Errorf("sequence %s input: %w", sequence.def.ID, ErrNotSerializable)
	}

	if prev, found := loadPreviousSuccessfulReport[IN, OUT](b, sequence.def, input); found {
		executionReports, err := b.reporter.GetExecutionReports(prev.ID)
		if err != nil {
			return SequenceReport[IN, OUT]{}, err
		}
		b.Logger.Infow("Sequence already executed. Returning previous result",
			"id", sequence.def.ID, "version", sequence.def.Version, "report_id", prev.ID)

		return SequenceReport[IN, OUT]{Report: prev, ExecutionReports: executionReports}, nil
	}

	b.Logger.Infow("Executing sequence",
		"id", sequence.def.ID, "version", sequence.def.Version, "description", sequence.def.Description)

	recent := NewRecentMemoryReporter(b.reporter)
	output, err := sequence.handler(b.withReporter(recent), deps, input)
	if errors.Is(err, ErrNotSerializable) {
		return SequenceReport[IN, OUT]{}, err
	}

	if err == nil && !IsSerializable(b.Logger, output) {
		return SequenceReport[IN, OUT]{}, fmt.Errorf("sequence %s output: %w", sequence.def.ID, ErrNotSerializable)
	}

	children := recent.GetRecentReports()
	childIDs := make([]string, 0, len(children))
	for _, c := range children {
		childIDs = append(childIDs, c.ID)
	}

	report := NewReport(sequence.def, input, output, err, childIDs...)
	if rerr := b.reporter.AddReport(genericReport(report)); rerr != nil {
		return SequenceReport[IN, OUT]{}, rerr
	}

	executionReports, rerr := b.reporter.GetExecutionReports(report.ID)
	if rerr != nil {
		return SequenceReport[IN, OUT]{}, rerr
	}

	seqReport := SequenceReport[IN, OUT]{Report: report, ExecutionReports: executionReports}
	if report.Err != nil {
		return seqReport, report.Err
	}

	return seqReport, nil
}

// NewUnrecoverableError marks err so that a retrying operation stops immediately.
func NewUnrecoverableError(err error) error {
	return retry.Unrecoverable(err)
}

func loadPreviousSuccessfulReport[IN, OUT any](b Bundle, def Definition, input IN) (Report[IN, OUT], bool) {
	reports, err := b.reporter.GetReports()
	if err != nil {
		b.Logger.Errorw("Failed to get reports", "error", err)
		return Report[IN, OUT]{}, false
	}

	want, err := executionHash(def, input)
	if err != nil {
		b.Logger.Errorw("Failed to hash execution", "id", def.ID, "error", err)
		return Report[IN, OUT]{}, false
	}

	for _, r := range reports {
		if r.Err != nil {
			continue
		}

		got, herr := reportHash(b.reportHashCache, r)
		if herr != nil {
			b.Logger.Errorw("Failed to hash previous report", "report_id", r.ID, "error", herr)
			continue
		}
		if got != want {
			continue
		}

		typed, ok := typeReport[IN, OUT](r)
		if !ok {
			b.Logger.Debugw("Previous execution found but its report does not match the types",
				"id", def.ID, "report_id", r.ID)

			continue
		}

		return typed, true
	}

	return Report[IN, OUT]{}, false
}
