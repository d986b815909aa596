package operations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Report records one execution of an operation or sequence.
type Report[IN, OUT any] struct {
	ID        string       `json:"id"`
	Def       Definition   `json:"definition"`
	Output    OUT          `json:"output"`
	Input     IN           `json:"input"`
	Timestamp *time.Time   `json:"timestamp"`
	Err       *ReportError `json:"error"`
	// ChildOperationReports lists the reports of the operations a sequence executed.
	ChildOperationReports []string `json:"childOperationReports"`
}

// ToGenericReport erases the input and output types.
func (r Report[IN, OUT]) ToGenericReport() Report[any, any] {
	return genericReport(r)
}

// SequenceReport is the report of a sequence plus the reports of everything it executed.
type SequenceReport[IN, OUT any] struct {
	Report[IN, OUT]

	ExecutionReports []Report[any, any]
}

// NewReport creates a report with a fresh ID and the current time. childReportIDs only apply to
// sequences.
func NewReport[IN, OUT any](
	def Definition, input IN, output OUT, err error, childReportIDs ...string,
) Report[IN, OUT] {
	now := time.Now().UTC()
	r := Report[IN, OUT]{
		ID:                    uuid.New().String(),
		Def:                   def,
		Output:                output,
		Input:                 input,
		Timestamp:             &now,
		ChildOperationReports: childReportIDs,
	}
	if err != nil {
		r.Err = &ReportError{Message: err.Error()}
	}

	return r
}

// ReportError is the JSON form of an execution error.
type ReportError struct {
	Message string `json:"message"`
}

// Error implements error.
func (e ReportError) Error() string {
	return e.Message
}

// ErrReportNotFound is returned when a report ID is unknown to the reporter.
var ErrReportNotFound = errors.New("report not found")

// Reporter stores execution reports.
type Reporter interface {
	GetReport(id string) (Report[any, any], error)
	GetReports() ([]Report[any, any], error)
	AddReport(report Report[any, any]) error
	GetExecutionReports(reportID string) ([]Report[any, any], error)
}

// MemoryReporter keeps reports in memory. It is safe for concurrent use.
type MemoryReporter struct {
	mu      sync.RWMutex
	reports []Report[any, any]
}

// MemoryReporterOption configures a MemoryReporter.
type MemoryReporterOption func(*MemoryReporter)

// WithReports seeds the reporter, e.g. with reports read by ReadReports.
func WithReports(reports []Report[any, any]) MemoryReporterOption {
	return func(r *MemoryReporter) {
		r.reports = append(r.reports, reports...)
	}
}

// NewMemoryReporter creates a MemoryReporter.
func NewMemoryReporter(opts ...MemoryReporterOption) *MemoryReporter {
	r := &MemoryReporter{}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// AddReport implements Reporter.
func (r *MemoryReporter) AddReport(report Report[any, any]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports = append(r.reports, report)

	return nil
}

// GetReports returns a copy of all reports in insertion order.
func (r *MemoryReporter) GetReports() ([]Report[any, any], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Report[any, any], len(r.reports))
	copy(out, r.reports)

	return out, nil
}

// GetReport implements Reporter.
func (r *MemoryReporter) GetReport(id string) (Report[any, any], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.find(id)
}

func (r *MemoryReporter) find(id string) (Report[any, any], error) {
	for _, report := range r.reports {
		if report.ID == id {
			return report, nil
		}
	}

	return Report[any, any]{}, fmt.Errorf("report_id %s: %w", id, ErrReportNotFound)
}

// GetExecutionReports returns the report with the given ID preceded by all of its descendants,
// children before parents.
func (r *MemoryReporter) GetExecutionReports(reportID string) ([]Report[any, any], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Report[any, any]

	var walk func(id string) error
	walk = func(id string) error {
		report, err := r.find(id)
		if err != nil {
			return err
		}

		for _, child := range report.ChildOperationReports {
			if err := walk(child); err != nil {
				return err
			}
		}
		out = append(out, report)

		return nil
	}

	if err := walk(reportID); err != nil {
		return nil, err
	}

	return out, nil
}

// RecentReporter wraps a Reporter and remembers the reports added through it.
type RecentReporter struct {
	Reporter

	mu     sync.RWMutex
	recent []Report[any, any]
}

// NewRecentMemoryReporter wraps reporter.
func NewRecentMemoryReporter(reporter Reporter) *RecentReporter {
	return &RecentReporter{
		Reporter: reporter,
		recent:   []Report[any, any]{},
	}
}

// AddReport adds to the wrapped reporter, then remembers the report.
func (r *RecentReporter) AddReport(report Report[any, any]) error {
	if err := r.Reporter.AddReport(report); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.recent = append(r.recent, report)

	return nil
}

// GetRecentReports returns the reports added through this wrapper.
func (r *RecentReporter) GetRecentReports() []Report[any, any] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Report[any, any], len(r.recent))
	copy(out, r.recent)

	return out
}

// WriteReports writes every report held by reporter to path as indented JSON.
func WriteReports(reporter Reporter, path string) error {
	reports, err := reporter.GetReports()
	if err != nil {
		return fmt.Errorf("failed to get reports: %w", err)
	}

	b, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reports: %w", err)
	}

	if err = os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("failed to write reports to %s: %w", path, err)
	}

	return nil
}

// ReadReports reads reports written by WriteReports. Numbers in inputs and outputs are kept as
// json.Number so large integers such as chain selectors keep their precision.
func ReadReports(path string) ([]Report[any, any], error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports from %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var reports []Report[any, any]
	if err = dec.Decode(&reports); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reports: %w", err)
	}

	return reports, nil
}

func genericReport[IN, OUT any](r Report[IN, OUT]) Report[any, any] {
	return Report[any, any]{
		ID:                    r.ID,
		Def:                   r.Def,
		Output:                r.Output,
		Input:                 r.Input,
		Timestamp:             r.Timestamp,
		Err:                   r.Err,
		ChildOperationReports: r.ChildOperationReports,
	}
}

// typeReport restores the concrete input and output types of a generic report. Reports read from
// disk hold maps and json.Numbers, so the values are converted through JSON.
func typeReport[IN, OUT any](r Report[any, any]) (Report[IN, OUT], bool) {
	var input IN
	if !convertJSON(r.Input, &input) {
		return Report[IN, OUT]{}, false
	}

	var output OUT
	if !convertJSON(r.Output, &output) {
		return Report[IN, OUT]{}, false
	}

	return Report[IN, OUT]{
		ID:                    r.ID,
		Def:                   r.Def,
		Output:                output,
		Input:                 input,
		Timestamp:             r.Timestamp,
		Err:                   r.Err,
		ChildOperationReports: r.ChildOperationReports,
	}, true
}

func convertJSON(from any, to any) bool {
	b, err := json.Marshal(from)
	if err != nil {
		return false
	}

	return json.Unmarshal(b, to) == nil
}
