package operations

import (
	"context"
	"errors"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

// Bundle carries what every operation handler needs: a logger, the context and the reporter.
// Use NewBundle to create one.
type Bundle struct {
	Logger     logger.Logger
	GetContext func() context.Context

	reporter Reporter
	// reportHashCache holds the hash of previous reports keyed by report ID.
	reportHashCache   *sync.Map
	OperationRegistry *OperationRegistry
}

// BundleOption configures a Bundle.
type BundleOption func(*Bundle)

// WithOperationRegistry sets the registry available to handlers.
func WithOperationRegistry(registry *OperationRegistry) BundleOption {
	return func(b *Bundle) {
		b.OperationRegistry = registry
	}
}

// NewBundle creates a Bundle.
func NewBundle(getContext func() context.Context, lggr logger.Logger, reporter Reporter, opts ...BundleOption) Bundle {
	b := Bundle{
		Logger:            lggr,
		GetContext:        getContext,
		reporter:          reporter,
		reportHashCache:   &sync.Map{},
		OperationRegistry: NewOperationRegistry(),
	}
	for _, opt := range opts {
		opt(&b)
	}

	return b
}

// Reporter returns the reporter the bundle records to.
func (b Bundle) Reporter() Reporter {
	return b.reporter
}

// withReporter returns a copy of the bundle recording to r.
func (b Bundle) withReporter(r Reporter) Bundle {
	b.reporter = r
	return b
}

// OperationHandler is the function an Operation runs.
type OperationHandler[IN, OUT, DEP any] func(b Bundle, deps DEP, input IN) (output OUT, err error)

// Definition identifies an operation or a sequence. Two executions with the same Definition and
// input are considered the same execution.
type Definition struct {
	ID          string          `json:"id"`
	Version     *semver.Version `json:"version"`
	Description string          `json:"description"`
}

// Operation is a single versioned deployment step with at most one side effect.
type Operation[IN, OUT, DEP any] struct {
	def     Definition
	handler OperationHandler[IN, OUT, DEP]
}

// NewOperation creates an operation.
func NewOperation[IN, OUT, DEP any](
	id string, version *semver.Version, description string, handler OperationHandler[IN, OUT, DEP],
) *Operation[IN, OUT, DEP] {
	return &Operation[IN, OUT, DEP]{
		def: Definition{
			ID:          id,
			Version:     version,
			Description: description,
		},
		handler: handler,
	}
}

// ID returns the operation ID.
func (o *Operation[IN, OUT, DEP]) ID() string {
	return o.def.ID
}

// Version returns the operation version.
func (o *Operation[IN, OUT, DEP]) Version() string {
	return o.def.Version.String()
}

// Description returns the operation description.
func (o *Operation[IN, OUT, DEP]) Description() string {
	return o.def.Description
}

// Def returns the operation definition.
func (o *Operation[IN, OUT, DEP]) Def() Definition {
	return o.def
}

func (o *Operation[IN, OUT, DEP]) execute(b Bundle, deps DEP, input IN) (OUT, error) {
	b.Logger.Infow("Executing operation",
		"id", o.def.ID, "version", o.def.Version, "description", o.def.Description)

	return o.handler(b, deps, input)
}

// AsUntyped erases the type parameters so operations of different types can be stored together.
// A mismatched input or dependency type fails at execution time.
func (o *Operation[IN, OUT, DEP]) AsUntyped() *Operation[any, any, any] {
	return &Operation[any, any, any]{
		def: o.def,
		handler: func(b Bundle, deps any, input any) (any, error) {
			var typedInput IN
			if input != nil {
				var ok bool
				if typedInput, ok = input.(IN); !ok {
					return nil, errors.New("input type mismatch")
				}
			}

			var typedDeps DEP
			if deps != nil {
				var ok bool
				if typedDeps, ok = deps.(DEP); !ok {
					return nil, errors.New("dependencies type mismatch")
				}
			}

			return o.handler(b, typedDeps, typedInput)
		},
	}
}

// EmptyInput is the input of operations which take none.
type EmptyInput struct{}
