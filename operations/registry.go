package operations

import (
	"fmt"
	"slices"
	"strings"
)

// OperationRegistry looks operations up by definition.
type OperationRegistry struct {
	ops []*Operation[any, any, any]
}

// NewOperationRegistry creates a registry holding ops.
func NewOperationRegistry(ops ...*Operation[any, any, any]) *OperationRegistry {
	return &OperationRegistry{ops: ops}
}

// Retrieve returns the operation matching the ID and version of def.
func (r *OperationRegistry) Retrieve(def Definition) (*Operation[any, any, any], error) {
	for _, op := range r.ops {
		if op.ID() == def.ID && def.Version != nil && op.Version() == def.Version.String() {
			return op, nil
		}
	}

	return nil, fmt.Errorf("operation %s not found in registry", def.ID)
}

// Definitions returns the definitions of all registered operations sorted by ID.
func (r *OperationRegistry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.ops))
	for _, op := range r.ops {
		defs = append(defs, op.Def())
	}

	slices.SortFunc(defs, func(a, b Definition) int {
		return strings.Compare(a.ID, b.ID)
	})

	return defs
}

// RegisterOperation adds operations to the registry. Call it once per type combination.
func RegisterOperation[IN, OUT, DEP any](r *OperationRegistry, ops ...*Operation[IN, OUT, DEP]) {
	for _, op := range ops {
		r.ops = append(r.ops, op.AsUntyped())
	}
}
