// Package store is the generic persistence boundary the access gate delegates to.
// Tables are typed handles selected at compile time; engines only accept columns a
// table declares.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnknownColumn is returned when a filter, payload, or ordering names a column the table does not declare.
	ErrUnknownColumn = errors.New("store: unknown column")
	// ErrEmptyPayload is returned by Create and Update without any column to write.
	ErrEmptyPayload = errors.New("store: empty payload")
)

// Table is a tenant-scoped table: every row carries the tenant column.
type Table interface {
	Name() string
	TenantColumn() string
	PrimaryKey() string
	Columns() []string
}

// Filter is a conjunction of column equality predicates.
type Filter map[string]any

// Row is one record keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of f.
func (f Filter) Clone() Filter {
	out := make(Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FindOptions shapes a Find. Zero Limit means no limit. Empty OrderBy orders by primary key.
type FindOptions struct {
	Limit   int
	Offset  int
	OrderBy string
	Desc    bool
}

// OpKind is the kind of a write inside a transaction.
type OpKind int

const (
	OpCreate OpKind = iota + 1
	OpUpdate
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Op is one write in a Transaction. Create uses Data; Update uses Filter and Data; Delete uses Filter.
type Op struct {
	Kind   OpKind
	Table  Table
	Filter Filter
	Data   Row
}

// Result is the outcome of one Op: created or updated rows, and rows affected.
type Result struct {
	Rows     []Row
	Affected int64
}

// Engine executes reads and writes. It knows nothing about tenants beyond what the
// filter and payload say; the gate is responsible for scoping them.
type Engine interface {
	Find(ctx context.Context, t Table, f Filter, opts FindOptions) ([]Row, error)
	// FindOne returns the first matching row, or nil when none matches.
	FindOne(ctx context.Context, t Table, f Filter) (Row, error)
	Create(ctx context.Context, t Table, data Row) (Row, error)
	Update(ctx context.Context, t Table, f Filter, data Row) ([]Row, error)
	Delete(ctx context.Context, t Table, f Filter) (int64, error)
	Count(ctx context.Context, t Table, f Filter) (int64, error)
	// Transaction applies ops atomically: all or none.
	Transaction(ctx context.Context, ops []Op) ([]Result, error)
}

// HasColumn reports whether t declares col.
func HasColumn(t Table, col string) bool {
	return slices.Contains(t.Columns(), col)
}

// CheckColumns returns ErrUnknownColumn naming the first key not declared by t.
func CheckColumns[M ~map[string]any](t Table, m M) error {
	for k := range m {
		if !HasColumn(t, k) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name(), k)
		}
	}
	return nil
}

// CheckOptions validates the ordering column.
func CheckOptions(t Table, opts FindOptions) error {
	if opts.OrderBy != "" && !HasColumn(t, opts.OrderBy) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name(), opts.OrderBy)
	}
	return nil
}
