// Package memory is an in-process store.Engine for tests and local development.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"storeguard/backend/internal/store"
)

type tableData map[string]store.Row

// Engine keeps every table in maps guarded by one mutex. Transactions apply to a copy
// and swap it in only when every op succeeded.
type Engine struct {
	mu     sync.Mutex
	tables map[string]tableData
	now    func() time.Time

	// Calls counts engine entry points by name; tests assert the gate never reached the engine.
	calls map[string]int
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{tables: make(map[string]tableData), now: time.Now, calls: make(map[string]int)}
}

// Calls returns how many times method was invoked.
func (e *Engine) Calls(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[method]
}

// Seed inserts rows verbatim, bypassing tenant logic. For tests.
func (e *Engine) Seed(t store.Table, rows ...store.Row) {
	e.mu.Lock()
	defer e.mu.Unlock()
	td := e.table(e.tables, t)
	for _, r := range rows {
		td[fmt.Sprint(r[t.PrimaryKey()])] = r.Clone()
	}
}

func (e *Engine) table(all map[string]tableData, t store.Table) tableData {
	td, ok := all[t.Name()]
	if !ok {
		td = make(tableData)
		all[t.Name()] = td
	}
	return td
}

func (e *Engine) Find(_ context.Context, t store.Table, f store.Filter, opts store.FindOptions) ([]store.Row, error) {
	if err := check(t, f, opts); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls["Find"]++
	rows := matching(e.table(e.tables, t), f)
	sortRows(rows, t, opts)
	if opts.Offset > 0 {
		rows = rows[min(opts.Offset, len(rows)):]
	}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	return cloneAll(rows), nil
}

func (e *Engine) FindOne(ctx context.Context, t store.Table, f store.Filter) (store.Row, error) {
	rows, err := e.Find(ctx, t, f, store.FindOptions{Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (e *Engine) Create(_ context.Context, t store.Table, data store.Row) (store.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls["Create"]++
	return e.create(e.tables, t, data)
}

func (e *Engine) Update(_ context.Context, t store.Table, f store.Filter, data store.Row) ([]store.Row, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls["Update"]++
	return e.update(e.tables, t, f, data)
}

func (e *Engine) Delete(_ context.Context, t store.Table, f store.Filter) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls["Delete"]++
	return e.delete(e.tables, t, f)
}

func (e *Engine) Count(_ context.Context, t store.Table, f store.Filter) (int64, error) {
	if err := store.CheckColumns(t, f); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls["Count"]++
	return int64(len(matching(e.table(e.tables, t), f))), nil
}

func (e *Engine) Transaction(_ context.Context, ops []store.Op) ([]store.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls["Transaction"]++

	work := make(map[string]tableData, len(e.tables))
	for name, td := range e.tables {
		c := make(tableData, len(td))
		for k, r := range td {
			c[k] = r.Clone()
		}
		work[name] = c
	}
	results := make([]store.Result, 0, len(ops))
	for i, op := range ops {
		var res store.Result
		var err error
		switch op.Kind {
		case store.OpCreate:
			var r store.Row
			r, err = e.create(work, op.Table, op.Data)
			res = store.Result{Rows: []store.Row{r}, Affected: 1}
		case store.OpUpdate:
			res.Rows, err = e.update(work, op.Table, op.Filter, op.Data)
			res.Affected = int64(len(res.Rows))
		case store.OpDelete:
			res.Affected, err = e.delete(work, op.Table, op.Filter)
		default:
			err = fmt.Errorf("store: unknown op kind %d", op.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		results = append(results, res)
	}
	e.tables = work
	return results, nil
}

func (e *Engine) create(all map[string]tableData, t store.Table, data store.Row) (store.Row, error) {
	if len(data) == 0 {
		return nil, store.ErrEmptyPayload
	}
	if err := store.CheckColumns(t, data); err != nil {
		return nil, err
	}
	r := data.Clone()
	pk := t.PrimaryKey()
	if r[pk] == nil || r[pk] == "" {
		r[pk] = uuid.NewString()
	}
	now := e.now().UTC()
	for _, col := range []string{"created_at", "updated_at"} {
		if _, set := r[col]; !set && store.HasColumn(t, col) {
			r[col] = now
		}
	}
	td := e.table(all, t)
	key := fmt.Sprint(r[pk])
	if _, dup := td[key]; dup {
		return nil, fmt.Errorf("store: duplicate %s.%s %s", t.Name(), pk, key)
	}
	td[key] = r
	return r.Clone(), nil
}

func (e *Engine) update(all map[string]tableData, t store.Table, f store.Filter, data store.Row) ([]store.Row, error) {
	if len(data) == 0 {
		return nil, store.ErrEmptyPayload
	}
	if err := store.CheckColumns(t, f); err != nil {
		return nil, err
	}
	if err := store.CheckColumns(t, data); err != nil {
		return nil, err
	}
	now := e.now().UTC()
	var out []store.Row
	for _, r := range matching(e.table(all, t), f) {
		for k, v := range data {
			r[k] = v
		}
		if _, set := data["updated_at"]; !set && store.HasColumn(t, "updated_at") {
			r["updated_at"] = now
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

func (e *Engine) delete(all map[string]tableData, t store.Table, f store.Filter) (int64, error) {
	if err := store.CheckColumns(t, f); err != nil {
		return 0, err
	}
	td := e.table(all, t)
	var n int64
	for k, r := range td {
		if matches(r, f) {
			delete(td, k)
			n++
		}
	}
	return n, nil
}

func check(t store.Table, f store.Filter, opts store.FindOptions) error {
	if err := store.CheckColumns(t, f); err != nil {
		return err
	}
	return store.CheckOptions(t, opts)
}

// matching returns the live rows (not copies) that satisfy f.
func matching(td tableData, f store.Filter) []store.Row {
	var out []store.Row
	for _, r := range td {
		if matches(r, f) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r store.Row, f store.Filter) bool {
	for k, want := range f {
		if !reflect.DeepEqual(r[k], want) {
			return false
		}
	}
	return true
}

func sortRows(rows []store.Row, t store.Table, opts store.FindOptions) {
	col := opts.OrderBy
	if col == "" {
		col = t.PrimaryKey()
	}
	slices.SortStableFunc(rows, func(a, b store.Row) int {
		c := compare(a[col], b[col])
		if opts.Desc {
			return -c
		}
		return c
	})
}

func compare(a, b any) int {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	case int:
		if y, ok := b.(int); ok {
			return cmp.Compare(x, y)
		}
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cloneAll(rows []store.Row) []store.Row {
	out := make([]store.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
