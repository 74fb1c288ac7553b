package gate

import (
	"context"
	"fmt"
	"slices"

	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/platform/role"
	"storeguard/backend/internal/store"
	"storeguard/backend/internal/telemetry"
)

// FindMany returns the rows of t matching filter within the caller's store.
func (g *Gate) FindMany(ctx context.Context, tc TenantContext, t store.Table, filter store.Filter, opts store.FindOptions) (rows []store.Row, err error) {
	c := g.begin(tc, "findMany", role.OpRead, t.Name(), tc.StoreID)
	c.meta["filter"] = fieldNames(store.Row(filter))
	c.meta["limit"] = opts.Limit
	defer func() { c.finish(ctx, err) }()

	scope, err := g.authorize(ctx, tc, tc.StoreID, role.OpRead)
	if err != nil {
		return nil, err
	}
	if err := checkRead(t, filter, opts); err != nil {
		return nil, err
	}
	rows, err = g.engine.Find(ctx, t, ScopedFilter(t, scope, filter), opts)
	if err != nil {
		return nil, engineError(err)
	}
	rows = g.postCheck(ctx, c, t, scope, rows)
	c.meta["rows"] = len(rows)
	return rows, nil
}

// FindUnique returns the single row matching filter in the caller's store, or nil when
// there is none. A row that exists only in another store is indistinguishable from none.
func (g *Gate) FindUnique(ctx context.Context, tc TenantContext, t store.Table, filter store.Filter) (row store.Row, err error) {
	c := g.begin(tc, "findUnique", role.OpRead, t.Name(), tc.StoreID)
	c.entry.RecordID = recordID(t, filter)
	c.meta["filter"] = fieldNames(store.Row(filter))
	defer func() { c.finish(ctx, err) }()

	scope, err := g.authorize(ctx, tc, tc.StoreID, role.OpRead)
	if err != nil {
		return nil, err
	}
	if err := checkRead(t, filter, store.FindOptions{}); err != nil {
		return nil, err
	}
	row, err = g.engine.FindOne(ctx, t, ScopedFilter(t, scope, filter))
	if err != nil {
		return nil, engineError(err)
	}
	if row == nil {
		return nil, nil
	}
	if kept := g.postCheck(ctx, c, t, scope, []store.Row{row}); len(kept) == 0 {
		return nil, nil
	}
	return row, nil
}

// Count returns how many rows of t match filter within the caller's store.
func (g *Gate) Count(ctx context.Context, tc TenantContext, t store.Table, filter store.Filter) (n int64, err error) {
	c := g.begin(tc, "count", role.OpRead, t.Name(), tc.StoreID)
	c.meta["filter"] = fieldNames(store.Row(filter))
	defer func() { c.finish(ctx, err) }()

	scope, err := g.authorize(ctx, tc, tc.StoreID, role.OpRead)
	if err != nil {
		return 0, err
	}
	if err := checkRead(t, filter, store.FindOptions{}); err != nil {
		return 0, err
	}
	n, err = g.engine.Count(ctx, t, ScopedFilter(t, scope, filter))
	if err != nil {
		return 0, engineError(err)
	}
	return n, nil
}

// Create inserts data into t, stamped with the caller's store.
func (g *Gate) Create(ctx context.Context, tc TenantContext, t store.Table, data store.Row) (row store.Row, err error) {
	c := g.begin(tc, "create", role.OpWrite, t.Name(), tc.StoreID)
	c.meta["fields"] = fieldNames(data)
	defer func() { c.finish(ctx, err) }()

	scope, err := g.authorize(ctx, tc, tc.StoreID, role.OpWrite)
	if err != nil {
		return nil, err
	}
	stamped, err := prepareCreate(t, scope, data)
	if err != nil {
		return nil, err
	}
	row, err = g.engine.Create(ctx, t, stamped)
	if err != nil {
		return nil, engineError(err)
	}
	c.entry.RecordID = fmt.Sprint(row[t.PrimaryKey()])
	if c.entry.StoreID == "" {
		c.entry.StoreID = fmt.Sprint(row[t.TenantColumn()])
	}
	return row, nil
}

// Update applies data to the rows of t matching filter within the caller's store and
// returns the updated rows.
func (g *Gate) Update(ctx context.Context, tc TenantContext, t store.Table, filter store.Filter, data store.Row) (rows []store.Row, err error) {
	c := g.begin(tc, "update", role.OpWrite, t.Name(), tc.StoreID)
	c.entry.RecordID = recordID(t, filter)
	c.meta["filter"] = fieldNames(store.Row(filter))
	c.meta["fields"] = fieldNames(data)
	defer func() { c.finish(ctx, err) }()

	scope, err := g.authorize(ctx, tc, tc.StoreID, role.OpWrite)
	if err != nil {
		return nil, err
	}
	if err := prepareUpdate(t, scope, filter, data); err != nil {
		return nil, err
	}
	rows, err = g.engine.Update(ctx, t, ScopedFilter(t, scope, filter), data)
	if err != nil {
		return nil, engineError(err)
	}
	rows = g.postCheck(ctx, c, t, scope, rows)
	c.meta["rows"] = len(rows)
	return rows, nil
}

// Delete removes the rows of t matching filter within the caller's store.
func (g *Gate) Delete(ctx context.Context, tc TenantContext, t store.Table, filter store.Filter) (n int64, err error) {
	c := g.begin(tc, "delete", role.OpWrite, t.Name(), tc.StoreID)
	c.entry.RecordID = recordID(t, filter)
	c.meta["filter"] = fieldNames(store.Row(filter))
	defer func() { c.finish(ctx, err) }()

	scope, err := g.authorize(ctx, tc, tc.StoreID, role.OpWrite)
	if err != nil {
		return 0, err
	}
	if err := store.CheckColumns(t, filter); err != nil {
		return 0, engineError(err)
	}
	n, err = g.engine.Delete(ctx, t, ScopedFilter(t, scope, filter))
	if err != nil {
		return 0, engineError(err)
	}
	c.meta["rows"] = n
	return n, nil
}

// BatchOp is one write in a Batch. StoreID defaults to the context's store.
type BatchOp struct {
	Kind    store.OpKind
	Table   store.Table
	StoreID string
	Filter  store.Filter
	Data    store.Row
}

// Batch authorizes and tenant-stamps every op, then submits them as one transaction.
// If any op is denied or invalid nothing reaches the engine.
func (g *Gate) Batch(ctx context.Context, tc TenantContext, ops []BatchOp) (results []store.Result, err error) {
	c := g.begin(tc, "batch", role.OpWrite, "", tc.StoreID)
	summary := make([]any, len(ops))
	for i, op := range ops {
		name := ""
		if op.Table != nil {
			name = op.Table.Name()
		}
		summary[i] = map[string]any{"kind": op.Kind.String(), "table": name, "store": op.StoreID}
	}
	c.meta["ops"] = summary
	defer func() { c.finish(ctx, err) }()

	if len(ops) == 0 {
		return nil, apperr.Validation("empty_batch", "batch has no operations")
	}
	prepared := make([]store.Op, len(ops))
	for i, op := range ops {
		p, err := g.prepareBatchOp(ctx, tc, op)
		if err != nil {
			c.meta["failed_op"] = i
			return nil, err
		}
		prepared[i] = p
	}
	results, err = g.engine.Transaction(ctx, prepared)
	if err != nil {
		return nil, engineError(err)
	}
	return results, nil
}

func (g *Gate) prepareBatchOp(ctx context.Context, tc TenantContext, op BatchOp) (store.Op, error) {
	if op.Table == nil {
		return store.Op{}, apperr.Validation("unknown_table", "unknown table")
	}
	storeID := op.StoreID
	if storeID == "" {
		storeID = tc.StoreID
	}
	scope, err := g.authorize(ctx, tc, storeID, role.OpWrite)
	if err != nil {
		return store.Op{}, err
	}
	out := store.Op{Kind: op.Kind, Table: op.Table}
	switch op.Kind {
	case store.OpCreate:
		out.Data, err = prepareCreate(op.Table, scope, op.Data)
	case store.OpUpdate:
		err = prepareUpdate(op.Table, scope, op.Filter, op.Data)
		out.Filter, out.Data = ScopedFilter(op.Table, scope, op.Filter), op.Data.Clone()
	case store.OpDelete:
		err = engineError(store.CheckColumns(op.Table, op.Filter))
		out.Filter = ScopedFilter(op.Table, scope, op.Filter)
	default:
		err = apperr.Validation("unknown_op", "unknown batch operation")
	}
	return out, err
}

func prepareCreate(t store.Table, scope string, data store.Row) (store.Row, error) {
	if len(data) == 0 {
		return nil, engineError(store.ErrEmptyPayload)
	}
	if err := store.CheckColumns(t, data); err != nil {
		return nil, engineError(err)
	}
	return StampTenantOnWrite(t, scope, data)
}

func prepareUpdate(t store.Table, scope string, filter store.Filter, data store.Row) error {
	if len(data) == 0 {
		return engineError(store.ErrEmptyPayload)
	}
	if err := store.CheckColumns(t, filter); err != nil {
		return engineError(err)
	}
	if err := store.CheckColumns(t, data); err != nil {
		return engineError(err)
	}
	return checkUpdatePayload(t, scope, data)
}

func checkRead(t store.Table, filter store.Filter, opts store.FindOptions) error {
	if err := store.CheckColumns(t, filter); err != nil {
		return engineError(err)
	}
	return engineError(store.CheckOptions(t, opts))
}

// postCheck drops rows from another store so they never leave the gate.
func (g *Gate) postCheck(ctx context.Context, c *call, t store.Table, scope string, rows []store.Row) []store.Row {
	kept, dropped := ownRows(t, scope, rows)
	if dropped > 0 {
		c.meta["rows_filtered"] = dropped
		telemetry.Add(ctx, g.metrics.RowsFilteredTotal, int64(dropped))
		g.logger.Error().Str("table", t.Name()).Str("store_id", scope).Int("dropped", dropped).Msg("engine returned rows outside the tenant scope")
	}
	return kept
}

func recordID(t store.Table, filter store.Filter) string {
	if v, ok := filter[t.PrimaryKey()]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func fieldNames(data store.Row) []any {
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	slices.Sort(names)
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}
