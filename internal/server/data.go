package server

import (
	"context"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"storeguard/backend/internal/gate"
	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/server/interceptors"
	"storeguard/backend/internal/store"
	"storeguard/backend/internal/store/tables"
)

// Data is the gate surface the data service calls.
type Data interface {
	FindMany(ctx context.Context, tc gate.TenantContext, t store.Table, filter store.Filter, opts store.FindOptions) ([]store.Row, error)
	FindUnique(ctx context.Context, tc gate.TenantContext, t store.Table, filter store.Filter) (store.Row, error)
	Create(ctx context.Context, tc gate.TenantContext, t store.Table, data store.Row) (store.Row, error)
	Update(ctx context.Context, tc gate.TenantContext, t store.Table, filter store.Filter, data store.Row) ([]store.Row, error)
	Delete(ctx context.Context, tc gate.TenantContext, t store.Table, filter store.Filter) (int64, error)
	Count(ctx context.Context, tc gate.TenantContext, t store.Table, filter store.Filter) (int64, error)
	Batch(ctx context.Context, tc gate.TenantContext, ops []gate.BatchOp) ([]store.Result, error)
}

type dataServer struct {
	gate Data
}

// NewDataServer returns the DataService implementation.
func NewDataServer(g Data) DataServer {
	return &dataServer{gate: g}
}

// call is the decoded common part of every data request.
type call struct {
	*request
	tc    gate.TenantContext
	table store.Table
}

func (d *dataServer) begin(ctx context.Context, in *structpb.Struct) (*call, error) {
	claims, ok := interceptors.ClaimsFrom(ctx)
	if !ok {
		return nil, apperr.Authentication("missing_token")
	}
	r := decode(in)
	tc, err := gate.FromClaims(claims, r.str("store_id"))
	if err != nil {
		return nil, err
	}
	c := &call{request: r, tc: tc}
	if _, named := r.m["table"]; named {
		c.table, err = table(r.str("table"))
		if err != nil {
			return nil, err
		}
	}
	return c, r.err
}

func table(name string) (store.Table, error) {
	t, ok := tables.ByName(strings.TrimSpace(name))
	if !ok {
		return nil, apperr.Validation("unknown_table", "unknown table")
	}
	return t, nil
}

func (c *call) filter() store.Filter { return store.Filter(columns(c.object("filter"))) }

func (c *call) data() store.Row { return store.Row(columns(c.object("data"))) }

func (c *call) needTable() error {
	if c.table == nil {
		return apperr.Validation("unknown_table", "unknown table")
	}
	return c.err
}

func (d *dataServer) FindMany(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := d.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	filter := c.filter()
	opts := store.FindOptions{Limit: c.integer("limit"), Offset: c.integer("offset"), OrderBy: c.str("order_by"), Desc: c.boolean("desc")}
	if err := c.needTable(); err != nil {
		return nil, err
	}
	rows, err := d.gate.FindMany(ctx, c.tc, c.table, filter, opts)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"rows": rowsValue(rows)})
}

func (d *dataServer) FindUnique(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := d.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	filter := c.filter()
	if err := c.needTable(); err != nil {
		return nil, err
	}
	row, err := d.gate.FindUnique(ctx, c.tc, c.table, filter)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"row": rowValue(row)})
}

func (d *dataServer) Create(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := d.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	data := c.data()
	if err := c.needTable(); err != nil {
		return nil, err
	}
	row, err := d.gate.Create(ctx, c.tc, c.table, data)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"row": rowValue(row)})
}

func (d *dataServer) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := d.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	filter, data := c.filter(), c.data()
	if err := c.needTable(); err != nil {
		return nil, err
	}
	rows, err := d.gate.Update(ctx, c.tc, c.table, filter, data)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"rows": rowsValue(rows)})
}

func (d *dataServer) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := d.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	filter := c.filter()
	if err := c.needTable(); err != nil {
		return nil, err
	}
	n, err := d.gate.Delete(ctx, c.tc, c.table, filter)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"affected": float64(n)})
}

func (d *dataServer) Count(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := d.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	filter := c.filter()
	if err := c.needTable(); err != nil {
		return nil, err
	}
	n, err := d.gate.Count(ctx, c.tc, c.table, filter)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"count": float64(n)})
}

var opKinds = map[string]store.OpKind{
	"create": store.OpCreate,
	"update": store.OpUpdate,
	"delete": store.OpDelete,
}

func (d *dataServer) Batch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	c, err := d.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	raw := c.list("ops")
	if c.err != nil {
		return nil, c.err
	}
	ops := make([]gate.BatchOp, len(raw))
	for i, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, apperr.Validation("bad_request", "ops must be objects")
		}
		op := &request{m: m}
		kind, ok := opKinds[strings.ToLower(op.str("kind"))]
		if !ok {
			return nil, apperr.Validation("unknown_op", "unknown batch operation")
		}
		t, err := table(op.str("table"))
		if err != nil {
			return nil, err
		}
		ops[i] = gate.BatchOp{
			Kind:    kind,
			Table:   t,
			StoreID: op.str("store_id"),
			Filter:  store.Filter(columns(op.object("filter"))),
			Data:    store.Row(columns(op.object("data"))),
		}
		if op.err != nil {
			return nil, op.err
		}
	}
	results, err := d.gate.Batch(ctx, c.tc, ops)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = map[string]any{"rows": rowsValue(r.Rows), "affected": float64(r.Affected)}
	}
	return encode(map[string]any{"results": out})
}
