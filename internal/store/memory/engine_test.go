package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeguard/backend/internal/store"
	"storeguard/backend/internal/store/tables"
)

func TestEngine_CRUD(t *testing.T) {
	e := New()
	ctx := context.Background()

	created, err := e.Create(ctx, tables.Products, store.Row{"store_id": "s1", "name": "Widget"})
	require.NoError(t, err)
	require.NotEmpty(t, created["id"])
	assert.NotNil(t, created["created_at"])

	_, err = e.Create(ctx, tables.Products, store.Row{"id": "p2", "store_id": "s2", "name": "Gadget"})
	require.NoError(t, err)

	rows, err := e.Find(ctx, tables.Products, store.Filter{"store_id": "s1"}, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Widget", rows[0]["name"])

	rows[0]["name"] = "mutated"
	again, _ := e.FindOne(ctx, tables.Products, store.Filter{"id": created["id"]})
	assert.Equal(t, "Widget", again["name"], "returned rows are copies")

	updated, err := e.Update(ctx, tables.Products, store.Filter{"id": "p2"}, store.Row{"name": "Gadget 2"})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "Gadget 2", updated[0]["name"])

	n, err := e.Count(ctx, tables.Products, store.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = e.Delete(ctx, tables.Products, store.Filter{"store_id": "s2"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	none, err := e.FindOne(ctx, tables.Products, store.Filter{"id": "p2"})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestEngine_FindOptions(t *testing.T) {
	e := New()
	ctx := context.Background()
	for i, name := range []string{"c", "a", "d", "b"} {
		e.Seed(tables.Products, store.Row{"id": name, "store_id": "s1", "name": name, "price_cents": int64(i)})
	}
	rows, err := e.Find(ctx, tables.Products, store.Filter{}, store.FindOptions{OrderBy: "name", Desc: true, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0]["name"])
	assert.Equal(t, "b", rows[1]["name"])

	_, err = e.Find(ctx, tables.Products, store.Filter{}, store.FindOptions{OrderBy: "secret"})
	assert.True(t, errors.Is(err, store.ErrUnknownColumn))
}

func TestEngine_RejectsUnknownColumns(t *testing.T) {
	e := New()
	ctx := context.Background()
	_, err := e.Create(ctx, tables.Orders, store.Row{"store_id": "s1", "is_admin": true})
	assert.ErrorIs(t, err, store.ErrUnknownColumn)
	_, err = e.Find(ctx, tables.Orders, store.Filter{"nope": 1}, store.FindOptions{})
	assert.ErrorIs(t, err, store.ErrUnknownColumn)
	_, err = e.Update(ctx, tables.Orders, store.Filter{}, store.Row{})
	assert.ErrorIs(t, err, store.ErrEmptyPayload)
}

func TestEngine_TransactionIsAtomic(t *testing.T) {
	e := New()
	ctx := context.Background()
	e.Seed(tables.Products, store.Row{"id": "p1", "store_id": "s1", "name": "Widget"})

	_, err := e.Transaction(ctx, []store.Op{
		{Kind: store.OpCreate, Table: tables.Products, Data: store.Row{"id": "p2", "store_id": "s1", "name": "New"}},
		{Kind: store.OpUpdate, Table: tables.Products, Filter: store.Filter{"id": "p1"}, Data: store.Row{"name": "Changed"}},
		{Kind: store.OpCreate, Table: tables.Products, Data: store.Row{"id": "p1", "store_id": "s1", "name": "Dup"}},
	})
	require.Error(t, err)

	n, _ := e.Count(ctx, tables.Products, store.Filter{})
	assert.EqualValues(t, 1, n, "failed transaction leaves no trace")
	p1, _ := e.FindOne(ctx, tables.Products, store.Filter{"id": "p1"})
	assert.Equal(t, "Widget", p1["name"])

	res, err := e.Transaction(ctx, []store.Op{
		{Kind: store.OpCreate, Table: tables.Products, Data: store.Row{"id": "p2", "store_id": "s1", "name": "New"}},
		{Kind: store.OpDelete, Table: tables.Products, Filter: store.Filter{"id": "p1"}},
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.EqualValues(t, 1, res[1].Affected)
	assert.Equal(t, 2, e.Calls("Transaction"))
}
