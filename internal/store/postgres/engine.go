// Package postgres is the pgx-backed store.Engine.
package postgres

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"storeguard/backend/internal/db"
	"storeguard/backend/internal/store"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Engine builds SQL only from identifiers a store.Table declares; values always travel
// as bind parameters.
type Engine struct {
	pool *pgxpool.Pool
}

// New returns an Engine on pool.
func New(pool *pgxpool.Pool) *Engine {
	return &Engine{pool: pool}
}

func (e *Engine) Find(ctx context.Context, t store.Table, f store.Filter, opts store.FindOptions) ([]store.Row, error) {
	if err := store.CheckColumns(t, f); err != nil {
		return nil, err
	}
	if err := store.CheckOptions(t, opts); err != nil {
		return nil, err
	}
	var b builder
	b.sql.WriteString("SELECT " + columnList(t) + " FROM " + ident(t.Name()))
	b.where(f)
	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = t.PrimaryKey()
	}
	b.sql.WriteString(" ORDER BY " + ident(orderBy))
	if opts.Desc {
		b.sql.WriteString(" DESC")
	}
	if opts.Limit > 0 {
		b.sql.WriteString(" LIMIT " + b.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		b.sql.WriteString(" OFFSET " + b.arg(opts.Offset))
	}
	return queryRows(ctx, e.pool, b.sql.String(), b.args)
}

func (e *Engine) FindOne(ctx context.Context, t store.Table, f store.Filter) (store.Row, error) {
	rows, err := e.Find(ctx, t, f, store.FindOptions{Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (e *Engine) Create(ctx context.Context, t store.Table, data store.Row) (store.Row, error) {
	return create(ctx, e.pool, t, data)
}

func (e *Engine) Update(ctx context.Context, t store.Table, f store.Filter, data store.Row) ([]store.Row, error) {
	return update(ctx, e.pool, t, f, data)
}

func (e *Engine) Delete(ctx context.Context, t store.Table, f store.Filter) (int64, error) {
	return remove(ctx, e.pool, t, f)
}

func (e *Engine) Count(ctx context.Context, t store.Table, f store.Filter) (int64, error) {
	if err := store.CheckColumns(t, f); err != nil {
		return 0, err
	}
	var b builder
	b.sql.WriteString("SELECT count(*) FROM " + ident(t.Name()))
	b.where(f)
	var n int64
	if err := e.pool.QueryRow(ctx, b.sql.String(), b.args...).Scan(&n); err != nil {
		return 0, db.MapError(err)
	}
	return n, nil
}

// Transaction runs ops in one database transaction; any error rolls back all of them.
func (e *Engine) Transaction(ctx context.Context, ops []store.Op) ([]store.Result, error) {
	results := make([]store.Result, 0, len(ops))
	err := pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		for i, op := range ops {
			var res store.Result
			var err error
			switch op.Kind {
			case store.OpCreate:
				var r store.Row
				r, err = create(ctx, tx, op.Table, op.Data)
				res = store.Result{Rows: []store.Row{r}, Affected: 1}
			case store.OpUpdate:
				res.Rows, err = update(ctx, tx, op.Table, op.Filter, op.Data)
				res.Affected = int64(len(res.Rows))
			case store.OpDelete:
				res.Affected, err = remove(ctx, tx, op.Table, op.Filter)
			default:
				err = fmt.Errorf("store: unknown op kind %d", op.Kind)
			}
			if err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func create(ctx context.Context, q querier, t store.Table, data store.Row) (store.Row, error) {
	if len(data) == 0 {
		return nil, store.ErrEmptyPayload
	}
	if err := store.CheckColumns(t, data); err != nil {
		return nil, err
	}
	row := data.Clone()
	if v, ok := row[t.PrimaryKey()]; !ok || v == nil || v == "" {
		row[t.PrimaryKey()] = uuid.NewString()
	}
	cols := sortedKeys(row)
	var b builder
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		placeholders[i] = b.arg(row[c])
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ident(c)
	}
	b.sql.WriteString("INSERT INTO " + ident(t.Name()) + " (" + strings.Join(quoted, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") RETURNING " + columnList(t))
	rows, err := queryRows(ctx, q, b.sql.String(), b.args)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("store: insert into %s returned %d rows", t.Name(), len(rows))
	}
	return rows[0], nil
}

func update(ctx context.Context, q querier, t store.Table, f store.Filter, data store.Row) ([]store.Row, error) {
	if len(data) == 0 {
		return nil, store.ErrEmptyPayload
	}
	if err := store.CheckColumns(t, f); err != nil {
		return nil, err
	}
	if err := store.CheckColumns(t, data); err != nil {
		return nil, err
	}
	var b builder
	sets := make([]string, 0, len(data)+1)
	for _, c := range sortedKeys(data) {
		sets = append(sets, ident(c)+" = "+b.arg(data[c]))
	}
	if _, set := data["updated_at"]; !set && store.HasColumn(t, "updated_at") {
		sets = append(sets, ident("updated_at")+" = now()")
	}
	b.sql.WriteString("UPDATE " + ident(t.Name()) + " SET " + strings.Join(sets, ", "))
	b.where(f)
	b.sql.WriteString(" RETURNING " + columnList(t))
	return queryRows(ctx, q, b.sql.String(), b.args)
}

func remove(ctx context.Context, q querier, t store.Table, f store.Filter) (int64, error) {
	if err := store.CheckColumns(t, f); err != nil {
		return 0, err
	}
	var b builder
	b.sql.WriteString("DELETE FROM " + ident(t.Name()))
	b.where(f)
	tag, err := q.Exec(ctx, b.sql.String(), b.args...)
	if err != nil {
		return 0, db.MapError(err)
	}
	return tag.RowsAffected(), nil
}

func queryRows(ctx context.Context, q querier, sql string, args []any) ([]store.Row, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.MapError(err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, db.MapError(err)
	}
	out := make([]store.Row, len(maps))
	for i, m := range maps {
		out[i] = store.Row(m)
	}
	return out, nil
}

type builder struct {
	sql  strings.Builder
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// where appends a conjunction of equality predicates in a stable column order.
func (b *builder) where(f store.Filter) {
	if len(f) == 0 {
		return
	}
	preds := make([]string, 0, len(f))
	for _, c := range sortedKeys(f) {
		if f[c] == nil {
			preds = append(preds, ident(c)+" IS NULL")
			continue
		}
		preds = append(preds, ident(c)+" = "+b.arg(f[c]))
	}
	b.sql.WriteString(" WHERE " + strings.Join(preds, " AND "))
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func columnList(t store.Table) string {
	cols := t.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ident(c)
	}
	return strings.Join(quoted, ", ")
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
