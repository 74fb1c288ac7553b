// Package tables declares the tenant-scoped tables the gate can reach.
package tables

import "storeguard/backend/internal/store"

// TenantColumn is the tenant column shared by every table here.
const TenantColumn = "store_id"

type table struct {
	name    string
	columns []string
}

func (t table) Name() string         { return t.name }
func (t table) TenantColumn() string { return TenantColumn }
func (t table) PrimaryKey() string   { return "id" }
func (t table) Columns() []string    { return t.columns }

var (
	Products store.Table = &table{
		name:    "products",
		columns: []string{"id", "store_id", "name", "sku", "price_cents", "active", "created_at", "updated_at"},
	}
	Customers store.Table = &table{
		name:    "customers",
		columns: []string{"id", "store_id", "email", "name", "created_at", "updated_at"},
	}
	Orders store.Table = &table{
		name:    "orders",
		columns: []string{"id", "store_id", "customer_id", "status", "total_cents", "created_at", "updated_at"},
	}
	StockItems store.Table = &table{
		name:    "stock_items",
		columns: []string{"id", "store_id", "product_id", "quantity", "location", "created_at", "updated_at"},
	}
)

// All lists every table.
var All = []store.Table{Products, Customers, Orders, StockItems}

// ByName resolves a table name from the wire. Only the fixed set above is reachable.
func ByName(name string) (store.Table, bool) {
	for _, t := range All {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
