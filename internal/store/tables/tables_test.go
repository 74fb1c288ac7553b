package tables

import (
	"testing"

	"storeguard/backend/internal/store"
)

func TestTablesDeclareTenantAndKey(t *testing.T) {
	for _, tbl := range All {
		if !store.HasColumn(tbl, tbl.TenantColumn()) {
			t.Errorf("%s does not declare its tenant column", tbl.Name())
		}
		if !store.HasColumn(tbl, tbl.PrimaryKey()) {
			t.Errorf("%s does not declare its primary key", tbl.Name())
		}
	}
}

func TestByName(t *testing.T) {
	if tbl, ok := ByName("orders"); !ok || tbl != Orders {
		t.Errorf("ByName(orders) = %v, %v", tbl, ok)
	}
	if _, ok := ByName("users"); ok {
		t.Error("users must not be reachable through the gate")
	}
	if _, ok := ByName("products; DROP TABLE products"); ok {
		t.Error("arbitrary names must not resolve")
	}
}
