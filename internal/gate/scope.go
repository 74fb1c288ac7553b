package gate

import (
	"fmt"

	"storeguard/backend/internal/platform/apperr"
	"storeguard/backend/internal/store"
)

// ScopedFilter returns base with the tenant predicate set to storeID. The tenant predicate
// always wins over any caller-supplied value for the same column. An empty storeID
// (platform-wide scope) returns a copy of base unchanged.
func ScopedFilter(t store.Table, storeID string, base store.Filter) store.Filter {
	f := base.Clone()
	if storeID != "" {
		f[t.TenantColumn()] = storeID
	}
	return f
}

// StampTenantOnWrite returns a copy of payload whose tenant column is storeID. A payload
// that omits the column gets it set; one that names a different store is a cross-tenant
// write attempt and fails with a validation error. With a platform-wide scope the payload
// must name its store itself.
func StampTenantOnWrite(t store.Table, storeID string, payload store.Row) (store.Row, error) {
	out := payload.Clone()
	col := t.TenantColumn()
	v, present := out[col]
	if present && (v == nil || v == "") {
		present = false
	}
	switch {
	case storeID == "" && !present:
		return nil, apperr.Validation("store_required", "store id is required")
	case storeID == "":
		return out, nil
	case !present:
		out[col] = storeID
		return out, nil
	case fmt.Sprint(v) != storeID:
		return nil, errTenantMismatch()
	default:
		return out, nil
	}
}

// checkUpdatePayload forbids moving rows between stores: an update may repeat the scope's
// tenant value but never set another one.
func checkUpdatePayload(t store.Table, storeID string, data store.Row) error {
	v, present := data[t.TenantColumn()]
	if !present {
		return nil
	}
	if storeID == "" || fmt.Sprint(v) != storeID {
		return errTenantMismatch()
	}
	return nil
}

func errTenantMismatch() error {
	return apperr.Validation("tenant_mismatch", "record belongs to a different store")
}

// ownRows drops every row whose tenant column is not storeID and returns how many were dropped.
func ownRows(t store.Table, storeID string, rows []store.Row) ([]store.Row, int) {
	if storeID == "" {
		return rows, 0
	}
	kept := rows[:0:0]
	for _, r := range rows {
		if fmt.Sprint(r[t.TenantColumn()]) == storeID {
			kept = append(kept, r)
		}
	}
	return kept, len(rows) - len(kept)
}
