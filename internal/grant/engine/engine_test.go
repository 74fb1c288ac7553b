package engine

import (
	"context"
	"errors"
	"testing"

	"storeguard/backend/internal/grant/domain"
	"storeguard/backend/internal/grant/repository"
	"storeguard/backend/internal/platform/role"
)

func seededAssignments() *repository.MemoryRepository {
	return repository.NewMemoryRepository(
		domain.Assignment{UserID: "owner", StoreID: "s1", Kind: domain.KindOwner},
		domain.Assignment{UserID: "admin", StoreID: "s1", Kind: domain.KindAdmin},
		domain.Assignment{UserID: "reader", StoreID: "s1", Kind: domain.KindVendor, Permissions: domain.Permissions{Read: true}},
		domain.Assignment{UserID: "writer", StoreID: "s1", Kind: domain.KindVendor, Permissions: domain.Permissions{Write: true}},
		domain.Assignment{UserID: "none", StoreID: "s1", Kind: domain.KindVendor},
	)
}

var accessCases = []struct {
	name    string
	userID  string
	storeID string
	op      role.Operation
	want    bool
}{
	{"owner reads", "owner", "s1", role.OpRead, true},
	{"owner writes", "owner", "s1", role.OpWrite, true},
	{"admin writes", "admin", "s1", role.OpWrite, true},
	{"read vendor reads", "reader", "s1", role.OpRead, true},
	{"read vendor cannot write", "reader", "s1", role.OpWrite, false},
	{"write vendor reads", "writer", "s1", role.OpRead, true},
	{"write vendor writes", "writer", "s1", role.OpWrite, true},
	{"vendor without permissions", "none", "s1", role.OpRead, false},
	{"owner of other store", "owner", "s2", role.OpRead, false},
	{"unassigned user", "stranger", "s1", role.OpRead, false},
	{"empty store", "owner", "", role.OpRead, false},
	{"unknown operation", "owner", "s1", role.Operation(0), false},
	{"admin unknown operation", "admin", "s1", role.Operation(7), false},
	{"write vendor unknown operation", "writer", "s1", role.Operation(7), false},
}

func TestTableResolver(t *testing.T) {
	r := NewTableResolver(seededAssignments())
	for _, tc := range accessCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.HasAccess(context.Background(), tc.userID, tc.storeID, tc.op)
			if err != nil {
				t.Fatalf("HasAccess: %v", err)
			}
			if got != tc.want {
				t.Errorf("HasAccess = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOPAResolver_MatchesTable(t *testing.T) {
	ctx := context.Background()
	r, err := NewOPAResolver(ctx, seededAssignments())
	if err != nil {
		t.Fatalf("NewOPAResolver: %v", err)
	}
	for _, tc := range accessCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.HasAccess(ctx, tc.userID, tc.storeID, tc.op)
			if err != nil {
				t.Fatalf("HasAccess: %v", err)
			}
			if got != tc.want {
				t.Errorf("HasAccess = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestOPAResolver_CustomPolicy(t *testing.T) {
	ctx := context.Background()
	readOnly := `package storeguard.access

default allow := false

allow if input.operation == "read"
`
	r, err := NewOPAResolver(ctx, seededAssignments(), WithPolicy(readOnly))
	if err != nil {
		t.Fatalf("NewOPAResolver: %v", err)
	}
	if ok, _ := r.HasAccess(ctx, "owner", "s1", role.OpWrite); ok {
		t.Error("read-only policy should deny owner writes")
	}
	if ok, _ := r.HasAccess(ctx, "none", "s1", role.OpRead); !ok {
		t.Error("read-only policy should allow any assignment to read")
	}
}

func TestOPAResolver_BadPolicy(t *testing.T) {
	if _, err := NewOPAResolver(context.Background(), seededAssignments(), WithPolicy("package x\nallow if {")); err == nil {
		t.Fatal("expected compile error")
	}
}

type failingSource struct{}

func (failingSource) GetAssignment(context.Context, string, string) (*domain.Assignment, error) {
	return nil, errors.New("db down")
}

func TestResolvers_PropagateSourceErrors(t *testing.T) {
	ctx := context.Background()
	opa, err := NewOPAResolver(ctx, failingSource{})
	if err != nil {
		t.Fatalf("NewOPAResolver: %v", err)
	}
	for name, r := range map[string]Resolver{"table": NewTableResolver(failingSource{}), "opa": opa} {
		ok, err := r.HasAccess(ctx, "owner", "s1", role.OpRead)
		if err == nil || ok {
			t.Errorf("%s: HasAccess = %v, %v; want false with error", name, ok, err)
		}
	}
}
