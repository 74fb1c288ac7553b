package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"storeguard/backend/internal/platform/role"
)

const accessQuery = "data.storeguard.access.allow"

// DefaultPolicy mirrors the TableResolver matrix. Write access implies read for vendors.
const DefaultPolicy = `package storeguard.access

default allow := false

valid_op if input.operation in {"read", "write"}

allow if {
	valid_op
	input.assignment.kind == "owner"
}

allow if {
	valid_op
	input.assignment.kind == "admin"
}

allow if {
	input.assignment.kind == "vendor"
	input.operation == "read"
	input.assignment.can_read
}

allow if {
	valid_op
	input.assignment.kind == "vendor"
	input.assignment.can_write
}
`

// OPAResolver evaluates a Rego policy against {assignment, operation}. The policy is
// compiled once at construction.
type OPAResolver struct {
	assignments AssignmentSource
	query       rego.PreparedEvalQuery
}

// OPAOption configures an OPAResolver.
type OPAOption func(*opaOptions)

type opaOptions struct {
	policy string
}

// WithPolicy replaces DefaultPolicy. The module must define data.storeguard.access.allow.
func WithPolicy(src string) OPAOption {
	return func(o *opaOptions) { o.policy = src }
}

// NewOPAResolver compiles the policy and returns a resolver. A policy that fails to compile
// is a startup error.
func NewOPAResolver(ctx context.Context, src AssignmentSource, opts ...OPAOption) (*OPAResolver, error) {
	o := opaOptions{policy: DefaultPolicy}
	for _, opt := range opts {
		opt(&o)
	}
	q, err := rego.New(
		rego.Query(accessQuery),
		rego.Module("storeguard_access.rego", o.policy),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile access policy: %w", err)
	}
	return &OPAResolver{assignments: src, query: q}, nil
}

func (r *OPAResolver) HasAccess(ctx context.Context, userID, storeID string, op role.Operation) (bool, error) {
	if userID == "" || storeID == "" {
		return false, nil
	}
	a, err := r.assignments.GetAssignment(ctx, userID, storeID)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	input := map[string]interface{}{
		"operation": op.String(),
		"assignment": map[string]interface{}{
			"kind":      string(a.Kind),
			"can_read":  a.Permissions.Read,
			"can_write": a.Permissions.Write,
		},
	}
	rs, err := r.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval access policy: %w", err)
	}
	return rs.Allowed(), nil
}
