// Package engine derives the permission set for a session's roles using
// OPA Rego, so permission logic stays declarative instead of leaking
// into handlers.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const permissionsQuery = "data.isp.access.permissions"

const accessPolicy = `package isp.access

default permissions := []

role_permissions := {
	"plan-free": {"sessions:read", "settings:read"},
	"plan-pro": {"sessions:read", "settings:read", "settings:write", "reports:export"},
	"admin": {"sessions:read", "sessions:revoke", "settings:read", "settings:write", "users:manage", "reports:export"},
}

permissions := {p |
	some role in input.roles
	some p in role_permissions[role]
} if {
	count(input.roles) > 0
}
`

// Evaluator answers which permissions a set of realm roles grants. The
// policy is compiled once at construction; roles outside the table
// simply contribute nothing.
type Evaluator struct {
	compiler *ast.Compiler
}

func NewEvaluator() (*Evaluator, error) {
	compiler, err := ast.CompileModules(map[string]string{"access.rego": accessPolicy})
	if err != nil {
		return nil, fmt.Errorf("compile access policy: %w", err)
	}
	return &Evaluator{compiler: compiler}, nil
}

// Permissions evaluates the access policy for the given roles and
// returns the granted permissions sorted.
func (e *Evaluator) Permissions(ctx context.Context, roles []string) ([]string, error) {
	if roles == nil {
		roles = []string{}
	}
	q := rego.New(
		rego.Query(permissionsQuery),
		rego.Compiler(e.compiler),
		rego.Input(map[string]interface{}{"roles": roles}),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("eval access policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return nil, fmt.Errorf("access policy query returned no result")
	}

	raw, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("access policy returned unexpected type %T", rs[0].Expressions[0].Value)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

// HealthCheck verifies the in-process Rego engine can evaluate the
// compiled policy. Returns nil on success.
func (e *Evaluator) HealthCheck(ctx context.Context) error {
	_, err := e.Permissions(ctx, []string{"plan-free"})
	return err
}
