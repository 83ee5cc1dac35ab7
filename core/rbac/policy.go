package rbac

import (
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

type Role struct {
	Name        string
	Inherits    []string
	Permissions []Permission
}

const policyModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.act == p.act
`

// Policy answers "may any of these roles perform this action". It wraps a
// synced casbin enforcer so the API middleware can consult it concurrently.
type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

func NewPolicy(roles []Role) *Policy {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		panic("rbac: invalid model: " + err.Error())
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		panic("rbac: enforcer: " + err.Error())
	}
	for _, role := range roles {
		name := strings.TrimSpace(role.Name)
		if name == "" {
			continue
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				continue
			}
			_, _ = e.AddPolicy(name, string(perm))
		}
		for _, parent := range role.Inherits {
			parent = strings.TrimSpace(parent)
			if parent == "" {
				continue
			}
			_, _ = e.AddGroupingPolicy(name, parent)
		}
	}
	return &Policy{enforcer: e}
}

func (p *Policy) Allowed(roles []string, perm Permission) bool {
	if p == nil || p.enforcer == nil || perm == "" {
		return false
	}
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		ok, err := p.enforcer.Enforce(role, string(perm))
		if err == nil && ok {
			return true
		}
	}
	return false
}

// PermissionsFor lists every permission the roles carry, inherited ones
// included, sorted for stable JSON output.
func (p *Policy) PermissionsFor(roles []string) []string {
	if p == nil || p.enforcer == nil {
		return nil
	}
	seen := map[string]struct{}{}
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		rules, err := p.enforcer.GetImplicitPermissionsForUser(role)
		if err != nil {
			continue
		}
		for _, rule := range rules {
			if len(rule) >= 2 && rule[1] != "" {
				seen[rule[1]] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for perm := range seen {
		out = append(out, perm)
	}
	sort.Strings(out)
	return out
}

// Default builds a policy from the built-in role matrix.
func Default() *Policy {
	return NewPolicy(DefaultRoles())
}

// DefaultRoles is the built-in role matrix. Admins additionally inherit
// every member permission through the grouping policy.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:     "admin",
			Inherits: []string{"member"},
			Permissions: []Permission{
				"org.manage",
				"accounts.manage",
				"reviewees.manage",
				"questionnaires.manage",
				"cycles.manage",
				"reports.generate",
				"api_tokens.manage",
				"webhooks.manage",
				"billing.manage",
			},
		},
		{
			Name: "member",
			Permissions: []Permission{
				"reviewees.view",
				"questionnaires.view",
				"cycles.view",
				"reports.view",
			},
		},
	}
}
