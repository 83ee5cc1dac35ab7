// Package routegroups registers the session-guarded API route families.
// Every MethodFunc here goes through a session guard plus a permission
// check; a test walks this package to enforce that.
package routegroups

import "net/http"

type Guards struct {
	WithSession          func(http.HandlerFunc) http.HandlerFunc
	RequirePermission    func(string) func(http.HandlerFunc) http.HandlerFunc
	RequireAnyPermission func(...string) func(http.HandlerFunc) http.HandlerFunc
}

func (g Guards) SessionPerm(perm string, h http.HandlerFunc) http.HandlerFunc {
	return g.WithSession(g.RequirePermission(perm)(h))
}

func (g Guards) SessionAnyPerm(h http.HandlerFunc, perms ...string) http.HandlerFunc {
	return g.WithSession(g.RequireAnyPermission(perms...)(h))
}
