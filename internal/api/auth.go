// Package api implements HTTP handlers and helpers for the routing service.
package api

import "net/http"

type Principal struct {
	Role string // admin, operator, viewer
}

// getPrincipal reads the caller's role from headers. The service runs behind
// a gateway that authenticates and stamps X-Role; absent that, dev default
// is admin.
func (s *Server) getPrincipal(r *http.Request) Principal {
	role := r.Header.Get("X-Role")
	if role == "" {
		role = "admin"
	}
	return Principal{Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanSolve reports whether the principal may launch or stop solves.
func (p Principal) CanSolve() bool { return p.Role == "admin" || p.Role == "operator" }
