package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/Triglit/flowgraph/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
)

// authConfig holds credentials loaded from environment variables.
type authConfig struct {
	adminUser  string
	adminPass  string
	editorUser string
	editorPass string
	enabled    bool
}

var auth *authConfig

// InitAuth loads auth credentials from environment variables or files.
// Supports *_FILE convention: if FLOWGRAPH_ADMIN_USER_FILE is set, reads from that file.
// If none are set, authentication is disabled (dev-friendly).
func InitAuth() error {
	creds := make(map[string]string, 4)
	for _, name := range []string{
		"FLOWGRAPH_ADMIN_USER",
		"FLOWGRAPH_ADMIN_PASS",
		"FLOWGRAPH_EDITOR_USER",
		"FLOWGRAPH_EDITOR_PASS",
	} {
		v, err := config.ResolveSecret(name)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		creds[name] = v
	}

	auth = &authConfig{
		adminUser:  creds["FLOWGRAPH_ADMIN_USER"],
		adminPass:  creds["FLOWGRAPH_ADMIN_PASS"],
		editorUser: creds["FLOWGRAPH_EDITOR_USER"],
		editorPass: creds["FLOWGRAPH_EDITOR_PASS"],
		// Auth is enabled only if at least admin credentials are set
		enabled: creds["FLOWGRAPH_ADMIN_USER"] != "" && creds["FLOWGRAPH_ADMIN_PASS"] != "",
	}
	return nil
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authenticate checks basic auth credentials and returns the role if valid.
// Returns empty string if credentials are invalid.
func authenticate(r *http.Request) Role {
	if auth == nil || !auth.enabled {
		return RoleAdmin // No auth configured = full access
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if auth.adminUser != "" && auth.adminPass != "" {
		if secureCompare(user, auth.adminUser) && secureCompare(pass, auth.adminPass) {
			return RoleAdmin
		}
	}

	if auth.editorUser != "" && auth.editorPass != "" {
		if secureCompare(user, auth.editorUser) && secureCompare(pass, auth.editorPass) {
			return RoleEditor
		}
	}

	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="flowgraph"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR editor role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin, RoleEditor)
}

// RequireAdmin wraps a handler requiring admin role only.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleAdmin)
}
