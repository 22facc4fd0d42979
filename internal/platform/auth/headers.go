// Package auth maps the identity asserted by the upstream edge into request
// context. Token verification happens before requests reach this service;
// the headers below arrive pre-validated.
package auth

import (
	"net/http"
	"strings"
)

const (
	HeaderUser  = "X-Redroom-User"
	HeaderEmail = "X-Redroom-Email"
	HeaderRoles = "X-Redroom-Roles"
)

// FromHeaders reads the asserted identity. Requests without identity headers
// are served as anonymous; role checks decide what they may reach.
func FromHeaders(r *http.Request) Identity {
	return Identity{
		Subject: strings.TrimSpace(r.Header.Get(HeaderUser)),
		Email:   strings.TrimSpace(r.Header.Get(HeaderEmail)),
		Roles:   parseCSV(r.Header.Get(HeaderRoles)),
	}
}

// Middleware attaches the asserted identity to every request's context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(ContextWithIdentity(r.Context(), FromHeaders(r)))
		next.ServeHTTP(w, r)
	})
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
