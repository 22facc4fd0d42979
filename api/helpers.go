package main

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redroomsim/redroomsim-go/internal/platform/auth"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return errors.New("multiple JSON values")
	}
	return nil
}

// requireRole enforces the minimum role for a route and writes the refusal
// itself; callers just return when it reports false.
func requireRole(w http.ResponseWriter, r *http.Request, required string) bool {
	identity, _ := auth.IdentityFromContext(r.Context())
	if auth.HasAtLeast(identity.Roles, required) {
		return true
	}
	writeError(w, r, http.StatusForbidden, "forbidden")
	return false
}

func identityFrom(r *http.Request) auth.Identity {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return auth.FromHeaders(r)
	}
	return identity
}

func requestIP(r *http.Request) net.IP {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(strings.TrimSpace(r.RemoteAddr))
	}
	return net.ParseIP(host)
}

// screenFrom prefers the explicit X-Screen header the UI sends and falls
// back to the referer.
func screenFrom(r *http.Request) string {
	if screen := strings.TrimSpace(r.Header.Get("X-Screen")); screen != "" {
		return screen
	}
	return strings.TrimSpace(r.Header.Get("Referer"))
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// parseDateQuery accepts a calendar date or a full RFC 3339 timestamp.
func parseDateQuery(r *http.Request, key string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
