// Package auditlog persists the append-only audit trail: who did what, from
// where, and on which screen of the training UI.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

type Event struct {
	OccurredAt time.Time
	Actor      string
	Action     string
	Details    string
	Screen     string
	RequestID  string
	IP         net.IP
	UserAgent  string
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.Action) == "" {
		return errors.New("Action is required")
	}
	return nil
}

func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	actor := strings.TrimSpace(event.Actor)
	if actor == "" {
		actor = "anonymous"
	}
	screen := NormalizeScreen(event.Screen)

	integrity, err := ComputeIntegritySHA256(event)
	if err != nil {
		return 0, err
	}

	ipStr := strings.TrimSpace(event.IP.String())
	var ip sql.NullString
	if ipStr != "" && ipStr != "<nil>" {
		ip = sql.NullString{String: ipStr, Valid: true}
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO audit_logs (
			occurred_at,
			actor,
			action,
			details,
			screen,
			request_id,
			ip,
			user_agent,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING audit_id`,
		event.OccurredAt.UTC(),
		actor,
		strings.TrimSpace(event.Action),
		nullIfBlank(event.Details),
		nullIfBlank(screen),
		nullIfBlank(event.RequestID),
		ip,
		nullIfBlank(event.UserAgent),
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit log: %w", err)
	}
	return id, nil
}

// NormalizeScreen reduces a referer-style value to a bare UI path. Full URLs
// keep only their path; a root path carries no information and is dropped.
func NormalizeScreen(screen string) string {
	screen = strings.TrimSpace(screen)
	if screen == "" {
		return ""
	}
	parsed, err := url.Parse(screen)
	if err != nil {
		return screen
	}
	if parsed.Scheme != "" && parsed.Host != "" {
		if parsed.Path != "" && parsed.Path != "/" {
			return parsed.Path
		}
		return ""
	}
	return screen
}

func ComputeIntegritySHA256(event Event) (string, error) {
	type integrityInput struct {
		OccurredAt time.Time `json:"occurred_at"`
		Actor      string    `json:"actor"`
		Action     string    `json:"action"`
		Details    string    `json:"details,omitempty"`
		Screen     string    `json:"screen,omitempty"`
		RequestID  string    `json:"request_id,omitempty"`
		IP         string    `json:"ip,omitempty"`
		UserAgent  string    `json:"user_agent,omitempty"`
	}

	ipStr := strings.TrimSpace(event.IP.String())
	if ipStr == "<nil>" {
		ipStr = ""
	}

	blob, err := json.Marshal(integrityInput{
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      strings.TrimSpace(event.Actor),
		Action:     strings.TrimSpace(event.Action),
		Details:    strings.TrimSpace(event.Details),
		Screen:     NormalizeScreen(event.Screen),
		RequestID:  strings.TrimSpace(event.RequestID),
		IP:         ipStr,
		UserAgent:  strings.TrimSpace(event.UserAgent),
	})
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

func nullIfBlank(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
