package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/redroomsim/redroomsim-go/internal/repo"
)

// AuditLogStore reads the trail written through platform/auditlog. Writes go
// through auditlog.Insert so every row carries an integrity hash.
type AuditLogStore struct {
	db DB
}

func NewAuditLogStore(db DB) *AuditLogStore {
	if db == nil {
		return nil
	}
	return &AuditLogStore{db: db}
}

func (s *AuditLogStore) List(ctx context.Context, filter repo.AuditFilter) ([]repo.AuditRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit log store not initialized")
	}

	where := make([]string, 0, 6)
	args := make([]any, 0, 7)

	if actor := strings.TrimSpace(filter.Actor); actor != "" {
		args = append(args, "%"+actor+"%")
		where = append(where, "actor ILIKE $"+strconv.Itoa(len(args)))
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		args = append(args, "%"+action+"%")
		where = append(where, "action ILIKE $"+strconv.Itoa(len(args)))
	}
	if details := strings.TrimSpace(filter.Details); details != "" {
		args = append(args, "%"+details+"%")
		where = append(where, "details ILIKE $"+strconv.Itoa(len(args)))
	}
	if screen := strings.TrimSpace(filter.Screen); screen != "" {
		args = append(args, "%"+screen+"%")
		where = append(where, "screen ILIKE $"+strconv.Itoa(len(args)))
	}
	if filter.Start != nil {
		args = append(args, filter.Start.UTC())
		where = append(where, "occurred_at >= $"+strconv.Itoa(len(args)))
	}
	if filter.End != nil {
		args = append(args, filter.End.UTC())
		where = append(where, "occurred_at <= $"+strconv.Itoa(len(args)))
	}

	query := `SELECT audit_id, occurred_at, actor, action, details, screen
	 FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	records := make([]repo.AuditRecord, 0)
	for rows.Next() {
		var record repo.AuditRecord
		var details, screen sql.NullString
		if err := rows.Scan(&record.ID, &record.OccurredAt, &record.Actor, &record.Action, &details, &screen); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		record.Details = details.String
		record.Screen = screen.String
		record.OccurredAt = record.OccurredAt.UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan audit logs: %w", err)
	}
	return records, nil
}
