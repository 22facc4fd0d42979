package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redroomsim/redroomsim-go/internal/domain"
)

type LoginLogStore struct {
	db DB
}

const (
	insertLoginLogQuery = `INSERT INTO user_login_logs (
		uid,
		email,
		role,
		event,
		ip_address,
		occurred_at
	) VALUES ($1,$2,$3,$4,$5,$6)`

	listLoginLogsQuery = `SELECT uid, email, role, event, ip_address, occurred_at
	 FROM user_login_logs
	 ORDER BY occurred_at DESC
	 LIMIT $1`
)

func NewLoginLogStore(db DB) *LoginLogStore {
	if db == nil {
		return nil
	}
	return &LoginLogStore{db: db}
}

func (s *LoginLogStore) Insert(ctx context.Context, event domain.LoginEvent) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("login log store not initialized")
	}
	if err := event.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertLoginLogQuery,
		nullString(event.UID),
		event.Email,
		nullString(event.Role),
		event.Event,
		nullString(event.IPAddress),
		normalizeTime(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert login log: %w", err)
	}
	return nil
}

func (s *LoginLogStore) ListRecent(ctx context.Context, limit int) ([]domain.LoginEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("login log store not initialized")
	}
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, listLoginLogsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("list login logs: %w", err)
	}
	defer rows.Close()

	events := make([]domain.LoginEvent, 0, limit)
	for rows.Next() {
		var event domain.LoginEvent
		var uid, role, ip sql.NullString
		if err := rows.Scan(&uid, &event.Email, &role, &event.Event, &ip, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan login log: %w", err)
		}
		event.UID = uid.String
		event.Role = role.String
		event.IPAddress = ip.String
		event.Timestamp = event.Timestamp.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan login logs: %w", err)
	}
	return events, nil
}
