package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redroomsim/redroomsim-go/internal/domain"
	"github.com/redroomsim/redroomsim-go/internal/platform/auditlog"
	"github.com/redroomsim/redroomsim-go/internal/repo"
)

type logsAPI struct {
	logger   *slog.Logger
	store    repo.LoginLogRepository
	recorder *auditlog.Recorder
	now      func() time.Time
}

func newLogsAPI(logger *slog.Logger, store repo.LoginLogRepository, recorder *auditlog.Recorder) *logsAPI {
	return &logsAPI{logger: logger, store: store, recorder: recorder, now: time.Now}
}

func (api *logsAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /logs/login", api.handleEvent(domain.LoginEventLogin))
	mux.HandleFunc("POST /logs/logout", api.handleEvent(domain.LoginEventLogout))
	mux.HandleFunc("POST /logs/failed-login", api.handleEvent(domain.LoginEventFailedLogin))
	mux.HandleFunc("POST /logs/password-change", api.handleEvent(domain.LoginEventPasswordChange))
	mux.HandleFunc("GET /logs/activity", api.handleActivity)
}

type loginEventRequest struct {
	UID   string `json:"uid,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (api *logsAPI) handleEvent(eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginEventRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		ip := requestIP(r)
		event := domain.LoginEvent{
			UID:       strings.TrimSpace(req.UID),
			Email:     strings.TrimSpace(req.Email),
			Role:      strings.TrimSpace(req.Role),
			Event:     eventType,
			Timestamp: api.now().UTC(),
		}
		if ip != nil {
			event.IPAddress = ip.String()
		}
		if err := event.Validate(); err != nil {
			writeError(w, r, http.StatusBadRequest, "email_required")
			return
		}

		if err := api.store.Insert(r.Context(), event); err != nil {
			api.logger.Error("insert login event failed", "event", eventType, "error", err)
			writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}

		// best effort; a failed audit insert never fails the login log
		_ = api.recorder.Record(r.Context(), auditlog.Event{
			OccurredAt: event.Timestamp,
			Actor:      event.Email,
			Action:     eventType,
			Details:    fmt.Sprintf("%s event for role %s", eventType, valueOr(event.Role, "unknown")),
			Screen:     screenFrom(r),
			RequestID:  r.Header.Get("X-Request-Id"),
			IP:         ip,
			UserAgent:  r.UserAgent(),
		})

		writeJSON(w, http.StatusOK, map[string]any{"status": "logged"})
	}
}

func (api *logsAPI) handleActivity(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, "trainer") {
		return
	}

	limit := clampInt(parseIntQuery(r, "limit", 100), 1, 1000)
	events, err := api.store.ListRecent(r.Context(), limit)
	if err != nil {
		api.logger.Error("list login events failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	logs := make([]loginEventResponse, 0, len(events))
	for _, event := range events {
		logs = append(logs, loginEventResponse{
			UID:       event.UID,
			Email:     event.Email,
			Role:      event.Role,
			Event:     event.Event,
			IPAddress: event.IPAddress,
			Timestamp: event.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

type loginEventResponse struct {
	UID       string    `json:"uid,omitempty"`
	Email     string    `json:"email"`
	Role      string    `json:"role,omitempty"`
	Event     string    `json:"event"`
	IPAddress string    `json:"ip_address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func valueOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
