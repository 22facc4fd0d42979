package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redroomsim/redroomsim-go/internal/platform/auditlog"
	"github.com/redroomsim/redroomsim-go/internal/repo"
)

type auditAPI struct {
	logger *slog.Logger
	q      auditlog.QueryRower
	store  repo.AuditLogRepository
	now    func() time.Time
}

func newAuditAPI(logger *slog.Logger, q auditlog.QueryRower, store repo.AuditLogRepository) *auditAPI {
	return &auditAPI{logger: logger, q: q, store: store, now: time.Now}
}

func (api *auditAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /audit/log", api.handleLog)
	mux.HandleFunc("GET /audit/logs", api.handleList)
	mux.HandleFunc("GET /audit/export", api.handleExport)
}

type auditLogRequest struct {
	Action  string `json:"action"`
	Details string `json:"details,omitempty"`
	Screen  string `json:"screen,omitempty"`
}

// handleLog is the durable variant: unlike the fire-and-forget recorder used
// by the other routes, a failed insert here is reported to the caller.
func (api *auditAPI) handleLog(w http.ResponseWriter, r *http.Request) {
	var req auditLogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		writeError(w, r, http.StatusBadRequest, "action_required")
		return
	}

	identity := identityFrom(r)
	screen := req.Screen
	if strings.TrimSpace(screen) == "" {
		screen = screenFrom(r)
	}

	id, err := auditlog.Insert(r.Context(), api.q, auditlog.Event{
		OccurredAt: api.now().UTC(),
		Actor:      identity.Actor(),
		Action:     req.Action,
		Details:    req.Details,
		Screen:     screen,
		RequestID:  r.Header.Get("X-Request-Id"),
		IP:         requestIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		api.logger.Error("insert audit log failed", "action", req.Action, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (api *auditAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, "trainer") {
		return
	}

	filter, err := auditFilterFrom(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_date")
		return
	}
	filter.Limit = clampInt(parseIntQuery(r, "limit", 200), 1, 1000)

	records, err := api.store.List(r.Context(), filter)
	if err != nil {
		api.logger.Error("list audit logs failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	logs := make([]auditRecordResponse, 0, len(records))
	for _, record := range records {
		logs = append(logs, auditRecordResponse{
			ID:         record.ID,
			OccurredAt: record.OccurredAt,
			Actor:      record.Actor,
			Action:     record.Action,
			Details:    record.Details,
			Screen:     record.Screen,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// handleExport streams the filtered trail as CSV. The exported content is
// the same read model the list route serves.
func (api *auditAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, "trainer") {
		return
	}

	filter, err := auditFilterFrom(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_date")
		return
	}

	records, err := api.store.List(r.Context(), filter)
	if err != nil {
		api.logger.Error("export audit logs failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	filename := fmt.Sprintf("audit_logs_%s.csv", api.now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "occurred_at", "actor", "action", "details", "screen"})
	for _, record := range records {
		_ = cw.Write([]string{
			strconv.FormatInt(record.ID, 10),
			record.OccurredAt.UTC().Format(time.RFC3339),
			record.Actor,
			record.Action,
			record.Details,
			record.Screen,
		})
	}
	cw.Flush()
}

func auditFilterFrom(r *http.Request) (repo.AuditFilter, error) {
	start, err := parseDateQuery(r, "start_date")
	if err != nil {
		return repo.AuditFilter{}, err
	}
	end, err := parseDateQuery(r, "end_date")
	if err != nil {
		return repo.AuditFilter{}, err
	}
	// an end date without a time component means "through that whole day"
	if end != nil && end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0 {
		through := end.Add(24*time.Hour - time.Nanosecond)
		end = &through
	}
	return repo.AuditFilter{
		Actor:   strings.TrimSpace(r.URL.Query().Get("actor")),
		Action:  strings.TrimSpace(r.URL.Query().Get("action")),
		Details: strings.TrimSpace(r.URL.Query().Get("details")),
		Screen:  strings.TrimSpace(r.URL.Query().Get("screen")),
		Start:   start,
		End:     end,
	}, nil
}

type auditRecordResponse struct {
	ID         int64     `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Details    string    `json:"details,omitempty"`
	Screen     string    `json:"screen,omitempty"`
}
