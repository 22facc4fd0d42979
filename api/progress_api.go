package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redroomsim/redroomsim-go/internal/domain"
	"github.com/redroomsim/redroomsim-go/internal/repo"
	"github.com/redroomsim/redroomsim-go/internal/service/progress"
)

type progressAPI struct {
	logger  *slog.Logger
	service *progress.Service
}

func newProgressAPI(logger *slog.Logger, service *progress.Service) *progressAPI {
	return &progressAPI{logger: logger, service: service}
}

func (api *progressAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /progress/save", api.handleSave)
	mux.HandleFunc("POST /progress/step", api.handleStep)
	mux.HandleFunc("GET /progress/detail/{username}/{simulation_id}", api.handleDetail)
	mux.HandleFunc("GET /progress/timeline/{simulation_id}", api.handleTimeline)
	mux.HandleFunc("GET /progress/user/{username}", api.handleListByUser)
	mux.HandleFunc("GET /progress/all", api.handleListAll)
}

type saveRequest struct {
	SimUUID    string `json:"sim_uuid,omitempty"`
	ScenarioID string `json:"scenario_id"`
	Name       string `json:"name"`
	Username   string `json:"username"`
	Score      *int   `json:"score,omitempty"`
	Completed  *bool  `json:"completed,omitempty"`
}

func (api *progressAPI) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.SimUUID) == "" {
		if strings.TrimSpace(req.ScenarioID) == "" {
			writeError(w, r, http.StatusBadRequest, "scenario_id_required")
			return
		}
		if strings.TrimSpace(req.Username) == "" {
			writeError(w, r, http.StatusBadRequest, "username_required")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "name_required")
			return
		}
	}

	id, err := api.service.Save(r.Context(), progress.SaveInput{
		RunID:       strings.TrimSpace(req.SimUUID),
		ScenarioID:  strings.TrimSpace(req.ScenarioID),
		DisplayName: strings.TrimSpace(req.Name),
		Username:    strings.TrimSpace(req.Username),
		Score:       req.Score,
		Completed:   req.Completed,
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "simulation_not_found")
			return
		}
		api.logger.Error("save progress failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"simulation_id": id})
}

type stepRequest struct {
	SimUUID   string `json:"sim_uuid"`
	StepIndex int    `json:"step_index"`
	Decision  string `json:"decision"`
	Feedback  string `json:"feedback,omitempty"`
	TimeMs    *int64 `json:"time_ms,omitempty"`
}

func (api *progressAPI) handleStep(w http.ResponseWriter, r *http.Request) {
	var req stepRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(req.SimUUID) == "" {
		writeError(w, r, http.StatusBadRequest, "sim_uuid_required")
		return
	}
	if strings.TrimSpace(req.Decision) == "" {
		writeError(w, r, http.StatusBadRequest, "decision_required")
		return
	}

	if _, err := api.service.RecordStep(r.Context(), progress.StepInput{
		RunID:     strings.TrimSpace(req.SimUUID),
		StepIndex: req.StepIndex,
		Decision:  req.Decision,
		Feedback:  req.Feedback,
		TimeMs:    req.TimeMs,
	}); err != nil {
		api.logger.Error("record step failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "saved"})
}

func (api *progressAPI) handleDetail(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PathValue("username"))
	runID := strings.TrimSpace(r.PathValue("simulation_id"))
	if username == "" || runID == "" {
		writeError(w, r, http.StatusBadRequest, "username_and_simulation_id_required")
		return
	}

	run, err := api.service.Detail(r.Context(), username, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "simulation_not_found")
			return
		}
		api.logger.Error("progress detail failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, runResponseFrom(run))
}

func (api *progressAPI) handleTimeline(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("simulation_id"))
	if runID == "" {
		writeError(w, r, http.StatusBadRequest, "simulation_id_required")
		return
	}

	events, err := api.service.Timeline(r.Context(), runID)
	if err != nil {
		api.logger.Error("progress timeline failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	timeline := make([]stepEventResponse, 0, len(events))
	for _, event := range events {
		timeline = append(timeline, stepEventResponseFrom(event))
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": timeline})
}

func (api *progressAPI) handleListByUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.PathValue("username"))
	if username == "" {
		writeError(w, r, http.StatusBadRequest, "username_required")
		return
	}

	runs, err := api.service.ListByUser(r.Context(), username)
	if err != nil {
		api.logger.Error("list user progress failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runResponsesFrom(runs)})
}

func (api *progressAPI) handleListAll(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, "trainer") {
		return
	}

	limit := clampInt(parseIntQuery(r, "limit", 200), 1, 1000)
	runs, err := api.service.ListAll(r.Context(), repo.RunFilter{
		Username: strings.TrimSpace(r.URL.Query().Get("username")),
		Limit:    limit,
	})
	if err != nil {
		api.logger.Error("list all progress failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runResponsesFrom(runs)})
}

type runResponse struct {
	SimulationID string    `json:"simulation_id"`
	ScenarioID   string    `json:"scenario_id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Score        *int      `json:"score"`
	Completed    *bool     `json:"completed"`
	CreatedAt    time.Time `json:"created_at"`
}

func runResponseFrom(run domain.SimulationRun) runResponse {
	return runResponse{
		SimulationID: run.RunID,
		ScenarioID:   run.ScenarioID,
		Name:         run.DisplayName,
		Username:     run.Username,
		Score:        run.Score,
		Completed:    run.Completed,
		CreatedAt:    run.CreatedAt,
	}
}

func runResponsesFrom(runs []domain.SimulationRun) []runResponse {
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponseFrom(run))
	}
	return out
}

type stepEventResponse struct {
	Sequence  int64     `json:"sequence"`
	StepIndex int       `json:"step_index"`
	Decision  string    `json:"decision"`
	Feedback  string    `json:"feedback,omitempty"`
	TimeMs    int64     `json:"time_ms"`
	CreatedAt time.Time `json:"created_at"`
}

func stepEventResponseFrom(event domain.StepEvent) stepEventResponse {
	return stepEventResponse{
		Sequence:  event.Sequence,
		StepIndex: event.StepIndex,
		Decision:  event.Decision,
		Feedback:  event.Feedback,
		TimeMs:    event.TimeMs,
		CreatedAt: event.CreatedAt,
	}
}
