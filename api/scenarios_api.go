package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redroomsim/redroomsim-go/internal/platform/auditlog"
	"github.com/redroomsim/redroomsim-go/internal/service/scenarios"
)

type scenariosAPI struct {
	logger   *slog.Logger
	service  *scenarios.Service
	recorder *auditlog.Recorder
}

func newScenariosAPI(logger *slog.Logger, service *scenarios.Service, recorder *auditlog.Recorder) *scenariosAPI {
	return &scenariosAPI{logger: logger, service: service, recorder: recorder}
}

func (api *scenariosAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /sim/list", api.handleList)
	mux.HandleFunc("GET /sim/{scenario_id}", api.handleGet)
	mux.HandleFunc("POST /sim/upload", api.handleUpload)
	mux.HandleFunc("DELETE /sim/{scenario_id}", api.handleDelete)
}

func (api *scenariosAPI) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := api.service.List(r.Context())
	if err != nil {
		api.logger.Error("list scenarios failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": summaries})
}

func (api *scenariosAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	scenarioID := strings.TrimSpace(r.PathValue("scenario_id"))
	if scenarioID == "" {
		writeError(w, r, http.StatusBadRequest, "scenario_id_required")
		return
	}

	scenario, err := api.service.Get(r.Context(), scenarioID)
	if err != nil {
		if errors.Is(err, scenarios.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "scenario_not_found")
			return
		}
		api.logger.Error("get scenario failed", "scenario_id", scenarioID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, scenario)
}

// handleUpload accepts multipart form uploads under the "file" field.
func (api *scenariosAPI) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, "admin") {
		return
	}

	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_multipart")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	scenario, err := api.service.Upload(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, scenarios.ErrBadDocument) {
			writeError(w, r, http.StatusUnprocessableEntity, "invalid_scenario")
			return
		}
		api.logger.Error("upload scenario failed", "filename", header.Filename, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	identity := identityFrom(r)
	_ = api.recorder.Record(r.Context(), auditlog.Event{
		OccurredAt: time.Now().UTC(),
		Actor:      identity.Actor(),
		Action:     "scenario_upload",
		Details:    fmt.Sprintf("uploaded scenario %s", scenario.ScenarioID),
		Screen:     screenFrom(r),
		RequestID:  r.Header.Get("X-Request-Id"),
		IP:         requestIP(r),
		UserAgent:  r.UserAgent(),
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":      "uploaded",
		"scenario_id": scenario.ScenarioID,
	})
}

func (api *scenariosAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, "admin") {
		return
	}

	scenarioID := strings.TrimSpace(r.PathValue("scenario_id"))
	if scenarioID == "" {
		writeError(w, r, http.StatusBadRequest, "scenario_id_required")
		return
	}

	if err := api.service.Delete(r.Context(), scenarioID); err != nil {
		if errors.Is(err, scenarios.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "scenario_not_found")
			return
		}
		api.logger.Error("delete scenario failed", "scenario_id", scenarioID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	identity := identityFrom(r)
	_ = api.recorder.Record(r.Context(), auditlog.Event{
		OccurredAt: time.Now().UTC(),
		Actor:      identity.Actor(),
		Action:     "scenario_delete",
		Details:    fmt.Sprintf("deleted scenario %s", scenarioID),
		Screen:     screenFrom(r),
		RequestID:  r.Header.Get("X-Request-Id"),
		IP:         requestIP(r),
		UserAgent:  r.UserAgent(),
	})

	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}
