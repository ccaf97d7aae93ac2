package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tiptoro/gateway/pipeline"
	"github.com/tiptoro/gateway/pkg/handlers"
)

var errInvalidTaskID = errors.New("invalid task id")

// Handler provides HTTP endpoints for gateway operations.
type Handler struct {
	sys    System
	logger *slog.Logger
}

// NewHandler creates a Handler with the given system and logger.
func NewHandler(sys System, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		logger: logger.With("handler", "gateway"),
	}
}

// Mount registers the gateway routes on mux.
func (h *Handler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tasks", h.Submit)
	mux.HandleFunc("GET /api/tasks/{id}", h.Find)
	mux.HandleFunc("POST /api/tasks/{id}/confirm", h.Confirm)
	mux.HandleFunc("POST /api/reports", h.Report)
}

// Submit accepts a mistake photo submission and returns the task context
// after the pipeline has run as far as it can.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var cmd SubmitCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	tc, err := h.sys.Submit(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, haltedStatus(http.StatusCreated, tc), tc)
}

// haltedStatus downgrades the success status to 502 when the pipeline
// halted on a capability failure; the body still carries the full
// context so the caller can inspect the recorded error.
func haltedStatus(ok int, tc *pipeline.Context) int {
	if tc.Status == pipeline.StatusFailed {
		return http.StatusBadGateway
	}
	return ok
}

// Find returns the current snapshot of a task.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidTaskID)
		return
	}

	tc, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, tc)
}

// Confirm applies verified text to a suspended task and resumes the
// pipeline. An empty body resumes with the raw OCR text as-is.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, errInvalidTaskID)
		return
	}

	var cmd ConfirmCommand
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
			return
		}
	}

	tc, err := h.sys.Confirm(r.Context(), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, haltedStatus(http.StatusOK, tc), tc)
}

// Report runs the study report pipeline for a student and returns the
// finished task context.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	var cmd ReportCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	tc, err := h.sys.Report(r.Context(), cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, haltedStatus(http.StatusOK, tc), tc)
}
