package clinic

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mlnyx/algo-dental/pkg/common/logger"
	"github.com/mlnyx/algo-dental/pkg/common/models"
)

type Handler struct {
	chairs  *ChairService
	queue   *QueueService
	stats   *StatsService
	history *HistoryService
}

func NewHandler(chairs *ChairService, queue *QueueService, stats *StatsService, history *HistoryService) *Handler {
	return &Handler{chairs: chairs, queue: queue, stats: stats, history: history}
}

// Register mounts the dashboard API on r, normally the /api subrouter.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/chairs", h.handleListChairs).Methods(http.MethodGet)
	r.HandleFunc("/chairs/{id}", h.handleUpdateChair).Methods(http.MethodPost)
	r.HandleFunc("/chairs/{id}/events", h.handleChairEvents).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/queue", h.handleListQueue).Methods(http.MethodGet)
	r.HandleFunc("/queue", h.handleEnqueue).Methods(http.MethodPost)
	r.HandleFunc("/queue/{id}", h.handleRemoveFromQueue).Methods(http.MethodDelete)
	r.HandleFunc("/history", h.handleHistory).Methods(http.MethodGet)
}

func (h *Handler) handleListChairs(w http.ResponseWriter, r *http.Request) {
	chairs, err := h.chairs.List(r.Context())
	if err != nil {
		h.fail(w, err, "list chairs")
		return
	}
	writeJSON(w, http.StatusOK, chairs)
}

func (h *Handler) handleUpdateChair(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid chair id")
		return
	}
	var req models.ChairUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request")
		return
	}
	chair, err := h.chairs.Update(r.Context(), id, req)
	if err != nil {
		h.fail(w, err, "update chair")
		return
	}
	writeJSON(w, http.StatusOK, chair)
}

func (h *Handler) handleChairEvents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid chair id")
		return
	}
	events, err := h.history.ChairEvents(r.Context(), id, parseLimit(r, 0))
	if err != nil {
		h.fail(w, err, "list chair events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Compute(r.Context())
	if err != nil {
		h.fail(w, err, "compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleListQueue(w http.ResponseWriter, r *http.Request) {
	patients, err := h.queue.List(r.Context())
	if err != nil {
		h.fail(w, err, "list queue")
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req models.PatientCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request")
		return
	}
	patient, err := h.queue.Enqueue(r.Context(), req)
	if err != nil {
		h.fail(w, err, "enqueue patient")
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *Handler) handleRemoveFromQueue(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid patient id")
		return
	}
	if err := h.queue.Remove(r.Context(), id); err != nil {
		h.fail(w, err, "remove patient")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.history.Recent(r.Context(), parseLimit(r, 0))
	if err != nil {
		h.fail(w, err, "list history")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) fail(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ErrChairNotFound):
		writeDetail(w, http.StatusNotFound, "Chair not found")
	case errors.Is(err, ErrPatientNotFound):
		writeDetail(w, http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrChairBusy):
		writeDetail(w, http.StatusConflict, "Chair is being updated, retry shortly")
	default:
		logger.Log.WithError(err).Error("failed to " + op)
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
