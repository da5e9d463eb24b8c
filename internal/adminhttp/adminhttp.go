// Copyright 2025 James Ross

// Package adminhttp exposes a small gorilla/mux-routed HTTP surface for
// inspecting a Backend's queues and browsing, replaying, or deleting
// error-queue entries. It is deliberately narrow: no auth, no rate
// limiting, no audit log — just the operations this module's Backend
// abstraction actually supports.
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/thieman/deferrable/internal/backend"
	"go.uber.org/zap"
)

// Handler holds the dependencies the admin routes need.
type Handler struct {
	backend *backend.Backend
	log     *zap.Logger
}

// NewRouter builds a mux.Router serving the admin surface rooted at "/admin".
func NewRouter(b *backend.Backend, log *zap.Logger) *mux.Router {
	h := &Handler{backend: b, log: log}
	r := mux.NewRouter()
	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/stats", h.getStats).Methods(http.MethodGet)
	admin.HandleFunc("/errors", h.listErrors).Methods(http.MethodGet)
	admin.HandleFunc("/errors/{id}", h.getError).Methods(http.MethodGet)
	admin.HandleFunc("/errors/{id}", h.deleteError).Methods(http.MethodDelete)
	admin.HandleFunc("/errors/{id}/replay", h.replayError).Methods(http.MethodPost)
	return r
}

type statsResponse struct {
	Group      string          `json:"group"`
	Queue      backend.Stats   `json:"queue"`
	ErrorQueue backend.Stats   `json:"error_queue"`
	SampledAt  time.Time       `json:"sampled_at"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	qStats, err := h.backend.Queue.Stats(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read queue stats", err)
		return
	}
	eStats, err := h.backend.ErrorQueue.Stats(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read error queue stats", err)
		return
	}
	h.writeJSON(w, http.StatusOK, statsResponse{
		Group:      h.backend.Group,
		Queue:      qStats,
		ErrorQueue: eStats,
		SampledAt:  time.Now(),
	})
}

func (h *Handler) listErrors(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	entries, err := h.backend.ErrorQueue.List(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list error queue", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) getError(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	it, err := h.backend.ErrorQueue.GetByID(ctx, id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read error entry", err)
		return
	}
	if it == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, it)
}

func (h *Handler) deleteError(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.backend.ErrorQueue.DeleteByID(ctx, id); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to delete error entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// replayError pops the entry from the error queue, clears its error state
// and attempt count, and pushes it back onto the primary queue as if it
// were never retried.
func (h *Handler) replayError(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	it, err := h.backend.ErrorQueue.GetByID(ctx, id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read error entry", err)
		return
	}
	if it == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	it.Error = nil
	it.Attempts = 0
	it.Delay = 0
	it.HasDelay = false

	if err := h.backend.Queue.Push(ctx, it); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to requeue item", err)
		return
	}
	if err := h.backend.ErrorQueue.DeleteByID(ctx, id); err != nil {
		h.log.Warn("replayed item but failed to remove error-queue entry", zap.String("id", id), zap.Error(err))
	}
	h.writeJSON(w, http.StatusOK, it)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string, err error) {
	h.log.Error(message, zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: message})
}
