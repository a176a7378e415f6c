package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/luisant/mailcore/internal/domain"
	"github.com/luisant/mailcore/internal/inbound"
	"github.com/luisant/mailcore/internal/scheduler"
	"github.com/luisant/mailcore/internal/store"
)

// SchedulerControl is the slice of the scheduler the API needs.
type SchedulerControl interface {
	RunCycle(ctx context.Context) (int, error)
	Running() bool
	PollInterval() time.Duration
}

// MailboxSyncer runs an on-demand inbound sync for one sender.
type MailboxSyncer interface {
	Sync(ctx context.Context, sender *domain.Sender) inbound.Result
}

// SenderGetter resolves sender IDs for the sync endpoint.
type SenderGetter interface {
	GetSenderByID(ctx context.Context, id string) (*domain.Sender, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	scheduler SchedulerControl
	syncer    MailboxSyncer
	senders   SenderGetter
}

// NewHandlers creates the handler set.
func NewHandlers(sched SchedulerControl, syncer MailboxSyncer, senders SenderGetter) *Handlers {
	return &Handlers{scheduler: sched, syncer: syncer, senders: senders}
}

// HandleSchedulerRun triggers one dispatch cycle immediately.
//
//	POST /api/scheduler/run
func (h *Handlers) HandleSchedulerRun(w http.ResponseWriter, r *http.Request) {
	processed, err := h.scheduler.RunCycle(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleInProgress) {
			respondError(w, http.StatusConflict, "a dispatch cycle is already running")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"processed": processed,
	})
}

// HandleSchedulerStatus reports whether the background loop is running.
//
//	GET /api/scheduler/status
func (h *Handlers) HandleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"running":          h.scheduler.Running(),
		"poll_interval_ms": h.scheduler.PollInterval().Milliseconds(),
	})
}

// HandleSenderSync fetches the sender's mailbox and returns the parsed
// messages. The sync result carries its own success flag; a failed sync is
// still a 200 so the caller can read the error detail from the envelope.
//
//	POST /api/senders/{id}/sync
func (h *Handlers) HandleSenderSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sender, err := h.senders.GetSenderByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSenderNotFound) {
			respondError(w, http.StatusNotFound, "sender not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, h.syncer.Sync(r.Context(), sender))
}

// HandleHealth is a liveness probe.
//
//	GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"success": false, "error": message})
}
