package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/api/schemas"
	"github.com/hexhaunt/promptq-cli/internal/queue"
	"github.com/hexhaunt/promptq-cli/internal/sequence"
)

// eventStreamBuffer is the per-subscriber channel depth for /api/v1/events.
// Slow consumers drop events rather than stalling the run.
const eventStreamBuffer = 64

// Routes builds the control API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/queue", s.handleQueueStart)
		r.Get("/queue/status", s.handleQueueStatus)
		r.Get("/events", s.handleEvents)

		r.Route("/sequences", func(r chi.Router) {
			r.Get("/", s.handleSequenceList)
			r.Post("/", s.handleSequenceCreate)
			r.Route("/{sequenceID}", func(r chi.Router) {
				r.Get("/", s.handleSequenceGet)
				r.Put("/", s.handleSequenceUpdate)
				r.Delete("/", s.handleSequenceDelete)
				r.Post("/queue", s.handleSequenceQueue)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		s.log.Warn("Failed to write health check response.", zap.Error(err))
	}
}

func (s *Server) handleQueueStart(w http.ResponseWriter, r *http.Request) {
	var req schemas.QueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	s.startRun(w, req.Prompts)
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.runner.Status())
}

// handleEvents streams progress events to the client as JSON lines. The
// stream ends when the client disconnects, the hub closes, or the server
// shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.events.Subscribe(eventStreamBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleSequenceList(w http.ResponseWriter, r *http.Request) {
	store, ok := s.requireStore(w)
	if !ok {
		return
	}
	seqs, err := store.List(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("listing sequences: %v", err))
		return
	}
	if seqs == nil {
		seqs = []sequence.Sequence{}
	}
	s.respondJSON(w, http.StatusOK, seqs)
}

func (s *Server) handleSequenceCreate(w http.ResponseWriter, r *http.Request) {
	store, ok := s.requireStore(w)
	if !ok {
		return
	}
	var seq sequence.Sequence
	if err := json.NewDecoder(r.Body).Decode(&seq); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	// The store assigns identity on create.
	seq.ID = ""
	if err := seq.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := store.Save(r.Context(), seq)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("saving sequence: %v", err))
		return
	}
	s.respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleSequenceGet(w http.ResponseWriter, r *http.Request) {
	store, ok := s.requireStore(w)
	if !ok {
		return
	}
	seq, err := store.Get(r.Context(), chi.URLParam(r, "sequenceID"))
	if err != nil {
		s.respondSequenceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, seq)
}

func (s *Server) handleSequenceUpdate(w http.ResponseWriter, r *http.Request) {
	store, ok := s.requireStore(w)
	if !ok {
		return
	}
	id := chi.URLParam(r, "sequenceID")
	existing, err := store.Get(r.Context(), id)
	if err != nil {
		s.respondSequenceError(w, err)
		return
	}

	var req sequence.Sequence
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	// Identity and creation time survive the update.
	existing.Name = req.Name
	existing.Description = req.Description
	existing.Prompts = req.Prompts
	if err := existing.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := store.Save(r.Context(), existing)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("saving sequence: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleSequenceDelete(w http.ResponseWriter, r *http.Request) {
	store, ok := s.requireStore(w)
	if !ok {
		return
	}
	if err := store.Delete(r.Context(), chi.URLParam(r, "sequenceID")); err != nil {
		s.respondSequenceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSequenceQueue(w http.ResponseWriter, r *http.Request) {
	store, ok := s.requireStore(w)
	if !ok {
		return
	}
	seq, err := store.Get(r.Context(), chi.URLParam(r, "sequenceID"))
	if err != nil {
		s.respondSequenceError(w, err)
		return
	}
	s.startRun(w, seq.Prompts)
}

// startRun validates the prompt list and hands it to the runner, mapping the
// guard rejection to 409 and validation failures to 400. The run itself
// proceeds asynchronously; 202 only acknowledges the start.
func (s *Server) startRun(w http.ResponseWriter, prompts []string) {
	if err := validatePrompts(prompts); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.runner.Start(s.runContext(), prompts); err != nil {
		switch {
		case errors.Is(err, queue.ErrAlreadyRunning):
			s.respondError(w, http.StatusConflict, "already running")
		case errors.Is(err, queue.ErrNoPrompts):
			s.respondError(w, http.StatusBadRequest, err.Error())
		default:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusAccepted, schemas.QueueAck{OK: true})
}

func validatePrompts(prompts []string) error {
	if len(prompts) == 0 {
		return errors.New("no prompts to queue")
	}
	for i, p := range prompts {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("prompt %d is empty", i+1)
		}
	}
	return nil
}

// requireStore answers 503 when no sequence store is configured.
func (s *Server) requireStore(w http.ResponseWriter) (sequence.Store, bool) {
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "sequence store not configured")
		return nil, false
	}
	return s.store, true
}

func (s *Server) respondSequenceError(w http.ResponseWriter, err error) {
	if errors.Is(err, sequence.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "sequence not found")
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode response.", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, schemas.QueueAck{Error: message})
}
