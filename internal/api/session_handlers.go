package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/bridge"
	"github.com/JakeFAU/stagebridge/internal/progress"
	"github.com/JakeFAU/stagebridge/internal/session"
)

const sessionEndKind = "session_end"

type actionRequest struct {
	Action string `json:"action"`
}

// eventDTO is one NDJSON line of the event stream. The final line of a stream
// that ran to completion has kind "session_end" and carries the result.
type eventDTO struct {
	Seq    uint64    `json:"seq"`
	Kind   string    `json:"kind"`
	Stage  string    `json:"stage,omitempty"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
	Result string    `json:"result,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.sessions.Start()
	if err != nil {
		switch {
		case errors.Is(err, session.ErrLimit):
			writeError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, session.ErrShuttingDown):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.logger.Error("start session failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start session")
		}
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+sess.ID.String()+"/events")
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": sess.ID.String()})
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sessions.Cancel(id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// streamEvents attaches the caller as the session's only consumer and writes
// each event as a JSON line. The bridge is cancelled when the client goes away.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	stream, detach, err := s.sessions.Attach(id)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, session.ErrAttached):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	defer detach()
	stop := context.AfterFunc(r.Context(), detach)
	defer stop()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := s.logger.With(zap.String("session_id", id.String()))
	enc := json.NewEncoder(w)
	var last uint64
	for evt := range stream.All() {
		last = evt.Seq
		if err := enc.Encode(toEventDTO(evt)); err != nil {
			logger.Warn("event stream write failed", zap.Error(err))
			return
		}
		flusher.Flush()
	}

	select {
	case <-stream.Done():
	default:
		return
	}
	if r.Context().Err() != nil {
		return
	}
	end := eventDTO{
		Seq:    last,
		Kind:   sessionEndKind,
		At:     time.Now().UTC(),
		Result: string(resultFor(stream.Err())),
	}
	if err := stream.Err(); err != nil {
		end.Error = err.Error()
	}
	if err := enc.Encode(end); err != nil {
		logger.Warn("event stream write failed", zap.Error(err))
		return
	}
	flusher.Flush()
}

func (s *Server) submitAction(w http.ResponseWriter, r *http.Request) {
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	action, err := bridge.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sessions.Submit(r.Context(), id, action); err != nil {
		writeError(w, submitStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": id.String(),
		"action":     action.String(),
	})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bridge.ErrNotReady), errors.Is(err, bridge.ErrChannelFull):
		return http.StatusConflict
	case errors.Is(err, bridge.ErrClosed):
		return http.StatusGone
	case errors.Is(err, bridge.ErrUnknownAction):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseSessionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "session_id")
	if raw == "" {
		return uuid.UUID{}, errors.New("session_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid session_id")
	}
	return id, nil
}

func toEventDTO(evt bridge.Event) eventDTO {
	dto := eventDTO{
		Seq:  evt.Seq,
		Kind: evt.Kind.String(),
		At:   evt.At,
	}
	if stage := evt.Kind.Stage(); stage != 0 {
		dto.Stage = stage.String()
	}
	if evt.Err != nil {
		dto.Error = evt.Err.Error()
	}
	return dto
}

func resultFor(err error) progress.Result {
	switch {
	case err == nil:
		return progress.ResultSuccess
	case errors.Is(err, bridge.ErrCleanupFailed):
		return progress.ResultFailed
	default:
		return progress.ResultCanceled
	}
}
