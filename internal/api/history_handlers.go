package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stagebridge/internal/store"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
	defaultStageLimit   = 100
	maxStageLimit       = 1000
	historyTimeout      = 3 * time.Second
)

// HistoryHandler exposes read-only session history endpoints.
type HistoryHandler struct {
	repo    store.SessionRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewHistoryHandler wires the repository and logger.
func NewHistoryHandler(repo store.SessionRepository, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{
		repo:    repo,
		timeout: historyTimeout,
		logger:  logger,
	}
}

// ListSessions handles GET /api/sessions?status=&limit=&offset=. It returns
// {"sessions": [...]} on success, 400 for invalid filters, 503 when no
// repository is configured, or 500 if the repository call fails.
func (h *HistoryHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "session history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSessionLimit, maxSessionLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *store.SessionStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, parseErr := parseStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessions, err := h.repo.ListSessions(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": toSessionDTOs(sessions),
	})
}

// GetSession handles GET /api/sessions/{session_id}. It returns
// {"session": {...}}, 400 for malformed IDs, or 404 when the repository
// reports store.ErrNotFound.
func (h *HistoryHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "session history unavailable")
		return
	}
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("get session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": toSessionDTO(run)})
}

// ListStages handles GET /api/sessions/{session_id}/stages?limit=&offset=.
func (h *HistoryHandler) ListStages(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "session history unavailable")
		return
	}
	id, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultStageLimit, maxStageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stages, err := h.repo.ListStages(ctx, id, limit, offset)
	if err != nil {
		h.logger.Error("list stages failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list stages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stages": toStageDTOs(stages),
	})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.SessionStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return store.SessionRunning, nil
	case "success", "succeeded":
		return store.SessionSuccess, nil
	case "failed", "failure", "error":
		return store.SessionFailed, nil
	case "canceled", "cancelled":
		return store.SessionCanceled, nil
	default:
		return "", errors.New("invalid status")
	}
}

type sessionDTO struct {
	ID         string     `json:"session_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Events     int64      `json:"events"`
	Error      *string    `json:"error,omitempty"`
}

type stageDTO struct {
	Stage      string    `json:"stage"`
	Seq        int64     `json:"seq"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`
	Status     string    `json:"status"`
	Error      *string   `json:"error,omitempty"`
}

func toSessionDTOs(in []store.SessionRun) []sessionDTO {
	out := make([]sessionDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toSessionDTO(run))
	}
	return out
}

func toSessionDTO(run store.SessionRun) sessionDTO {
	return sessionDTO{
		ID:         run.ID.String(),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     string(run.Status),
		Events:     run.Events,
		Error:      run.ErrorMessage,
	}
}

func toStageDTOs(in []store.StageRun) []stageDTO {
	out := make([]stageDTO, 0, len(in))
	for _, st := range in {
		out = append(out, stageDTO{
			Stage:      st.Stage,
			Seq:        st.Seq,
			FinishedAt: st.FinishedAt,
			DurationMS: st.Duration.Milliseconds(),
			Status:     string(st.Status),
			Error:      st.ErrorMessage,
		})
	}
	return out
}
