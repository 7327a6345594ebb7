package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"yuzu/interview/internal/auth"
	"yuzu/interview/internal/events"
	"yuzu/interview/internal/health"
	"yuzu/interview/internal/persistence"
	"yuzu/interview/internal/registry"
	"yuzu/interview/internal/session"
	"yuzu/interview/internal/statemachine"
	"yuzu/interview/internal/types"
)

const defaultInitTimeout = 20 * time.Second

type Options struct {
	Registry *registry.Registry
	Events   *events.Log
	// Records may be nil when the store cannot read back.
	Records persistence.RecordReader

	TokenSecret string
	TokenTTL    time.Duration
	// AudioURL is the websocket endpoint handed to callers, e.g. wss://host/ws/audio.
	AudioURL string

	Ready       func(ctx context.Context) health.HealthStatus
	InitTimeout time.Duration
}

type Handlers struct {
	opts Options
}

func NewHandlers(opts Options) *Handlers {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 30 * time.Minute
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = defaultInitTimeout
	}
	return &Handlers{opts: opts}
}

type createRequest struct {
	UserID string `json:"user_id"`
}

type createResponse struct {
	SessionID   string      `json:"session_id"`
	InterviewID string      `json:"interview_id"`
	AudioURL    string      `json:"audio_url"`
	AudioToken  string      `json:"audio_token"`
	Phase       types.Phase `json:"phase"`
}

// HandleCreateSession registers a session and connects its providers. A
// connection failure leaves the session in ERROR and answers 502.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	id := uuid.NewString()
	sess, err := h.opts.Registry.CreateSession(id, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.audit(id, "session_registered", map[string]any{"user_id": req.UserID})

	// Provider setup outlives the request.
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.InitTimeout)
	defer cancel()
	if err := sess.Initialize(ctx); err != nil {
		log.Printf("[api] session=%s initialize: %v", id, err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"session_id": id,
			"phase":      sess.Status().Phase,
			"error":      err.Error(),
		})
		return
	}

	exp := time.Now().Add(h.opts.TokenTTL).Unix()
	token, err := auth.GenerateAudioToken(h.opts.TokenSecret, id, req.UserID, exp)
	if err != nil {
		_ = sess.EndInterview(session.ReasonError)
		writeError(w, err)
		return
	}
	st := sess.Status()
	writeJSON(w, http.StatusCreated, createResponse{
		SessionID:   id,
		InterviewID: st.InterviewID,
		AudioURL:    h.opts.AudioURL + "?session_id=" + id,
		AudioToken:  token,
		Phase:       st.Phase,
	})
}

func (h *Handlers) HandleBegin(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := h.opts.Registry.Get(id)
	if !ok {
		writeError(w, registry.ErrNotFound)
		return
	}
	if err := sess.StartInterview(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

// HandleStatus answers from the live session, then from the record store.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request, id string) {
	if sess, ok := h.opts.Registry.Get(id); ok {
		writeJSON(w, http.StatusOK, sess.Status())
		return
	}
	if h.opts.Records == nil {
		writeError(w, registry.ErrNotFound)
		return
	}
	rec, err := h.opts.Records.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "record": rec})
}

func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := h.opts.Registry.Get(id)
	if !ok {
		writeError(w, registry.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

type endRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) HandleEndSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, ok := h.opts.Registry.Get(id)
	if !ok {
		writeError(w, registry.ErrNotFound)
		return
	}
	var req endRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	if err := sess.EndInterview(req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	list := h.opts.Registry.List()
	out := make([]types.SessionStatus, 0, len(list))
	for _, s := range list {
		out = append(out, s.Status())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": out,
		"active":   h.opts.Registry.ActiveCount(),
		"capacity": h.opts.Registry.Capacity(),
	})
}

type cleanupRequest struct {
	MaxAgeMs int64 `json:"max_age_ms"`
}

func (h *Handlers) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MaxAgeMs <= 0 {
		writeJSONError(w, http.StatusBadRequest, "max_age_ms must be a positive integer")
		return
	}
	n := h.opts.Registry.CleanupStale(time.Duration(req.MaxAgeMs) * time.Millisecond)
	writeJSON(w, http.StatusOK, map[string]any{"cleaned": n})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.opts.Registry.Get(id); !ok {
		writeError(w, registry.ErrNotFound)
		return
	}
	var evs []events.Event
	if h.opts.Events != nil {
		evs = h.opts.Events.List(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     evs,
	})
}

// HandleListRecords lists persisted interviews, optionally for one user.
func (h *Handlers) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	if h.opts.Records == nil {
		writeJSONError(w, http.StatusNotImplemented, "record store is write-only")
		return
	}
	recs, err := h.opts.Records.ListRecords(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if user := r.URL.Query().Get("user_id"); user != "" {
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.UserID == user {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	st := h.opts.Ready(ctx)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (h *Handlers) audit(id, typ string, payload map[string]any) {
	if h.opts.Events != nil {
		h.opts.Events.Append(id, typ, payload)
	}
}

// statusFor maps package sentinel errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrAtCapacity):
		return http.StatusServiceUnavailable
	case errors.Is(err, registry.ErrSessionExists),
		errors.Is(err, registry.ErrUserHasActiveSession),
		errors.Is(err, session.ErrNotReady),
		errors.Is(err, statemachine.ErrInvalidTransition),
		errors.Is(err, statemachine.ErrTerminal):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("[api] internal error: %v", err)
	}
	writeJSONError(w, code, err.Error())
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
