package ssehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-sse-relay/internal/logctx"
	"github.com/ggoodman/mcp-sse-relay/router"
	"github.com/ggoodman/mcp-sse-relay/sessions"
	"github.com/ggoodman/mcp-sse-relay/sessionstore"
	"github.com/google/uuid"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	defaultStreamPath   = "/sse"
	defaultMessagesPath = "/messages"

	defaultKeepAliveInterval = 30 * time.Second

	// maxMessageBytes bounds a single inbound call payload.
	maxMessageBytes = 4 << 20

	// teardownTimeout bounds the detached store delete during teardown.
	teardownTimeout = 5 * time.Second
)

// writeJSONError emits the transport-level error body for rejected calls.
// Shape: {"error":"<reason>"}.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	logger       *slog.Logger
	ttl          time.Duration
	keepAlive    time.Duration
	streamPath   string
	messagesPath string
}

// WithLogger sets the slog logger used by the handler. If not provided,
// slog.Default() is used.
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// WithSessionTTL sets the liveness record TTL written at stream-open and on
// each successful call. Defaults to sessionstore.DefaultTTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *newConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeepAliveInterval sets the interval between SSE keepalive comments.
// The keepalive doubles as the idle-connection mitigation: a dead peer that
// never signaled disconnect is detected by the failed write.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(c *newConfig) {
		if d > 0 {
			c.keepAlive = d
		}
	}
}

// WithBasePaths overrides the stream-open and call endpoint paths
// (defaults "/sse" and "/messages").
func WithBasePaths(streamPath, messagesPath string) Option {
	return func(c *newConfig) {
		c.streamPath = streamPath
		c.messagesPath = messagesPath
	}
}

// Handler serves the stream-open and call endpoints for one process
// instance. Create one per process alongside a fresh sessions.Registry and
// tear it down via Shutdown at process stop.
type Handler struct {
	mux          *http.ServeMux
	log          *slog.Logger
	registry     *sessions.Registry
	store        sessionstore.Store
	endpoint     sessions.Endpoint
	router       *router.Router
	ttl          time.Duration
	keepAlive    time.Duration
	messagesPath string
}

// New constructs a Handler.
//
// Required:
//   - registry: the process-local transport registry
//   - store: the shared session liveness store
//   - endpoint: the application handler consuming protocol messages
func New(registry *sessions.Registry, store sessionstore.Store, endpoint sessions.Endpoint, opts ...Option) (*Handler, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if endpoint == nil {
		return nil, fmt.Errorf("endpoint is required")
	}

	cfg := &newConfig{
		logger:       slog.Default(),
		ttl:          sessionstore.DefaultTTL,
		keepAlive:    defaultKeepAliveInterval,
		streamPath:   defaultStreamPath,
		messagesPath: defaultMessagesPath,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	log := slog.New(logctx.Handler{Handler: cfg.logger.Handler()})

	h := &Handler{
		log:          log,
		registry:     registry,
		store:        store,
		endpoint:     endpoint,
		ttl:          cfg.ttl,
		keepAlive:    cfg.keepAlive,
		messagesPath: cfg.messagesPath,
	}
	h.router = router.New(registry, store, router.WithLogger(log), router.WithSessionTTL(cfg.ttl))

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("GET %s", cfg.streamPath), h.handleOpenStream)
	mux.HandleFunc(fmt.Sprintf("POST %s", cfg.messagesPath), h.handleCall)
	h.mux = mux
	return h, nil
}

// Router exposes the handler's message router, e.g. for callers that accept
// calls over an additional surface.
func (h *Handler) Router() *router.Router { return h.router }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handleOpenStream handles the stream-open endpoint: it allocates a session,
// registers its transport, writes the shared liveness record, and then holds
// the SSE response open until teardown.
func (h *Handler) handleOpenStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.stream.start")

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		h.log.WarnContext(ctx, "accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: streamCtx}

	sessID := uuid.NewString()

	st := newSSETransport(sessID, h.endpoint, wf, cancel, h.log, func(reason error) {
		h.teardown(sessID)
	})

	if err := h.registry.Register(sessID, st); err != nil {
		// Ids carry enough entropy that a collision is an invariant
		// violation; surface it rather than retrying.
		writeJSONError(w, http.StatusInternalServerError, "Failed to establish session")
		h.log.ErrorContext(ctx, "session.register.fail", slog.String("session_id", sessID), slog.String("err", err.Error()))
		return
	}

	// The liveness record is what lets calls validate against any instance;
	// without it the session can never be routed to, so failure here fails
	// the open.
	if err := h.store.Put(ctx, sessID, h.ttl); err != nil {
		h.registry.Remove(sessID)
		writeJSONError(w, http.StatusInternalServerError, "Failed to establish session")
		h.log.ErrorContext(ctx, "session.put.fail", slog.String("session_id", sessID), slog.String("err", err.Error()))
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessID, State: sessions.StateOpen})

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	// First frame tells the client where to send calls for this session.
	if err := writeSSEEvent(wf, "endpoint", []byte(h.messagesPath+"?sessionId="+sessID)); err != nil {
		st.Close(context.WithoutCancel(ctx), err)
		h.log.ErrorContext(ctx, "sse.endpoint.write.fail", slog.String("err", err.Error()))
		return
	}

	h.log.InfoContext(ctx, "session.open.ok")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-streamCtx.Done():
			// Peer disconnect, server shutdown, or an explicit close from
			// the endpoint side; all converge on the idempotent teardown.
			st.Close(context.WithoutCancel(ctx), streamCtx.Err())
			h.log.InfoContext(ctx, "http.stream.end", slog.Duration("dur", time.Since(start)))
			return
		case <-ticker.C:
			if err := writeSSEComment(wf, "keepalive"); err != nil {
				st.Close(context.WithoutCancel(ctx), err)
				h.log.InfoContext(ctx, "http.stream.end", slog.Duration("dur", time.Since(start)), slog.String("err", err.Error()))
				return
			}
		}
	}
}

// handleCall handles the call endpoint: one protocol message per request,
// correlated to a session by the sessionId query parameter.
func (h *Handler) handleCall(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.call.start")

	// The protocol vocabulary is opaque to the relay: the body is one raw
	// message for the endpoint, so no content type is enforced here.
	sessID := r.URL.Query().Get("sessionId")
	if sessID != "" {
		ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessID})
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Unable to read message body")
		h.log.WarnContext(ctx, "call.body.fail", slog.String("err", err.Error()))
		return
	}

	ack, err := h.router.Route(ctx, sessID, payload)
	if err != nil {
		h.writeRouteError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if len(ack) > 0 {
		_, _ = w.Write(ack)
	} else {
		_, _ = w.Write([]byte(`{"success":true}`))
	}
	h.log.InfoContext(ctx, "http.call.ok", slog.Duration("dur", time.Since(start)))
}

// writeRouteError maps the router taxonomy onto client-visible responses.
// Validation and session-existence faults resolve to 400s; unknown store
// state and endpoint failures surface as 500s rather than being collapsed
// into "not found".
func (h *Handler) writeRouteError(ctx context.Context, w http.ResponseWriter, err error) {
	var storeErr *router.StoreError
	var protoErr *router.ProtocolError

	switch {
	case errors.Is(err, router.ErrMissingSessionID):
		writeJSONError(w, http.StatusBadRequest, "Missing sessionId query parameter")
		h.log.WarnContext(ctx, "call.session_id.missing")
	case errors.Is(err, router.ErrSessionExpired):
		writeJSONError(w, http.StatusBadRequest, "Invalid or expired session ID")
		h.log.InfoContext(ctx, "call.session.miss")
	case errors.Is(err, router.ErrTransportUnreachable):
		// The session exists somewhere, just not here. Distinct body so
		// operators can tell this from the expired case.
		writeJSONError(w, http.StatusBadRequest, "No transport found for session ID")
		h.log.InfoContext(ctx, "call.transport.miss")
	case errors.As(err, &storeErr):
		writeJSONError(w, http.StatusInternalServerError, "Session validation unavailable")
		h.log.ErrorContext(ctx, "call.store.fail", slog.String("err", storeErr.Error()))
	case errors.As(err, &protoErr):
		writeJSONError(w, http.StatusInternalServerError, "Failed to handle message")
		h.log.ErrorContext(ctx, "call.endpoint.fail", slog.String("err", protoErr.Error()))
	default:
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		h.log.ErrorContext(ctx, "call.fail", slog.String("err", err.Error()))
	}
}

// teardown is the transport's registered cleanup callback. Effects are
// independently best-effort but all attempted: the local binding goes first
// so routing stops immediately, then the shared record. No rollback; a
// record that survives a failed delete expires via TTL.
func (h *Handler) teardown(sessID string) {
	h.registry.Remove(sessID)

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := h.store.Delete(ctx, sessID); err != nil {
		h.log.Warn("session.delete.fail", slog.String("session_id", sessID), slog.String("err", err.Error()))
	}
}

// Shutdown closes every live transport on this instance. Intended for
// process stop; in-flight stream handlers return as their contexts cancel.
func (h *Handler) Shutdown(ctx context.Context) {
	h.registry.Range(func(id string, t sessions.Transport) bool {
		t.Close(ctx, nil)
		return ctx.Err() == nil
	})
}
