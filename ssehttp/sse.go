package ssehttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ggoodman/mcp-sse-relay/sessions"
)

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an
// optional context. It serializes concurrent writes/flushes (single-writer
// discipline for the push channel) and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check after acquiring the lock to minimize races with cancellation
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// sseTransport implements sessions.Transport over one SSE response stream.
type sseTransport struct {
	id        string
	createdAt time.Time
	endpoint  sessions.Endpoint
	wf        *lockedWriteFlusher
	log       *slog.Logger

	// cancel ends the stream context, unblocking any pending write and the
	// keepalive loop.
	cancel context.CancelFunc

	mu    sync.Mutex
	state sessions.State

	closeOnce sync.Once
	teardown  func(reason error)
}

func newSSETransport(id string, endpoint sessions.Endpoint, wf *lockedWriteFlusher, cancel context.CancelFunc, log *slog.Logger, teardown func(reason error)) *sseTransport {
	return &sseTransport{
		id:        id,
		createdAt: time.Now(),
		endpoint:  endpoint,
		wf:        wf,
		log:       log,
		cancel:    cancel,
		state:     sessions.StateOpen,
		teardown:  teardown,
	}
}

func (t *sseTransport) SessionID() string    { return t.id }
func (t *sseTransport) CreatedAt() time.Time { return t.createdAt }

func (t *sseTransport) State() sessions.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *sseTransport) Send(ctx context.Context, frame []byte) error {
	if t.State() != sessions.StateOpen {
		return sessions.ErrTransportClosed
	}
	if err := writeSSEEvent(t.wf, "message", frame); err != nil {
		// A failed write means the consumer is gone; tear the session down
		// so routing stops advertising it.
		t.Close(context.WithoutCancel(ctx), err)
		return fmt.Errorf("push frame: %w", err)
	}
	return nil
}

func (t *sseTransport) HandleMessage(ctx context.Context, payload []byte) ([]byte, error) {
	return t.endpoint.HandleMessage(ctx, t, payload)
}

// Close is idempotent. The first call runs the teardown callback
// synchronously before returning so registry/store cleanup is never skipped.
func (t *sseTransport) Close(ctx context.Context, reason error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.state = sessions.StateClosing
		t.mu.Unlock()

		// Unblock pending sends and end the response stream promptly.
		t.cancel()

		t.teardown(reason)

		t.mu.Lock()
		t.state = sessions.StateClosed
		t.mu.Unlock()

		if reason != nil {
			t.log.InfoContext(ctx, "session.close", slog.String("session_id", t.id), slog.String("reason", reason.Error()))
		} else {
			t.log.InfoContext(ctx, "session.close", slog.String("session_id", t.id))
		}
	})
}

var _ sessions.Transport = (*sseTransport)(nil)

// writeSSEEvent writes one Server-Sent Event frame and flushes it. An empty
// event name omits the event line, yielding the default "message" type.
//
// The frame is assembled in full and issued as a single write so that
// concurrent senders (an endpoint pushing against the keepalive ticker, or
// against another push) can never interleave partial frames on the wire.
// Payload newlines become one data line per segment; SSE consumers rejoin
// them with a newline, so the payload round-trips intact.
func writeSSEEvent(wf *lockedWriteFlusher, event string, payload []byte) error {
	var buf bytes.Buffer
	if event != "" {
		fmt.Fprintf(&buf, "event: %s\n", event)
	}
	for _, line := range bytes.Split(payload, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte("\r")))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	if _, err := wf.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write SSE frame: %w", err)
	}
	wf.Flush()
	return nil
}

// writeSSEComment emits a comment frame. Comments are ignored by SSE
// consumers and serve as connection-level keepalives. The single Fprintf
// issues one locked write, so comments cannot split a concurrent frame.
func writeSSEComment(wf *lockedWriteFlusher, text string) error {
	if _, err := fmt.Fprintf(wf, ": %s\n\n", text); err != nil {
		return fmt.Errorf("write SSE comment: %w", err)
	}
	wf.Flush()
	return nil
}
