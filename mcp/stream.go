package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// ReconnectDelay is the fixed pause before reopening the notification
// stream after the server closes it. Idle-timeout disconnects from
// intermediary proxies are routine, so the delay is constant rather than
// an escalating backoff.
const ReconnectDelay = 3 * time.Second

// eventStream is the long-lived GET connection carrying server-pushed
// notifications. At most one exists per client; it lives only while a
// session id is known.
type eventStream struct {
	transport     *transport
	clock         clockwork.Clock
	log           *slog.Logger
	session       func() string
	dispatch      func(method string, params json.RawMessage)
	onSessionLoss func()

	ctx    context.Context
	cancel context.CancelFunc
}

func newEventStream(
	t *transport,
	clock clockwork.Clock,
	log *slog.Logger,
	session func() string,
	dispatch func(string, json.RawMessage),
	onSessionLoss func(),
) *eventStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &eventStream{
		transport:     t,
		clock:         clock,
		log:           log,
		session:       session,
		dispatch:      dispatch,
		onSessionLoss: onSessionLoss,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// stop tears down the live connection. The stream never reconnects after
// an explicit stop.
func (s *eventStream) stop() {
	s.cancel()
}

// run supervises the connection: connect, consume frames, and on a clean
// server-side close reconnect after the fixed delay for as long as a
// session id remains set. Transport-level failures end supervision; the
// next session event starts a fresh stream.
func (s *eventStream) run() {
	for {
		sid := s.session()
		if sid == "" || s.ctx.Err() != nil {
			return
		}

		reconnect := s.connect(sid)
		if !reconnect || s.ctx.Err() != nil {
			return
		}

		select {
		case <-s.clock.After(ReconnectDelay):
		case <-s.ctx.Done():
			return
		}
	}
}

// connect opens one GET connection and consumes frames until the stream
// ends. It returns true when a reconnect should be attempted (the server
// closed the stream cleanly) and false otherwise.
func (s *eventStream) connect(sessionID string) bool {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.transport.baseURL+mcpPath, nil)
	if err != nil {
		s.log.Error("stream request construction failed", "error", err)
		return false
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set(SessionHeader, sessionID)

	resp, err := s.transport.client.Do(req)
	if err != nil {
		if s.ctx.Err() == nil {
			s.log.Warn("stream connection failed", "error", err)
		}
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// The server dropped our session while we were away
		io.Copy(io.Discard, resp.Body)
		s.log.Info("stream rejected with 404, triggering recovery")
		s.onSessionLoss()
		return false
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		s.log.Warn("stream rejected", "status", resp.StatusCode)
		return false
	}

	s.log.Debug("stream connected", "sessionID", sessionID)
	return s.consume(resp.Body)
}

// consume reads SSE frames until the stream ends, handling each complete
// frame as soon as its blank-line delimiter arrives. Returns true when the
// server closed the stream cleanly.
func (s *eventStream) consume(body io.Reader) bool {
	reader := bufio.NewReader(body)
	var data []string

	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			trimmed := strings.TrimRight(line, "\r\n")
			switch {
			case trimmed == "":
				s.handleFrame(data)
				data = data[:0]
			case strings.HasPrefix(trimmed, "data:"):
				data = append(data, dataLine(trimmed))
			}
			// Other field lines (event:, id:, retry:, comments) are ignored
		}
		if err != nil {
			if len(data) > 0 {
				s.handleFrame(data)
			}
			if err == io.EOF {
				return true
			}
			if s.ctx.Err() == nil {
				s.log.Warn("stream read error", "error", err)
			}
			return false
		}
	}
}

// handleFrame parses one frame's accumulated data lines and dispatches the
// notification. Frames that aren't JSON (heartbeat pings) or carry no
// method are silently dropped.
func (s *eventStream) handleFrame(data []string) {
	if len(data) == 0 {
		return
	}
	payload := strings.Join(data, "\n")

	var event NotificationEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return
	}
	if event.Method == "" {
		return
	}
	s.dispatch(event.Method, event.Params)
}
