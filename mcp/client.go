package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"

	"github.com/zhubert/plural-client/logger"
)

const (
	methodInitialize        = "initialize"
	methodInitializedNotice = "notifications/initialized"
)

// NotificationHandler receives the params of a server-pushed notification.
// Params is never nil; an absent params object arrives as {}.
type NotificationHandler func(params json.RawMessage)

// RecoveryListener is invoked after a successful session recovery so
// collaborators can re-establish server-side state (e.g. resource
// subscriptions).
type RecoveryListener func(ctx context.Context) error

// entries wrap callbacks so removal can use pointer identity rather than
// function equality, which Go does not define.
type notificationEntry struct {
	fn NotificationHandler
}

type recoveryEntry struct {
	fn RecoveryListener
}

// Client talks JSON-RPC to a plan server over streamable HTTP. Each Client
// owns one session and at most one live notification stream. Instances are
// independent, so a single process can hold clients for several servers.
type Client struct {
	transport       *transport
	httpClient      *http.Client
	clock           clockwork.Clock
	log             *slog.Logger
	transferTimeout time.Duration

	mu           sync.Mutex
	sessionID    string
	initialized  bool
	recovering   bool
	recoveryDone chan struct{}
	stream       *eventStream
	handlers     map[string][]*notificationEntry
	listeners    []*recoveryEntry
	closed       bool

	initMu sync.Mutex // serializes the initialize handshake
}

// Option is a functional option for configuring Client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for all calls. The client
// must not carry a global timeout; the notification stream is long-lived.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides the clock driving the stream reconnect delay.
// Intended for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithTransferTimeout bounds plan file downloads and uploads. A
// non-positive value keeps the TransferTimeout default. Typically fed
// from config.TransferTimeout().
func WithTransferTimeout(d time.Duration) Option {
	return func(c *Client) { c.transferTimeout = d }
}

// WithLogger overrides the default component logger
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a client for the plan server at baseURL. No network traffic
// happens until the first request.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		handlers: make(map[string][]*notificationEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.log == nil {
		c.log = logger.WithComponent("mcp")
	}
	c.transport = newTransport(baseURL, c.httpClient, c.log)
	return c
}

// SessionID returns the current session id, empty until the handshake has
// run.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Request sends a JSON-RPC request and returns the raw result. The
// initialize handshake runs first if the session is not yet established. A
// request failing with a session-loss signature triggers one recovery and
// is retried exactly once; a second failure is surfaced to the caller.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if method != methodInitialize {
		if err := c.ensureInitialized(ctx); err != nil {
			return nil, err
		}
	}
	return c.send(ctx, method, params, true)
}

// Notify sends a fire-and-forget notification (null id). Whatever the
// server answers beyond an acknowledgment is discarded.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	req := &JSONRPCRequest{JSONRPC: "2.0", ID: nil, Method: method, Params: params}
	_, header, err := c.transport.post(ctx, mcpPath, req, c.SessionID())
	if err != nil {
		return err
	}
	c.adoptSession(header)
	return nil
}

// send builds the request envelope once and posts it. The retry after a
// session recovery resends the identical envelope, id included, so the two
// attempts correlate in server logs.
func (c *Client) send(ctx context.Context, method string, params any, retryable bool) (json.RawMessage, error) {
	req := &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	}
	return c.roundTrip(ctx, req, retryable)
}

// roundTrip performs one POST round-trip. retryable gates the single
// recovery-and-retry; the retried request always passes false.
func (c *Client) roundTrip(ctx context.Context, req *JSONRPCRequest, retryable bool) (json.RawMessage, error) {
	resp, header, err := c.transport.post(ctx, mcpPath, req, c.SessionID())
	if err != nil {
		if retryable && isSessionLoss(err) {
			if rerr := c.recover(ctx); rerr != nil {
				return nil, rerr
			}
			return c.roundTrip(ctx, req, false)
		}
		return nil, err
	}

	c.adoptSession(header)

	if resp.Error != nil {
		perr := newProtocolError(resp.Error.Code, resp.Error.Message)
		if retryable && isSessionLoss(perr) {
			if rerr := c.recover(ctx); rerr != nil {
				return nil, rerr
			}
			return c.roundTrip(ctx, req, false)
		}
		return nil, perr
	}

	if err := toolCallError(resp.Result); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// toolCallError translates the in-band isError convention into a
// ProtocolError. Results that don't follow the convention pass through.
func toolCallError(result json.RawMessage) error {
	if len(result) == 0 {
		return nil
	}
	var probe ToolCallResult
	if err := json.Unmarshal(result, &probe); err != nil || !probe.IsError {
		return nil
	}
	for _, item := range probe.Content {
		if item.Type == "text" && item.Text != "" {
			return newProtocolError(0, item.Text)
		}
	}
	return newProtocolError(0, "")
}

// ensureInitialized performs the handshake exactly once. An in-flight
// recovery is waited out first, since it ends with a fresh handshake.
func (c *Client) ensureInitialized(ctx context.Context) error {
	c.mu.Lock()
	if c.recovering {
		done := c.recoveryDone
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		c.mu.Unlock()
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.mu.Lock()
	done := c.initialized
	c.mu.Unlock()
	if done {
		return nil
	}
	return c.initialize(ctx)
}

// initialize runs the handshake: an initialize request followed by the
// notifications/initialized notice. The notice is best-effort and never
// fails the handshake.
func (c *Client) initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    Capability{},
		ClientInfo:      ClientInfo{Name: ClientName, Version: ClientVersion},
	}
	if _, err := c.send(ctx, methodInitialize, params, false); err != nil {
		return err
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	if err := c.Notify(ctx, methodInitializedNotice, nil); err != nil {
		c.log.Warn("initialized notification failed", "error", err)
	}
	c.log.Info("session initialized", "sessionID", c.SessionID())
	return nil
}

// adoptSession captures a (possibly rotated) session id from response
// headers. The first observed id starts the notification stream.
func (c *Client) adoptSession(header http.Header) {
	sid := header.Get(SessionHeader)
	if sid == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.sessionID != "" && c.sessionID != sid {
		c.log.Debug("session id rotated", "sessionID", sid)
	}
	c.sessionID = sid
	if c.stream == nil {
		c.startStreamLocked()
	}
}

// startStreamLocked creates and launches the notification stream. Caller
// must hold mu. When the stream's supervisor exits on its own (transport
// error, session gone), the reference is cleared so a later session event
// can start a fresh one.
func (c *Client) startStreamLocked() {
	s := newEventStream(c.transport, c.clock, c.log, c.SessionID, c.dispatchNotification, func() {
		go func() {
			if err := c.recover(context.Background()); err != nil {
				c.log.Error("recovery from stream failure failed", "error", err)
			}
		}()
	})
	c.stream = s
	go func() {
		s.run()
		c.mu.Lock()
		if c.stream == s {
			c.stream = nil
		}
		c.mu.Unlock()
	}()
}

// recover re-establishes a lost session: the session id and stream are
// discarded, the handshake re-runs, and recovery listeners fire in order.
// Only one recovery runs at a time; a caller that finds one in flight
// waits for it to finish and returns, leaving its own single retry to run
// against the recovered session.
func (c *Client) recover(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.recovering {
		done := c.recoveryDone
		c.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.recovering = true
	done := make(chan struct{})
	c.recoveryDone = done
	stream := c.stream
	c.stream = nil
	c.sessionID = ""
	c.initialized = false
	c.mu.Unlock()

	// The guard is released on every exit path so a failed recovery cannot
	// wedge the client. Idempotent, since it also runs before the
	// listeners do.
	release := func() {
		c.mu.Lock()
		if !c.recovering {
			c.mu.Unlock()
			return
		}
		c.recovering = false
		c.mu.Unlock()
		close(done)
	}
	defer release()

	c.log.Info("session lost, recovering")
	if stream != nil {
		stream.stop()
	}

	if err := c.initialize(ctx); err != nil {
		return err
	}

	// Release before the listeners run: they issue their own requests
	// (typically re-subscribes) and must not wait on this recovery.
	release()

	// Listener failures are advisory (typically a re-subscribe against a
	// resource that no longer exists); log them without failing recovery.
	var errs *multierror.Error
	for _, entry := range c.snapshotListeners() {
		if lerr := entry.fn(ctx); lerr != nil {
			errs = multierror.Append(errs, lerr)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		c.log.Warn("recovery listeners reported errors", "error", err)
	}

	c.log.Info("session recovered", "sessionID", c.SessionID())
	return nil
}

// OnNotification registers fn for server notifications with the given
// method name and returns a function removing exactly that registration.
// Handlers for a method run in registration order.
func (c *Client) OnNotification(method string, fn NotificationHandler) func() {
	entry := &notificationEntry{fn: fn}

	c.mu.Lock()
	c.handlers[method] = append(c.handlers[method], entry)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.handlers[method]
		for i, e := range list {
			if e == entry {
				c.handlers[method] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(c.handlers[method]) == 0 {
			delete(c.handlers, method)
		}
	}
}

// OnRecovery registers fn to run after each successful session recovery
// and returns a function removing the registration.
func (c *Client) OnRecovery(fn RecoveryListener) func() {
	entry := &recoveryEntry{fn: fn}

	c.mu.Lock()
	c.listeners = append(c.listeners, entry)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, e := range c.listeners {
			if e == entry {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				break
			}
		}
	}
}

func (c *Client) dispatchNotification(method string, params json.RawMessage) {
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	c.mu.Lock()
	list := make([]*notificationEntry, len(c.handlers[method]))
	copy(list, c.handlers[method])
	c.mu.Unlock()

	for _, entry := range list {
		entry.fn(params)
	}
}

func (c *Client) snapshotListeners() []*recoveryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]*recoveryEntry, len(c.listeners))
	copy(list, c.listeners)
	return list
}

// Health reports whether the server's /health endpoint answered 200 within
// the probe timeout.
func (c *Client) Health(ctx context.Context) bool {
	return c.transport.health(ctx)
}

// Close tears down the notification stream and drops all handler and
// listener registrations. The client must not be used afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stream := c.stream
	c.stream = nil
	c.handlers = make(map[string][]*notificationEntry)
	c.listeners = nil
	c.mu.Unlock()

	if stream != nil {
		stream.stop()
	}
	c.log.Info("client closed")
}

// CallTool invokes a named server tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	return c.Request(ctx, "tools/call", ToolCallParams{Name: name, Arguments: args})
}

// CallToolWithFallback invokes a tool with primary arguments and, if the
// call fails for any reason, retries once with the alternate arguments.
// When both fail the primary error is reported so the root cause stays
// visible. Used for tools whose argument shape drifted across server
// versions.
func (c *Client) CallToolWithFallback(ctx context.Context, name string, primary, fallback map[string]any) (json.RawMessage, error) {
	result, err := c.CallTool(ctx, name, primary)
	if err == nil {
		return result, nil
	}
	if result, ferr := c.CallTool(ctx, name, fallback); ferr == nil {
		return result, nil
	}
	return nil, err
}

// ReadResource fetches a resource by URI and returns its text content.
func (c *Client) ReadResource(ctx context.Context, uri string) (string, error) {
	raw, err := c.Request(ctx, "resources/read", ResourceParams{URI: uri})
	if err != nil {
		return "", err
	}
	var result ResourceReadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to parse resource contents: %w", err)
	}
	if len(result.Contents) == 0 {
		return "", fmt.Errorf("resource %s has no contents", uri)
	}
	return result.Contents[0].Text, nil
}

// SubscribeResource asks the server to push change notifications for uri
func (c *Client) SubscribeResource(ctx context.Context, uri string) error {
	_, err := c.Request(ctx, "resources/subscribe", ResourceParams{URI: uri})
	return err
}

// UnsubscribeResource stops change notifications for uri
func (c *Client) UnsubscribeResource(ctx context.Context, uri string) error {
	_, err := c.Request(ctx, "resources/unsubscribe", ResourceParams{URI: uri})
	return err
}
