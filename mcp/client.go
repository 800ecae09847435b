package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fwojciec/tether"
	"github.com/fwojciec/tether/backoff"
)

// Interface compliance check.
var _ tether.Conn = (*Client)(nil)

// defaultEndpointTimeout bounds the wait for the endpoint event on the
// legacy transport.
const defaultEndpointTimeout = 10 * time.Second

// transportState is a tagged union of the negotiator's states. Invalid
// operations (calling before the endpoint is known) are unrepresentable:
// only the connected states carry a submission target.
type transportState interface {
	transportState()
}

type disconnected struct{}

// connecting covers both first negotiation and reconnection.
type connecting struct{}

// streamableHTTP posts every call to the original URL; each response arrives
// in its own POST body.
type streamableHTTP struct {
	sessionID string
}

// httpSSE posts calls to the server-provided endpoint; responses arrive on
// the persistent GET stream.
type httpSSE struct {
	endpoint  *url.URL
	sessionID string
}

func (disconnected) transportState()   {}
func (connecting) transportState()     {}
func (streamableHTTP) transportState() {}
func (httpSSE) transportState()        {}

// Client implements [tether.Conn] over the MCP HTTP transports. One Client
// owns one logical connection: its pending calls, its negotiated transport,
// and its session id. Create a new Client for a new connection.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	log        zerolog.Logger

	callPolicy      backoff.Policy
	connectPolicy   backoff.Policy
	endpointTimeout time.Duration
	notify          func(tether.Message)
	onAuthInvalid   func()
	info            clientInfo

	nextID atomic.Int64

	mu         sync.Mutex
	state      transportState
	closed     bool
	forceSSE   bool // set by the one-shot 405 fallback; never cleared
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	pending    *pendingSet
	endpointCh chan tether.EndpointEvent
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithCallPolicy sets the retry policy for individual calls.
func WithCallPolicy(p backoff.Policy) Option {
	return func(c *Client) { c.callPolicy = p }
}

// WithConnectPolicy sets the retry policy for connection bootstrap and
// reconnection.
func WithConnectPolicy(p backoff.Policy) Option {
	return func(c *Client) { c.connectPolicy = p }
}

// WithEndpointTimeout bounds the wait for the endpoint event on the legacy
// transport.
func WithEndpointTimeout(d time.Duration) Option {
	return func(c *Client) { c.endpointTimeout = d }
}

// WithNotificationHandler sets the handler for server-initiated
// notifications. If nil or not set, notifications are silently discarded.
func WithNotificationHandler(h func(tether.Message)) Option {
	return func(c *Client) { c.notify = h }
}

// WithOnAuthInvalid sets a callback invoked when the server rejects the
// bearer credential, so the caller can invalidate its cached token before
// the next connection attempt.
func WithOnAuthInvalid(fn func()) Option {
	return func(c *Client) { c.onAuthInvalid = fn }
}

// New creates a Client for the given endpoint URL and bearer token.
func New(serverURL, token string, opts ...Option) *Client {
	c := &Client{
		url:             serverURL,
		token:           token,
		httpClient:      http.DefaultClient,
		log:             zerolog.Nop(),
		callPolicy:      backoff.Default(),
		connectPolicy:   backoff.Connect(),
		endpointTimeout: defaultEndpointTimeout,
		info:            clientInfo{Name: "tether", Version: "0.1.0"},
		state:           disconnected{},
		endpointCh:      make(chan tether.EndpointEvent, 1),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With().Str("conn_id", uuid.NewString()).Logger()
	c.pending = newPendingSet(c.log, func(msg tether.Message) {
		if c.notify != nil {
			c.notify(msg)
		}
	})
	return c
}

// Connect negotiates a transport and performs the initialize handshake,
// retrying retryable failures under the connect policy. The first attempt
// uses the streamable HTTP transport; a 405 switches permanently to the
// legacy SSE transport for the lifetime of this connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return closedErr()
	}
	if _, ok := c.state.(disconnected); !ok {
		c.mu.Unlock()
		return nil
	}
	c.state = connecting{}
	c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	_, err := backoff.Retry(ctx, c.connectPolicy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.negotiate(ctx)
	}, backoff.WithOnRetry(func(attempt int, delay time.Duration, cerr *tether.ClassifiedError) {
		c.log.Warn().
			Int("attempt", attempt).
			Dur("delay", delay).
			Str("kind", string(cerr.Kind)).
			Msg("connect failed, retrying")
	}))
	if err != nil {
		c.setState(disconnected{})
		return err
	}
	return nil
}

// negotiate performs one connection attempt: POST initialize, fall back to
// the GET transport on 405, classify anything else. Once 405 has been seen,
// every later attempt on this connection goes straight to the GET transport.
func (c *Client) negotiate(ctx context.Context) error {
	c.mu.Lock()
	forceSSE := c.forceSSE
	c.mu.Unlock()
	if forceSSE {
		return c.negotiateSSE(ctx)
	}

	msg, ch, err := c.newCall(methodInitialize, mustMarshal(initializeParams{
		ProtocolVersion: protocolVersionStreamable,
		Capabilities:    map[string]any{},
		ClientInfo:      c.info,
	}))
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, c.url, msg, protocolVersionStreamable, "")
	if err != nil {
		c.pending.remove(*msg.ID)
		return tether.Classify(err)
	}

	switch {
	case resp.StatusCode == http.StatusMethodNotAllowed:
		drain(resp)
		c.pending.remove(*msg.ID)
		c.mu.Lock()
		c.forceSSE = true
		c.mu.Unlock()
		c.log.Debug().Msg("server rejected POST transport, falling back to SSE")
		return c.negotiateSSE(ctx)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		sessionID := resp.Header.Get(headerSessionID)
		c.setState(streamableHTTP{sessionID: sessionID})
		if err := c.consume(resp.Body); err != nil {
			c.pending.remove(*msg.ID)
			c.setState(disconnected{})
			return err
		}
		result, err := c.awaitNow(ch, *msg.ID)
		if err != nil {
			c.setState(disconnected{})
			return err
		}
		c.logHandshake(result, "streamable-http", sessionID)
		c.sendInitialized(ctx)
		return nil

	default:
		c.pending.remove(*msg.ID)
		return c.classifyResponse(resp)
	}
}

// negotiateSSE opens the persistent GET stream, waits for the endpoint
// event, then initializes over the provided endpoint. It is also the
// reconnect path: reconnection preserves the transport kind and never
// re-attempts the POST handshake.
func (c *Client) negotiateSSE(ctx context.Context) error {
	c.mu.Lock()
	life := c.lifeCtx
	c.mu.Unlock()

	streamCtx, cancel := context.WithCancel(life)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.url, nil)
	if err != nil {
		cancel()
		return tether.Classify(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(headerProtocolVersion, protocolVersionSSE)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return tether.Classify(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cerr := c.classifyResponse(resp)
		cancel()
		return cerr
	}

	// Single reader per connection: this goroutine is the only consumer of
	// the GET stream.
	select {
	case <-c.endpointCh: // drop a stale endpoint from a previous stream
	default:
	}
	go c.readStream(streamCtx, resp.Body)

	var ep tether.EndpointEvent
	select {
	case ep = <-c.endpointCh:
	case <-time.After(c.endpointTimeout):
		cancel()
		return &tether.ClassifiedError{
			Kind:      tether.KindConnectionFailed,
			Retryable: true,
			Message:   "The server never announced its endpoint.",
			Detail:    fmt.Sprintf("no endpoint event within %s", c.endpointTimeout),
		}
	case <-ctx.Done():
		cancel()
		return tether.Classify(ctx.Err())
	}

	endpoint, err := c.resolveEndpoint(ep.Path)
	if err != nil {
		cancel()
		return err
	}
	c.setState(httpSSE{endpoint: endpoint, sessionID: ep.SessionID})

	if err := c.initializeSSE(ctx, endpoint); err != nil {
		cancel()
		c.setState(disconnected{})
		return err
	}
	c.log.Debug().
		Str("transport", "http-sse").
		Str("endpoint", endpoint.String()).
		Str("session_id", ep.SessionID).
		Msg("connected")
	c.sendInitialized(ctx)
	return nil
}

// initializeSSE sends the initialize call to the endpoint; the response
// arrives over the GET stream.
func (c *Client) initializeSSE(ctx context.Context, endpoint *url.URL) error {
	msg, ch, err := c.newCall(methodInitialize, mustMarshal(initializeParams{
		ProtocolVersion: protocolVersionSSE,
		Capabilities:    map[string]any{},
		ClientInfo:      c.info,
	}))
	if err != nil {
		return err
	}
	if err := c.postAck(ctx, endpoint.String(), msg, protocolVersionSSE); err != nil {
		c.pending.remove(*msg.ID)
		return err
	}
	_, err = c.await(ctx, ch, *msg.ID)
	return err
}

// Call invokes a remote operation, retrying retryable failures under the
// call policy. Per-call deadlines are the caller's responsibility, via ctx.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, &tether.ClassifiedError{
			Kind:    tether.KindInvalidRequest,
			Message: "The call parameters could not be encoded.",
			Detail:  err.Error(),
			Cause:   err,
		}
	}
	return backoff.Retry(ctx, c.callPolicy, func(ctx context.Context) (json.RawMessage, error) {
		return c.call(ctx, method, raw)
	}, backoff.WithOnRetry(func(attempt int, delay time.Duration, cerr *tether.ClassifiedError) {
		c.log.Debug().
			Int("attempt", attempt).
			Dur("delay", delay).
			Str("method", method).
			Str("kind", string(cerr.Kind)).
			Msg("call failed, retrying")
	}))
}

// call performs a single attempt of one remote operation.
func (c *Client) call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, tether.Classify(err)
	}

	c.mu.Lock()
	state := c.state
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, closedErr()
	}

	msg, ch, err := c.newCall(method, params)
	if err != nil {
		return nil, err
	}

	switch st := state.(type) {
	case streamableHTTP:
		resp, err := c.post(ctx, c.url, msg, protocolVersionStreamable, st.sessionID)
		if err != nil {
			c.pending.remove(*msg.ID)
			return nil, tether.Classify(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			c.pending.remove(*msg.ID)
			return nil, c.classifyResponse(resp)
		}
		if err := c.consume(resp.Body); err != nil {
			c.pending.remove(*msg.ID)
			return nil, err
		}
		return c.awaitNow(ch, *msg.ID)

	case httpSSE:
		if err := c.postAck(ctx, st.endpoint.String(), msg, protocolVersionSSE); err != nil {
			c.pending.remove(*msg.ID)
			return nil, err
		}
		return c.await(ctx, ch, *msg.ID)

	default:
		c.pending.remove(*msg.ID)
		return nil, &tether.ClassifiedError{
			Kind:    tether.KindConnectionFailed,
			Message: "Not connected.",
			Detail:  fmt.Sprintf("call %q issued in state %T", method, state),
			Cause:   tether.ErrNotConnected,
		}
	}
}

// ListTools returns every callable remote operation, following pagination
// cursors until the server is exhausted.
func (c *Client) ListTools(ctx context.Context) ([]tether.Tool, error) {
	var tools []tether.Tool
	var cursor string
	for {
		raw, err := c.Call(ctx, methodListTools, listToolsParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		var page listToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, decodeErr(methodListTools, err)
		}
		tools = append(tools, page.Tools...)
		if page.NextCursor == "" {
			return tools, nil
		}
		cursor = page.NextCursor
	}
}

// CallTool invokes a named tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, args any) (*tether.ToolResult, error) {
	rawArgs, err := marshalParams(args)
	if err != nil {
		return nil, &tether.ClassifiedError{
			Kind:    tether.KindInvalidRequest,
			Message: "The tool arguments could not be encoded.",
			Detail:  err.Error(),
			Cause:   err,
		}
	}
	raw, err := c.Call(ctx, methodCallTool, callToolParams{Name: name, Arguments: rawArgs})
	if err != nil {
		return nil, err
	}
	var result tether.ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, decodeErr(methodCallTool, err)
	}
	return &result, nil
}

// Close tears the connection down: cancels the reader, rejects all pending
// calls with a cancelled classification, and resets to disconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = disconnected{}
	cancel := c.lifeCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.pending.cancelAll(closedErr())
	c.log.Debug().Msg("connection closed")
	return nil
}

// SessionID returns the server-issued session id, if any.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch st := c.state.(type) {
	case streamableHTTP:
		return st.sessionID
	case httpSSE:
		return st.sessionID
	default:
		return ""
	}
}

// Transport names the negotiated transport, or "" when not connected.
func (c *Client) Transport() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state.(type) {
	case streamableHTTP:
		return "streamable-http"
	case httpSSE:
		return "http-sse"
	default:
		return ""
	}
}

// readStream is the single reader of a persistent GET stream. It frames
// incoming bytes and routes the resulting events until the stream ends.
// A stream that ends while ctx is live was lost unexpectedly and triggers
// reconnection.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser) {
	defer body.Close()
	f := newFramer(c.log, false)
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			c.deliver(f.feed(buf[:n]))
		}
		if err != nil {
			c.deliver(f.finish())
			if ctx.Err() != nil {
				return // caller-initiated teardown
			}
			c.streamLost(err)
			return
		}
	}
}

// streamLost handles unexpected termination of the GET stream: pending
// calls are rejected and reconnection starts in the background, preserving
// the already-negotiated transport kind.
func (c *Client) streamLost(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = connecting{}
	life := c.lifeCtx
	c.mu.Unlock()

	cerr := &tether.ClassifiedError{
		Kind:      tether.KindConnectionFailed,
		Retryable: true,
		Message:   "Connection to the server was lost.",
		Detail:    err.Error(),
		Cause:     err,
	}
	c.pending.cancelAll(cerr)
	c.log.Warn().Err(err).Msg("stream lost, reconnecting")

	go func() {
		_, rerr := backoff.Retry(life, c.connectPolicy, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.negotiateSSE(ctx)
		}, backoff.WithOnRetry(func(attempt int, delay time.Duration, cerr *tether.ClassifiedError) {
			c.log.Warn().
				Int("attempt", attempt).
				Dur("delay", delay).
				Str("kind", string(cerr.Kind)).
				Msg("reconnect failed, retrying")
		}))
		if rerr != nil {
			c.setState(disconnected{})
			c.log.Error().Err(rerr).Msg("reconnect abandoned")
		}
	}()
}

// consume synchronously reads one POST response body through the framer.
// The body ending after its response is normal on this transport.
func (c *Client) consume(body io.ReadCloser) error {
	defer body.Close()
	f := newFramer(c.log, true)
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			c.deliver(f.feed(buf[:n]))
		}
		if err != nil {
			c.deliver(f.finish())
			if err == io.EOF {
				return nil
			}
			return tether.Classify(err)
		}
	}
}

// deliver routes framed events: responses and notifications to the
// correlator, the endpoint event to the negotiation wait.
func (c *Client) deliver(events []tether.StreamEvent) {
	for _, ev := range events {
		switch e := ev.(type) {
		case tether.MessageEvent:
			c.pending.dispatch(e.Msg)
		case tether.EndpointEvent:
			select {
			case c.endpointCh <- e:
			default:
				c.log.Debug().Str("path", e.Path).Msg("discarding duplicate endpoint event")
			}
		}
	}
}

// newCall allocates the next request id and registers the pending call.
func (c *Client) newCall(method string, params json.RawMessage) (tether.Message, <-chan callResult, error) {
	id := tether.NewRequestID(c.nextID.Add(1))
	msg := tether.NewRequest(id, method, params)
	ch, err := c.pending.register(id)
	if err != nil {
		return tether.Message{}, nil, tether.Classify(err)
	}
	return msg, ch, nil
}

// await blocks until the pending call completes or ctx is cancelled.
func (c *Client) await(ctx context.Context, ch <-chan callResult, id tether.RequestID) (json.RawMessage, error) {
	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		c.pending.remove(id)
		return nil, tether.Classify(ctx.Err())
	}
}

// awaitNow expects the call to have completed already: on the streamable
// transport the response is delivered by the POST body just consumed. A body
// that closed without carrying the response is a server fault.
func (c *Client) awaitNow(ch <-chan callResult, id tether.RequestID) (json.RawMessage, error) {
	select {
	case r := <-ch:
		return r.result, r.err
	default:
		c.pending.remove(id)
		return nil, &tether.ClassifiedError{
			Kind:      tether.KindServerError,
			Retryable: true,
			Message:   "The server returned no response.",
			Detail:    "response body ended without a message for id " + id.Key(),
		}
	}
}

// sendInitialized emits the post-handshake initialized notification.
// Failures are logged, not surfaced; servers treat the notification as
// advisory.
func (c *Client) sendInitialized(ctx context.Context) {
	note := tether.NewNotification(notifInitialized, nil)

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	var err error
	switch st := state.(type) {
	case streamableHTTP:
		var resp *http.Response
		resp, err = c.post(ctx, c.url, note, protocolVersionStreamable, st.sessionID)
		if err == nil {
			drain(resp)
		}
	case httpSSE:
		err = c.postAck(ctx, st.endpoint.String(), note, protocolVersionSSE)
	}
	if err != nil {
		c.log.Debug().Err(err).Msg("initialized notification failed")
	}
}

// post sends one JSON-RPC message with the transport headers.
func (c *Client) post(ctx context.Context, target string, msg tether.Message, version, sessionID string) (*http.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")
	req.Header.Set(headerProtocolVersion, version)
	if sessionID != "" {
		req.Header.Set(headerSessionID, sessionID)
	}
	return c.httpClient.Do(req)
}

// postAck sends a message whose HTTP response is only an acknowledgement;
// the real response, if any, arrives on the GET stream.
func (c *Client) postAck(ctx context.Context, target string, msg tether.Message, version string) error {
	resp, err := c.post(ctx, target, msg, version, "")
	if err != nil {
		return tether.Classify(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.classifyResponse(resp)
	}
	drain(resp)
	return nil
}

// classifyResponse turns a non-2xx response into a ClassifiedError and fires
// the credential-invalidation signal on auth failures. It closes the body.
func (c *Client) classifyResponse(resp *http.Response) *tether.ClassifiedError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	cerr := tether.ClassifyResponse(resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
	if cerr.Kind == tether.KindAuthFailed && c.onAuthInvalid != nil {
		c.onAuthInvalid()
	}
	return cerr
}

func (c *Client) resolveEndpoint(path string) (*url.URL, error) {
	base, err := url.Parse(c.url)
	if err != nil {
		return nil, &tether.ClassifiedError{
			Kind:    tether.KindInvalidRequest,
			Message: "The server URL is invalid.",
			Detail:  err.Error(),
			Cause:   err,
		}
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, &tether.ClassifiedError{
			Kind:    tether.KindInvalidRequest,
			Message: "The server sent an invalid endpoint.",
			Detail:  fmt.Sprintf("endpoint %q: %v", path, err),
			Cause:   err,
		}
	}
	return base.ResolveReference(ref), nil
}

func (c *Client) setState(s transportState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) logHandshake(raw json.RawMessage, transport, sessionID string) {
	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.log.Debug().Err(err).Msg("unparseable initialize result")
		return
	}
	c.log.Debug().
		Str("transport", transport).
		Str("session_id", sessionID).
		Str("server", result.ServerInfo.Name).
		Str("server_version", result.ServerInfo.Version).
		Str("protocol_version", result.ProtocolVersion).
		Msg("connected")
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(params)
	}
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err) // static types above; cannot fail
	}
	return b
}

func decodeErr(method string, err error) *tether.ClassifiedError {
	return &tether.ClassifiedError{
		Kind:    tether.KindUnknown,
		Message: "The server response could not be decoded.",
		Detail:  fmt.Sprintf("%s: %v", method, err),
		Cause:   err,
	}
}

func closedErr() *tether.ClassifiedError {
	return &tether.ClassifiedError{
		Kind:    tether.KindCancelled,
		Message: "The connection was closed.",
		Detail:  "operation on a closed client",
		Cause:   tether.ErrClosed,
	}
}

// drain discards a small acknowledgement body so the connection can be
// reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
}
