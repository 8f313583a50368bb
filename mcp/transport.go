package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	mcpPath    = "/mcp"
	healthPath = "/health"

	// SessionHeader carries the session id on every request once one is
	// known. The server reissues it on responses, case-insensitively.
	SessionHeader = "Mcp-Session-Id"

	// HealthTimeout bounds the /health liveness probe.
	HealthTimeout = 5 * time.Second

	// TransferTimeout is the default timeout for raw file transfers, sized
	// for large plan attachments on slow links.
	TransferTimeout = 2 * time.Minute
)

// transport issues HTTP calls against the plan server and understands the
// streamable HTTP response conventions (plain JSON or SSE-wrapped JSON).
type transport struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func newTransport(baseURL string, client *http.Client, log *slog.Logger) *transport {
	return &transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

// post sends a JSON-RPC message and decodes the response. The response
// headers are returned alongside so the caller can observe the session id
// header. sessionID, when non-empty, is attached to the request.
func (t *transport) post(ctx context.Context, path string, message any, sessionID string) (*JSONRPCResponse, http.Header, error) {
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// The server may answer either way under the streamable HTTP convention
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}

	// 202 with an empty body is how the server acknowledges notifications
	if resp.StatusCode == http.StatusAccepted && len(bytes.TrimSpace(body)) == 0 {
		return &JSONRPCResponse{JSONRPC: "2.0", Result: json.RawMessage("{}")}, resp.Header, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header, &TransportError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	raw := body
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		raw, err = decodeSSEBody(body)
		if err != nil {
			return nil, resp.Header, &TransportError{StatusCode: resp.StatusCode, Body: string(body), Err: err}
		}
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, resp.Header, &TransportError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("failed to parse response body: %w", err),
		}
	}
	return &rpcResp, resp.Header, nil
}

// dataLine strips the data: prefix and the single optional space after it,
// per the SSE field syntax. Further whitespace belongs to the payload.
func dataLine(line string) string {
	return strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
}

// decodeSSEBody extracts the JSON document from a buffered single-response
// SSE payload: every data: line, prefix stripped, joined with newlines
// exactly as the live stream reassembles frames.
func decodeSSEBody(body []byte) ([]byte, error) {
	var lines []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		lines = append(lines, dataLine(line))
	}
	if lines == nil {
		return nil, fmt.Errorf("no data line in event stream body")
	}
	return []byte(strings.Join(lines, "\n")), nil
}

// raw performs a non-JSON-RPC request, used for the plan file download and
// upload side-channel. A non-positive timeout applies TransferTimeout. The
// response bytes and headers are returned for the caller to interpret.
func (t *transport) raw(ctx context.Context, method, path string, headers map[string]string, body io.Reader, timeout time.Duration) ([]byte, http.Header, error) {
	if timeout <= 0 {
		timeout = TransferTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.Header, &TransportError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, resp.Header, nil
}

// health reports whether the server answers the liveness probe with 200.
// Any error, timeout, or other status reads as unhealthy.
func (t *transport) health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+healthPath, nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}
