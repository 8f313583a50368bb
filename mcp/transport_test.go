package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTransport(baseURL string) *transport {
	return newTransport(baseURL, &http.Client{}, discardLogger())
}

func TestPost_JSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		if accept := r.Header.Get("Accept"); !strings.Contains(accept, "application/json") || !strings.Contains(accept, "text/event-stream") {
			t.Errorf("Accept = %q, want both json and event-stream", accept)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("mcp-session-id", "sess-1")
		io.WriteString(w, `{"jsonrpc":"2.0","id":"1","result":{"ok":true}}`)
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	resp, header, err := tr.post(context.Background(), mcpPath, &JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "ping"}, "")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if string(resp.Result) != `{"ok":true}` {
		t.Errorf("result = %s", resp.Result)
	}
	if header.Get(SessionHeader) != "sess-1" {
		t.Errorf("session header not surfaced, got %q", header.Get(SessionHeader))
	}
}

func TestPost_SSEWrappedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"jsonrpc\":\"2.0\",\"id\":\"1\",\"result\":{\"ok\":true}}\n\n")
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	resp, _, err := tr.post(context.Background(), mcpPath, &JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "ping"}, "")
	if err != nil {
		t.Fatalf("post: %v", err)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result.OK {
		t.Error("result.ok = false, want true")
	}
}

func TestPost_AcceptedNoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	resp, _, err := tr.post(context.Background(), mcpPath, &JSONRPCRequest{JSONRPC: "2.0", Method: "notifications/test"}, "")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.Error != nil {
		t.Errorf("unexpected error: %v", resp.Error)
	}
	if string(resp.Result) != "{}" {
		t.Errorf("result = %s, want {}", resp.Result)
	}
}

func TestPost_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "boom")
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	_, _, err := tr.post(context.Background(), mcpPath, &JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "ping"}, "")

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T (%v), want TransportError", err, err)
	}
	if te.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", te.StatusCode)
	}
	if !strings.Contains(te.Body, "boom") {
		t.Errorf("body = %q, want to contain boom", te.Body)
	}
}

func TestPost_UnparsableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, "definitely not json")
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	_, _, err := tr.post(context.Background(), mcpPath, &JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "ping"}, "")

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T (%v), want TransportError", err, err)
	}
}

func TestPost_SessionHeaderSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(SessionHeader); got != "abc123" {
			t.Errorf("session header = %q, want abc123", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"jsonrpc":"2.0","id":"1","result":{}}`)
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	if _, _, err := tr.post(context.Background(), mcpPath, &JSONRPCRequest{JSONRPC: "2.0", ID: "1", Method: "ping"}, "abc123"); err != nil {
		t.Fatalf("post: %v", err)
	}
}

func TestDecodeSSEBody(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{
			name: "single data line",
			body: "data: {\"ok\":true}\n\n",
			want: `{"ok":true}`,
		},
		{
			name: "multiple data lines joined with newlines",
			body: "data: {\"ok\":\ndata: true}\n\n",
			want: "{\"ok\":\ntrue}",
		},
		{
			name: "payload whitespace preserved past the field space",
			body: "data: {\"note\":\"a\ndata:  b\"}\n\n",
			want: "{\"note\":\"a\n b\"}",
		},
		{
			name: "event and id lines ignored",
			body: "event: message\nid: 7\ndata: {\"ok\":true}\n\n",
			want: `{"ok":true}`,
		},
		{
			name: "carriage returns stripped",
			body: "data: {\"ok\":true}\r\n\r\n",
			want: `{"ok":true}`,
		},
		{
			name:    "no data line",
			body:    ": heartbeat\n\n",
			wantErr: true,
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeSSEBody([]byte(tc.body))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("decodeSSEBody(%q) = %q, want error", tc.body, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeSSEBody(%q): %v", tc.body, err)
			}
			if string(got) != tc.want {
				t.Errorf("decodeSSEBody(%q) = %q, want %q", tc.body, got, tc.want)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != healthPath {
				t.Errorf("path = %s, want %s", r.URL.Path, healthPath)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		if !newTestTransport(srv.URL).health(context.Background()) {
			t.Error("health = false, want true")
		}
	})

	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		if newTestTransport(srv.URL).health(context.Background()) {
			t.Error("health = true, want false")
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // connection refused

		if newTestTransport(srv.URL).health(context.Background()) {
			t.Error("health = true, want false")
		}
	})
}

func TestRaw_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, "nope")
	}))
	defer srv.Close()

	tr := newTestTransport(srv.URL)
	_, _, err := tr.raw(context.Background(), http.MethodGet, "/plan/p1", nil, nil, 0)

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %T (%v), want TransportError", err, err)
	}
	if te.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", te.StatusCode)
	}
	if te.Body != "nope" {
		t.Errorf("body = %q", te.Body)
	}
}
