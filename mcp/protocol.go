package mcp

import "encoding/json"

// JSON-RPC 2.0 message types for the plan server's MCP protocol

const (
	ProtocolVersion = "2024-11-05"
	ClientName      = "plural-client"
	ClientVersion   = "1.0.0"
)

// JSONRPCRequest represents an outgoing JSON-RPC request.
// Notifications use a nil ID.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCResponse represents an incoming JSON-RPC response
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// MCP protocol specific types

// InitializeParams for the initialize method
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    Capability `json:"capabilities"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

// Capability represents MCP capabilities. This client advertises none.
type Capability struct{}

// ClientInfo represents client information
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult for the initialize response
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    Capability `json:"capabilities"`
	ServerInfo      ServerInfo `json:"serverInfo"`
	Instructions    string     `json:"instructions,omitempty"`
}

// ServerInfo represents server information
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolCallParams represents parameters for tools/call
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCallResult represents the result of a tool call
type ToolCallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ContentItem represents content in a tool result
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ResourceParams for resources/read, resources/subscribe and resources/unsubscribe
type ResourceParams struct {
	URI string `json:"uri"`
}

// ResourceReadResult for resources/read responses
type ResourceReadResult struct {
	Contents []ResourceContent `json:"contents"`
}

// ResourceContent is one entry in a resources/read result
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// NotificationEvent is a server-pushed notification delivered over the SSE
// stream. It is not a JSON-RPC request; there is nothing to respond to.
type NotificationEvent struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}
