// Package mcp implements the client side of the plan server's MCP protocol
// over streamable HTTP.
//
// # Overview
//
// All structured traffic is JSON-RPC 2.0 POSTed to a single /mcp endpoint.
// The server may answer a POST with plain JSON or with the same JSON wrapped
// in a single Server-Sent-Events payload; the transport handles both. A
// long-lived GET against the same endpoint carries server-pushed
// notifications as an SSE stream.
//
// # Session lifecycle
//
// The server issues an opaque session id in the mcp-session-id response
// header. The client captures it during the initialize handshake, echoes it
// on every subsequent request, and transparently adopts rotated ids. When
// the server forgets the session (HTTP 404, or a JSON-RPC error mentioning
// "session not found"), the client runs a single guarded recovery: tear down
// the notification stream, re-run the handshake, fire recovery listeners,
// and retry the failing request exactly once.
//
// # Notification stream
//
// The stream exists only while a session id is known. It parses SSE frames
// incrementally, silently drops heartbeats and malformed frames, and
// dispatches JSON frames carrying a method name to registered handlers in
// registration order. When the server closes the stream the client
// reconnects after a fixed delay; an explicit Close never reconnects.
//
// # Components
//
// Client: session management, request dispatch, recovery, handler and
// recovery-listener registries, tool/resource helpers.
//
// transport: raw HTTP issuance, dual-mode response decoding, the file
// transfer side-channel, and the /health probe.
//
// eventStream: the supervised long-lived SSE connection.
package mcp
