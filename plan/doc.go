// Package plan is the typed convenience surface over the generic MCP
// client. It names the server's plan tools, normalizes the argument and
// result shapes that drifted across server versions, and offers a watcher
// that follows one plan's resource through session recoveries.
//
// All methods delegate to mcp.Client; nothing in this package holds plan
// state of its own.
package plan
