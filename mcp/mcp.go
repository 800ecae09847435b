// Package mcp implements a Model Context Protocol client over its two HTTP
// transports: request/response over POST (streamable HTTP) and a persistent
// GET event stream with a server-provided submission endpoint (legacy SSE).
// Transport selection happens once, on the first initialize call; see
// [Client.Connect].
package mcp

import (
	"encoding/json"

	"github.com/fwojciec/tether"
)

const (
	// Protocol revision advertised on the streamable HTTP transport.
	protocolVersionStreamable = "2025-06-18"
	// Protocol revision advertised on the legacy SSE transport.
	protocolVersionSSE = "2024-11-05"

	headerProtocolVersion = "MCP-Protocol-Version"
	headerSessionID       = "Mcp-Session-Id"

	methodInitialize = "initialize"
	methodListTools  = "tools/list"
	methodCallTool   = "tools/call"

	notifInitialized = "notifications/initialized"

	// eventEndpoint names the one-time SSE event carrying the submission path.
	eventEndpoint = "endpoint"
)

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

type listToolsParams struct {
	Cursor string `json:"cursor,omitempty"`
}

type listToolsResult struct {
	Tools      []tether.Tool `json:"tools"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}
