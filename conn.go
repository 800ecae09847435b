package tether

import (
	"context"
	"encoding/json"
)

// Conn is a strategy pattern interface for transport clients. Collaborators
// (agent loops, CLIs) depend on this interface rather than a concrete
// transport.
//
// All blocking operations honor ctx cancellation. Every error returned by a
// Conn method is a *ClassifiedError.
type Conn interface {
	// Connect negotiates a transport and performs the initialize handshake.
	Connect(ctx context.Context) error

	// Call invokes a remote operation and returns its raw result.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// ListTools returns the callable remote operations advertised by the
	// server.
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool invokes a named tool with the given arguments.
	CallTool(ctx context.Context, name string, args any) (*ToolResult, error)

	// Close tears the connection down, rejecting all pending calls with a
	// cancelled classification. Close is idempotent.
	Close() error
}
