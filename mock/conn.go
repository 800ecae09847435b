// Package mock provides test doubles for tether interfaces using function
// fields.
package mock

import (
	"context"
	"encoding/json"

	"github.com/fwojciec/tether"
)

// Interface compliance check.
var _ tether.Conn = (*Conn)(nil)

// Conn is a test double for tether.Conn.
// Set the function fields for the methods you need.
type Conn struct {
	ConnectFn   func(ctx context.Context) error
	CallFn      func(ctx context.Context, method string, params any) (json.RawMessage, error)
	ListToolsFn func(ctx context.Context) ([]tether.Tool, error)
	CallToolFn  func(ctx context.Context, name string, args any) (*tether.ToolResult, error)
	CloseFn     func() error
}

// Connect delegates to ConnectFn.
func (c *Conn) Connect(ctx context.Context) error {
	return c.ConnectFn(ctx)
}

// Call delegates to CallFn.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.CallFn(ctx, method, params)
}

// ListTools delegates to ListToolsFn.
func (c *Conn) ListTools(ctx context.Context) ([]tether.Tool, error) {
	return c.ListToolsFn(ctx)
}

// CallTool delegates to CallToolFn.
func (c *Conn) CallTool(ctx context.Context, name string, args any) (*tether.ToolResult, error) {
	return c.CallToolFn(ctx, name, args)
}

// Close delegates to CloseFn.
func (c *Conn) Close() error {
	return c.CloseFn()
}
