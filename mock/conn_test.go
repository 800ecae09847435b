package mock_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwojciec/tether"
	"github.com/fwojciec/tether/mock"
)

func TestConn_Connect(t *testing.T) {
	t.Parallel()
	t.Run("delegates to ConnectFn", func(t *testing.T) {
		t.Parallel()
		called := false
		c := mock.Conn{
			ConnectFn: func(ctx context.Context) error {
				called = true
				return nil
			},
		}
		require.NoError(t, c.Connect(context.Background()))
		assert.True(t, called)
	})

	t.Run("returns error", func(t *testing.T) {
		t.Parallel()
		wantErr := errors.New("dial error")
		c := mock.Conn{
			ConnectFn: func(ctx context.Context) error {
				return wantErr
			},
		}
		assert.ErrorIs(t, c.Connect(context.Background()), wantErr)
	})

	t.Run("panics when ConnectFn not set", func(t *testing.T) {
		t.Parallel()
		var c mock.Conn
		assert.Panics(t, func() {
			_ = c.Connect(context.Background())
		})
	})
}

func TestConn_Call(t *testing.T) {
	t.Parallel()
	t.Run("delegates to CallFn", func(t *testing.T) {
		t.Parallel()
		want := json.RawMessage(`{"ok":true}`)
		c := mock.Conn{
			CallFn: func(ctx context.Context, method string, params any) (json.RawMessage, error) {
				assert.Equal(t, "tools/list", method)
				return want, nil
			},
		}
		got, err := c.Call(context.Background(), "tools/list", nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("returns error", func(t *testing.T) {
		t.Parallel()
		wantErr := errors.New("call error")
		c := mock.Conn{
			CallFn: func(ctx context.Context, method string, params any) (json.RawMessage, error) {
				return nil, wantErr
			},
		}
		_, err := c.Call(context.Background(), "tools/list", nil)
		assert.ErrorIs(t, err, wantErr)
	})
}

func TestConn_ListTools(t *testing.T) {
	t.Parallel()
	t.Run("delegates to ListToolsFn", func(t *testing.T) {
		t.Parallel()
		want := []tether.Tool{{Name: "echo"}}
		c := mock.Conn{
			ListToolsFn: func(ctx context.Context) ([]tether.Tool, error) {
				return want, nil
			},
		}
		got, err := c.ListTools(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func TestConn_CallTool(t *testing.T) {
	t.Parallel()
	t.Run("delegates to CallToolFn", func(t *testing.T) {
		t.Parallel()
		want := &tether.ToolResult{
			Content: []tether.ContentBlock{tether.TextBlock{Text: "result"}},
		}
		c := mock.Conn{
			CallToolFn: func(ctx context.Context, name string, args any) (*tether.ToolResult, error) {
				assert.Equal(t, "echo", name)
				return want, nil
			},
		}
		got, err := c.CallTool(context.Background(), "echo", map[string]string{"text": "hi"})
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("returns error", func(t *testing.T) {
		t.Parallel()
		wantErr := errors.New("tool error")
		c := mock.Conn{
			CallToolFn: func(ctx context.Context, name string, args any) (*tether.ToolResult, error) {
				return nil, wantErr
			},
		}
		_, err := c.CallTool(context.Background(), "echo", nil)
		assert.ErrorIs(t, err, wantErr)
	})
}

func TestConn_Close(t *testing.T) {
	t.Parallel()
	t.Run("delegates to CloseFn", func(t *testing.T) {
		t.Parallel()
		called := false
		c := mock.Conn{
			CloseFn: func() error {
				called = true
				return nil
			},
		}
		require.NoError(t, c.Close())
		assert.True(t, called)
	})
}
