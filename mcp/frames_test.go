package mcp

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwojciec/tether"
)

func feedAll(f *framer, input string) []tether.StreamEvent {
	events := f.feed([]byte(input))
	return append(events, f.finish()...)
}

func TestFramer_BasicStream(t *testing.T) {
	t.Parallel()

	f := newFramer(zerolog.Nop(), false)
	input := "event: message\n" +
		"data: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{\"ok\":true}}\n" +
		"\n" +
		"event: message\n" +
		"data: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n" +
		"\n"

	events := feedAll(f, input)
	require.Len(t, events, 2)

	first, ok := events[0].(tether.MessageEvent)
	require.True(t, ok)
	assert.Equal(t, "1", first.Msg.ID.Key())

	second, ok := events[1].(tether.MessageEvent)
	require.True(t, ok)
	assert.Equal(t, "notifications/progress", second.Msg.Method)
}

func TestFramer_ChunkBoundaryInvariant(t *testing.T) {
	t.Parallel()

	input := "event: endpoint\n" +
		"data: /messages?sessionId=s-1\n" +
		"event: message\n" +
		"data: {\"jsonrpc\":\"2.0\",\"id\":7,\"result\":{}}\n" +
		"data: not json at all\n" +
		"data: {\"jsonrpc\":\"2.0\",\"method\":\"note\",\"params\":{\"n\":1}}\n"

	whole := feedAll(newFramer(zerolog.Nop(), false), input)

	// Splitting the byte stream at every possible boundary must yield the
	// same ordered events as feeding it in one piece.
	for split := 1; split < len(input); split++ {
		f := newFramer(zerolog.Nop(), false)
		events := f.feed([]byte(input[:split]))
		events = append(events, f.feed([]byte(input[split:]))...)
		events = append(events, f.finish()...)
		require.Equal(t, whole, events, "split at byte %d", split)
	}

	// And one byte at a time.
	f := newFramer(zerolog.Nop(), false)
	var events []tether.StreamEvent
	for i := 0; i < len(input); i++ {
		events = append(events, f.feed([]byte{input[i]})...)
	}
	events = append(events, f.finish()...)
	assert.Equal(t, whole, events)
}

func TestFramer_EndpointEvent(t *testing.T) {
	t.Parallel()

	t.Run("with session id", func(t *testing.T) {
		t.Parallel()
		f := newFramer(zerolog.Nop(), false)
		events := f.feed([]byte("event: endpoint\ndata: /messages?sessionId=abc123\n"))
		require.Len(t, events, 1)
		ep, ok := events[0].(tether.EndpointEvent)
		require.True(t, ok)
		assert.Equal(t, "/messages?sessionId=abc123", ep.Path)
		assert.Equal(t, "abc123", ep.SessionID)
	})

	t.Run("without session id", func(t *testing.T) {
		t.Parallel()
		f := newFramer(zerolog.Nop(), false)
		events := f.feed([]byte("event: endpoint\ndata: /messages\n"))
		require.Len(t, events, 1)
		ep := events[0].(tether.EndpointEvent)
		assert.Equal(t, "/messages", ep.Path)
		assert.Empty(t, ep.SessionID)
	})

	t.Run("event name resets after the data line", func(t *testing.T) {
		t.Parallel()
		f := newFramer(zerolog.Nop(), false)
		events := f.feed([]byte("event: endpoint\ndata: /messages\ndata: {\"jsonrpc\":\"2.0\",\"method\":\"x\"}\n"))
		require.Len(t, events, 2)
		assert.IsType(t, tether.EndpointEvent{}, events[0])
		assert.IsType(t, tether.MessageEvent{}, events[1])
	})
}

func TestFramer_MalformedLineTolerance(t *testing.T) {
	t.Parallel()

	f := newFramer(zerolog.Nop(), false)
	input := "data: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{}}\n" +
		"data: {broken json!!\n" +
		"data: [DONE]\n" +
		"data: {\"jsonrpc\":\"2.0\",\"id\":2,\"result\":{}}\n"

	events := feedAll(f, input)
	require.Len(t, events, 2, "malformed and [DONE] lines are dropped, the rest survive")
	assert.Equal(t, "1", events[0].(tether.MessageEvent).Msg.ID.Key())
	assert.Equal(t, "2", events[1].(tether.MessageEvent).Msg.ID.Key())
}

func TestFramer_CRLFLines(t *testing.T) {
	t.Parallel()

	f := newFramer(zerolog.Nop(), false)
	events := feedAll(f, "event: message\r\ndata: {\"jsonrpc\":\"2.0\",\"id\":5,\"result\":{}}\r\n")
	require.Len(t, events, 1)
	assert.Equal(t, "5", events[0].(tether.MessageEvent).Msg.ID.Key())
}

func TestFramer_BareJSONBody(t *testing.T) {
	t.Parallel()

	t.Run("unterminated body flushes on finish", func(t *testing.T) {
		t.Parallel()
		f := newFramer(zerolog.Nop(), true)
		events := f.feed([]byte(`{"jsonrpc":"2.0","id":3,"result":{"tools":[]}}`))
		assert.Empty(t, events)
		events = f.finish()
		require.Len(t, events, 1)
		assert.Equal(t, "3", events[0].(tether.MessageEvent).Msg.ID.Key())
	})

	t.Run("newline-terminated body emits on feed", func(t *testing.T) {
		t.Parallel()
		f := newFramer(zerolog.Nop(), true)
		events := feedAll(f, "{\"jsonrpc\":\"2.0\",\"id\":4,\"result\":{}}\n")
		require.Len(t, events, 1)
		assert.Equal(t, "4", events[0].(tether.MessageEvent).Msg.ID.Key())
	})

	t.Run("disabled outside the POST transport", func(t *testing.T) {
		t.Parallel()
		f := newFramer(zerolog.Nop(), false)
		_ = f.feed([]byte(`{"jsonrpc":"2.0","id":3,"result":{}}`))
		assert.Empty(t, f.finish())
	})

	t.Run("SSE-framed POST body still frames normally", func(t *testing.T) {
		t.Parallel()
		f := newFramer(zerolog.Nop(), true)
		events := feedAll(f, "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":6,\"result\":{}}\n")
		require.Len(t, events, 1)
		assert.Equal(t, "6", events[0].(tether.MessageEvent).Msg.ID.Key())
	})
}

func TestFramer_TrailingFragmentAcrossFeeds(t *testing.T) {
	t.Parallel()

	f := newFramer(zerolog.Nop(), false)
	payload := `{"jsonrpc":"2.0","id":9,"result":{}}`
	line := fmt.Sprintf("data: %s\n", payload)

	assert.Empty(t, f.feed([]byte(line[:10])))
	assert.Empty(t, f.feed([]byte(line[10:20])))
	events := f.feed([]byte(line[20:]))
	require.Len(t, events, 1)
	assert.Equal(t, "9", events[0].(tether.MessageEvent).Msg.ID.Key())
}
