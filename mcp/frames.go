package mcp

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fwojciec/tether"
)

// framer incrementally converts a byte stream into protocol messages and
// special events. It tolerates arbitrary chunk boundaries: at most one
// incomplete trailing line is buffered between feeds, and no message is ever
// split across two emitted events.
//
// The framing rule is deliberately simpler than standard SSE: a "data: "
// line is dispatched immediately rather than waiting for the terminating
// blank line. Servers for this protocol emit one data line per event.
type framer struct {
	buf   strings.Builder
	event string // current event name; reset after each data line
	// bareJSON enables the finish-time fallback for POST-transport bodies
	// that are a single unframed JSON value.
	bareJSON bool
	log      zerolog.Logger
}

func newFramer(log zerolog.Logger, bareJSON bool) *framer {
	return &framer{bareJSON: bareJSON, log: log}
}

// feed appends a chunk and returns the events completed by it.
func (f *framer) feed(chunk []byte) []tether.StreamEvent {
	f.buf.WriteString(string(chunk))
	text := f.buf.String()

	lines := strings.Split(text, "\n")
	f.buf.Reset()
	// The final element may be an incomplete line; keep it buffered.
	f.buf.WriteString(lines[len(lines)-1])

	var events []tether.StreamEvent
	for _, line := range lines[:len(lines)-1] {
		events = f.processLine(line, events)
	}
	return events
}

// finish flushes the trailing buffered line once the underlying stream ends.
// On the POST transport, a body that is a single bare JSON value with no SSE
// framing at all is parsed directly; some servers respond that way.
func (f *framer) finish() []tether.StreamEvent {
	rest := f.buf.String()
	f.buf.Reset()

	trimmed := strings.TrimSpace(rest)
	if trimmed == "" {
		return nil
	}
	if f.bareJSON && (trimmed[0] == '{' || trimmed[0] == '[') {
		return f.emitJSON(trimmed, nil)
	}
	return f.processLine(rest, nil)
}

func (f *framer) processLine(line string, events []tether.StreamEvent) []tether.StreamEvent {
	line = strings.TrimSuffix(line, "\r")

	switch {
	case strings.HasPrefix(line, "event: "):
		f.event = strings.TrimPrefix(line, "event: ")
		return events

	case strings.HasPrefix(line, "data: "):
		payload := strings.TrimPrefix(line, "data: ")
		event := f.event
		f.event = ""

		if payload == "[DONE]" {
			return events
		}
		if event == eventEndpoint {
			return append(events, parseEndpoint(payload))
		}
		return f.emitJSON(payload, events)

	default:
		// Unframed JSON lines occur on the POST transport when the server
		// terminates a bare JSON body with a newline.
		if f.bareJSON {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && (trimmed[0] == '{' || trimmed[0] == '[') {
				return f.emitJSON(trimmed, events)
			}
		}
		// Comments and unknown fields are ignored.
		return events
	}
}

// emitJSON parses payload as a protocol message. Malformed JSON is logged
// and dropped; it never aborts the stream.
func (f *framer) emitJSON(payload string, events []tether.StreamEvent) []tether.StreamEvent {
	var msg tether.Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		f.log.Debug().Err(err).Str("payload", payload).Msg("dropping malformed data line")
		return events
	}
	return append(events, tether.MessageEvent{Msg: msg})
}

// parseEndpoint extracts the submission path and the optional sessionId
// query parameter from an endpoint event payload.
func parseEndpoint(payload string) tether.EndpointEvent {
	ev := tether.EndpointEvent{Path: strings.TrimSpace(payload)}
	if u, err := url.Parse(ev.Path); err == nil {
		ev.SessionID = u.Query().Get("sessionId")
	}
	return ev
}
