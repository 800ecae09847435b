package tether

// StreamEvent is a sealed interface representing one unit produced by the
// stream framer. The unexported marker method prevents external
// implementations.
type StreamEvent interface {
	streamEvent()
}

// MessageEvent carries a parsed protocol message.
type MessageEvent struct {
	Msg Message
}

func (MessageEvent) streamEvent() {}

// EndpointEvent is the one-time message from a legacy-transport server
// telling the client where to submit subsequent calls. Path may be relative
// to the connect URL. SessionID is extracted from the path's sessionId query
// parameter when present.
type EndpointEvent struct {
	Path      string
	SessionID string
}

func (EndpointEvent) streamEvent() {}

// Interface compliance checks.
var (
	_ StreamEvent = MessageEvent{}
	_ StreamEvent = EndpointEvent{}
)
