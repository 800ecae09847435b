package mcp

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fwojciec/tether"
)

// callResult completes a pending call with either a raw result or a
// classified error.
type callResult struct {
	result json.RawMessage
	err    error
}

// pendingCall is an in-flight remote operation awaiting a response.
type pendingCall struct {
	id      tether.RequestID
	ch      chan callResult // buffered, capacity 1
	created time.Time
}

// pendingSet owns the outstanding calls of one connection and matches
// incoming messages to them. Each call completes exactly once: dispatch
// removes the call from the set under the lock before delivering, so a late
// duplicate response finds nothing to complete and is discarded.
type pendingSet struct {
	mu     sync.Mutex
	calls  map[string]*pendingCall
	notify func(tether.Message)
	log    zerolog.Logger
}

func newPendingSet(log zerolog.Logger, notify func(tether.Message)) *pendingSet {
	return &pendingSet{
		calls:  make(map[string]*pendingCall),
		notify: notify,
		log:    log,
	}
}

// register adds a pending call and returns its completion channel. Ids must
// be unique among outstanding calls.
func (p *pendingSet) register(id tether.RequestID) (<-chan callResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := id.Key()
	if _, exists := p.calls[key]; exists {
		return nil, tether.ErrDuplicateCallID
	}
	call := &pendingCall{
		id:      id,
		ch:      make(chan callResult, 1),
		created: time.Now(),
	}
	p.calls[key] = call
	return call.ch, nil
}

// remove drops a pending call without completing it. Used by the issuing
// path when a call fails before a response could arrive.
func (p *pendingSet) remove(id tether.RequestID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.calls, id.Key())
}

// dispatch routes one protocol message. Responses complete their pending
// call; responses with no matching call are logged and discarded (late or
// duplicate); id-less messages are forwarded to the notification handler.
func (p *pendingSet) dispatch(msg tether.Message) {
	if !msg.IsResponse() {
		if msg.Method != "" && p.notify != nil {
			p.notify(msg)
			return
		}
		p.log.Debug().Str("method", msg.Method).Msg("ignoring unroutable message")
		return
	}

	p.mu.Lock()
	key := msg.ID.Key()
	call, ok := p.calls[key]
	if ok {
		delete(p.calls, key)
	}
	p.mu.Unlock()

	if !ok {
		p.log.Debug().Str("id", key).Msg("discarding response with no pending call")
		return
	}

	if msg.Error != nil {
		call.ch <- callResult{err: tether.Classify(msg.Error)}
		return
	}
	call.ch <- callResult{result: msg.Result}
}

// cancelAll rejects every outstanding call with err. Called on disconnect
// and on unexpected stream loss.
func (p *pendingSet) cancelAll(err error) {
	p.mu.Lock()
	calls := p.calls
	p.calls = make(map[string]*pendingCall)
	p.mu.Unlock()

	for _, call := range calls {
		call.ch <- callResult{err: tether.Classify(err)}
	}
}

// size returns the number of outstanding calls.
func (p *pendingSet) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
