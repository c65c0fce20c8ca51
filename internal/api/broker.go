package api

import "sync"

// SSEEvent is one fan-out event for a solve, delivered over SSE or WebSocket.
type SSEEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Broker is the in-memory event broker, keyed by solve id.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(solveID string) chan SSEEvent {
	ch := make(chan SSEEvent, 8)
	b.mu.Lock()
	if b.subs[solveID] == nil {
		b.subs[solveID] = map[chan SSEEvent]struct{}{}
	}
	b.subs[solveID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(solveID string, ch chan SSEEvent) {
	b.mu.Lock()
	if m := b.subs[solveID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, solveID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

// Publish delivers to every subscriber; slow consumers are skipped rather
// than blocking the solver goroutine.
func (b *Broker) Publish(solveID string, evt SSEEvent) {
	b.mu.Lock()
	m := b.subs[solveID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
