// Package events is the in-process pub/sub bus. Server components publish
// typed events (registrations, payments, provenance appends, federation
// runs) and subscribers — the websocket stream, tests — receive them on
// buffered channels.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published by the gateway.
const (
	TypeResourceRegistered = "hyprcat.resource.registered"
	TypePaymentInvoiced    = "hyprcat.payment.invoiced"
	TypePaymentSettled     = "hyprcat.payment.settled"
	TypeQueryExecuted      = "hyprcat.query.executed"
	TypeProvenanceAppend   = "hyprcat.provenance.appended"
	TypeAuthVerified       = "hyprcat.auth.verified"
	TypeTokenMinted        = "hyprcat.token.minted"
	TypeTokenBurned        = "hyprcat.token.burned"
)

// Event is the envelope delivered to subscribers.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Source  string         `json:"source"`
	Subject string         `json:"subject,omitempty"`
	Time    time.Time      `json:"time"`
	Data    map[string]any `json:"data,omitempty"`
}

// Emitter is the publishing half of the bus.
type Emitter interface {
	Emit(eventType, source, subject string, data map[string]any)
}

// Bus fans events out to subscribers. Delivery is non-blocking: a full
// subscriber channel drops the event rather than stalling the publisher.
type Bus struct {
	mu         sync.RWMutex
	byType     map[string][]chan Event
	allSubs    []chan Event
	bufferSize int
}

// NewBus creates a bus with a per-subscriber buffer of 100 events.
func NewBus() *Bus {
	return &Bus{byType: make(map[string][]chan Event), bufferSize: 100}
}

// Subscribe returns a channel receiving events of the given types, or all
// events when none are named.
func (b *Bus) Subscribe(eventTypes ...string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, b.bufferSize)
	if len(eventTypes) == 0 {
		b.allSubs = append(b.allSubs, ch)
		return ch
	}
	for _, et := range eventTypes {
		b.byType[et] = append(b.byType[et], ch)
	}
	return ch
}

// Unsubscribe removes and closes a subscription channel. The close only
// happens when the channel was still registered, so racing Close is
// safe: whoever removes the channel closes it.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := false
	for et, subs := range b.byType {
		trimmed := without(subs, ch)
		if len(trimmed) != len(subs) {
			removed = true
		}
		b.byType[et] = trimmed
	}
	trimmed := without(b.allSubs, ch)
	if len(trimmed) != len(b.allSubs) {
		removed = true
	}
	b.allSubs = trimmed
	if removed {
		close(ch)
	}
}

// Emit creates and publishes an event.
func (b *Bus) Emit(eventType, source, subject string, data map[string]any) {
	ev := Event{
		ID:      "urn:uuid:" + uuid.NewString(),
		Type:    eventType,
		Source:  source,
		Subject: subject,
		Time:    time.Now().UTC(),
		Data:    data,
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.byType[eventType] {
		select {
		case ch <- ev:
		default:
		}
	}
	for _, ch := range b.allSubs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close shuts down every subscription. Emit after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	closed := make(map[chan Event]bool)
	for _, subs := range b.byType {
		for _, ch := range subs {
			if !closed[ch] {
				closed[ch] = true
				close(ch)
			}
		}
	}
	for _, ch := range b.allSubs {
		if !closed[ch] {
			closed[ch] = true
			close(ch)
		}
	}
	b.byType = make(map[string][]chan Event)
	b.allSubs = nil
}

func without(subs []chan Event, ch chan Event) []chan Event {
	out := subs[:0]
	for _, s := range subs {
		if s != ch {
			out = append(out, s)
		}
	}
	return out
}
