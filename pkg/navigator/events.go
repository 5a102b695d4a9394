package navigator

import "time"

// EventKind classifies what the client just did.
type EventKind string

const (
	EventRequest    EventKind = "request"
	EventResponse   EventKind = "response"
	EventPayment    EventKind = "payment"
	EventNavigation EventKind = "navigation"
)

// Event is one step in the client's traversal, published on the
// channel returned by Events. Payment events fire when a 402 demand is
// encountered; navigation events fire when a dereference lands.
type Event struct {
	Kind   EventKind
	Method string
	URL    string
	Status int
	Time   time.Time
}

// WithEvents enables the event channel with the given buffer size.
// Events are dropped rather than blocking when the consumer lags.
func WithEvents(buffer int) Option {
	return func(c *Client) { c.events = make(chan Event, buffer) }
}

// Events returns the event channel, or nil when not enabled.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) emit(kind EventKind, method, url string, status int) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- Event{Kind: kind, Method: method, URL: url, Status: status, Time: time.Now()}:
	default:
	}
}
