package ws

import "encoding/json"

// Message is the envelope for everything crossing a dashboard socket.
type Message struct {
	Type string `json:"type"`
	// Token is only set on auth messages.
	Token string `json:"token,omitempty"`
	// TripID is only set on subscribe messages, naming the trip the
	// dashboard is watching (empty to watch none).
	TripID string `json:"trip_id,omitempty"`
	// EventType and Data carry an operational event.
	EventType string          `json:"event_type,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	MsgTypeAuth      = "auth"
	MsgTypeSubscribe = "subscribe"
	MsgTypeEvent     = "event"
	// MsgTypeResync tells the dashboard it fell behind and was dropped
	// from the event stream; it must re-fetch projections and
	// re-subscribe.
	MsgTypeResync = "resync"
)
