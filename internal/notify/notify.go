// Package notify carries room announcements out of the engine. Delivery is
// fire and forget: a failed notification is logged by the caller and never
// retried, and never blocks phase progression.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two outbound message shapes.
type Kind string

const (
	// KindAnnounce is a one-shot line in the room's channel.
	KindAnnounce Kind = "announce"
	// KindTopBoard replaces the room's persistent status display.
	KindTopBoard Kind = "top_board"
)

// Event is one outbound notification for the messaging gateway.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	RoomID    string    `json:"roomId"`
	Ref       string    `json:"ref,omitempty"`
	Text      string    `json:"text"`
	Timestamp int64     `json:"timestamp"`
}

// Notifier is the engine's one-way port to the messaging layer.
type Notifier interface {
	// Announce posts text to the room's channel.
	Announce(ctx context.Context, roomID, text string) error
	// UpdateTopBoard re-renders the persistent status display behind ref.
	UpdateTopBoard(ctx context.Context, roomID, ref, text string) error
}

func newEvent(kind Kind, roomID, ref, text string) Event {
	id, _ := uuid.NewRandom()
	return Event{
		ID:        id,
		Kind:      kind,
		RoomID:    roomID,
		Ref:       ref,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Multi fans a notification out to several notifiers, returning the first
// error after all have been attempted.
type Multi []Notifier

func (m Multi) Announce(ctx context.Context, roomID, text string) error {
	var first error
	for _, n := range m {
		if err := n.Announce(ctx, roomID, text); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) UpdateTopBoard(ctx context.Context, roomID, ref, text string) error {
	var first error
	for _, n := range m {
		if err := n.UpdateTopBoard(ctx, roomID, ref, text); err != nil && first == nil {
			first = err
		}
	}
	return first
}
