package notify

import (
	"context"
	"log"
	"sync"
)

// Broadcaster fans events out to in-process subscribers, primarily the
// websocket feed. Slow subscribers drop events rather than block the engine.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	roomID string // empty subscribes to every room
	ch     chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]subscriber)}
}

// Subscribe registers a listener for roomID ("" for all rooms) and returns
// the event channel plus a cancel func that must be called when done.
func (b *Broadcaster) Subscribe(roomID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 32)
	b.subs[id] = subscriber{roomID: roomID, ch: ch}

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
	return ch, cancel
}

func (b *Broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.roomID != "" && sub.roomID != ev.RoomID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			log.Printf("Broadcaster: subscriber for room %q full, dropped %s event", sub.roomID, ev.Kind)
		}
	}
}

func (b *Broadcaster) Announce(ctx context.Context, roomID, text string) error {
	b.publish(newEvent(KindAnnounce, roomID, "", text))
	return nil
}

func (b *Broadcaster) UpdateTopBoard(ctx context.Context, roomID, ref, text string) error {
	b.publish(newEvent(KindTopBoard, roomID, ref, text))
	return nil
}
