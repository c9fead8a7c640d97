package realtime

import (
	"fmt"
	"sync"

	"github.com/classsphere/backend/core"
)

// Emitter lets request handlers hand an event off for live delivery without
// being part of the connection-handling runtime. Callers must persist the
// durable record first, then Emit: Emit has no retry or durability of its
// own, a missed event simply stays invisible until the next reload.
type Emitter interface {
	Emit(evt Event)
}

// Broadcaster fans an Event out to every live session of its target group.
type Broadcaster struct {
	reg    *Registry
	logger core.Logger

	// mu serializes publishes so that every member of a group observes the
	// same delivery order for that group. Handoffs are non-blocking channel
	// sends, so nothing suspends while it is held.
	mu sync.Mutex
}

var _ Emitter = (*Broadcaster)(nil)

func NewBroadcaster(reg *Registry, logger core.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, logger: logger}
}

// Publish delivers evt to the snapshot of its group's membership taken at
// call entry, and returns the number of sessions the frame was handed to.
// A session that cannot accept the frame (queue full, already dead) is
// scheduled for Drop; its failure never affects sibling deliveries and
// never propagates to the caller.
func (b *Broadcaster) Publish(evt Event) int {
	frame, err := evt.Envelope()
	if err != nil {
		b.logger.Error(fmt.Sprintf("realtime: dropping unpublishable event: %v", err), err)
		return 0
	}

	b.mu.Lock()
	members := b.reg.MembersOf(evt.Group)
	var delivered int
	var dead []*Session
	for _, s := range members {
		if s.Push(frame) {
			delivered++
		} else {
			dead = append(dead, s)
		}
	}
	b.mu.Unlock()

	for _, s := range dead {
		b.logger.Warn(fmt.Sprintf("realtime: dropping unresponsive session %s (user %s)", s.ID, s.UserID))
		b.reg.Drop(s.ID)
	}
	return delivered
}

// Emit satisfies Emitter for HTTP handlers; it returns once the fan-out to
// the membership snapshot has been initiated.
func (b *Broadcaster) Emit(evt Event) {
	b.Publish(evt)
}
