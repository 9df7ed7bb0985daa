package stats

import (
	"context"
	"sync"
	"time"

	"github.com/chat-relay/backend/internal/chat"
)

// Tracker observes hub lifecycle events and maintains aggregate
// counters for the /api/stats endpoint. It receives events from the
// hub via a channel; nothing is persisted, the relay keeps no state
// across restarts.
type Tracker struct {
	events <-chan chat.Event

	mu         sync.Mutex
	startedAt  time.Time
	joins      uint64
	messages   uint64
	leaves     uint64
	evictions  uint64
	rejections uint64
}

// Snapshot is the JSON shape served to operators.
type Snapshot struct {
	Joins         uint64 `json:"joins"`
	Messages      uint64 `json:"messages"`
	Leaves        uint64 `json:"leaves"`
	Evictions     uint64 `json:"evictions"`
	Rejections    uint64 `json:"rejections"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// NewTracker creates a tracker and the send side of its event channel
// for the hub. The caller must run Run in a goroutine.
func NewTracker() (*Tracker, chan<- chat.Event) {
	ch := make(chan chat.Event, 256)
	t := &Tracker{
		events:    ch,
		startedAt: time.Now(),
	}
	return t, ch
}

// Run processes events until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-t.events:
			t.record(ev)
		}
	}
}

func (t *Tracker) record(ev chat.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Type {
	case chat.EventJoined:
		t.joins++
	case chat.EventMessaged:
		t.messages++
	case chat.EventLeft:
		t.leaves++
	case chat.EventEvicted:
		t.evictions++
	case chat.EventRejected:
		t.rejections++
	}
}

// Snapshot returns a consistent copy of all counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Joins:         t.joins,
		Messages:      t.messages,
		Leaves:        t.leaves,
		Evictions:     t.evictions,
		Rejections:    t.rejections,
		UptimeSeconds: int64(time.Since(t.startedAt).Seconds()),
	}
}
