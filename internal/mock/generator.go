package mock

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/chat-relay/backend/internal/chat"
)

// botConn is an in-memory chat.Conn for simulated participants.
// Outbound events are discarded; the bots only exist to exercise the
// hub from the inside during development.
type botConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *botConn) Send(chat.EventKind, any) error { return nil }

func (c *botConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *botConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type mockBot struct {
	name     string
	interval time.Duration // 0 = joins and then goes silent
	lines    []string
}

// Generator drives scripted participants through the hub so the
// broadcast path, stats and the inactivity monitor can be observed
// without real clients. One bot never speaks after joining, which
// demonstrates eviction when a timeout is configured.
type Generator struct {
	hub  *chat.Hub
	bots []*mockBot
}

func NewGenerator(hub *chat.Hub) *Generator {
	return &Generator{
		hub: hub,
		bots: []*mockBot{
			{
				name:     "mock alice",
				interval: 4 * time.Second,
				lines: []string{
					"hello everyone",
					"anyone around?",
					"still here",
					"this relay seems stable",
				},
			},
			{
				name:     "mock bob",
				interval: 7 * time.Second,
				lines: []string{
					"hey alice",
					"yep, watching the logs",
					"broadcast looks fine from my side",
				},
			},
			{
				name: "mock sleepy carol",
				// Joins and never sends again; the inactivity monitor
				// should evict this one.
			},
		},
	}
}

// Start launches every bot and returns; the bots stop when ctx ends.
func (g *Generator) Start(ctx context.Context) {
	for _, bot := range g.bots {
		go g.run(ctx, bot)
	}
}

func (g *Generator) run(ctx context.Context, bot *mockBot) {
	conn := &botConn{}
	sess := g.hub.Connect(conn)
	if sess == nil {
		return
	}
	if err := g.hub.ClaimName(sess, bot.name); err != nil {
		log.Printf("mock bot %q claim failed: %v", bot.name, err)
		return
	}

	if bot.interval == 0 {
		<-ctx.Done()
		return
	}

	// Stagger and jitter so the bots do not tick in lockstep.
	jitter := time.Duration(rand.Int63n(int64(bot.interval)))
	ticker := time.NewTicker(bot.interval + jitter)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			g.hub.Disconnect(sess, "client namespace disconnect")
			return
		case <-ticker.C:
			if conn.isClosed() {
				return
			}
			g.hub.Message(sess, bot.lines[i%len(bot.lines)])
			i++
		}
	}
}
