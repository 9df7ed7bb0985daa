package chat

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// State tracks a connection's progression through the chat lifecycle.
type State int

const (
	StateAnonymous  State = iota // connected, no name claimed yet
	StateNamed                   // name claimed and registered
	StateTerminated              // closed; terminal, no transitions out
)

var stateNames = map[State]string{
	StateAnonymous:  "anonymous",
	StateNamed:      "named",
	StateTerminated: "terminated",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Conn is the transport capability a Session exclusively owns. The chat
// core never touches the wire directly: it sends typed events through
// Conn and force-closes through Close. Both must be safe to call after
// the peer is gone; Send is best-effort and Close idempotent.
type Conn interface {
	Send(event EventKind, payload any) error
	Close() error
}

// Session is the server-side state for one live connection.
//
// All fields behind mu are owned by the Hub: transitions, the display
// name, and the one-shot leave announcement flag. The connection ID is
// assigned at creation and identifies the session in logs before (and
// after) it has a name.
type Session struct {
	id   string
	conn Conn

	mu        sync.Mutex
	state     State
	name      string // display casing; empty until a claim succeeds
	announced bool   // leave broadcast already emitted
}

func newSession(conn Conn) *Session {
	return &Session{
		id:    uuid.NewString(),
		conn:  conn,
		state: StateAnonymous,
	}
}

// ID returns the connection identifier assigned at connect time.
func (s *Session) ID() string {
	return s.id
}

// Name returns the claimed display name, or "" while anonymous.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// normalizeName lower-cases a display name for uniqueness comparison.
// Original casing is preserved for display.
func normalizeName(name string) string {
	return strings.ToLower(name)
}
