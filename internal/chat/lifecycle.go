package chat

import (
	"errors"
	"log"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

const (
	minNameLen = 3
	maxNameLen = 25
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9 ]+$`)

// Validation failures reported to the claiming client. The messages
// are part of the wire protocol.
var (
	ErrNameLength  = errors.New("Username should be between 3 and 25 character length")
	ErrNameCharset = errors.New("Username should contain only character numbers and spaces")
	ErrNameTaken   = errors.New("Username already taken")
	ErrAlreadyIn   = errors.New("Already logged in")
)

// EventType classifies hub lifecycle events delivered to observers.
type EventType int

const (
	EventJoined   EventType = iota // name claim succeeded
	EventMessaged                  // message broadcast
	EventLeft                      // named session terminated
	EventRejected                  // name claim failed validation
	EventEvicted                   // terminated by the inactivity monitor
)

// Event carries one lifecycle occurrence to observers such as the
// stats tracker. Delivery is non-blocking; observers that fall behind
// miss events rather than stalling the hub.
type Event struct {
	Type EventType
	Name string
	Time time.Time
}

// Hub drives every connection through Anonymous -> Named -> Terminated
// and owns the pieces shared between them: the name registry, the
// broadcast router and the inactivity monitor. One goroutine per
// connection calls into the hub; per-session state is guarded by the
// session's own mutex and registry access by the registry's, so no hub
// call holds a global lock during transport sends.
type Hub struct {
	registry *Registry
	router   *Router
	monitor  *Monitor
	events   chan<- Event
	closed   atomic.Bool
}

// NewHub builds a hub whose sessions idle out after timeout (zero
// disables eviction). probe bounds monitor re-check scheduling; zero
// derives it from the timeout. events may be nil.
func NewHub(timeout, probe time.Duration, events chan<- Event) *Hub {
	h := &Hub{
		registry: NewRegistry(),
		events:   events,
	}
	h.router = NewRouter(h.registry)
	h.monitor = NewMonitor(timeout, probe, func(s *Session) {
		h.Terminate(s, Cause{Kind: CauseInactivity})
	})
	return h
}

// Registry exposes the name registry for ops surfaces.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect creates an anonymous session for a new transport connection.
// During shutdown the connection is closed immediately and no session
// is returned.
func (h *Hub) Connect(conn Conn) *Session {
	if h.closed.Load() {
		_ = conn.Close()
		return nil
	}
	return newSession(conn)
}

// ClaimName validates and registers a display name for an anonymous
// session. On any validation failure the client is told why and the
// connection is force-closed. A claim on an already-named session is
// rejected without closing; a claim on a terminated session is
// ignored. The returned error is the validation result, for callers
// that want it; all client-facing effects have already happened.
func (h *Hub) ClaimName(s *Session, rawName string) error {
	s.mu.Lock()
	switch s.state {
	case StateTerminated:
		s.mu.Unlock()
		return nil
	case StateNamed:
		s.mu.Unlock()
		_ = s.conn.Send(EventCustomError, ErrAlreadyIn.Error())
		return ErrAlreadyIn
	}
	s.mu.Unlock()

	name, err := validateName(rawName)
	if err != nil {
		return h.rejectClaim(s, rawName, err)
	}

	normalized := normalizeName(name)
	if h.closed.Load() || !h.registry.Claim(normalized, s) {
		return h.rejectClaim(s, rawName, ErrNameTaken)
	}

	s.mu.Lock()
	if s.state != StateAnonymous {
		// Lost a race with a transport disconnect; undo the claim.
		s.mu.Unlock()
		h.registry.Remove(normalized)
		return nil
	}
	s.state = StateNamed
	s.name = name
	s.mu.Unlock()

	log.Printf("user %s joined (conn %s)", name, s.id)
	h.notify(EventJoined, name)

	_ = s.conn.Send(EventLoginSuccessful, name)
	h.router.Broadcast(s, EventUserJoined, JoinPayload{
		Username: name,
		Time:     time.Now().UnixMilli(),
	})
	h.monitor.Arm(s)
	return nil
}

func (h *Hub) rejectClaim(s *Session, rawName string, err error) error {
	log.Printf("rejected name claim %q (conn %s): %v", rawName, s.id, err)
	h.notify(EventRejected, rawName)
	_ = s.conn.Send(EventCustomError, err.Error())
	h.Terminate(s, Cause{Kind: CauseClientDisconnect, Reason: "server namespace disconnect"})
	return err
}

// validateName trims and checks a raw claim, returning the display
// form. Length is counted after trimming.
func validateName(rawName string) (string, error) {
	name := strings.TrimSpace(rawName)
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return "", ErrNameLength
	}
	if !namePattern.MatchString(name) {
		return "", ErrNameCharset
	}
	return name, nil
}

// Message broadcasts a chat message from a named session to everyone
// else and counts as activity for the inactivity monitor. Messages
// from anonymous or terminated sessions are dropped.
func (h *Hub) Message(s *Session, text string) {
	s.mu.Lock()
	state, name := s.state, s.name
	s.mu.Unlock()
	if state != StateNamed {
		return
	}

	h.monitor.Reset(s)
	h.notify(EventMessaged, name)
	h.router.Broadcast(s, EventMessage, MessagePayload{
		Username: name,
		Message:  text,
		Time:     time.Now().UnixMilli(),
	})
}

// Disconnect handles a transport-initiated disconnect with the raw
// reason the transport observed.
func (h *Hub) Disconnect(s *Session, rawReason string) {
	h.Terminate(s, Cause{Kind: CauseClientDisconnect, Reason: rawReason})
}

// Terminate moves the session to Terminated and closes its transport.
// For named sessions it cancels the inactivity timer, frees the name
// and announces the departure exactly once; racing terminations (for
// example an eviction against a transport disconnect) collapse into a
// single leave broadcast. Anonymous sessions are just closed.
func (h *Hub) Terminate(s *Session, cause Cause) {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	prev := s.state
	name := s.name
	announce := prev == StateNamed && !s.announced
	s.state = StateTerminated
	if announce {
		s.announced = true
	}
	s.mu.Unlock()

	if announce {
		h.monitor.Disarm(s)
		h.registry.Remove(normalizeName(name))

		reason := h.leaveReason(name, cause)
		switch cause.Kind {
		case CauseInactivity:
			_ = s.conn.Send(EventCustomError, "Disconnected by the server due to inactivity.")
			h.notify(EventEvicted, name)
		case CauseShutdown:
			_ = s.conn.Send(EventCustomError, "Server shutting down")
		}
		h.router.Broadcast(s, EventUserLeft, LeavePayload{
			Reason:   reason,
			Username: name,
			Time:     time.Now().UnixMilli(),
		})
		log.Printf("user %s left (%s)", name, cause)
		h.notify(EventLeft, name)
	}

	_ = s.conn.Close()
}

// leaveReason derives the user-facing departure message for a cause.
func (h *Hub) leaveReason(name string, cause Cause) string {
	switch cause.Kind {
	case CauseInactivity:
		return name + " Disconnected due inactivity"
	case CauseShutdown:
		return name + " left the chat"
	default:
		reason, known := Classify(name, cause.Reason)
		if !known {
			log.Printf("Unknown disconnect reason: %s", cause.Reason)
		}
		return reason
	}
}

// Shutdown notifies and closes every named session, then refuses new
// sessions and claims. Safe to call once; the listener should stop
// accepting connections around the same time.
func (h *Hub) Shutdown() {
	h.closed.Store(true)
	sessions := h.registry.Snapshot()
	log.Printf("server shutting down, closing %d sessions", len(sessions))
	for _, s := range sessions {
		h.Terminate(s, Cause{Kind: CauseShutdown})
	}
}

func (h *Hub) notify(t EventType, name string) {
	if h.events == nil {
		return
	}
	select {
	case h.events <- Event{Type: t, Name: name, Time: time.Now()}:
	default:
	}
}
