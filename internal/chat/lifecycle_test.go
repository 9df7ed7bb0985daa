package chat

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeConn records everything the hub sends through it.
type fakeConn struct {
	mu     sync.Mutex
	sent   []sentEvent
	closes int
}

type sentEvent struct {
	event   EventKind
	payload any
}

func (c *fakeConn) Send(event EventKind, payload any) error {
	c.mu.Lock()
	c.sent = append(c.sent, sentEvent{event, payload})
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes > 0
}

// received returns all payloads sent for the given event kind.
func (c *fakeConn) received(event EventKind) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, e := range c.sent {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

func newTestHub() *Hub {
	return NewHub(0, 0, nil)
}

// join connects a session and claims a name, failing the test on any
// rejection.
func join(t *testing.T, h *Hub, name string) (*Session, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	s := h.Connect(conn)
	if s == nil {
		t.Fatal("Connect returned nil session")
	}
	if err := h.ClaimName(s, name); err != nil {
		t.Fatalf("ClaimName(%q): %v", name, err)
	}
	return s, conn
}

func TestClaimName_Success(t *testing.T) {
	h := newTestHub()
	s, conn := join(t, h, "bob")

	if !h.Registry().IsTaken("bob") {
		t.Error("registry does not report bob taken")
	}
	if got := s.State(); got != StateNamed {
		t.Errorf("state = %v, want %v", got, StateNamed)
	}
	if got := s.Name(); got != "bob" {
		t.Errorf("name = %q, want %q", got, "bob")
	}

	logins := conn.received(EventLoginSuccessful)
	if len(logins) != 1 || logins[0] != "bob" {
		t.Errorf("login_successful payloads = %v, want [bob]", logins)
	}
}

func TestClaimName_PreservesDisplayCasing(t *testing.T) {
	h := newTestHub()
	s, _ := join(t, h, "Bob Smith 2")

	if got := s.Name(); got != "Bob Smith 2" {
		t.Errorf("display name = %q, want original casing", got)
	}
	if !h.Registry().IsTaken("bob smith 2") {
		t.Error("normalized name not registered")
	}
}

func TestClaimName_Validation(t *testing.T) {
	tests := []struct {
		name    string
		rawName string
		wantErr error
	}{
		{"TooShort", "ab", ErrNameLength},
		{"TooLong", strings.Repeat("a", 26), ErrNameLength},
		{"TrimmedTooShort", "   ab   ", ErrNameLength},
		{"EmptyAfterTrim", "     ", ErrNameLength},
		{"Punctuation", "bob!", ErrNameCharset},
		{"Unicode", "böb von bahn", ErrNameCharset},
		{"MaxLength", strings.Repeat("a", 25), nil},
		{"DigitsAndSpaces", "agent 007", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub()
			conn := &fakeConn{}
			s := h.Connect(conn)

			err := h.ClaimName(s, tt.rawName)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ClaimName(%q) = %v, want %v", tt.rawName, err, tt.wantErr)
			}

			if tt.wantErr == nil {
				if conn.closed() {
					t.Error("connection closed on valid claim")
				}
				return
			}

			// Rejection: user-visible error, forced close, no entry.
			msgs := conn.received(EventCustomError)
			if len(msgs) != 1 || msgs[0] != tt.wantErr.Error() {
				t.Errorf("custom_error payloads = %v, want [%s]", msgs, tt.wantErr)
			}
			if !conn.closed() {
				t.Error("connection not closed after rejection")
			}
			if h.Registry().Len() != 0 {
				t.Error("registry entry created for rejected claim")
			}
		})
	}
}

func TestClaimName_TakenCaseInsensitive(t *testing.T) {
	h := newTestHub()
	join(t, h, "Alice")

	conn := &fakeConn{}
	s := h.Connect(conn)
	if err := h.ClaimName(s, "alice"); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("ClaimName(alice) = %v, want ErrNameTaken", err)
	}
	if !conn.closed() {
		t.Error("loser connection not closed")
	}

	// The winner keeps the name.
	if !h.Registry().IsTaken("alice") {
		t.Error("winner lost its registry entry")
	}
}

func TestClaimName_ConcurrentSameName(t *testing.T) {
	const contenders = 16
	h := newTestHub()

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := h.Connect(&fakeConn{})
			errs[i] = h.ClaimName(s, "carol")
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrNameTaken) {
			t.Errorf("unexpected claim error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("%d claims of the same name succeeded, want 1", winners)
	}
}

func TestClaimName_SecondClaimRejectedWithoutClose(t *testing.T) {
	h := newTestHub()
	s, conn := join(t, h, "bob")

	if err := h.ClaimName(s, "robert"); !errors.Is(err, ErrAlreadyIn) {
		t.Fatalf("second claim = %v, want ErrAlreadyIn", err)
	}
	if conn.closed() {
		t.Error("connection closed on repeated claim")
	}
	if got := s.Name(); got != "bob" {
		t.Errorf("name changed to %q after rejected re-claim", got)
	}
	if h.Registry().IsTaken("robert") {
		t.Error("rejected re-claim registered a name")
	}
}

func TestClaimName_AfterTerminationIgnored(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}
	s := h.Connect(conn)
	h.Terminate(s, Cause{Kind: CauseClientDisconnect, Reason: "transport close"})

	if err := h.ClaimName(s, "ghost"); err != nil {
		t.Fatalf("claim on terminated session = %v, want nil (ignored)", err)
	}
	if h.Registry().IsTaken("ghost") {
		t.Error("terminated session registered a name")
	}
}

func TestMessage_BroadcastExcludesSender(t *testing.T) {
	h := newTestHub()
	_, alice := join(t, h, "alice")
	bobSess, bob := join(t, h, "bob")
	_, carol := join(t, h, "carol")

	h.Message(bobSess, "hello")

	for name, conn := range map[string]*fakeConn{"alice": alice, "carol": carol} {
		msgs := conn.received(EventMessage)
		if len(msgs) != 1 {
			t.Fatalf("%s received %d messages, want 1", name, len(msgs))
		}
		payload, ok := msgs[0].(MessagePayload)
		if !ok {
			t.Fatalf("%s message payload has type %T", name, msgs[0])
		}
		if payload.Username != "bob" || payload.Message != "hello" {
			t.Errorf("%s got %+v", name, payload)
		}
		if payload.Time == 0 {
			t.Errorf("%s message has zero timestamp", name)
		}
	}

	if msgs := bob.received(EventMessage); len(msgs) != 0 {
		t.Errorf("sender received its own message: %v", msgs)
	}
}

func TestMessage_FromAnonymousDropped(t *testing.T) {
	h := newTestHub()
	_, alice := join(t, h, "alice")

	anon := h.Connect(&fakeConn{})
	h.Message(anon, "sneaky")

	if msgs := alice.received(EventMessage); len(msgs) != 0 {
		t.Errorf("anonymous message was broadcast: %v", msgs)
	}
}

func TestJoinBroadcast(t *testing.T) {
	h := newTestHub()
	_, alice := join(t, h, "alice")
	join(t, h, "bob")

	joins := alice.received(EventUserJoined)
	if len(joins) != 1 {
		t.Fatalf("alice received %d join events, want 1", len(joins))
	}
	payload := joins[0].(JoinPayload)
	if payload.Username != "bob" {
		t.Errorf("join payload username = %q, want bob", payload.Username)
	}
}

func TestTerminate_Idempotent(t *testing.T) {
	h := newTestHub()
	aliceSess, alice := join(t, h, "alice")
	_, bob := join(t, h, "bob")

	h.Terminate(aliceSess, Cause{Kind: CauseClientDisconnect, Reason: "transport close"})
	h.Terminate(aliceSess, Cause{Kind: CauseClientDisconnect, Reason: "transport close"})
	h.Disconnect(aliceSess, "ping timeout")

	leaves := bob.received(EventUserLeft)
	if len(leaves) != 1 {
		t.Fatalf("bob received %d leave events, want exactly 1", len(leaves))
	}
	if h.Registry().IsTaken("alice") {
		t.Error("terminated session still registered")
	}
	if !alice.closed() {
		t.Error("transport not closed on terminate")
	}

	// The freed name is claimable again.
	join(t, h, "alice")
}

func TestTerminate_AnonymousNoBroadcast(t *testing.T) {
	h := newTestHub()
	_, alice := join(t, h, "alice")

	anonConn := &fakeConn{}
	anon := h.Connect(anonConn)
	h.Disconnect(anon, "transport close")

	if leaves := alice.received(EventUserLeft); len(leaves) != 0 {
		t.Errorf("anonymous disconnect broadcast a leave: %v", leaves)
	}
	if !anonConn.closed() {
		t.Error("anonymous transport not closed")
	}
}

func TestDisconnect_ReasonClassified(t *testing.T) {
	tests := []struct {
		rawReason  string
		wantReason string
	}{
		{"ping timeout", "alice left the chat, connection lost"},
		{"transport error", "alice left the chat, connection lost"},
		{"transport close", "alice left the chat"},
		{"gamma ray burst", "alice left the chat"},
	}

	for _, tt := range tests {
		t.Run(tt.rawReason, func(t *testing.T) {
			h := newTestHub()
			aliceSess, _ := join(t, h, "alice")
			_, bob := join(t, h, "bob")

			h.Disconnect(aliceSess, tt.rawReason)

			leaves := bob.received(EventUserLeft)
			if len(leaves) != 1 {
				t.Fatalf("bob received %d leave events, want 1", len(leaves))
			}
			payload := leaves[0].(LeavePayload)
			if payload.Reason != tt.wantReason {
				t.Errorf("leave reason = %q, want %q", payload.Reason, tt.wantReason)
			}
			if payload.Username != "alice" {
				t.Errorf("leave username = %q, want alice", payload.Username)
			}
		})
	}
}

func TestShutdown_SweepsAndRefusesNewSessions(t *testing.T) {
	h := newTestHub()
	_, alice := join(t, h, "alice")
	_, bob := join(t, h, "bob")

	h.Shutdown()

	for name, conn := range map[string]*fakeConn{"alice": alice, "bob": bob} {
		notices := conn.received(EventCustomError)
		if len(notices) != 1 || notices[0] != "Server shutting down" {
			t.Errorf("%s shutdown notices = %v", name, notices)
		}
		if !conn.closed() {
			t.Errorf("%s transport not closed by sweep", name)
		}
	}
	if h.Registry().Len() != 0 {
		t.Errorf("registry holds %d names after shutdown", h.Registry().Len())
	}

	lateConn := &fakeConn{}
	if s := h.Connect(lateConn); s != nil {
		t.Error("Connect accepted a session after shutdown")
	}
	if !lateConn.closed() {
		t.Error("late connection not closed")
	}
}

func TestInactivityEviction_EndToEnd(t *testing.T) {
	h := NewHub(40*time.Millisecond, 10*time.Millisecond, nil)
	aliceSess, alice := join(t, h, "alice")
	bobSess, bob := join(t, h, "bob")

	// bob stays active, alice goes quiet.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.Message(bobSess, "still here")
			}
		}
	}()
	defer close(stop)

	if !waitFor(t, 2*time.Second, alice.closed) {
		t.Fatal("idle session never evicted")
	}

	notices := alice.received(EventCustomError)
	if len(notices) != 1 || notices[0] != "Disconnected by the server due to inactivity." {
		t.Errorf("eviction notices = %v", notices)
	}

	leaves := bob.received(EventUserLeft)
	if len(leaves) != 1 {
		t.Fatalf("bob received %d leave events, want 1", len(leaves))
	}
	payload := leaves[0].(LeavePayload)
	if payload.Reason != "alice Disconnected due inactivity" {
		t.Errorf("eviction leave reason = %q", payload.Reason)
	}
	if h.Registry().IsTaken("alice") {
		t.Error("evicted session still registered")
	}

	// A trailing transport disconnect for the same session must not
	// produce a second announcement.
	h.Disconnect(aliceSess, "transport close")
	if leaves := bob.received(EventUserLeft); len(leaves) != 1 {
		t.Errorf("duplicate leave broadcast after eviction: %d events", len(leaves))
	}
}

func TestInactivity_DisabledNeverTerminates(t *testing.T) {
	h := newTestHub() // zero timeout
	s, conn := join(t, h, "alice")

	time.Sleep(80 * time.Millisecond)

	if conn.closed() {
		t.Error("session closed with monitoring disabled")
	}
	if got := s.State(); got != StateNamed {
		t.Errorf("state = %v, want %v", got, StateNamed)
	}
}

func TestHubEvents(t *testing.T) {
	events := make(chan Event, 16)
	h := NewHub(0, 0, events)

	s, _ := join(t, h, "alice")
	h.Message(s, "hi")
	h.Disconnect(s, "transport close")

	rejected := h.Connect(&fakeConn{})
	_ = h.ClaimName(rejected, "x")

	want := []EventType{EventJoined, EventMessaged, EventLeft, EventRejected}
	for i, wantType := range want {
		select {
		case ev := <-events:
			if ev.Type != wantType {
				t.Errorf("event[%d].Type = %v, want %v", i, ev.Type, wantType)
			}
		default:
			t.Fatalf("missing event %d (want type %v)", i, wantType)
		}
	}
}
