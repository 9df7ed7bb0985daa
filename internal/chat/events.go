package chat

// EventKind names an outbound event delivered to clients. The values
// are the wire-level event names and must not change without a
// protocol version bump.
type EventKind string

const (
	EventLoginSuccessful EventKind = "login_successful"
	EventCustomError     EventKind = "custom_error"
	EventUserJoined      EventKind = "newUserJoined"
	EventMessage         EventKind = "message"
	EventUserLeft        EventKind = "userLeft"
)

// JoinPayload announces a new participant to everyone else.
type JoinPayload struct {
	Username string `json:"username"`
	Time     int64  `json:"time"`
}

// MessagePayload carries one broadcast chat message.
type MessagePayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Time     int64  `json:"time"`
}

// LeavePayload announces a departed participant, with a human-readable
// reason derived from the disconnect cause.
type LeavePayload struct {
	Reason   string `json:"reason"`
	Username string `json:"username"`
	Time     int64  `json:"time"`
}

// CauseKind classifies why a session is being terminated.
type CauseKind int

const (
	CauseClientDisconnect CauseKind = iota // transport-initiated, carries a raw reason
	CauseInactivity                        // evicted by the inactivity monitor
	CauseShutdown                          // server-initiated sweep
)

// Cause is the tagged termination reason passed to Terminate.
type Cause struct {
	Kind CauseKind
	// Reason is the transport's raw disconnect reason; only meaningful
	// for CauseClientDisconnect.
	Reason string
}

func (c Cause) String() string {
	switch c.Kind {
	case CauseClientDisconnect:
		return "client disconnect (" + c.Reason + ")"
	case CauseInactivity:
		return "inactivity timeout"
	case CauseShutdown:
		return "server shutdown"
	}
	return "unknown"
}
