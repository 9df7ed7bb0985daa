package chat

// Router fans events out to every registered session except the
// originator. Delivery is best-effort and fire-and-forget: each send
// lands in the recipient's bounded transport queue, a full or dead
// recipient is skipped, and no failure is surfaced to the sender.
type Router struct {
	registry *Registry
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Broadcast delivers the event to all registered sessions but origin.
// Sends happen against a registry snapshot, outside the registry lock,
// so a slow recipient never stalls other participants.
func (r *Router) Broadcast(origin *Session, event EventKind, payload any) {
	for _, s := range r.registry.Snapshot() {
		if s == origin {
			continue
		}
		_ = s.conn.Send(event, payload)
	}
}
