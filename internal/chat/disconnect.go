package chat

// Classify maps a transport-level disconnect reason to the leave
// message shown to other participants. The second return is false for
// reasons outside the known set, which callers log for operator
// visibility; the user-facing message stays the generic one.
func Classify(name, rawReason string) (string, bool) {
	switch rawReason {
	case "ping timeout", "transport error":
		return name + " left the chat, connection lost", true
	case "server namespace disconnect", "client namespace disconnect", "transport close":
		return name + " left the chat", true
	default:
		return name + " left the chat", false
	}
}
