package stream

// State is the connection state of a Session. Consumers gate send
// operations on it; only StateConnected accepts queries.
type State int

const (
	// StateDisconnected means no channel exists and none is being opened.
	StateDisconnected State = iota

	// StateConnecting means the channel is being established.
	StateConnecting

	// StateConnected means the channel is live and queries may be sent.
	StateConnected

	// StateErrored means the channel failed and reconnect attempts, if
	// any, were exhausted.
	StateErrored
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateErrored:
		return "error"
	default:
		return "unknown"
	}
}
