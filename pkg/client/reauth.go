package client

// reauthState tracks one request through the refresh-and-retry policy.
type reauthState int

const (
	stateInitial reauthState = iota
	stateRefreshing
	stateRetrying
	stateFailed
	stateSucceeded
)

func (s reauthState) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateRefreshing:
		return "refreshing"
	case stateRetrying:
		return "retrying"
	case stateFailed:
		return "failed"
	case stateSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}
