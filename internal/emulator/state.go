package emulator

// LoopState is the position of the request/response loop in its cycle.
type LoopState int32

const (
	StateIdle LoopState = iota
	StateRequestPending
	StateResolved
	StateResponded
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRequestPending:
		return "REQUEST_PENDING"
	case StateResolved:
		return "RESOLVED"
	case StateResponded:
		return "RESPONDED"
	default:
		return "UNKNOWN"
	}
}

func (s LoopState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
