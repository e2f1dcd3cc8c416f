package relaysvc

// State is the relay's lifecycle position. There is exactly one State
// cell per Service, held in an atomic so the halt transition may be
// requested from outside the relay goroutine.
type State int32

const (
	StateInit State = iota
	StateSteady
	StateFailed
	StateHalt
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSteady:
		return "steady"
	case StateFailed:
		return "failed"
	case StateHalt:
		return "halt"
	default:
		return "unknown"
	}
}
