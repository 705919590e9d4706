package pipeline

import "fmt"

// State is a stage of a run or of one item inside it.
//
// A run moves Idle -> Discovering while discovery and the workers are active
// and ends in Completed or Failed. Each discovered item starts at Discovering
// and walks Extracting -> Enriching -> Classifying -> Persisting -> Completed,
// skipping Enriching when the posting names no employer.
type State int

const (
	Idle State = iota
	Discovering
	Extracting
	Enriching
	Classifying
	Persisting
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Discovering:
		return "discovering"
	case Extracting:
		return "extracting"
	case Enriching:
		return "enriching"
	case Classifying:
		return "classifying"
	case Persisting:
		return "persisting"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	Idle:        {Discovering},
	Discovering: {Extracting, Completed, Failed},
	Extracting:  {Enriching, Classifying, Failed},
	Enriching:   {Classifying, Failed},
	Classifying: {Persisting, Failed},
	Persisting:  {Completed, Failed},
}

// machine tracks one state and rejects transitions outside the table.
type machine struct {
	state State
}

func newMachine(start State) *machine {
	return &machine{state: start}
}

func (m *machine) current() State { return m.state }

// advance moves to next. An invalid transition is a programming error.
func (m *machine) advance(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid pipeline transition %s -> %s", m.state, next)
}
