package workflow

// State is an approver's decision on a document as seen by the UI.
// REJECTED only ever appears as an aggregate document status.
type State string

const (
	StatePending  State = "PENDING"
	StateApproved State = "APPROVED"
	StateRejected State = "REJECTED"
)

// IsDecision reports whether an approver can hold this state
func (s State) IsDecision() bool {
	_, ok := decisions[s]
	return ok
}

// IsValid reports whether s is a known approval state
func (s State) IsValid() bool {
	return s.IsDecision() || s == StateRejected
}

func (s State) String() string {
	return string(s)
}
