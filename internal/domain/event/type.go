package event

import "strings"

// Type names a document event as "topic.action"
type Type string

const (
	TypeApprovalDecided      Type = "approval.decided"
	TypeLineItemAdded        Type = "lineitem.added"
	TypeLineItemUpdated      Type = "lineitem.updated"
	TypeLineItemRemoved      Type = "lineitem.removed"
	TypeParentMismatch       Type = "lineitem.parent_mismatch"
	TypeReferenceUnavailable Type = "reference.unavailable"
)

var known = map[Type]struct{}{
	TypeApprovalDecided:      {},
	TypeLineItemAdded:        {},
	TypeLineItemUpdated:      {},
	TypeLineItemRemoved:      {},
	TypeParentMismatch:       {},
	TypeReferenceUnavailable: {},
}

func (t Type) String() string {
	return string(t)
}

// IsValid reports whether t is one of the declared types
func (t Type) IsValid() bool {
	_, ok := known[t]
	return ok
}

// Action is the part after the dot, e.g. "added"
func (t Type) Action() string {
	_, action, _ := strings.Cut(string(t), ".")
	return action
}
