package workflow

import (
	"fmt"
	"strings"
)

// Trigger is a user action that changes an approver's decision
type Trigger string

const (
	TriggerApprove    Trigger = "APPROVE"
	TriggerDisapprove Trigger = "DISAPPROVE"
)

func (t Trigger) String() string {
	return string(t)
}

// ParseTrigger accepts a trigger name in any case
func ParseTrigger(s string) (Trigger, error) {
	t := Trigger(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range triggerOrder {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown trigger %q", ErrInvalidTransition, s)
}
