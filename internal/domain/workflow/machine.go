package workflow

import (
	"context"
	"fmt"
)

// GuardFunc reports whether the approver may change their decision right now
type GuardFunc func(ctx context.Context) bool

// StateMachine tracks one approver's decision and validates transitions
type StateMachine interface {
	State() State

	// CanFire reports whether the trigger is declared from the current state and the guard passes
	CanFire(ctx context.Context, trigger Trigger) bool

	// Target returns the state the trigger would move to without moving
	Target(ctx context.Context, trigger Trigger) (State, error)

	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns the triggers that would succeed, approve first
	PermittedTriggers(ctx context.Context) []Trigger
}

// decisions is the whole approver lifecycle
//
//	PENDING --APPROVE--> APPROVED --DISAPPROVE--> PENDING
var decisions = map[State]map[Trigger]State{
	StatePending:  {TriggerApprove: StateApproved},
	StateApproved: {TriggerDisapprove: StatePending},
}

var triggerOrder = []Trigger{TriggerApprove, TriggerDisapprove}

type decisionMachine struct {
	state State
	open  GuardFunc
}

// NewDecisionMachine returns a machine at initial with every transition
// gated by open. A nil open permits everything.
func NewDecisionMachine(initial State, open GuardFunc) (StateMachine, error) {
	if !initial.IsDecision() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, initial)
	}
	return &decisionMachine{state: initial, open: open}, nil
}

func (m *decisionMachine) State() State {
	return m.state
}

func (m *decisionMachine) CanFire(ctx context.Context, trigger Trigger) bool {
	_, err := m.Target(ctx, trigger)
	return err == nil
}

func (m *decisionMachine) Target(ctx context.Context, trigger Trigger) (State, error) {
	to, ok := decisions[m.state][trigger]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, trigger, m.state)
	}
	if m.open != nil && !m.open(ctx) {
		return "", fmt.Errorf("%w: %s from %s", ErrGuardFailed, trigger, m.state)
	}
	return to, nil
}

func (m *decisionMachine) Fire(ctx context.Context, trigger Trigger) error {
	to, err := m.Target(ctx, trigger)
	if err != nil {
		return err
	}
	m.state = to
	return nil
}

func (m *decisionMachine) PermittedTriggers(ctx context.Context) []Trigger {
	var out []Trigger
	for _, trigger := range triggerOrder {
		if m.CanFire(ctx, trigger) {
			out = append(out, trigger)
		}
	}
	return out
}
