package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/domain/workflow"
)

// ChipColor is the palette name of the status chip
type ChipColor string

const (
	ChipWarning ChipColor = "warning"
	ChipSuccess ChipColor = "success"
	ChipError   ChipColor = "error"
)

// StatusAction is an entry of the status chip's menu
type StatusAction string

const (
	ActionApprove    StatusAction = "approve"
	ActionDisapprove StatusAction = "disapprove"
)

// ParseStatusAction accepts "approve" and "disapprove" in any case
func ParseStatusAction(s string) (StatusAction, error) {
	trigger, err := workflow.ParseTrigger(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", apperrors.ErrActionNotOffered, s)
	}
	return StatusAction(strings.ToLower(trigger.String())), nil
}

// ChipColorFor maps an aggregate status to its chip color
func ChipColorFor(status entity.DocumentStatus) ChipColor {
	switch status {
	case entity.StatusPending:
		return ChipWarning
	case entity.StatusApproved:
		return ChipSuccess
	default:
		return ChipError
	}
}

// StatusChip is what the status chip renders
type StatusChip struct {
	Label    string         `json:"label"`
	Color    ChipColor      `json:"color"`
	Actions  []StatusAction `json:"actions"`
	Disabled bool           `json:"disabled"`
}

// DocumentStatusView derives the status chip from the approval tracker and
// forwards menu selections to it. It does no I/O of its own.
type DocumentStatusView struct {
	tracker *ApprovalTracker

	mu       sync.Mutex
	readOnly bool
}

// NewDocumentStatusView creates a view over tracker
func NewDocumentStatusView(tracker *ApprovalTracker) *DocumentStatusView {
	return &DocumentStatusView{tracker: tracker}
}

// SetReadOnly disables the menu regardless of the tracker
func (v *DocumentStatusView) SetReadOnly(readOnly bool) {
	v.mu.Lock()
	v.readOnly = readOnly
	v.mu.Unlock()
}

// Chip returns the chip for the tracker's current snapshot
func (v *DocumentStatusView) Chip() StatusChip {
	return v.chip(v.tracker.Snapshot())
}

func (v *DocumentStatusView) chip(snap entity.ApprovalSnapshot) StatusChip {
	v.mu.Lock()
	readOnly := v.readOnly
	v.mu.Unlock()

	chip := StatusChip{
		Label:    snap.Aggregate.String(),
		Color:    ChipColorFor(snap.Aggregate),
		Actions:  []StatusAction{},
		Disabled: readOnly || snap.ReadOnly || !snap.Loaded || snap.InFlight,
	}
	if chip.Disabled {
		return chip
	}
	if snap.MyDecision == entity.StatusApproved {
		chip.Actions = append(chip.Actions, ActionDisapprove)
	} else {
		chip.Actions = append(chip.Actions, ActionApprove)
	}
	return chip
}

// Select runs a menu action. Actions the menu does not offer are refused
// without reaching the tracker.
func (v *DocumentStatusView) Select(ctx context.Context, action StatusAction) (entity.ApprovalSnapshot, error) {
	snap := v.tracker.Snapshot()
	switch {
	case !snap.Loaded:
		return snap, apperrors.ErrNotLoaded
	case snap.ReadOnly:
		return snap, apperrors.ErrApprovalFinal
	case snap.InFlight:
		return snap, apperrors.ErrActionInFlight
	}

	offered := false
	for _, a := range v.chip(snap).Actions {
		if a == action {
			offered = true
			break
		}
	}
	if !offered {
		return snap, fmt.Errorf("%w: %s", apperrors.ErrActionNotOffered, action)
	}

	if action == ActionDisapprove {
		return v.tracker.Disapprove(ctx)
	}
	return v.tracker.Approve(ctx)
}
