package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/domain/entity"
)

func TestChipColorFor(t *testing.T) {
	assert.Equal(t, ChipWarning, ChipColorFor(entity.StatusPending))
	assert.Equal(t, ChipSuccess, ChipColorFor(entity.StatusApproved))
	assert.Equal(t, ChipError, ChipColorFor(entity.StatusRejected))
	assert.Equal(t, ChipError, ChipColorFor(entity.DocumentStatus("On Hold")))
}

func TestParseStatusAction(t *testing.T) {
	a, err := ParseStatusAction(" Approve ")
	require.NoError(t, err)
	assert.Equal(t, ActionApprove, a)

	_, err = ParseStatusAction("reject")
	assert.ErrorIs(t, err, apperrors.ErrActionNotOffered)
}

func TestDocumentStatusView_ChipBeforeLoad(t *testing.T) {
	view := NewDocumentStatusView(NewApprovalTracker(docConfig(t, "sales-quotation"), &mockBackend{}, nil))

	chip := view.Chip()
	assert.True(t, chip.Disabled)
	assert.Empty(t, chip.Actions)

	_, err := view.Select(context.Background(), ActionApprove)
	assert.ErrorIs(t, err, apperrors.ErrNotLoaded)
}

func TestDocumentStatusView_OffersOneAction(t *testing.T) {
	server := newApprovalServer("SalesQuotationID", nil)
	backend := server.backend()
	tracker := NewApprovalTracker(docConfig(t, "sales-quotation"), backend, nil)
	view := NewDocumentStatusView(tracker)
	ctx := context.Background()

	_, err := tracker.Load(ctx, "42", "9")
	require.NoError(t, err)

	chip := view.Chip()
	assert.Equal(t, StatusChip{Label: "Pending", Color: ChipWarning, Actions: []StatusAction{ActionApprove}}, chip)

	_, err = view.Select(ctx, ActionDisapprove)
	assert.ErrorIs(t, err, apperrors.ErrActionNotOffered)
	assert.Empty(t, backend.CallsTo("POST", "sales-quotation/approve"))

	snap, err := view.Select(ctx, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, snap.MyDecision)
	assert.Equal(t, []StatusAction{ActionDisapprove}, view.Chip().Actions)
}

func TestDocumentStatusView_ReadOnly(t *testing.T) {
	tracker := NewApprovalTracker(docConfig(t, "sales-quotation"), &mockBackend{}, nil)
	_, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)

	view := NewDocumentStatusView(tracker)
	view.SetReadOnly(true)

	chip := view.Chip()
	assert.True(t, chip.Disabled)
	_, err = view.Select(context.Background(), ActionApprove)
	assert.ErrorIs(t, err, apperrors.ErrActionNotOffered)
}

func TestDocumentStatusView_TerminalDocument(t *testing.T) {
	backend := &mockBackend{}
	tracker := NewApprovalTracker(docConfig(t, "purchase-order"), backend, nil)
	_, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)
	tracker.SetHeader(entity.Document{ID: "42", Status: entity.StatusRejected})

	view := NewDocumentStatusView(tracker)
	chip := view.Chip()
	assert.Equal(t, "Rejected", chip.Label)
	assert.Equal(t, ChipError, chip.Color)
	assert.True(t, chip.Disabled)

	_, err = view.Select(context.Background(), ActionApprove)
	assert.ErrorIs(t, err, apperrors.ErrApprovalFinal)
	assert.Empty(t, backend.CallsTo("POST", "purchase-order/approve"))
}
