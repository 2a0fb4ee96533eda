package service

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/domain/doctype"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/domain/event"
	"github.com/garyjia/logistics-console/internal/domain/workflow"
)

// ApprovalTracker follows the approver records of one document and carries
// out the current user's approve and disapprove actions
type ApprovalTracker struct {
	cfg     doctype.Config
	backend port.Backend
	logger  Logger
	events  port.EventPublisher
	header  HeaderSource

	mu             sync.Mutex
	documentID     string
	approverID     string
	headerStatus   entity.DocumentStatus
	headerApprover string
	records        []entity.ApprovalRecord
	aggregate      entity.DocumentStatus
	myDecision     entity.DocumentStatus
	machine        workflow.StateMachine
	loaded         bool
	inFlight       bool
	loadSeq        uint64
}

// HeaderSource re-reads a document header. The tracker calls it after a
// confirmed decision because the server may change the header status too.
type HeaderSource func(ctx context.Context, documentID string) (entity.Document, error)

// TrackerOption configures an ApprovalTracker
type TrackerOption func(*ApprovalTracker)

// WithTrackerEvents publishes approval.decided events
func WithTrackerEvents(pub port.EventPublisher) TrackerOption {
	return func(t *ApprovalTracker) {
		t.events = pub
	}
}

// WithTrackerHeaderSource refreshes the header after every decision
func WithTrackerHeaderSource(src HeaderSource) TrackerOption {
	return func(t *ApprovalTracker) {
		t.header = src
	}
}

// NewApprovalTracker creates a tracker for one document type
func NewApprovalTracker(cfg doctype.Config, backend port.Backend, logger Logger, opts ...TrackerOption) *ApprovalTracker {
	t := &ApprovalTracker{
		cfg:          cfg,
		backend:      backend,
		logger:       loggerOrNop(logger),
		headerStatus: entity.StatusPending,
		aggregate:    entity.StatusPending,
		myDecision:   entity.StatusPending,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load reads the approver records of documentID. No records means nobody
// has decided yet; it is not an error.
func (t *ApprovalTracker) Load(ctx context.Context, documentID, approverID string) (entity.ApprovalSnapshot, error) {
	documentID = entity.CanonicalID(documentID)
	approverID = entity.CanonicalID(approverID)

	t.mu.Lock()
	t.loadSeq++
	seq := t.loadSeq
	t.mu.Unlock()

	records, err := t.fetch(ctx, documentID)
	if err != nil {
		return t.Snapshot(), fmt.Errorf("load approvals: %w", err)
	}

	t.mu.Lock()
	if t.loadSeq != seq {
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, fmt.Errorf("load approvals of %s: %w", documentID, apperrors.ErrSuperseded)
	}
	t.documentID = documentID
	t.approverID = approverID
	t.records = records
	t.loaded = true
	t.recomputeLocked()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	return snap, nil
}

// SetHeader feeds the document header into the aggregate status
func (t *ApprovalTracker) SetHeader(doc entity.Document) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.headerStatus = doc.Status
	t.headerApprover = doc.Link(entity.FieldApproverID)
	if t.loaded {
		t.recomputeLocked()
	}
}

func (t *ApprovalTracker) fetch(ctx context.Context, documentID string) ([]entity.ApprovalRecord, error) {
	raw, err := t.backend.Get(ctx, t.cfg.ApprovalEndpoint, url.Values{t.cfg.ApprovalParam: {documentID}})
	if err != nil {
		return nil, err
	}
	rows, err := entity.DecodeRows(raw)
	if err != nil {
		return nil, err
	}

	byApprover := make(map[string]int, len(rows))
	records := make([]entity.ApprovalRecord, 0, len(rows))
	for _, row := range rows {
		if owner := row.ID(t.cfg.HeaderIDField); owner != "" && owner != documentID {
			t.logger.Warn("Ignoring approval record of another document", "expected", documentID, "actual", owner)
			continue
		}
		approver := row.ID(entity.FieldApproverID)
		if approver == "" {
			continue
		}
		rec := entity.ApprovalRecord{
			DocumentID: documentID,
			ApproverID: approver,
			Approved:   row.Bool(entity.FieldApprovedYN),
			DecidedAt:  row.Time("ApprovedDate", "UpdatedAt", "CreatedAt"),
		}
		if i, ok := byApprover[approver]; ok {
			records[i] = rec
			continue
		}
		byApprover[approver] = len(records)
		records = append(records, rec)
	}
	return records, nil
}

// recomputeLocked derives the aggregate status, the user's decision and the
// machine from the records and the header
func (t *ApprovalTracker) recomputeLocked() {
	t.myDecision = entity.StatusPending
	if rec, ok := t.recordLocked(t.approverID); ok && rec.Approved {
		t.myDecision = entity.StatusApproved
	}

	switch t.cfg.Policy {
	case doctype.PolicyDesignatedApprover:
		designated := t.cfg.DesignatedApproverID
		if designated == "" {
			designated = t.headerApprover
		}
		if designated == "" {
			designated = t.approverID
		}
		t.aggregate = entity.StatusPending
		if rec, ok := t.recordLocked(designated); ok && rec.Approved {
			t.aggregate = entity.StatusApproved
		}
	case doctype.PolicyAnyApprover:
		t.aggregate = entity.StatusPending
		for _, rec := range t.records {
			if rec.Approved {
				t.aggregate = entity.StatusApproved
				break
			}
		}
	default:
		t.aggregate = t.headerStatus
	}

	state := workflow.StatePending
	if t.myDecision == entity.StatusApproved {
		state = workflow.StateApproved
	}
	open := !t.readOnlyLocked()
	machine, err := workflow.NewDecisionMachine(state, func(context.Context) bool { return open })
	if err != nil {
		t.logger.Error("Failed to build decision machine", "state", state, "error", err)
		return
	}
	t.machine = machine
}

func (t *ApprovalTracker) recordLocked(approverID string) (entity.ApprovalRecord, bool) {
	if approverID == "" {
		return entity.ApprovalRecord{}, false
	}
	for _, rec := range t.records {
		if rec.ApproverID == approverID {
			return rec, true
		}
	}
	return entity.ApprovalRecord{}, false
}

func (t *ApprovalTracker) readOnlyLocked() bool {
	return t.cfg.ApprovalTerminal && t.aggregate != entity.StatusPending
}

// Approve records the current user's approval
func (t *ApprovalTracker) Approve(ctx context.Context) (entity.ApprovalSnapshot, error) {
	return t.decide(ctx, workflow.TriggerApprove)
}

// Disapprove withdraws the current user's approval
func (t *ApprovalTracker) Disapprove(ctx context.Context) (entity.ApprovalSnapshot, error) {
	return t.decide(ctx, workflow.TriggerDisapprove)
}

// PermittedActions returns the triggers the current user may fire
func (t *ApprovalTracker) PermittedActions(ctx context.Context) []workflow.Trigger {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.loaded || t.inFlight || t.machine == nil || t.approverID == "" {
		return nil
	}
	return t.machine.PermittedTriggers(ctx)
}

func (t *ApprovalTracker) decide(ctx context.Context, trigger workflow.Trigger) (entity.ApprovalSnapshot, error) {
	t.mu.Lock()
	switch {
	case !t.loaded || t.machine == nil:
		t.mu.Unlock()
		return t.Snapshot(), apperrors.ErrNotLoaded
	case t.inFlight:
		t.mu.Unlock()
		return t.Snapshot(), apperrors.ErrActionInFlight
	case t.approverID == "":
		t.mu.Unlock()
		return t.Snapshot(), apperrors.ErrMissingIdentity
	case t.readOnlyLocked():
		t.mu.Unlock()
		return t.Snapshot(), apperrors.ErrApprovalFinal
	}
	target, err := t.machine.Target(ctx, trigger)
	if err != nil {
		t.mu.Unlock()
		return t.Snapshot(), fmt.Errorf("%s: %w", trigger, err)
	}
	from := t.myDecision
	documentID, approverID := t.documentID, t.approverID
	t.inFlight = true
	t.mu.Unlock()

	finish := func() entity.ApprovalSnapshot {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.inFlight = false
		return t.snapshotLocked()
	}

	endpoint, approvedYN, op := t.cfg.ApproveEndpoint, 1, "approve"
	if trigger == workflow.TriggerDisapprove {
		op, approvedYN = "disapprove", 0
		if t.cfg.DisapproveEndpoint != "" {
			endpoint = t.cfg.DisapproveEndpoint
		}
	}
	body := map[string]any{
		t.cfg.HeaderIDField:    wireID(documentID),
		entity.FieldApproverID: wireID(approverID),
		entity.FieldApprovedYN: approvedYN,
	}

	if _, err := t.backend.Post(ctx, endpoint, body); err != nil {
		t.logger.Error("Approval action failed", "document_type", t.cfg.Name, "document_id", documentID, "action", op, "error", err)
		return finish(), &apperrors.PersistenceError{Op: op, Err: err}
	}

	records, err := t.fetch(ctx, documentID)
	if err != nil {
		return finish(), fmt.Errorf("reload approvals after %s: %w", op, err)
	}
	var header *entity.Document
	var headerErr error
	if t.header != nil {
		doc, err := t.header(ctx, documentID)
		if err != nil {
			headerErr = fmt.Errorf("reload header after %s: %w", op, err)
			t.logger.Warn("Header not refreshed after approval action", "document_id", documentID, "action", op, "error", err)
		} else {
			header = &doc
		}
	}

	t.mu.Lock()
	if t.documentID == documentID {
		t.records = records
		if header != nil {
			t.headerStatus = header.Status
			t.headerApprover = header.Link(entity.FieldApproverID)
		}
		t.recomputeLocked()
	}
	t.inFlight = false
	to := t.myDecision
	aggregate := t.aggregate
	snap := t.snapshotLocked()
	t.mu.Unlock()

	if to != decisionStatus(target) {
		t.logger.Warn("Approval not reflected by backend", "document_id", documentID, "action", op, "decision", to)
		return snap, headerErr
	}

	t.logger.Info("Approval decided", "document_type", t.cfg.Name, "document_id", documentID, "approver_id", approverID, "from", from, "to", to)
	if t.events != nil {
		t.events.DispatchAsync(context.Background(), event.NewEvent(
			event.TypeApprovalDecided, t.cfg.Name, documentID,
			map[string]interface{}{
				"trigger":   trigger.String(),
				"from":      from.String(),
				"to":        to.String(),
				"aggregate": aggregate.String(),
			},
		).WithActor(approverID))
	}
	return snap, headerErr
}

func decisionStatus(s workflow.State) entity.DocumentStatus {
	if s == workflow.StateApproved {
		return entity.StatusApproved
	}
	return entity.StatusPending
}

// Snapshot returns the tracker's current view
func (t *ApprovalTracker) Snapshot() entity.ApprovalSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *ApprovalTracker) snapshotLocked() entity.ApprovalSnapshot {
	records := make([]entity.ApprovalRecord, len(t.records))
	copy(records, t.records)
	return entity.ApprovalSnapshot{
		DocumentID: t.documentID,
		ApproverID: t.approverID,
		Aggregate:  t.aggregate,
		MyDecision: t.myDecision,
		Records:    records,
		Loaded:     t.loaded,
		ReadOnly:   t.readOnlyLocked(),
		InFlight:   t.inFlight,
	}
}

// Reset forgets the loaded document
func (t *ApprovalTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.documentID = ""
	t.approverID = ""
	t.records = nil
	t.headerStatus = entity.StatusPending
	t.headerApprover = ""
	t.aggregate = entity.StatusPending
	t.myDecision = entity.StatusPending
	t.machine = nil
	t.loaded = false
	t.loadSeq++
}
