package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/domain/event"
	"github.com/garyjia/logistics-console/internal/domain/workflow"
)

// approvalServer keeps approver decisions the way the backend does: one row
// per approver, last write wins
type approvalServer struct {
	idField string

	mu        sync.Mutex
	decisions map[string]int
	posts     []string
}

func newApprovalServer(idField string, decisions map[string]int) *approvalServer {
	if decisions == nil {
		decisions = map[string]int{}
	}
	return &approvalServer{idField: idField, decisions: decisions}
}

func (a *approvalServer) get(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	approvers := make([]string, 0, len(a.decisions))
	for id := range a.decisions {
		approvers = append(approvers, id)
	}
	sort.Strings(approvers)

	rows := make([]string, 0, len(approvers))
	for _, id := range approvers {
		rows = append(rows, fmt.Sprintf(`{%q: 42, "ApproverID": %s, "ApprovedYN": %d}`, a.idField, id, a.decisions[id]))
	}
	return json.RawMessage("[" + strings.Join(rows, ",") + "]"), nil
}

func (a *approvalServer) post(ctx context.Context, resource string, body any) (json.RawMessage, error) {
	m := body.(map[string]any)
	approver := fmt.Sprint(m[entity.FieldApproverID])
	a.mu.Lock()
	a.decisions[approver] = m[entity.FieldApprovedYN].(int)
	a.posts = append(a.posts, resource)
	a.mu.Unlock()
	return json.RawMessage(`{"affectedRows": 1}`), nil
}

func (a *approvalServer) backend() *mockBackend {
	return &mockBackend{GetFunc: a.get, PostFunc: a.post}
}

func TestApprovalTracker_LoadWithoutRecords(t *testing.T) {
	backend := &mockBackend{}
	tracker := NewApprovalTracker(docConfig(t, "sales-quotation"), backend, &mockLogger{})

	snap, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)
	assert.True(t, snap.Loaded)
	assert.Equal(t, entity.StatusPending, snap.MyDecision)
	assert.Equal(t, entity.StatusPending, snap.Aggregate)
	assert.Empty(t, snap.Records)

	calls := backend.CallsTo("GET", "sales-quotation/approve")
	require.Len(t, calls, 1)
	assert.Equal(t, url.Values{"salesQuotationID": {"42"}}, calls[0].Query)
}

func TestApprovalTracker_ApproveThenDisapprove(t *testing.T) {
	server := newApprovalServer("SalesQuotationID", nil)
	backend := server.backend()
	pub := &mockPublisher{}
	tracker := NewApprovalTracker(docConfig(t, "sales-quotation"), backend, &mockLogger{}, WithTrackerEvents(pub))
	ctx := context.Background()

	_, err := tracker.Load(ctx, "42", "9")
	require.NoError(t, err)
	assert.Equal(t, []workflow.Trigger{workflow.TriggerApprove}, tracker.PermittedActions(ctx))

	snap, err := tracker.Approve(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, snap.MyDecision)
	assert.False(t, snap.InFlight)

	posts := backend.CallsTo("POST", "sales-quotation/approve")
	require.Len(t, posts, 1)
	assert.JSONEq(t, `{"SalesQuotationID": 42, "ApproverID": 9, "ApprovedYN": 1}`, bodyJSON(posts[0].Body))
	assert.Equal(t, []workflow.Trigger{workflow.TriggerDisapprove}, tracker.PermittedActions(ctx))

	snap, err = tracker.Disapprove(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, snap.MyDecision)

	posts = backend.CallsTo("POST", "sales-quotation/approve")
	require.Len(t, posts, 2, "types without a disapprove endpoint post ApprovedYN 0 to approve")
	assert.JSONEq(t, `{"SalesQuotationID": 42, "ApproverID": 9, "ApprovedYN": 0}`, bodyJSON(posts[1].Body))

	fresh := NewApprovalTracker(docConfig(t, "sales-quotation"), backend, &mockLogger{})
	snap, err = fresh.Load(ctx, "42", "9")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, snap.MyDecision)

	decided := pub.OfType(event.TypeApprovalDecided)
	require.Len(t, decided, 2)
	assert.Equal(t, "Approved", decided[0].GetPayloadString("to"))
	assert.Equal(t, "9", decided[0].ActorID)
	assert.Equal(t, "Pending", decided[1].GetPayloadString("to"))
}

func TestApprovalTracker_SeparateDisapproveEndpoint(t *testing.T) {
	server := newApprovalServer("SalesRFQID", map[string]int{"9": 1})
	backend := server.backend()
	tracker := NewApprovalTracker(docConfig(t, "sales-rfq"), backend, &mockLogger{})

	_, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)
	_, err = tracker.Disapprove(context.Background())
	require.NoError(t, err)

	posts := backend.CallsTo("POST", "sales-rfq/disapprove")
	require.Len(t, posts, 1)
	assert.JSONEq(t, `{"SalesRFQID": 42, "ApproverID": 9, "ApprovedYN": 0}`, bodyJSON(posts[0].Body))
}

func TestApprovalTracker_InvalidTransition(t *testing.T) {
	server := newApprovalServer("SalesQuotationID", map[string]int{"9": 1})
	backend := server.backend()
	tracker := NewApprovalTracker(docConfig(t, "sales-quotation"), backend, &mockLogger{})

	_, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)

	_, err = tracker.Approve(context.Background())
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Empty(t, backend.CallsTo("POST", "sales-quotation/approve"))
}

func TestApprovalTracker_TerminalRefusesActions(t *testing.T) {
	server := newApprovalServer("SalesOrderID", nil)
	backend := server.backend()
	tracker := NewApprovalTracker(docConfig(t, "sales-order"), backend, &mockLogger{})

	_, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)
	tracker.SetHeader(entity.Document{ID: "42", Status: entity.StatusApproved})

	snap := tracker.Snapshot()
	assert.True(t, snap.ReadOnly)
	assert.Equal(t, entity.StatusApproved, snap.Aggregate)
	assert.Empty(t, tracker.PermittedActions(context.Background()))

	_, err = tracker.Approve(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrApprovalFinal)
	_, err = tracker.Disapprove(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrApprovalFinal)
	assert.Empty(t, backend.CallsTo("POST", "sales-order/approve"))
	assert.Empty(t, backend.CallsTo("POST", "sales-order/disapprove"))
}

func TestApprovalTracker_DesignatedApprover(t *testing.T) {
	server := newApprovalServer("SalesRFQID", map[string]int{"5": 1, "9": 0})
	tracker := NewApprovalTracker(docConfig(t, "sales-rfq"), server.backend(), &mockLogger{})

	snap, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, snap.Aggregate, "without a header the current user is the designated approver")

	tracker.SetHeader(entity.Document{ID: "42", Raw: entity.Row{"ApproverID": json.Number("5")}})
	snap = tracker.Snapshot()
	assert.Equal(t, entity.StatusApproved, snap.Aggregate)
	assert.Equal(t, entity.StatusPending, snap.MyDecision)
	assert.False(t, snap.ReadOnly)
}

func TestApprovalTracker_AnyApprover(t *testing.T) {
	server := newApprovalServer("PurchaseInvoiceID", map[string]int{"3": 0, "4": 1})
	tracker := NewApprovalTracker(docConfig(t, "purchase-invoice"), server.backend(), &mockLogger{})

	snap, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, snap.Aggregate)
	assert.Equal(t, entity.StatusPending, snap.MyDecision)
	assert.True(t, snap.ReadOnly)
}

func TestApprovalTracker_ApprovedFlagVariants(t *testing.T) {
	tests := []struct {
		raw  string
		want entity.DocumentStatus
	}{
		{`1`, entity.StatusApproved},
		{`"1"`, entity.StatusApproved},
		{`true`, entity.StatusApproved},
		{`"true"`, entity.StatusApproved},
		{`"Y"`, entity.StatusApproved},
		{`0`, entity.StatusPending},
		{`"0"`, entity.StatusPending},
		{`false`, entity.StatusPending},
		{`null`, entity.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			backend := &mockBackend{GetFunc: routes{
				"GET sales-quotation/approve": `[{"ApproverID": 9, "ApprovedYN": ` + tt.raw + `}]`,
			}.get}
			tracker := NewApprovalTracker(docConfig(t, "sales-quotation"), backend, nil)

			snap, err := tracker.Load(context.Background(), "42", "9")
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.MyDecision)
		})
	}
}

func TestApprovalTracker_LastRecordPerApproverWins(t *testing.T) {
	backend := &mockBackend{GetFunc: routes{
		"GET sales-quotation/approve": `[
			{"SalesQuotationID": 42, "ApproverID": 9, "ApprovedYN": 1},
			{"SalesQuotationID": 43, "ApproverID": 9, "ApprovedYN": 1},
			{"SalesQuotationID": 42, "ApproverID": 9, "ApprovedYN": 0}
		]`,
	}.get}
	tracker := NewApprovalTracker(docConfig(t, "sales-quotation"), backend, nil)

	snap, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, entity.StatusPending, snap.MyDecision)
}

func TestApprovalTracker_FailureKeepsDecision(t *testing.T) {
	server := newApprovalServer("SalesQuotationID", nil)
	backend := server.backend()
	backend.PostFunc = func(ctx context.Context, resource string, body any) (json.RawMessage, error) {
		return nil, &apperrors.RequestError{Method: "POST", Resource: resource, Status: 500, Retryable: true}
	}
	pub := &mockPublisher{}
	tracker := NewApprovalTracker(docConfig(t, "sales-quotation"), backend, nil, WithTrackerEvents(pub))

	_, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)

	snap, err := tracker.Approve(context.Background())
	var pErr *apperrors.PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "approve", pErr.Op)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, entity.StatusPending, snap.MyDecision)
	assert.False(t, snap.InFlight)
	assert.Empty(t, pub.OfType(event.TypeApprovalDecided))
}

func TestApprovalTracker_ActionInFlight(t *testing.T) {
	server := newApprovalServer("SalesQuotationID", nil)
	backend := server.backend()
	started := make(chan struct{})
	release := make(chan struct{})
	backend.PostFunc = func(ctx context.Context, resource string, body any) (json.RawMessage, error) {
		close(started)
		<-release
		return server.post(ctx, resource, body)
	}
	tracker := NewApprovalTracker(docConfig(t, "sales-quotation"), backend, nil)
	_, err := tracker.Load(context.Background(), "42", "9")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := tracker.Approve(context.Background())
		done <- err
	}()
	<-started

	assert.True(t, tracker.Snapshot().InFlight)
	_, err = tracker.Approve(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrActionInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, entity.StatusApproved, tracker.Snapshot().MyDecision)
}

func TestApprovalTracker_RequiresLoadAndIdentity(t *testing.T) {
	tracker := NewApprovalTracker(docConfig(t, "sales-quotation"), &mockBackend{}, nil)

	_, err := tracker.Approve(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNotLoaded)

	_, err = tracker.Load(context.Background(), "42", "")
	require.NoError(t, err)
	_, err = tracker.Approve(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrMissingIdentity)
}

func TestApprovalTracker_ResetDuringLoadDiscardsResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := newApprovalServer("SalesOrderID", map[string]int{"9": 1})
	backend := &mockBackend{GetFunc: func(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
		close(started)
		<-release
		return server.get(ctx, resource, q)
	}}
	tracker := NewApprovalTracker(docConfig(t, "sales-order"), backend, &mockLogger{})

	done := make(chan error, 1)
	go func() {
		_, err := tracker.Load(context.Background(), "42", "9")
		done <- err
	}()
	<-started
	tracker.Reset()
	close(release)

	assert.ErrorIs(t, <-done, apperrors.ErrSuperseded)
	snap := tracker.Snapshot()
	assert.False(t, snap.Loaded)
	assert.Empty(t, snap.Records)
	assert.Equal(t, entity.StatusPending, snap.MyDecision)
}

func TestApprovalTracker_DecisionRefreshesHeader(t *testing.T) {
	server := newApprovalServer("SalesOrderID", nil)
	backend := server.backend()
	var headerReads int
	header := func(ctx context.Context, documentID string) (entity.Document, error) {
		headerReads++
		return entity.Document{ID: documentID, Status: entity.StatusApproved}, nil
	}
	tracker := NewApprovalTracker(docConfig(t, "sales-order"), backend, &mockLogger{}, WithTrackerHeaderSource(header))
	ctx := context.Background()

	_, err := tracker.Load(ctx, "42", "9")
	require.NoError(t, err)
	tracker.SetHeader(entity.Document{ID: "42", Status: entity.StatusPending})
	require.False(t, tracker.Snapshot().ReadOnly)

	snap, err := tracker.Approve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, headerReads)
	assert.Equal(t, entity.StatusApproved, snap.Aggregate)
	assert.True(t, snap.ReadOnly)
	assert.Empty(t, tracker.PermittedActions(ctx))

	_, err = tracker.Disapprove(ctx)
	assert.ErrorIs(t, err, apperrors.ErrApprovalFinal)
	assert.Empty(t, backend.CallsTo("POST", "sales-order/disapprove"))
}

func TestApprovalTracker_HeaderRefreshFailureIsReported(t *testing.T) {
	server := newApprovalServer("SalesOrderID", nil)
	header := func(ctx context.Context, documentID string) (entity.Document, error) {
		return entity.Document{}, errors.New("gateway timeout")
	}
	tracker := NewApprovalTracker(docConfig(t, "sales-order"), server.backend(), &mockLogger{}, WithTrackerHeaderSource(header))
	ctx := context.Background()

	_, err := tracker.Load(ctx, "42", "9")
	require.NoError(t, err)

	snap, err := tracker.Approve(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reload header after approve")
	assert.Equal(t, entity.StatusApproved, snap.MyDecision)
	assert.False(t, snap.InFlight)
}
