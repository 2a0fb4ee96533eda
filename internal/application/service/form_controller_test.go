package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/domain/entity"
)

var signedIn = &mockIdentity{identity: &entity.Identity{UserID: "9", Name: "Ops", Token: "t"}}

const salesOrderHeader = `{
	"SalesOrderID": 42, "Series": "SO-2024-0042", "Status": "Pending",
	"PostingDate": "2024-03-01T00:00:00", "CustomerID": 5, "CurrencyID": 1,
	"CollectionAddressID": 11, "Total": 60
}`

func salesOrderRoutes() routes {
	return masterData(routes{
		"GET sales-order/42":      salesOrderHeader,
		"GET sales-order-parcel":  `[{"SalesOrderParcelID": 1, "SalesOrderID": 42, "ItemID": 7, "UOMID": 3, "ItemQuantity": 10, "Rate": 5, "Amount": 50}]`,
		"GET sales-order/approve": `[]`,
		"GET customers":           `[{"CustomerID": 5, "CustomerName": "Blue Harbor Ltd"}]`,
		"GET currencies":          `[{"CurrencyID": 1, "CurrencyName": "USD"}]`,
		"GET addresses":           `[{"AddressID": 11, "AddressTitle": "Warehouse 4"}]`,
		"GET suppliers":           `[{"SupplierID": 4, "SupplierName": "Acme Freight"}]`,
		"GET service-types":       `[{"ServiceTypeID": 2, "ServiceType": "Sea Freight"}]`,
	})
}

func TestDocumentFormController_MissingIdentityRefusesBeforeNetwork(t *testing.T) {
	backend := &mockBackend{GetFunc: salesOrderRoutes().get}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, &mockIdentity{err: apperrors.ErrMissingIdentity}, &mockLogger{})

	err := c.Load(context.Background(), "42")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingIdentity)

	var le *apperrors.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, StageIdentity, le.Stage)
	assert.Empty(t, backend.Calls())
	assert.Equal(t, StateFailed, c.State())
	assert.True(t, c.CanRetry())
}

func TestDocumentFormController_Load(t *testing.T) {
	backend := &mockBackend{GetFunc: salesOrderRoutes().get}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, &mockLogger{})

	require.NoError(t, c.Load(context.Background(), "42"))
	assert.Equal(t, StateReady, c.State())
	assert.False(t, c.CanRetry())

	view := c.View()
	assert.Equal(t, "42", view.ID)
	assert.Equal(t, "SO-2024-0042", view.Series)
	assert.Equal(t, "Pending", view.Status)
	assert.Equal(t, "2024-03-01", view.PostingDate)
	assert.Equal(t, "Blue Harbor Ltd", view.Customer)
	assert.Equal(t, "USD", view.Currency)
	assert.Equal(t, "Warehouse 4", view.CollectionAddress)
	assert.Equal(t, "60.00", view.Total)
	assert.Equal(t, "-", view.DeliveryDate)
	assert.Equal(t, "-", view.Supplier)
	assert.Equal(t, "-", view.DestinationAddress)
	assert.Equal(t, "-", view.Company)

	snap := c.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "Cotton Yarn", snap.Lines[0].ItemName)
	assert.Equal(t, "50", snap.Totals.Amount.String())
	assert.True(t, snap.Approval.Loaded)
	assert.Equal(t, "9", snap.Approval.ApproverID)
	assert.Equal(t, []StatusAction{ActionApprove}, snap.Status.Actions)
	assert.Empty(t, snap.Warnings)
}

func TestDocumentFormController_ViewBeforeLoad(t *testing.T) {
	c := NewDocumentFormController(docConfig(t, "sales-order"), &mockBackend{}, signedIn, nil)

	view := c.View()
	assert.Equal(t, "sales-order", view.DocumentType)
	assert.Equal(t, "-", view.ID)
	assert.Equal(t, "-", view.Total)
	assert.Equal(t, StateIdle, c.State())
}

func TestDocumentFormController_HeaderFailureThenRetry(t *testing.T) {
	var healthy atomic.Bool
	backend := &mockBackend{GetFunc: func(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
		if resource == "sales-order/42" && !healthy.Load() {
			return nil, &apperrors.RequestError{Method: "GET", Resource: resource, Status: 503, Retryable: true}
		}
		return salesOrderRoutes().get(ctx, resource, q)
	}}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, nil)

	err := c.Load(context.Background(), "42")
	var le *apperrors.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, StageHeader, le.Stage)
	assert.True(t, apperrors.IsRetryable(err))
	assert.True(t, c.CanRetry())

	snap := c.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, StageHeader, snap.FailedStage)
	assert.True(t, snap.CanRetry)

	healthy.Store(true)
	require.NoError(t, c.Retry(context.Background()))
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, "SO-2024-0042", c.View().Series)
}

func TestDocumentFormController_DocumentNotFound(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(routes{"GET sales-order/42": `[]`}).get}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, nil)

	err := c.Load(context.Background(), "42")
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
}

func TestDocumentFormController_LinesKeyedByHeaderField(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(routes{
		"GET purchase-quotation/8": `{"PurchaseQuotationID": 8, "PurchaseRFQID": 17, "SupplierID": 4}`,
		"GET purchase-quotation-parcel": `[
			{"PurchaseQuotationParcelID": 1, "PurchaseRFQID": 17, "ItemID": 7, "UOMID": 3, "ItemQuantity": 2, "SupplierRate": 4}
		]`,
		"GET suppliers": `[{"SupplierID": 4, "SupplierName": "Acme Freight"}]`,
	}).get}
	c := NewDocumentFormController(docConfig(t, "purchase-quotation"), backend, signedIn, nil)

	require.NoError(t, c.Load(context.Background(), "8"))

	parcels := backend.CallsTo("GET", "purchase-quotation-parcel")
	require.Len(t, parcels, 1)
	assert.Equal(t, url.Values{"purchaseRFQID": {"17"}}, parcels[0].Query)

	approvals := backend.CallsTo("GET", "purchase-quotation/approve")
	require.Len(t, approvals, 1)
	assert.Equal(t, url.Values{"purchaseQuotationID": {"8"}}, approvals[0].Query)

	lines := c.Store().List()
	require.Len(t, lines, 1)
	assert.Equal(t, "8", lines[0].Amount.String())
	assert.Equal(t, "Acme Freight", c.View().Supplier)
}

func TestDocumentFormController_MissingLinkField(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(routes{
		"GET purchase-quotation/8": `{"PurchaseQuotationID": 8}`,
	}).get}
	c := NewDocumentFormController(docConfig(t, "purchase-quotation"), backend, signedIn, nil)

	err := c.Load(context.Background(), "8")
	var le *apperrors.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, StageLines, le.Stage)
	assert.Empty(t, backend.CallsTo("GET", "purchase-quotation-parcel"))
}

func TestDocumentFormController_ReferenceFailureIsAWarning(t *testing.T) {
	var uomDown atomic.Bool
	uomDown.Store(true)
	backend := &mockBackend{GetFunc: func(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
		if resource == "uoms" && uomDown.Load() {
			return nil, &apperrors.RequestError{Method: "GET", Resource: resource, Status: 500, Retryable: true}
		}
		return salesOrderRoutes().get(ctx, resource, q)
	}}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, nil)

	require.NoError(t, c.Load(context.Background(), "42"))
	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], "uom")
	assert.Equal(t, "UOM #3", snap.Lines[0].UOMName)
	assert.Equal(t, "Cotton Yarn", snap.Lines[0].ItemName)

	uomDown.Store(false)
	require.NoError(t, c.Retry(context.Background()))
	snap = c.Snapshot()
	assert.Empty(t, snap.Warnings)
	assert.Equal(t, "KG", snap.Lines[0].UOMName)
	assert.Len(t, backend.CallsTo("GET", "items"), 1, "available kinds are not fetched again")
}

func TestDocumentFormController_TerminalDocumentIsReadOnly(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(routes{
		"GET sales-order/42": `{"SalesOrderID": 42, "Status": "Approved"}`,
	}).get}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, nil)
	require.NoError(t, c.Load(context.Background(), "42"))

	chip := c.StatusView().Chip()
	assert.Equal(t, ChipSuccess, chip.Color)
	assert.True(t, chip.Disabled)

	_, err := c.StatusView().Select(context.Background(), ActionDisapprove)
	assert.ErrorIs(t, err, apperrors.ErrApprovalFinal)
	_, err = c.Tracker().Approve(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrApprovalFinal)
	assert.Empty(t, backend.CallsTo("POST", "sales-order/approve"))
	assert.Empty(t, backend.CallsTo("POST", "sales-order/disapprove"))
}

func TestDocumentFormController_Save(t *testing.T) {
	saved := false
	backend := &mockBackend{}
	backend.GetFunc = func(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
		if resource == "sales-order/42" && saved {
			return json.RawMessage(`{"SalesOrderID": 42, "Series": "SO-2024-0042", "DeliveryDate": "2024-04-15"}`), nil
		}
		return salesOrderRoutes().get(ctx, resource, q)
	}
	backend.PutFunc = func(ctx context.Context, resource string, body any) (json.RawMessage, error) {
		saved = true
		return json.RawMessage("null"), nil
	}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, nil)
	require.NoError(t, c.Load(context.Background(), "42"))

	require.NoError(t, c.Save(context.Background(), map[string]any{"DeliveryDate": "2024-04-15"}))

	puts := backend.CallsTo("PUT", "sales-order/42")
	require.Len(t, puts, 1)
	assert.JSONEq(t, `{"SalesOrderID": 42, "DeliveryDate": "2024-04-15"}`, bodyJSON(puts[0].Body))
	assert.Equal(t, "2024-04-15", c.View().DeliveryDate)
	assert.Len(t, backend.CallsTo("GET", "sales-order/42"), 2)
}

func TestDocumentFormController_SaveRejectsBadFieldNames(t *testing.T) {
	backend := &mockBackend{GetFunc: salesOrderRoutes().get}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, nil)
	require.NoError(t, c.Load(context.Background(), "42"))

	err := c.Save(context.Background(), map[string]any{"Delivery Date; DROP": "x"})
	assert.NotNil(t, apperrors.FieldErrors(err))
	assert.Empty(t, backend.CallsTo("PUT", "sales-order/42"))
}

func TestDocumentFormController_CancelAndClose(t *testing.T) {
	backend := &mockBackend{GetFunc: salesOrderRoutes().get}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, nil)
	require.NoError(t, c.Load(context.Background(), "42"))

	_, err := c.Store().Add(context.Background(), &Draft{ItemID: "7"})
	require.Error(t, err)
	require.Len(t, c.Store().OpenDrafts(), 1)

	c.Cancel()
	assert.Empty(t, c.Store().OpenDrafts())
	assert.Len(t, c.Store().List(), 1)

	c.Close()
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.Store().List())
	assert.False(t, c.Tracker().Snapshot().Loaded)
	assert.Equal(t, "-", c.View().ID)
}

func TestDocumentFormController_ApprovalRefreshesHeaderStatus(t *testing.T) {
	server := newApprovalServer("SalesOrderID", nil)
	var approved atomic.Bool
	backend := &mockBackend{}
	backend.GetFunc = func(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
		switch {
		case resource == "sales-order/approve":
			return server.get(ctx, resource, q)
		case resource == "sales-order/42" && approved.Load():
			return json.RawMessage(`{"SalesOrderID": 42, "Series": "SO-2024-0042", "Status": "Approved", "CustomerID": 5}`), nil
		}
		return salesOrderRoutes().get(ctx, resource, q)
	}
	backend.PostFunc = func(ctx context.Context, resource string, body any) (json.RawMessage, error) {
		raw, err := server.post(ctx, resource, body)
		if resource == "sales-order/approve" && body.(map[string]any)[entity.FieldApprovedYN] == 1 {
			approved.Store(true)
		}
		return raw, err
	}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, nil)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx, "42"))
	require.Equal(t, "Pending", c.StatusView().Chip().Label)

	snap, err := c.StatusView().Select(ctx, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusApproved, snap.Aggregate)
	assert.True(t, snap.ReadOnly)

	chip := c.StatusView().Chip()
	assert.Equal(t, "Approved", chip.Label)
	assert.Equal(t, ChipSuccess, chip.Color)
	assert.True(t, chip.Disabled)
	assert.Empty(t, chip.Actions)
	assert.Equal(t, "Approved", c.View().Status)
	assert.Len(t, backend.CallsTo("GET", "sales-order/42"), 2)

	_, err = c.StatusView().Select(ctx, ActionDisapprove)
	assert.ErrorIs(t, err, apperrors.ErrApprovalFinal)
	_, err = c.Tracker().Disapprove(ctx)
	assert.ErrorIs(t, err, apperrors.ErrApprovalFinal)
	assert.Empty(t, backend.CallsTo("POST", "sales-order/disapprove"))
}

func TestDocumentFormController_CloseDuringLoadStaysIdle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	backend := &mockBackend{GetFunc: func(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
		if resource == "sales-order/42" {
			once.Do(func() { close(started) })
			<-release
		}
		return salesOrderRoutes().get(ctx, resource, q)
	}}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, nil)

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background(), "42") }()
	<-started
	require.Eventually(t, func() bool {
		return c.Store().Loaded() && c.Tracker().Snapshot().Loaded
	}, time.Second, 5*time.Millisecond)

	c.Close()
	close(release)
	err := <-done

	assert.ErrorIs(t, err, apperrors.ErrSuperseded)
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.CanRetry())
	assert.Equal(t, "-", c.View().ID)
	assert.Empty(t, c.Store().List())
	assert.False(t, c.Store().Loaded())
	assert.False(t, c.Tracker().Snapshot().Loaded)
}

func TestDocumentFormController_NewerLoadWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	backend := &mockBackend{GetFunc: masterData(routes{
		"GET sales-order/42":      salesOrderHeader,
		"GET sales-order/43":      `{"SalesOrderID": 43, "Series": "SO-2024-0043", "Status": "Pending"}`,
		"GET sales-order-parcel":  salesOrderParcels,
		"GET sales-order/approve": `[]`,
	}).get}
	slow := backend.GetFunc
	backend.GetFunc = func(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
		if resource == "sales-order/42" {
			once.Do(func() { close(started) })
			<-release
		}
		return slow(ctx, resource, q)
	}
	c := NewDocumentFormController(docConfig(t, "sales-order"), backend, signedIn, nil)

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background(), "42") }()
	<-started
	require.Eventually(t, func() bool {
		return c.Store().Loaded() && c.Tracker().Snapshot().Loaded
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Load(context.Background(), "43"))
	close(release)
	assert.ErrorIs(t, <-done, apperrors.ErrSuperseded)

	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, "SO-2024-0043", c.View().Series)
	lines := c.Store().List()
	require.Len(t, lines, 1)
	assert.Equal(t, "3", lines[0].LineItemID)
}
