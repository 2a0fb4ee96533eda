package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/domain/doctype"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/domain/event"
)

func docConfig(t *testing.T, name string) doctype.Config {
	t.Helper()
	cfg, err := doctype.DefaultRegistry().Get(name)
	require.NoError(t, err)
	return cfg
}

const salesOrderParcels = `[
	{"SalesOrderParcelID": 1, "SalesOrderID": 42, "ItemID": 7, "UOMID": 3, "ItemQuantity": 2, "Rate": 5, "Amount": 10},
	{"SalesOrderParcelID": 2, "SalesOrderID": "42", "ItemID": 8, "UOMID": 3, "ItemQuantity": 1.5, "Rate": 3},
	{"SalesOrderParcelID": 3, "SalesOrderID": 43, "ItemID": 9, "UOMID": 3, "ItemQuantity": 1, "Rate": 1},
	{"SalesOrderParcelID": 1, "SalesOrderID": 42, "ItemID": 7, "UOMID": 3, "ItemQuantity": 2, "Rate": 5}
]`

func masterData(extra routes) routes {
	r := routes{
		"GET items":          `[{"ItemID": 7, "ItemName": "Cotton Yarn"}, {"ItemID": 8, "ItemName": "Polyester"}]`,
		"GET uoms":           `[{"UOMID": 3, "UOM": "KG"}]`,
		"GET certifications": `[{"CertificationID": 2, "CertificationName": "GOTS"}]`,
	}
	for k, v := range extra {
		r[k] = v
	}
	return r
}

func newTestStore(t *testing.T, name string, backend *mockBackend, opts ...StoreOption) *LineItemStore {
	t.Helper()
	cfg := docConfig(t, name)
	resolver := NewReferenceResolver(backend, &mockLogger{})
	return NewLineItemStore(cfg, backend, resolver, &mockLogger{}, opts...)
}

func loadedStore(t *testing.T, name string, backend *mockBackend, opts ...StoreOption) *LineItemStore {
	t.Helper()
	s := newTestStore(t, name, backend, opts...)
	_, err := s.Load(context.Background(), "42")
	require.NoError(t, err)
	return s
}

func TestLineItemStore_LoadFiltersAndResolves(t *testing.T) {
	pub := &mockPublisher{}
	backend := &mockBackend{GetFunc: masterData(routes{"GET sales-order-parcel": salesOrderParcels}).get}
	s := newTestStore(t, "sales-order", backend, WithStoreEvents(pub))

	items, err := s.Load(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "1", items[0].LineItemID)
	assert.Equal(t, 1, items[0].SrNo)
	assert.Equal(t, "Cotton Yarn", items[0].ItemName)
	assert.Equal(t, "KG", items[0].UOMName)
	assert.Equal(t, "10", items[0].Amount.String())

	assert.Equal(t, "2", items[1].LineItemID)
	assert.Equal(t, 2, items[1].SrNo)
	assert.Equal(t, "4.5", items[1].Amount.String(), "missing amount is computed")

	for _, li := range items {
		assert.Equal(t, "42", li.DocumentID)
		assert.NotEmpty(t, li.LocalID)
	}

	parcelCalls := backend.CallsTo("GET", "sales-order-parcel")
	require.Len(t, parcelCalls, 1)
	assert.Equal(t, url.Values{"salesOrderID": {"42"}}, parcelCalls[0].Query)

	mismatches := pub.OfType(event.TypeParentMismatch)
	require.Len(t, mismatches, 1)
	assert.Equal(t, int64(1), mismatches[0].GetPayloadInt("rows"))
	assert.Equal(t, []string{"43"}, mismatches[0].Payload["actual_parents"])
}

func TestLineItemStore_ReloadKeepsLocalIDs(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(routes{"GET sales-order-parcel": salesOrderParcels}).get}
	s := loadedStore(t, "sales-order", backend)
	first := s.List()

	second, err := s.Load(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, first[0].LocalID, second[0].LocalID)
	assert.Equal(t, first[1].LocalID, second[1].LocalID)
}

func TestLineItemStore_PlaceholdersWhenLookupFails(t *testing.T) {
	backend := &mockBackend{GetFunc: func(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
		switch resource {
		case "uoms":
			return nil, &apperrors.RequestError{Method: "GET", Resource: resource, Status: 500, Retryable: true}
		case "sales-order-parcel":
			return json.RawMessage(`[{"SalesOrderParcelID": 1, "SalesOrderID": 42, "ItemID": 7, "UOMID": 99, "ItemQuantity": 1, "Rate": 1}]`), nil
		}
		return masterData(nil).get(ctx, resource, q)
	}}
	s := loadedStore(t, "sales-order", backend)

	items := s.List()
	require.Len(t, items, 1)
	assert.Equal(t, "Cotton Yarn", items[0].ItemName)
	assert.Equal(t, "UOM #99", items[0].UOMName)
}

func TestLineItemStore_AddSendsNumericPayload(t *testing.T) {
	pub := &mockPublisher{}
	backend := &mockBackend{
		GetFunc: masterData(nil).get,
		PostFunc: func(ctx context.Context, resource string, body any) (json.RawMessage, error) {
			return json.RawMessage(`{"SalesOrderParcelID": 501}`), nil
		},
	}
	s := loadedStore(t, "sales-order", backend, WithStoreEvents(pub))

	d := &Draft{ItemID: "7", UOMID: "3", Quantity: "10", Rate: "5"}
	res, err := s.Add(context.Background(), d)
	require.NoError(t, err)
	require.True(t, res.OK)

	assert.Equal(t, "50.00", d.Amount)
	assert.Equal(t, "501", res.Item.LineItemID)
	assert.Equal(t, "Cotton Yarn", res.Item.ItemName)

	posts := backend.CallsTo("POST", "sales-order-parcel")
	require.Len(t, posts, 1)
	assert.JSONEq(t, `{"SalesOrderID": 42, "ItemID": 7, "UOMID": 3, "ItemQuantity": 10, "Rate": 5, "Amount": 50}`, bodyJSON(posts[0].Body))

	items := s.List()
	require.Len(t, items, 1)
	assert.Equal(t, "501", items[0].LineItemID)
	assert.Empty(t, s.OpenDrafts())
	assert.Len(t, pub.OfType(event.TypeLineItemAdded), 1)
}

func TestLineItemStore_AddRejectsInvalidDraftWithoutRequest(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(nil).get}
	s := loadedStore(t, "sales-order", backend)
	before := len(backend.Calls())

	d := &Draft{ItemID: "7", UOMID: "3", Quantity: "0", Rate: "5"}
	_, err := s.Add(context.Background(), d)

	var vErr *apperrors.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "Quantity must be a positive number", vErr.Fields[DraftFieldQuantity])
	assert.Len(t, backend.Calls(), before)
	assert.Empty(t, s.List())

	open := s.OpenDrafts()
	require.Len(t, open, 1)
	assert.Equal(t, d.LocalID, open[0].LocalID)
	assert.Equal(t, "Quantity must be a positive number", open[0].Errors[DraftFieldQuantity])
}

func TestLineItemStore_AddRequiresCertificationPerType(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(nil).get}
	s := newTestStore(t, "sales-rfq", backend)
	_, err := s.Load(context.Background(), "42")
	require.NoError(t, err)

	_, err = s.Add(context.Background(), &Draft{ItemID: "7", UOMID: "3", Quantity: "1", Rate: "1"})
	assert.Equal(t, "Certification is required", apperrors.FieldErrors(err)[DraftFieldCertification])
	assert.Empty(t, backend.CallsTo("POST", "sales-rfq-parcel"))
}

func TestLineItemStore_AddFailureKeepsDraft(t *testing.T) {
	backend := &mockBackend{
		GetFunc: masterData(nil).get,
		PostFunc: func(ctx context.Context, resource string, body any) (json.RawMessage, error) {
			return nil, &apperrors.RequestError{Method: "POST", Resource: resource, Status: 200, Message: "Item inactive"}
		},
	}
	s := loadedStore(t, "sales-order", backend)

	d := &Draft{ItemID: "7", UOMID: "3", Quantity: "1", Rate: "1"}
	res, err := s.Add(context.Background(), d)

	var pErr *apperrors.PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "create", pErr.Op)
	assert.False(t, res.OK)
	assert.Empty(t, s.List())

	open := s.OpenDrafts()
	require.Len(t, open, 1)
	assert.Equal(t, "Item inactive", open[0].Errors[DraftFieldForm])
}

func TestLineItemStore_AddReconcilesMissingID(t *testing.T) {
	var mu sync.Mutex
	created := false
	backend := &mockBackend{
		GetFunc: func(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
			if resource != "sales-order-parcel" {
				return masterData(nil).get(ctx, resource, q)
			}
			mu.Lock()
			defer mu.Unlock()
			if !created {
				return json.RawMessage(`[{"SalesOrderParcelID": 1, "SalesOrderID": 42, "ItemID": 8, "UOMID": 3, "ItemQuantity": 1, "Rate": 1}]`), nil
			}
			return json.RawMessage(`[
				{"SalesOrderParcelID": 1, "SalesOrderID": 42, "ItemID": 8, "UOMID": 3, "ItemQuantity": 1, "Rate": 1},
				{"SalesOrderParcelID": 9, "SalesOrderID": 42, "ItemID": 8, "UOMID": 3, "ItemQuantity": 4, "Rate": 1},
				{"SalesOrderParcelID": 7, "SalesOrderID": 42, "ItemID": 7, "UOMID": 3, "ItemQuantity": 2, "Rate": 5}
			]`), nil
		},
		PostFunc: func(ctx context.Context, resource string, body any) (json.RawMessage, error) {
			mu.Lock()
			created = true
			mu.Unlock()
			return json.RawMessage(`{"affectedRows": 1}`), nil
		},
	}
	s := loadedStore(t, "sales-order", backend)

	res, err := s.Add(context.Background(), &Draft{ItemID: "7", UOMID: "3", Quantity: "2", Rate: "5"})
	require.NoError(t, err)
	assert.Equal(t, "7", res.Item.LineItemID, "matching row wins over the newer unmatched one")

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].LineItemID)
	assert.Equal(t, "7", items[1].LineItemID)
}

func TestLineItemStore_UpdateSendsLineID(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(routes{"GET sales-order-parcel": salesOrderParcels}).get}
	s := loadedStore(t, "sales-order", backend)

	d := &Draft{ItemID: "8", UOMID: "3", Quantity: "3", Rate: "2.5"}
	res, err := s.Update(context.Background(), "2", d)
	require.NoError(t, err)
	assert.Equal(t, "7.50", d.Amount)

	puts := backend.CallsTo("PUT", "sales-order-parcel/2")
	require.Len(t, puts, 1)
	assert.JSONEq(t, `{"SalesOrderParcelID": 2, "SalesOrderID": 42, "ItemID": 8, "UOMID": 3, "ItemQuantity": 3, "Rate": 2.5, "Amount": 7.5}`, bodyJSON(puts[0].Body))

	li, ok := s.Get("2")
	require.True(t, ok)
	assert.Equal(t, "7.5", li.Amount.String())
	assert.Equal(t, res.Item.LocalID, li.LocalID)

	res.Rollback()
	li, _ = s.Get("2")
	assert.Equal(t, "4.5", li.Amount.String(), "rollback restores the previous row")
}

func TestLineItemStore_UpdateUnknownRow(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(nil).get}
	s := loadedStore(t, "sales-order", backend)

	_, err := s.Update(context.Background(), "404", &Draft{ItemID: "7", UOMID: "3", Quantity: "1", Rate: "1"})
	assert.ErrorIs(t, err, apperrors.ErrLineItemNotFound)
}

func TestLineItemStore_OptimisticRemoveRestoresPosition(t *testing.T) {
	backend := &mockBackend{
		GetFunc: masterData(routes{"GET sales-order-parcel": `[
			{"SalesOrderParcelID": 1, "SalesOrderID": 42, "ItemID": 7, "UOMID": 3, "ItemQuantity": 1, "Rate": 1},
			{"SalesOrderParcelID": 2, "SalesOrderID": 42, "ItemID": 7, "UOMID": 3, "ItemQuantity": 2, "Rate": 1},
			{"SalesOrderParcelID": 3, "SalesOrderID": 42, "ItemID": 7, "UOMID": 3, "ItemQuantity": 3, "Rate": 1}
		]`}).get,
	}
	removedDuringCall := false
	var s *LineItemStore
	backend.DeleteFunc = func(ctx context.Context, resource string) (json.RawMessage, error) {
		_, present := s.Get("2")
		removedDuringCall = !present
		return nil, &apperrors.RequestError{Method: "DELETE", Resource: resource, Status: 500, Retryable: true}
	}
	s = loadedStore(t, "sales-order", backend)
	require.True(t, s.cfg.OptimisticDelete)

	_, err := s.Remove(context.Background(), "2")
	var pErr *apperrors.PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "delete", pErr.Op)
	assert.True(t, removedDuringCall)

	items := s.List()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{items[0].LineItemID, items[1].LineItemID, items[2].LineItemID})
	assert.Equal(t, 2, items[1].SrNo)
}

func TestLineItemStore_PessimisticRemove(t *testing.T) {
	pub := &mockPublisher{}
	backend := &mockBackend{GetFunc: masterData(routes{"GET purchase-order-parcel": `[
		{"PurchaseOrderParcelID": 1, "PurchaseOrderID": 42, "ItemID": 7, "UOMID": 3, "ItemQuantity": 1, "SupplierRate": 2},
		{"PurchaseOrderParcelID": 2, "PurchaseOrderID": 42, "ItemID": 8, "UOMID": 3, "ItemQuantity": 1, "SupplierRate": 3}
	]`}).get}
	var s *LineItemStore
	stillPresent := false
	backend.DeleteFunc = func(ctx context.Context, resource string) (json.RawMessage, error) {
		_, stillPresent = s.Get("1")
		return json.RawMessage("null"), nil
	}
	s = loadedStore(t, "purchase-order", backend, WithStoreEvents(pub))
	assert.Equal(t, "2", s.List()[0].Rate.String())

	res, err := s.Remove(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, stillPresent, "row stays until the backend confirms")
	require.Len(t, s.List(), 1)
	assert.Equal(t, 1, s.List()[0].SrNo)
	assert.Len(t, pub.OfType(event.TypeLineItemRemoved), 1)

	res.Rollback()
	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].LineItemID)
}

func TestLineItemStore_RowBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &mockBackend{
		GetFunc: masterData(routes{"GET sales-order-parcel": salesOrderParcels}).get,
		PutFunc: func(ctx context.Context, resource string, body any) (json.RawMessage, error) {
			close(started)
			<-release
			return json.RawMessage("null"), nil
		},
	}
	s := loadedStore(t, "sales-order", backend)

	done := make(chan error, 1)
	go func() {
		_, err := s.Update(context.Background(), "1", &Draft{ItemID: "7", UOMID: "3", Quantity: "1", Rate: "1"})
		done <- err
	}()
	<-started

	assert.True(t, s.IsBusy("1"))
	_, err := s.Remove(context.Background(), "1")
	assert.ErrorIs(t, err, apperrors.ErrRowBusy)

	_, err = s.Remove(context.Background(), "2")
	assert.NoError(t, err, "other rows are not blocked")

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.IsBusy("1"))
}

func TestLineItemStore_NotLoaded(t *testing.T) {
	s := newTestStore(t, "sales-order", &mockBackend{})

	_, err := s.Add(context.Background(), &Draft{})
	assert.ErrorIs(t, err, apperrors.ErrNotLoaded)
	_, err = s.Remove(context.Background(), "1")
	assert.ErrorIs(t, err, apperrors.ErrNotLoaded)
}

func TestLineItemStore_ResetIgnoresLateCompletion(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &mockBackend{
		GetFunc: masterData(nil).get,
		PostFunc: func(ctx context.Context, resource string, body any) (json.RawMessage, error) {
			close(started)
			<-release
			return json.RawMessage(`{"SalesOrderParcelID": 5}`), nil
		},
	}
	s := loadedStore(t, "sales-order", backend)

	done := make(chan error, 1)
	go func() {
		_, err := s.Add(context.Background(), &Draft{ItemID: "7", UOMID: "3", Quantity: "1", Rate: "1"})
		done <- err
	}()
	<-started
	s.Reset()
	close(release)
	require.NoError(t, <-done)

	assert.Empty(t, s.List())
	assert.False(t, s.Loaded())
}

func TestLineItemStore_Totals(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(routes{"GET sales-order-parcel": `[
		{"SalesOrderParcelID": 1, "SalesOrderID": 42, "ItemID": 7, "UOMID": 3, "ItemQuantity": 2, "Rate": 5, "SalesRate": 6},
		{"SalesOrderParcelID": 2, "SalesOrderID": 42, "ItemID": 8, "UOMID": 3, "ItemQuantity": 1, "Rate": 0.5, "SalesRate": 1, "SalesAmount": 1}
	]`}).get}
	s := loadedStore(t, "sales-order", backend)

	totals := s.Totals()
	assert.Equal(t, "3", totals.Quantity.String())
	assert.Equal(t, "10.5", totals.Amount.String())
	assert.Equal(t, "13", totals.SalesAmount.String())
}

func TestLineItemStore_DiscardDrafts(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(nil).get}
	s := loadedStore(t, "sales-order", backend)

	_, err := s.Add(context.Background(), &Draft{ItemID: "7"})
	require.Error(t, err)
	require.Len(t, s.OpenDrafts(), 1)

	s.DiscardDrafts()
	assert.Empty(t, s.OpenDrafts())
}

func TestLineItemStore_NoCrossDocumentLeakage(t *testing.T) {
	backend := &mockBackend{GetFunc: masterData(routes{"GET sales-order-parcel": salesOrderParcels}).get}
	s := newTestStore(t, "sales-order", backend)

	items, err := s.Load(context.Background(), "43")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "3", items[0].LineItemID)

	items, err = s.Load(context.Background(), "44")
	require.NoError(t, err)
	assert.Empty(t, items)
	for _, li := range s.List() {
		assert.Equal(t, entity.CanonicalID("44"), li.DocumentID)
	}
}

// parcelServer stores posted parcel rows and serves them back, assigning
// ids the way the backend's auto-increment does
type parcelServer struct {
	idField string
	echoID  bool
	// arrivals, when set, is marked once per POST and waited on before the
	// response is sent
	arrivals *sync.WaitGroup

	mu     sync.Mutex
	nextID int
	rows   []map[string]any
}

func (p *parcelServer) get(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
	if resource != "sales-order-parcel" {
		return masterData(nil).get(ctx, resource, q)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rows) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(p.rows)
}

func (p *parcelServer) post(ctx context.Context, resource string, body any) (json.RawMessage, error) {
	var row map[string]any
	dec := json.NewDecoder(strings.NewReader(bodyJSON(body)))
	dec.UseNumber()
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.nextID++
	id := 100 + p.nextID
	row[p.idField] = id
	p.rows = append(p.rows, row)
	p.mu.Unlock()

	if p.arrivals != nil {
		p.arrivals.Done()
		p.arrivals.Wait()
	}
	if p.echoID {
		return json.RawMessage(fmt.Sprintf(`{%q: %d}`, p.idField, id)), nil
	}
	return json.RawMessage(`{"affectedRows": 1}`), nil
}

func (p *parcelServer) backend() *mockBackend {
	return &mockBackend{GetFunc: p.get, PostFunc: p.post}
}

func TestLineItemStore_AddThenReloadRoundTrip(t *testing.T) {
	for _, echoID := range []bool{true, false} {
		t.Run(fmt.Sprintf("echo_id=%v", echoID), func(t *testing.T) {
			server := &parcelServer{idField: "SalesOrderParcelID", echoID: echoID}
			s := loadedStore(t, "sales-order", server.backend())

			d := &Draft{ItemID: "7", UOMID: "3", Quantity: "2.5", Rate: "4.2"}
			res, err := s.Add(context.Background(), d)
			require.NoError(t, err)
			assert.Equal(t, "101", res.Item.LineItemID)

			items, err := s.Load(context.Background(), "42")
			require.NoError(t, err)
			require.Len(t, items, 1)
			got := items[0]
			assert.Equal(t, "101", got.LineItemID)
			assert.Equal(t, d.LocalID, got.LocalID)
			assert.Equal(t, "7", got.ItemID)
			assert.Equal(t, "3", got.UOMID)
			assert.True(t, got.Quantity.Equal(res.Item.Quantity), "quantity %s", got.Quantity)
			assert.True(t, got.Rate.Equal(res.Item.Rate), "rate %s", got.Rate)
			assert.True(t, got.Amount.Equal(res.Item.Amount), "amount %s", got.Amount)
			assert.Equal(t, "10.5", got.Amount.String())
			assert.Equal(t, "Cotton Yarn", got.ItemName)
		})
	}
}

func TestLineItemStore_ConcurrentIdenticalAddsAdoptDistinctRows(t *testing.T) {
	var arrivals sync.WaitGroup
	arrivals.Add(2)
	server := &parcelServer{idField: "SalesOrderParcelID", arrivals: &arrivals}
	s := loadedStore(t, "sales-order", server.backend())

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Add(context.Background(), &Draft{ItemID: "7", UOMID: "3", Quantity: "1", Rate: "2"})
			if assert.NoError(t, err) {
				ids[i] = res.Item.LineItemID
			}
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"101", "102"}, ids)
	items := s.List()
	require.Len(t, items, 2)
	assert.NotEqual(t, items[0].LineItemID, items[1].LineItemID)
	assert.NotEqual(t, items[0].LocalID, items[1].LocalID)
}

func TestLineItemStore_ResetDuringLoadDiscardsResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &mockBackend{GetFunc: func(ctx context.Context, resource string, q url.Values) (json.RawMessage, error) {
		if resource == "sales-order-parcel" {
			close(started)
			<-release
		}
		return masterData(routes{"GET sales-order-parcel": salesOrderParcels}).get(ctx, resource, q)
	}}
	s := newTestStore(t, "sales-order", backend)

	done := make(chan error, 1)
	go func() {
		_, err := s.Load(context.Background(), "42")
		done <- err
	}()
	<-started
	s.Reset()
	close(release)

	assert.ErrorIs(t, <-done, apperrors.ErrSuperseded)
	assert.False(t, s.Loaded())
	assert.Empty(t, s.List())
}
