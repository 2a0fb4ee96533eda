package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/domain/doctype"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/domain/event"
)

// LineItemStore holds the line items of one document and keeps them
// consistent with the backend. Local state only changes after the backend
// confirms, except for optimistic deletes which are reverted on failure.
type LineItemStore struct {
	cfg       doctype.Config
	backend   port.Backend
	resolver  *ReferenceResolver
	validator *DraftValidator
	logger    Logger
	events    port.EventPublisher

	mu         sync.Mutex
	loaded     bool
	generation uint64
	loadSeq    uint64
	parentID   string
	documentID string
	items      []entity.LineItem
	busy       map[string]bool
	drafts     []*Draft
	// adopting holds server ids picked by reconcile whose Add has not
	// finished yet, keyed by server id with the adopting local id as value
	adopting map[string]string
}

// StoreOption configures a LineItemStore
type StoreOption func(*LineItemStore)

// WithStoreEvents publishes line-item events
func WithStoreEvents(pub port.EventPublisher) StoreOption {
	return func(s *LineItemStore) {
		s.events = pub
	}
}

// WithDraftValidator replaces the default validator
func WithDraftValidator(v *DraftValidator) StoreOption {
	return func(s *LineItemStore) {
		s.validator = v
	}
}

// NewLineItemStore creates an empty store for one document type
func NewLineItemStore(cfg doctype.Config, backend port.Backend, resolver *ReferenceResolver, logger Logger, opts ...StoreOption) *LineItemStore {
	s := &LineItemStore{
		cfg:      cfg,
		backend:  backend,
		resolver: resolver,
		logger:   loggerOrNop(logger),
		busy:     make(map[string]bool),
		adopting: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = NewDraftValidator()
	}
	if s.resolver == nil {
		s.resolver = NewReferenceResolver(backend, logger)
	}
	return s
}

// Scope attributes published events to documentID when the line items are
// keyed by another record, e.g. a quotation's RFQ.
func (s *LineItemStore) Scope(documentID string) {
	s.mu.Lock()
	s.documentID = entity.CanonicalID(documentID)
	s.mu.Unlock()
}

// Load fetches the line items whose parent is parentID. Rows that belong to
// another parent are dropped and reported; duplicate server ids keep the
// first row.
func (s *LineItemStore) Load(ctx context.Context, parentID string) ([]entity.LineItem, error) {
	parentID = entity.CanonicalID(parentID)
	if parentID == "" {
		return nil, errors.New("load line items: empty parent id")
	}

	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	s.resolver.LoadAll(ctx, entity.KindItem, entity.KindUOM, entity.KindCertification)

	rows, err := s.fetchRows(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("load line items: %w", err)
	}

	s.mu.Lock()
	known := make(map[string]string, len(s.items))
	if s.parentID == parentID {
		for _, li := range s.items {
			if li.Persisted() {
				known[li.LineItemID] = li.LocalID
			}
		}
	}
	s.mu.Unlock()

	items := make([]entity.LineItem, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		li := s.lineFromRow(row, parentID)
		if !li.Persisted() {
			s.logger.Warn("Dropping line item without server id", "document_type", s.cfg.Name, "parent_id", parentID)
			continue
		}
		if seen[li.LineItemID] {
			s.logger.Warn("Dropping duplicate line item", "line_item_id", li.LineItemID, "parent_id", parentID)
			continue
		}
		seen[li.LineItemID] = true

		if local, ok := known[li.LineItemID]; ok {
			li.LocalID = local
		} else {
			li.LocalID = uuid.NewString()
		}
		items = append(items, li)
	}

	s.mu.Lock()
	if s.loadSeq != seq {
		s.mu.Unlock()
		return nil, fmt.Errorf("load line items of %s: %w", parentID, apperrors.ErrSuperseded)
	}
	if s.parentID != parentID {
		s.drafts = nil
	}
	s.parentID = parentID
	s.items = items
	s.loaded = true
	s.generation++
	out := s.listLocked()
	s.mu.Unlock()

	s.logger.Debug("Line items loaded", "document_type", s.cfg.Name, "parent_id", parentID, "count", len(out))
	return out, nil
}

// fetchRows reads the parent's rows and filters out those of other parents
func (s *LineItemStore) fetchRows(ctx context.Context, parentID string) ([]entity.Row, error) {
	raw, err := s.backend.Get(ctx, s.cfg.ParcelEndpoint, url.Values{s.cfg.ParentIDParam: {parentID}})
	if err != nil {
		return nil, err
	}
	rows, err := entity.DecodeRows(raw)
	if err != nil {
		return nil, err
	}

	kept := rows[:0]
	var lineIDs, parents []string
	for _, row := range rows {
		actual := row.ID(s.cfg.ParentIDField)
		if actual == parentID {
			kept = append(kept, row)
			continue
		}
		lineIDs = append(lineIDs, row.ID(s.cfg.LineIDField, "ID", "id"))
		parents = append(parents, actual)
	}
	if len(lineIDs) > 0 {
		s.logger.Warn("Dropping line items of another document",
			"document_type", s.cfg.Name, "expected_parent", parentID, "actual_parents", parents, "line_item_ids", lineIDs)
		s.publish(event.TypeParentMismatch, parentID, map[string]interface{}{
			"expected_parent": parentID,
			"rows":            len(lineIDs),
			"line_item_ids":   lineIDs,
			"actual_parents":  parents,
		})
	}
	return kept, nil
}

func (s *LineItemStore) lineFromRow(row entity.Row, parentID string) entity.LineItem {
	li := entity.LineItem{
		LineItemID:      row.ID(s.cfg.LineIDField, "ID", "id"),
		DocumentID:      parentID,
		ItemID:          row.ID(entity.FieldItemID),
		UOMID:           row.ID(entity.FieldUOMID),
		CertificationID: row.ID(entity.FieldCertificationID),
	}
	li.Quantity, _ = row.Decimal(entity.FieldQuantity, "Quantity")
	li.Rate, _ = row.Decimal(s.cfg.RateField, "Rate")
	if amount, ok := row.Decimal(entity.FieldAmount); ok {
		li.Amount = amount
	} else {
		li.Amount = entity.LineAmount(li.Quantity, li.Rate)
	}
	if s.cfg.HasSalesRate {
		if salesRate, ok := row.Decimal(entity.FieldSalesRate); ok {
			li.SalesRate = decimal.NewNullDecimal(salesRate)
			salesAmount, ok := row.Decimal(entity.FieldSalesAmount)
			if !ok {
				salesAmount = entity.LineAmount(li.Quantity, salesRate)
			}
			li.SalesAmount = decimal.NewNullDecimal(salesAmount)
		}
	}

	li.ItemName = s.label(entity.KindItem, li.ItemID, row.String("ItemName"))
	li.UOMName = s.label(entity.KindUOM, li.UOMID, row.String("UOM", "UOMName"))
	if li.CertificationID != "" {
		li.CertificationName = s.label(entity.KindCertification, li.CertificationID, row.String("CertificationName"))
	}
	return li
}

// label prefers the lookup table and falls back to a name embedded in the row
func (s *LineItemStore) label(kind entity.ReferenceKind, id, embedded string) string {
	if embedded != "" && !s.resolver.Available(kind) {
		return embedded
	}
	return s.resolver.Resolve(kind, id)
}

func (s *LineItemStore) itemFromDraft(d *Draft, parentID, lineID string) entity.LineItem {
	li := entity.LineItem{
		LocalID:         d.LocalID,
		LineItemID:      lineID,
		DocumentID:      parentID,
		ItemID:          entity.CanonicalID(d.ItemID),
		UOMID:           entity.CanonicalID(d.UOMID),
		CertificationID: entity.CanonicalID(d.CertificationID),
	}
	li.Quantity, _ = parseDecimal(d.Quantity)
	li.Rate, _ = parseDecimal(d.Rate)
	li.Amount, _ = parseDecimal(d.Amount)
	if s.cfg.HasSalesRate {
		if salesRate, err := parseDecimal(d.SalesRate); err == nil {
			li.SalesRate = decimal.NewNullDecimal(salesRate)
			salesAmount, err := parseDecimal(d.SalesAmount)
			if err != nil {
				salesAmount = entity.LineAmount(li.Quantity, salesRate)
			}
			li.SalesAmount = decimal.NewNullDecimal(salesAmount)
		}
	}

	li.ItemName = s.resolver.Resolve(entity.KindItem, li.ItemID)
	li.UOMName = s.resolver.Resolve(entity.KindUOM, li.UOMID)
	if li.CertificationID != "" {
		li.CertificationName = s.resolver.Resolve(entity.KindCertification, li.CertificationID)
	}
	return li
}

// payload is the backend body of a create or update; ids and numbers are
// sent as JSON numbers.
func (s *LineItemStore) payload(d *Draft, parentID string) map[string]any {
	body := map[string]any{
		s.cfg.ParentIDField:  wireID(parentID),
		entity.FieldItemID:   wireID(d.ItemID),
		entity.FieldUOMID:    wireID(d.UOMID),
		entity.FieldQuantity: wireNumber(d.Quantity),
		s.cfg.RateField:      wireNumber(d.Rate),
		entity.FieldAmount:   wireNumber(d.Amount),
	}
	if strings.TrimSpace(d.CertificationID) != "" {
		body[entity.FieldCertificationID] = wireID(d.CertificationID)
	}
	if s.cfg.HasSalesRate && strings.TrimSpace(d.SalesRate) != "" {
		body[entity.FieldSalesRate] = wireNumber(d.SalesRate)
		body[entity.FieldSalesAmount] = wireNumber(d.SalesAmount)
	}
	return body
}

func wireID(id string) any {
	id = entity.CanonicalID(id)
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}

func wireNumber(s string) any {
	d, err := parseDecimal(s)
	if err != nil {
		return nil
	}
	return json.Number(d.String())
}

// Add validates and creates a line item. The draft's Amount is recalculated
// in place; on failure the draft stays open with its errors.
func (s *LineItemStore) Add(ctx context.Context, d *Draft) (*MutationResult, error) {
	parentID, err := s.currentParent()
	if err != nil {
		return nil, err
	}
	if d.LocalID == "" {
		d.LocalID = uuid.NewString()
	}
	if err := s.validator.Validate(d, s.cfg); err != nil {
		s.keepDraft(d)
		return nil, err
	}

	body := s.payload(d, parentID)
	item := s.itemFromDraft(d, parentID, "")
	defer s.releaseAdoption(d.LocalID)

	res, err := s.run(ctx, mutation{
		op:   "create",
		key:  d.LocalID,
		item: item,
		persist: func(ctx context.Context) (entity.LineItem, error) {
			raw, err := s.backend.Post(ctx, s.cfg.ParcelEndpoint, body)
			if err != nil {
				return item, err
			}
			id := s.createdID(raw)
			if id == "" {
				if id, err = s.reconcile(ctx, parentID, item); err != nil {
					return item, err
				}
			}
			created := item
			created.LineItemID = id
			return created, nil
		},
		apply: func(li entity.LineItem) func() {
			if i := s.serverIndexLocked(li.LineItemID); i >= 0 {
				prev := s.items[i]
				s.items[i] = li
				return func() { s.replaceLocked(li.LocalID, prev) }
			}
			s.items = append(s.items, li)
			return func() { s.removeLocked(li.LocalID) }
		},
	})
	if err != nil {
		s.failDraft(d, err)
		return res, err
	}

	d.Errors = nil
	s.dropDraft(d.LocalID)
	s.logger.Info("Line item created", "document_type", s.cfg.Name, "parent_id", parentID, "line_item_id", res.Item.LineItemID)
	s.publish(event.TypeLineItemAdded, parentID, linePayload(res.Item))
	return res, nil
}

// Update validates and saves changes to the row addressed by key (local or server id)
func (s *LineItemStore) Update(ctx context.Context, key string, d *Draft) (*MutationResult, error) {
	current, parentID, err := s.find(key)
	if err != nil {
		return nil, err
	}
	d.LocalID = current.LocalID
	if err := s.validator.Validate(d, s.cfg); err != nil {
		s.keepDraft(d)
		return nil, err
	}

	body := s.payload(d, parentID)
	body[s.cfg.LineIDField] = wireID(current.LineItemID)
	item := s.itemFromDraft(d, parentID, current.LineItemID)

	res, err := s.run(ctx, mutation{
		op:   "update",
		key:  current.LocalID,
		item: item,
		persist: func(ctx context.Context) (entity.LineItem, error) {
			if _, err := s.backend.Put(ctx, s.cfg.ParcelPath(current.LineItemID), body); err != nil {
				return item, err
			}
			return item, nil
		},
		apply: func(li entity.LineItem) func() {
			i := s.indexLocked(li.LocalID)
			if i < 0 {
				return func() {}
			}
			prev := s.items[i]
			s.items[i] = li
			return func() { s.replaceLocked(li.LocalID, prev) }
		},
	})
	if err != nil {
		s.failDraft(d, err)
		return res, err
	}

	d.Errors = nil
	s.dropDraft(d.LocalID)
	s.logger.Info("Line item updated", "document_type", s.cfg.Name, "line_item_id", current.LineItemID)
	s.publish(event.TypeLineItemUpdated, parentID, linePayload(res.Item))
	return res, nil
}

// Remove deletes the row addressed by key. With optimistic deletes the row
// disappears immediately and is restored at its position if the call fails.
func (s *LineItemStore) Remove(ctx context.Context, key string) (*MutationResult, error) {
	current, parentID, err := s.find(key)
	if err != nil {
		return nil, err
	}

	res, err := s.run(ctx, mutation{
		op:         "delete",
		key:        current.LocalID,
		item:       current,
		optimistic: s.cfg.OptimisticDelete,
		persist: func(ctx context.Context) (entity.LineItem, error) {
			if _, err := s.backend.Delete(ctx, s.cfg.ParcelPath(current.LineItemID)); err != nil {
				return current, err
			}
			return current, nil
		},
		apply: func(li entity.LineItem) func() {
			i := s.indexLocked(li.LocalID)
			if i < 0 {
				return func() {}
			}
			s.items = slices.Delete(s.items, i, i+1)
			return func() {
				if s.indexLocked(li.LocalID) >= 0 {
					return
				}
				s.items = slices.Insert(s.items, min(i, len(s.items)), li)
			}
		},
	})
	if err != nil {
		s.logger.Error("Line item delete failed", "document_type", s.cfg.Name, "line_item_id", current.LineItemID, "error", err)
		return res, err
	}

	s.dropDraft(current.LocalID)
	s.logger.Info("Line item deleted", "document_type", s.cfg.Name, "line_item_id", current.LineItemID)
	s.publish(event.TypeLineItemRemoved, parentID, linePayload(res.Item))
	return res, nil
}

func (s *LineItemStore) createdID(raw json.RawMessage) string {
	row, err := entity.DecodeRow(raw)
	if err != nil {
		return ""
	}
	return row.ID(s.cfg.LineIDField, "ID", "id")
}

// reconcile finds the server id of a row the backend created without
// echoing it: the newest unclaimed row, preferring rows matching the draft.
func (s *LineItemStore) reconcile(ctx context.Context, parentID string, item entity.LineItem) (string, error) {
	rows, err := s.fetchRows(ctx, parentID)
	if err != nil {
		return "", fmt.Errorf("re-read line items: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	claimed := make(map[string]bool, len(s.items)+len(s.adopting))
	for _, li := range s.items {
		claimed[li.LineItemID] = true
	}
	for id := range s.adopting {
		claimed[id] = true
	}

	best, bestMatch := "", false
	for _, row := range rows {
		id := row.ID(s.cfg.LineIDField, "ID", "id")
		if id == "" || claimed[id] {
			continue
		}
		candidate := s.lineFromRow(row, parentID)
		match := candidate.ItemID == item.ItemID &&
			candidate.UOMID == item.UOMID &&
			candidate.Quantity.Equal(item.Quantity) &&
			candidate.Rate.Equal(item.Rate)

		switch {
		case best == "",
			match && !bestMatch,
			match == bestMatch && newerID(id, best):
			best, bestMatch = id, match
		}
	}
	if best == "" {
		return "", errors.New("created line item not found on re-read")
	}
	if !bestMatch {
		s.logger.Warn("Adopting unmatched line item id", "parent_id", parentID, "line_item_id", best)
	}
	s.adopting[best] = item.LocalID
	return best, nil
}

func (s *LineItemStore) releaseAdoption(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, owner := range s.adopting {
		if owner == localID {
			delete(s.adopting, id)
		}
	}
}

func newerID(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		return ai > bi
	}
	return a > b
}

func (s *LineItemStore) currentParent() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return "", apperrors.ErrNotLoaded
	}
	return s.parentID, nil
}

func (s *LineItemStore) find(key string) (entity.LineItem, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return entity.LineItem{}, "", apperrors.ErrNotLoaded
	}
	i := s.indexLocked(key)
	if i < 0 {
		return entity.LineItem{}, "", fmt.Errorf("%w: %s", apperrors.ErrLineItemNotFound, key)
	}
	return s.items[i], s.parentID, nil
}

func (s *LineItemStore) indexLocked(key string) int {
	key = entity.CanonicalID(key)
	return slices.IndexFunc(s.items, func(li entity.LineItem) bool { return li.Matches(key) })
}

func (s *LineItemStore) serverIndexLocked(lineID string) int {
	if lineID == "" {
		return -1
	}
	return slices.IndexFunc(s.items, func(li entity.LineItem) bool { return li.LineItemID == lineID })
}

func (s *LineItemStore) replaceLocked(localID string, li entity.LineItem) {
	if i := s.indexLocked(localID); i >= 0 {
		s.items[i] = li
	}
}

func (s *LineItemStore) removeLocked(localID string) {
	if i := s.indexLocked(localID); i >= 0 {
		s.items = slices.Delete(s.items, i, i+1)
	}
}

func (s *LineItemStore) keepDraft(d *Draft) {
	cp := d.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, open := range s.drafts {
		if open.LocalID == cp.LocalID {
			s.drafts[i] = cp
			return
		}
	}
	s.drafts = append(s.drafts, cp)
}

func (s *LineItemStore) failDraft(d *Draft, err error) {
	if errors.Is(err, apperrors.ErrRowBusy) || errors.Is(err, apperrors.ErrNotLoaded) {
		return
	}
	d.Errors = map[string]string{DraftFieldForm: formMessage(err)}
	s.keepDraft(d)
}

func formMessage(err error) string {
	var reqErr *apperrors.RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		return reqErr.Message
	}
	return err.Error()
}

func (s *LineItemStore) dropDraft(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = slices.DeleteFunc(s.drafts, func(d *Draft) bool { return d.LocalID == localID })
}

// List returns a copy of the rows with SrNo numbered by position
func (s *LineItemStore) List() []entity.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

func (s *LineItemStore) listLocked() []entity.LineItem {
	out := make([]entity.LineItem, len(s.items))
	for i, li := range s.items {
		li.SrNo = i + 1
		out[i] = li
	}
	return out
}

// Get returns the row addressed by a local or server id
func (s *LineItemStore) Get(key string) (entity.LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(key)
	if i < 0 {
		return entity.LineItem{}, false
	}
	li := s.items[i]
	li.SrNo = i + 1
	return li, true
}

// IsBusy reports whether the row has a mutating request in flight
func (s *LineItemStore) IsBusy(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(key); i >= 0 {
		return s.busy[s.items[i].LocalID]
	}
	return s.busy[key]
}

// OpenDrafts returns the drafts that failed validation or persistence
func (s *LineItemStore) OpenDrafts() []Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Draft, len(s.drafts))
	for i, d := range s.drafts {
		out[i] = *d.clone()
	}
	return out
}

// DiscardDrafts drops every open draft
func (s *LineItemStore) DiscardDrafts() {
	s.mu.Lock()
	s.drafts = nil
	s.mu.Unlock()
}

// Totals sums quantities and amounts over the rows
func (s *LineItemStore) Totals() entity.LineTotals {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t entity.LineTotals
	for _, li := range s.items {
		t.Quantity = t.Quantity.Add(li.Quantity)
		t.Amount = t.Amount.Add(li.Amount)
		if li.SalesAmount.Valid {
			t.SalesAmount = t.SalesAmount.Add(li.SalesAmount.Decimal)
		}
	}
	return t
}

// Loaded reports whether Load has completed for some parent
func (s *LineItemStore) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Reset forgets the rows and drafts. In-flight mutations complete against
// the backend but no longer touch local state.
func (s *LineItemStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.drafts = nil
	s.parentID = ""
	s.loaded = false
	s.generation++
	s.loadSeq++
}

func (s *LineItemStore) publish(t event.Type, parentID string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.mu.Lock()
	owner := s.documentID
	s.mu.Unlock()
	if owner == "" {
		owner = parentID
	}
	s.events.DispatchAsync(context.Background(), event.NewEvent(t, s.cfg.Name, owner, payload))
}

func linePayload(li entity.LineItem) map[string]interface{} {
	return map[string]interface{}{
		"line_item_id": li.LineItemID,
		"local_id":     li.LocalID,
		"item_id":      li.ItemID,
		"quantity":     li.Quantity.String(),
		"amount":       li.Amount.StringFixed(2),
	}
}
