package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/domain/doctype"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/pkg/utils"
)

// LoadState is the lifecycle of a document form
type LoadState string

const (
	StateIdle    LoadState = "idle"
	StateLoading LoadState = "loading"
	StateReady   LoadState = "ready"
	StateFailed  LoadState = "failed"
)

// Load stages reported by apperrors.LoadError
const (
	StageIdentity = "identity"
	StageHeader   = "header"
	StageLines    = "lines"
	StageApproval = "approval"
)

// headerReferenceKinds are resolved for the header view
var headerReferenceKinds = []entity.ReferenceKind{
	entity.KindAddress,
	entity.KindCurrency,
	entity.KindSupplier,
	entity.KindCustomer,
	entity.KindServiceType,
}

const missingValue = "-"

// HeaderView is the document header with every foreign key resolved and
// every missing value shown as "-"
type HeaderView struct {
	DocumentType       string `json:"documentType"`
	Title              string `json:"title"`
	ID                 string `json:"id"`
	Series             string `json:"series"`
	Status             string `json:"status"`
	PostingDate        string `json:"postingDate"`
	DeliveryDate       string `json:"deliveryDate"`
	RequiredByDate     string `json:"requiredByDate"`
	Company            string `json:"company"`
	Customer           string `json:"customer"`
	Supplier           string `json:"supplier"`
	Currency           string `json:"currency"`
	ServiceType        string `json:"serviceType"`
	CollectionAddress  string `json:"collectionAddress"`
	DestinationAddress string `json:"destinationAddress"`
	Total              string `json:"total"`
}

// FormSnapshot is everything the document form renders
type FormSnapshot struct {
	DocumentType string                  `json:"documentType"`
	DocumentID   string                  `json:"documentId"`
	State        LoadState               `json:"state"`
	FailedStage  string                  `json:"failedStage,omitempty"`
	Error        string                  `json:"error,omitempty"`
	CanRetry     bool                    `json:"canRetry"`
	Header       HeaderView              `json:"header"`
	Lines        []entity.LineItem       `json:"lines"`
	Drafts       []Draft                 `json:"drafts"`
	Totals       entity.LineTotals       `json:"totals"`
	Approval     entity.ApprovalSnapshot `json:"approval"`
	Status       StatusChip              `json:"status"`
	Warnings     []string                `json:"warnings"`
}

// DocumentFormController orchestrates one open document: header, lookups,
// line items and approvals
type DocumentFormController struct {
	cfg      doctype.Config
	backend  port.Backend
	identity port.IdentityProvider
	logger   Logger

	resolver *ReferenceResolver
	store    *LineItemStore
	tracker  *ApprovalTracker
	status   *DocumentStatusView

	mu         sync.Mutex
	state      LoadState
	documentID string
	header     *entity.Document
	loadErr    error
	// loadSeq is bumped by every Load and Close; a load only commits while
	// it still holds the latest value
	loadSeq uint64
}

type formOptions struct {
	events          port.EventPublisher
	resolverOptions []ResolverOption
	validator       *DraftValidator
}

// FormOption configures a DocumentFormController
type FormOption func(*formOptions)

// WithFormEvents publishes the events of every component of the form
func WithFormEvents(pub port.EventPublisher) FormOption {
	return func(o *formOptions) {
		o.events = pub
	}
}

// WithFormResolverOptions passes options to the form's ReferenceResolver
func WithFormResolverOptions(opts ...ResolverOption) FormOption {
	return func(o *formOptions) {
		o.resolverOptions = append(o.resolverOptions, opts...)
	}
}

// WithFormValidator shares a DraftValidator between forms
func WithFormValidator(v *DraftValidator) FormOption {
	return func(o *formOptions) {
		o.validator = v
	}
}

// NewDocumentFormController wires a resolver, store, tracker and status view for one document type
func NewDocumentFormController(cfg doctype.Config, backend port.Backend, identity port.IdentityProvider, logger Logger, opts ...FormOption) *DocumentFormController {
	var o formOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger = loggerOrNop(logger)

	resolverOpts := o.resolverOptions
	storeOpts := []StoreOption{}
	var trackerOpts []TrackerOption
	if o.events != nil {
		resolverOpts = append(resolverOpts, WithResolverEvents(o.events))
		storeOpts = append(storeOpts, WithStoreEvents(o.events))
		trackerOpts = append(trackerOpts, WithTrackerEvents(o.events))
	}
	if o.validator != nil {
		storeOpts = append(storeOpts, WithDraftValidator(o.validator))
	}

	c := &DocumentFormController{
		cfg:      cfg,
		backend:  backend,
		identity: identity,
		logger:   logger,
		state:    StateIdle,
	}
	c.resolver = NewReferenceResolver(backend, logger, resolverOpts...)
	c.store = NewLineItemStore(cfg, backend, c.resolver, logger, storeOpts...)
	trackerOpts = append(trackerOpts, WithTrackerHeaderSource(c.refreshHeader))
	c.tracker = NewApprovalTracker(cfg, backend, logger, trackerOpts...)
	c.status = NewDocumentStatusView(c.tracker)
	return c
}

// Load opens documentID. The user identity is checked before any backend
// call. Line items and approvals load alongside the header unless the line
// items are keyed by a header field.
func (c *DocumentFormController) Load(ctx context.Context, documentID string) error {
	documentID = entity.CanonicalID(documentID)

	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.state = StateLoading
	c.loadErr = nil
	if documentID != "" {
		c.documentID = documentID
	}
	c.mu.Unlock()

	if documentID == "" {
		return c.fail(seq, &apperrors.LoadError{Stage: StageHeader, Err: apperrors.ErrDocumentNotFound})
	}

	user, err := c.identity.Current(ctx)
	if err == nil && user == nil {
		err = apperrors.ErrMissingIdentity
	}
	if err != nil {
		return c.fail(seq, &apperrors.LoadError{Stage: StageIdentity, Err: err})
	}

	c.resolver.Scope(c.cfg.Name, documentID)
	c.store.Scope(documentID)

	var header entity.Document
	headerReady := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := c.fetchHeader(gctx, documentID)
		if err != nil {
			return &apperrors.LoadError{Stage: StageHeader, Err: err}
		}
		header = doc
		if !c.current(seq) {
			return apperrors.ErrSuperseded
		}
		c.tracker.SetHeader(doc)
		close(headerReady)

		c.resolver.LoadAll(gctx, headerReferenceKinds...)
		return nil
	})
	g.Go(func() error {
		parentID := documentID
		if c.cfg.LinesDependOnHeader() {
			select {
			case <-headerReady:
			case <-gctx.Done():
				return gctx.Err()
			}
			parentID = header.Link(c.cfg.LineParentField)
			if parentID == "" {
				return &apperrors.LoadError{Stage: StageLines, Err: fmt.Errorf("header has no %s", c.cfg.LineParentField)}
			}
		}
		if !c.current(seq) {
			return apperrors.ErrSuperseded
		}
		if _, err := c.store.Load(gctx, parentID); err != nil {
			return &apperrors.LoadError{Stage: StageLines, Err: err}
		}
		return nil
	})
	g.Go(func() error {
		if !c.current(seq) {
			return apperrors.ErrSuperseded
		}
		if _, err := c.tracker.Load(gctx, documentID, user.UserID); err != nil {
			return &apperrors.LoadError{Stage: StageApproval, Err: err}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return c.fail(seq, err)
	}

	c.mu.Lock()
	if c.loadSeq != seq {
		c.mu.Unlock()
		return c.superseded(documentID)
	}
	c.tracker.SetHeader(header)
	c.header = &header
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Info("Document loaded", "document_type", c.cfg.Name, "document_id", documentID, "lines", len(c.store.List()))
	return nil
}

// fail records err as the outcome of load seq, unless a newer Load or a
// Close took over in the meantime
func (c *DocumentFormController) fail(seq uint64, err error) error {
	c.mu.Lock()
	if c.loadSeq != seq {
		docID := c.documentID
		c.mu.Unlock()
		if errors.Is(err, apperrors.ErrSuperseded) {
			return err
		}
		return c.superseded(docID)
	}
	c.state = StateFailed
	c.loadErr = err
	docID := c.documentID
	c.mu.Unlock()

	c.logger.Error("Document load failed", "document_type", c.cfg.Name, "document_id", docID, "error", err)
	return err
}

func (c *DocumentFormController) current(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadSeq == seq
}

func (c *DocumentFormController) superseded(documentID string) error {
	c.logger.Debug("Discarding superseded load", "document_type", c.cfg.Name, "document_id", documentID)
	return fmt.Errorf("load %s %s: %w", c.cfg.Name, documentID, apperrors.ErrSuperseded)
}

// refreshHeader re-reads the header of the open document and keeps it
func (c *DocumentFormController) refreshHeader(ctx context.Context, documentID string) (entity.Document, error) {
	doc, err := c.fetchHeader(ctx, documentID)
	if err != nil {
		return doc, err
	}
	c.mu.Lock()
	if c.documentID == documentID && c.header != nil {
		c.header = &doc
	}
	c.mu.Unlock()
	return doc, nil
}

func (c *DocumentFormController) fetchHeader(ctx context.Context, documentID string) (entity.Document, error) {
	raw, err := c.backend.Get(ctx, c.cfg.HeaderPath(documentID), nil)
	if err != nil {
		return entity.Document{}, err
	}
	row, err := entity.DecodeRow(raw)
	if errors.Is(err, entity.ErrNoRecord) {
		return entity.Document{}, fmt.Errorf("%w: %s %s", apperrors.ErrDocumentNotFound, c.cfg.Name, documentID)
	}
	if err != nil {
		return entity.Document{}, err
	}

	doc := entity.DocumentFromRow(c.cfg.Name, c.cfg.HeaderIDField, row)
	if doc.ID == "" {
		doc.ID = documentID
	}
	return doc, nil
}

// Retry re-runs the last load. Lookup kinds that failed are fetched again.
func (c *DocumentFormController) Retry(ctx context.Context) error {
	c.mu.Lock()
	documentID := c.documentID
	c.mu.Unlock()
	if documentID == "" {
		return apperrors.ErrNotLoaded
	}

	c.resolver.InvalidateUnavailable()
	return c.Load(ctx, documentID)
}

// CanRetry reports whether the last load failed
func (c *DocumentFormController) CanRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateFailed
}

// Save writes header changes and re-reads the header
func (c *DocumentFormController) Save(ctx context.Context, changes map[string]any) error {
	c.mu.Lock()
	state, documentID := c.state, c.documentID
	c.mu.Unlock()
	if state != StateReady {
		return apperrors.ErrNotLoaded
	}

	fields := make(map[string]string)
	for key := range changes {
		if err := utils.ValidateFieldName(key); err != nil {
			fields[key] = "Unknown field"
		}
	}
	if len(fields) > 0 {
		return &apperrors.ValidationError{Fields: fields}
	}

	body := make(map[string]any, len(changes)+1)
	for k, v := range changes {
		body[k] = v
	}
	body[c.cfg.HeaderIDField] = wireID(documentID)

	if _, err := c.backend.Put(ctx, c.cfg.HeaderPath(documentID), body); err != nil {
		c.logger.Error("Header save failed", "document_type", c.cfg.Name, "document_id", documentID, "error", err)
		return &apperrors.PersistenceError{Op: "save", Err: err}
	}

	doc, err := c.fetchHeader(ctx, documentID)
	if err != nil {
		return fmt.Errorf("re-read header: %w", err)
	}
	c.tracker.SetHeader(doc)
	c.resolver.LoadAll(ctx, headerReferenceKinds...)

	c.mu.Lock()
	if c.documentID == documentID {
		c.header = &doc
	}
	c.mu.Unlock()

	c.logger.Info("Header saved", "document_type", c.cfg.Name, "document_id", documentID, "fields", len(changes))
	return nil
}

// Cancel discards the open line-item drafts
func (c *DocumentFormController) Cancel() {
	c.store.DiscardDrafts()
}

// Close discards all state of the form
func (c *DocumentFormController) Close() {
	c.mu.Lock()
	c.loadSeq++
	c.state = StateIdle
	c.documentID = ""
	c.header = nil
	c.loadErr = nil
	c.mu.Unlock()

	c.store.Reset()
	c.tracker.Reset()
	c.resolver.Invalidate()
}

// View returns the header view, or placeholders when no header is loaded
func (c *DocumentFormController) View() HeaderView {
	c.mu.Lock()
	header := c.header
	c.mu.Unlock()

	v := HeaderView{
		DocumentType:       c.cfg.Name,
		Title:              c.cfg.Title,
		ID:                 missingValue,
		Series:             missingValue,
		Status:             missingValue,
		PostingDate:        missingValue,
		DeliveryDate:       missingValue,
		RequiredByDate:     missingValue,
		Company:            missingValue,
		Customer:           missingValue,
		Supplier:           missingValue,
		Currency:           missingValue,
		ServiceType:        missingValue,
		CollectionAddress:  missingValue,
		DestinationAddress: missingValue,
		Total:              missingValue,
	}
	if header == nil {
		return v
	}

	v.ID = orMissing(header.ID)
	v.Series = orMissing(header.Series)
	v.Status = orMissing(header.Status.String())
	v.PostingDate = formatDate(header.PostingDate)
	v.DeliveryDate = formatDate(header.DeliveryDate)
	v.RequiredByDate = formatDate(header.RequiredByDate)
	v.Company = orMissing(header.CompanyID)
	v.Customer = c.resolveOrMissing(entity.KindCustomer, header.CustomerID)
	v.Supplier = c.resolveOrMissing(entity.KindSupplier, header.SupplierID)
	v.Currency = c.resolveOrMissing(entity.KindCurrency, header.CurrencyID)
	v.ServiceType = c.resolveOrMissing(entity.KindServiceType, header.ServiceTypeID)
	v.CollectionAddress = c.resolveOrMissing(entity.KindAddress, header.CollectionAddressID)
	v.DestinationAddress = c.resolveOrMissing(entity.KindAddress, header.DestinationAddressID)
	if header.Total.Valid {
		v.Total = header.Total.Decimal.StringFixed(2)
	}
	return v
}

func (c *DocumentFormController) resolveOrMissing(kind entity.ReferenceKind, id string) string {
	if id == "" {
		return missingValue
	}
	return c.resolver.Resolve(kind, id)
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return missingValue
	}
	return t.Format("2006-01-02")
}

func orMissing(s string) string {
	if s == "" {
		return missingValue
	}
	return s
}

// Snapshot collects the state of every component for rendering
func (c *DocumentFormController) Snapshot() FormSnapshot {
	c.mu.Lock()
	state, documentID, loadErr := c.state, c.documentID, c.loadErr
	c.mu.Unlock()

	snap := FormSnapshot{
		DocumentType: c.cfg.Name,
		DocumentID:   documentID,
		State:        state,
		CanRetry:     state == StateFailed,
		Header:       c.View(),
		Lines:        c.store.List(),
		Drafts:       c.store.OpenDrafts(),
		Totals:       c.store.Totals(),
		Approval:     c.tracker.Snapshot(),
		Status:       c.status.Chip(),
		Warnings:     []string{},
	}
	if loadErr != nil {
		snap.Error = loadErr.Error()
		var le *apperrors.LoadError
		if errors.As(loadErr, &le) {
			snap.FailedStage = le.Stage
		}
	}
	for _, w := range c.resolver.Warnings() {
		snap.Warnings = append(snap.Warnings, w.Error())
	}
	return snap
}

// State returns the load state
func (c *DocumentFormController) State() LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error of the last failed load
func (c *DocumentFormController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Header returns the loaded header
func (c *DocumentFormController) Header() (entity.Document, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.header == nil {
		return entity.Document{}, false
	}
	return *c.header, true
}

// DocumentID returns the id of the open document
func (c *DocumentFormController) DocumentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.documentID
}

// Config returns the document type configuration
func (c *DocumentFormController) Config() doctype.Config { return c.cfg }

// Store returns the line-item store
func (c *DocumentFormController) Store() *LineItemStore { return c.store }

// Tracker returns the approval tracker
func (c *DocumentFormController) Tracker() *ApprovalTracker { return c.tracker }

// StatusView returns the status chip view
func (c *DocumentFormController) StatusView() *DocumentStatusView { return c.status }

// Resolver returns the reference resolver
func (c *DocumentFormController) Resolver() *ReferenceResolver { return c.resolver }
