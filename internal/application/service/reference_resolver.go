package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/domain/entity"
	"github.com/garyjia/logistics-console/internal/domain/event"
)

// ReferenceKindSpec describes where a lookup table lives and how its rows are read
type ReferenceKindSpec struct {
	Display     string
	Endpoint    string
	IDFields    []string
	LabelFields []string
}

// DefaultReferenceKinds returns the lookup tables used by the document forms
func DefaultReferenceKinds() map[entity.ReferenceKind]ReferenceKindSpec {
	return map[entity.ReferenceKind]ReferenceKindSpec{
		entity.KindItem: {
			Display:     "Item",
			Endpoint:    "items",
			IDFields:    []string{"ItemID", "ID", "id"},
			LabelFields: []string{"ItemName", "Name", "ItemCode", "Description"},
		},
		entity.KindUOM: {
			Display:     "UOM",
			Endpoint:    "uoms",
			IDFields:    []string{"UOMID", "ID", "id"},
			LabelFields: []string{"UOM", "UOMName", "Name", "Description"},
		},
		entity.KindCertification: {
			Display:     "Certification",
			Endpoint:    "certifications",
			IDFields:    []string{"CertificationID", "ID", "id"},
			LabelFields: []string{"CertificationName", "Certification", "Name", "Description"},
		},
		entity.KindAddress: {
			Display:     "Address",
			Endpoint:    "addresses",
			IDFields:    []string{"AddressID", "ID", "id"},
			LabelFields: []string{"AddressTitle", "AddressName", "AddressLine1", "Name"},
		},
		entity.KindCurrency: {
			Display:     "Currency",
			Endpoint:    "currencies",
			IDFields:    []string{"CurrencyID", "ID", "id"},
			LabelFields: []string{"CurrencyName", "CurrencyCode", "Name"},
		},
		entity.KindSupplier: {
			Display:     "Supplier",
			Endpoint:    "suppliers",
			IDFields:    []string{"SupplierID", "ID", "id"},
			LabelFields: []string{"SupplierName", "CompanyName", "Name"},
		},
		entity.KindCustomer: {
			Display:     "Customer",
			Endpoint:    "customers",
			IDFields:    []string{"CustomerID", "ID", "id"},
			LabelFields: []string{"CustomerName", "CompanyName", "Name"},
		},
		entity.KindServiceType: {
			Display:     "Service Type",
			Endpoint:    "service-types",
			IDFields:    []string{"ServiceTypeID", "ID", "id"},
			LabelFields: []string{"ServiceType", "ServiceTypeName", "Name"},
		},
	}
}

// ReferenceResolver loads lookup tables once per session and turns foreign
// key ids into display labels. It never fails a resolution: kinds that
// could not be loaded resolve to placeholders.
type ReferenceResolver struct {
	backend port.Backend
	kinds   map[entity.ReferenceKind]ReferenceKindSpec
	logger  Logger
	events  port.EventPublisher
	limit   int

	group singleflight.Group

	mu           sync.RWMutex
	tables       map[entity.ReferenceKind]*referenceTable
	documentType string
	documentID   string
}

type referenceTable struct {
	labels  map[string]string
	entries []entity.ReferenceEntry
	err     error
}

// ResolverOption configures a ReferenceResolver
type ResolverOption func(*ReferenceResolver)

// WithReferenceKinds replaces the kind table, e.g. to point a kind at another endpoint
func WithReferenceKinds(kinds map[entity.ReferenceKind]ReferenceKindSpec) ResolverOption {
	return func(r *ReferenceResolver) {
		r.kinds = kinds
	}
}

// WithResolverEvents publishes reference.unavailable events
func WithResolverEvents(pub port.EventPublisher) ResolverOption {
	return func(r *ReferenceResolver) {
		r.events = pub
	}
}

// WithLoadConcurrency bounds how many kinds LoadAll fetches at once
func WithLoadConcurrency(n int) ResolverOption {
	return func(r *ReferenceResolver) {
		if n > 0 {
			r.limit = n
		}
	}
}

// NewReferenceResolver creates a resolver with an empty cache
func NewReferenceResolver(backend port.Backend, logger Logger, opts ...ResolverOption) *ReferenceResolver {
	r := &ReferenceResolver{
		backend: backend,
		kinds:   DefaultReferenceKinds(),
		logger:  loggerOrNop(logger),
		limit:   4,
		tables:  make(map[entity.ReferenceKind]*referenceTable),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scope attributes published events to a document
func (r *ReferenceResolver) Scope(documentType, documentID string) {
	r.mu.Lock()
	r.documentType = documentType
	r.documentID = documentID
	r.mu.Unlock()
}

// Load returns the entries of kind, fetching them on first use.
// A failed or empty kind returns *apperrors.ReferenceUnavailableError and
// stays unavailable until invalidated.
func (r *ReferenceResolver) Load(ctx context.Context, kind entity.ReferenceKind) ([]entity.ReferenceEntry, error) {
	if entries, err, ok := r.cached(kind); ok {
		return entries, err
	}

	spec, known := r.kinds[kind]
	if !known {
		return nil, &apperrors.ReferenceUnavailableError{Kind: string(kind), Err: errors.New("unknown reference kind")}
	}

	// The shared fetch outlives any single caller; the backend bounds it
	// with its own request timeout.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(string(kind), func() (interface{}, error) {
		if entries, err, ok := r.cached(kind); ok {
			return entries, err
		}
		return r.fetch(shared, kind, spec)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyEntries(res.Val.([]entity.ReferenceEntry)), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("load %s: %w", kind, ctx.Err())
	}
}

func (r *ReferenceResolver) cached(kind entity.ReferenceKind) ([]entity.ReferenceEntry, error, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[kind]
	if !ok {
		return nil, nil, false
	}
	if t.err != nil {
		return nil, t.err, true
	}
	return copyEntries(t.entries), nil, true
}

func (r *ReferenceResolver) fetch(ctx context.Context, kind entity.ReferenceKind, spec ReferenceKindSpec) ([]entity.ReferenceEntry, error) {
	raw, err := r.backend.Get(ctx, spec.Endpoint, nil)
	if err != nil {
		return nil, r.markUnavailable(kind, err)
	}

	rows, err := entity.DecodeRows(raw)
	if err != nil {
		return nil, r.markUnavailable(kind, err)
	}

	table := &referenceTable{labels: make(map[string]string, len(rows))}
	for _, row := range rows {
		id := row.ID(spec.IDFields...)
		if id == "" {
			continue
		}
		label := row.String(spec.LabelFields...)
		if label == "" {
			label = "Unknown " + spec.Display
		}
		if _, dup := table.labels[id]; !dup {
			table.entries = append(table.entries, entity.ReferenceEntry{ID: id, Label: label})
		}
		table.labels[id] = label
	}
	if len(table.labels) == 0 {
		return nil, r.markUnavailable(kind, errors.New("no usable rows"))
	}

	r.mu.Lock()
	r.tables[kind] = table
	r.mu.Unlock()

	r.logger.Debug("Reference table loaded", "kind", kind, "entries", len(table.entries))
	return copyEntries(table.entries), nil
}

func (r *ReferenceResolver) markUnavailable(kind entity.ReferenceKind, cause error) error {
	refErr := &apperrors.ReferenceUnavailableError{Kind: string(kind), Err: cause}

	r.mu.Lock()
	r.tables[kind] = &referenceTable{err: refErr}
	docType, docID := r.documentType, r.documentID
	r.mu.Unlock()

	r.logger.Warn("Reference table unavailable", "kind", kind, "error", cause)
	if r.events != nil {
		r.events.DispatchAsync(context.Background(), event.NewEvent(
			event.TypeReferenceUnavailable, docType, docID,
			map[string]interface{}{"kind": string(kind), "error": cause.Error()},
		))
	}
	return refErr
}

// LoadAll fetches kinds concurrently. Failures never abort the other kinds;
// they come back as warnings in the order the kinds were given.
func (r *ReferenceResolver) LoadAll(ctx context.Context, kinds ...entity.ReferenceKind) []error {
	results := make([]error, len(kinds))

	var g errgroup.Group
	g.SetLimit(r.limit)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			_, results[i] = r.Load(ctx, kind)
			return nil
		})
	}
	_ = g.Wait()

	var warnings []error
	for _, err := range results {
		if err != nil {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Resolve returns the label of id, or a placeholder when the kind or the
// id is unknown. It never returns an empty string.
func (r *ReferenceResolver) Resolve(kind entity.ReferenceKind, id string) string {
	display := string(kind)
	if spec, ok := r.kinds[kind]; ok {
		display = spec.Display
	}

	id = entity.CanonicalID(id)
	if id == "" {
		return "Unknown " + display
	}

	r.mu.RLock()
	t, ok := r.tables[kind]
	var label string
	if ok && t.err == nil {
		label = t.labels[id]
	}
	r.mu.RUnlock()

	if label != "" {
		return label
	}
	return display + " #" + id
}

// Entries returns the loaded entries of kind, or nil when it is not available
func (r *ReferenceResolver) Entries(kind entity.ReferenceKind) []entity.ReferenceEntry {
	entries, err, ok := r.cached(kind)
	if !ok || err != nil {
		return nil
	}
	return entries
}

// Available reports whether kind has been loaded successfully
func (r *ReferenceResolver) Available(kind entity.ReferenceKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[kind]
	return ok && t.err == nil
}

// Warnings returns the errors of every kind currently marked unavailable
func (r *ReferenceResolver) Warnings() []error {
	r.mu.RLock()
	kinds := make([]string, 0, len(r.tables))
	for kind, t := range r.tables {
		if t.err != nil {
			kinds = append(kinds, string(kind))
		}
	}
	sort.Strings(kinds)

	warnings := make([]error, 0, len(kinds))
	for _, kind := range kinds {
		warnings = append(warnings, r.tables[entity.ReferenceKind(kind)].err)
	}
	r.mu.RUnlock()
	return warnings
}

// Invalidate drops the cached tables of kinds, or of every kind when none are given
func (r *ReferenceResolver) Invalidate(kinds ...entity.ReferenceKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(kinds) == 0 {
		r.tables = make(map[entity.ReferenceKind]*referenceTable)
		return
	}
	for _, kind := range kinds {
		delete(r.tables, kind)
	}
}

// InvalidateUnavailable drops only the kinds that failed to load
func (r *ReferenceResolver) InvalidateUnavailable() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for kind, t := range r.tables {
		if t.err != nil {
			delete(r.tables, kind)
		}
	}
}

func copyEntries(in []entity.ReferenceEntry) []entity.ReferenceEntry {
	out := make([]entity.ReferenceEntry, len(in))
	copy(out, in)
	return out
}
