package doctype

import (
	"fmt"
	"sort"

	"github.com/garyjia/logistics-console/internal/apperrors"
)

// Registry maps document type names to their configuration
type Registry struct {
	types map[string]Config
}

// NewRegistry validates and registers the given configurations
func NewRegistry(configs ...Config) (*Registry, error) {
	r := &Registry{types: make(map[string]Config, len(configs))}
	for _, c := range configs {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns the eight trade document types with their conventional backend layout
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		panic(fmt.Sprintf("default document types: %v", err))
	}
	return r
}

// Defaults returns the built-in document type configurations
func Defaults() []Config {
	salesRFQ := standard("sales-rfq", "Sales RFQ", "SalesRFQ")
	salesRFQ.RequiredFields = []string{RequiredCertification}
	salesRFQ.Policy = PolicyDesignatedApprover
	salesRFQ.DisapproveEndpoint = "sales-rfq/disapprove"

	purchaseRFQ := standard("purchase-rfq", "Purchase RFQ", "PurchaseRFQ")
	purchaseRFQ.RequiredFields = []string{RequiredCertification}
	purchaseRFQ.Policy = PolicyDesignatedApprover
	purchaseRFQ.DisapproveEndpoint = "purchase-rfq/disapprove"

	salesQuotation := standard("sales-quotation", "Sales Quotation", "SalesQuotation")
	salesQuotation.RateField = "SupplierRate"
	salesQuotation.HasSalesRate = true
	salesQuotation.RequiredFields = []string{RequiredSalesRate}

	// Supplier quotations are keyed by the purchase RFQ they answer.
	purchaseQuotation := standard("purchase-quotation", "Purchase Quotation", "PurchaseQuotation")
	purchaseQuotation.RateField = "SupplierRate"
	purchaseQuotation.ParentIDField = "PurchaseRFQID"
	purchaseQuotation.ParentIDParam = "purchaseRFQID"
	purchaseQuotation.LineParentField = "PurchaseRFQID"
	purchaseQuotation.OptimisticDelete = false

	salesOrder := standard("sales-order", "Sales Order", "SalesOrder")
	salesOrder.HasSalesRate = true
	salesOrder.ApprovalTerminal = true
	salesOrder.DisapproveEndpoint = "sales-order/disapprove"

	purchaseOrder := standard("purchase-order", "Purchase Order", "PurchaseOrder")
	purchaseOrder.RateField = "SupplierRate"
	purchaseOrder.ApprovalTerminal = true
	purchaseOrder.OptimisticDelete = false

	salesInvoice := standard("sales-invoice", "Sales Invoice", "SalesInvoice")
	salesInvoice.ApprovalTerminal = true
	salesInvoice.OptimisticDelete = false

	purchaseInvoice := standard("purchase-invoice", "Purchase Invoice", "PurchaseInvoice")
	purchaseInvoice.RateField = "SupplierRate"
	purchaseInvoice.ApprovalTerminal = true
	purchaseInvoice.Policy = PolicyAnyApprover
	purchaseInvoice.OptimisticDelete = false

	return []Config{
		salesRFQ, purchaseRFQ,
		salesQuotation, purchaseQuotation,
		salesOrder, purchaseOrder,
		salesInvoice, purchaseInvoice,
	}
}

// Register adds or replaces a configuration
func (r *Registry) Register(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.types[c.Name] = c
	return nil
}

// Override replaces registered types by name and adds new ones. Fields left
// empty in an override keep the registered value.
func (r *Registry) Override(overrides []Config) error {
	for _, o := range overrides {
		base, ok := r.types[o.Name]
		if !ok {
			if err := r.Register(o); err != nil {
				return err
			}
			continue
		}
		if err := r.Register(merge(base, o)); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the configuration for name
func (r *Registry) Get(name string) (Config, error) {
	c, ok := r.types[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", apperrors.ErrUnknownDocumentType, name)
	}
	return c, nil
}

// Names returns the registered type names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered configuration sorted by name
func (r *Registry) All() []Config {
	out := make([]Config, 0, len(r.types))
	for _, name := range r.Names() {
		out = append(out, r.types[name])
	}
	return out
}

// merge overlays the non-zero string and slice fields of o onto base. Boolean
// switches always come from o when o sets a policy, since a zero bool cannot
// be told apart from an explicit false.
func merge(base, o Config) Config {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&base.Title, o.Title)
	pick(&base.HeaderEndpoint, o.HeaderEndpoint)
	pick(&base.HeaderIDField, o.HeaderIDField)
	pick(&base.ParcelEndpoint, o.ParcelEndpoint)
	pick(&base.ParentIDParam, o.ParentIDParam)
	pick(&base.ParentIDField, o.ParentIDField)
	pick(&base.LineIDField, o.LineIDField)
	pick(&base.LineParentField, o.LineParentField)
	pick(&base.RateField, o.RateField)
	pick(&base.ApprovalEndpoint, o.ApprovalEndpoint)
	pick(&base.ApprovalParam, o.ApprovalParam)
	pick(&base.ApproveEndpoint, o.ApproveEndpoint)
	pick(&base.DisapproveEndpoint, o.DisapproveEndpoint)
	pick(&base.DesignatedApproverID, o.DesignatedApproverID)
	if o.RequiredFields != nil {
		base.RequiredFields = o.RequiredFields
	}
	if o.Policy != "" {
		base.Policy = o.Policy
		base.ApprovalTerminal = o.ApprovalTerminal
		base.OptimisticDelete = o.OptimisticDelete
		base.HasSalesRate = o.HasSalesRate
	}
	return base
}
