package doctype

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/garyjia/logistics-console/pkg/utils"
)

// ApprovalPolicy decides how the aggregate status of a document is derived
type ApprovalPolicy string

const (
	// PolicyDocumentStatus reads the header's own Status field; approver
	// records only drive the current user's indicator.
	PolicyDocumentStatus ApprovalPolicy = "document_status"
	// PolicyDesignatedApprover derives the status from one designated approver's record.
	PolicyDesignatedApprover ApprovalPolicy = "designated_approver"
	// PolicyAnyApprover approves the document as soon as any approver has approved.
	PolicyAnyApprover ApprovalPolicy = "any_approver"
)

// IsValid reports whether p is a known policy
func (p ApprovalPolicy) IsValid() bool {
	switch p {
	case PolicyDocumentStatus, PolicyDesignatedApprover, PolicyAnyApprover:
		return true
	}
	return false
}

// Draft fields that can be made mandatory per document type
const (
	RequiredCertification = "certificationId"
	RequiredSalesRate     = "salesRate"
)

// Config is everything the generic engine needs to know about one document type
type Config struct {
	Name  string `mapstructure:"name" json:"name"`
	Title string `mapstructure:"title" json:"title"`

	HeaderEndpoint string `mapstructure:"header_endpoint" json:"header_endpoint"`
	HeaderIDField  string `mapstructure:"header_id_field" json:"header_id_field"`

	ParcelEndpoint string `mapstructure:"parcel_endpoint" json:"parcel_endpoint"`
	ParentIDParam  string `mapstructure:"parent_id_param" json:"parent_id_param"`
	ParentIDField  string `mapstructure:"parent_id_field" json:"parent_id_field"`
	LineIDField    string `mapstructure:"line_id_field" json:"line_id_field"`
	// LineParentField names a header field whose value keys the line items
	// (e.g. a quotation's parcels live under its RFQ). Empty means the
	// document's own id, and the line load does not wait for the header.
	LineParentField string `mapstructure:"line_parent_field" json:"line_parent_field,omitempty"`

	RateField      string   `mapstructure:"rate_field" json:"rate_field"`
	HasSalesRate   bool     `mapstructure:"has_sales_rate" json:"has_sales_rate"`
	RequiredFields []string `mapstructure:"required_fields" json:"required_fields"`

	ApprovalEndpoint string `mapstructure:"approval_endpoint" json:"approval_endpoint"`
	// ApprovalParam is the query parameter keying approval records by the
	// document's own id.
	ApprovalParam        string         `mapstructure:"approval_param" json:"approval_param"`
	ApproveEndpoint      string         `mapstructure:"approve_endpoint" json:"approve_endpoint"`
	DisapproveEndpoint   string         `mapstructure:"disapprove_endpoint" json:"disapprove_endpoint,omitempty"`
	ApprovalTerminal     bool           `mapstructure:"approval_terminal" json:"approval_terminal"`
	Policy               ApprovalPolicy `mapstructure:"policy" json:"policy"`
	DesignatedApproverID string         `mapstructure:"designated_approver_id" json:"designated_approver_id,omitempty"`

	OptimisticDelete bool `mapstructure:"optimistic_delete" json:"optimistic_delete"`
}

// Requires reports whether a draft field is mandatory for this type
func (c Config) Requires(field string) bool {
	for _, f := range c.RequiredFields {
		if strings.EqualFold(f, field) {
			return true
		}
	}
	return false
}

// LinesDependOnHeader reports whether the line-item load must wait for the header
func (c Config) LinesDependOnHeader() bool {
	return c.LineParentField != ""
}

// HeaderPath is the resource path of one document header
func (c Config) HeaderPath(id string) string {
	return c.HeaderEndpoint + "/" + id
}

// ParcelPath is the resource path of one persisted line item
func (c Config) ParcelPath(lineID string) string {
	return c.ParcelEndpoint + "/" + lineID
}

// Validate checks the configuration is complete
func (c Config) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	for label, path := range map[string]string{
		"header_endpoint":   c.HeaderEndpoint,
		"parcel_endpoint":   c.ParcelEndpoint,
		"approval_endpoint": c.ApprovalEndpoint,
		"approve_endpoint":  c.ApproveEndpoint,
	} {
		if err := utils.ValidateResourcePath(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
	}
	if c.DisapproveEndpoint != "" {
		if err := utils.ValidateResourcePath(c.DisapproveEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("disapprove_endpoint: %w", err))
		}
	}
	for label, field := range map[string]string{
		"header_id_field": c.HeaderIDField,
		"parent_id_field": c.ParentIDField,
		"line_id_field":   c.LineIDField,
		"rate_field":      c.RateField,
	} {
		if err := utils.ValidateFieldName(field); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
	}
	if c.ParentIDParam == "" {
		errs = append(errs, errors.New("parent_id_param is required"))
	}
	if c.ApprovalParam == "" {
		errs = append(errs, errors.New("approval_param is required"))
	}
	if !c.Policy.IsValid() {
		errs = append(errs, fmt.Errorf("unknown approval policy %q", c.Policy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("document type %q: %w", c.Name, errors.Join(errs...))
	}
	return nil
}

// standard builds the conventional configuration for a document type named
// like "sales-rfq" whose key column is like "SalesRFQID".
func standard(name, title, entity string) Config {
	idField := entity + "ID"
	return Config{
		Name:             name,
		Title:            title,
		HeaderEndpoint:   name,
		HeaderIDField:    idField,
		ParcelEndpoint:   name + "-parcel",
		ParentIDParam:    lowerFirst(idField),
		ParentIDField:    idField,
		LineIDField:      entity + "ParcelID",
		RateField:        "Rate",
		ApprovalEndpoint: name + "/approve",
		ApprovalParam:    lowerFirst(idField),
		ApproveEndpoint:  name + "/approve",
		Policy:           PolicyDocumentStatus,
		OptimisticDelete: true,
	}
}

func lowerFirst(s string) string {
	for i, r := range s {
		if unicode.IsLower(r) {
			if i <= 1 {
				return strings.ToLower(s[:1]) + s[1:]
			}
			return strings.ToLower(s[:i-1]) + s[i-1:]
		}
	}
	return strings.ToLower(s)
}
