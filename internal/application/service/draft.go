package service

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/garyjia/logistics-console/internal/apperrors"
	"github.com/garyjia/logistics-console/internal/domain/doctype"
	"github.com/garyjia/logistics-console/internal/domain/entity"
)

// Draft field keys, shared with the UI's error display
const (
	DraftFieldItem          = "itemId"
	DraftFieldUOM           = "uomId"
	DraftFieldCertification = doctype.RequiredCertification
	DraftFieldQuantity      = "quantity"
	DraftFieldRate          = "rate"
	DraftFieldAmount        = "amount"
	DraftFieldSalesRate     = doctype.RequiredSalesRate
	// DraftFieldForm carries server-side failures that belong to no single field
	DraftFieldForm = "form"
)

// Draft is a line item being created or edited. Values are kept as typed by
// the user so that invalid input survives a failed save.
type Draft struct {
	LocalID         string            `json:"localId,omitempty"`
	ItemID          string            `json:"itemId"`
	UOMID           string            `json:"uomId"`
	CertificationID string            `json:"certificationId,omitempty"`
	Quantity        string            `json:"quantity"`
	Rate            string            `json:"rate"`
	Amount          string            `json:"amount"`
	SalesRate       string            `json:"salesRate,omitempty"`
	SalesAmount     string            `json:"salesAmount,omitempty"`
	Errors          map[string]string `json:"errors,omitempty"`
}

// DraftFromLineItem starts an edit of a persisted row
func DraftFromLineItem(li entity.LineItem) Draft {
	d := Draft{
		LocalID:         li.LocalID,
		ItemID:          li.ItemID,
		UOMID:           li.UOMID,
		CertificationID: li.CertificationID,
		Quantity:        li.Quantity.String(),
		Rate:            li.Rate.String(),
		Amount:          li.Amount.StringFixed(2),
	}
	if li.SalesRate.Valid {
		d.SalesRate = li.SalesRate.Decimal.String()
	}
	if li.SalesAmount.Valid {
		d.SalesAmount = li.SalesAmount.Decimal.StringFixed(2)
	}
	return d
}

// Recalculate sets Amount (and SalesAmount) to quantity times rate, rounded
// to two places. Fields whose inputs do not parse are left untouched.
func (d *Draft) Recalculate() {
	qty, err := parseDecimal(d.Quantity)
	if err != nil {
		return
	}
	if rate, err := parseDecimal(d.Rate); err == nil {
		d.Amount = entity.LineAmount(qty, rate).StringFixed(2)
	}
	if salesRate, err := parseDecimal(d.SalesRate); err == nil {
		d.SalesAmount = entity.LineAmount(qty, salesRate).StringFixed(2)
	}
}

func (d *Draft) clone() *Draft {
	cp := *d
	cp.Errors = nil
	if len(d.Errors) > 0 {
		cp.Errors = make(map[string]string, len(d.Errors))
		for k, v := range d.Errors {
			cp.Errors[k] = v
		}
	}
	return &cp
}

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// DraftValidator checks a draft against the rules of its document type
type DraftValidator struct {
	validate *validator.Validate
}

// NewDraftValidator creates a DraftValidator
func NewDraftValidator() *DraftValidator {
	return &DraftValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate recalculates the amount, then checks every rule. Failures are
// recorded on d.Errors and returned as *apperrors.ValidationError.
func (v *DraftValidator) Validate(d *Draft, cfg doctype.Config) error {
	d.Recalculate()

	fields := make(map[string]string)

	if v.blank(d.ItemID) {
		fields[DraftFieldItem] = "Item is required"
	}
	if v.blank(d.UOMID) {
		fields[DraftFieldUOM] = "UOM is required"
	}
	if cfg.Requires(doctype.RequiredCertification) && v.blank(d.CertificationID) {
		fields[DraftFieldCertification] = "Certification is required"
	}
	if !v.numberAtLeast(d.Quantity, false) {
		fields[DraftFieldQuantity] = "Quantity must be a positive number"
	}
	if !v.numberAtLeast(d.Rate, true) {
		fields[DraftFieldRate] = "Rate must be a non-negative number"
	}
	if !v.numberAtLeast(d.Amount, true) {
		fields[DraftFieldAmount] = "Amount must be a non-negative number"
	}
	if cfg.HasSalesRate || cfg.Requires(doctype.RequiredSalesRate) {
		switch {
		case v.blank(d.SalesRate):
			if cfg.Requires(doctype.RequiredSalesRate) {
				fields[DraftFieldSalesRate] = "Sales Rate is required"
			}
		case !v.numberAtLeast(d.SalesRate, true):
			fields[DraftFieldSalesRate] = "Sales Rate must be a non-negative number"
		}
	}

	if len(fields) == 0 {
		d.Errors = nil
		return nil
	}
	d.Errors = fields
	return &apperrors.ValidationError{Fields: fields}
}

func (v *DraftValidator) blank(s string) bool {
	return v.validate.Var(strings.TrimSpace(s), "required") != nil
}

// numberAtLeast reports whether s is numeric and > 0, or >= 0 when zeroOK
func (v *DraftValidator) numberAtLeast(s string, zeroOK bool) bool {
	s = strings.TrimSpace(s)
	if v.validate.Var(s, "required,numeric") != nil {
		return false
	}
	n, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	if zeroOK {
		return !n.IsNegative()
	}
	return n.IsPositive()
}
