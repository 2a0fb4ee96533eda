package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Document is a trade document header (RFQ, quotation, order or invoice)
type Document struct {
	ID                   string              `json:"id"`
	Type                 string              `json:"type"`
	Series               string              `json:"series"`
	Status               DocumentStatus      `json:"status"`
	PostingDate          *time.Time          `json:"posting_date,omitempty"`
	DeliveryDate         *time.Time          `json:"delivery_date,omitempty"`
	RequiredByDate       *time.Time          `json:"required_by_date,omitempty"`
	CompanyID            string              `json:"company_id,omitempty"`
	CustomerID           string              `json:"customer_id,omitempty"`
	SupplierID           string              `json:"supplier_id,omitempty"`
	CurrencyID           string              `json:"currency_id,omitempty"`
	ServiceTypeID        string              `json:"service_type_id,omitempty"`
	CollectionAddressID  string              `json:"collection_address_id,omitempty"`
	DestinationAddressID string              `json:"destination_address_id,omitempty"`
	Total                decimal.NullDecimal `json:"total"`
	Raw                  Row                 `json:"-"`
}

// DocumentFromRow maps a header row. idField is the document type's primary key column.
func DocumentFromRow(docType, idField string, r Row) Document {
	doc := Document{
		ID:                   r.ID(idField, "ID", "id"),
		Type:                 docType,
		Series:               r.String(FieldSeries),
		Status:               ParseDocumentStatus(r.String(FieldStatus)),
		PostingDate:          r.Time("PostingDate"),
		DeliveryDate:         r.Time("DeliveryDate"),
		RequiredByDate:       r.Time("RequiredByDate"),
		CompanyID:            r.ID("CompanyID"),
		CustomerID:           r.ID("CustomerID"),
		SupplierID:           r.ID("SupplierID"),
		CurrencyID:           r.ID("CurrencyID"),
		ServiceTypeID:        r.ID("ServiceTypeID"),
		CollectionAddressID:  r.ID("CollectionAddressID", "OriginAddressID"),
		DestinationAddressID: r.ID("DestinationAddressID"),
		Raw:                  r,
	}
	if total, ok := r.Decimal("Total", "TotalAmount", "GrandTotal"); ok {
		doc.Total = decimal.NullDecimal{Decimal: total, Valid: true}
	}
	return doc
}

// Link returns a linked document id stored in a header field, e.g. the RFQ a
// quotation was raised against.
func (d Document) Link(field string) string {
	if d.Raw == nil || field == "" {
		return ""
	}
	return d.Raw.ID(field)
}
