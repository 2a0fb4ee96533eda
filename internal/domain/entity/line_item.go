package entity

import "github.com/shopspring/decimal"

// LineItem is one parcel row of a document
type LineItem struct {
	LocalID           string              `json:"local_id"`
	LineItemID        string              `json:"line_item_id,omitempty"`
	DocumentID        string              `json:"document_id"`
	SrNo              int                 `json:"sr_no"`
	ItemID            string              `json:"item_id"`
	ItemName          string              `json:"item_name"`
	UOMID             string              `json:"uom_id"`
	UOMName           string              `json:"uom_name"`
	CertificationID   string              `json:"certification_id,omitempty"`
	CertificationName string              `json:"certification_name,omitempty"`
	Quantity          decimal.Decimal     `json:"quantity"`
	Rate              decimal.Decimal     `json:"rate"`
	Amount            decimal.Decimal     `json:"amount"`
	SalesRate         decimal.NullDecimal `json:"sales_rate"`
	SalesAmount       decimal.NullDecimal `json:"sales_amount"`
}

// Persisted reports whether the server has assigned an id
func (li LineItem) Persisted() bool {
	return li.LineItemID != ""
}

// Matches reports whether key names this row by local or server id
func (li LineItem) Matches(key string) bool {
	if key == "" {
		return false
	}
	return li.LocalID == key || li.LineItemID == key
}

// LineAmount is round(quantity * rate, 2)
func LineAmount(quantity, rate decimal.Decimal) decimal.Decimal {
	return quantity.Mul(rate).Round(2)
}

// LineTotals sums the committed rows
type LineTotals struct {
	Quantity    decimal.Decimal `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	SalesAmount decimal.Decimal `json:"sales_amount"`
}
