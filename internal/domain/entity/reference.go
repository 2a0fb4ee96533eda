package entity

// ReferenceKind is a lookup category resolved from id to display label
type ReferenceKind string

const (
	KindItem          ReferenceKind = "item"
	KindUOM           ReferenceKind = "uom"
	KindCertification ReferenceKind = "certification"
	KindAddress       ReferenceKind = "address"
	KindCurrency      ReferenceKind = "currency"
	KindSupplier      ReferenceKind = "supplier"
	KindCustomer      ReferenceKind = "customer"
	KindServiceType   ReferenceKind = "serviceType"
)

// ReferenceEntry is an {id, label} pair from a lookup table
type ReferenceEntry struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}
