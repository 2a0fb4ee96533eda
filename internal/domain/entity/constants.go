package entity

import "strings"

// DocumentStatus is the aggregate status shown in list and detail views
type DocumentStatus string

// Document status constants
const (
	StatusPending  DocumentStatus = "Pending"
	StatusApproved DocumentStatus = "Approved"
	StatusRejected DocumentStatus = "Rejected"
)

// ParseDocumentStatus normalizes a backend status string. Empty input is
// Pending; unrecognized values are kept verbatim so they render as-is.
func ParseDocumentStatus(s string) DocumentStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return StatusPending
	case "approved":
		return StatusApproved
	case "rejected", "disapproved":
		return StatusRejected
	default:
		return DocumentStatus(strings.TrimSpace(s))
	}
}

// String returns the string representation of the status
func (s DocumentStatus) String() string {
	return string(s)
}

// Common backend field names shared by every document type
const (
	FieldItemID          = "ItemID"
	FieldUOMID           = "UOMID"
	FieldCertificationID = "CertificationID"
	FieldQuantity        = "ItemQuantity"
	FieldAmount          = "Amount"
	FieldSalesRate       = "SalesRate"
	FieldSalesAmount     = "SalesAmount"
	FieldApproverID      = "ApproverID"
	FieldApprovedYN      = "ApprovedYN"
	FieldStatus          = "Status"
	FieldSeries          = "Series"
)
