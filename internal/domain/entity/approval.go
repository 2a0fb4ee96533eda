package entity

import "time"

// ApprovalRecord is one approver's decision on one document
type ApprovalRecord struct {
	DocumentID string     `json:"document_id"`
	ApproverID string     `json:"approver_id"`
	Approved   bool       `json:"approved"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

// ApprovalSnapshot is what the tracker currently believes about a document
type ApprovalSnapshot struct {
	DocumentID string           `json:"document_id"`
	ApproverID string           `json:"approver_id"`
	Aggregate  DocumentStatus   `json:"aggregate_status"`
	MyDecision DocumentStatus   `json:"my_decision"`
	Records    []ApprovalRecord `json:"records"`
	Loaded     bool             `json:"loaded"`
	ReadOnly   bool             `json:"read_only"`
	InFlight   bool             `json:"in_flight"`
}
