package models

import "time"

// Audit actions.
const (
	ActionProfileCreated         = "KYC_PROFILE_CREATED"
	ActionProfileUpdated         = "KYC_PROFILE_UPDATED"
	ActionDocumentUploaded       = "DOCUMENT_UPLOADED"
	ActionDocumentVerified       = "DOCUMENT_VERIFIED"
	ActionDocumentCheckFailed    = "DOCUMENT_VERIFICATION_FAILED"
	ActionDocumentManualVerified = "DOCUMENT_VERIFIED_MANUALLY"
	ActionDocumentDeleted        = "DOCUMENT_DELETED"
	ActionPhoneVerified          = "PHONE_VERIFIED"
	ActionEmailVerified          = "EMAIL_VERIFIED"
	ActionSubmittedForReview     = "KYC_SUBMITTED_FOR_REVIEW"
	ActionApproved               = "KYC_APPROVED"
	ActionRejected               = "KYC_REJECTED"
	ActionResubmitted            = "KYC_RESUBMITTED"
)

// KYCAuditLogEntry is immutable once written.
type KYCAuditLogEntry struct {
	ID        int64     `json:"id"`
	UserID    int       `json:"user_id"`
	Action    string    `json:"action"`
	ChangedBy int       `json:"changed_by"`
	Changes   string    `json:"changes"` // JSON
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditMeta — request origin of an audited change.
type AuditMeta struct {
	IPAddress string
	UserAgent string
}
