package models

import "time"

type KYCStatus string

const (
	KYCIncomplete    KYCStatus = "incomplete"
	KYCPendingReview KYCStatus = "pending_review"
	KYCVerified      KYCStatus = "verified"
	KYCRejected      KYCStatus = "rejected"
)

// KYCProfile — one row per user. Version is bumped on every write and
// checked on update (optimistic locking).
type KYCProfile struct {
	UserID      int        `json:"user_id"`
	FullName    string     `json:"full_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	NationalID  string     `json:"national_id,omitempty"`
	Address     string     `json:"address,omitempty"`
	City        string     `json:"city,omitempty"`
	PostalCode  string     `json:"postal_code,omitempty"`
	Country     string     `json:"country"`

	PhoneVerified bool `json:"phone_verified"`
	EmailVerified bool `json:"email_verified"`

	// customer
	PreferredPaymentMethod string `json:"preferred_payment_method,omitempty"`

	// detailer
	YearsOfExperience *int   `json:"years_of_experience,omitempty"`
	Certifications    string `json:"certifications,omitempty"`
	InsuranceNumber   string `json:"insurance_number,omitempty"`
	EmergencyContact  string `json:"emergency_contact,omitempty"`
	EmergencyPhone    string `json:"emergency_phone,omitempty"`

	// owner
	BusinessName               string `json:"business_name,omitempty"`
	BusinessRegistrationNumber string `json:"business_registration_number,omitempty"`
	TaxIdentificationNumber    string `json:"tax_identification_number,omitempty"`
	NumberOfEmployees          *int   `json:"number_of_employees,omitempty"`
	BusinessAddress            string `json:"business_address,omitempty"`
	BankName                   string `json:"bank_name,omitempty"`
	BankAccountNumber          string `json:"bank_account_number,omitempty"`
	BankAccountName            string `json:"bank_account_name,omitempty"`

	KYCStatus       KYCStatus  `json:"kyc_status"`
	KYCSubmittedAt  *time.Time `json:"kyc_submitted_at,omitempty"`
	KYCReviewedAt   *time.Time `json:"kyc_reviewed_at,omitempty"`
	KYCReviewedBy   *int       `json:"kyc_reviewed_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileInput — partial profile write. Nil means "not provided".
type ProfileInput struct {
	FullName    *string    `json:"full_name"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	NationalID  *string    `json:"national_id"`
	Address     *string    `json:"address"`
	City        *string    `json:"city"`
	PostalCode  *string    `json:"postal_code"`
	Country     *string    `json:"country"`

	PreferredPaymentMethod *string `json:"preferred_payment_method"`

	YearsOfExperience *int    `json:"years_of_experience"`
	Certifications    *string `json:"certifications"`
	InsuranceNumber   *string `json:"insurance_number"`
	EmergencyContact  *string `json:"emergency_contact"`
	EmergencyPhone    *string `json:"emergency_phone"`

	BusinessName               *string `json:"business_name"`
	BusinessRegistrationNumber *string `json:"business_registration_number"`
	TaxIdentificationNumber    *string `json:"tax_identification_number"`
	NumberOfEmployees          *int    `json:"number_of_employees"`
	BusinessAddress            *string `json:"business_address"`
	BankName                   *string `json:"bank_name"`
	BankAccountNumber          *string `json:"bank_account_number"`
	BankAccountName            *string `json:"bank_account_name"`
}

// KYCStatusReport — aggregated view for GET /kyc/status.
type KYCStatusReport struct {
	UserID        int            `json:"user_id"`
	Role          string         `json:"role"`
	KYCStatus     KYCStatus      `json:"kyc_status"`
	PhoneVerified bool           `json:"phone_verified"`
	EmailVerified bool           `json:"email_verified"`
	Required      []DocumentType `json:"required_documents"`
	Verified      []DocumentType `json:"verified_documents"`
	Missing       []DocumentType `json:"missing_documents"`
	SubmittedAt   *time.Time     `json:"kyc_submitted_at,omitempty"`
	ReviewedAt    *time.Time     `json:"kyc_reviewed_at,omitempty"`
	Reason        string         `json:"rejection_reason,omitempty"`
}
