package models

import "time"

type DocumentType string

const (
	DocNationalID      DocumentType = "national_id"
	DocPassport        DocumentType = "passport"
	DocDriversLicense  DocumentType = "drivers_license"
	DocBusinessLicense DocumentType = "business_license"
	DocTaxCertificate  DocumentType = "tax_certificate"
	DocProofOfAddress  DocumentType = "proof_of_address"
)

func (t DocumentType) Valid() bool {
	switch t {
	case DocNationalID, DocPassport, DocDriversLicense,
		DocBusinessLicense, DocTaxCertificate, DocProofOfAddress:
		return true
	}
	return false
}

// NeedsBackImage — card-shaped documents have a back side.
func (t DocumentType) NeedsBackImage() bool {
	return t == DocNationalID || t == DocDriversLicense
}

type VerificationStatus string

const (
	DocPending  VerificationStatus = "pending"
	DocVerified VerificationStatus = "verified"
)

type KYCDocument struct {
	ID                 int64              `json:"id"`
	UserID             int                `json:"user_id"`
	DocumentType       DocumentType       `json:"document_type"`
	DocumentNumber     string             `json:"document_number,omitempty"`
	FrontImageURL      string             `json:"front_image_url"`
	BackImageURL       string             `json:"back_image_url,omitempty"`
	ExpiryDate         *time.Time         `json:"expiry_date,omitempty"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	VerificationNotes  string             `json:"verification_notes,omitempty"` // JSON of CheckResult list
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type UploadDocumentInput struct {
	DocumentType   DocumentType `json:"document_type" binding:"required"`
	DocumentNumber string       `json:"document_number"`
	FrontImageURL  string       `json:"front_image_url" binding:"required"`
	BackImageURL   string       `json:"back_image_url"`
	ExpiryDate     *time.Time   `json:"expiry_date"`
}

// CheckResult — outcome of a single verification check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Verdict — combined outcome of a verification run.
type Verdict struct {
	DocumentID int64         `json:"document_id"`
	Verified   bool          `json:"verified"`
	Checks     []CheckResult `json:"checks"`
	CheckedAt  time.Time     `json:"checked_at"`
}
