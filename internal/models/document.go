package models

import "time"

// Income document types. The OCR collaborator can emit more; PAYSTUB and W2
// are the ones the income math consumes.
const (
	DocTypePaystub = "PAYSTUB"
	DocTypeW2      = "W2"
	DocTypeSSA     = "SSA_LETTER"
	DocTypeOther   = "OTHER"
)

// Income document processing statuses.
const (
	DocStatusProcessing  = "PROCESSING"
	DocStatusCompleted   = "COMPLETED"
	DocStatusNeedsReview = "NEEDS_REVIEW" // low OCR confidence — blocks automated progress until an admin resolves
)

// IncomeDocument represents one uploaded supporting document with the
// fields the OCR service extracted from it. The extraction pipeline itself
// is an external collaborator — this service only stores its output.
type IncomeDocument struct {
	ID             string  `json:"id"`
	ResidentID     string  `json:"residentId"`
	VerificationID *string `json:"verificationId,omitempty"`
	DocumentType   string  `json:"documentType"`
	Status         string  `json:"status"`

	// PAYSTUB fields
	GrossPayAmount     *float64 `json:"grossPayAmount,omitempty"`
	PayFrequency       *string  `json:"payFrequency,omitempty"`
	PayPeriodStartDate *string  `json:"payPeriodStartDate,omitempty"`
	PayPeriodEndDate   *string  `json:"payPeriodEndDate,omitempty"`

	// W2 fields
	Box1Wages *float64 `json:"box1Wages,omitempty"`
	TaxYear   *int     `json:"taxYear,omitempty"`

	// Derived when enough documents exist to annualize
	CalculatedAnnualizedIncome *float64 `json:"calculatedAnnualizedIncome,omitempty"`

	FileURL   string    `json:"fileUrl"`
	FileName  string    `json:"fileName"`
	FileSize  int64     `json:"fileSize"`
	FileType  string    `json:"fileType"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateDocumentRequest holds the OCR output being recorded for a resident.
type CreateDocumentRequest struct {
	DocumentType       string   `json:"documentType"`
	Status             string   `json:"status,omitempty"` // defaults to PROCESSING
	GrossPayAmount     *float64 `json:"grossPayAmount,omitempty"`
	PayFrequency       *string  `json:"payFrequency,omitempty"`
	PayPeriodStartDate *string  `json:"payPeriodStartDate,omitempty"`
	PayPeriodEndDate   *string  `json:"payPeriodEndDate,omitempty"`
	Box1Wages          *float64 `json:"box1Wages,omitempty"`
	TaxYear            *int     `json:"taxYear,omitempty"`
	FileURL            string   `json:"fileUrl"`
	FileName           string   `json:"fileName"`
	FileSize           int64    `json:"fileSize"`
	FileType           string   `json:"fileType"`
}

// ReviewDocumentRequest resolves a NEEDS_REVIEW document: the admin either
// corrects the extracted fields and accepts, or rejects the document.
type ReviewDocumentRequest struct {
	Accept             bool     `json:"accept"`
	GrossPayAmount     *float64 `json:"grossPayAmount,omitempty"`
	PayPeriodStartDate *string  `json:"payPeriodStartDate,omitempty"`
	PayPeriodEndDate   *string  `json:"payPeriodEndDate,omitempty"`
	Box1Wages          *float64 `json:"box1Wages,omitempty"`
}

var validDocTypes = map[string]bool{
	DocTypePaystub: true,
	DocTypeW2:      true,
	DocTypeSSA:     true,
	DocTypeOther:   true,
}

var validDocStatuses = map[string]bool{
	DocStatusProcessing:  true,
	DocStatusCompleted:   true,
	DocStatusNeedsReview: true,
}

// Validate checks if the create request contains valid data.
func (r *CreateDocumentRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if !validDocTypes[r.DocumentType] {
		errors["documentType"] = "Document type must be PAYSTUB, W2, SSA_LETTER or OTHER"
	}
	if r.Status != "" && !validDocStatuses[r.Status] {
		errors["status"] = "Status must be PROCESSING, COMPLETED or NEEDS_REVIEW"
	}
	if r.DocumentType == DocTypePaystub && r.GrossPayAmount != nil && *r.GrossPayAmount < 0 {
		errors["grossPayAmount"] = "Gross pay cannot be negative"
	}

	return errors
}
