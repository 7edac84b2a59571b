package models

import "time"

// Resident represents one household member on a lease.
//
// The two income figures must never be conflated:
//   - AnnualizedIncome is what the source rent roll declared. It is written
//     once at ingestion and immutable thereafter. NULL on future leases —
//     a lease not yet on a rent roll has no rent-roll-observed baseline.
//   - CalculatedAnnualizedIncome is derived from verified documents and is
//     mutated only by the verification workflow.
type Resident struct {
	ID                         string     `json:"id"`
	LeaseID                    string     `json:"leaseId"`
	Name                       string     `json:"name"`
	AnnualizedIncome           *float64   `json:"annualizedIncome,omitempty"`
	CalculatedAnnualizedIncome *float64   `json:"calculatedAnnualizedIncome,omitempty"`
	IncomeFinalized            bool       `json:"incomeFinalized"`
	FinalizedAt                *time.Time `json:"finalizedAt,omitempty"`
	HasNoIncome                bool       `json:"hasNoIncome"` // verified-as-zero-income, distinct from "not yet verified"
	CreatedAt                  time.Time  `json:"createdAt"`
	UpdatedAt                  time.Time  `json:"updatedAt"`
}

// Finalized reports whether the resident's income question is settled,
// either by a locked-in verified figure or a verified zero-income state.
func (r *Resident) Finalized() bool {
	return r.IncomeFinalized || r.HasNoIncome
}

// FinalizeResidentRequest locks in a resident's verified income figure.
type FinalizeResidentRequest struct {
	CalculatedAnnualizedIncome float64 `json:"calculatedAnnualizedIncome"`
}

// Validate checks if the finalize request contains valid data.
func (r *FinalizeResidentRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.CalculatedAnnualizedIncome < 0 {
		errors["calculatedAnnualizedIncome"] = "Verified income cannot be negative"
	}

	return errors
}

// IncomeVerification tracks the overall verification workflow for a lease.
// A lease may accumulate several over time; only the latest (by createdAt)
// is authoritative.
type IncomeVerification struct {
	ID        string    `json:"id"`
	LeaseID   string    `json:"leaseId"`
	Status    string    `json:"status"` // VerificationNotStarted | VerificationInProgress | VerificationFinalized
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Income verification workflow statuses.
const (
	VerificationNotStarted = "NOT_STARTED"
	VerificationInProgress = "IN_PROGRESS"
	VerificationFinalized  = "FINALIZED"
)
