// Package verification derives a lease's income-verification status from
// resident finalization flags, document statuses, and income comparisons.
// Like every status in this system it is computed from stored facts on each
// read — never persisted where it could drift.
package verification

import (
	"github.com/shopspring/decimal"

	"lihtc-backend/internal/models"
)

// Lease verification statuses.
const (
	StatusVacant                   = "VACANT"
	StatusVerified                 = "VERIFIED"
	StatusNeedsInvestigation       = "NEEDS_INVESTIGATION"
	StatusOutOfDateIncomeDocuments = "OUT_OF_DATE_INCOME_DOCUMENTS"
	StatusInProgress               = "IN_PROGRESS"
	StatusWaitingForAdminReview    = "WAITING_FOR_ADMIN_REVIEW"
	StatusNeedsIncomeDocumentation = "NEEDS_INCOME_DOCUMENTATION"
)

// incomeTolerance is the dollar threshold for declared-vs-verified
// comparisons. A gap must STRICTLY exceed it to count — an exact $1.00
// difference is not a mismatch.
var incomeTolerance = decimal.NewFromFloat(1.00)

// IncomeMismatch reports whether two income figures differ by more than
// the $1.00 tolerance. Shared by the status engine and the snapshot
// engine's discrepancy detection.
func IncomeMismatch(a, b float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.GreaterThan(incomeTolerance)
}

// LeaseStatus derives the verification status for one lease from its
// residents and their documents. The match order is load-bearing: an
// admin-review block outranks progress, partial finalization outranks
// document presence, and the income comparison only runs once every
// resident is settled.
func LeaseStatus(residents []models.Resident, documents []models.IncomeDocument) string {
	// 1. Nobody on the lease.
	if len(residents) == 0 {
		return StatusVacant
	}

	// 2. Any document stuck in admin review blocks everything downstream.
	for _, doc := range documents {
		if doc.Status == models.DocStatusNeedsReview {
			return StatusWaitingForAdminReview
		}
	}

	finalized := 0
	for _, r := range residents {
		if r.Finalized() {
			finalized++
		}
	}

	// 3. Partially finalized household — verification underway.
	if finalized > 0 && finalized < len(residents) {
		return StatusInProgress
	}

	// 4–5. Nobody finalized: documents on file mean work has started;
	// none at all means the lease is running on stale rent-roll data.
	if finalized == 0 {
		if len(documents) > 0 {
			return StatusInProgress
		}
		return StatusOutOfDateIncomeDocuments
	}

	// 6. Everyone finalized.
	allNoIncome := true
	for _, r := range residents {
		if !r.HasNoIncome {
			allNoIncome = false
			break
		}
	}
	// 6a. A household where nobody reports any income cannot be called
	// verified — that is a review flag, not a pass.
	if allNoIncome {
		return StatusNeedsIncomeDocumentation
	}

	// 6b. Declared (rent roll) vs verified (documents) totals.
	declared := decimal.Zero
	verified := decimal.Zero
	for _, r := range residents {
		if r.AnnualizedIncome != nil {
			declared = declared.Add(decimal.NewFromFloat(*r.AnnualizedIncome))
		}
		if r.IncomeFinalized && r.CalculatedAnnualizedIncome != nil {
			verified = verified.Add(decimal.NewFromFloat(*r.CalculatedAnnualizedIncome))
		}
	}

	if declared.IsPositive() && declared.Sub(verified).Abs().GreaterThan(incomeTolerance) {
		return StatusNeedsInvestigation
	}
	// declared == 0 with verified > 0 is a future lease: no rent-roll
	// baseline to compare against, so the verified figure stands.
	return StatusVerified
}

// Blocking reports whether a status needs human attention before the lease
// can make automated progress. Used by dashboard rollups.
func Blocking(status string) bool {
	switch status {
	case StatusWaitingForAdminReview, StatusNeedsInvestigation, StatusNeedsIncomeDocumentation:
		return true
	}
	return false
}
