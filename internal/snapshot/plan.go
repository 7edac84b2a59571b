// Package snapshot implements the rent-roll snapshot and lease-continuity
// engine: freezing prior state into an immutable snapshot, carrying
// pre-verified future leases forward, deciding whether a new lease row is
// the same lease continuing or a superseding one, and flagging income
// discrepancies for reconciliation.
//
// The package splits into a pure planning layer (this file) and a
// transactional apply layer (engine.go). Planning is deterministic over
// in-memory facts so the matching and discrepancy rules are testable with
// literal fixtures.
package snapshot

import (
	"strings"

	"lihtc-backend/internal/models"
	"lihtc-backend/internal/verification"
)

// ResidentFacts is the slice of resident state the planner needs.
type ResidentFacts struct {
	ID             string
	Name           string
	Finalized      bool
	VerifiedIncome *float64 // calculated_annualized_income when finalized
}

// ExistingLease is a lease already on the unit, as of the prior rent roll.
type ExistingLease struct {
	ID        string
	Name      string
	Start     *string
	End       *string
	Residents []ResidentFacts
}

// FutureLease is a not-yet-rolled lease on the unit (no tenancy on the
// prior rent roll), together with whether any of its income verifications
// is finalized.
type FutureLease struct {
	ID                       string
	Name                     string
	HasFinalizedVerification bool
	Residents                []ResidentFacts
}

// PriorUnit is everything the planner knows about one unit going into a
// finalize run. CurrentLease is the lease with a tenancy on the prior rent
// roll (nil on a first upload or a vacant unit).
type PriorUnit struct {
	UnitNumber   string
	CurrentLease *ExistingLease
	AllLeases    []ExistingLease // every non-processed lease on the unit
	FutureLeases []FutureLease
}

// LeaseCreate is a planned new lease row.
type LeaseCreate struct {
	Row       models.LeaseRow
	IsCurrent bool
}

// LeaseReuse is a planned tenancy against an existing lease whose dates
// exactly match the uploaded row — the same lease continuing. No new lease
// row, no new residents, no inheritance prompt.
type LeaseReuse struct {
	LeaseID   string
	Row       models.LeaseRow
	IsCurrent bool
}

// MatchCandidate is a planned inheritance prompt: the new row (by index
// into Creates) landed on a unit holding a pre-verified future lease with
// different dates than the prior current lease.
type MatchCandidate struct {
	CreateIndex int
	Future      FutureLease
}

// DiscrepancyCandidate is a planned income-discrepancy record. Lease and
// resident IDs for the new side are filled in after the insert.
type DiscrepancyCandidate struct {
	CreateIndex        int // -1 when the row reused an existing lease
	ReuseLeaseID       string
	ResidentName       string
	NewResidentName    string // exact name as uploaded (candidate key for ID resolution)
	VerifiedIncome     float64
	NewRentRollIncome  float64
	Discrepancy        float64
	ExistingLeaseID    string
	ExistingResidentID string
}

// UnitPlan is the planner's output for one unit.
type UnitPlan struct {
	UnitNumber    string
	Creates       []LeaseCreate
	Reuses        []LeaseReuse
	Matches       []MatchCandidate
	Discrepancies []DiscrepancyCandidate
}

// IsCurrentRow implements the derived current/future rule for an uploaded
// row: current when it has no start date or starts on/before the rent-roll
// date. Dates are ISO strings, so lexical comparison is date comparison.
func IsCurrentRow(start *string, rentRollDate string) bool {
	return start == nil || *start == "" || *start <= rentRollDate
}

// SameDates reports whether two (start, end) pairs are identical,
// treating nil and empty as the same absent value.
func SameDates(aStart, aEnd, bStart, bEnd *string) bool {
	return sameDate(aStart, bStart) && sameDate(aEnd, bEnd)
}

func sameDate(a, b *string) bool {
	av, bv := "", ""
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

// PlanUnit decides, for one unit's uploaded rows, which leases are reused,
// which are created, which future leases need an inheritance prompt, and
// which residents show income discrepancies.
func PlanUnit(prior PriorUnit, rows []models.LeaseRow, rentRollDate string) UnitPlan {
	plan := UnitPlan{UnitNumber: prior.UnitNumber}

	for _, row := range rows {
		isCurrent := IsCurrentRow(row.LeaseStartDate, rentRollDate)

		// Date-identity is the de-duplication key: a row matching an
		// existing lease's dates is that lease continuing, not a new one.
		if existing := matchExisting(prior.AllLeases, row); existing != nil {
			plan.Reuses = append(plan.Reuses, LeaseReuse{
				LeaseID:   existing.ID,
				Row:       row,
				IsCurrent: isCurrent,
			})
			plan.Discrepancies = append(plan.Discrepancies,
				discrepanciesFor(prior, row, -1, existing.ID)...)
			continue
		}

		createIdx := len(plan.Creates)
		plan.Creates = append(plan.Creates, LeaseCreate{Row: row, IsCurrent: isCurrent})

		// Inheritance matching: a pre-verified future lease on this unit
		// is a decision point unless the new row's dates equal the prior
		// CURRENT lease's dates (the future lease's own dates are often
		// null and must not drive the comparison).
		for _, future := range prior.FutureLeases {
			if !future.HasFinalizedVerification {
				continue
			}
			if prior.CurrentLease != nil &&
				SameDates(row.LeaseStartDate, row.LeaseEndDate,
					prior.CurrentLease.Start, prior.CurrentLease.End) {
				continue
			}
			plan.Matches = append(plan.Matches, MatchCandidate{
				CreateIndex: createIdx,
				Future:      future,
			})
		}

		if isCurrent {
			plan.Discrepancies = append(plan.Discrepancies,
				discrepanciesFor(prior, row, createIdx, "")...)
		}
	}

	return plan
}

// discrepanciesFor compares the uploaded row's declared incomes against
// finalized verified incomes on the unit's prior current lease, matching
// residents by case-insensitive trimmed name.
func discrepanciesFor(prior PriorUnit, row models.LeaseRow, createIdx int, reuseLeaseID string) []DiscrepancyCandidate {
	if prior.CurrentLease == nil {
		return nil
	}
	// A reused lease IS the prior current lease — comparing it against
	// itself would flag nothing but noise.
	if reuseLeaseID != "" && reuseLeaseID == prior.CurrentLease.ID {
		return nil
	}

	verified := make(map[string]ResidentFacts, len(prior.CurrentLease.Residents))
	for _, r := range prior.CurrentLease.Residents {
		if r.Finalized && r.VerifiedIncome != nil {
			verified[normalizeName(r.Name)] = r
		}
	}
	if len(verified) == 0 {
		return nil
	}

	var out []DiscrepancyCandidate
	for _, nr := range row.Residents {
		existing, ok := verified[normalizeName(nr.Name)]
		if !ok {
			continue
		}
		declared := 0.0
		if nr.AnnualizedIncome != nil {
			declared = *nr.AnnualizedIncome
		}
		if !verification.IncomeMismatch(*existing.VerifiedIncome, declared) {
			continue
		}
		diff := *existing.VerifiedIncome - declared
		if diff < 0 {
			diff = -diff
		}
		out = append(out, DiscrepancyCandidate{
			CreateIndex:        createIdx,
			ReuseLeaseID:       reuseLeaseID,
			ResidentName:       existing.Name,
			NewResidentName:    nr.Name,
			VerifiedIncome:     *existing.VerifiedIncome,
			NewRentRollIncome:  declared,
			Discrepancy:        diff,
			ExistingLeaseID:    prior.CurrentLease.ID,
			ExistingResidentID: existing.ID,
		})
	}
	return out
}

func matchExisting(leases []ExistingLease, row models.LeaseRow) *ExistingLease {
	for i := range leases {
		if SameDates(row.LeaseStartDate, row.LeaseEndDate, leases[i].Start, leases[i].End) {
			return &leases[i]
		}
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
