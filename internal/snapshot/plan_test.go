package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lihtc-backend/internal/models"
)

func sptr(s string) *string   { return &s }
func fptr(f float64) *float64 { return &f }

func row(start, end *string, residents ...models.ResidentRow) models.LeaseRow {
	return models.LeaseRow{
		LeaseStartDate: start,
		LeaseEndDate:   end,
		Residents:      residents,
	}
}

func TestIsCurrentRow(t *testing.T) {
	assert.True(t, IsCurrentRow(nil, "2025-06-01"))
	assert.True(t, IsCurrentRow(sptr(""), "2025-06-01"))
	assert.True(t, IsCurrentRow(sptr("2025-06-01"), "2025-06-01"))
	assert.True(t, IsCurrentRow(sptr("2024-01-15"), "2025-06-01"))
	assert.False(t, IsCurrentRow(sptr("2025-06-02"), "2025-06-01"))
}

func TestSameDates(t *testing.T) {
	assert.True(t, SameDates(sptr("2025-01-01"), sptr("2025-12-31"), sptr("2025-01-01"), sptr("2025-12-31")))
	assert.True(t, SameDates(nil, nil, nil, nil))
	// nil and empty are the same absent value.
	assert.True(t, SameDates(nil, sptr(""), sptr(""), nil))
	assert.False(t, SameDates(sptr("2025-01-01"), nil, sptr("2025-01-02"), nil))
	assert.False(t, SameDates(sptr("2025-01-01"), sptr("2025-12-31"), sptr("2025-01-01"), nil))
}

// A row whose dates match an existing lease is that lease continuing: a
// tenancy is planned against it and no new lease row is created.
func TestPlanUnitReusesLeaseOnDateIdentity(t *testing.T) {
	prior := PriorUnit{
		UnitNumber: "101",
		CurrentLease: &ExistingLease{
			ID:    "lease-1",
			Start: sptr("2024-07-01"),
			End:   sptr("2025-06-30"),
		},
		AllLeases: []ExistingLease{
			{ID: "lease-1", Start: sptr("2024-07-01"), End: sptr("2025-06-30")},
		},
	}
	rows := []models.LeaseRow{
		row(sptr("2024-07-01"), sptr("2025-06-30"),
			models.ResidentRow{Name: "Ana Reyes", AnnualizedIncome: fptr(30000)}),
	}

	plan := PlanUnit(prior, rows, "2025-06-01")

	assert.Empty(t, plan.Creates)
	require.Len(t, plan.Reuses, 1)
	assert.Equal(t, "lease-1", plan.Reuses[0].LeaseID)
	assert.True(t, plan.Reuses[0].IsCurrent)
	assert.Empty(t, plan.Matches)
	assert.Empty(t, plan.Discrepancies)
}

func TestPlanUnitCreatesOnNewDates(t *testing.T) {
	prior := PriorUnit{
		UnitNumber: "101",
		CurrentLease: &ExistingLease{
			ID:    "lease-1",
			Start: sptr("2024-07-01"),
			End:   sptr("2025-06-30"),
		},
		AllLeases: []ExistingLease{
			{ID: "lease-1", Start: sptr("2024-07-01"), End: sptr("2025-06-30")},
		},
	}
	rows := []models.LeaseRow{
		row(sptr("2025-07-01"), sptr("2026-06-30"),
			models.ResidentRow{Name: "New Tenant"}),
	}

	plan := PlanUnit(prior, rows, "2025-06-01")

	require.Len(t, plan.Creates, 1)
	assert.False(t, plan.Creates[0].IsCurrent) // starts after the rent-roll date
	assert.Empty(t, plan.Reuses)
}

// A new lease row landing on a unit that holds a pre-verified future lease
// is a decision point, never an automatic inheritance.
func TestPlanUnitFutureLeaseMatchPrompt(t *testing.T) {
	future := FutureLease{
		ID:                       "future-1",
		Name:                     "Gomez household",
		HasFinalizedVerification: true,
		Residents: []ResidentFacts{
			{ID: "res-f1", Name: "Maria Gomez", Finalized: true, VerifiedIncome: fptr(28000)},
		},
	}
	prior := PriorUnit{
		UnitNumber: "202",
		CurrentLease: &ExistingLease{
			ID:    "lease-1",
			Start: sptr("2024-07-01"),
			End:   sptr("2025-06-30"),
		},
		AllLeases: []ExistingLease{
			{ID: "lease-1", Start: sptr("2024-07-01"), End: sptr("2025-06-30")},
		},
		FutureLeases: []FutureLease{future},
	}
	rows := []models.LeaseRow{
		row(sptr("2025-07-15"), sptr("2026-07-14"),
			models.ResidentRow{Name: "Maria Gomez", AnnualizedIncome: fptr(28000)}),
	}

	plan := PlanUnit(prior, rows, "2025-06-01")

	require.Len(t, plan.Creates, 1)
	require.Len(t, plan.Matches, 1)
	assert.Equal(t, 0, plan.Matches[0].CreateIndex)
	assert.Equal(t, "future-1", plan.Matches[0].Future.ID)
}

func TestPlanUnitUnverifiedFutureLeaseIgnored(t *testing.T) {
	prior := PriorUnit{
		UnitNumber: "202",
		FutureLeases: []FutureLease{
			{ID: "future-1", HasFinalizedVerification: false},
		},
	}
	rows := []models.LeaseRow{
		row(sptr("2025-07-15"), nil, models.ResidentRow{Name: "Maria Gomez"}),
	}

	plan := PlanUnit(prior, rows, "2025-06-01")

	require.Len(t, plan.Creates, 1)
	assert.Empty(t, plan.Matches)
}

// The new row's dates matching the prior CURRENT lease means it is the old
// tenancy continuing, not the future lease arriving — no prompt.
func TestPlanUnitNoMatchWhenDatesEqualPriorCurrent(t *testing.T) {
	prior := PriorUnit{
		UnitNumber: "202",
		CurrentLease: &ExistingLease{
			ID:    "lease-1",
			Start: sptr("2024-07-01"),
			End:   sptr("2025-06-30"),
		},
		// Current lease deliberately absent from AllLeases so the row
		// plans as a create rather than a reuse.
		FutureLeases: []FutureLease{
			{ID: "future-1", HasFinalizedVerification: true},
		},
	}
	rows := []models.LeaseRow{
		row(sptr("2024-07-01"), sptr("2025-06-30"),
			models.ResidentRow{Name: "Ana Reyes"}),
	}

	plan := PlanUnit(prior, rows, "2025-06-01")

	require.Len(t, plan.Creates, 1)
	assert.Empty(t, plan.Matches)
}

// A row whose dates equal a pre-verified future lease's OWN dates is that
// future lease arriving on the rent roll: it is adopted as a reuse, with
// no prompt and no duplicate lease row.
func TestPlanUnitAdoptsFutureLeaseOnOwnDates(t *testing.T) {
	prior := PriorUnit{
		UnitNumber: "202",
		CurrentLease: &ExistingLease{
			ID:    "lease-1",
			Start: sptr("2024-07-01"),
			End:   sptr("2025-06-30"),
		},
		AllLeases: []ExistingLease{
			{ID: "lease-1", Start: sptr("2024-07-01"), End: sptr("2025-06-30")},
			{ID: "future-1", Start: sptr("2025-07-15"), End: sptr("2026-07-14")},
		},
		FutureLeases: []FutureLease{
			{ID: "future-1", HasFinalizedVerification: true},
		},
	}
	rows := []models.LeaseRow{
		row(sptr("2025-07-15"), sptr("2026-07-14"),
			models.ResidentRow{Name: "Maria Gomez", AnnualizedIncome: fptr(28000)}),
	}

	plan := PlanUnit(prior, rows, "2025-08-01")

	assert.Empty(t, plan.Creates)
	require.Len(t, plan.Reuses, 1)
	assert.Equal(t, "future-1", plan.Reuses[0].LeaseID)
	assert.Empty(t, plan.Matches)
}

func TestPlanUnitIncomeDiscrepancy(t *testing.T) {
	prior := PriorUnit{
		UnitNumber: "303",
		CurrentLease: &ExistingLease{
			ID:    "lease-1",
			Start: sptr("2024-07-01"),
			End:   sptr("2025-06-30"),
			Residents: []ResidentFacts{
				{ID: "res-1", Name: "Ana Reyes", Finalized: true, VerifiedIncome: fptr(30000)},
				{ID: "res-2", Name: "Luis Reyes", Finalized: false},
			},
		},
		AllLeases: []ExistingLease{
			{ID: "lease-1", Start: sptr("2024-07-01"), End: sptr("2025-06-30")},
		},
	}
	rows := []models.LeaseRow{
		row(sptr("2025-07-01"), nil,
			// Name matching is case-insensitive and trimmed.
			models.ResidentRow{Name: "  ANA REYES ", AnnualizedIncome: fptr(25000)},
			// Not finalized on the prior lease: no comparison.
			models.ResidentRow{Name: "Luis Reyes", AnnualizedIncome: fptr(12000)},
			// New name: nothing to compare against.
			models.ResidentRow{Name: "Carla Reyes", AnnualizedIncome: fptr(5000)},
		),
	}

	plan := PlanUnit(prior, rows, "2025-08-01")

	require.Len(t, plan.Discrepancies, 1)
	d := plan.Discrepancies[0]
	assert.Equal(t, "Ana Reyes", d.ResidentName)
	assert.Equal(t, "  ANA REYES ", d.NewResidentName)
	assert.Equal(t, 30000.0, d.VerifiedIncome)
	assert.Equal(t, 25000.0, d.NewRentRollIncome)
	assert.Equal(t, 5000.0, d.Discrepancy)
	assert.Equal(t, "lease-1", d.ExistingLeaseID)
	assert.Equal(t, "res-1", d.ExistingResidentID)
}

func TestPlanUnitDiscrepancyTolerance(t *testing.T) {
	prior := PriorUnit{
		UnitNumber: "303",
		CurrentLease: &ExistingLease{
			ID: "lease-1",
			Residents: []ResidentFacts{
				{ID: "res-1", Name: "Ana Reyes", Finalized: true, VerifiedIncome: fptr(30000)},
			},
		},
	}

	// Exactly $1.00 apart: not a discrepancy.
	rows := []models.LeaseRow{
		row(sptr("2025-07-01"), nil,
			models.ResidentRow{Name: "Ana Reyes", AnnualizedIncome: fptr(30001)}),
	}
	plan := PlanUnit(prior, rows, "2025-08-01")
	assert.Empty(t, plan.Discrepancies)

	// A cent more crosses the line.
	rows = []models.LeaseRow{
		row(sptr("2025-07-01"), nil,
			models.ResidentRow{Name: "Ana Reyes", AnnualizedIncome: fptr(30001.01)}),
	}
	plan = PlanUnit(prior, rows, "2025-08-01")
	assert.Len(t, plan.Discrepancies, 1)
}

// Reusing the prior current lease itself never produces discrepancies:
// the lease would be compared against its own residents.
func TestPlanUnitNoSelfDiscrepancy(t *testing.T) {
	prior := PriorUnit{
		UnitNumber: "303",
		CurrentLease: &ExistingLease{
			ID:    "lease-1",
			Start: sptr("2024-07-01"),
			End:   sptr("2025-06-30"),
			Residents: []ResidentFacts{
				{ID: "res-1", Name: "Ana Reyes", Finalized: true, VerifiedIncome: fptr(30000)},
			},
		},
		AllLeases: []ExistingLease{
			{ID: "lease-1", Start: sptr("2024-07-01"), End: sptr("2025-06-30")},
		},
	}
	rows := []models.LeaseRow{
		row(sptr("2024-07-01"), sptr("2025-06-30"),
			models.ResidentRow{Name: "Ana Reyes", AnnualizedIncome: fptr(20000)}),
	}

	plan := PlanUnit(prior, rows, "2025-08-01")

	require.Len(t, plan.Reuses, 1)
	assert.Empty(t, plan.Discrepancies)
}

// First upload: no prior state at all — every row is a plain create.
func TestPlanUnitFirstUpload(t *testing.T) {
	prior := PriorUnit{UnitNumber: "101"}
	rows := []models.LeaseRow{
		row(sptr("2025-01-01"), sptr("2025-12-31"),
			models.ResidentRow{Name: "Ana Reyes", AnnualizedIncome: fptr(30000)}),
		row(sptr("2026-01-01"), nil,
			models.ResidentRow{Name: "Future Tenant"}),
	}

	plan := PlanUnit(prior, rows, "2025-06-01")

	require.Len(t, plan.Creates, 2)
	assert.True(t, plan.Creates[0].IsCurrent)
	assert.False(t, plan.Creates[1].IsCurrent)
	assert.Empty(t, plan.Reuses)
	assert.Empty(t, plan.Matches)
	assert.Empty(t, plan.Discrepancies)
}
