package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lihtc-backend/internal/models"
)

// The engine tests run Finalize against a mocked pool and assert the SQL
// it issues, in order. The ordering matters: the prior snapshot must be
// deactivated before the new one is inserted as active, so exactly one
// snapshot per property is active at every commit point.

func expectFinalizePreamble(mock pgxmock.PgxPoolIface, propertyID string) {
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs(propertyID).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(propertyID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
}

func unitColumns() []string {
	return []string{"unit_number", "id"}
}

func activeSnapshotColumns() []string {
	return []string{"id", "rent_roll_id"}
}

func currentLeaseColumns() []string {
	return []string{"unit_number", "id", "name", "lease_start_date", "lease_end_date"}
}

func futureLeaseColumns() []string {
	return []string{"id", "unit_id", "unit_number", "name", "lease_start_date",
		"lease_end_date", "lease_rent", "created_at", "owned"}
}

func TestFinalizeFirstUpload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectFinalizePreamble(mock, "prop-1")
	mock.ExpectQuery("SELECT unit_number, id FROM units").
		WithArgs("prop-1").
		WillReturnRows(pgxmock.NewRows(unitColumns()))
	mock.ExpectQuery("FROM rent_roll_snapshots s").
		WithArgs("prop-1").
		WillReturnRows(pgxmock.NewRows(activeSnapshotColumns()))
	mock.ExpectQuery("FROM leases l").
		WithArgs("prop-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(futureLeaseColumns()))

	mock.ExpectExec("UPDATE rent_roll_snapshots SET is_active = FALSE").
		WithArgs("prop-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("INSERT INTO rent_roll_snapshots").
		WithArgs(pgxmock.AnyArg(), "prop-1", "2025-03-01", "march.xlsx").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO rent_rolls").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "prop-1", "2025-03-01").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// First upload seeds the unit, then creates the lease graph with a
	// tenancy on the new rent roll.
	mock.ExpectExec("INSERT INTO units").
		WithArgs(pgxmock.AnyArg(), "prop-1", "101").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO leases").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"Maria Lopez household", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO residents").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "Maria Lopez", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO residents").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "Jon Lopez", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO tenancies").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	engine := NewEngine(mock)
	result, err := engine.Finalize(context.Background(), "prop-1", models.FinalizeRequest{
		RentRollDate: "2025-03-01",
		Filename:     "march.xlsx",
		Units: map[string][]models.LeaseRow{
			"101": {row(sptr("2025-02-01"), sptr("2026-01-31"),
				models.ResidentRow{Name: "Maria Lopez", AnnualizedIncome: fptr(30000)},
				models.ResidentRow{Name: "Jon Lopez", AnnualizedIncome: fptr(12000)})},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.SnapshotID)
	assert.Equal(t, 1, result.LeasesCreated)
	assert.Equal(t, 1, result.TenanciesCreated)
	assert.Equal(t, 2, result.ResidentsCreated)
	assert.Equal(t, 0, result.LeasesPreserved)
	assert.Empty(t, result.FutureLeaseMatches)
	assert.Empty(t, result.IncomeDiscrepancies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeSupersedesActiveSnapshot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectFinalizePreamble(mock, "prop-1")
	mock.ExpectQuery("SELECT unit_number, id FROM units").
		WithArgs("prop-1").
		WillReturnRows(pgxmock.NewRows(unitColumns()).AddRow("101", "u-101"))
	mock.ExpectQuery("FROM rent_roll_snapshots s").
		WithArgs("prop-1").
		WillReturnRows(pgxmock.NewRows(activeSnapshotColumns()).AddRow("s1", "r1"))
	mock.ExpectQuery("JOIN tenancies t ON t.lease_id").
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows(currentLeaseColumns()).
			AddRow("101", "L1", "Ana Reyes household", sptr("2024-02-01"), sptr("2025-01-31")))
	mock.ExpectQuery("SELECT lease_id, id, name, calculated_annualized_income").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"lease_id", "id", "name",
			"calculated_annualized_income", "income_finalized"}).
			AddRow("L1", "R1", "Ana Reyes", (*float64)(nil), false))
	mock.ExpectQuery("FROM leases l").
		WithArgs("prop-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(futureLeaseColumns()))

	// The prior snapshot flips inactive before the replacement goes in.
	mock.ExpectExec("UPDATE rent_roll_snapshots SET is_active = FALSE").
		WithArgs("prop-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO rent_roll_snapshots").
		WithArgs(pgxmock.AnyArg(), "prop-1", "2025-03-01", "march.xlsx").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO rent_rolls").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "prop-1", "2025-03-01").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Same dates as L1: the lease continues — rent refreshes, a tenancy
	// lands on the new rent roll, nothing new is created.
	mock.ExpectExec("UPDATE leases SET lease_rent").
		WithArgs(pgxmock.AnyArg(), "L1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO tenancies").
		WithArgs(pgxmock.AnyArg(), "L1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	engine := NewEngine(mock)
	leaseRow := row(sptr("2024-02-01"), sptr("2025-01-31"),
		models.ResidentRow{Name: "Ana Reyes", AnnualizedIncome: fptr(30000)})
	leaseRow.LeaseRent = fptr(1600)

	result, err := engine.Finalize(context.Background(), "prop-1", models.FinalizeRequest{
		RentRollDate: "2025-03-01",
		Filename:     "march.xlsx",
		Units:        map[string][]models.LeaseRow{"101": {leaseRow}},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.LeasesCreated)
	assert.Equal(t, 0, result.ResidentsCreated)
	assert.Equal(t, 1, result.TenanciesCreated)
	assert.Empty(t, result.FutureLeaseMatches)
	assert.Empty(t, result.IncomeDiscrepancies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeClonesVerifiedFutureLease(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	flCreated := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	resCreated := time.Date(2025, 1, 10, 9, 5, 0, 0, time.UTC)
	verCreated := time.Date(2025, 1, 12, 14, 0, 0, 0, time.UTC)

	expectFinalizePreamble(mock, "prop-1")
	mock.ExpectQuery("SELECT unit_number, id FROM units").
		WithArgs("prop-1").
		WillReturnRows(pgxmock.NewRows(unitColumns()).AddRow("201", "u-201"))
	mock.ExpectQuery("FROM rent_roll_snapshots s").
		WithArgs("prop-1").
		WillReturnRows(pgxmock.NewRows(activeSnapshotColumns()).AddRow("s1", "r1"))
	mock.ExpectQuery("JOIN tenancies t ON t.lease_id").
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows(currentLeaseColumns()))
	mock.ExpectQuery("FROM leases l").
		WithArgs("prop-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(futureLeaseColumns()).
			AddRow("F1", "u-201", "201", "Dana Cole household",
				(*string)(nil), (*string)(nil), (*float64)(nil), flCreated, true))
	mock.ExpectQuery("annualized_income, calculated_annualized_income").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"lease_id", "id", "name",
			"annualized_income", "calculated_annualized_income", "income_finalized",
			"finalized_at", "has_no_income", "created_at"}).
			AddRow("F1", "FR1", "Dana Cole", (*float64)(nil), fptr(31000), false,
				(*time.Time)(nil), false, resCreated))
	mock.ExpectQuery("FROM income_verifications WHERE lease_id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"lease_id", "id", "status", "created_at"}).
			AddRow("F1", "V1", models.VerificationFinalized, verCreated))

	mock.ExpectExec("UPDATE rent_roll_snapshots SET is_active = FALSE").
		WithArgs("prop-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO rent_roll_snapshots").
		WithArgs(pgxmock.AnyArg(), "prop-1", "2025-03-01", "march.xlsx").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO rent_rolls").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "prop-1", "2025-03-01").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	// Snapshot-owned future lease: deep copy with the original created_at,
	// income_finalized re-derived from the FINALIZED verification, and the
	// documents re-pointed at the copies.
	mock.ExpectExec("INSERT INTO leases").
		WithArgs(pgxmock.AnyArg(), "u-201", pgxmock.AnyArg(), "Dana Cole household",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), flCreated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO residents").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "Dana Cole", pgxmock.AnyArg(),
			pgxmock.AnyArg(), true, pgxmock.AnyArg(), pgxmock.AnyArg(), resCreated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO income_verifications").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), models.VerificationFinalized, verCreated).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE income_documents SET resident_id").
		WithArgs(pgxmock.AnyArg(), "FR1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE income_documents SET verification_id").
		WithArgs(pgxmock.AnyArg(), "V1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	// The uploaded row has its own dates, so it becomes a new lease and the
	// cloned future lease surfaces as an inheritance prompt.
	mock.ExpectExec("INSERT INTO leases").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"Dana Cole household", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO residents").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "Dana Cole", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO tenancies").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO future_lease_matches").
		WithArgs(pgxmock.AnyArg(), "prop-1", "201", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	engine := NewEngine(mock)
	result, err := engine.Finalize(context.Background(), "prop-1", models.FinalizeRequest{
		RentRollDate: "2025-03-01",
		Filename:     "march.xlsx",
		Units: map[string][]models.LeaseRow{
			"201": {row(sptr("2025-02-15"), sptr("2026-02-14"),
				models.ResidentRow{Name: "Dana Cole", AnnualizedIncome: fptr(30000)})},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.LeasesPreserved)
	assert.Equal(t, 1, result.LeasesCreated)
	require.Len(t, result.FutureLeaseMatches, 1)

	match := result.FutureLeaseMatches[0]
	assert.Equal(t, "Dana Cole household", match.FutureLeaseName)
	assert.NotEqual(t, "F1", match.FutureLeaseID, "the prompt must reference the live copy")
	require.Len(t, match.Residents, 1)
	assert.Equal(t, "Dana Cole", match.Residents[0].Name)
	assert.Equal(t, 31000.0, match.Residents[0].VerifiedIncome)
	assert.NotEqual(t, "FR1", match.Residents[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeUnknownUnitFailsClosed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectFinalizePreamble(mock, "prop-1")
	mock.ExpectQuery("SELECT unit_number, id FROM units").
		WithArgs("prop-1").
		WillReturnRows(pgxmock.NewRows(unitColumns()).AddRow("101", "u-101"))
	mock.ExpectRollback()

	engine := NewEngine(mock)
	_, err = engine.Finalize(context.Background(), "prop-1", models.FinalizeRequest{
		RentRollDate: "2025-03-01",
		Filename:     "march.xlsx",
		Units: map[string][]models.LeaseRow{
			"999": {row(nil, nil, models.ResidentRow{Name: "Sam Ide"})},
		},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{"999"}, vErr.UnitNumbers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizePropertyNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("ghost").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	engine := NewEngine(mock)
	_, err = engine.Finalize(context.Background(), "ghost", models.FinalizeRequest{
		RentRollDate: "2025-03-01",
		Filename:     "march.xlsx",
		Units: map[string][]models.LeaseRow{
			"101": {row(nil, nil, models.ResidentRow{Name: "Sam Ide"})},
		},
	})
	assert.ErrorIs(t, err, ErrPropertyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeRejectsInvalidRequest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	engine := NewEngine(mock)
	_, err = engine.Finalize(context.Background(), "prop-1", models.FinalizeRequest{
		RentRollDate: "03/01/2025",
		Filename:     "march.xlsx",
		Units: map[string][]models.LeaseRow{
			"101": {row(nil, nil, models.ResidentRow{Name: "Sam Ide"})},
		},
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "rentRollDate")
	assert.NoError(t, mock.ExpectationsWereMet())
}
