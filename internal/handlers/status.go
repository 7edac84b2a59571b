package handlers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lihtc-backend/internal/models"
	"lihtc-backend/internal/verification"
)

// ── Derived lease status ───────────────────────────────────────
// Verification statuses are never stored. Each read walks the same path:
// resolve the unit's current lease off the active rent roll, load its
// residents and documents, and hand them to the verification engine.

// rowQuerier is the single-row query surface of *pgxpool.Pool.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// currentLeaseID resolves the unit's current lease: a lease with a tenancy
// on the active snapshot's rent roll whose start date is on or before the
// rent roll date (or has no date at all). Newest start date wins when a
// unit somehow carries more than one. A (nil, nil) return means vacant;
// only pgx.ErrNoRows maps to vacant, every other failure is an error.
func currentLeaseID(ctx context.Context, q rowQuerier, unitID string) (*string, error) {
	var leaseID string
	err := q.QueryRow(ctx, `
		SELECT l.id
		FROM leases l
		JOIN tenancies t ON t.lease_id = l.id
		JOIN rent_rolls rr ON rr.id = t.rent_roll_id
		JOIN rent_roll_snapshots s ON s.id = rr.snapshot_id AND s.is_active
		WHERE l.unit_id = $1
		  AND (l.lease_start_date IS NULL OR l.lease_start_date <= rr.upload_date)
		ORDER BY l.lease_start_date DESC NULLS LAST
		LIMIT 1
	`, unitID).Scan(&leaseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &leaseID, nil
}

// leaseResidents loads all residents on a lease.
func leaseResidents(ctx context.Context, pool *pgxpool.Pool, leaseID string) ([]models.Resident, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, lease_id, name, annualized_income, calculated_annualized_income,
			income_finalized, finalized_at, has_no_income, created_at, updated_at
		FROM residents WHERE lease_id = $1
		ORDER BY created_at ASC
	`, leaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	residents := []models.Resident{}
	for rows.Next() {
		var res models.Resident
		if err := rows.Scan(
			&res.ID, &res.LeaseID, &res.Name,
			&res.AnnualizedIncome, &res.CalculatedAnnualizedIncome,
			&res.IncomeFinalized, &res.FinalizedAt, &res.HasNoIncome,
			&res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, err
		}
		residents = append(residents, res)
	}
	return residents, rows.Err()
}

// leaseDocuments loads every income document attached to a lease's
// residents.
func leaseDocuments(ctx context.Context, pool *pgxpool.Pool, leaseID string) ([]models.IncomeDocument, error) {
	rows, err := pool.Query(ctx, `
		SELECT d.id, d.resident_id, d.verification_id, d.document_type, d.status,
			d.gross_pay_amount, d.pay_frequency,
			d.pay_period_start_date::text, d.pay_period_end_date::text,
			d.box1_wages, d.tax_year, d.calculated_annualized_income,
			d.file_url, d.file_name, d.file_size, d.file_type,
			d.created_at, d.updated_at
		FROM income_documents d
		JOIN residents r ON r.id = d.resident_id
		WHERE r.lease_id = $1
		ORDER BY d.created_at ASC
	`, leaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	documents := []models.IncomeDocument{}
	for rows.Next() {
		var d models.IncomeDocument
		if err := rows.Scan(
			&d.ID, &d.ResidentID, &d.VerificationID, &d.DocumentType, &d.Status,
			&d.GrossPayAmount, &d.PayFrequency,
			&d.PayPeriodStartDate, &d.PayPeriodEndDate,
			&d.Box1Wages, &d.TaxYear, &d.CalculatedAnnualizedIncome,
			&d.FileURL, &d.FileName, &d.FileSize, &d.FileType,
			&d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		documents = append(documents, d)
	}
	return documents, rows.Err()
}

// deriveLeaseStatus computes the verification status for one lease and
// returns the loaded residents alongside for callers that need them.
func deriveLeaseStatus(ctx context.Context, pool *pgxpool.Pool, leaseID string) (string, []models.Resident, error) {
	residents, err := leaseResidents(ctx, pool, leaseID)
	if err != nil {
		return "", nil, err
	}
	documents, err := leaseDocuments(ctx, pool, leaseID)
	if err != nil {
		return "", nil, err
	}
	return verification.LeaseStatus(residents, documents), residents, nil
}

// verifiedIncomeTotal sums finalized incomes across a household. Returns
// nil until at least one resident has a locked-in figure.
func verifiedIncomeTotal(residents []models.Resident) *float64 {
	var total float64
	found := false
	for _, r := range residents {
		if r.IncomeFinalized && r.CalculatedAnnualizedIncome != nil {
			total += *r.CalculatedAnnualizedIncome
			found = true
		}
	}
	if !found {
		return nil
	}
	return &total
}
