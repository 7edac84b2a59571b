package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lihtc-backend/internal/models"
)

// futureLeaseRecord is a future lease loaded with its full graph, ready to
// be carried into a new snapshot.
type futureLeaseRecord struct {
	ID            string
	UnitID        string
	UnitNumber    string
	Name          string
	StartDate     *string
	EndDate       *string
	Rent          *float64
	CreatedAt     time.Time
	Residents     []residentRecord
	Verifications []verificationRecord
}

type residentRecord struct {
	ID               string
	Name             string
	AnnualizedIncome *float64
	CalculatedIncome *float64
	IncomeFinalized  bool
	FinalizedAt      *time.Time
	HasNoIncome      bool
	CreatedAt        time.Time
}

type verificationRecord struct {
	ID        string
	Status    string
	CreatedAt time.Time
}

// hasFinalizedVerification reports whether any verification on the lease
// carries FINALIZED status.
func (f *futureLeaseRecord) hasFinalizedVerification() bool {
	for _, v := range f.Verifications {
		if v.Status == models.VerificationFinalized {
			return true
		}
	}
	return false
}

// cloneResult maps old graph IDs to their copies so documents can be
// relinked and the planner can reference the live copy.
type cloneResult struct {
	LeaseID         string
	ResidentIDs     map[string]string
	VerificationIDs map[string]string
}

// cloneLeaseGraph deep-copies a future lease (lease row, residents,
// verifications) into the new snapshot and relinks its income documents to
// the copies. Documents are re-pointed, never duplicated — the underlying
// uploaded file must not be copied. Original created_at timestamps are
// preserved so the carried lease's age is not falsely reset.
//
// Finalization truth is re-derived at copy time: a resident copy inherits
// income_finalized=true whenever any verification on the lease is
// FINALIZED, even if the stored resident flag was stale.
func cloneLeaseGraph(ctx context.Context, tx pgx.Tx, lease futureLeaseRecord, newSnapshotID string) (*cloneResult, error) {
	result := &cloneResult{
		LeaseID:         uuid.NewString(),
		ResidentIDs:     make(map[string]string, len(lease.Residents)),
		VerificationIDs: make(map[string]string, len(lease.Verifications)),
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO leases (id, unit_id, snapshot_id, name, lease_start_date, lease_end_date, lease_rent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, result.LeaseID, lease.UnitID, newSnapshotID, lease.Name,
		lease.StartDate, lease.EndDate, lease.Rent, lease.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("clone lease %s: %w", lease.ID, err)
	}

	anyFinalized := lease.hasFinalizedVerification()

	for _, r := range lease.Residents {
		newID := uuid.NewString()
		result.ResidentIDs[r.ID] = newID

		finalized := r.IncomeFinalized || anyFinalized
		_, err := tx.Exec(ctx, `
			INSERT INTO residents (id, lease_id, name, annualized_income, calculated_annualized_income,
				income_finalized, finalized_at, has_no_income, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		`, newID, result.LeaseID, r.Name, r.AnnualizedIncome, r.CalculatedIncome,
			finalized, r.FinalizedAt, r.HasNoIncome, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("clone resident %s: %w", r.ID, err)
		}
	}

	for _, v := range lease.Verifications {
		newID := uuid.NewString()
		result.VerificationIDs[v.ID] = newID

		_, err := tx.Exec(ctx, `
			INSERT INTO income_verifications (id, lease_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, newID, result.LeaseID, v.Status, v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("clone verification %s: %w", v.ID, err)
		}
	}

	// Relink documents to the copies. The superseded rows keep their data
	// but the verification work follows the live lease.
	for oldID, newID := range result.ResidentIDs {
		if _, err := tx.Exec(ctx,
			`UPDATE income_documents SET resident_id = $1, updated_at = NOW() WHERE resident_id = $2`,
			newID, oldID); err != nil {
			return nil, fmt.Errorf("relink documents for resident %s: %w", oldID, err)
		}
	}
	for oldID, newID := range result.VerificationIDs {
		if _, err := tx.Exec(ctx,
			`UPDATE income_documents SET verification_id = $1, updated_at = NOW() WHERE verification_id = $2`,
			newID, oldID); err != nil {
			return nil, fmt.Errorf("relink documents for verification %s: %w", oldID, err)
		}
	}

	return result, nil
}
