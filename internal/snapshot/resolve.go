package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lihtc-backend/internal/models"
)

// Match/discrepancy resolution actions.
const (
	ResolutionInherit        = "inherit"
	ResolutionDismiss        = "dismiss"
	ResolutionAcceptVerified = "accept_verified"
	ResolutionUseRentRoll    = "use_rent_roll"
)

// ResolveMatch applies an external actor's decision on an inheritance
// match. "inherit" carries the future lease's verified income (and its
// verification work) onto the new lease and marks the future lease
// processed; "dismiss" records that the two are unrelated and leaves the
// future lease live.
func (e *Engine) ResolveMatch(ctx context.Context, matchID, action string) error {
	if action != ResolutionInherit && action != ResolutionDismiss {
		return &ValidationError{Message: "action must be inherit or dismiss"}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var newLeaseID, futureLeaseID string
	var resolved bool
	err = tx.QueryRow(ctx, `
		SELECT new_lease_id, future_lease_id, resolved
		FROM future_lease_matches WHERE id = $1 FOR UPDATE
	`, matchID).Scan(&newLeaseID, &futureLeaseID, &resolved)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("snapshot: load match: %w", err)
	}
	if resolved {
		return ErrAlreadyResolved
	}

	if action == ResolutionInherit {
		if err := inheritVerifiedIncome(ctx, tx, futureLeaseID, newLeaseID); err != nil {
			return err
		}
		// The future lease is superseded; the prefix keeps it out of all
		// future-lease consideration without deleting history.
		if _, err := tx.Exec(ctx, `
			UPDATE leases SET name = $1 || name, updated_at = NOW()
			WHERE id = $2 AND name NOT LIKE $1 || '%'
		`, models.ProcessedPrefix, futureLeaseID); err != nil {
			return fmt.Errorf("snapshot: mark lease processed: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE future_lease_matches SET resolved = TRUE, resolution = $1 WHERE id = $2
	`, action, matchID); err != nil {
		return fmt.Errorf("snapshot: resolve match: %w", err)
	}

	return tx.Commit(ctx)
}

// inheritVerifiedIncome moves the verification work from a future lease to
// the new lease that superseded it. Residents match by case-insensitive
// trimmed name; verified names absent from the new lease are copied over
// (with no declared income — they were never on a rent roll).
func inheritVerifiedIncome(ctx context.Context, tx pgx.Tx, futureLeaseID, newLeaseID string) error {
	rows, err := tx.Query(ctx, `
		SELECT id, name, calculated_annualized_income, income_finalized, finalized_at, has_no_income, created_at
		FROM residents WHERE lease_id = $1
	`, futureLeaseID)
	if err != nil {
		return fmt.Errorf("snapshot: load future residents: %w", err)
	}
	defer rows.Close()

	var sources []residentRecord
	for rows.Next() {
		var r residentRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.CalculatedIncome, &r.IncomeFinalized,
			&r.FinalizedAt, &r.HasNoIncome, &r.CreatedAt); err != nil {
			return fmt.Errorf("snapshot: scan future resident: %w", err)
		}
		sources = append(sources, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, src := range sources {
		if !src.IncomeFinalized && !src.HasNoIncome {
			continue
		}

		var targetID string
		err := tx.QueryRow(ctx, `
			SELECT id FROM residents WHERE lease_id = $1 AND LOWER(TRIM(name)) = $2 LIMIT 1
		`, newLeaseID, normalizeName(src.Name)).Scan(&targetID)
		switch err {
		case nil:
			if _, err := tx.Exec(ctx, `
				UPDATE residents
				SET calculated_annualized_income = $1, income_finalized = $2,
					has_no_income = $3, finalized_at = COALESCE($4, NOW()), updated_at = NOW()
				WHERE id = $5
			`, src.CalculatedIncome, src.IncomeFinalized, src.HasNoIncome, src.FinalizedAt, targetID); err != nil {
				return fmt.Errorf("snapshot: inherit onto resident %s: %w", targetID, err)
			}
		case pgx.ErrNoRows:
			targetID = uuid.NewString()
			if _, err := tx.Exec(ctx, `
				INSERT INTO residents (id, lease_id, name, calculated_annualized_income,
					income_finalized, finalized_at, has_no_income, created_at)
				VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), $7, $8)
			`, targetID, newLeaseID, src.Name, src.CalculatedIncome,
				src.IncomeFinalized, src.FinalizedAt, src.HasNoIncome, src.CreatedAt); err != nil {
				return fmt.Errorf("snapshot: copy resident %q: %w", src.Name, err)
			}
		default:
			return fmt.Errorf("snapshot: match resident %q: %w", src.Name, err)
		}

		// Documents follow the resident; the files are never duplicated.
		if _, err := tx.Exec(ctx,
			`UPDATE income_documents SET resident_id = $1, updated_at = NOW() WHERE resident_id = $2`,
			targetID, src.ID); err != nil {
			return fmt.Errorf("snapshot: relink documents: %w", err)
		}
	}

	// The verification record itself moves onto the new lease.
	if _, err := tx.Exec(ctx,
		`UPDATE income_verifications SET lease_id = $1, updated_at = NOW() WHERE lease_id = $2`,
		newLeaseID, futureLeaseID); err != nil {
		return fmt.Errorf("snapshot: move verifications: %w", err)
	}
	return nil
}

// ResolveDiscrepancy applies a reconciliation decision on an income
// discrepancy. "accept_verified" locks the previously verified figure onto
// the new resident; "use_rent_roll" keeps the declared figure and leaves
// verification to run again from scratch.
func (e *Engine) ResolveDiscrepancy(ctx context.Context, discrepancyID, action string) error {
	if action != ResolutionAcceptVerified && action != ResolutionUseRentRoll {
		return &ValidationError{Message: "action must be accept_verified or use_rent_roll"}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var newResidentID string
	var verifiedIncome float64
	var resolved bool
	err = tx.QueryRow(ctx, `
		SELECT new_resident_id, verified_income, resolved
		FROM income_discrepancies WHERE id = $1 FOR UPDATE
	`, discrepancyID).Scan(&newResidentID, &verifiedIncome, &resolved)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("snapshot: load discrepancy: %w", err)
	}
	if resolved {
		return ErrAlreadyResolved
	}

	if action == ResolutionAcceptVerified {
		if _, err := tx.Exec(ctx, `
			UPDATE residents
			SET calculated_annualized_income = $1, income_finalized = TRUE,
				finalized_at = NOW(), updated_at = NOW()
			WHERE id = $2
		`, verifiedIncome, newResidentID); err != nil {
			return fmt.Errorf("snapshot: accept verified income: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE income_discrepancies SET resolved = TRUE, resolution = $1 WHERE id = $2
	`, action, discrepancyID); err != nil {
		return fmt.Errorf("snapshot: resolve discrepancy: %w", err)
	}

	return tx.Commit(ctx)
}
