package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"lihtc-backend/internal/database"
	"lihtc-backend/internal/models"
)

// ResidentHandler handles resident-related HTTP requests.
type ResidentHandler struct {
	db database.Service
}

// NewResidentHandler creates a new ResidentHandler.
func NewResidentHandler(db database.Service) *ResidentHandler {
	return &ResidentHandler{db: db}
}

const residentRetCols = `id, lease_id, name, annualized_income,
	calculated_annualized_income, income_finalized, finalized_at,
	has_no_income, created_at, updated_at`

// ── Finalize ───────────────────────────────────────────────────

// Finalize handles POST /api/residents/{id}/finalize — locks in the
// verified income figure. Once the whole household is settled the lease's
// verification workflow is advanced to FINALIZED.
func (h *ResidentHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Resident ID is required")
		return
	}

	var req models.FinalizeResidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if errs := req.Validate(); len(errs) > 0 {
		JSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "Validation failed",
			"details": errs,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	h.updateResident(ctx, w, id, func(ctx context.Context, tx pgx.Tx) (*models.Resident, error) {
		var res models.Resident
		err := tx.QueryRow(ctx, `
			UPDATE residents SET
				calculated_annualized_income = $1,
				income_finalized = TRUE,
				finalized_at = NOW(),
				has_no_income = FALSE,
				updated_at = NOW()
			WHERE id = $2
			RETURNING `+residentRetCols,
			req.CalculatedAnnualizedIncome, id,
		).Scan(
			&res.ID, &res.LeaseID, &res.Name,
			&res.AnnualizedIncome, &res.CalculatedAnnualizedIncome,
			&res.IncomeFinalized, &res.FinalizedAt, &res.HasNoIncome,
			&res.CreatedAt, &res.UpdatedAt,
		)
		return &res, err
	})
}

// ── Mark no income ─────────────────────────────────────────────

// MarkNoIncome handles POST /api/residents/{id}/no-income — records a
// verified zero-income state, which settles the resident without a
// dollar figure.
func (h *ResidentHandler) MarkNoIncome(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Resident ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	h.updateResident(ctx, w, id, func(ctx context.Context, tx pgx.Tx) (*models.Resident, error) {
		var res models.Resident
		err := tx.QueryRow(ctx, `
			UPDATE residents SET
				has_no_income = TRUE,
				calculated_annualized_income = NULL,
				income_finalized = FALSE,
				finalized_at = NOW(),
				updated_at = NOW()
			WHERE id = $1
			RETURNING `+residentRetCols, id,
		).Scan(
			&res.ID, &res.LeaseID, &res.Name,
			&res.AnnualizedIncome, &res.CalculatedAnnualizedIncome,
			&res.IncomeFinalized, &res.FinalizedAt, &res.HasNoIncome,
			&res.CreatedAt, &res.UpdatedAt,
		)
		return &res, err
	})
}

// ── Unfinalize ─────────────────────────────────────────────────

// Unfinalize handles POST /api/residents/{id}/unfinalize — reopens a
// settled resident, for example after a correcting document arrives.
func (h *ResidentHandler) Unfinalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Resident ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	h.updateResident(ctx, w, id, func(ctx context.Context, tx pgx.Tx) (*models.Resident, error) {
		var res models.Resident
		err := tx.QueryRow(ctx, `
			UPDATE residents SET
				income_finalized = FALSE,
				has_no_income = FALSE,
				finalized_at = NULL,
				updated_at = NOW()
			WHERE id = $1
			RETURNING `+residentRetCols, id,
		).Scan(
			&res.ID, &res.LeaseID, &res.Name,
			&res.AnnualizedIncome, &res.CalculatedAnnualizedIncome,
			&res.IncomeFinalized, &res.FinalizedAt, &res.HasNoIncome,
			&res.CreatedAt, &res.UpdatedAt,
		)
		return &res, err
	})
}

// updateResident runs the mutation in a transaction and then moves the
// lease's latest verification workflow to match the household state.
func (h *ResidentHandler) updateResident(
	ctx context.Context,
	w http.ResponseWriter,
	id string,
	mutate func(context.Context, pgx.Tx) (*models.Resident, error),
) {
	pool := h.db.GetPool()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Printf("Error starting transaction: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to update resident")
		return
	}
	defer tx.Rollback(ctx)

	res, err := mutate(ctx, tx)
	if err != nil {
		JSONError(w, http.StatusNotFound, "Resident not found")
		return
	}

	if err := syncVerificationStatus(ctx, tx, res.LeaseID); err != nil {
		log.Printf("Error syncing verification for lease %s: %v", res.LeaseID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to update resident")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing resident update: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to update resident")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": res})
}

// syncVerificationStatus advances the lease's most recent verification
// record: FINALIZED when every resident is settled, IN_PROGRESS when some
// are, NOT_STARTED when none are.
func syncVerificationStatus(ctx context.Context, tx pgx.Tx, leaseID string) error {
	var total, settled int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE income_finalized OR has_no_income)
		FROM residents WHERE lease_id = $1
	`, leaseID).Scan(&total, &settled)
	if err != nil {
		return err
	}

	status := models.VerificationNotStarted
	switch {
	case total > 0 && settled == total:
		status = models.VerificationFinalized
	case settled > 0:
		status = models.VerificationInProgress
	}

	_, err = tx.Exec(ctx, `
		UPDATE income_verifications SET status = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM income_verifications
			WHERE lease_id = $2
			ORDER BY created_at DESC
			LIMIT 1
		)
	`, status, leaseID)
	return err
}
