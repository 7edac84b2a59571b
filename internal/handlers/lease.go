package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"lihtc-backend/internal/database"
	"lihtc-backend/internal/models"
	"lihtc-backend/internal/verification"
)

// LeaseHandler handles lease-related HTTP requests.
type LeaseHandler struct {
	db database.Service
}

// NewLeaseHandler creates a new LeaseHandler.
func NewLeaseHandler(db database.Service) *LeaseHandler {
	return &LeaseHandler{db: db}
}

const leaseCols = `l.id, l.unit_id, l.name, l.lease_start_date::text,
	l.lease_end_date::text, l.lease_rent, l.created_at, l.updated_at`

// ── List ───────────────────────────────────────────────────────

// ListByUnit handles GET /api/units/{id}/leases — every lease on the unit,
// newest first, processed leases included so history stays visible.
func (h *LeaseHandler) ListByUnit(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "id")
	if unitID == "" {
		JSONError(w, http.StatusBadRequest, "Unit ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.db.GetPool().Query(ctx, `
		SELECT `+leaseCols+`
		FROM leases l
		WHERE l.unit_id = $1
		ORDER BY l.created_at DESC
	`, unitID)
	if err != nil {
		log.Printf("Error fetching leases for unit %s: %v", unitID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch leases")
		return
	}
	defer rows.Close()

	leases := []models.Lease{}
	for rows.Next() {
		var l models.Lease
		if err := rows.Scan(
			&l.ID, &l.UnitID, &l.Name, &l.LeaseStartDate, &l.LeaseEndDate,
			&l.LeaseRent, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			log.Printf("Error scanning lease: %v", err)
			continue
		}
		leases = append(leases, l)
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": leases})
}

// ── Create ─────────────────────────────────────────────────────

// Create handles POST /api/units/{id}/leases — records a manually-entered
// future lease with its residents and a fresh verification workflow. The
// lease is born with a NULL snapshot_id; the next finalize adopts it.
func (h *LeaseHandler) Create(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "id")
	if unitID == "" {
		JSONError(w, http.StatusBadRequest, "Unit ID is required")
		return
	}

	var req models.CreateLeaseRequest
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

	pool := h.db.GetPool()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM units WHERE id = $1)`, unitID).Scan(&exists); err != nil || !exists {
		JSONError(w, http.StatusNotFound, "Unit not found")
		return
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Printf("Error starting transaction: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create lease")
		return
	}
	defer tx.Rollback(ctx)

	leaseID := uuid.NewString()
	var lease models.Lease
	err = tx.QueryRow(ctx, `
		INSERT INTO leases (id, unit_id, name, lease_start_date, lease_end_date, lease_rent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, unit_id, name, lease_start_date::text, lease_end_date::text,
			lease_rent, created_at, updated_at
	`, leaseID, unitID, req.Name, req.LeaseStartDate, req.LeaseEndDate, req.LeaseRent,
	).Scan(
		&lease.ID, &lease.UnitID, &lease.Name, &lease.LeaseStartDate,
		&lease.LeaseEndDate, &lease.LeaseRent, &lease.CreatedAt, &lease.UpdatedAt,
	)
	if err != nil {
		log.Printf("Error inserting lease: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create lease")
		return
	}

	// Residents on a manual lease carry no rent-roll income baseline.
	residents := make([]models.Resident, 0, len(req.Residents))
	for _, name := range req.Residents {
		var res models.Resident
		err = tx.QueryRow(ctx, `
			INSERT INTO residents (id, lease_id, name)
			VALUES ($1, $2, $3)
			RETURNING id, lease_id, name, annualized_income, calculated_annualized_income,
				income_finalized, finalized_at, has_no_income, created_at, updated_at
		`, uuid.NewString(), leaseID, name,
		).Scan(
			&res.ID, &res.LeaseID, &res.Name,
			&res.AnnualizedIncome, &res.CalculatedAnnualizedIncome,
			&res.IncomeFinalized, &res.FinalizedAt, &res.HasNoIncome,
			&res.CreatedAt, &res.UpdatedAt,
		)
		if err != nil {
			log.Printf("Error inserting resident: %v", err)
			JSONError(w, http.StatusInternalServerError, "Failed to create lease")
			return
		}
		residents = append(residents, res)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO income_verifications (id, lease_id, status) VALUES ($1, $2, $3)
	`, uuid.NewString(), leaseID, models.VerificationNotStarted)
	if err != nil {
		log.Printf("Error inserting verification: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create lease")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		log.Printf("Error committing lease create: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create lease")
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"lease":     lease,
			"residents": residents,
		},
	})
}

// ── GetByID ────────────────────────────────────────────────────

// GetByID handles GET /api/leases/{id} with unit and property context,
// residents and documents included.
func (h *LeaseHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Lease ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var lease models.LeaseWithUnit
	err := pool.QueryRow(ctx, `
		SELECT `+leaseCols+`, u.unit_number, u.property_id, p.name
		FROM leases l
		JOIN units u ON u.id = l.unit_id
		JOIN properties p ON p.id = u.property_id
		WHERE l.id = $1
	`, id).Scan(
		&lease.ID, &lease.UnitID, &lease.Name, &lease.LeaseStartDate,
		&lease.LeaseEndDate, &lease.LeaseRent, &lease.CreatedAt, &lease.UpdatedAt,
		&lease.UnitNumber, &lease.PropertyID, &lease.PropertyName,
	)
	if err != nil {
		JSONError(w, http.StatusNotFound, "Lease not found")
		return
	}

	residents, err := leaseResidents(ctx, pool, id)
	if err != nil {
		log.Printf("Error fetching residents for lease %s: %v", id, err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch lease")
		return
	}
	documents, err := leaseDocuments(ctx, pool, id)
	if err != nil {
		log.Printf("Error fetching documents for lease %s: %v", id, err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch lease")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"lease":     lease,
			"residents": residents,
			"documents": documents,
			"status":    verification.LeaseStatus(residents, documents),
		},
	})
}

// ── Status ─────────────────────────────────────────────────────

// Status handles GET /api/leases/{id}/status
func (h *LeaseHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Lease ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leases WHERE id = $1)`, id).Scan(&exists); err != nil || !exists {
		JSONError(w, http.StatusNotFound, "Lease not found")
		return
	}

	status, residents, err := deriveLeaseStatus(ctx, pool, id)
	if err != nil {
		log.Printf("Error deriving status for lease %s: %v", id, err)
		JSONError(w, http.StatusInternalServerError, "Failed to derive lease status")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"status":         status,
			"residentCount":  len(residents),
			"verifiedIncome": verifiedIncomeTotal(residents),
			"blocking":       verification.Blocking(status),
		},
	})
}
