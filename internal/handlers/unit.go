package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lihtc-backend/internal/database"
	"lihtc-backend/internal/models"
	"lihtc-backend/internal/verification"
)

// UnitHandler handles unit-related HTTP requests.
type UnitHandler struct {
	db database.Service
}

// NewUnitHandler creates a new UnitHandler.
func NewUnitHandler(db database.Service) *UnitHandler {
	return &UnitHandler{db: db}
}

// ── List ───────────────────────────────────────────────────────

// ListByProperty handles GET /api/properties/{id}/units
// Each unit carries its derived verification status and the cached AMI
// bucket from the last out-of-band refresh.
func (h *UnitHandler) ListByProperty(w http.ResponseWriter, r *http.Request) {
	propertyID := chi.URLParam(r, "id")
	if propertyID == "" {
		JSONError(w, http.StatusBadRequest, "Property ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	rows, err := pool.Query(ctx, `
		SELECT u.id, u.property_id, u.unit_number, u.bedrooms, u.created_at, b.bucket
		FROM units u
		LEFT JOIN unit_ami_buckets b ON b.unit_id = u.id
		WHERE u.property_id = $1
		ORDER BY u.unit_number ASC
	`, propertyID)
	if err != nil {
		log.Printf("Error fetching units for property %s: %v", propertyID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch units")
		return
	}

	units := []models.UnitWithStatus{}
	for rows.Next() {
		var u models.UnitWithStatus
		if err := rows.Scan(&u.ID, &u.PropertyID, &u.UnitNumber, &u.Bedrooms, &u.CreatedAt, &u.AmiBucket); err != nil {
			rows.Close()
			log.Printf("Error scanning unit: %v", err)
			JSONError(w, http.StatusInternalServerError, "Failed to fetch units")
			return
		}
		units = append(units, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		log.Printf("Error iterating units: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch units")
		return
	}

	// Derive each unit's status from its current lease.
	for i := range units {
		leaseID, err := currentLeaseID(ctx, pool, units[i].ID)
		if err != nil {
			log.Printf("Error resolving current lease for unit %s: %v", units[i].ID, err)
			JSONError(w, http.StatusInternalServerError, "Failed to derive unit status")
			return
		}
		if leaseID == nil {
			units[i].Status = verification.StatusVacant
			continue
		}
		status, residents, err := deriveLeaseStatus(ctx, pool, *leaseID)
		if err != nil {
			log.Printf("Error deriving status for unit %s: %v", units[i].ID, err)
			JSONError(w, http.StatusInternalServerError, "Failed to derive unit status")
			return
		}
		units[i].Status = status
		units[i].CurrentLeaseID = leaseID
		units[i].ResidentCount = len(residents)
		units[i].VerifiedIncome = verifiedIncomeTotal(residents)
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": units})
}

// ── Status ─────────────────────────────────────────────────────

// Status handles GET /api/units/{id}/status — the derived verification
// status of the unit's current lease, alone.
func (h *UnitHandler) Status(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "id")
	if unitID == "" {
		JSONError(w, http.StatusBadRequest, "Unit ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM units WHERE id = $1)`, unitID).Scan(&exists); err != nil || !exists {
		JSONError(w, http.StatusNotFound, "Unit not found")
		return
	}

	leaseID, err := currentLeaseID(ctx, pool, unitID)
	if err != nil {
		log.Printf("Error resolving current lease for unit %s: %v", unitID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to derive unit status")
		return
	}
	if leaseID == nil {
		JSON(w, http.StatusOK, map[string]interface{}{
			"data": map[string]interface{}{"status": verification.StatusVacant},
		})
		return
	}

	status, residents, err := deriveLeaseStatus(ctx, pool, *leaseID)
	if err != nil {
		log.Printf("Error deriving status for unit %s: %v", unitID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to derive unit status")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"status":         status,
			"currentLeaseId": leaseID,
			"residentCount":  len(residents),
			"verifiedIncome": verifiedIncomeTotal(residents),
			"blocking":       verification.Blocking(status),
		},
	})
}
