package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lihtc-backend/internal/database"
	"lihtc-backend/internal/models"
)

// PropertyHandler handles property-related HTTP requests.
type PropertyHandler struct {
	db database.Service
}

// NewPropertyHandler creates a new PropertyHandler.
func NewPropertyHandler(db database.Service) *PropertyHandler {
	return &PropertyHandler{db: db}
}

// ── Columns ────────────────────────────────────────────────────
// Central column lists keep Create/GetByID/List in sync.

const propertyCols = `p.id, p.name, p.county, p.state, p.compliance_option,
	p.placed_in_service_date::text, p.created_at, p.updated_at`

const propertyRetCols = `id, name, county, state, compliance_option,
	placed_in_service_date::text, created_at, updated_at`

// ── List ───────────────────────────────────────────────────────

// List handles GET /api/properties
func (h *PropertyHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	rows, err := pool.Query(ctx, `
		SELECT `+propertyCols+`,
			(SELECT COUNT(*) FROM units u WHERE u.property_id = p.id) AS unit_count,
			s.id, s.upload_date::text,
			(SELECT COUNT(*) FROM future_lease_matches m WHERE m.property_id = p.id AND NOT m.resolved),
			(SELECT COUNT(*) FROM income_discrepancies d WHERE d.property_id = p.id AND NOT d.resolved)
		FROM properties p
		LEFT JOIN rent_roll_snapshots s ON s.property_id = p.id AND s.is_active
		ORDER BY p.name ASC
	`)
	if err != nil {
		log.Printf("Error fetching properties: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch properties")
		return
	}
	defer rows.Close()

	properties := []models.PropertyWithStats{}
	for rows.Next() {
		var p models.PropertyWithStats
		if err := rows.Scan(
			&p.ID, &p.Name, &p.County, &p.State, &p.ComplianceOption,
			&p.PlacedInServiceDate, &p.CreatedAt, &p.UpdatedAt,
			&p.UnitCount, &p.ActiveSnapshotID, &p.ActiveSnapshotDate,
			&p.OpenMatches, &p.OpenDiscrepancies,
		); err != nil {
			log.Printf("Error scanning property: %v", err)
			continue
		}
		properties = append(properties, p)
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": properties})
}

// ── Create ─────────────────────────────────────────────────────

// Create handles POST /api/properties
func (h *PropertyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePropertyRequest
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

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var property models.Property
	err := pool.QueryRow(ctx, `
		INSERT INTO properties (name, county, state, compliance_option, placed_in_service_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+propertyRetCols,
		req.Name, req.County, req.State, req.ComplianceOption, req.PlacedInServiceDate,
	).Scan(
		&property.ID, &property.Name, &property.County, &property.State,
		&property.ComplianceOption, &property.PlacedInServiceDate,
		&property.CreatedAt, &property.UpdatedAt,
	)
	if err != nil {
		log.Printf("Error creating property: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to create property")
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{"data": property})
}

// ── GetByID ────────────────────────────────────────────────────

// GetByID handles GET /api/properties/{id}
func (h *PropertyHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Property ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var property models.Property
	err := pool.QueryRow(ctx,
		`SELECT `+propertyCols+` FROM properties p WHERE p.id = $1`, id,
	).Scan(
		&property.ID, &property.Name, &property.County, &property.State,
		&property.ComplianceOption, &property.PlacedInServiceDate,
		&property.CreatedAt, &property.UpdatedAt,
	)
	if err != nil {
		JSONError(w, http.StatusNotFound, "Property not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": property})
}

// ── Update ─────────────────────────────────────────────────────

// Update handles PUT /api/properties/{id} — partial update via COALESCE.
func (h *PropertyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Property ID is required")
		return
	}

	var req models.UpdatePropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var property models.Property
	err := pool.QueryRow(ctx, `
		UPDATE properties SET
			name = COALESCE($1, name),
			county = COALESCE($2, county),
			state = COALESCE($3, state),
			compliance_option = COALESCE($4, compliance_option),
			placed_in_service_date = COALESCE($5::date, placed_in_service_date),
			updated_at = NOW()
		WHERE id = $6
		RETURNING `+propertyRetCols,
		req.Name, req.County, req.State, req.ComplianceOption, req.PlacedInServiceDate, id,
	).Scan(
		&property.ID, &property.Name, &property.County, &property.State,
		&property.ComplianceOption, &property.PlacedInServiceDate,
		&property.CreatedAt, &property.UpdatedAt,
	)
	if err != nil {
		log.Printf("Error updating property %s: %v", id, err)
		JSONError(w, http.StatusNotFound, "Property not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": property})
}

// ── Delete ─────────────────────────────────────────────────────

// Delete handles DELETE /api/properties/{id}
// Cascades to units, snapshots, leases, residents and documents.
func (h *PropertyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Property ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	tag, err := h.db.GetPool().Exec(ctx, `DELETE FROM properties WHERE id = $1`, id)
	if err != nil {
		log.Printf("Error deleting property %s: %v", id, err)
		JSONError(w, http.StatusInternalServerError, "Failed to delete property")
		return
	}
	if tag.RowsAffected() == 0 {
		JSONError(w, http.StatusNotFound, "Property not found")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"message": "Property deleted"})
}
