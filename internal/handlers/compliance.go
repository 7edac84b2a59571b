package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lihtc-backend/internal/database"
	"lihtc-backend/internal/models"
	"lihtc-backend/internal/snapshot"
)

// ComplianceHandler handles compliance-upload finalization and the
// decision prompts it produces.
type ComplianceHandler struct {
	db     database.Service
	engine *snapshot.Engine
}

// NewComplianceHandler creates a new ComplianceHandler.
func NewComplianceHandler(db database.Service, engine *snapshot.Engine) *ComplianceHandler {
	return &ComplianceHandler{db: db, engine: engine}
}

// ── Finalize ───────────────────────────────────────────────────

// Finalize handles POST /api/properties/{id}/compliance/finalize — the
// atomic snapshot transition for one property.
func (h *ComplianceHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	propertyID := chi.URLParam(r, "id")
	if propertyID == "" {
		JSONError(w, http.StatusBadRequest, "Property ID is required")
		return
	}

	var req models.FinalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	result, err := h.engine.Finalize(r.Context(), propertyID, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	JSON(w, http.StatusCreated, map[string]interface{}{"data": result})
}

// writeEngineError maps snapshot engine failures onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	var vErr *snapshot.ValidationError
	switch {
	case errors.Is(err, snapshot.ErrPropertyNotFound):
		JSONError(w, http.StatusNotFound, "Property not found")
	case errors.Is(err, snapshot.ErrNotFound):
		JSONError(w, http.StatusNotFound, "Record not found")
	case errors.Is(err, snapshot.ErrAlreadyResolved):
		JSONError(w, http.StatusConflict, "Already resolved")
	case errors.As(err, &vErr):
		payload := map[string]interface{}{"error": vErr.Message}
		if len(vErr.UnitNumbers) > 0 {
			payload["unitNumbers"] = vErr.UnitNumbers
		}
		if len(vErr.Fields) > 0 {
			payload["details"] = vErr.Fields
		}
		JSON(w, http.StatusUnprocessableEntity, payload)
	default:
		log.Printf("Compliance engine error: %v", err)
		JSONError(w, http.StatusInternalServerError, "Compliance operation failed")
	}
}

// ── Matches ────────────────────────────────────────────────────

// ListMatches handles GET /api/properties/{id}/matches?resolved=true|false
func (h *ComplianceHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	propertyID := chi.URLParam(r, "id")
	if propertyID == "" {
		JSONError(w, http.StatusBadRequest, "Property ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	query := `
		SELECT m.id, m.property_id, m.unit_number, m.new_lease_id,
			nl.lease_start_date::text, nl.lease_end_date::text,
			m.future_lease_id, fl.name, m.resolved, m.resolution, m.created_at
		FROM future_lease_matches m
		JOIN leases nl ON nl.id = m.new_lease_id
		JOIN leases fl ON fl.id = m.future_lease_id
		WHERE m.property_id = $1`
	switch r.URL.Query().Get("resolved") {
	case "true":
		query += ` AND m.resolved`
	case "false", "":
		query += ` AND NOT m.resolved`
	}
	query += ` ORDER BY m.created_at DESC`

	rows, err := pool.Query(ctx, query, propertyID)
	if err != nil {
		log.Printf("Error fetching matches for property %s: %v", propertyID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch matches")
		return
	}

	matches := []models.FutureLeaseMatch{}
	for rows.Next() {
		var m models.FutureLeaseMatch
		if err := rows.Scan(
			&m.ID, &m.PropertyID, &m.UnitNumber, &m.NewLeaseID,
			&m.NewLeaseStartDate, &m.NewLeaseEndDate,
			&m.FutureLeaseID, &m.FutureLeaseName, &m.Resolved, &m.Resolution, &m.CreatedAt,
		); err != nil {
			rows.Close()
			log.Printf("Error scanning match: %v", err)
			JSONError(w, http.StatusInternalServerError, "Failed to fetch matches")
			return
		}
		matches = append(matches, m)
	}
	rows.Close()

	// Attach each future lease's verified residents so the decision UI can
	// show what would be inherited.
	for i := range matches {
		residents, err := matchResidents(ctx, pool, matches[i].FutureLeaseID)
		if err != nil {
			log.Printf("Error fetching match residents: %v", err)
			JSONError(w, http.StatusInternalServerError, "Failed to fetch matches")
			return
		}
		matches[i].Residents = residents
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": matches})
}

// matchResidents loads the verified residents of a future lease for
// display in an inheritance-match prompt.
func matchResidents(ctx context.Context, pool *pgxpool.Pool, leaseID string) ([]models.MatchResident, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, name, COALESCE(calculated_annualized_income, 0)
		FROM residents
		WHERE lease_id = $1 AND income_finalized
		ORDER BY created_at ASC
	`, leaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	residents := []models.MatchResident{}
	for rows.Next() {
		var mr models.MatchResident
		if err := rows.Scan(&mr.ID, &mr.Name, &mr.VerifiedIncome); err != nil {
			return nil, err
		}
		residents = append(residents, mr)
	}
	return residents, rows.Err()
}

// ResolveMatch handles POST /api/matches/{id}/resolve
func (h *ComplianceHandler) ResolveMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Match ID is required")
		return
	}

	var req models.ResolveMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.engine.ResolveMatch(r.Context(), id, req.Action); err != nil {
		writeEngineError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"message": "Match resolved", "resolution": req.Action})
}

// ── Discrepancies ──────────────────────────────────────────────

// ListDiscrepancies handles GET /api/properties/{id}/discrepancies
func (h *ComplianceHandler) ListDiscrepancies(w http.ResponseWriter, r *http.Request) {
	propertyID := chi.URLParam(r, "id")
	if propertyID == "" {
		JSONError(w, http.StatusBadRequest, "Property ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	query := `
		SELECT id, property_id, unit_number, resident_name, verified_income,
			new_rent_roll_income, discrepancy, existing_lease_id, new_lease_id,
			existing_resident_id, new_resident_id, resolved, resolution, created_at
		FROM income_discrepancies
		WHERE property_id = $1`
	switch r.URL.Query().Get("resolved") {
	case "true":
		query += ` AND resolved`
	case "false", "":
		query += ` AND NOT resolved`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := h.db.GetPool().Query(ctx, query, propertyID)
	if err != nil {
		log.Printf("Error fetching discrepancies for property %s: %v", propertyID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch discrepancies")
		return
	}
	defer rows.Close()

	discrepancies := []models.IncomeDiscrepancy{}
	for rows.Next() {
		var d models.IncomeDiscrepancy
		if err := rows.Scan(
			&d.ID, &d.PropertyID, &d.UnitNumber, &d.ResidentName, &d.VerifiedIncome,
			&d.NewRentRollIncome, &d.Discrepancy, &d.ExistingLeaseID, &d.NewLeaseID,
			&d.ExistingResidentID, &d.NewResidentID, &d.Resolved, &d.Resolution, &d.CreatedAt,
		); err != nil {
			log.Printf("Error scanning discrepancy: %v", err)
			continue
		}
		discrepancies = append(discrepancies, d)
	}

	JSON(w, http.StatusOK, map[string]interface{}{"data": discrepancies})
}

// ResolveDiscrepancy handles POST /api/discrepancies/{id}/resolve
func (h *ComplianceHandler) ResolveDiscrepancy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		JSONError(w, http.StatusBadRequest, "Discrepancy ID is required")
		return
	}

	var req models.ResolveDiscrepancyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.engine.ResolveDiscrepancy(r.Context(), id, req.Action); err != nil {
		writeEngineError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]string{"message": "Discrepancy resolved", "resolution": req.Action})
}
