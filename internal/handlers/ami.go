package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lihtc-backend/internal/cron"
	"lihtc-backend/internal/database"
	"lihtc-backend/internal/hud"
	"lihtc-backend/internal/income"
)

// AmiHandler serves AMI compliance reports and manual bucket refreshes.
type AmiHandler struct {
	db        database.Service
	hud       *hud.Client
	refresher *cron.AmiRefresher
}

// NewAmiHandler creates a new AmiHandler.
func NewAmiHandler(db database.Service, client *hud.Client, refresher *cron.AmiRefresher) *AmiHandler {
	return &AmiHandler{db: db, hud: client, refresher: refresher}
}

// amiUnitRow is one unit line in the AMI report.
type amiUnitRow struct {
	UnitID         string   `json:"unitId"`
	UnitNumber     string   `json:"unitNumber"`
	Bedrooms       *int     `json:"bedrooms,omitempty"`
	Bucket         string   `json:"bucket"`
	VerifiedIncome *float64 `json:"verifiedIncome,omitempty"`
	ResidentCount  int      `json:"residentCount"`
}

// maxRentRow is the maximum allowable rent for one bedroom count at one
// AMI threshold.
type maxRentRow struct {
	AMIPercent int     `json:"amiPercent"`
	Bedrooms   int     `json:"bedrooms"`
	MaxRent    float64 `json:"maxRent"`
}

// ── Report ─────────────────────────────────────────────────────

// Report handles GET /api/properties/{id}/ami-report — the per-unit AMI
// bucket assignment plus the max-rent table for the property's set-asides.
// Buckets are computed live here; the cached table only feeds unit lists.
func (h *AmiHandler) Report(w http.ResponseWriter, r *http.Request) {
	propertyID := chi.URLParam(r, "id")
	if propertyID == "" {
		JSONError(w, http.StatusBadRequest, "Property ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var county, state, complianceOption string
	var placedInService, uploadDate *string
	err := pool.QueryRow(ctx, `
		SELECT p.county, p.state, p.compliance_option, p.placed_in_service_date::text,
			s.upload_date::text
		FROM properties p
		LEFT JOIN rent_roll_snapshots s ON s.property_id = p.id AND s.is_active
		WHERE p.id = $1
	`, propertyID).Scan(&county, &state, &complianceOption, &placedInService, &uploadDate)
	if err != nil {
		JSONError(w, http.StatusNotFound, "Property not found")
		return
	}

	year := time.Now().Year()
	if uploadDate != nil && len(*uploadDate) >= 4 {
		if y, convErr := strconv.Atoi((*uploadDate)[:4]); convErr == nil {
			year = y
		}
	}

	limits, hudErr := h.hud.Limits(ctx, county, state, year, placedInService)
	if hudErr != nil {
		log.Printf("AMI report: HUD limits for %s, %s: %v", county, state, hudErr)
		limits = nil
	}

	setAsides := income.ParseComplianceOption(complianceOption)

	units, err := h.unitRows(ctx, propertyID, limits, complianceOption)
	if err != nil {
		log.Printf("AMI report: units for property %s: %v", propertyID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to build AMI report")
		return
	}

	// Max-rent grid: each set-aside threshold by bedroom count 0–4.
	maxRents := []maxRentRow{}
	if len(limits) > 0 {
		for _, sa := range setAsides {
			for bedrooms := 0; bedrooms <= 4; bedrooms++ {
				rent := income.MaxRent(limits, sa.AMIPercent, bedrooms)
				if rent <= 0 {
					continue
				}
				maxRents = append(maxRents, maxRentRow{
					AMIPercent: sa.AMIPercent,
					Bedrooms:   bedrooms,
					MaxRent:    rent,
				})
			}
		}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"propertyId":   propertyID,
			"year":         year,
			"hudAvailable": len(limits) > 0,
			"setAsides":    setAsides,
			"units":        units,
			"maxRents":     maxRents,
		},
	})
}

// unitRows computes a live bucket per unit from its current household.
func (h *AmiHandler) unitRows(ctx context.Context, propertyID string, limits hud.LimitTable, complianceOption string) ([]amiUnitRow, error) {
	pool := h.db.GetPool()

	rows, err := pool.Query(ctx, `
		SELECT id, unit_number, bedrooms FROM units
		WHERE property_id = $1 ORDER BY unit_number ASC
	`, propertyID)
	if err != nil {
		return nil, err
	}
	units := []amiUnitRow{}
	for rows.Next() {
		var u amiUnitRow
		if err := rows.Scan(&u.UnitID, &u.UnitNumber, &u.Bedrooms); err != nil {
			rows.Close()
			return nil, err
		}
		units = append(units, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range units {
		leaseID, err := currentLeaseID(ctx, pool, units[i].UnitID)
		if err != nil {
			return nil, err
		}
		if leaseID == nil {
			units[i].Bucket = income.BucketNoIncome
			continue
		}
		residents, err := leaseResidents(ctx, pool, *leaseID)
		if err != nil {
			return nil, err
		}
		units[i].ResidentCount = len(residents)
		units[i].VerifiedIncome = verifiedIncomeTotal(residents)

		var total float64
		if units[i].VerifiedIncome != nil {
			total = *units[i].VerifiedIncome
		}
		units[i].Bucket = income.ActualAmiBucket(total, len(residents), limits, complianceOption)
	}
	return units, nil
}

// ── Refresh ────────────────────────────────────────────────────

// Refresh handles POST /api/properties/{id}/ami-refresh — recomputes the
// cached buckets for one property on demand.
func (h *AmiHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	propertyID := chi.URLParam(r, "id")
	if propertyID == "" {
		JSONError(w, http.StatusBadRequest, "Property ID is required")
		return
	}

	n, err := h.refresher.RefreshProperty(r.Context(), propertyID)
	if err != nil {
		log.Printf("AMI refresh for property %s: %v", propertyID, err)
		JSONError(w, http.StatusInternalServerError, "Failed to refresh AMI buckets")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"unitsUpdated": n},
	})
}
