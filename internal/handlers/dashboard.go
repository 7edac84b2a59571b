package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"lihtc-backend/internal/database"
	"lihtc-backend/internal/models"
	"lihtc-backend/internal/verification"
)

// DashboardHandler serves portfolio-level rollups and exports.
type DashboardHandler struct {
	db database.Service
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(db database.Service) *DashboardHandler {
	return &DashboardHandler{db: db}
}

// ── Metrics ────────────────────────────────────────────────────

// Metrics handles GET /api/dashboard — portfolio-wide counts plus a
// per-unit status breakdown. Statuses are derived on the fly, so this is
// the most expensive read in the service; the 30s budget reflects that.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var m models.DashboardMetrics
	err := pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM properties),
			(SELECT COUNT(*) FROM units),
			(SELECT COUNT(*) FROM future_lease_matches WHERE NOT resolved),
			(SELECT COUNT(*) FROM income_discrepancies WHERE NOT resolved)
	`).Scan(&m.TotalProperties, &m.TotalUnits, &m.OpenMatches, &m.OpenDiscrepancies)
	if err != nil {
		log.Printf("Error fetching dashboard counts: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch dashboard metrics")
		return
	}

	statusCounts, err := h.statusBreakdown(ctx, "")
	if err != nil {
		log.Printf("Error deriving dashboard statuses: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to fetch dashboard metrics")
		return
	}

	breakdown := []models.PropertyStatusCount{}
	for status, count := range statusCounts {
		breakdown = append(breakdown, models.PropertyStatusCount{Status: status, Count: count})
		switch status {
		case verification.StatusVerified:
			m.VerifiedUnits += count
		case verification.StatusInProgress:
			m.InProgressUnits += count
		case verification.StatusVacant:
			m.VacantUnits += count
		default:
			// everything else needs a human
			m.NeedsReviewUnits += count
		}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"metrics":   m,
			"breakdown": breakdown,
		},
	})
}

// statusBreakdown derives the verification status for every unit,
// optionally scoped to one property, and tallies by status.
func (h *DashboardHandler) statusBreakdown(ctx context.Context, propertyID string) (map[string]int, error) {
	pool := h.db.GetPool()

	query := `SELECT id FROM units`
	args := []interface{}{}
	if propertyID != "" {
		query += ` WHERE property_id = $1`
		args = append(args, propertyID)
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	unitIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			unitIDs = append(unitIDs, id)
		}
	}
	rows.Close()

	counts := map[string]int{}
	for _, unitID := range unitIDs {
		leaseID, err := currentLeaseID(ctx, pool, unitID)
		if err != nil {
			return nil, err
		}
		if leaseID == nil {
			counts[verification.StatusVacant]++
			continue
		}
		status, _, err := deriveLeaseStatus(ctx, pool, *leaseID)
		if err != nil {
			return nil, err
		}
		counts[status]++
	}
	return counts, nil
}

// ── Property report export ─────────────────────────────────────

// PropertyReport handles GET /api/properties/{id}/report.csv — a unit-by-
// unit compliance export for auditors.
func (h *DashboardHandler) PropertyReport(w http.ResponseWriter, r *http.Request) {
	propertyID := chi.URLParam(r, "id")
	if propertyID == "" {
		JSONError(w, http.StatusBadRequest, "Property ID is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	pool := h.db.GetPool()

	var propertyName string
	if err := pool.QueryRow(ctx, `SELECT name FROM properties WHERE id = $1`, propertyID).Scan(&propertyName); err != nil {
		JSONError(w, http.StatusNotFound, "Property not found")
		return
	}

	rows, err := pool.Query(ctx, `
		SELECT u.id, u.unit_number, b.bucket
		FROM units u
		LEFT JOIN unit_ami_buckets b ON b.unit_id = u.id
		WHERE u.property_id = $1
		ORDER BY u.unit_number ASC
	`, propertyID)
	if err != nil {
		log.Printf("Error fetching units for report: %v", err)
		JSONError(w, http.StatusInternalServerError, "Failed to build report")
		return
	}

	type reportUnit struct {
		id, number string
		bucket     *string
	}
	units := []reportUnit{}
	for rows.Next() {
		var u reportUnit
		if err := rows.Scan(&u.id, &u.number, &u.bucket); err == nil {
			units = append(units, u)
		}
	}
	rows.Close()

	var sb strings.Builder
	sb.WriteString("unit_number,status,resident_count,declared_income,verified_income,ami_bucket\n")

	for _, u := range units {
		leaseID, err := currentLeaseID(ctx, pool, u.id)
		if err != nil {
			log.Printf("Error resolving current lease for report unit %s: %v", u.id, err)
			JSONError(w, http.StatusInternalServerError, "Failed to build report")
			return
		}

		status := verification.StatusVacant
		residentCount := 0
		declared, verified := "", ""
		if leaseID != nil {
			s, residents, err := deriveLeaseStatus(ctx, pool, *leaseID)
			if err != nil {
				log.Printf("Error deriving status for report unit %s: %v", u.id, err)
				JSONError(w, http.StatusInternalServerError, "Failed to build report")
				return
			}
			status = s
			residentCount = len(residents)

			var declaredTotal float64
			hasDeclared := false
			for _, res := range residents {
				if res.AnnualizedIncome != nil {
					declaredTotal += *res.AnnualizedIncome
					hasDeclared = true
				}
			}
			if hasDeclared {
				declared = fmt.Sprintf("%.2f", declaredTotal)
			}
			if v := verifiedIncomeTotal(residents); v != nil {
				verified = fmt.Sprintf("%.2f", *v)
			}
		}

		bucket := ""
		if u.bucket != nil {
			bucket = *u.bucket
		}

		sb.WriteString(fmt.Sprintf("%s,%s,%d,%s,%s,%s\n",
			csvEscape(u.number), status, residentCount, declared, verified, csvEscape(bucket)))
	}

	filename := strings.ReplaceAll(strings.ToLower(propertyName), " ", "_") + "_compliance.csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(sb.String()))
}
