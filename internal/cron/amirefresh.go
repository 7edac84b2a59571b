// Package cron runs the background AMI-bucket refresh. Buckets depend on
// an external HUD API, so they are computed out-of-band and cached rather
// than derived on every unit read like verification statuses are.
package cron

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"lihtc-backend/internal/database"
	"lihtc-backend/internal/hud"
	"lihtc-backend/internal/income"
)

// AmiRefresher recomputes the cached AMI bucket for every unit, on a
// schedule and on demand after a compliance finalize.
type AmiRefresher struct {
	db       database.Service
	hud      *hud.Client
	interval time.Duration
}

// NewAmiRefresher creates an AmiRefresher.
func NewAmiRefresher(db database.Service, client *hud.Client, interval time.Duration) *AmiRefresher {
	return &AmiRefresher{db: db, hud: client, interval: interval}
}

// Start runs the refresh loop until the context is cancelled. One pass
// runs immediately at boot so fresh deployments don't wait a full
// interval for buckets.
func (a *AmiRefresher) Start(ctx context.Context) {
	log.Printf("AMI refresh job started (interval %s)", a.interval)
	a.RefreshAll(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("AMI refresh job stopped")
			return
		case <-ticker.C:
			a.RefreshAll(ctx)
		}
	}
}

// RefreshAll refreshes every property. Failures are logged and skipped —
// a HUD outage must never take the loop down.
func (a *AmiRefresher) RefreshAll(ctx context.Context) {
	rows, err := a.db.GetPool().Query(ctx, `SELECT id FROM properties`)
	if err != nil {
		log.Printf("AMI refresh: listing properties: %v", err)
		return
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	rows.Close()

	for _, id := range ids {
		n, err := a.RefreshProperty(ctx, id)
		if err != nil {
			log.Printf("AMI refresh: property %s: %v", id, err)
			continue
		}
		log.Printf("AMI refresh: property %s: %d units updated", id, n)
	}
}

// RefreshProperty recomputes and caches the bucket for every unit of one
// property. Returns the number of units written.
func (a *AmiRefresher) RefreshProperty(ctx context.Context, propertyID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	pool := a.db.GetPool()

	var county, state, complianceOption string
	var placedInService *string
	err := pool.QueryRow(ctx, `
		SELECT county, state, compliance_option, placed_in_service_date::text
		FROM properties WHERE id = $1
	`, propertyID).Scan(&county, &state, &complianceOption, &placedInService)
	if err != nil {
		return 0, err
	}

	limits, hudErr := a.hud.Limits(ctx, county, state, limitYear(ctx, a.db, propertyID), placedInService)
	if hudErr != nil {
		log.Printf("AMI refresh: HUD limits for %s, %s: %v", county, state, hudErr)
		limits = nil // buckets fall back to the unavailable sentinel
	}

	rows, err := pool.Query(ctx, `
		SELECT id FROM units WHERE property_id = $1 ORDER BY unit_number ASC
	`, propertyID)
	if err != nil {
		return 0, err
	}
	unitIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			unitIDs = append(unitIDs, id)
		}
	}
	rows.Close()

	written := 0
	for _, unitID := range unitIDs {
		total, count, err := currentHousehold(ctx, pool, unitID)
		if err != nil {
			return written, err
		}

		bucket := income.ActualAmiBucket(total, count, limits, complianceOption)
		_, err = pool.Exec(ctx, `
			INSERT INTO unit_ami_buckets (unit_id, bucket, computed_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (unit_id) DO UPDATE SET bucket = EXCLUDED.bucket, computed_at = NOW()
		`, unitID, bucket)
		if err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// rowQuerier is the single-row query surface of *pgxpool.Pool.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// currentHousehold returns the total finalized income and resident count
// for the unit's current lease. Only pgx.ErrNoRows maps to a vacant unit
// (zero of both); any other query failure propagates.
func currentHousehold(ctx context.Context, q rowQuerier, unitID string) (float64, int, error) {
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
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}

	var total float64
	var count int
	err = q.QueryRow(ctx, `
		SELECT COALESCE(SUM(calculated_annualized_income) FILTER (WHERE income_finalized), 0),
			COUNT(*)
		FROM residents WHERE lease_id = $1
	`, leaseID).Scan(&total, &count)
	if err != nil {
		return 0, 0, err
	}
	return total, count, nil
}

// limitYear picks the AMI table year: the active snapshot's rent roll year
// when one exists, the current year otherwise.
func limitYear(ctx context.Context, db database.Service, propertyID string) int {
	var uploadDate string
	err := db.GetPool().QueryRow(ctx, `
		SELECT upload_date::text FROM rent_roll_snapshots
		WHERE property_id = $1 AND is_active
	`, propertyID).Scan(&uploadDate)
	if err == nil && len(uploadDate) >= 4 {
		if y, convErr := strconv.Atoi(uploadDate[:4]); convErr == nil {
			return y
		}
	}
	return time.Now().Year()
}
