package snapshot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// futureLease pairs a loaded future-lease graph with where it came from.
// ownedBySnapshot leases are deep-copied on finalize (the old snapshot
// keeps its rows); snapshotless leases are adopted in place. liveID is
// the ID of whichever row carries the lease forward.
type futureLease struct {
	lease           futureLeaseRecord
	ownedBySnapshot bool
	liveID          string
}

func loadUnits(ctx context.Context, tx pgx.Tx, propertyID string) (map[string]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT unit_number, id FROM units WHERE property_id = $1`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load units: %w", err)
	}
	defer rows.Close()

	units := make(map[string]string)
	for rows.Next() {
		var number, id string
		if err := rows.Scan(&number, &id); err != nil {
			return nil, fmt.Errorf("snapshot: scan unit: %w", err)
		}
		units[number] = id
	}
	return units, rows.Err()
}

// loadActiveSnapshot returns the active snapshot and its rent roll, or
// nils when the property has never been finalized.
func loadActiveSnapshot(ctx context.Context, tx pgx.Tx, propertyID string) (*string, *string, error) {
	var snapshotID, rentRollID string
	err := tx.QueryRow(ctx, `
		SELECT s.id, r.id
		FROM rent_roll_snapshots s
		JOIN rent_rolls r ON r.snapshot_id = s.id
		WHERE s.property_id = $1 AND s.is_active
	`, propertyID).Scan(&snapshotID, &rentRollID)
	if err == pgx.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: load active snapshot: %w", err)
	}
	return &snapshotID, &rentRollID, nil
}

// loadCurrentLeases returns, per unit number, the lease holding a tenancy
// on the active rent roll, with its residents. When two leases are somehow
// current on one unit the newest wins.
func loadCurrentLeases(ctx context.Context, tx pgx.Tx, activeRentRollID *string) (map[string]*ExistingLease, error) {
	if activeRentRollID == nil {
		return map[string]*ExistingLease{}, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT u.unit_number, l.id, l.name,
			l.lease_start_date::text, l.lease_end_date::text
		FROM leases l
		JOIN tenancies t ON t.lease_id = l.id AND t.rent_roll_id = $1
		JOIN units u ON u.id = l.unit_id
		ORDER BY l.created_at ASC
	`, *activeRentRollID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load current leases: %w", err)
	}
	defer rows.Close()

	byUnit := make(map[string]*ExistingLease)
	leaseUnit := make(map[string]string)
	for rows.Next() {
		var unitNumber string
		lease := &ExistingLease{}
		if err := rows.Scan(&unitNumber, &lease.ID, &lease.Name, &lease.Start, &lease.End); err != nil {
			return nil, fmt.Errorf("snapshot: scan current lease: %w", err)
		}
		byUnit[unitNumber] = lease
		leaseUnit[lease.ID] = unitNumber
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(byUnit) == 0 {
		return byUnit, nil
	}

	leaseIDs := make([]string, 0, len(leaseUnit))
	for id := range leaseUnit {
		leaseIDs = append(leaseIDs, id)
	}

	resRows, err := tx.Query(ctx, `
		SELECT lease_id, id, name, calculated_annualized_income, income_finalized
		FROM residents WHERE lease_id = ANY($1)
	`, leaseIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load current residents: %w", err)
	}
	defer resRows.Close()

	for resRows.Next() {
		var leaseID string
		var facts ResidentFacts
		if err := resRows.Scan(&leaseID, &facts.ID, &facts.Name, &facts.VerifiedIncome, &facts.Finalized); err != nil {
			return nil, fmt.Errorf("snapshot: scan current resident: %w", err)
		}
		unitNumber := leaseUnit[leaseID]
		if lease := byUnit[unitNumber]; lease != nil && lease.ID == leaseID {
			lease.Residents = append(lease.Residents, facts)
		}
	}
	return byUnit, resRows.Err()
}

// loadFutureLeases returns every live future lease on the property: no
// tenancy on the active rent roll, not marked processed, and belonging to
// the active snapshot (or to none — manual pre-snapshot leases).
func loadFutureLeases(ctx context.Context, tx pgx.Tx, propertyID string, activeSnapshotID, activeRentRollID *string) ([]futureLease, error) {
	rows, err := tx.Query(ctx, `
		SELECT l.id, l.unit_id, u.unit_number, l.name,
			l.lease_start_date::text, l.lease_end_date::text, l.lease_rent,
			l.created_at, (l.snapshot_id IS NOT NULL)
		FROM leases l
		JOIN units u ON u.id = l.unit_id
		WHERE u.property_id = $1
		  AND l.name NOT LIKE '[PROCESSED] %'
		  AND (l.snapshot_id = $2 OR l.snapshot_id IS NULL)
		  AND NOT EXISTS (
			SELECT 1 FROM tenancies t WHERE t.lease_id = l.id AND t.rent_roll_id = $3
		  )
		ORDER BY l.created_at ASC
	`, propertyID, activeSnapshotID, activeRentRollID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load future leases: %w", err)
	}
	defer rows.Close()

	var leases []futureLease
	index := make(map[string]int)
	for rows.Next() {
		var fl futureLease
		if err := rows.Scan(&fl.lease.ID, &fl.lease.UnitID, &fl.lease.UnitNumber, &fl.lease.Name,
			&fl.lease.StartDate, &fl.lease.EndDate, &fl.lease.Rent,
			&fl.lease.CreatedAt, &fl.ownedBySnapshot); err != nil {
			return nil, fmt.Errorf("snapshot: scan future lease: %w", err)
		}
		index[fl.lease.ID] = len(leases)
		leases = append(leases, fl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(leases) == 0 {
		return leases, nil
	}

	leaseIDs := make([]string, 0, len(leases))
	for id := range index {
		leaseIDs = append(leaseIDs, id)
	}

	resRows, err := tx.Query(ctx, `
		SELECT lease_id, id, name, annualized_income, calculated_annualized_income,
			income_finalized, finalized_at, has_no_income, created_at
		FROM residents WHERE lease_id = ANY($1)
		ORDER BY created_at ASC
	`, leaseIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load future residents: %w", err)
	}
	defer resRows.Close()

	for resRows.Next() {
		var leaseID string
		var r residentRecord
		if err := resRows.Scan(&leaseID, &r.ID, &r.Name, &r.AnnualizedIncome, &r.CalculatedIncome,
			&r.IncomeFinalized, &r.FinalizedAt, &r.HasNoIncome, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("snapshot: scan future resident: %w", err)
		}
		i := index[leaseID]
		leases[i].lease.Residents = append(leases[i].lease.Residents, r)
	}
	if err := resRows.Err(); err != nil {
		return nil, err
	}

	verRows, err := tx.Query(ctx, `
		SELECT lease_id, id, status, created_at
		FROM income_verifications WHERE lease_id = ANY($1)
		ORDER BY created_at ASC
	`, leaseIDs)
	if err != nil {
		return nil, fmt.Errorf("snapshot: load future verifications: %w", err)
	}
	defer verRows.Close()

	for verRows.Next() {
		var leaseID string
		var v verificationRecord
		if err := verRows.Scan(&leaseID, &v.ID, &v.Status, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("snapshot: scan future verification: %w", err)
		}
		i := index[leaseID]
		leases[i].lease.Verifications = append(leases[i].lease.Verifications, v)
	}
	return leases, verRows.Err()
}
