package snapshot

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"lihtc-backend/internal/models"
)

// DB is the transactional surface the engine needs; *pgxpool.Pool
// satisfies it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// finalizeTimeout bounds the whole finalize transaction. Uploads can carry
// hundreds of rows; the budget is generous but finite.
const finalizeTimeout = 60 * time.Second

// Engine runs snapshot transitions for properties. All writes for one
// property's finalize happen in a single transaction; concurrent finalize
// calls for the same property serialize on an advisory lock.
type Engine struct {
	db DB
}

// NewEngine creates an Engine on the given pool.
func NewEngine(db DB) *Engine {
	return &Engine{db: db}
}

// Finalize ingests one rent-roll upload for a property: freezes the prior
// state into a superseded snapshot, carries pre-verified future leases
// forward, ingests the new rows, and surfaces inheritance matches and
// income discrepancies for the caller to resolve.
func (e *Engine) Finalize(ctx context.Context, propertyID string, req models.FinalizeRequest) (*models.FinalizeResult, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Message: "invalid finalize request", Fields: errs}
	}

	ctx, cancel := context.WithTimeout(ctx, finalizeTimeout)
	defer cancel()

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize finalize per property. The lock is transaction-scoped, so
	// a racing call blocks here and then re-reads committed state; the
	// date-matching dedup makes the retry harmless.
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, propertyID); err != nil {
		return nil, fmt.Errorf("snapshot: property lock: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM properties WHERE id = $1)`, propertyID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("snapshot: property lookup: %w", err)
	}
	if !exists {
		return nil, ErrPropertyNotFound
	}

	units, err := loadUnits(ctx, tx, propertyID)
	if err != nil {
		return nil, err
	}

	// Fail closed before any writes: on an established property every
	// uploaded unit number must already exist. A first upload (no units
	// yet) seeds the unit list instead.
	if len(units) > 0 {
		var missing []string
		for unitNumber := range req.Units {
			if _, ok := units[unitNumber]; !ok {
				missing = append(missing, unitNumber)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, &ValidationError{
				Message:     "unit numbers not found in property",
				UnitNumbers: missing,
			}
		}
	}

	activeSnapshotID, activeRentRollID, err := loadActiveSnapshot(ctx, tx, propertyID)
	if err != nil {
		return nil, err
	}

	currentByUnit, err := loadCurrentLeases(ctx, tx, activeRentRollID)
	if err != nil {
		return nil, err
	}
	futureLeases, err := loadFutureLeases(ctx, tx, propertyID, activeSnapshotID, activeRentRollID)
	if err != nil {
		return nil, err
	}

	// ── New snapshot: flip active atomically ─────────────────────
	if _, err := tx.Exec(ctx,
		`UPDATE rent_roll_snapshots SET is_active = FALSE WHERE property_id = $1 AND is_active`,
		propertyID); err != nil {
		return nil, fmt.Errorf("snapshot: deactivate prior: %w", err)
	}

	snapshotID := uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO rent_roll_snapshots (id, property_id, upload_date, filename, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
	`, snapshotID, propertyID, req.RentRollDate, req.Filename); err != nil {
		return nil, fmt.Errorf("snapshot: insert snapshot: %w", err)
	}

	rentRollID := uuid.NewString()
	if _, err := tx.Exec(ctx, `
		INSERT INTO rent_rolls (id, snapshot_id, property_id, upload_date)
		VALUES ($1, $2, $3, $4)
	`, rentRollID, snapshotID, propertyID, req.RentRollDate); err != nil {
		return nil, fmt.Errorf("snapshot: insert rent roll: %w", err)
	}

	// ── Preserve future leases ───────────────────────────────────
	// Leases born under the superseded snapshot are deep-copied so the
	// old snapshot stays an immutable record; leases never attached to a
	// snapshot (manually created pre-snapshot) are adopted in place.
	preserved := 0
	futureByUnit := make(map[string][]FutureLease)
	for i := range futureLeases {
		fl := &futureLeases[i]

		liveID := fl.lease.ID
		residentIDs := map[string]string{}
		if fl.ownedBySnapshot {
			clone, err := cloneLeaseGraph(ctx, tx, fl.lease, snapshotID)
			if err != nil {
				return nil, err
			}
			liveID = clone.LeaseID
			residentIDs = clone.ResidentIDs
			preserved++
		} else {
			if _, err := tx.Exec(ctx,
				`UPDATE leases SET snapshot_id = $1, updated_at = NOW() WHERE id = $2`,
				snapshotID, fl.lease.ID); err != nil {
				return nil, fmt.Errorf("snapshot: adopt lease %s: %w", fl.lease.ID, err)
			}
		}

		fl.liveID = liveID

		facts := FutureLease{
			ID:                       liveID,
			Name:                     fl.lease.Name,
			HasFinalizedVerification: fl.lease.hasFinalizedVerification(),
		}
		for _, r := range fl.lease.Residents {
			id := r.ID
			if mapped, ok := residentIDs[r.ID]; ok {
				id = mapped
			}
			income := 0.0
			if r.CalculatedIncome != nil {
				income = *r.CalculatedIncome
			}
			facts.Residents = append(facts.Residents, ResidentFacts{
				ID:             id,
				Name:           r.Name,
				Finalized:      r.IncomeFinalized || facts.HasFinalizedVerification,
				VerifiedIncome: &income,
			})
		}
		futureByUnit[fl.lease.UnitNumber] = append(futureByUnit[fl.lease.UnitNumber], facts)
	}

	// ── Ingest new rows, unit by unit ────────────────────────────
	result := &models.FinalizeResult{
		SnapshotID:          snapshotID,
		RentRollID:          rentRollID,
		LeasesPreserved:     preserved,
		FutureLeaseMatches:  []models.FutureLeaseMatch{},
		IncomeDiscrepancies: []models.IncomeDiscrepancy{},
	}

	unitNumbers := make([]string, 0, len(req.Units))
	for n := range req.Units {
		unitNumbers = append(unitNumbers, n)
	}
	sort.Strings(unitNumbers)

	for _, unitNumber := range unitNumbers {
		unitID, ok := units[unitNumber]
		if !ok {
			unitID = uuid.NewString()
			if _, err := tx.Exec(ctx,
				`INSERT INTO units (id, property_id, unit_number) VALUES ($1, $2, $3)`,
				unitID, propertyID, unitNumber); err != nil {
				return nil, fmt.Errorf("snapshot: create unit %s: %w", unitNumber, err)
			}
			units[unitNumber] = unitID
		}

		prior := PriorUnit{
			UnitNumber:   unitNumber,
			CurrentLease: currentByUnit[unitNumber],
			FutureLeases: futureByUnit[unitNumber],
		}
		if prior.CurrentLease != nil {
			prior.AllLeases = append(prior.AllLeases, *prior.CurrentLease)
		}
		for _, future := range prior.FutureLeases {
			if lease := futureFacts(futureLeases, future.ID); lease != nil {
				prior.AllLeases = append(prior.AllLeases, *lease)
			}
		}

		plan := PlanUnit(prior, req.Units[unitNumber], req.RentRollDate)
		if err := e.applyUnitPlan(ctx, tx, propertyID, unitID, snapshotID, rentRollID, plan, result); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("snapshot: commit: %w", err)
	}

	log.Printf("finalize property=%s snapshot=%s leases=%d tenancies=%d residents=%d preserved=%d matches=%d discrepancies=%d",
		propertyID, snapshotID, result.LeasesCreated, result.TenanciesCreated, result.ResidentsCreated,
		result.LeasesPreserved, len(result.FutureLeaseMatches), len(result.IncomeDiscrepancies))
	return result, nil
}

// applyUnitPlan executes one unit's plan inside the finalize transaction.
func (e *Engine) applyUnitPlan(ctx context.Context, tx pgx.Tx, propertyID, unitID, snapshotID, rentRollID string, plan UnitPlan, result *models.FinalizeResult) error {
	createdLeaseIDs := make([]string, len(plan.Creates))
	createdResidentIDs := make([]map[string]string, len(plan.Creates)) // normalized name → id

	for i, create := range plan.Creates {
		leaseID := uuid.NewString()
		createdLeaseIDs[i] = leaseID
		createdResidentIDs[i] = make(map[string]string, len(create.Row.Residents))

		name := leaseDisplayName(plan.UnitNumber, create.Row)
		if _, err := tx.Exec(ctx, `
			INSERT INTO leases (id, unit_id, snapshot_id, name, lease_start_date, lease_end_date, lease_rent)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, leaseID, unitID, snapshotID, name,
			create.Row.LeaseStartDate, create.Row.LeaseEndDate, create.Row.LeaseRent); err != nil {
			return fmt.Errorf("snapshot: insert lease for unit %s: %w", plan.UnitNumber, err)
		}
		result.LeasesCreated++

		for _, res := range create.Row.Residents {
			residentID := uuid.NewString()
			createdResidentIDs[i][normalizeName(res.Name)] = residentID

			// A future lease has no rent-roll baseline: its residents
			// ingest with no declared income, only verified income later.
			var declared *float64
			if create.IsCurrent {
				declared = res.AnnualizedIncome
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO residents (id, lease_id, name, annualized_income)
				VALUES ($1, $2, $3, $4)
			`, residentID, leaseID, res.Name, declared); err != nil {
				return fmt.Errorf("snapshot: insert resident %q: %w", res.Name, err)
			}
			result.ResidentsCreated++
		}

		if create.IsCurrent {
			if _, err := tx.Exec(ctx, `
				INSERT INTO tenancies (id, lease_id, rent_roll_id) VALUES ($1, $2, $3)
			`, uuid.NewString(), leaseID, rentRollID); err != nil {
				return fmt.Errorf("snapshot: insert tenancy for unit %s: %w", plan.UnitNumber, err)
			}
			result.TenanciesCreated++
		}
	}

	for _, reuse := range plan.Reuses {
		if reuse.Row.LeaseRent != nil {
			if _, err := tx.Exec(ctx,
				`UPDATE leases SET lease_rent = $1, updated_at = NOW() WHERE id = $2`,
				reuse.Row.LeaseRent, reuse.LeaseID); err != nil {
				return fmt.Errorf("snapshot: update lease rent: %w", err)
			}
		}
		if reuse.IsCurrent {
			tag, err := tx.Exec(ctx, `
				INSERT INTO tenancies (id, lease_id, rent_roll_id) VALUES ($1, $2, $3)
				ON CONFLICT (lease_id, rent_roll_id) DO NOTHING
			`, uuid.NewString(), reuse.LeaseID, rentRollID)
			if err != nil {
				return fmt.Errorf("snapshot: insert tenancy (reuse): %w", err)
			}
			result.TenanciesCreated += int(tag.RowsAffected())
		}
	}

	for _, match := range plan.Matches {
		newLeaseID := createdLeaseIDs[match.CreateIndex]
		matchID := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO future_lease_matches (id, property_id, unit_number, new_lease_id, future_lease_id)
			VALUES ($1, $2, $3, $4, $5)
		`, matchID, propertyID, plan.UnitNumber, newLeaseID, match.Future.ID); err != nil {
			return fmt.Errorf("snapshot: insert match for unit %s: %w", plan.UnitNumber, err)
		}

		row := plan.Creates[match.CreateIndex].Row
		out := models.FutureLeaseMatch{
			ID:                matchID,
			PropertyID:        propertyID,
			UnitNumber:        plan.UnitNumber,
			NewLeaseID:        newLeaseID,
			NewLeaseStartDate: row.LeaseStartDate,
			NewLeaseEndDate:   row.LeaseEndDate,
			FutureLeaseID:     match.Future.ID,
			FutureLeaseName:   match.Future.Name,
			CreatedAt:         time.Now(),
		}
		for _, r := range match.Future.Residents {
			income := 0.0
			if r.VerifiedIncome != nil {
				income = *r.VerifiedIncome
			}
			out.Residents = append(out.Residents, models.MatchResident{
				ID: r.ID, Name: r.Name, VerifiedIncome: income,
			})
		}
		result.FutureLeaseMatches = append(result.FutureLeaseMatches, out)
	}

	for _, d := range plan.Discrepancies {
		newLeaseID := d.ReuseLeaseID
		var newResidentID string
		if d.CreateIndex >= 0 {
			newLeaseID = createdLeaseIDs[d.CreateIndex]
			newResidentID = createdResidentIDs[d.CreateIndex][normalizeName(d.NewResidentName)]
		} else {
			if err := tx.QueryRow(ctx, `
				SELECT id FROM residents WHERE lease_id = $1 AND LOWER(TRIM(name)) = $2 LIMIT 1
			`, newLeaseID, normalizeName(d.NewResidentName)).Scan(&newResidentID); err != nil {
				return fmt.Errorf("snapshot: resolve resident %q: %w", d.NewResidentName, err)
			}
		}

		discID := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO income_discrepancies (id, property_id, unit_number, resident_name,
				verified_income, new_rent_roll_income, discrepancy,
				existing_lease_id, new_lease_id, existing_resident_id, new_resident_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, discID, propertyID, plan.UnitNumber, d.ResidentName,
			d.VerifiedIncome, d.NewRentRollIncome, d.Discrepancy,
			d.ExistingLeaseID, newLeaseID, d.ExistingResidentID, newResidentID); err != nil {
			return fmt.Errorf("snapshot: insert discrepancy for %q: %w", d.ResidentName, err)
		}

		result.IncomeDiscrepancies = append(result.IncomeDiscrepancies, models.IncomeDiscrepancy{
			ID:                 discID,
			PropertyID:         propertyID,
			UnitNumber:         plan.UnitNumber,
			ResidentName:       d.ResidentName,
			VerifiedIncome:     d.VerifiedIncome,
			NewRentRollIncome:  d.NewRentRollIncome,
			Discrepancy:        d.Discrepancy,
			ExistingLeaseID:    d.ExistingLeaseID,
			NewLeaseID:         newLeaseID,
			ExistingResidentID: d.ExistingResidentID,
			NewResidentID:      newResidentID,
			CreatedAt:          time.Now(),
		})
	}

	return nil
}

// leaseDisplayName derives a lease name from its primary resident.
func leaseDisplayName(unitNumber string, row models.LeaseRow) string {
	if len(row.Residents) > 0 && row.Residents[0].Name != "" {
		return row.Residents[0].Name + " household"
	}
	return "Unit " + unitNumber + " lease"
}

// futureFacts finds the ExistingLease view of a preserved future lease so
// the planner can date-match against it.
func futureFacts(records []futureLease, liveID string) *ExistingLease {
	for i := range records {
		r := &records[i]
		if r.liveID != liveID {
			continue
		}
		out := &ExistingLease{
			ID:    liveID,
			Name:  r.lease.Name,
			Start: r.lease.StartDate,
			End:   r.lease.EndDate,
		}
		for _, res := range r.lease.Residents {
			out.Residents = append(out.Residents, ResidentFacts{
				ID:             res.ID,
				Name:           res.Name,
				Finalized:      res.IncomeFinalized,
				VerifiedIncome: res.CalculatedIncome,
			})
		}
		return out
	}
	return nil
}
