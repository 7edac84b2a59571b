package models

import "time"

// RentRollSnapshot is an immutable point-in-time capture for a property,
// created once per compliance upload. Exactly one snapshot per property is
// active at a time; activating a new one deactivates all others in the same
// transaction.
type RentRollSnapshot struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"propertyId"`
	UploadDate string    `json:"uploadDate"` // user-supplied as-of date, not wall-clock
	Filename   string    `json:"filename"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RentRoll is the unit of "what was true as of this date" — one per snapshot.
type RentRoll struct {
	ID         string    `json:"id"`
	SnapshotID string    `json:"snapshotId"`
	PropertyID string    `json:"propertyId"`
	UploadDate string    `json:"uploadDate"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ── Finalize request/response ────────────────────────────────────

// ResidentRow is one resident as parsed from the uploaded rent roll.
type ResidentRow struct {
	Name             string   `json:"name"`
	AnnualizedIncome *float64 `json:"annualizedIncome,omitempty"`
}

// LeaseRow is one lease as parsed from the uploaded rent roll.
type LeaseRow struct {
	LeaseStartDate *string       `json:"leaseStartDate,omitempty"`
	LeaseEndDate   *string       `json:"leaseEndDate,omitempty"`
	LeaseRent      *float64      `json:"leaseRent,omitempty"`
	Residents      []ResidentRow `json:"residents"`
}

// FinalizeRequest is the inbound payload for a compliance upload: parsed
// lease rows grouped by unit number, plus the user-chosen as-of date.
type FinalizeRequest struct {
	RentRollDate string                `json:"rentRollDate"`
	Filename     string                `json:"filename"`
	Units        map[string][]LeaseRow `json:"units"`
}

// Validate checks if the finalize request contains valid data.
func (r *FinalizeRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if _, err := time.Parse("2006-01-02", r.RentRollDate); err != nil {
		errors["rentRollDate"] = "Rent roll date must be YYYY-MM-DD"
	}
	if r.Filename == "" {
		errors["filename"] = "Filename is required"
	}
	if len(r.Units) == 0 {
		errors["units"] = "At least one unit is required"
	}
	for unitNumber, rows := range r.Units {
		if len(rows) == 0 {
			errors["units"] = "Unit " + unitNumber + " has no lease rows"
			continue
		}
		for _, row := range rows {
			if len(row.Residents) == 0 {
				errors["units"] = "Unit " + unitNumber + " has a lease row with no residents"
			}
		}
	}

	return errors
}

// FinalizeResult summarizes what one finalize transaction did, including
// the decision points it surfaced for the caller to resolve.
type FinalizeResult struct {
	SnapshotID          string              `json:"snapshotId"`
	RentRollID          string              `json:"rentRollId"`
	LeasesCreated       int                 `json:"leasesCreated"`
	TenanciesCreated    int                 `json:"tenanciesCreated"`
	ResidentsCreated    int                 `json:"residentsCreated"`
	LeasesPreserved     int                 `json:"leasesPreserved"`
	FutureLeaseMatches  []FutureLeaseMatch  `json:"futureLeaseMatches"`
	IncomeDiscrepancies []IncomeDiscrepancy `json:"incomeDiscrepancies"`
}

// MatchResident is a resident summary inside an inheritance-match prompt.
type MatchResident struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	VerifiedIncome float64 `json:"verifiedIncome"`
}

// FutureLeaseMatch is an inheritance-match candidate: a new lease row landed
// on a unit that has a pre-verified future lease with different dates. The
// caller (decision UI) resolves it — inherit the verified work or dismiss.
type FutureLeaseMatch struct {
	ID                string          `json:"id"`
	PropertyID        string          `json:"propertyId"`
	UnitNumber        string          `json:"unitNumber"`
	NewLeaseID        string          `json:"newLeaseId"`
	NewLeaseStartDate *string         `json:"newLeaseStartDate,omitempty"`
	NewLeaseEndDate   *string         `json:"newLeaseEndDate,omitempty"`
	FutureLeaseID     string          `json:"futureLeaseId"`
	FutureLeaseName   string          `json:"futureLeaseName"`
	Residents         []MatchResident `json:"residents"`
	Resolved          bool            `json:"resolved"`
	Resolution        *string         `json:"resolution,omitempty"` // "inherit" | "dismiss"
	CreatedAt         time.Time       `json:"createdAt"`
}

// ResolveMatchRequest resolves an inheritance-match prompt.
type ResolveMatchRequest struct {
	Action string `json:"action"` // "inherit" | "dismiss"
}

// IncomeDiscrepancy records a >$1.00 gap between a resident's previously
// verified income and what the new rent roll declares for the same name.
type IncomeDiscrepancy struct {
	ID                 string    `json:"id"`
	PropertyID         string    `json:"propertyId"`
	UnitNumber         string    `json:"unitNumber"`
	ResidentName       string    `json:"residentName"`
	VerifiedIncome     float64   `json:"verifiedIncome"`
	NewRentRollIncome  float64   `json:"newRentRollIncome"`
	Discrepancy        float64   `json:"discrepancy"`
	ExistingLeaseID    string    `json:"existingLeaseId"`
	NewLeaseID         string    `json:"newLeaseId"`
	ExistingResidentID string    `json:"existingResidentId"`
	NewResidentID      string    `json:"newResidentId"`
	Resolved           bool      `json:"resolved"`
	Resolution         *string   `json:"resolution,omitempty"` // "accept_verified" | "use_rent_roll"
	CreatedAt          time.Time `json:"createdAt"`
}

// ResolveDiscrepancyRequest resolves an income discrepancy.
type ResolveDiscrepancyRequest struct {
	Action string `json:"action"` // "accept_verified" | "use_rent_roll"
}
