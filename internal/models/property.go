package models

import "time"

// Property represents a LIHTC property record in the database.
type Property struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	County              string    `json:"county"`
	State               string    `json:"state"`
	ComplianceOption    string    `json:"complianceOption"`              // e.g. "20% at 50% AMI, 55% at 80% AMI"
	PlacedInServiceDate *string   `json:"placedInServiceDate,omitempty"` // affects HERA vs hold-harmless limits
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// PropertyWithStats includes portfolio-level aggregates for list views.
type PropertyWithStats struct {
	Property
	UnitCount          int     `json:"unitCount"`
	ActiveSnapshotID   *string `json:"activeSnapshotId,omitempty"`
	ActiveSnapshotDate *string `json:"activeSnapshotDate,omitempty"`
	OpenMatches        int     `json:"openMatches"` // unresolved inheritance prompts
	OpenDiscrepancies  int     `json:"openDiscrepancies"`
}

// CreatePropertyRequest holds the fields needed to create a property.
type CreatePropertyRequest struct {
	Name                string  `json:"name"`
	County              string  `json:"county"`
	State               string  `json:"state"`
	ComplianceOption    string  `json:"complianceOption"`
	PlacedInServiceDate *string `json:"placedInServiceDate,omitempty"`
}

// UpdatePropertyRequest holds the fields that can be updated.
type UpdatePropertyRequest struct {
	Name                *string `json:"name,omitempty"`
	County              *string `json:"county,omitempty"`
	State               *string `json:"state,omitempty"`
	ComplianceOption    *string `json:"complianceOption,omitempty"`
	PlacedInServiceDate *string `json:"placedInServiceDate,omitempty"`
}

// Validate checks if the create request contains valid data.
func (r *CreatePropertyRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if len(r.Name) < 2 || len(r.Name) > 200 {
		errors["name"] = "Name must be between 2 and 200 characters"
	}
	if r.County == "" {
		errors["county"] = "County is required"
	}
	if len(r.State) != 2 {
		errors["state"] = "State must be a 2-letter code"
	}

	return errors
}

// Unit represents a single rentable unit inside a property.
type Unit struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"propertyId"`
	UnitNumber string    `json:"unitNumber"` // not necessarily numeric ("101A", "B-2")
	Bedrooms   *int      `json:"bedrooms,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UnitWithStatus includes the derived verification status and AMI bucket
// for the unit's current lease. Both are COMPUTED on read — never stored.
type UnitWithStatus struct {
	Unit
	Status         string   `json:"status"` // verification.Status* value
	CurrentLeaseID *string  `json:"currentLeaseId,omitempty"`
	ResidentCount  int      `json:"residentCount"`
	VerifiedIncome *float64 `json:"verifiedIncome,omitempty"` // sum of finalized incomes
	AmiBucket      *string  `json:"amiBucket,omitempty"`      // refreshed by the cron batch
}
