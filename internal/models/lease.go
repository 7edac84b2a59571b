package models

import (
	"strings"
	"time"
)

// ProcessedPrefix marks a lease name as superseded/soft-deleted. Leases
// carrying it are excluded from future-lease consideration everywhere.
const ProcessedPrefix = "[PROCESSED] "

// Lease represents a lease on a unit. Whether a lease is "current" or
// "future" is NEVER stored — it is derived from tenancy presence on the
// active rent roll plus the start-date/rent-roll-date comparison.
type Lease struct {
	ID             string    `json:"id"`
	UnitID         string    `json:"unitId"`
	Name           string    `json:"name"`                     // display name, e.g. "Doe household"
	LeaseStartDate *string   `json:"leaseStartDate,omitempty"` // nil = manually-created, not-yet-dated future lease
	LeaseEndDate   *string   `json:"leaseEndDate,omitempty"`
	LeaseRent      *float64  `json:"leaseRent,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// IsProcessed reports whether the lease has been marked superseded.
func (l *Lease) IsProcessed() bool {
	return strings.HasPrefix(l.Name, ProcessedPrefix)
}

// LeaseWithUnit includes unit context for single-lease lookups.
type LeaseWithUnit struct {
	Lease
	UnitNumber   string `json:"unitNumber"`
	PropertyID   string `json:"propertyId"`
	PropertyName string `json:"propertyName"`
}

// Tenancy joins a lease to a rent roll. Its presence is the definition of
// "this lease was current in this rent roll".
type Tenancy struct {
	ID         string    `json:"id"`
	LeaseID    string    `json:"leaseId"`
	RentRollID string    `json:"rentRollId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateLeaseRequest creates a manual (future) lease on a unit. Null dates
// are allowed — a future lease is often entered before its term is known.
type CreateLeaseRequest struct {
	Name           string   `json:"name"`
	LeaseStartDate *string  `json:"leaseStartDate,omitempty"`
	LeaseEndDate   *string  `json:"leaseEndDate,omitempty"`
	LeaseRent      *float64 `json:"leaseRent,omitempty"`
	Residents      []string `json:"residents"` // resident names
}

// Validate checks if the create request contains valid data.
func (r *CreateLeaseRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if len(r.Name) < 2 {
		errors["name"] = "Lease name is required (min 2 characters)"
	}
	if strings.HasPrefix(r.Name, ProcessedPrefix) {
		errors["name"] = "Lease name may not start with the processed marker"
	}
	if len(r.Residents) == 0 {
		errors["residents"] = "At least one resident name is required"
	}

	return errors
}
