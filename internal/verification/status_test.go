package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lihtc-backend/internal/models"
)

func fptr(f float64) *float64 { return &f }

func finalizedResident(name string, declared, verified *float64) models.Resident {
	return models.Resident{
		Name:                       name,
		AnnualizedIncome:           declared,
		CalculatedAnnualizedIncome: verified,
		IncomeFinalized:            true,
	}
}

func TestIncomeMismatch(t *testing.T) {
	assert.False(t, IncomeMismatch(30000, 30000))
	assert.False(t, IncomeMismatch(30000, 30000.50))
	// A gap of exactly $1.00 is tolerated; strictly more is not.
	assert.False(t, IncomeMismatch(30000, 30001))
	assert.True(t, IncomeMismatch(30000, 30001.01))
	assert.True(t, IncomeMismatch(30001.01, 30000))
}

func TestLeaseStatusVacant(t *testing.T) {
	assert.Equal(t, StatusVacant, LeaseStatus(nil, nil))
}

func TestLeaseStatusNeedsReviewBlocksEverything(t *testing.T) {
	// Even a fully finalized household is blocked by a document stuck in
	// admin review.
	residents := []models.Resident{
		finalizedResident("Ana Reyes", fptr(30000), fptr(30000)),
	}
	documents := []models.IncomeDocument{
		{DocumentType: models.DocTypePaystub, Status: models.DocStatusNeedsReview},
	}

	assert.Equal(t, StatusWaitingForAdminReview, LeaseStatus(residents, documents))
}

func TestLeaseStatusPartiallyFinalized(t *testing.T) {
	residents := []models.Resident{
		finalizedResident("Ana Reyes", fptr(30000), fptr(30000)),
		{Name: "Luis Reyes", AnnualizedIncome: fptr(12000)},
	}

	assert.Equal(t, StatusInProgress, LeaseStatus(residents, nil))
}

func TestLeaseStatusNobodyFinalized(t *testing.T) {
	residents := []models.Resident{
		{Name: "Ana Reyes", AnnualizedIncome: fptr(30000)},
	}

	// No documents at all: stale rent-roll data.
	assert.Equal(t, StatusOutOfDateIncomeDocuments, LeaseStatus(residents, nil))

	// Documents on file mean verification has started.
	documents := []models.IncomeDocument{
		{DocumentType: models.DocTypePaystub, Status: models.DocStatusCompleted},
	}
	assert.Equal(t, StatusInProgress, LeaseStatus(residents, documents))
}

func TestLeaseStatusAllNoIncome(t *testing.T) {
	residents := []models.Resident{
		{Name: "Ana Reyes", HasNoIncome: true},
		{Name: "Luis Reyes", HasNoIncome: true},
	}

	assert.Equal(t, StatusNeedsIncomeDocumentation, LeaseStatus(residents, nil))
}

func TestLeaseStatusIncomeComparison(t *testing.T) {
	// Declared and verified match within the tolerance.
	residents := []models.Resident{
		finalizedResident("Ana Reyes", fptr(30000), fptr(30000.75)),
	}
	assert.Equal(t, StatusVerified, LeaseStatus(residents, nil))

	// Exactly $1.00 apart is still verified.
	residents = []models.Resident{
		finalizedResident("Ana Reyes", fptr(30000), fptr(30001)),
	}
	assert.Equal(t, StatusVerified, LeaseStatus(residents, nil))

	// More than $1.00 apart needs investigation.
	residents = []models.Resident{
		finalizedResident("Ana Reyes", fptr(30000), fptr(30001.01)),
	}
	assert.Equal(t, StatusNeedsInvestigation, LeaseStatus(residents, nil))
}

func TestLeaseStatusHouseholdTotalsCompared(t *testing.T) {
	// Per-resident figures differ but the household totals agree: the
	// comparison is at the lease level, not per resident.
	residents := []models.Resident{
		finalizedResident("Ana Reyes", fptr(30000), fptr(20000)),
		finalizedResident("Luis Reyes", fptr(10000), fptr(20000)),
	}

	assert.Equal(t, StatusVerified, LeaseStatus(residents, nil))
}

func TestLeaseStatusFutureLeaseNoBaseline(t *testing.T) {
	// Future-lease residents carry no rent-roll declared income. With zero
	// declared there is nothing to compare against; verified work stands.
	residents := []models.Resident{
		finalizedResident("Ana Reyes", nil, fptr(28000)),
	}

	assert.Equal(t, StatusVerified, LeaseStatus(residents, nil))
}

func TestLeaseStatusMixedNoIncome(t *testing.T) {
	// One verified earner plus one verified-zero-income member: settled
	// household, normal comparison path.
	residents := []models.Resident{
		finalizedResident("Ana Reyes", fptr(30000), fptr(30000)),
		{Name: "Luis Reyes", HasNoIncome: true},
	}

	assert.Equal(t, StatusVerified, LeaseStatus(residents, nil))
}

func TestBlocking(t *testing.T) {
	assert.True(t, Blocking(StatusWaitingForAdminReview))
	assert.True(t, Blocking(StatusNeedsInvestigation))
	assert.True(t, Blocking(StatusNeedsIncomeDocumentation))
	assert.False(t, Blocking(StatusVerified))
	assert.False(t, Blocking(StatusInProgress))
	assert.False(t, Blocking(StatusVacant))
	assert.False(t, Blocking(StatusOutOfDateIncomeDocuments))
}
