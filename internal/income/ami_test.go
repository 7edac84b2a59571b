package income

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lihtc-backend/internal/hud"
)

func testLimits() hud.LimitTable {
	return hud.LimitTable{
		50: {1: 35000, 2: 40000, 3: 45000, 4: 50000},
		60: {1: 42000, 2: 48000, 3: 54000, 4: 60000},
		80: {1: 56000, 2: 64000, 3: 72000, 4: 80000},
	}
}

const testOption = "20% at 50% AMI, 55% at 80% AMI"

func TestParseComplianceOption(t *testing.T) {
	pairs := ParseComplianceOption(testOption)
	assert.Equal(t, []SetAside{
		{SetAsidePercent: 20, AMIPercent: 50},
		{SetAsidePercent: 55, AMIPercent: 80},
	}, pairs)

	assert.Equal(t, []SetAside{{SetAsidePercent: 100, AMIPercent: 60}},
		ParseComplianceOption("100% at 60% AMI"))

	// Loose spacing still parses.
	assert.Equal(t, []SetAside{{SetAsidePercent: 40, AMIPercent: 60}},
		ParseComplianceOption("40 % at 60 % AMI"))

	assert.Nil(t, ParseComplianceOption(""))
	assert.Nil(t, ParseComplianceOption("Section 8 project-based"))
}

func TestActualAmiBucket(t *testing.T) {
	limits := testLimits()

	// Lowest covering threshold wins.
	assert.Equal(t, "50% AMI", ActualAmiBucket(30000, 1, limits, testOption))
	assert.Equal(t, "50% AMI", ActualAmiBucket(35000, 1, limits, testOption))

	// Over 50 but within 80 skips straight to 80 — 60 is not a set-aside
	// of this property.
	assert.Equal(t, "80% AMI", ActualAmiBucket(36000, 1, limits, testOption))

	assert.Equal(t, "Over 80% AMI", ActualAmiBucket(90000, 1, limits, testOption))

	// Household size is the literal resident count.
	assert.Equal(t, "50% AMI", ActualAmiBucket(39000, 2, limits, testOption))
	assert.Equal(t, "80% AMI", ActualAmiBucket(41000, 2, limits, "55% at 80% AMI"))
}

func TestActualAmiBucketSentinels(t *testing.T) {
	limits := testLimits()

	assert.Equal(t, BucketNoIncome, ActualAmiBucket(0, 2, limits, testOption))
	assert.Equal(t, BucketNoIncome, ActualAmiBucket(-100, 2, limits, testOption))
	assert.Equal(t, BucketHudUnavailable, ActualAmiBucket(30000, 2, nil, testOption))
	assert.Equal(t, BucketHudUnavailable, ActualAmiBucket(30000, 2, hud.LimitTable{}, testOption))
}

func TestActualAmiBucketFallbackThresholds(t *testing.T) {
	// Unparseable compliance option falls back to the table's own rows.
	limits := testLimits()
	assert.Equal(t, "60% AMI", ActualAmiBucket(40000, 1, limits, "unknown format"))
}

func TestBedroomHouseholdSize(t *testing.T) {
	assert.Equal(t, 1.0, BedroomHouseholdSize(0))
	assert.Equal(t, 1.5, BedroomHouseholdSize(1))
	assert.Equal(t, 3.0, BedroomHouseholdSize(2))
	assert.Equal(t, 4.5, BedroomHouseholdSize(3))
	assert.Equal(t, 6.0, BedroomHouseholdSize(4))
	assert.Equal(t, 8.0, BedroomHouseholdSize(5))
	assert.Equal(t, 8.0, BedroomHouseholdSize(7))
}

func TestLimitForSize(t *testing.T) {
	row := map[int]float64{1: 35000, 2: 40000, 3: 45000, 4: 50000}

	// Whole sizes read straight from the table.
	assert.Equal(t, 40000.0, LimitForSize(row, 2))

	// Fractional sizes interpolate linearly.
	assert.Equal(t, 37500.0, LimitForSize(row, 1.5))
	assert.Equal(t, 47500.0, LimitForSize(row, 3.5))

	// Sizes beyond the table clamp to its edges.
	assert.Equal(t, 50000.0, LimitForSize(row, 6))
	assert.Equal(t, 50000.0, LimitForSize(row, 4.5))
	assert.Equal(t, 0.0, LimitForSize(nil, 2))
}

func TestMaxRent(t *testing.T) {
	limits := testLimits()

	// 1BR imputes a 1.5-person household: (42000+48000)/2 = 45000 at 60%.
	// 45000 * 0.30 / 12 = 1125.
	assert.Equal(t, 1125.0, MaxRent(limits, 60, 1))

	// Studio imputes 1 person: 35000 * 0.30 / 12 = 875 at 50%.
	assert.Equal(t, 875.0, MaxRent(limits, 50, 0))

	// Unknown threshold yields zero.
	assert.Equal(t, 0.0, MaxRent(limits, 30, 1))
}
