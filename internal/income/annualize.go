// Package income provides pure functions for LIHTC income calculations:
// annualizing paystub documents and mapping verified household income onto
// AMI compliance buckets. These functions have ZERO dependencies on HTTP,
// database, or any other infrastructure — making them trivially testable.
package income

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Annualization failure modes. All are per-resident and non-fatal: the
// resident simply stays un-annualized until more documents arrive.
var (
	ErrInsufficientData   = errors.New("income: need at least two complete paystubs")
	ErrUnknownFrequency   = errors.New("income: pay period gap matches no known frequency")
	ErrInsufficientPeriod = errors.New("income: not enough paystubs to cover one month")
)

// Pay frequencies detected from the gap between consecutive pay periods.
const (
	FrequencyWeekly      = "WEEKLY"
	FrequencyBiWeekly    = "BI_WEEKLY"
	FrequencySemiMonthly = "SEMI_MONTHLY"
	FrequencyMonthly     = "MONTHLY"
)

// frequencySpec maps a frequency to its nominal period length in days and
// its annual multiplier.
type frequencySpec struct {
	name       string
	days       int
	multiplier int
}

// Order matters: on an equidistant gap the earlier (shorter) period wins.
var frequencies = []frequencySpec{
	{FrequencyWeekly, 7, 52},
	{FrequencyBiWeekly, 14, 26},
	{FrequencySemiMonthly, 15, 24},
	{FrequencyMonthly, 30, 12},
}

// frequencyTolerance is the allowed deviation, in days, between the observed
// pay-period gap and a frequency's nominal period.
const frequencyTolerance = 2

// Paystub carries the fields the annualizer needs from one PAYSTUB document.
type Paystub struct {
	PayPeriodStartDate *string // YYYY-MM-DD
	PayPeriodEndDate   *string // YYYY-MM-DD
	GrossPayAmount     *float64
}

// AnnualizeResult is the outcome of a successful annualization.
type AnnualizeResult struct {
	Frequency        string  `json:"frequency"`
	StubsUsed        int     `json:"stubsUsed"`
	AverageGrossPay  float64 `json:"averageGrossPay"`
	AnnualizedIncome float64 `json:"annualizedIncome"`
}

type datedStub struct {
	end   time.Time
	gross decimal.Decimal
}

// AnnualizePaystubs converts a resident's paystubs into an annualized income
// figure, detecting pay frequency from the gap between the two most recent
// pay-period end dates.
func AnnualizePaystubs(stubs []Paystub) (*AnnualizeResult, error) {
	// 1. Discard stubs missing a date or gross amount.
	usable := make([]datedStub, 0, len(stubs))
	for _, s := range stubs {
		if s.PayPeriodStartDate == nil || s.PayPeriodEndDate == nil || s.GrossPayAmount == nil {
			continue
		}
		if _, err := time.Parse("2006-01-02", *s.PayPeriodStartDate); err != nil {
			continue
		}
		end, err := time.Parse("2006-01-02", *s.PayPeriodEndDate)
		if err != nil {
			continue
		}
		usable = append(usable, datedStub{end: end, gross: decimal.NewFromFloat(*s.GrossPayAmount)})
	}

	// 2. Two complete stubs minimum — one gap is the least we can classify.
	if len(usable) < 2 {
		return nil, ErrInsufficientData
	}

	// 3. Most recent first.
	sort.Slice(usable, func(i, j int) bool {
		return usable[i].end.After(usable[j].end)
	})
	gapDays := int(usable[0].end.Sub(usable[1].end).Hours() / 24)

	// 4. Nearest frequency within tolerance.
	freq, ok := classifyGap(gapDays)
	if !ok {
		return nil, ErrUnknownFrequency
	}

	// 5. Enough stubs to represent a full month at that frequency.
	requiredStubs := (30 + freq.days - 1) / freq.days // ceil(30/days)
	if requiredStubs < 1 {
		requiredStubs = 1
	}
	if len(usable) < requiredStubs {
		return nil, ErrInsufficientPeriod
	}

	// 6. Average the most recent requiredStubs and annualize.
	sum := decimal.Zero
	for _, s := range usable[:requiredStubs] {
		sum = sum.Add(s.gross)
	}
	avg := sum.Div(decimal.NewFromInt(int64(requiredStubs)))
	annualized := avg.Mul(decimal.NewFromInt(int64(freq.multiplier)))

	avgF, _ := avg.Round(2).Float64()
	annualF, _ := annualized.Round(2).Float64()

	return &AnnualizeResult{
		Frequency:        freq.name,
		StubsUsed:        requiredStubs,
		AverageGrossPay:  avgF,
		AnnualizedIncome: annualF,
	}, nil
}

// classifyGap picks the frequency whose nominal period is nearest to the
// observed gap, rejecting gaps more than frequencyTolerance days off.
func classifyGap(gapDays int) (frequencySpec, bool) {
	best := frequencySpec{}
	bestDist := -1
	for _, f := range frequencies {
		dist := gapDays - f.days
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = f
			bestDist = dist
		}
	}
	if bestDist > frequencyTolerance {
		return frequencySpec{}, false
	}
	return best, true
}
