package income

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"lihtc-backend/internal/hud"
)

// Sentinel bucket labels. Call sites substitute these instead of failing:
// a missing HUD table must never abort compliance processing, and "zero
// verified income" must stay distinguishable from "limits unavailable".
const (
	BucketNoIncome       = "No Income Information"
	BucketHudUnavailable = "HUD API Unavailable"
	BucketLoadError      = "Error loading AMI data"
)

// SetAside is one parsed (set-aside %, AMI threshold %) pair from a
// property's compliance option string.
type SetAside struct {
	SetAsidePercent int `json:"setAsidePercent"`
	AMIPercent      int `json:"amiPercent"`
}

// complianceOption is a free-text convention, e.g.
// "20% at 50% AMI, 55% at 80% AMI". It is not a closed enum in practice,
// so parsing is deliberately loose: any "<n>% at <m>% AMI" pair counts.
var setAsideRe = regexp.MustCompile(`(\d+)\s*%\s*at\s*(\d+)\s*%\s*AMI`)

// ParseComplianceOption extracts the set-aside pairs from a compliance
// option string. Returns nil when nothing parseable is found.
func ParseComplianceOption(option string) []SetAside {
	matches := setAsideRe.FindAllStringSubmatch(option, -1)
	if len(matches) == 0 {
		return nil
	}
	pairs := make([]SetAside, 0, len(matches))
	for _, m := range matches {
		setAside, err1 := strconv.Atoi(m[1])
		ami, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		pairs = append(pairs, SetAside{SetAsidePercent: setAside, AMIPercent: ami})
	}
	return pairs
}

// ActualAmiBucket maps a lease's total verified income onto the lowest AMI
// threshold whose income limit for the household size covers it. Household
// size here is the literal resident count — the fractional bedroom-based
// sizes are a max-rent convention only.
func ActualAmiBucket(totalIncome float64, householdSize int, limits hud.LimitTable, complianceOption string) string {
	if totalIncome <= 0 {
		return BucketNoIncome
	}
	if len(limits) == 0 {
		return BucketHudUnavailable
	}
	if householdSize < 1 {
		householdSize = 1
	}

	thresholds := thresholdsFor(complianceOption, limits)
	if len(thresholds) == 0 {
		return BucketLoadError
	}

	income := decimal.NewFromFloat(totalIncome)
	for _, pct := range thresholds {
		limit := LimitForSize(limits[pct], float64(householdSize))
		if limit <= 0 {
			continue
		}
		if income.LessThanOrEqual(decimal.NewFromFloat(limit)) {
			return fmt.Sprintf("%d%% AMI", pct)
		}
	}
	return fmt.Sprintf("Over %d%% AMI", thresholds[len(thresholds)-1])
}

// thresholdsFor returns the AMI thresholds to test, ascending. The
// compliance option drives the list; if it parses to nothing usable the
// table's own rows are the defensive fallback.
func thresholdsFor(complianceOption string, limits hud.LimitTable) []int {
	seen := map[int]bool{}
	var thresholds []int
	for _, pair := range ParseComplianceOption(complianceOption) {
		if _, ok := limits[pair.AMIPercent]; ok && !seen[pair.AMIPercent] {
			thresholds = append(thresholds, pair.AMIPercent)
			seen[pair.AMIPercent] = true
		}
	}
	if len(thresholds) == 0 {
		for pct := range limits {
			thresholds = append(thresholds, pct)
		}
	}
	sort.Ints(thresholds)
	return thresholds
}

// ── HUD family-size conventions ──────────────────────────────────

// BedroomHouseholdSize returns HUD's imputed family size for a bedroom
// count. Used for max-rent tables only, never for bucket assignment.
func BedroomHouseholdSize(bedrooms int) float64 {
	switch bedrooms {
	case 0:
		return 1.0
	case 1:
		return 1.5
	case 2:
		return 3.0
	case 3:
		return 4.5
	case 4:
		return 6.0
	default:
		if bedrooms >= 5 {
			return 8.0
		}
		return 1.0
	}
}

// LimitForSize looks up the income limit for a (possibly fractional)
// household size, linearly interpolating between adjacent whole-person
// limits. Sizes beyond the table clamp to its nearest edge.
func LimitForSize(row map[int]float64, size float64) float64 {
	if len(row) == 0 {
		return 0
	}

	lower := int(size)
	if float64(lower) == size {
		if v, ok := row[lower]; ok {
			return v
		}
		return clampToEdge(row, lower)
	}

	lo, okLo := row[lower]
	hi, okHi := row[lower+1]
	switch {
	case okLo && okHi:
		frac := decimal.NewFromFloat(size - float64(lower))
		span := decimal.NewFromFloat(hi - lo)
		out, _ := decimal.NewFromFloat(lo).Add(span.Mul(frac)).Round(2).Float64()
		return out
	case okLo:
		return lo
	case okHi:
		return hi
	default:
		return clampToEdge(row, lower)
	}
}

// MaxRent returns the LIHTC maximum monthly rent for a bedroom count at an
// AMI threshold: 30% of the imputed household's income limit, monthly.
func MaxRent(limits hud.LimitTable, amiPercent, bedrooms int) float64 {
	row, ok := limits[amiPercent]
	if !ok {
		return 0
	}
	limit := LimitForSize(row, BedroomHouseholdSize(bedrooms))
	if limit <= 0 {
		return 0
	}
	rent := decimal.NewFromFloat(limit).
		Mul(decimal.NewFromFloat(0.30)).
		Div(decimal.NewFromInt(12))
	out, _ := rent.Round(2).Float64()
	return out
}

// clampToEdge returns the limit for the nearest household size present in
// the row when the requested size falls outside the table.
func clampToEdge(row map[int]float64, size int) float64 {
	minSize, maxSize := 0, 0
	for s := range row {
		if minSize == 0 || s < minSize {
			minSize = s
		}
		if s > maxSize {
			maxSize = s
		}
	}
	if size < minSize {
		return row[minSize]
	}
	return row[maxSize]
}
