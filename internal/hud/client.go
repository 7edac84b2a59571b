// Package hud resolves county+state+year to a HUD MTSP income-limit table
// via two chained API calls (county → FIPS, then FIPS → limits), applying
// the HERA-special or hold-harmless limit regime where the property's
// placed-in-service date requires it.
package hud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// LimitTable maps AMI percentage → household size → annual income limit.
type LimitTable map[int]map[int]float64

// Limit regimes. Which one applies depends on the property's
// placed-in-service date and whether HERA-special data exists for the county.
const (
	RegimeStandard     = "standard"
	RegimeHERASpecial  = "hera_special"
	RegimeHoldHarmless = "hold_harmless"
)

// heraCutoff: properties placed in service before 2009-01-01 use
// HERA-special limits when available; later properties rely on the
// upstream API's built-in hold-harmless application.
var heraCutoff = time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)

// StatusError reports a non-2xx response from the HUD API.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hud: %s returned status %d", e.URL, e.StatusCode)
}

// Client fetches income-limit tables from the HUD API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	cache   *Cache
}

// NewClient creates a Client. timeout bounds each HTTP call so a slow
// upstream never stalls callers; 10s is the recommended budget.
func NewClient(baseURL, token string, timeout time.Duration, cache *Cache) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cache == nil {
		cache = NewCache(24*time.Hour, nil)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		cache:   cache,
	}
}

// ── Wire types ───────────────────────────────────────────────────

type countyEntry struct {
	CountyName string `json:"county_name"`
	FipsCode   string `json:"fips_code"`
}

type limitsResponse struct {
	CountyFips   string                        `json:"county_fips"`
	Year         int                           `json:"year"`
	IncomeLimits map[string]map[string]float64 `json:"income_limits"`
	HeraSpecial  map[string]map[string]float64 `json:"hera_special,omitempty"`
}

// ── Public API ───────────────────────────────────────────────────

// Limits resolves the income-limit table for a county/state/year. On a
// failed fetch for year it retries once with year-1 before giving up.
// placedInService (YYYY-MM-DD, may be nil) selects the limit regime.
func (c *Client) Limits(ctx context.Context, county, state string, year int, placedInService *string) (LimitTable, error) {
	regime := regimeFor(placedInService)
	key := cacheKey(county, state, year, regime)
	if table, ok := c.cache.Get(key); ok {
		return table, nil
	}

	table, err := c.fetch(ctx, county, state, year, regime)
	if err != nil {
		// Fallback policy: HUD publishes new-year tables late; last
		// year's limits are better than none.
		prev, prevErr := c.fetch(ctx, county, state, year-1, regime)
		if prevErr != nil {
			return nil, fmt.Errorf("hud: limits for %s, %s year %d: %w", county, state, year, err)
		}
		table = prev
	}

	c.cache.Set(key, table)
	return table, nil
}

func (c *Client) fetch(ctx context.Context, county, state string, year int, regime string) (LimitTable, error) {
	fips, err := c.lookupFips(ctx, county, state)
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/incomeLimits/%s?year=%d", c.baseURL, fips, year)
	var resp limitsResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}

	table, err := parseTable(resp.IncomeLimits)
	if err != nil {
		return nil, fmt.Errorf("hud: parse limits for fips %s: %w", fips, err)
	}

	// HERA Special substitutes the 50/60/80 tables when the property
	// predates HERA and the county has special limits; all other rows
	// fall back to standard. Hold-harmless is applied upstream, so both
	// remaining regimes use the table as returned.
	if regime == RegimeHERASpecial && len(resp.HeraSpecial) > 0 {
		hera, err := parseTable(resp.HeraSpecial)
		if err != nil {
			return nil, fmt.Errorf("hud: parse hera limits for fips %s: %w", fips, err)
		}
		for _, pct := range []int{50, 60, 80} {
			if row, ok := hera[pct]; ok {
				table[pct] = row
			}
		}
	}

	return table, nil
}

// lookupFips resolves a county name to its FIPS code via the state's
// county list. Matching is case-insensitive and tolerates a " County"
// suffix on either side.
func (c *Client) lookupFips(ctx context.Context, county, state string) (string, error) {
	u := fmt.Sprintf("%s/counties?state=%s", c.baseURL, url.QueryEscape(state))
	var counties []countyEntry
	if err := c.getJSON(ctx, u, &counties); err != nil {
		return "", err
	}

	want := normalizeCounty(county)
	for _, entry := range counties {
		if normalizeCounty(entry.CountyName) == want {
			return entry.FipsCode, nil
		}
	}
	return "", fmt.Errorf("hud: county %q not found in state %s", county, state)
}

func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hud: GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: u, StatusCode: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ── Helpers ──────────────────────────────────────────────────────

func regimeFor(placedInService *string) string {
	if placedInService == nil || *placedInService == "" {
		return RegimeStandard
	}
	pis, err := time.Parse("2006-01-02", *placedInService)
	if err != nil {
		return RegimeStandard
	}
	if pis.Before(heraCutoff) {
		return RegimeHERASpecial
	}
	return RegimeHoldHarmless
}

func cacheKey(county, state string, year int, regime string) string {
	return fmt.Sprintf("%s|%s|%d|%s", normalizeCounty(county), strings.ToUpper(state), year, regime)
}

func normalizeCounty(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimSuffix(n, " county")
	return n
}

func parseTable(wire map[string]map[string]float64) (LimitTable, error) {
	table := make(LimitTable, len(wire))
	for pctStr, row := range wire {
		pct, err := strconv.Atoi(pctStr)
		if err != nil {
			return nil, fmt.Errorf("bad AMI percentage %q", pctStr)
		}
		sizes := make(map[int]float64, len(row))
		for sizeStr, limit := range row {
			size, err := strconv.Atoi(sizeStr)
			if err != nil {
				return nil, fmt.Errorf("bad household size %q", sizeStr)
			}
			sizes[size] = limit
		}
		table[pct] = sizes
	}
	return table, nil
}
