package hud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hudServer fakes the two HUD endpoints the client chains together.
func hudServer(t *testing.T, limits map[int]map[string]interface{}, requests *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests != nil {
			*requests = append(*requests, r.URL.String())
		}

		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		switch {
		case r.URL.Path == "/counties":
			assert.Equal(t, "TX", r.URL.Query().Get("state"))
			json.NewEncoder(w).Encode([]map[string]string{
				{"county_name": "Harris County", "fips_code": "48201"},
				{"county_name": "Travis County", "fips_code": "48453"},
			})
		case r.URL.Path == "/incomeLimits/48453":
			year := r.URL.Query().Get("year")
			body, ok := limits[atoiOr(year)]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func atoiOr(s string) int {
	var n int
	fmt.Sscanf(s, "%d", &n)
	return n
}

func standardBody() map[string]interface{} {
	return map[string]interface{}{
		"county_fips": "48453",
		"year":        2025,
		"income_limits": map[string]map[string]float64{
			"50": {"1": 35000, "2": 40000},
			"60": {"1": 42000, "2": 48000},
		},
	}
}

func TestClientLimits(t *testing.T) {
	srv := hudServer(t, map[int]map[string]interface{}{2025: standardBody()}, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", 5*time.Second, NewCache(time.Hour, nil))

	// County matching tolerates the " County" suffix and case.
	table, err := client.Limits(context.Background(), "travis", "TX", 2025, nil)
	require.NoError(t, err)

	assert.Equal(t, 35000.0, table[50][1])
	assert.Equal(t, 48000.0, table[60][2])
}

func TestClientHERASubstitution(t *testing.T) {
	body := standardBody()
	body["hera_special"] = map[string]map[string]float64{
		"50": {"1": 37000, "2": 42000},
	}
	srv := hudServer(t, map[int]map[string]interface{}{2025: body}, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", 5*time.Second, NewCache(time.Hour, nil))

	// Placed in service before 2009: HERA-special rows replace standard
	// ones where published.
	pis := "2005-03-15"
	table, err := client.Limits(context.Background(), "Travis County", "TX", 2025, &pis)
	require.NoError(t, err)

	assert.Equal(t, 37000.0, table[50][1])
	// No HERA row for 60%: standard retained.
	assert.Equal(t, 42000.0, table[60][1])
}

func TestClientHERAIgnoredForNewerProperties(t *testing.T) {
	body := standardBody()
	body["hera_special"] = map[string]map[string]float64{
		"50": {"1": 37000},
	}
	srv := hudServer(t, map[int]map[string]interface{}{2025: body}, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", 5*time.Second, NewCache(time.Hour, nil))

	pis := "2015-03-15"
	table, err := client.Limits(context.Background(), "Travis", "TX", 2025, &pis)
	require.NoError(t, err)

	assert.Equal(t, 35000.0, table[50][1])
}

func TestClientYearFallback(t *testing.T) {
	// HUD publishes new-year tables late; only 2024 exists.
	var requests []string
	srv := hudServer(t, map[int]map[string]interface{}{2024: standardBody()}, &requests)
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", 5*time.Second, NewCache(time.Hour, nil))

	table, err := client.Limits(context.Background(), "Travis", "TX", 2025, nil)
	require.NoError(t, err)
	assert.Equal(t, 35000.0, table[50][1])

	assert.Contains(t, requests, "/incomeLimits/48453?year=2025")
	assert.Contains(t, requests, "/incomeLimits/48453?year=2024")
}

func TestClientCaching(t *testing.T) {
	var requests []string
	srv := hudServer(t, map[int]map[string]interface{}{2025: standardBody()}, &requests)
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", 5*time.Second, NewCache(time.Hour, nil))

	_, err := client.Limits(context.Background(), "Travis", "TX", 2025, nil)
	require.NoError(t, err)
	first := len(requests)

	_, err = client.Limits(context.Background(), "Travis", "TX", 2025, nil)
	require.NoError(t, err)
	assert.Equal(t, first, len(requests), "second call should be served from cache")
}

func TestClientCountyNotFound(t *testing.T) {
	srv := hudServer(t, map[int]map[string]interface{}{2025: standardBody()}, nil)
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", 5*time.Second, NewCache(time.Hour, nil))

	_, err := client.Limits(context.Background(), "Nowhere", "TX", 2025, nil)
	assert.Error(t, err)
}

func TestRegimeFor(t *testing.T) {
	assert.Equal(t, RegimeStandard, regimeFor(nil))
	empty := ""
	assert.Equal(t, RegimeStandard, regimeFor(&empty))
	old := "2008-12-31"
	assert.Equal(t, RegimeHERASpecial, regimeFor(&old))
	newer := "2009-01-01"
	assert.Equal(t, RegimeHoldHarmless, regimeFor(&newer))
	bad := "not-a-date"
	assert.Equal(t, RegimeStandard, regimeFor(&bad))
}

func TestStatusError(t *testing.T) {
	err := &StatusError{URL: "http://x/incomeLimits/48453", StatusCode: 503}
	assert.Contains(t, err.Error(), "503")
}
