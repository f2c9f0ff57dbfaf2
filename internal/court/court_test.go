package court

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/section1983-backend/pkg/metrics"
	"github.com/aldoetobex/section1983-backend/pkg/testutil"
)

func TestEveryListedCityIsHighConfidence(t *testing.T) {
	tbl := Default()
	for _, st := range tbl.States() {
		for _, d := range st.Districts {
			for _, city := range d.Cities {
				res := tbl.Lookup(strings.ToUpper(city), strings.ToLower(st.Code))
				require.Equal(t, High, res.Confidence, "%s, %s", city, st.Code)
				assert.Equal(t, d.Name, res.District, "%s, %s", city, st.Code)
				assert.Equal(t, CourtName(d.Name), res.CourtName)
			}
		}
	}
}

func TestSingleDistrictStateDefaultsUnlistedCity(t *testing.T) {
	for _, tc := range []struct{ city, state, district, name string }{
		{"Tiny Hamlet", "co", "District of Colorado", "Colorado"},
		{"Nowheresville", "AZ", "District of Arizona", "Arizona"},
		{"", "CO", "District of Colorado", "Colorado"},
	} {
		res := Lookup(tc.city, tc.state)
		assert.Equal(t, tc.district, res.District)
		assert.Equal(t, Low, res.Confidence, "%q, %s", tc.city, tc.state)
		assert.Equal(t, MethodSingleDistrict, res.Method)
		assert.Contains(t, res.Note, "defaulted")
		assert.Contains(t, res.Note, tc.name)
	}

	listed := Lookup("Boulder", "CO")
	assert.Equal(t, High, listed.Confidence)
	assert.Equal(t, MethodExact, listed.Method)
}

func TestKeywordFallback(t *testing.T) {
	res := Lookup("  North   Houston ", "TX")
	assert.Equal(t, "Southern District of Texas", res.District)
	assert.Equal(t, Medium, res.Confidence)
	assert.Equal(t, MethodKeyword, res.Method)
	assert.Equal(t, "north houston", res.City)
}

func TestUnknownCityIsLowConfidence(t *testing.T) {
	defaulted := Lookup("Nowhereville", "TX")
	assert.Equal(t, Low, defaulted.Confidence)
	assert.Equal(t, MethodDefault, defaulted.Method)
	assert.Equal(t, "Southern District of Texas", defaulted.District)
	assert.Contains(t, defaulted.Note, "defaulted")

	unsupported := Lookup("Nowhereville", "KY")
	assert.Equal(t, Low, unsupported.Confidence)
	assert.Equal(t, MethodUnsupported, unsupported.Method)
	assert.Contains(t, unsupported.District, "Kentucky")
	assert.Contains(t, unsupported.Note, "unsupported")

	unknown := Lookup("Dallas", "ZZ")
	assert.Equal(t, Low, unknown.Confidence)
	assert.Equal(t, MethodUnknownState, unknown.Method)
	assert.Contains(t, unknown.Note, "ZZ")
}

func TestFirstListingWinsAcrossDistricts(t *testing.T) {
	tbl, err := Parse([]byte(`
states:
  XX:
    name: Example
    districts:
      - name: North
        cities: [twin]
      - name: South
        cities: [twin, other]
`))
	require.NoError(t, err)
	assert.Equal(t, "North", tbl.Lookup("Twin", "XX").District)
	assert.Equal(t, "South", tbl.Lookup("other", "XX").District)
}

func TestParseRejectsBadDefault(t *testing.T) {
	_, err := Parse([]byte(`
states:
  XX:
    name: Example
    default: Nowhere
    districts:
      - name: North
        cities: [a]
`))
	assert.Error(t, err)
}

func TestLookupHandler(t *testing.T) {
	h := NewHandler(nil, metrics.New(prometheus.NewRegistry()))
	app := fiber.New()
	app.Get("/api/court/lookup", h.Lookup)
	app.Get("/api/court/states/:code", h.State)

	resp := testutil.Do(t, app, http.MethodGet, "/api/court/lookup?city=Dallas&state=tx", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res Result
	testutil.Decode(t, resp, &res)
	assert.Equal(t, "Northern District of Texas", res.District)

	resp = testutil.Do(t, app, http.MethodGet, "/api/court/lookup?city=Dallas", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = testutil.Do(t, app, http.MethodGet, "/api/court/states/ny", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st StateInfo
	testutil.Decode(t, resp, &st)
	assert.Len(t, st.Districts, 4)
}
