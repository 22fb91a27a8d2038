package ebird

import (
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbio/sightings/internal/errors"
	"github.com/fieldbio/sightings/internal/logger"
)

const testBaseURL = "https://api.ebird.test/v2"

// setupTestClient creates a client whose transport is intercepted by httpmock
func setupTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(Config{
		APIKey:      "test-key",
		BaseURL:     testBaseURL + "/",
		Timeout:     5 * time.Second,
		CacheTTL:    time.Hour,
		RateLimitMS: 1,
	}, logger.NewDiscardLogger())
	require.NoError(t, err)

	httpmock.ActivateNonDefault(client.httpClient)
	t.Cleanup(func() {
		httpmock.DeactivateAndReset()
		client.Close()
	})

	return client
}

func jsonResponder(status int, body string) httpmock.Responder {
	return httpmock.NewStringResponder(status, body).
		HeaderSet(http.Header{"Content-Type": {"application/json; charset=utf-8"}})
}

const recentMotduc = `[
  {"speciesCode":"motduc","comName":"Mottled Duck","sciName":"Anas fulvigula","locId":"L123","locName":"Lake Eola",
   "obsDt":"2024-03-01 07:15","howMany":3,"lat":28.5432,"lng":-81.3731,"obsValid":true,"obsReviewed":false,
   "locationPrivate":false,"subId":"S123456789"},
  {"speciesCode":"motduc","comName":"Mottled Duck","sciName":"Anas fulvigula","locId":"L456","locName":"Backyard",
   "obsDt":"2024-03-02","lat":28.6,"lng":-81.2,"obsValid":true,"obsReviewed":true,
   "locationPrivate":true,"subId":"S987654321"}
]`

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestRecentObservations_Success(t *testing.T) {
	client := setupTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/data/obs/US-FL-095/recent/motduc",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "test-key", req.Header.Get("X-eBirdApiToken"))
			assert.Equal(t, "30", req.URL.Query().Get("back"))
			assert.Equal(t, "true", req.URL.Query().Get("includeProvisional"))
			return jsonResponder(http.StatusOK, recentMotduc)(req)
		})

	obs, err := client.RecentObservations(t.Context(), "US-FL-095", "motduc",
		ObservationQuery{Back: 30, IncludeProvisional: true})
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, "S123456789", obs[0].SubID)
	require.NotNil(t, obs[0].HowMany)
	assert.Equal(t, 3, *obs[0].HowMany)
	assert.InDelta(t, -81.3731, obs[0].Lng, 1e-9)
	assert.Nil(t, obs[1].HowMany, "X reports carry no count")
	assert.True(t, obs[1].LocationPrivate)

	assert.Equal(t, int64(1), client.GetMetrics().APICalls)
}

func TestRecentObservations_InvalidQuery(t *testing.T) {
	client := setupTestClient(t)

	_, err := client.RecentObservations(t.Context(), "", "motduc", ObservationQuery{})
	require.Error(t, err)

	_, err = client.RecentObservations(t.Context(), "US-FL", "motduc", ObservationQuery{Back: 31})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestRecentObservations_HTTPErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		category errors.ErrorCategory
		calls    int
	}{
		{"unauthorized", http.StatusUnauthorized, errors.CategoryConfiguration, 1},
		{"forbidden", http.StatusForbidden, errors.CategoryConfiguration, 1},
		{"not_found", http.StatusNotFound, errors.CategoryNotFound, 1},
		{"bad_request", http.StatusBadRequest, errors.CategoryValidation, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := setupTestClient(t)
			httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/data/obs/US-FL/recent/motduc",
				jsonResponder(tt.status, `{"title":"Error","status":0,"detail":"nope"}`))

			_, err := client.RecentObservations(t.Context(), "US-FL", "motduc", ObservationQuery{})
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tt.category), "got %v", err)
			assert.Contains(t, err.Error(), "nope")
			assert.Equal(t, tt.calls, httpmock.GetTotalCallCount())
		})
	}
}

func TestRecentObservations_RetriesServerErrors(t *testing.T) {
	client := setupTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/data/obs/US-FL/recent/motduc",
		httpmock.ResponderFromMultipleResponses([]*http.Response{
			httpmock.NewStringResponse(http.StatusServiceUnavailable, "down"),
		}).Then(jsonResponder(http.StatusOK, `[]`)))

	obs, err := client.RecentObservations(t.Context(), "US-FL", "motduc", ObservationQuery{})
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
	assert.Equal(t, int64(1), client.GetMetrics().APIErrors)
}

func TestRecentObservations_NonJSON(t *testing.T) {
	client := setupTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/data/obs/US-FL/recent/motduc",
		httpmock.NewStringResponder(http.StatusOK, "speciesCode,comName\n"))

	_, err := client.RecentObservations(t.Context(), "US-FL", "motduc", ObservationQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-JSON")
}

func TestGetTaxonomy_Cached(t *testing.T) {
	client := setupTestClient(t)

	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/ref/taxonomy/ebird",
		jsonResponder(http.StatusOK, `[
		  {"sciName":"Anas fulvigula","comName":"Mottled Duck","speciesCode":"motduc","category":"species"},
		  {"sciName":"Anas platyrhynchos","comName":"Mallard","speciesCode":"mallar3","category":"species"},
		  {"sciName":"Anas platyrhynchos x fulvigula","comName":"Mallard x Mottled Duck (hybrid)","speciesCode":"x00004","category":"hybrid"}
		]`))

	first, err := client.GetTaxonomy(t.Context(), "")
	require.NoError(t, err)
	second, err := client.GetTaxonomy(t.Context(), "")
	require.NoError(t, err)

	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())

	m := client.GetMetrics()
	assert.Equal(t, int64(1), m.CacheHits)
	assert.Equal(t, int64(1), m.CacheMisses)

	known, unknown, err := client.ValidateSpeciesCodes(t.Context(), []string{"motduc", "x00004", "dodo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"motduc", "x00004"}, known)
	assert.Equal(t, []string{"dodo"}, unknown)
}
