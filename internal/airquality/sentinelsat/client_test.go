package sentinelsat_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoshield360/ecoshield/internal/airquality"
	"github.com/ecoshield360/ecoshield/internal/airquality/sentinelsat"
)

var window = airquality.DateRange{
	Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC),
}

var bbox = airquality.BoundingBox{West: 4, South: 52, East: 5, North: 53}

func newClient(url string) *sentinelsat.Client {
	return sentinelsat.NewClient(sentinelsat.ClientConfig{
		BaseURL:    url,
		Username:   "user",
		Password:   "secret",
		HTTPClient: http.DefaultClient,
	})
}

func TestClient_Query(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "secret", pass)

		q := r.URL.Query()
		assert.Equal(t, "5", q.Get("rows"))
		assert.Equal(t, "json", q.Get("format"))
		assert.Contains(t, q.Get("q"), "platformname:Sentinel-5P")
		assert.Contains(t, q.Get("q"), "producttype:L2__NO2___")
		assert.Contains(t, q.Get("q"), "beginposition:[2024-05-01T00:00:00.000Z TO 2024-05-08T00:00:00.000Z]")
		assert.Contains(t, q.Get("q"), `footprint:"Intersects(POLYGON((4 52, 5 52, 5 53, 4 53, 4 52)))"`)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"feed": {
			"opensearch:totalResults": "2",
			"entry": [
				{"id": "p-1", "title": "S5P_OFFL_L2__NO2____20240507", "date": [
					{"name": "beginposition", "content": "2024-05-07T11:02:03.000Z"},
					{"name": "endposition", "content": "2024-05-07T12:43:33.000Z"}
				]},
				{"id": "p-2", "title": "S5P_OFFL_L2__NO2____20240506", "date": {"name": "beginposition", "content": "2024-05-06T10:00:00Z"}}
			]
		}}`))
	}))
	defer server.Close()

	refs, err := newClient(server.URL).Query(context.Background(), bbox, window)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	assert.Equal(t, "p-1", refs[0].ID)
	assert.Equal(t, "S5P_OFFL_L2__NO2____20240507", refs[0].Name)
	assert.Equal(t, time.Date(2024, 5, 7, 11, 2, 3, 0, time.UTC), refs[0].SensingStart)
	assert.Equal(t, time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC), refs[1].SensingStart)
}

func TestClient_QuerySingleEntryObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"feed": {"opensearch:totalResults": "1", "entry": {"id": "only", "title": "S5P"}}}`))
	}))
	defer server.Close()

	refs, err := newClient(server.URL).Query(context.Background(), bbox, window)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "only", refs[0].ID)
}

func TestClient_QueryNoEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"feed": {"opensearch:totalResults": "0"}}`))
	}))
	defer server.Close()

	refs, err := newClient(server.URL).Query(context.Background(), bbox, window)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestClient_QueryErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"unauthorized", http.StatusUnauthorized, "", "unexpected status 401"},
		{"server error", http.StatusServiceUnavailable, "", "unexpected status 503"},
		{"malformed body", http.StatusOK, "<html>", "decode search response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newClient(server.URL).Query(context.Background(), bbox, window)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClient_QueryWithoutCredentials(t *testing.T) {
	client := sentinelsat.NewClient(sentinelsat.ClientConfig{HTTPClient: http.DefaultClient})

	_, err := client.Query(context.Background(), bbox, window)
	assert.ErrorIs(t, err, airquality.ErrProviderNotConfigured)
}

func TestClient_Extract(t *testing.T) {
	c, err := airquality.NewCoordinates(52.5, 4.5, 5)
	require.NoError(t, err)
	now := time.Date(2024, 5, 8, 9, 0, 0, 0, time.UTC)

	reading, err := newClient("http://unused").Extract(context.Background(), airquality.ProductRef{ID: "p-1"}, c, now)
	require.NoError(t, err)

	assert.Equal(t, airquality.EstimateFromProduct(c, now).Densities(), reading.Densities())
	assert.Equal(t, sentinelsat.SourceLabel, newClient("").SourceLabel())
	assert.Equal(t, sentinelsat.ProviderName, newClient("").Name())
}
