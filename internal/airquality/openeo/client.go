// Package openeo computes the mean Sentinel-5P NO2 column over an area by
// running a synchronous process graph on an openEO back-end.
package openeo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ecoshield360/ecoshield/internal/airquality"
	"github.com/ecoshield360/ecoshield/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the openEO platform federation endpoint.
	DefaultBaseURL = "https://openeo.cloud/openeo/1.2"

	// ProviderName identifies this provider.
	ProviderName = "openeo"

	// SourceLabel is written into records built from this provider.
	SourceLabel = "Sentinel-5P (openEO)"

	// CollectionID is the Sentinel-5P level 2 collection.
	CollectionID = "SENTINEL_5P_L2"

	dateLayout = "2006-01-02"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the openEO client.
type ClientConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Username and Password are used for HTTP basic authentication. Without
	// them the client reports airquality.ErrProviderNotConfigured.
	Username string
	Password string

	// HTTPClient defaults to a resilient client registered in Registry.
	HTTPClient HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry
}

// Client is an openEO client. It implements airquality.Provider.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient HTTPDoer
}

// NewClient creates a new openEO client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		rc.Registry = cfg.Registry
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: httpClient,
	}
}

// Name implements airquality.Provider.
func (c *Client) Name() string { return ProviderName }

// SourceLabel implements airquality.Provider.
func (c *Client) SourceLabel() string { return SourceLabel }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Query runs the NO2 mean process graph. It returns a single product carrying
// the measured NO2 column, or none when the area has no valid pixels.
func (c *Client) Query(ctx context.Context, bbox airquality.BoundingBox, window airquality.DateRange) ([]airquality.ProductRef, error) {
	if c.username == "" || c.password == "" {
		return nil, fmt.Errorf("%s: %w", ProviderName, airquality.ErrProviderNotConfigured)
	}

	token, err := c.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	mean, ok, err := c.meanNO2(ctx, token, bbox, window)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	start, end := window.Start.UTC().Format(dateLayout), window.End.UTC().Format(dateLayout)
	return []airquality.ProductRef{{
		ID:           CollectionID + ":" + start + "/" + end,
		Name:         CollectionID + " NO2 mean",
		SensingStart: window.Start,
		Measured:     map[airquality.Pollutant]float64{airquality.PollutantNO2: mean},
	}}, nil
}

// Extract derives the other pollutants from the measured NO2 column.
func (c *Client) Extract(_ context.Context, ref airquality.ProductRef, _ airquality.Coordinates, _ time.Time) (airquality.Reading, error) {
	no2, ok := ref.Measured[airquality.PollutantNO2]
	if !ok {
		return airquality.Reading{}, fmt.Errorf("product %s carries no NO2 measurement", ref.ID)
	}
	return airquality.DeriveFromNO2(no2), nil
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/credentials/basic", http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from credentials endpoint", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("empty access token")
	}
	return tr.AccessToken, nil
}

func (c *Client) meanNO2(ctx context.Context, token string, bbox airquality.BoundingBox, window airquality.DateRange) (float64, bool, error) {
	body, err := json.Marshal(processRequest{Process: process{Graph: no2MeanGraph(bbox, window)}})
	if err != nil {
		return 0, false, fmt.Errorf("encode process graph: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/result", bytes.NewReader(body))
	if err != nil {
		return 0, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer basic//"+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("execute process graph: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("unexpected status %d from result endpoint", resp.StatusCode)
	}

	var result any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, false, fmt.Errorf("decode result: %w", err)
	}

	var sum float64
	var n int
	walkNumbers(result, func(v float64) {
		sum += v
		n++
	})
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

// walkNumbers calls fn for every finite number in a decoded JSON value.
func walkNumbers(v any, fn func(float64)) {
	switch t := v.(type) {
	case float64:
		if !math.IsNaN(t) && !math.IsInf(t, 0) {
			fn(t)
		}
	case []any:
		for _, item := range t {
			walkNumbers(item, fn)
		}
	case map[string]any:
		for _, item := range t {
			walkNumbers(item, fn)
		}
	}
}

type processRequest struct {
	Process process `json:"process"`
}

type process struct {
	Graph map[string]node `json:"process_graph"`
}

type node struct {
	ProcessID string         `json:"process_id"`
	Arguments map[string]any `json:"arguments"`
	Result    bool           `json:"result,omitempty"`
}

// no2MeanGraph loads the NO2 band for the area and window, averages it over
// time and returns the per-pixel means as JSON.
func no2MeanGraph(bbox airquality.BoundingBox, window airquality.DateRange) map[string]node {
	return map[string]node{
		"load": {
			ProcessID: "load_collection",
			Arguments: map[string]any{
				"id": CollectionID,
				"spatial_extent": map[string]float64{
					"west":  bbox.West,
					"south": bbox.South,
					"east":  bbox.East,
					"north": bbox.North,
				},
				"temporal_extent": []string{
					window.Start.UTC().Format(dateLayout),
					window.End.UTC().Format(dateLayout),
				},
				"bands": []string{"NO2"},
			},
		},
		"mean_time": {
			ProcessID: "reduce_dimension",
			Arguments: map[string]any{
				"data":      map[string]string{"from_node": "load"},
				"dimension": "t",
				"reducer": map[string]any{
					"process_graph": map[string]node{
						"mean": {
							ProcessID: "mean",
							Arguments: map[string]any{
								"data":          map[string]string{"from_parameter": "data"},
								"ignore_nodata": true,
							},
							Result: true,
						},
					},
				},
			},
		},
		"save": {
			ProcessID: "save_result",
			Arguments: map[string]any{
				"data":   map[string]string{"from_node": "mean_time"},
				"format": "JSON",
			},
			Result: true,
		},
	}
}
