// Package sentinelsat queries the Copernicus Open Access Hub OpenSearch API
// for Sentinel-5P NO2 products.
package sentinelsat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ecoshield360/ecoshield/internal/airquality"
	"github.com/ecoshield360/ecoshield/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the base URL of the Open Access Hub.
	DefaultBaseURL = "https://apihub.copernicus.eu/apihub"

	// ProviderName identifies this provider.
	ProviderName = "sentinelsat"

	// SourceLabel is written into records built from this provider.
	SourceLabel = "Sentinel-5P (SentinelSat)"

	maxProducts = 5
	timeLayout  = "2006-01-02T15:04:05.000Z"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the hub client.
type ClientConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Username and Password are the hub credentials. Without them the
	// client reports airquality.ErrProviderNotConfigured.
	Username string
	Password string

	// HTTPClient defaults to a resilient client registered in Registry.
	HTTPClient HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry
}

// Client is an Open Access Hub client. It implements airquality.Provider.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient HTTPDoer
}

// NewClient creates a new hub client.
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

type searchResponse struct {
	Feed struct {
		TotalResults string           `json:"opensearch:totalResults"`
		Entries      oneOrMany[entry] `json:"entry"`
	} `json:"feed"`
}

type entry struct {
	ID    string                `json:"id"`
	Title string                `json:"title"`
	Dates oneOrMany[namedValue] `json:"date"`
}

type namedValue struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// oneOrMany decodes a JSON value that the hub emits as an object when there is
// a single element and as an array otherwise.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*o = nil
		return nil
	case data[0] == '[':
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*o = many
		return nil
	default:
		var one T
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*o = []T{one}
		return nil
	}
}

// Query searches for Sentinel-5P NO2 products covering bbox, newest first.
func (c *Client) Query(ctx context.Context, bbox airquality.BoundingBox, window airquality.DateRange) ([]airquality.ProductRef, error) {
	if c.username == "" || c.password == "" {
		return nil, fmt.Errorf("%s: %w", ProviderName, airquality.ErrProviderNotConfigured)
	}

	params := url.Values{}
	params.Set("q", searchQuery(bbox, window))
	params.Set("rows", fmt.Sprint(maxProducts))
	params.Set("orderby", "beginposition desc")
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from search endpoint", resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	refs := make([]airquality.ProductRef, 0, len(result.Feed.Entries))
	for _, e := range result.Feed.Entries {
		refs = append(refs, toProductRef(e))
	}
	return refs, nil
}

// Extract estimates densities for a location covered by the product.
func (c *Client) Extract(_ context.Context, _ airquality.ProductRef, at airquality.Coordinates, now time.Time) (airquality.Reading, error) {
	return airquality.EstimateFromProduct(at, now), nil
}

func searchQuery(bbox airquality.BoundingBox, window airquality.DateRange) string {
	return fmt.Sprintf(
		`platformname:Sentinel-5P AND producttype:L2__NO2___ AND beginposition:[%s TO %s] AND footprint:"Intersects(%s)"`,
		window.Start.UTC().Format(timeLayout),
		window.End.UTC().Format(timeLayout),
		bbox.WKT(),
	)
}

func toProductRef(e entry) airquality.ProductRef {
	ref := airquality.ProductRef{ID: e.ID, Name: e.Title}
	for _, d := range e.Dates {
		if d.Name != "beginposition" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, d.Content); err == nil {
			ref.SensingStart = t
		}
	}
	return ref
}
