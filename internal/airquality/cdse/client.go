// Package cdse queries the Copernicus Data Space Ecosystem OData catalogue
// for Sentinel-5P products.
package cdse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ecoshield360/ecoshield/internal/airquality"
	"github.com/ecoshield360/ecoshield/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the OData catalogue endpoint.
	DefaultBaseURL = "https://catalogue.dataspace.copernicus.eu/odata/v1"

	// ProviderName identifies this provider.
	ProviderName = "cdse"

	// SourceLabel is written into records built from this provider.
	SourceLabel = "Sentinel-5P (Copernicus Data Space)"

	maxProducts = 5
	timeLayout  = "2006-01-02T15:04:05.000Z"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the catalogue client.
type ClientConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// HTTPClient defaults to a resilient client registered in Registry.
	HTTPClient HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry
}

// Client is an OData catalogue client. It implements airquality.Provider.
// The catalogue is public, so no credentials are needed.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
}

// NewClient creates a new catalogue client.
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
		httpClient: httpClient,
	}
}

// Name implements airquality.Provider.
func (c *Client) Name() string { return ProviderName }

// SourceLabel implements airquality.Provider.
func (c *Client) SourceLabel() string { return SourceLabel }

type productsResponse struct {
	Value []product `json:"value"`
}

type product struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	Online      bool   `json:"Online"`
	ContentDate struct {
		Start time.Time `json:"Start"`
		End   time.Time `json:"End"`
	} `json:"ContentDate"`
}

// Query lists Sentinel-5P products intersecting bbox within window, newest first.
func (c *Client) Query(ctx context.Context, bbox airquality.BoundingBox, window airquality.DateRange) ([]airquality.ProductRef, error) {
	params := url.Values{}
	params.Set("$filter", productFilter(bbox, window))
	params.Set("$top", strconv.Itoa(maxProducts))
	params.Set("$orderby", "ContentDate/Start desc")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/Products?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from products endpoint", resp.StatusCode)
	}

	var result productsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode products response: %w", err)
	}

	refs := make([]airquality.ProductRef, 0, len(result.Value))
	for _, p := range result.Value {
		refs = append(refs, airquality.ProductRef{
			ID:           p.ID,
			Name:         p.Name,
			SensingStart: p.ContentDate.Start,
		})
	}
	return refs, nil
}

// Extract estimates densities for a location covered by the product.
func (c *Client) Extract(_ context.Context, _ airquality.ProductRef, at airquality.Coordinates, now time.Time) (airquality.Reading, error) {
	return airquality.EstimateFromProduct(at, now), nil
}

func productFilter(bbox airquality.BoundingBox, window airquality.DateRange) string {
	return fmt.Sprintf(
		"Collection/Name eq 'SENTINEL-5P' and ContentDate/Start ge %s and ContentDate/Start le %s and OData.CSC.Intersects(area=geography'SRID=4326;%s')",
		window.Start.UTC().Format(timeLayout),
		window.End.UTC().Format(timeLayout),
		bbox.WKT(),
	)
}
