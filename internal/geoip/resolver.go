// Package geoip resolves IP addresses to coarse locations via an external
// HTTP lookup service. Lookups are best-effort: the session risk engine
// bounds them with a timeout and treats any failure as an unknown location.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hirewire/authcore/internal/domain"
)

// HTTPResolver implements domain.LocationResolver against an ip-api style
// JSON endpoint.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver creates a resolver for the given lookup endpoint. The
// client timeout is a hard backstop; callers pass shorter deadlines via ctx.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type lookupResponse struct {
	Status     string `json:"status"`
	Country    string `json:"countryCode"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
}

// Resolve looks up a coarse location for ip. Private and unparseable
// addresses come back as errors; the caller degrades to unknown.
func (r *HTTPResolver) Resolve(ctx context.Context, ip string) (domain.Location, error) {
	endpoint := fmt.Sprintf("%s/%s", r.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Location{}, fmt.Errorf("geoip: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.Location{}, fmt.Errorf("geoip: lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Location{}, fmt.Errorf("geoip: lookup returned status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Location{}, fmt.Errorf("geoip: decode response: %w", err)
	}
	if body.Status != "" && body.Status != "success" {
		return domain.Location{}, fmt.Errorf("geoip: lookup failed for %s", ip)
	}

	return domain.Location{
		Country: body.Country,
		Region:  body.RegionName,
		City:    body.City,
	}, nil
}

// NoopResolver always reports an unknown location. Used when no lookup
// service is configured and in tests.
type NoopResolver struct{}

// Resolve implements domain.LocationResolver.
func (NoopResolver) Resolve(context.Context, string) (domain.Location, error) {
	return domain.Location{}, nil
}
