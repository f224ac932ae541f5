package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// Client wraps the Nominatim reverse-geocoding API. Nominatim's usage
// policy caps anonymous clients at one request per second, enforced here
// so a burst of dashboard lookups queues instead of getting the service
// banned.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient() *Client {
	return &Client{
		baseURL:   "https://nominatim.openstreetmap.org",
		userAgent: "station-tracker-backend",
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// ReverseGeocode resolves a coordinate into the provider's raw address
// payload, passed through untouched for the dashboard to render.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := fmt.Sprintf("%s/reverse?format=json&lat=%s&lon=%s",
		c.baseURL, url.QueryEscape(lat), url.QueryEscape(lng))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reverse geocode API returned HTTP %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return raw, nil
}
