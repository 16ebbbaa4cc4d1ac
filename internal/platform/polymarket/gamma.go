// Package polymarket adapts the Polymarket Gamma (discovery) and CLOB
// (trading) APIs to the scanner's market-source and order-placer
// interfaces.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/polymathbot/polymath/internal/domain"
)

const (
	// DefaultGammaURL is the production Gamma API root.
	DefaultGammaURL = "https://gamma-api.polymarket.com"

	gammaPageLimit = 500
	gammaMaxPages  = 20
)

// GammaClient is the unauthenticated REST client for market discovery.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a client against baseURL (DefaultGammaURL when
// empty).
func NewGammaClient(baseURL string) *GammaClient {
	if baseURL == "" {
		baseURL = DefaultGammaURL
	}
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// activeMarkets pages through open binary markets ordered by volume.
func (g *GammaClient) activeMarkets(ctx context.Context) ([]gammaMarket, error) {
	var all []gammaMarket
	for page := 0; page < gammaMaxPages; page++ {
		params := url.Values{}
		params.Set("active", "true")
		params.Set("closed", "false")
		params.Set("order", "volume")
		params.Set("ascending", "false")
		params.Set("limit", strconv.Itoa(gammaPageLimit))
		params.Set("offset", strconv.Itoa(page*gammaPageLimit))

		body, err := g.doGet(ctx, "/markets?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("polymarket/gamma: get markets: %w", err)
		}

		var markets []gammaMarket
		if err := json.Unmarshal(body, &markets); err != nil {
			return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
		}

		all = append(all, markets...)
		if len(markets) < gammaPageLimit {
			break
		}
	}
	return all, nil
}

// marketBySlug looks a single market up by its URL slug.
func (g *GammaClient) marketBySlug(ctx context.Context, slug string) (gammaMarket, error) {
	params := url.Values{}
	params.Set("slug", slug)

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return gammaMarket{}, fmt.Errorf("polymarket/gamma: get market by slug %s: %w", slug, err)
	}

	var markets []gammaMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return gammaMarket{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	if len(markets) == 0 {
		return gammaMarket{}, fmt.Errorf("polymarket/gamma: %w: slug=%s", domain.ErrNotFound, slug)
	}
	return markets[0], nil
}

func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("unauthorized: %s", bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s", bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
