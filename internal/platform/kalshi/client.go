// Package kalshi adapts the Kalshi exchange REST API to the scanner's
// market-source and order-placer interfaces.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the production trade API root.
	DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

	// SettlementFeeRate is Kalshi's fee rate applied to winning settlements.
	SettlementFeeRate = 0.07

	pageLimit = 200
	maxPages  = 50
)

// Client is the authenticated REST client. Requests are signed with
// RSA-PSS-SHA256 over timestamp + method + path, per Kalshi's API key
// scheme. Read-only calls still require a key on the trade API.
type Client struct {
	baseURL    string
	signPrefix string // path component of baseURL, included in the signed message
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
}

// NewClient creates a client against baseURL (DefaultBaseURL when empty).
func NewClient(baseURL, apiKeyID string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	prefix := ""
	if u, err := url.Parse(baseURL); err == nil {
		prefix = u.Path
	}
	return &Client{
		baseURL:    baseURL,
		signPrefix: prefix,
		apiKeyID:   apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetRSAPrivateKey loads the signing key from PEM bytes. PKCS8 is tried
// first, PKCS1 as fallback.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// openMarkets pages through /markets?status=open until the cursor runs out
// or the page bound is hit.
func (c *Client) openMarkets(ctx context.Context) ([]apiMarket, error) {
	var all []apiMarket
	cursor := ""
	for page := 0; page < maxPages; page++ {
		params := url.Values{}
		params.Set("status", "open")
		params.Set("limit", strconv.Itoa(pageLimit))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		body, err := c.do(ctx, http.MethodGet, "/markets?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("kalshi: get markets: %w", err)
		}

		var resp struct {
			Markets []apiMarket `json:"markets"`
			Cursor  string      `json:"cursor"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("kalshi: decode markets: %w", err)
		}

		all = append(all, resp.Markets...)
		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return all, nil
}

// orderbook fetches depth for one ticker.
func (c *Client) orderbook(ctx context.Context, ticker string) (apiOrderbook, error) {
	path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(ticker))

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return apiOrderbook{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}

	var resp struct {
		Orderbook apiOrderbook `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return apiOrderbook{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}
	return resp.Orderbook, nil
}

// createOrder submits an order and returns the exchange's view of it.
func (c *Client) createOrder(ctx context.Context, order apiOrder) (apiOrderStatus, error) {
	body, err := c.do(ctx, http.MethodPost, "/portfolio/orders", order)
	if err != nil {
		return apiOrderStatus{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp struct {
		Order apiOrderStatus `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return apiOrderStatus{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}
	return resp.Order, nil
}

// getOrder fetches the current status of a previously placed order.
func (c *Client) getOrder(ctx context.Context, orderID string) (apiOrderStatus, error) {
	path := fmt.Sprintf("/portfolio/orders/%s", url.PathEscape(orderID))

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return apiOrderStatus{}, fmt.Errorf("kalshi: get order %s: %w", orderID, err)
	}

	var resp struct {
		Order apiOrderStatus `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return apiOrderStatus{}, fmt.Errorf("kalshi: decode order: %w", err)
	}
	return resp.Order, nil
}

// cancelOrder cancels a resting order.
func (c *Client) cancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/portfolio/orders/%s", url.PathEscape(orderID))
	if _, err := c.do(ctx, http.MethodDelete, path, nil); err != nil {
		return fmt.Errorf("kalshi: cancel order %s: %w", orderID, err)
	}
	return nil
}

// do builds, signs, sends, and reads one request. path must include the
// query string; the signature covers the path without it.
func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.sign(req, method, path); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// sign adds the KALSHI-ACCESS-* headers. The signed message is
// timestamp + method + path, with the query string stripped.
func (c *Client) sign(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured")
	}

	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + c.signPrefix + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx responses to errors carrying the API's own
// code and message.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("kalshi: not found: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("kalshi: unauthorized: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("kalshi: rate limited: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusBadRequest:
		return fmt.Errorf("kalshi: bad request: %s (%s)", apiErr.Message, apiErr.Code)
	case http.StatusConflict:
		return fmt.Errorf("kalshi: conflict: %s (%s)", apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
