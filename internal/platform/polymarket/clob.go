package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/polymathbot/polymath/internal/crypto"
)

// DefaultClobURL is the production CLOB API root.
const DefaultClobURL = "https://clob.polymarket.com"

// ClobClient is the REST client for the Polymarket central limit order
// book: order placement, status, cancellation, and public book data.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
}

// NewClobClient creates a CLOB client. signer is required for trading;
// hmac may be nil until DeriveAPIKey runs.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth) *ClobClient {
	if baseURL == "" {
		baseURL = DefaultClobURL
	}
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer:   signer,
		hmacAuth: hmac,
	}
}

// DeriveAPIKey runs the L1 auth flow: sign a ClobAuth EIP-712 message and
// exchange it for HMAC credentials, which are stored on the client.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", fmt.Sprintf("%d", timestamp))
	req.Header.Set("POLY_NONCE", fmt.Sprintf("%d", nonce))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("polymarket/clob: auth failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// book fetches the public orderbook for one outcome token.
func (c *ClobClient) book(ctx context.Context, tokenID string) (clobBook, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/book?"+params.Encode(), nil)
	if err != nil {
		return clobBook{}, fmt.Errorf("polymarket/clob: create book request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return clobBook{}, fmt.Errorf("polymarket/clob: get book: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return clobBook{}, fmt.Errorf("polymarket/clob: read book: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return clobBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book clobBook
	if err := json.Unmarshal(body, &book); err != nil {
		return clobBook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book, nil
}

// signedOrder is the payload for one submission: the EIP-712 signed order
// plus routing metadata.
type signedOrder struct {
	payload   crypto.OrderPayload
	signature string
	orderType string // "FAK" for our immediate-or-cancel legs
}

// buildOrder converts price and size into maker/taker amounts and signs
// them. Amounts are 6-decimal fixed point: buying spends USDC (maker) for
// outcome tokens (taker); selling is the reverse.
func (c *ClobClient) buildOrder(tokenID string, buy bool, price, size float64) (signedOrder, error) {
	const scale = 1e6

	tokens := new(big.Int).SetInt64(int64(size * scale))
	usdc := new(big.Int).SetInt64(int64(size * price * scale))

	payload := crypto.OrderPayload{
		Salt:          fmt.Sprintf("%d", time.Now().UnixNano()),
		Maker:         c.signer.Address().Hex(),
		Signer:        c.signer.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       tokenID,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		SignatureType: 0,
	}
	if buy {
		payload.Side = 0
		payload.MakerAmount = usdc.String()
		payload.TakerAmount = tokens.String()
	} else {
		payload.Side = 1
		payload.MakerAmount = tokens.String()
		payload.TakerAmount = usdc.String()
	}

	sig, err := c.signer.SignOrder(payload)
	if err != nil {
		return signedOrder{}, fmt.Errorf("polymarket/clob: sign order: %w", err)
	}
	return signedOrder{payload: payload, signature: sig, orderType: "FAK"}, nil
}

// postOrder submits a signed order.
func (c *ClobClient) postOrder(ctx context.Context, order signedOrder) (clobOrderResult, error) {
	side := "BUY"
	if order.payload.Side == 1 {
		side = "SELL"
	}
	body := map[string]any{
		"order": map[string]any{
			"salt":          order.payload.Salt,
			"maker":         order.payload.Maker,
			"signer":        order.payload.Signer,
			"taker":         order.payload.Taker,
			"tokenId":       order.payload.TokenID,
			"makerAmount":   order.payload.MakerAmount,
			"takerAmount":   order.payload.TakerAmount,
			"expiration":    order.payload.Expiration,
			"nonce":         order.payload.Nonce,
			"feeRateBps":    order.payload.FeeRateBps,
			"side":          side,
			"signatureType": order.payload.SignatureType,
			"signature":     order.signature,
		},
		"owner":     c.ownerKey(),
		"orderType": order.orderType,
	}

	respBody, err := c.doAuthenticated(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return clobOrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var result clobOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return clobOrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	return result, nil
}

// getOrder fetches the status of a previously submitted order.
func (c *ClobClient) getOrder(ctx context.Context, orderID string) (clobOrder, error) {
	path := fmt.Sprintf("/data/order/%s", url.PathEscape(orderID))

	respBody, err := c.doAuthenticated(ctx, http.MethodGet, path, nil)
	if err != nil {
		return clobOrder{}, fmt.Errorf("polymarket/clob: get order %s: %w", orderID, err)
	}

	var order clobOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return clobOrder{}, fmt.Errorf("polymarket/clob: decode order: %w", err)
	}
	return order, nil
}

// cancelOrder cancels a live order.
func (c *ClobClient) cancelOrder(ctx context.Context, orderID string) error {
	body := map[string]any{"orderID": orderID}

	respBody, err := c.doAuthenticated(ctx, http.MethodDelete, "/order", body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: cancel order %s: %w", orderID, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("polymarket/clob: cancel failed: %s", result.ErrorMsg)
	}
	return nil
}

// ownerKey returns the API key that identifies the order's owner, falling
// back to the wallet address before DeriveAPIKey has run.
func (c *ClobClient) ownerKey() string {
	if c.hmacAuth != nil {
		return c.hmacAuth.Key
	}
	return c.signer.Address().Hex()
}

// doAuthenticated builds, HMAC-signs, sends, and reads one request.
func (c *ClobClient) doAuthenticated(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		address := c.signer.Address().Hex()
		for k, v := range c.hmacAuth.L2Headers(address, method, path, bodyStr) {
			req.Header.Set(k, v)
		}
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

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}
