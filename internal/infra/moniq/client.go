package moniq

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/blake2b"
	"moniqgw/pkg/logger"
	mem "moniqgw/pkg/memcache"
	"moniqgw/pkg/utils"
)

const (
	RequestTimeout = 45 * time.Second
	// Provider tokens live about an hour; stop using them a few minutes early.
	TokenTTL        = 3400 * time.Second
	tokenExpirySkew = 4 * time.Minute

	tokenEndpoint  = "/auth/business/token"
	chargeEndpoint = "/payment/checkout/api-charge-order"
	orderEndpoint  = "/business/order/"
)

type Config struct {
	BaseURL   string
	PublicKey string
	APISecret string
}

// RequestObserver is told about every finished provider call. status is 0
// for transport failures.
type RequestObserver func(endpoint string, status int, elapsed time.Duration)

type Client struct {
	cfg      Config
	http     *http.Client
	tokens   mem.TokenStore
	log      *logger.Logger
	now      func() time.Time
	observer RequestObserver
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

func WithObserver(o RequestObserver) Option { return func(c *Client) { c.observer = o } }

func NewClient(cfg Config, tokens mem.TokenStore, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: RequestTimeout},
		tokens: tokens,
		log:    log,
		now:    time.Now,
	}
	c.cfg.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) tokenKey() string {
	sum := blake2b.Sum256([]byte(c.cfg.PublicKey))
	return "moniq_token_" + hex.EncodeToString(sum[:])
}

// InvalidateToken drops the cached bearer token so the next call performs a
// fresh credential exchange.
func (c *Client) InvalidateToken() {
	c.tokens.Evict(c.tokenKey())
}

// GetToken returns a cached bearer token or exchanges the key pair for a
// new one.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	key := c.tokenKey()
	if tok, ok := c.tokens.Get(key); ok {
		c.log.Debug("Using cached JWT token")
		return tok, nil
	}

	if c.cfg.PublicKey == "" || c.cfg.APISecret == "" {
		c.log.Error("Missing API credentials")
		return "", fmt.Errorf("%w: missing API credentials", utils.ErrAuth)
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+tokenEndpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrAuth, err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.PublicKey + ":" + c.cfg.APISecret))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.PublicKey)
	req.Header.Set("Authorization", "Basic "+basic)

	status, body, err := c.do(req, tokenEndpoint)
	if err != nil {
		c.log.Error("JWT request error", "error", err)
		return "", fmt.Errorf("%w: %v", utils.ErrAuth, err)
	}

	var env envelope
	var tok string
	if (status == http.StatusOK || status == http.StatusCreated) &&
		json.Unmarshal(body, &env) == nil && env.ok() &&
		json.Unmarshal(env.Result, &tok) == nil && tok != "" {

		c.tokens.Set(key, tok, c.tokenTTL(tok))
		c.log.Info("JWT token obtained and cached")
		return tok, nil
	}

	c.log.Error("Failed to obtain JWT", "http_status", status)
	c.log.Debugf("JWT response body: %s", body)
	return "", fmt.Errorf("%w: token endpoint returned HTTP %d", utils.ErrAuth, status)
}

// tokenTTL caps the cache window at the token's own exp claim when the
// token is a readable JWT.
func (c *Client) tokenTTL(tok string) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return TokenTTL
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return TokenTTL
	}
	until := exp.Time.Sub(c.now()) - tokenExpirySkew
	if until <= 0 {
		return 0
	}
	if until < TokenTTL {
		return until
	}
	return TokenTTL
}

// Request performs an authenticated call and decodes the envelope's result
// into out. POST and PUT payloads travel as JSON; GET payloads must be
// url.Values or map[string]string and become the query string.
func (c *Client) Request(ctx context.Context, method, endpoint string, payload any, out any) error {
	_, err := c.request(ctx, method, endpoint, payload, out)
	return err
}

func (c *Client) request(ctx context.Context, method, endpoint string, payload any, out any) (json.RawMessage, error) {
	tok, err := c.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	method = strings.ToUpper(method)
	target := c.cfg.BaseURL + endpoint

	var reqBody io.Reader
	var logged []byte
	switch method {
	case http.MethodPost, http.MethodPut:
		if payload != nil {
			b, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("moniq: encode request: %w", err)
			}
			reqBody, logged = bytes.NewReader(b), b
		}
	case http.MethodGet:
		q, err := queryValues(payload)
		if err != nil {
			return nil, err
		}
		if len(q) > 0 {
			target += "?" + q.Encode()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, &APIError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)

	c.log.Info("API Request", "method", method, "url", target)
	if logged != nil {
		c.log.Debugf("Request body: %s", logged)
	}

	status, body, err := c.do(req, endpoint)
	if err != nil {
		c.log.Error("API Error", "error", err)
		return nil, &APIError{Message: err.Error(), Err: err}
	}

	c.log.Info("API Response", "http_status", status)
	c.log.Debugf("Response body: %s", body)

	var env envelope
	if status >= 200 && status < 300 && json.Unmarshal(body, &env) == nil && env.ok() {
		if out != nil {
			if err := json.Unmarshal(env.Result, out); err != nil {
				return nil, fmt.Errorf("%w: %v", utils.ErrInvalidResponse, err)
			}
		}
		return env.Result, nil
	}

	apiErr := &APIError{Status: status, Message: extractError(body)}
	c.log.Error("API Error", "message", apiErr.Message, "http_status", status)
	return nil, apiErr
}

func (c *Client) do(req *http.Request, endpoint string) (int, []byte, error) {
	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(endpoint, 0, start)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.observe(endpoint, resp.StatusCode, start)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) observe(endpoint string, status int, start time.Time) {
	if c.observer != nil {
		c.observer(endpoint, status, c.now().Sub(start))
	}
}

func queryValues(payload any) (url.Values, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case url.Values:
		return p, nil
	case map[string]string:
		q := url.Values{}
		for k, v := range p {
			q.Set(k, v)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("moniq: unsupported GET payload %T", payload)
	}
}

// CreateCharge submits a charge and returns its validated result.
func (c *Client) CreateCharge(ctx context.Context, charge ChargeRequest) (*ChargeResult, error) {
	c.log.Info("Creating charge", "transaction_ref", charge.TransactionRef)

	var res ChargeResult
	raw, err := c.request(ctx, http.MethodPost, chargeEndpoint, charge, &res)
	if err != nil {
		return nil, err
	}
	res.Raw = raw
	if err := res.validate(); err != nil {
		c.log.Error("Invalid API response structure", "error", err)
		return nil, err
	}
	return &res, nil
}

// VerifyOrder fetches the authoritative state of a Moniq order.
func (c *Client) VerifyOrder(ctx context.Context, providerOrderID string) (*VerifiedOrder, error) {
	c.log.Info("Verifying order", "moniq_order_id", providerOrderID)

	if providerOrderID == "" {
		return nil, utils.ErrMissingProviderReference
	}

	var res VerifiedOrder
	raw, err := c.request(ctx, http.MethodGet, orderEndpoint+url.PathEscape(providerOrderID), nil, &res)
	if err != nil {
		return nil, err
	}
	res.Raw = raw
	if err := res.validate(); err != nil {
		return nil, err
	}
	return &res, nil
}

// TestConnection forces a fresh credential exchange.
func (c *Client) TestConnection(ctx context.Context) error {
	c.log.Info("Testing API connection")
	c.InvalidateToken()
	if _, err := c.GetToken(ctx); err != nil {
		return err
	}
	c.log.Info("Connection test successful")
	return nil
}
