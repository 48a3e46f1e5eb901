package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	errors "github.com/amacgov/revenue-collection/internal"
	gatewaytypes "github.com/amacgov/revenue-collection/internal/core/datamodel/gateway"
)

const initPath = "/echannelsvc/merchant/api/paymentinit"

// Client talks to the Remita merchant API: signed initialization calls and
// signed status polls. Network failures are retried with backoff up to
// maxRetries; gateway-side rejections are permanent and returned as
// integration errors.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	merchantID    string
	serviceTypeID string
	publicKey     string
	signer        *Signer
	maxRetries    int
	backoff       time.Duration
	logger        *slog.Logger
}

type ClientConfig struct {
	BaseURL        string
	MerchantID     string
	ServiceTypeID  string
	APIKey         string
	PublicKey      string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		merchantID:    cfg.MerchantID,
		serviceTypeID: cfg.ServiceTypeID,
		publicKey:     cfg.PublicKey,
		signer:        NewSigner(cfg.MerchantID, cfg.ServiceTypeID, cfg.APIKey),
		maxRetries:    cfg.MaxRetries,
		backoff:       backoff,
		logger:        logger,
	}
}

func (c *Client) Signer() *Signer {
	return c.signer
}

// InitializePayment sends the signed initialization request and returns the
// gateway acknowledgment with the RRR and hosted payment URL.
func (c *Client) InitializePayment(ctx context.Context, req *gatewaytypes.InitRequest) (*gatewaytypes.InitResponse, string, error) {
	// The gateway recomputes the hash from body fields; the serviceTypeId in
	// the body must be the configured one the hash was signed with.
	req.ServiceTypeID = c.serviceTypeID

	hash := c.signer.InitHash(req.OrderID, req.Amount)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", errors.NewInternalError("failed to encode gateway request", err)
	}

	auth := fmt.Sprintf("remitaConsumerKey=%s,remitaConsumerToken=%s", c.merchantID, hash)

	respBody, err := c.doWithRetry(ctx, http.MethodPost, c.baseURL+initPath, body, auth)
	if err != nil {
		return nil, "", err
	}

	var initResp gatewaytypes.InitResponse
	if err := json.Unmarshal(respBody, &initResp); err != nil {
		return nil, "", errors.NewIntegrationError("gateway returned an unparseable response", errors.ErrCodeGatewayRejected).WithCause(err)
	}

	switch initResp.StatusCode {
	case "025", "00":
		// accepted
	case "026":
		c.logger.Error("gateway rejected request hash",
			"status_code", initResp.StatusCode,
			"status_message", initResp.StatusMessage,
			"signing_inputs", c.signer.SigningInputs(req.OrderID, req.Amount))
		return nil, "", errors.NewIntegrationError("gateway rejected request signature", errors.ErrCodeInvalidHash)
	default:
		return nil, "", errors.NewIntegrationError(
			fmt.Sprintf("gateway rejected initialization: %s", initResp.StatusMessage),
			errors.ErrCodeGatewayRejected)
	}

	paymentURL := fmt.Sprintf("%s/ecomm/finalize.reg?rrr=%s&merchantId=%s", c.baseURL, initResp.RRR, c.merchantID)

	c.logger.Info("gateway accepted payment initialization",
		"order_id", req.OrderID,
		"rrr", initResp.RRR,
		"status_code", initResp.StatusCode)

	return &initResp, paymentURL, nil
}

// CheckStatus polls the signed status endpoint for an RRR and normalizes the
// answer into the internal event shape.
func (c *Client) CheckStatus(ctx context.Context, rrr string) (*gatewaytypes.Event, error) {
	hash := c.signer.StatusHash(rrr)
	url := fmt.Sprintf("%s/echannelsvc/%s/%s/%s/status.reg", c.baseURL, c.merchantID, rrr, hash)

	respBody, err := c.doWithRetry(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return nil, err
	}

	var statusResp gatewaytypes.StatusResponse
	if err := json.Unmarshal(respBody, &statusResp); err != nil {
		return nil, errors.NewIntegrationError("gateway returned an unparseable status response", errors.ErrCodeGatewayRejected).WithCause(err)
	}
	if statusResp.RRR == "" {
		statusResp.RRR = rrr
	}

	return statusResp.Normalize(respBody), nil
}

func (c *Client) doWithRetry(ctx context.Context, method, url string, body []byte, auth string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.NewUnavailableError("gateway request cancelled", errors.ErrCodeGatewayUnavailable, ctx.Err())
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
			c.logger.Warn("retrying gateway request", "url", url, "attempt", attempt, "error", lastErr)
		}

		respBody, retryable, err := c.do(ctx, method, url, body, auth)
		if err == nil {
			return respBody, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, errors.NewUnavailableError("gateway unreachable after retries", errors.ErrCodeGatewayUnavailable, lastErr)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, auth string) ([]byte, bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, false, errors.NewInternalError("failed to create gateway request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	// Merchants issued a public key must present it on every call alongside
	// the hash auth.
	if c.publicKey != "" {
		req.Header.Set("publicKey", c.publicKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		c.logger.Error("gateway rejected request",
			"status", resp.StatusCode,
			"url", url,
			"response", string(respBody))
		return nil, false, errors.NewIntegrationError(
			fmt.Sprintf("gateway rejected request with status %d", resp.StatusCode),
			errors.ErrCodeGatewayRejected)
	}

	return respBody, false, nil
}
