package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	internal "github.com/amacgov/revenue-collection/internal"
	recmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/reconciliation"
)

// FeedClient pulls settlement transactions from the bank feed endpoint.
type FeedClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewFeedClient(cfg internal.ReconciliationConfig) *FeedClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &FeedClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BankFeedURL,
	}
}

type feedResponse struct {
	Transactions []recmodel.SettlementTransaction `json:"transactions"`
}

func (c *FeedClient) Transactions(ctx context.Context, from, to time.Time) ([]recmodel.SettlementTransaction, error) {
	q := url.Values{}
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build settlement feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, internal.NewUnavailableError("settlement feed unreachable", internal.ErrCodeFeedUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read settlement feed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, internal.NewUnavailableError(fmt.Sprintf("settlement feed returned status %d", resp.StatusCode), internal.ErrCodeFeedUnavailable, nil)
	}

	var payload feedResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode settlement feed response: %w", err)
	}

	return payload.Transactions, nil
}
