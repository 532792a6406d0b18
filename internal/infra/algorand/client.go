package algorand

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/algoease/backend/internal/metrics"
)

// GlobalKeyBountyCount is the contract's global counter key.
const GlobalKeyBountyCount = "bounty_count"

// Client queries Algorand indexer providers with retry and failover.
type Client struct {
	providers []*Provider
	retry     RetryConfig
}

// NewClient creates a client over one or more indexer providers. Providers
// are tried in order; unhealthy ones are skipped when an alternative exists.
func NewClient(providers []*Provider, retry RetryConfig) *Client {
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig
	}
	return &Client{providers: providers, retry: retry}
}

// Providers returns the configured providers, for health reporting.
func (c *Client) Providers() []*Provider {
	return c.providers
}

// get runs one REST call across providers with retry and failover.
func (c *Client) get(ctx context.Context, operation, path string, query url.Values) ([]byte, error) {
	if len(c.providers) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	for _, p := range c.providers {
		if !p.IsAvailable() && len(c.providers) > 1 {
			continue
		}

		start := time.Now()
		metrics.IndexerCallsTotal.WithLabelValues(p.Name(), operation).Inc()
		body, err := getWithRetry(ctx, p, path, query, c.retry)
		metrics.IndexerLatency.WithLabelValues(p.Name(), operation).
			Observe(time.Since(start).Seconds())
		if err == nil {
			return body, nil
		}

		lastErr = err
		metrics.IndexerErrorsTotal.WithLabelValues(p.Name(), errorType(err)).Inc()

		action := ClassifyError(err)
		if action == ActionFatal {
			return nil, fmt.Errorf("fatal error from provider %s: %w", p.Name(), err)
		}
		if action == ActionRetry {
			// Retries are exhausted inside getWithRetry; a retryable error
			// at this point (including not-found) is the final answer.
			return nil, err
		}
		// ActionFailover: try the next provider.
	}

	return nil, fmt.Errorf("%w: %v", ErrNoProviders, lastErr)
}

func errorType(err error) string {
	switch ClassifyError(err) {
	case ActionFailover:
		return "throttle"
	case ActionFatal:
		return "fatal"
	default:
		return "transient"
	}
}

// LookupTransaction fetches a confirmed transaction by id. Returns
// ErrNotFound while the indexer hasn't seen it.
func (c *Client) LookupTransaction(ctx context.Context, txid string) (*Transaction, error) {
	body, err := c.get(ctx, "lookup_transaction", "/v2/transactions/"+txid, nil)
	if err != nil {
		return nil, err
	}

	var resp transactionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse transaction response: %w", err)
	}
	return &resp.Transaction, nil
}

// SearchApplicationTransactions pages through an application's transactions
// at or after minRound.
func (c *Client) SearchApplicationTransactions(
	ctx context.Context,
	applicationID uint64,
	minRound uint64,
	nextToken string,
	limit int,
) (*TxPage, error) {
	query := url.Values{}
	query.Set("application-id", strconv.FormatUint(applicationID, 10))
	if minRound > 0 {
		query.Set("min-round", strconv.FormatUint(minRound, 10))
	}
	if nextToken != "" {
		query.Set("next", nextToken)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.get(ctx, "search_transactions", "/v2/transactions", query)
	if err != nil {
		return nil, err
	}

	var resp transactionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse transactions response: %w", err)
	}
	return &TxPage{
		Transactions: resp.Transactions,
		CurrentRound: resp.CurrentRound,
		NextToken:    resp.NextToken,
	}, nil
}

// ApplicationBoxes lists the application's box names.
func (c *Client) ApplicationBoxes(ctx context.Context, applicationID uint64) ([][]byte, error) {
	path := fmt.Sprintf("/v2/applications/%d/boxes", applicationID)

	var names [][]byte
	nextToken := ""
	for {
		query := url.Values{}
		query.Set("limit", "1000")
		if nextToken != "" {
			query.Set("next", nextToken)
		}

		body, err := c.get(ctx, "application_boxes", path, query)
		if err != nil {
			return nil, err
		}

		var resp boxesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse boxes response: %w", err)
		}

		for _, box := range resp.Boxes {
			name, err := base64.StdEncoding.DecodeString(box.Name)
			if err != nil {
				return nil, fmt.Errorf("decode box name: %w", err)
			}
			names = append(names, name)
		}

		if resp.NextToken == "" || len(resp.Boxes) == 0 {
			return names, nil
		}
		nextToken = resp.NextToken
	}
}

// ApplicationBox fetches one box value by raw name.
func (c *Client) ApplicationBox(ctx context.Context, applicationID uint64, name []byte) ([]byte, error) {
	query := url.Values{}
	query.Set("name", "b64:"+base64.StdEncoding.EncodeToString(name))

	path := fmt.Sprintf("/v2/applications/%d/box", applicationID)
	body, err := c.get(ctx, "application_box", path, query)
	if err != nil {
		return nil, err
	}

	var resp boxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse box response: %w", err)
	}
	value, err := base64.StdEncoding.DecodeString(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("decode box value: %w", err)
	}
	return value, nil
}

// BountyCount reads the contract's global bounty counter.
func (c *Client) BountyCount(ctx context.Context, applicationID uint64) (uint64, error) {
	path := fmt.Sprintf("/v2/applications/%d", applicationID)
	body, err := c.get(ctx, "application_global_state", path, nil)
	if err != nil {
		return 0, err
	}

	var resp applicationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse application response: %w", err)
	}

	wantKey := base64.StdEncoding.EncodeToString([]byte(GlobalKeyBountyCount))
	for _, kv := range resp.Application.Params.GlobalState {
		if kv.Key == wantKey {
			return kv.Value.Uint, nil
		}
	}
	return 0, fmt.Errorf("global key %q not set", GlobalKeyBountyCount)
}

// LastRound returns the round the indexer has caught up to.
func (c *Client) LastRound(ctx context.Context) (uint64, error) {
	body, err := c.get(ctx, "health", "/health", nil)
	if err != nil {
		return 0, err
	}

	var resp healthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse health response: %w", err)
	}
	return resp.Round, nil
}

// BountyCountDelta extracts the post-call value of bounty_count from a
// create transaction's global state delta. Returns false when the delta
// doesn't touch the counter.
func BountyCountDelta(tx *Transaction) (uint64, bool) {
	wantKey := base64.StdEncoding.EncodeToString([]byte(GlobalKeyBountyCount))
	for _, entry := range tx.GlobalStateDelta {
		if entry.Key == wantKey {
			return entry.Value.Uint, true
		}
	}
	return 0, false
}
