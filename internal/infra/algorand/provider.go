package algorand

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Provider is one indexer endpoint with health bookkeeping.
type Provider struct {
	name       string
	endpoint   string
	token      string
	httpClient *http.Client

	mu            sync.RWMutex
	available     bool
	totalLatency  time.Duration
	successCount  int
	failureCount  int
	lastSuccessAt time.Time
	lastFailureAt time.Time
}

// HealthStatus reflects a provider's recent behavior.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
}

// NewProvider creates an indexer provider.
func NewProvider(name, endpoint, token string, timeout time.Duration) *Provider {
	return &Provider{
		name:     name,
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		available:     true,
		lastSuccessAt: time.Now(),
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Get performs one indexer REST call and returns the raw body.
func (p *Provider) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	start := time.Now()

	u := p.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("create request: %w", err)
	}
	if p.token != "" {
		req.Header.Set("X-Indexer-API-Token", p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("indexer call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.recordFailure()
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Not an endpoint failure: the resource isn't indexed (yet).
		p.recordSuccess(time.Since(start))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode == http.StatusTooManyRequests:
		p.recordFailure()
		return nil, fmt.Errorf("rate limited (429), retry after: %s",
			resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusForbidden:
		p.recordFailure()
		return nil, fmt.Errorf("forbidden (403)")
	case resp.StatusCode != http.StatusOK:
		p.recordFailure()
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	p.recordSuccess(time.Since(start))
	return body, nil
}

// Health returns current health metrics.
func (p *Provider) Health() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.successCount + p.failureCount
	status := HealthStatus{
		Available:     p.available,
		LastSuccessAt: p.lastSuccessAt,
		LastFailureAt: p.lastFailureAt,
	}
	if p.successCount > 0 {
		status.Latency = p.totalLatency / time.Duration(p.successCount)
	}
	if total > 0 {
		status.ErrorRate = float64(p.failureCount) / float64(total)
	}
	return status
}

// IsAvailable checks if the provider is healthy enough to use.
func (p *Provider) IsAvailable() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available
}

func (p *Provider) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.successCount++
	p.totalLatency += latency
	p.lastSuccessAt = time.Now()
	p.available = true
}

func (p *Provider) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failureCount++
	p.lastFailureAt = time.Now()
	// Three consecutive failures without a success marks the provider down
	// until the next success.
	if time.Since(p.lastSuccessAt) > time.Minute && p.failureCount >= 3 {
		p.available = false
	}
}
