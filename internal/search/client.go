package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

const defaultBaseURL = "https://serpapi.com/search"

// Time-range tokens understood by the search provider.
const (
	RangeDay   = "qdr:d"
	RangeWeek  = "qdr:w"
	RangeMonth = "qdr:m"
)

// postURLPattern matches canonical Reddit thread URLs and captures the
// subreddit. Search/listing pages don't carry the /comments/ segment.
var postURLPattern = regexp.MustCompile(`reddit\.com/r/([A-Za-z0-9_]+)/comments/[A-Za-z0-9]+`)

// Candidate is a discussion thread returned by a search.
type Candidate struct {
	URL          string
	Title        string
	Snippet      string
	Subreddit    string
	DiscoveredAt time.Time
}

// Options configures a search Client.
type Options struct {
	APIKeyEnv   string
	BaseURL     string
	Engine      string
	MinInterval time.Duration // end-to-start spacing between requests
	MaxRetries  uint64
	BreakerTrip uint32 // consecutive failures before the breaker opens
	BreakerWait time.Duration
}

// Client is a rate-limited, circuit-broken wrapper over the external search
// API. It never returns an error: every failure mode degrades to an empty
// result with a logged reason so discovery runs can make partial progress.
type Client struct {
	apiKey     string
	baseURL    string
	engine     string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries uint64

	// The gate is process-wide per client: all runs share one ceiling,
	// spaced from the end of the previous request.
	mu          sync.Mutex
	lastDone    time.Time
	minInterval time.Duration
}

// NewClient creates a search client from options, applying defaults.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Engine == "" {
		opts.Engine = "google"
	}
	if opts.MinInterval == 0 {
		opts.MinInterval = time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BreakerTrip == 0 {
		opts.BreakerTrip = 5
	}
	if opts.BreakerWait == 0 {
		opts.BreakerWait = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "search",
		MaxRequests: 1,
		Timeout:     opts.BreakerWait,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerTrip
		},
	})

	return &Client{
		apiKey:      os.Getenv(opts.APIKeyEnv),
		baseURL:     opts.BaseURL,
		engine:      opts.Engine,
		client:      &http.Client{Timeout: 30 * time.Second},
		breaker:     breaker,
		maxRetries:  opts.MaxRetries,
		minInterval: opts.MinInterval,
	}
}

// IsConfigured returns whether the API key is available.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// Search returns candidate threads for a keyword. With no communities it
// issues one platform-wide query; otherwise one query per community,
// concatenated. Callers must deduplicate across communities.
func (c *Client) Search(ctx context.Context, keyword string, communities []string, timeRange string, limit int) []Candidate {
	if c.apiKey == "" {
		log.Println("Search API key not configured, skipping search")
		return nil
	}

	if len(communities) == 0 {
		query := fmt.Sprintf(`site:reddit.com "%s"`, keyword)
		return c.runQuery(ctx, query, timeRange, limit)
	}

	var all []Candidate
	for _, community := range communities {
		query := fmt.Sprintf(`site:reddit.com/r/%s "%s"`, community, keyword)
		all = append(all, c.runQuery(ctx, query, timeRange, limit)...)
	}
	return all
}

// runQuery issues one provider query through the breaker and retry policy.
func (c *Client) runQuery(ctx context.Context, query, timeRange string, limit int) []Candidate {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.queryWithRetry(ctx, query, timeRange, limit)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		log.Printf("Search circuit open, skipping query: %s", query)
		return nil
	}
	if err != nil {
		log.Printf("Search failed for %q: %v", query, err)
		return nil
	}
	return result.([]Candidate)
}

// queryWithRetry retries transient failures with exponential backoff.
// Auth failures are permanent: they surface immediately and count against
// the circuit breaker.
func (c *Client) queryWithRetry(ctx context.Context, query, timeRange string, limit int) ([]Candidate, error) {
	var candidates []Candidate
	operation := func() error {
		var err error
		candidates, err = c.doRequest(ctx, query, timeRange, limit)
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return candidates, nil
}

// doRequest performs one HTTP round trip behind the inter-request gate.
func (c *Client) doRequest(ctx context.Context, query, timeRange string, limit int) ([]Candidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Spacing is measured from the end of the previous request, whichever
	// logical search triggered it.
	if wait := c.minInterval - time.Since(c.lastDone); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, backoff.Permanent(ctx.Err())
		}
	}
	defer func() { c.lastDone = time.Now() }()

	params := url.Values{
		"q":       {query},
		"engine":  {c.engine},
		"num":     {fmt.Sprintf("%d", limit)},
		"api_key": {c.apiKey},
	}
	if timeRange != "" {
		params.Set("tbs", timeRange)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err // timeouts and connection errors are retryable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("search API returned %d", resp.StatusCode)
	default:
		// 4xx auth/config failures: no retry, recorded as a breaker failure.
		return nil, backoff.Permanent(fmt.Errorf("search API returned %d", resp.StatusCode))
	}

	var result struct {
		OrganicResults []struct {
			Link    string `json:"link"`
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decoding search response: %w", err))
	}

	now := time.Now()
	var candidates []Candidate
	for _, r := range result.OrganicResults {
		subreddit, ok := ExtractSubreddit(r.Link)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			URL:          r.Link,
			Title:        r.Title,
			Snippet:      r.Snippet,
			Subreddit:    subreddit,
			DiscoveredAt: now,
		})
	}

	log.Printf("Search returned %d thread candidates for: %s", len(candidates), query)
	return candidates, nil
}

// ExtractSubreddit returns the community name from a thread URL and whether
// the URL is an actual post rather than a search or listing page.
func ExtractSubreddit(link string) (string, bool) {
	m := postURLPattern.FindStringSubmatch(link)
	if m == nil {
		return "", false
	}
	return m[1], true
}
