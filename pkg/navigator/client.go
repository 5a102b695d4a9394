package navigator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyprcat/gateway/internal/linkeddata"
)

// Defaults for the retry and cache policy.
const (
	DefaultMaxRetries = 3
	DefaultBackoff    = 200 * time.Millisecond
	DefaultCacheAge   = 30 * time.Second
)

type cacheEntry struct {
	node    linkeddata.Node
	fetched time.Time
	ttl     time.Duration
}

// Client dereferences linked-data resources over HTTP. Transient
// failures (5xx, 429) are retried with exponential backoff; governance
// statuses surface as typed errors rather than retries.
type Client struct {
	hc         *http.Client
	log        *zap.Logger
	maxRetries int
	backoff    time.Duration
	cacheAge   time.Duration

	events chan Event

	mu      sync.Mutex
	headers map[string]string
	cache   map[string]cacheEntry
	visited []string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the transport, mainly for httptest servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithLogger attaches a logger; the default is a nop.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRetry overrides the retry budget and initial backoff.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.backoff = backoff
	}
}

// WithCacheAge overrides how long fetched representations stay fresh.
// Zero disables the cache.
func WithCacheAge(age time.Duration) Option {
	return func(c *Client) { c.cacheAge = age }
}

// New creates a navigator client.
func New(opts ...Option) *Client {
	c := &Client{
		hc:         &http.Client{Timeout: 30 * time.Second},
		log:        zap.NewNop(),
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultBackoff,
		cacheAge:   DefaultCacheAge,
		headers:    make(map[string]string),
		cache:      make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetHeader pins a header onto every subsequent request. Used for the
// session token and the agent attribution header.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == "" {
		delete(c.headers, key)
		return
	}
	c.headers[key] = value
}

// Visited returns the dereference history in order.
func (c *Client) Visited() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.visited))
	copy(out, c.visited)
	return out
}

// HasVisited reports whether url was dereferenced before.
func (c *Client) HasVisited(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.visited {
		if v == url {
			return true
		}
	}
	return false
}

// Fetch dereferences url as JSON-LD, serving from cache when fresh. A
// Cache-Control max-age on the response overrides the configured cache
// age for that representation.
func (c *Client) Fetch(ctx context.Context, url string) (linkeddata.Node, error) {
	c.mu.Lock()
	entry, ok := c.cache[url]
	c.mu.Unlock()
	if ok && time.Since(entry.fetched) < entry.ttl {
		return entry.node.Clone(), nil
	}
	n, _, maxAge, err := c.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	ttl := c.cacheAge
	if maxAge >= 0 {
		ttl = maxAge
	}
	c.mu.Lock()
	if ttl > 0 {
		c.cache[url] = cacheEntry{node: n.Clone(), fetched: time.Now(), ttl: ttl}
	}
	c.visited = append(c.visited, url)
	c.mu.Unlock()
	c.emit(EventNavigation, http.MethodGet, url, http.StatusOK)
	return n, nil
}

// Discover resolves the service entrypoint: the well-known document's
// hydra:entrypoint when present, else the conventional catalog path.
func (c *Client) Discover(ctx context.Context, base string) (linkeddata.Node, error) {
	desc, err := c.Fetch(ctx, base+"/.well-known/hyprcat")
	if err == nil {
		if entry := desc.GetString("hydra:entrypoint"); entry != "" {
			return c.Fetch(ctx, entry)
		}
	}
	return c.Fetch(ctx, base+"/catalog")
}

// ExecuteOperation validates input against the affordance's shapes and
// performs the described request. fallbackTarget is used when the
// affordance names no target of its own. extra headers apply to this
// request only.
func (c *Client) ExecuteOperation(ctx context.Context, op linkeddata.Operation, fallbackTarget string, input map[string]any, extra map[string]string) (linkeddata.Node, int, error) {
	target := op.Target
	if target == "" {
		target = fallbackTarget
	}
	if target == "" {
		return nil, 0, fmt.Errorf("navigator: operation %q has no target", op.Title)
	}
	if res := linkeddata.ValidateInput(input, op.Expects); !res.Valid() {
		return nil, 0, &ValidationError{URL: target, Paths: res.Paths()}
	}

	method := op.Method
	if method == "" {
		method = http.MethodGet
	}
	var body []byte
	if method != http.MethodGet && input != nil {
		raw, err := json.Marshal(input)
		if err != nil {
			return nil, 0, fmt.Errorf("navigator: encode input: %w", err)
		}
		body = raw
	}
	n, status, _, err := c.do(ctx, method, target, body, extra)
	return n, status, err
}

// do retries transient failures with exponential backoff, except that a
// 429's Retry-After, when present, sets the wait for the next attempt.
func (c *Client) do(ctx context.Context, method, url string, body []byte, extra map[string]string) (linkeddata.Node, int, time.Duration, error) {
	backoff := c.backoff
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			var limited *RateLimitedError
			if errors.As(lastErr, &limited) && limited.RetryAfter > 0 {
				wait = limited.RetryAfter
			}
			select {
			case <-ctx.Done():
				return nil, 0, -1, ctx.Err()
			case <-time.After(wait):
			}
			backoff *= 2
		}

		node, status, maxAge, retry, err := c.once(ctx, method, url, body, extra)
		if err == nil {
			return node, status, maxAge, nil
		}
		lastErr = err
		if !retry {
			return nil, status, -1, err
		}
		c.log.Debug("retrying request",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, 0, -1, lastErr
}

// once performs a single attempt. retry reports whether the failure is
// transient; maxAge is the response's Cache-Control max-age, -1 when
// absent.
func (c *Client) once(ctx context.Context, method, url string, body []byte, extra map[string]string) (linkeddata.Node, int, time.Duration, bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, -1, false, err
	}
	req.Header.Set("Accept", "application/ld+json, application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/ld+json")
	}
	c.mu.Lock()
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	c.mu.Unlock()
	for k, v := range extra {
		req.Header.Set(k, v)
	}

	c.emit(EventRequest, method, url, 0)
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, -1, true, err
	}
	defer resp.Body.Close()
	c.emit(EventResponse, method, url, resp.StatusCode)

	var node linkeddata.Node
	decodeErr := json.NewDecoder(resp.Body).Decode(&node)

	switch {
	case resp.StatusCode < 300:
		if decodeErr != nil {
			return nil, resp.StatusCode, -1, false, fmt.Errorf("navigator: decode %s: %w", url, decodeErr)
		}
		return node, resp.StatusCode, parseMaxAge(resp.Header.Get("Cache-Control")), false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, resp.StatusCode, -1, false, &AuthRequiredError{
			URL:               url,
			ChallengeEndpoint: node.GetString("hyprcat:challengeEndpoint"),
		}
	case resp.StatusCode == http.StatusPaymentRequired:
		c.emit(EventPayment, method, url, resp.StatusCode)
		return nil, resp.StatusCode, -1, false, &PaymentRequiredError{URL: url, Invoice: node}
	case resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, -1, false, &TokenGateError{URL: url, Detail: node.GetString("detail")}
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, -1, false, &NotFoundError{URL: url}
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var paths []string
		for _, p := range node.GetList("hyprcat:paths") {
			if s, ok := p.(string); ok {
				paths = append(paths, s)
			}
		}
		return nil, resp.StatusCode, -1, false, &ValidationError{URL: url, Paths: paths}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			retryAfter = time.Duration(secs) * time.Second
		}
		return nil, resp.StatusCode, -1, true, &RateLimitedError{URL: url, RetryAfter: retryAfter}
	case resp.StatusCode >= 500:
		return nil, resp.StatusCode, -1, true, fmt.Errorf("navigator: %s returned %d", url, resp.StatusCode)
	default:
		return nil, resp.StatusCode, -1, false, fmt.Errorf("navigator: %s returned %d: %s", url, resp.StatusCode, node.GetString("detail"))
	}
}

// parseMaxAge extracts max-age from a Cache-Control header, -1 when the
// directive is absent or malformed.
func parseMaxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return -1
}
