// Package impl implements the hub client over an ordered list of HTTP
// endpoints with fallback, retry and rate-limit respect.
package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
	"github.com/fargraph/go-fargraph/pkg/hub"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// errNotFound is returned by request for a 404 response; typed callers map
// it to an empty page since the hub reports legitimately empty resources
// this way.
var errNotFound = errors.New("resource not found")

type endpoint struct {
	url     string
	headers map[string]string

	// rateLimitedUntil is guarded by Client.mu.
	rateLimitedUntil time.Time
}

// Client is a hub.Client over an ordered list of endpoints. The first
// endpoint is the primary; requests favor it again after any success.
type Client struct {
	log        zerolog.Logger
	httpClient *http.Client
	config     *hub.Config
	pacer      limiter.Store

	mu        sync.Mutex
	endpoints []*endpoint
	current   int

	metrics clientMetrics
}

var _ hub.Client = (*Client)(nil)

// New returns a hub client over the provided endpoints, in fallback order.
func New(endpoints []hub.Endpoint, opts ...hub.Option) (*Client, error) {
	config := hub.DefaultConfig()
	for _, o := range opts {
		if err := o(config); err != nil {
			return nil, fmt.Errorf("applying provided option: %s", err)
		}
	}
	if len(endpoints) == 0 {
		return nil, errors.New("at least one hub endpoint is required")
	}
	eps := make([]*endpoint, len(endpoints))
	for i, e := range endpoints {
		u, err := url.Parse(e.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid hub endpoint url %q", e.URL)
		}
		eps[i] = &endpoint{url: u.String(), headers: e.Headers}
	}

	c := &Client{
		log: logger.With().Str("component", "hubclient").Logger(),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   config.ConnectTimeout,
					KeepAlive: time.Second * 30,
				}).DialContext,
				MaxIdleConnsPerHost: 10,
			},
		},
		config:    config,
		endpoints: eps,
	}
	if config.RateLimitPerSecond > 0 {
		pacer, err := memorystore.New(&memorystore.Config{
			Tokens:   config.RateLimitPerSecond,
			Interval: time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("creating request pacer: %s", err)
		}
		c.pacer = pacer
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metrics instruments: %s", err)
	}

	return c, nil
}

// Info returns the hub metadata.
func (c *Client) Info(ctx context.Context) (json.RawMessage, error) {
	body, err := c.request(ctx, "/v1/info", url.Values{})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Events returns the page of hub events starting at fromEventID.
func (c *Client) Events(ctx context.Context, fromEventID uint64, pageSize int) ([]farcaster.HubEvent, error) {
	query := url.Values{}
	query.Set("from_event_id", strconv.FormatUint(fromEventID, 10))
	query.Set("page_size", strconv.Itoa(clampPageSize(pageSize)))
	body, err := c.request(ctx, "/v1/events", query)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp struct {
		Events []farcaster.HubEvent `json:"events"`
	}
	if err := jsonAPI.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding events page: %s", err)
	}
	return resp.Events, nil
}

// MessagesByFid returns one page of messages of the requested kind.
func (c *Client) MessagesByFid(
	ctx context.Context, fid uint64, kind hub.Kind, opts hub.PageOpts,
) (hub.MessagesPage, error) {
	path, query, err := messagesQuery(fid, kind, opts)
	if err != nil {
		return hub.MessagesPage{}, err
	}
	body, err := c.request(ctx, path, query)
	if errors.Is(err, errNotFound) {
		return hub.MessagesPage{}, nil
	}
	if err != nil {
		return hub.MessagesPage{}, err
	}
	var resp struct {
		Messages      []farcaster.Message `json:"messages"`
		NextPageToken string              `json:"nextPageToken"`
	}
	if err := jsonAPI.Unmarshal(body, &resp); err != nil {
		return hub.MessagesPage{}, fmt.Errorf("decoding %s page: %s", kind, err)
	}
	return hub.MessagesPage{Messages: resp.Messages, NextPageToken: resp.NextPageToken}, nil
}

// GetAllMessagesByFid materializes the full message history of the requested
// kind, following NextPageToken until exhaustion.
func (c *Client) GetAllMessagesByFid(ctx context.Context, fid uint64, kind hub.Kind) ([]farcaster.Message, error) {
	var all []farcaster.Message
	opts := hub.PageOpts{PageSize: 100}
	for {
		page, err := c.MessagesByFid(ctx, fid, kind, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Messages...)
		if page.NextPageToken == "" {
			return all, nil
		}
		opts.PageToken = page.NextPageToken
	}
}

// UsernameProofsByFid returns all username proofs for a fid. The endpoint
// isn't paginated.
func (c *Client) UsernameProofsByFid(ctx context.Context, fid uint64) ([]farcaster.UsernameProofBody, error) {
	query := url.Values{}
	query.Set("fid", strconv.FormatUint(fid, 10))
	body, err := c.request(ctx, "/v1/usernameProofsByFid", query)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp struct {
		Proofs []farcaster.UsernameProofBody `json:"proofs"`
	}
	if err := jsonAPI.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding username proofs: %s", err)
	}
	return resp.Proofs, nil
}

// OnChainEventsByFid returns one page of on-chain events for a fid.
func (c *Client) OnChainEventsByFid(
	ctx context.Context, fid uint64, opts hub.PageOpts,
) (hub.OnChainEventsPage, error) {
	query := pageQuery(fid, opts)
	body, err := c.request(ctx, "/v1/onChainEventsByFid", query)
	if errors.Is(err, errNotFound) {
		return hub.OnChainEventsPage{}, nil
	}
	if err != nil {
		return hub.OnChainEventsPage{}, err
	}
	var resp struct {
		Events        []farcaster.OnChainEvent `json:"events"`
		NextPageToken string                   `json:"nextPageToken"`
	}
	if err := jsonAPI.Unmarshal(body, &resp); err != nil {
		return hub.OnChainEventsPage{}, fmt.Errorf("decoding on-chain events page: %s", err)
	}
	return hub.OnChainEventsPage{Events: resp.Events, NextPageToken: resp.NextPageToken}, nil
}

// GetAllOnChainEventsByFid materializes the full on-chain event history of
// a fid.
func (c *Client) GetAllOnChainEventsByFid(ctx context.Context, fid uint64) ([]farcaster.OnChainEvent, error) {
	var all []farcaster.OnChainEvent
	opts := hub.PageOpts{PageSize: 100}
	for {
		page, err := c.OnChainEventsByFid(ctx, fid, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Events...)
		if page.NextPageToken == "" {
			return all, nil
		}
		opts.PageToken = page.NextPageToken
	}
}

// request executes one logical request. A pass tries every endpoint in
// fallback order; failed passes are retried with exponential backoff up to
// the configured bound, after which the request fails with ErrHubUnavailable.
func (c *Client) request(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	var body json.RawMessage
	operation := func() error {
		b, err := c.tryEndpoints(ctx, path, query)
		if err != nil {
			return err
		}
		body = b
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.RetryBaseDelay
	err := backoff.Retry(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.config.MaxRetries-1)), ctx),
	)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("%w: %s", hub.ErrHubUnavailable, err)
	}
	return body, nil
}

// tryEndpoints makes one pass over the endpoints starting at the current
// one. Only transport-level failures, 5xx and rate limits rotate; other 4xx
// responses are permanent.
func (c *Client) tryEndpoints(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	n := len(c.endpoints)
	start := c.currentIndex()
	var lastErr error

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		ep := c.endpoints[idx]
		if c.isRateLimited(idx) {
			lastErr = fmt.Errorf("endpoint %s is rate limited", ep.url)
			continue
		}
		if err := c.pace(ctx, ep.url); err != nil {
			return nil, backoff.Permanent(err)
		}

		body, status, err := c.do(ctx, ep, path, query)
		if err != nil {
			c.log.Warn().Err(err).Str("endpoint", ep.url).Str("path", path).Msg("hub request failed, rotating")
			c.metrics.rotation(ctx, ep.url)
			c.setCurrent((idx + 1) % n)
			lastErr = err
			continue
		}
		c.metrics.request(ctx, ep.url, status)

		switch {
		case status == http.StatusNotFound:
			return nil, backoff.Permanent(errNotFound)
		case status == http.StatusTooManyRequests:
			c.markRateLimited(idx)
			c.setCurrent((idx + 1) % n)
			lastErr = fmt.Errorf("endpoint %s answered 429", ep.url)
			continue
		case status >= 500:
			c.log.Warn().Int("status", status).Str("endpoint", ep.url).Str("path", path).Msg("hub returned server error, rotating")
			c.metrics.rotation(ctx, ep.url)
			c.setCurrent((idx + 1) % n)
			lastErr = fmt.Errorf("endpoint %s returned status %d", ep.url, status)
			continue
		case status >= 400:
			return nil, backoff.Permanent(fmt.Errorf("endpoint %s returned status %d", ep.url, status))
		}

		// Favor the primary endpoint again on the next request.
		c.setCurrent(0)
		return body, nil
	}

	return nil, lastErr
}

func (c *Client) do(ctx context.Context, ep *endpoint, path string, query url.Values) ([]byte, int, error) {
	ctx, cls := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cls()

	reqURL := ep.url + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %s", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range ep.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("executing request: %s", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response body: %s", err)
	}
	return body, resp.StatusCode, nil
}

// pace blocks until the per-endpoint token bucket allows another request.
func (c *Client) pace(ctx context.Context, key string) error {
	if c.pacer == nil {
		return nil
	}
	for {
		_, _, reset, ok, err := c.pacer.Take(ctx, key)
		if err != nil {
			return fmt.Errorf("taking pacer token: %s", err)
		}
		if ok {
			return nil
		}
		wait := time.Until(time.Unix(0, int64(reset)))
		if wait <= 0 {
			wait = time.Millisecond * 10
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) currentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) setCurrent(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = idx
}

func (c *Client) isRateLimited(idx int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.endpoints[idx].rateLimitedUntil)
}

func (c *Client) markRateLimited(idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[idx].rateLimitedUntil = time.Now().Add(c.config.RateLimitedCooldown)
}

func messagesQuery(fid uint64, kind hub.Kind, opts hub.PageOpts) (string, url.Values, error) {
	var path string
	query := pageQuery(fid, opts)
	switch kind {
	case hub.KindCasts:
		path = "/v1/castsByFid"
	case hub.KindReactions:
		path = "/v1/reactionsByFid"
	case hub.KindLinks:
		path = "/v1/linksByFid"
		query.Set("link_type", string(farcaster.LinkTypeFollow))
	case hub.KindVerifications:
		path = "/v1/verificationsByFid"
	case hub.KindUserData:
		path = "/v1/userDataByFid"
	default:
		return "", nil, fmt.Errorf("unknown message kind %q", kind)
	}
	return path, query, nil
}

func pageQuery(fid uint64, opts hub.PageOpts) url.Values {
	query := url.Values{}
	query.Set("fid", strconv.FormatUint(fid, 10))
	query.Set("pageSize", strconv.Itoa(clampPageSize(opts.PageSize)))
	if opts.PageToken != "" {
		query.Set("pageToken", opts.PageToken)
	}
	if opts.Reverse {
		query.Set("reverse", "true")
	}
	return query
}

func clampPageSize(n int) int {
	if n <= 0 {
		return 100
	}
	if n > 1000 {
		return 1000
	}
	return n
}
