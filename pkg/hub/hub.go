// Package hub defines the client surface for the upstream hub HTTP API.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
)

// ErrHubUnavailable reports that a request failed against every configured
// endpoint, retries included.
var ErrHubUnavailable = errors.New("all hub endpoints unavailable")

// Kind selects the message family of MessagesByFid.
type Kind string

// Message kinds.
const (
	KindCasts         Kind = "casts"
	KindReactions     Kind = "reactions"
	KindLinks         Kind = "links"
	KindVerifications Kind = "verifications"
	KindUserData      Kind = "userData"
)

// Endpoint is one hub endpoint: a base URL plus optional headers injected in
// every request (e.g. an API key).
type Endpoint struct {
	URL     string
	Headers map[string]string
}

// PageOpts control pagination of the *ByFid calls.
type PageOpts struct {
	PageSize  int
	PageToken string
	Reverse   bool
}

// MessagesPage is one page of messages.
type MessagesPage struct {
	Messages      []farcaster.Message
	NextPageToken string
}

// OnChainEventsPage is one page of on-chain events.
type OnChainEventsPage struct {
	Events        []farcaster.OnChainEvent
	NextPageToken string
}

// Client talks to an ordered list of hub endpoints with fallback. Paginated
// calls return a single page; the GetAll variants follow NextPageToken until
// exhaustion.
type Client interface {
	Info(ctx context.Context) (json.RawMessage, error)

	// Events returns the page of hub events starting at fromEventID, in
	// strictly increasing id order.
	Events(ctx context.Context, fromEventID uint64, pageSize int) ([]farcaster.HubEvent, error)

	MessagesByFid(ctx context.Context, fid uint64, kind Kind, opts PageOpts) (MessagesPage, error)
	GetAllMessagesByFid(ctx context.Context, fid uint64, kind Kind) ([]farcaster.Message, error)

	UsernameProofsByFid(ctx context.Context, fid uint64) ([]farcaster.UsernameProofBody, error)

	OnChainEventsByFid(ctx context.Context, fid uint64, opts PageOpts) (OnChainEventsPage, error)
	GetAllOnChainEventsByFid(ctx context.Context, fid uint64) ([]farcaster.OnChainEvent, error)
}

// Config contains the tunables of the hub client.
type Config struct {
	// ConnectTimeout bounds TCP connection establishment.
	ConnectTimeout time.Duration
	// RequestTimeout bounds a single request end to end.
	RequestTimeout time.Duration
	// MaxRetries bounds full endpoint-rotation passes per request.
	MaxRetries int
	// RetryBaseDelay is the initial backoff delay between passes.
	RetryBaseDelay time.Duration
	// RateLimitPerSecond caps requests per second per endpoint; zero
	// disables client-side pacing.
	RateLimitPerSecond uint64
	// RateLimitedCooldown is how long an endpoint answering 429 without a
	// Retry-After header is sidelined.
	RateLimitedCooldown time.Duration
}

// DefaultConfig returns the default hub client configuration.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout:      time.Second * 10,
		RequestTimeout:      time.Second * 30,
		MaxRetries:          3,
		RetryBaseDelay:      time.Millisecond * 500,
		RateLimitPerSecond:  0,
		RateLimitedCooldown: time.Second * 30,
	}
}

// Option modifies the default configuration.
type Option func(*Config) error

// WithMaxRetries bounds full endpoint-rotation passes per request.
func WithMaxRetries(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return errors.New("max retries must be at least 1")
		}
		c.MaxRetries = n
		return nil
	}
}

// WithRequestTimeout bounds a single request end to end.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.RequestTimeout = d
		return nil
	}
}

// WithRetryBaseDelay sets the initial backoff delay between rotation passes.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Config) error {
		c.RetryBaseDelay = d
		return nil
	}
}

// WithRateLimitPerSecond caps requests per second per endpoint.
func WithRateLimitPerSecond(n uint64) Option {
	return func(c *Config) error {
		c.RateLimitPerSecond = n
		return nil
	}
}
