// Package impl implements the job queues on asynq over Redis.
package impl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/fargraph/go-fargraph/pkg/queue"
)

const (
	backfillMaxRetry = 3
	eventMaxRetry    = 3

	backfillRetention = time.Hour * 24
	eventRetention    = time.Hour * 24

	realtimeInterval = "@every 5s"
)

// Client is an Enqueuer backed by an asynq client.
type Client struct {
	log    zerolog.Logger
	client *asynq.Client
}

var _ queue.Enqueuer = (*Client)(nil)

// NewClient creates an Enqueuer connected to the given Redis instance.
func NewClient(redisURL string) (*Client, error) {
	opts, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis uri: %s", err)
	}
	return &Client{
		log:    logger.With().Str("component", "queue").Logger(),
		client: asynq.NewClient(opts),
	}, nil
}

// EnqueueBackfill submits a backfill job for a fid. The task id makes the
// submission idempotent while a job for the same fid is pending or running.
func (c *Client) EnqueueBackfill(ctx context.Context, fid uint64) error {
	payload, err := json.Marshal(queue.BackfillPayload{Fid: fid})
	if err != nil {
		return fmt.Errorf("marshaling backfill payload: %s", err)
	}
	task := asynq.NewTask(queue.TaskBackfillFid, payload)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(queue.QueueBackfill),
		asynq.TaskID(fmt.Sprintf("backfill-%d", fid)),
		asynq.MaxRetry(backfillMaxRetry),
		asynq.Retention(backfillRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		c.log.Debug().Uint64("fid", fid).Msg("backfill already queued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueuing backfill for fid %d: %s", fid, err)
	}
	return nil
}

// EnqueueEvent submits one hub event for processing.
func (c *Client) EnqueueEvent(ctx context.Context, eventID uint64, event json.RawMessage) error {
	payload, err := json.Marshal(queue.EventPayload{EventID: eventID, Event: event})
	if err != nil {
		return fmt.Errorf("marshaling event payload: %s", err)
	}
	task := asynq.NewTask(queue.TaskProcessEvent, payload)
	if _, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(queue.QueueEvents),
		asynq.MaxRetry(eventMaxRetry),
		asynq.Retention(eventRetention),
	); err != nil {
		return fmt.Errorf("enqueuing event %d: %s", eventID, err)
	}
	return nil
}

// Close closes the underlying asynq client.
func (c *Client) Close() error {
	return c.client.Close()
}

// RetryDelay doubles the delay on each failed attempt, starting at two
// seconds.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	return time.Duration(math.Pow(2, float64(n))) * time.Second
}

// NewServer builds an asynq server draining a single queue with the given
// concurrency.
func NewServer(redisURL, queueName string, concurrency int) (*asynq.Server, error) {
	opts, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis uri: %s", err)
	}
	srv := asynq.NewServer(opts, asynq.Config{
		Concurrency:    concurrency,
		Queues:         map[string]int{queueName: 1},
		RetryDelayFunc: RetryDelay,
		Logger:         &zerologAdapter{log: logger.With().Str("component", "asynq").Str("queue", queueName).Logger()},
	})
	return srv, nil
}

// NewScheduler builds the scheduler that fires the realtime sync tick.
func NewScheduler(redisURL string) (*asynq.Scheduler, error) {
	opts, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis uri: %s", err)
	}
	sched := asynq.NewScheduler(opts, &asynq.SchedulerOpts{
		Logger: &zerologAdapter{log: logger.With().Str("component", "scheduler").Logger()},
	})
	if _, err := sched.Register(realtimeInterval,
		asynq.NewTask(queue.TaskRealtimeSync, nil),
		asynq.Queue(queue.QueueRealtime),
		asynq.MaxRetry(0),
	); err != nil {
		return nil, fmt.Errorf("registering realtime sync entry: %s", err)
	}
	return sched, nil
}

// zerologAdapter bridges asynq's logger interface onto zerolog.
type zerologAdapter struct {
	log zerolog.Logger
}

func (a *zerologAdapter) Debug(args ...interface{}) { a.log.Debug().Msg(fmt.Sprint(args...)) }
func (a *zerologAdapter) Info(args ...interface{})  { a.log.Info().Msg(fmt.Sprint(args...)) }
func (a *zerologAdapter) Warn(args ...interface{})  { a.log.Warn().Msg(fmt.Sprint(args...)) }
func (a *zerologAdapter) Error(args ...interface{}) { a.log.Error().Msg(fmt.Sprint(args...)) }
func (a *zerologAdapter) Fatal(args ...interface{}) { a.log.Fatal().Msg(fmt.Sprint(args...)) }
