package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/fargraph/go-fargraph/pkg/queue"
)

// Admin inspects and controls the queues through an asynq inspector.
type Admin struct {
	inspector *asynq.Inspector
}

var _ queue.Admin = (*Admin)(nil)

// NewAdmin creates a queue Admin connected to the given Redis instance.
func NewAdmin(redisURL string) (*Admin, error) {
	opts, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis uri: %s", err)
	}
	return &Admin{inspector: asynq.NewInspector(opts)}, nil
}

// Stats returns a snapshot of every known queue.
func (a *Admin) Stats(ctx context.Context) ([]queue.QueueStats, error) {
	stats := make([]queue.QueueStats, 0, 3)
	for _, name := range []string{queue.QueueBackfill, queue.QueueRealtime, queue.QueueEvents} {
		info, err := a.inspector.GetQueueInfo(name)
		if err != nil {
			// Queues only exist in Redis after their first task.
			if isQueueNotFound(err) {
				stats = append(stats, queue.QueueStats{Queue: name})
				continue
			}
			return nil, fmt.Errorf("getting queue info for %s: %s", name, err)
		}
		stats = append(stats, queue.QueueStats{
			Queue:     name,
			Paused:    info.Paused,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Completed: info.Completed,
			Processed: info.Processed,
			Failed:    info.Failed,
		})
	}
	return stats, nil
}

// Pause stops workers from picking up new tasks on a queue.
func (a *Admin) Pause(ctx context.Context, queueName string) error {
	if err := a.inspector.PauseQueue(queueName); err != nil {
		return fmt.Errorf("pausing queue %s: %s", queueName, err)
	}
	return nil
}

// Resume lifts a pause.
func (a *Admin) Resume(ctx context.Context, queueName string) error {
	if err := a.inspector.UnpauseQueue(queueName); err != nil {
		return fmt.Errorf("resuming queue %s: %s", queueName, err)
	}
	return nil
}

// Drain deletes every waiting task of a queue. Running tasks finish
// normally; draining a queue that doesn't exist yet is a no-op.
func (a *Admin) Drain(ctx context.Context, queueName string) error {
	if _, err := a.inspector.DeleteAllPendingTasks(queueName); err != nil && !isQueueNotFound(err) {
		return fmt.Errorf("deleting pending tasks of %s: %s", queueName, err)
	}
	if _, err := a.inspector.DeleteAllScheduledTasks(queueName); err != nil && !isQueueNotFound(err) {
		return fmt.Errorf("deleting scheduled tasks of %s: %s", queueName, err)
	}
	if _, err := a.inspector.DeleteAllRetryTasks(queueName); err != nil && !isQueueNotFound(err) {
		return fmt.Errorf("deleting retry tasks of %s: %s", queueName, err)
	}
	return nil
}

// Close closes the inspector connection.
func (a *Admin) Close() error {
	return a.inspector.Close()
}

func isQueueNotFound(err error) bool {
	return errors.Is(err, asynq.ErrQueueNotFound) || strings.Contains(err.Error(), "does not exist")
}
