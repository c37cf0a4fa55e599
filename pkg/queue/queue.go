// Package queue defines the durable job queues that decouple ingestion from
// processing.
package queue

import (
	"context"
	"encoding/json"
)

// Queue names. Each runs on its own worker pool.
const (
	QueueBackfill = "backfill"
	QueueRealtime = "realtime"
	QueueEvents   = "events"
)

// Task type names.
const (
	TaskBackfillFid  = "backfill:fid"
	TaskRealtimeSync = "realtime:sync"
	TaskProcessEvent = "events:process"
)

// BackfillPayload asks for a full historical sync of one fid.
type BackfillPayload struct {
	Fid uint64 `json:"fid"`
}

// EventPayload carries one hub event for processing. The event is kept as
// raw JSON so the queue layer stays oblivious to its shape.
type EventPayload struct {
	EventID uint64          `json:"eventId"`
	Event   json.RawMessage `json:"event"`
}

// Enqueuer submits jobs.
type Enqueuer interface {
	// EnqueueBackfill submits a backfill job for a fid. Resubmitting a fid
	// whose job is still pending or running is a no-op.
	EnqueueBackfill(ctx context.Context, fid uint64) error
	// EnqueueEvent submits a hub event for processing.
	EnqueueEvent(ctx context.Context, eventID uint64, event json.RawMessage) error
	// Close releases the underlying connections.
	Close() error
}

// QueueStats is a point-in-time snapshot of one queue.
type QueueStats struct {
	Queue     string `json:"queue"`
	Paused    bool   `json:"paused"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Completed int    `json:"completed"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

// Admin inspects and controls the queues.
type Admin interface {
	Stats(ctx context.Context) ([]QueueStats, error)
	Pause(ctx context.Context, queue string) error
	Resume(ctx context.Context, queue string) error
	// Drain deletes every waiting task of a queue: pending, scheduled and
	// retry. Running tasks finish normally.
	Drain(ctx context.Context, queue string) error
	Close() error
}
