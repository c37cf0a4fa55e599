// Package realtime implements the poller that tails the hub event stream,
// filters events down to the tracked graph and hands the relevant ones to
// the processing queue.
package realtime

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
	"github.com/fargraph/go-fargraph/pkg/hub"
	"github.com/fargraph/go-fargraph/pkg/queue"
	"github.com/fargraph/go-fargraph/pkg/store"
	"github.com/fargraph/go-fargraph/pkg/targets"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultPageSize = 100

// Worker runs one sync tick per task. Ticks are serialized by running the
// realtime queue with concurrency one, so the cursor never races itself.
type Worker struct {
	log      zerolog.Logger
	hub      hub.Client
	store    store.Store
	cache    targets.Cache
	enqueuer queue.Enqueuer
	pageSize int

	// cursor mirrors the durable cursor for the metrics gauge.
	cursor *atomic.Uint64
}

// New creates a realtime sync worker.
func New(hubClient hub.Client, s store.Store, cache targets.Cache, enqueuer queue.Enqueuer) (*Worker, error) {
	w := &Worker{
		log:      logger.With().Str("component", "realtime").Logger(),
		hub:      hubClient,
		store:    s,
		cache:    cache,
		enqueuer: enqueuer,
		pageSize: defaultPageSize,
		cursor:   atomic.NewUint64(0),
	}
	if err := w.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metrics instruments: %s", err)
	}
	return w, nil
}

// Handle processes one sync tick.
func (w *Worker) Handle(ctx context.Context, _ *asynq.Task) error {
	return w.Sync(ctx)
}

// Sync fetches one page of hub events past the durable cursor, enqueues the
// relevant ones and advances the cursor. The cursor only moves after every
// relevant event of the page is safely queued, so a crash mid-page replays
// the page instead of losing it.
func (w *Worker) Sync(ctx context.Context) error {
	cursor, err := w.store.GetLastEventID(ctx, store.SyncStateRealtime)
	if err != nil {
		return fmt.Errorf("reading sync cursor: %s", err)
	}
	w.cursor.Store(cursor)

	events, err := w.hub.Events(ctx, cursor, w.pageSize)
	if err != nil {
		return fmt.Errorf("fetching hub events from %d: %s", cursor, err)
	}

	maxID := cursor
	enqueued := 0
	for i := range events {
		e := &events[i]
		// The hub replays the from_event_id event itself; everything at or
		// below the cursor is already handled.
		if e.ID <= cursor {
			continue
		}
		if e.ID > maxID {
			maxID = e.ID
		}
		relevant, err := w.relevant(ctx, e)
		if err != nil {
			return fmt.Errorf("checking relevance of event %d: %s", e.ID, err)
		}
		if !relevant {
			continue
		}
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling event %d: %s", e.ID, err)
		}
		if err := w.enqueuer.EnqueueEvent(ctx, e.ID, raw); err != nil {
			return fmt.Errorf("enqueuing event %d: %s", e.ID, err)
		}
		enqueued++
	}

	if maxID > cursor {
		if err := w.store.SetLastEventID(ctx, store.SyncStateRealtime, maxID); err != nil {
			return fmt.Errorf("advancing sync cursor to %d: %s", maxID, err)
		}
		w.cursor.Store(maxID)
		w.log.Debug().
			Uint64("cursor", maxID).
			Int("events", len(events)).
			Int("enqueued", enqueued).
			Msg("sync tick")
	}
	return nil
}

// relevant applies the target filter. An event matters if it was authored by
// a tracked fid, interacts with a tracked fid's cast, or is an on-chain
// event of a tracked fid or client app.
func (w *Worker) relevant(ctx context.Context, e *farcaster.HubEvent) (bool, error) {
	switch e.Type {
	case farcaster.HubEventTypeMergeMessage:
		msg := e.Message()
		if msg == nil || msg.Data == nil {
			return false, nil
		}
		if ok, err := w.cache.IsTarget(ctx, msg.Data.Fid); err != nil || ok {
			return ok, err
		}
		// Replies to and reactions on a target's casts matter even when the
		// author isn't tracked.
		if msg.Data.Type == farcaster.MessageTypeCastAdd &&
			msg.Data.CastAddBody != nil && msg.Data.CastAddBody.ParentCastID != nil {
			return w.cache.IsTarget(ctx, msg.Data.CastAddBody.ParentCastID.Fid)
		}
		if msg.Data.Type == farcaster.MessageTypeReactionAdd &&
			msg.Data.ReactionBody != nil && msg.Data.ReactionBody.TargetCastID != nil {
			return w.cache.IsTarget(ctx, msg.Data.ReactionBody.TargetCastID.Fid)
		}
		return false, nil
	case farcaster.HubEventTypeMergeOnChainEvent:
		on := e.OnChain()
		if on == nil {
			return false, nil
		}
		if ok, err := w.cache.IsTarget(ctx, on.Fid); err != nil || ok {
			return ok, err
		}
		return w.cache.IsTargetClient(ctx, on.Fid)
	default:
		// Prunes and revokes are intentionally ignored.
		return false, nil
	}
}
