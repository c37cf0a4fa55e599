// Package backfill implements the worker that pulls the full history of a
// target fid from the hub and persists it.
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/fargraph/go-fargraph/pkg/hub"
	"github.com/fargraph/go-fargraph/pkg/queue"
	"github.com/fargraph/go-fargraph/pkg/records"
	"github.com/fargraph/go-fargraph/pkg/store"
)

// Worker backfills one target per task. Every insert is idempotent, so a
// task that fails halfway can be retried from scratch.
type Worker struct {
	log   zerolog.Logger
	hub   hub.Client
	store store.Store
}

// New creates a backfill worker.
func New(hubClient hub.Client, s store.Store) *Worker {
	return &Worker{
		log:   logger.With().Str("component", "backfill").Logger(),
		hub:   hubClient,
		store: s,
	}
}

// Handle processes one backfill task.
func (w *Worker) Handle(ctx context.Context, t *asynq.Task) error {
	var payload queue.BackfillPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.log.Warn().Err(err).Msg("dropping malformed backfill payload")
		return nil
	}
	return w.Backfill(ctx, payload.Fid)
}

// Backfill syncs the full history of a fid. The target row must exist; a fid
// removed while its job sat in the queue is skipped.
func (w *Worker) Backfill(ctx context.Context, fid uint64) error {
	target, err := w.store.GetTarget(ctx, fid)
	if err != nil {
		return fmt.Errorf("loading target %d: %s", fid, err)
	}
	if target == nil {
		w.log.Warn().Uint64("fid", fid).Msg("skipping backfill of removed target")
		return nil
	}

	start := time.Now()

	// Profiles first so the account is presentable while the heavier
	// sections stream in.
	if err := w.syncUserData(ctx, fid); err != nil {
		return err
	}
	if err := w.syncCasts(ctx, fid); err != nil {
		return err
	}
	if err := w.syncReactions(ctx, fid); err != nil {
		return err
	}
	if err := w.syncLinks(ctx, fid); err != nil {
		return err
	}
	if err := w.syncVerifications(ctx, fid); err != nil {
		return err
	}
	if err := w.syncUsernameProofs(ctx, fid); err != nil {
		return err
	}
	if target.IsRoot {
		if err := w.syncOnChainEvents(ctx, fid); err != nil {
			return err
		}
	}

	if err := w.store.SetTargetSynced(ctx, fid); err != nil {
		return fmt.Errorf("marking target %d synced: %s", fid, err)
	}
	w.log.Info().
		Uint64("fid", fid).
		Bool("is_root", target.IsRoot).
		Dur("took", time.Since(start)).
		Msg("backfill completed")
	return nil
}

func (w *Worker) syncUserData(ctx context.Context, fid uint64) error {
	msgs, err := w.hub.GetAllMessagesByFid(ctx, fid, hub.KindUserData)
	if err != nil {
		return fmt.Errorf("fetching user data for %d: %s", fid, err)
	}
	rows := make([]store.UserData, 0, len(msgs))
	for i := range msgs {
		if row := records.UserData(&msgs[i]); row != nil {
			rows = append(rows, *row)
		}
	}
	if err := w.store.InsertUserData(ctx, rows); err != nil {
		return fmt.Errorf("storing user data for %d: %s", fid, err)
	}
	return nil
}

func (w *Worker) syncCasts(ctx context.Context, fid uint64) error {
	msgs, err := w.hub.GetAllMessagesByFid(ctx, fid, hub.KindCasts)
	if err != nil {
		return fmt.Errorf("fetching casts for %d: %s", fid, err)
	}
	rows := make([]store.Cast, 0, len(msgs))
	for i := range msgs {
		if row := records.Cast(&msgs[i]); row != nil {
			rows = append(rows, *row)
		}
	}
	if err := w.store.InsertCasts(ctx, rows); err != nil {
		return fmt.Errorf("storing casts for %d: %s", fid, err)
	}
	return nil
}

func (w *Worker) syncReactions(ctx context.Context, fid uint64) error {
	msgs, err := w.hub.GetAllMessagesByFid(ctx, fid, hub.KindReactions)
	if err != nil {
		return fmt.Errorf("fetching reactions for %d: %s", fid, err)
	}
	rows := make([]store.Reaction, 0, len(msgs))
	for i := range msgs {
		if row := records.Reaction(&msgs[i]); row != nil {
			rows = append(rows, *row)
		}
	}
	if err := w.store.InsertReactions(ctx, rows); err != nil {
		return fmt.Errorf("storing reactions for %d: %s", fid, err)
	}
	return nil
}

func (w *Worker) syncLinks(ctx context.Context, fid uint64) error {
	msgs, err := w.hub.GetAllMessagesByFid(ctx, fid, hub.KindLinks)
	if err != nil {
		return fmt.Errorf("fetching links for %d: %s", fid, err)
	}
	rows := make([]store.Link, 0, len(msgs))
	for i := range msgs {
		if row := records.Link(&msgs[i]); row != nil {
			rows = append(rows, *row)
		}
	}
	if err := w.store.InsertLinks(ctx, rows); err != nil {
		return fmt.Errorf("storing links for %d: %s", fid, err)
	}
	return nil
}

func (w *Worker) syncVerifications(ctx context.Context, fid uint64) error {
	msgs, err := w.hub.GetAllMessagesByFid(ctx, fid, hub.KindVerifications)
	if err != nil {
		return fmt.Errorf("fetching verifications for %d: %s", fid, err)
	}
	rows := make([]store.Verification, 0, len(msgs))
	for i := range msgs {
		if row := records.Verification(&msgs[i]); row != nil {
			rows = append(rows, *row)
		}
	}
	if err := w.store.InsertVerifications(ctx, rows); err != nil {
		return fmt.Errorf("storing verifications for %d: %s", fid, err)
	}
	return nil
}

func (w *Worker) syncUsernameProofs(ctx context.Context, fid uint64) error {
	proofs, err := w.hub.UsernameProofsByFid(ctx, fid)
	if err != nil {
		return fmt.Errorf("fetching username proofs for %d: %s", fid, err)
	}
	rows := make([]store.UsernameProof, 0, len(proofs))
	for i := range proofs {
		if row := records.UsernameProofFromProof(&proofs[i]); row != nil {
			rows = append(rows, *row)
		}
	}
	if err := w.store.InsertUsernameProofs(ctx, rows); err != nil {
		return fmt.Errorf("storing username proofs for %d: %s", fid, err)
	}
	return nil
}

func (w *Worker) syncOnChainEvents(ctx context.Context, fid uint64) error {
	events, err := w.hub.GetAllOnChainEventsByFid(ctx, fid)
	if err != nil {
		return fmt.Errorf("fetching on-chain events for %d: %s", fid, err)
	}
	rows := make([]store.OnChainEvent, 0, len(events))
	for i := range events {
		if row := records.OnChainEvent(&events[i]); row != nil {
			rows = append(rows, *row)
		}
	}
	if err := w.store.InsertOnChainEvents(ctx, rows); err != nil {
		return fmt.Errorf("storing on-chain events for %d: %s", fid, err)
	}
	return nil
}
