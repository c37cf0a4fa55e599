// Package processor implements the worker that turns queued hub events into
// database rows and grows the target graph as new accounts surface.
package processor

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
	"github.com/fargraph/go-fargraph/pkg/queue"
	"github.com/fargraph/go-fargraph/pkg/records"
	"github.com/fargraph/go-fargraph/pkg/store"
	"github.com/fargraph/go-fargraph/pkg/targets"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Worker processes one hub event per task.
type Worker struct {
	log      zerolog.Logger
	store    store.Store
	cache    targets.Cache
	enqueuer queue.Enqueuer

	// clientDiscovery enables growing the root target set from signer-key
	// additions announced by tracked client apps.
	clientDiscovery bool

	metrics workerMetrics
}

// New creates an event processor. When clientDiscovery is enabled, signer
// additions from tracked client apps create new root targets.
func New(s store.Store, cache targets.Cache, enqueuer queue.Enqueuer, clientDiscovery bool) (*Worker, error) {
	w := &Worker{
		log:             logger.With().Str("component", "processor").Logger(),
		store:           s,
		cache:           cache,
		enqueuer:        enqueuer,
		clientDiscovery: clientDiscovery,
	}
	if err := w.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metrics instruments: %s", err)
	}
	return w, nil
}

// Handle processes one queued event.
func (w *Worker) Handle(ctx context.Context, t *asynq.Task) error {
	var payload queue.EventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.log.Warn().Err(err).Msg("dropping malformed event payload")
		w.metrics.processed(ctx, "malformed", "dropped")
		return nil
	}
	var event farcaster.HubEvent
	if err := json.Unmarshal(payload.Event, &event); err != nil {
		w.log.Warn().Err(err).Uint64("event_id", payload.EventID).Msg("dropping undecodable event")
		w.metrics.processed(ctx, "malformed", "dropped")
		return nil
	}
	return w.Process(ctx, &event)
}

// Process applies one hub event to the store.
func (w *Worker) Process(ctx context.Context, e *farcaster.HubEvent) error {
	switch e.Type {
	case farcaster.HubEventTypeMergeMessage:
		return w.processMessage(ctx, e)
	case farcaster.HubEventTypeMergeOnChainEvent:
		return w.processOnChain(ctx, e)
	case farcaster.HubEventTypePruneMessage, farcaster.HubEventTypeRevokeMessage:
		// Pruned and revoked messages stay in the index.
		w.metrics.processed(ctx, string(e.Type), "ignored")
		return nil
	default:
		w.log.Debug().Str("type", string(e.Type)).Uint64("event_id", e.ID).Msg("ignoring unknown event type")
		w.metrics.processed(ctx, string(e.Type), "ignored")
		return nil
	}
}

func (w *Worker) processMessage(ctx context.Context, e *farcaster.HubEvent) error {
	msg := e.Message()
	if msg == nil || msg.Data == nil {
		w.log.Warn().Uint64("event_id", e.ID).Msg("dropping merge event without message data")
		w.metrics.processed(ctx, "malformed", "dropped")
		return nil
	}
	data := msg.Data

	var err error
	result := "stored"
	switch data.Type {
	case farcaster.MessageTypeCastAdd:
		if row := records.Cast(msg); row != nil {
			err = w.store.InsertCasts(ctx, []store.Cast{*row})
		} else {
			result = "dropped"
		}
	case farcaster.MessageTypeCastRemove:
		if data.CastRemoveBody == nil {
			result = "dropped"
			break
		}
		err = w.store.DeleteCast(ctx, data.CastRemoveBody.TargetHash)
		result = "deleted"
	case farcaster.MessageTypeReactionAdd:
		if row := records.Reaction(msg); row != nil {
			err = w.store.InsertReactions(ctx, []store.Reaction{*row})
		} else {
			result = "dropped"
		}
	case farcaster.MessageTypeReactionRemove:
		body := data.ReactionBody
		if body == nil || body.TargetCastID == nil {
			// URL-target reactions aren't indexed, so there is nothing to
			// remove.
			result = "dropped"
			break
		}
		err = w.store.DeleteReaction(ctx, data.Fid, body.TargetCastID.Hash, body.Type)
		result = "deleted"
	case farcaster.MessageTypeLinkAdd:
		if row := records.Link(msg); row != nil {
			if err = w.store.InsertLinks(ctx, []store.Link{*row}); err == nil {
				err = w.expandFollow(ctx, row.Fid, row.TargetFid)
			}
		} else {
			result = "dropped"
		}
	case farcaster.MessageTypeLinkRemove:
		body := data.LinkBody
		if body == nil || body.Type != farcaster.LinkTypeFollow {
			result = "dropped"
			break
		}
		// Unfollows delete the edge but never shrink the target set.
		err = w.store.DeleteLink(ctx, data.Fid, body.TargetFid, body.Type)
		result = "deleted"
	case farcaster.MessageTypeVerificationAddEthAddress:
		if row := records.Verification(msg); row != nil {
			err = w.store.InsertVerifications(ctx, []store.Verification{*row})
		} else {
			w.log.Warn().Uint64("fid", data.Fid).Msg("dropping verification with malformed address")
			result = "dropped"
		}
	case farcaster.MessageTypeVerificationRemove:
		body := data.VerificationRemoveBody
		if body == nil || !common.IsHexAddress("0x"+string(body.Address)) {
			result = "dropped"
			break
		}
		address := farcaster.HexFromBytes(common.HexToAddress("0x" + string(body.Address)).Bytes())
		err = w.store.DeleteVerification(ctx, data.Fid, address)
		result = "deleted"
	case farcaster.MessageTypeUserDataAdd:
		if row := records.UserData(msg); row != nil {
			err = w.store.InsertUserData(ctx, []store.UserData{*row})
		} else {
			result = "dropped"
		}
	case farcaster.MessageTypeUsernameProof:
		if row := records.UsernameProof(msg); row != nil {
			err = w.store.InsertUsernameProofs(ctx, []store.UsernameProof{*row})
		} else {
			result = "dropped"
		}
	default:
		w.log.Debug().Str("type", string(data.Type)).Msg("ignoring unhandled message type")
		result = "ignored"
	}
	if err != nil {
		return fmt.Errorf("applying %s for fid %d: %s", data.Type, data.Fid, err)
	}
	w.metrics.processed(ctx, string(data.Type), result)
	return nil
}

// expandFollow grows the target set when a root target follows someone new.
// Followees become non-root targets, so their own follows don't cascade.
func (w *Worker) expandFollow(ctx context.Context, fid, targetFid uint64) error {
	follower, err := w.store.GetTarget(ctx, fid)
	if err != nil {
		return fmt.Errorf("loading follower target %d: %s", fid, err)
	}
	if follower == nil || !follower.IsRoot {
		return nil
	}
	return w.addTarget(ctx, targetFid, false)
}

func (w *Worker) processOnChain(ctx context.Context, e *farcaster.HubEvent) error {
	on := e.OnChain()
	if on == nil {
		w.log.Warn().Uint64("event_id", e.ID).Msg("dropping merge event without on-chain body")
		w.metrics.processed(ctx, "malformed", "dropped")
		return nil
	}
	if row := records.OnChainEvent(on); row != nil {
		if err := w.store.InsertOnChainEvents(ctx, []store.OnChainEvent{*row}); err != nil {
			return fmt.Errorf("storing on-chain event for fid %d: %s", on.Fid, err)
		}
	}
	if err := w.discoverClientSignup(ctx, on); err != nil {
		return err
	}
	w.metrics.processed(ctx, string(on.Type), "stored")
	return nil
}

// discoverClientSignup grows the root target set when a tracked client app
// issues a signer key for an account.
func (w *Worker) discoverClientSignup(ctx context.Context, on *farcaster.OnChainEvent) error {
	if !w.clientDiscovery {
		return nil
	}
	if on.Type != farcaster.OnChainEventTypeSigner || on.SignerEventBody == nil {
		return nil
	}
	body := on.SignerEventBody
	if body.EventType != farcaster.SignerEventTypeAdd || body.PayloadFid == 0 {
		return nil
	}
	isClient, err := w.cache.IsTargetClient(ctx, on.Fid)
	if err != nil {
		return fmt.Errorf("checking client membership of %d: %s", on.Fid, err)
	}
	if !isClient {
		return nil
	}
	return w.addTarget(ctx, body.PayloadFid, true)
}

// addTarget inserts a target, updates the cache and queues its backfill.
// Re-adding an existing target is a no-op.
func (w *Worker) addTarget(ctx context.Context, fid uint64, isRoot bool) error {
	inserted, err := w.store.InsertTarget(ctx, fid, isRoot)
	if err != nil {
		return fmt.Errorf("inserting target %d: %s", fid, err)
	}
	if !inserted {
		return nil
	}
	if err := w.cache.AddTarget(ctx, fid); err != nil {
		return fmt.Errorf("caching target %d: %s", fid, err)
	}
	if err := w.enqueuer.EnqueueBackfill(ctx, fid); err != nil {
		return fmt.Errorf("queuing backfill of target %d: %s", fid, err)
	}
	w.log.Info().Uint64("fid", fid).Bool("is_root", isRoot).Msg("target added")
	w.metrics.targetAdded(ctx, isRoot)
	return nil
}
