package backfill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
	"github.com/fargraph/go-fargraph/pkg/hub"
	"github.com/fargraph/go-fargraph/pkg/store/storetest"
)

type fakeHub struct {
	hub.Client
	messages      map[hub.Kind][]farcaster.Message
	proofs        []farcaster.UsernameProofBody
	onChainEvents []farcaster.OnChainEvent
	onChainCalls  int
}

func (f *fakeHub) GetAllMessagesByFid(_ context.Context, _ uint64, kind hub.Kind) ([]farcaster.Message, error) {
	return f.messages[kind], nil
}

func (f *fakeHub) UsernameProofsByFid(_ context.Context, _ uint64) ([]farcaster.UsernameProofBody, error) {
	return f.proofs, nil
}

func (f *fakeHub) GetAllOnChainEventsByFid(_ context.Context, _ uint64) ([]farcaster.OnChainEvent, error) {
	f.onChainCalls++
	return f.onChainEvents, nil
}

func message(typ farcaster.MessageType, fid uint64, hash farcaster.Hex) farcaster.Message {
	data := &farcaster.MessageData{Type: typ, Fid: fid, Timestamp: 10}
	switch typ {
	case farcaster.MessageTypeCastAdd:
		data.CastAddBody = &farcaster.CastAddBody{Text: "gm"}
	case farcaster.MessageTypeReactionAdd:
		data.ReactionBody = &farcaster.ReactionBody{
			Type:         farcaster.ReactionTypeLike,
			TargetCastID: &farcaster.CastID{Fid: 2, Hash: "aa"},
		}
	case farcaster.MessageTypeLinkAdd:
		data.LinkBody = &farcaster.LinkBody{Type: farcaster.LinkTypeFollow, TargetFid: 3}
	case farcaster.MessageTypeVerificationAddEthAddress:
		data.VerificationAddEthAddressBody = &farcaster.VerificationAddBody{
			Address: "8Ba1f109551bD432803012645Ac136ddd64DBA72",
		}
	case farcaster.MessageTypeUserDataAdd:
		data.UserDataBody = &farcaster.UserDataBody{Type: farcaster.UserDataTypeUsername, Value: "alice"}
	}
	return farcaster.Message{Hash: hash, Data: data}
}

func fullHub() *fakeHub {
	return &fakeHub{
		messages: map[hub.Kind][]farcaster.Message{
			hub.KindCasts:         {message(farcaster.MessageTypeCastAdd, 1, "01")},
			hub.KindReactions:     {message(farcaster.MessageTypeReactionAdd, 1, "02")},
			hub.KindLinks:         {message(farcaster.MessageTypeLinkAdd, 1, "03")},
			hub.KindVerifications: {message(farcaster.MessageTypeVerificationAddEthAddress, 1, "04")},
			hub.KindUserData:      {message(farcaster.MessageTypeUserDataAdd, 1, "05")},
		},
		proofs: []farcaster.UsernameProofBody{
			{Timestamp: 20, Name: "alice", Owner: "aa", Signature: "bb", Fid: 1},
		},
		onChainEvents: []farcaster.OnChainEvent{
			{
				Type:            farcaster.OnChainEventTypeIDRegister,
				Fid:             1,
				TransactionHash: "cc",
				LogIndex:        1,
			},
		},
	}
}

func TestBackfillRootTarget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()
	_, err := db.InsertTarget(ctx, 1, true)
	require.NoError(t, err)

	hubClient := fullHub()
	w := New(hubClient, db)
	require.NoError(t, w.Backfill(ctx, 1))

	require.Len(t, db.Casts, 1)
	require.Len(t, db.Reactions, 1)
	require.Len(t, db.Links, 1)
	require.Len(t, db.Verifications, 1)
	require.Len(t, db.UserData, 1)
	require.Len(t, db.UsernameProofs, 1)
	require.Len(t, db.OnChainEvents, 1)
	require.Equal(t, 1, hubClient.onChainCalls)

	target, err := db.GetTarget(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, target.LastSyncedAt)
}

func TestBackfillNonRootSkipsOnChainEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()
	_, err := db.InsertTarget(ctx, 1, false)
	require.NoError(t, err)

	hubClient := fullHub()
	w := New(hubClient, db)
	require.NoError(t, w.Backfill(ctx, 1))

	require.Empty(t, db.OnChainEvents)
	require.Equal(t, 0, hubClient.onChainCalls)
	require.Len(t, db.Casts, 1)
}

func TestBackfillEmptyAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()
	_, err := db.InsertTarget(ctx, 1, false)
	require.NoError(t, err)

	w := New(&fakeHub{messages: map[hub.Kind][]farcaster.Message{}}, db)
	require.NoError(t, w.Backfill(ctx, 1))

	require.Empty(t, db.Casts)
	target, err := db.GetTarget(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, target.LastSyncedAt)
}

func TestBackfillSkipsRemovedTarget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()

	hubClient := fullHub()
	w := New(hubClient, db)
	require.NoError(t, w.Backfill(ctx, 1))

	require.Empty(t, db.Casts)
	require.Equal(t, 0, hubClient.onChainCalls)
}

func TestBackfillIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()
	_, err := db.InsertTarget(ctx, 1, true)
	require.NoError(t, err)

	w := New(fullHub(), db)
	require.NoError(t, w.Backfill(ctx, 1))
	require.NoError(t, w.Backfill(ctx, 1))

	require.Len(t, db.Casts, 1)
	require.Len(t, db.OnChainEvents, 1)
}
