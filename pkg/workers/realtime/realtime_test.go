package realtime

import (
	"context"
	stdjson "encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
	"github.com/fargraph/go-fargraph/pkg/hub"
	"github.com/fargraph/go-fargraph/pkg/store"
	"github.com/fargraph/go-fargraph/pkg/store/storetest"
)

type fakeHub struct {
	hub.Client
	events   []farcaster.HubEvent
	pageSize int
}

func (f *fakeHub) Events(_ context.Context, fromEventID uint64, pageSize int) ([]farcaster.HubEvent, error) {
	f.pageSize = pageSize
	var page []farcaster.HubEvent
	for _, e := range f.events {
		if e.ID >= fromEventID {
			page = append(page, e)
		}
	}
	return page, nil
}

type fakeCache struct {
	targets map[uint64]bool
	clients map[uint64]bool
}

func (c *fakeCache) AddTarget(_ context.Context, fid uint64) error {
	c.targets[fid] = true
	return nil
}

func (c *fakeCache) RemoveTarget(_ context.Context, fid uint64) error {
	delete(c.targets, fid)
	return nil
}
func (c *fakeCache) IsTarget(_ context.Context, fid uint64) (bool, error) {
	return c.targets[fid], nil
}
func (c *fakeCache) AddTargetClient(_ context.Context, fid uint64) error {
	c.clients[fid] = true
	return nil
}
func (c *fakeCache) RemoveTargetClient(_ context.Context, fid uint64) error {
	delete(c.clients, fid)
	return nil
}
func (c *fakeCache) IsTargetClient(_ context.Context, fid uint64) (bool, error) {
	return c.clients[fid], nil
}
func (c *fakeCache) LoadTargets(_ context.Context, fids []uint64) error       { return nil }
func (c *fakeCache) LoadTargetClients(_ context.Context, fids []uint64) error { return nil }
func (c *fakeCache) CountTargets(_ context.Context) (int64, error) {
	return int64(len(c.targets)), nil
}
func (c *fakeCache) Close() error { return nil }

type fakeEnqueuer struct {
	events    []uint64
	backfills []uint64
}

func (f *fakeEnqueuer) EnqueueBackfill(_ context.Context, fid uint64) error {
	f.backfills = append(f.backfills, fid)
	return nil
}

func (f *fakeEnqueuer) EnqueueEvent(_ context.Context, eventID uint64, _ stdjson.RawMessage) error {
	f.events = append(f.events, eventID)
	return nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func castAddEvent(id, authorFid uint64) farcaster.HubEvent {
	return farcaster.HubEvent{
		ID:   id,
		Type: farcaster.HubEventTypeMergeMessage,
		MergeMessageBody: &farcaster.MergeMessageBody{
			Message: &farcaster.Message{
				Hash: farcaster.Hex("aa"),
				Data: &farcaster.MessageData{
					Type:        farcaster.MessageTypeCastAdd,
					Fid:         authorFid,
					Timestamp:   10,
					CastAddBody: &farcaster.CastAddBody{Text: "gm"},
				},
			},
		},
	}
}

func replyEvent(id, authorFid, parentFid uint64) farcaster.HubEvent {
	e := castAddEvent(id, authorFid)
	e.MergeMessageBody.Message.Data.CastAddBody.ParentCastID = &farcaster.CastID{Fid: parentFid, Hash: "bb"}
	return e
}

func TestSyncFiltersAndAdvancesCursor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()
	cache := &fakeCache{targets: map[uint64]bool{1: true}, clients: map[uint64]bool{}}
	enq := &fakeEnqueuer{}
	hubClient := &fakeHub{events: []farcaster.HubEvent{
		castAddEvent(10, 1),   // tracked author
		castAddEvent(11, 99),  // untracked author
		replyEvent(12, 99, 1), // reply to a tracked fid's cast
	}}

	w, err := New(hubClient, db, cache, enq)
	require.NoError(t, err)
	require.NoError(t, w.Sync(ctx))

	require.Equal(t, []uint64{10, 12}, enq.events)
	require.Equal(t, 100, hubClient.pageSize)
	cursor, err := db.GetLastEventID(ctx, store.SyncStateRealtime)
	require.NoError(t, err)
	require.EqualValues(t, 12, cursor)
}

func TestSyncSkipsEventsAtOrBelowCursor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()
	require.NoError(t, db.SetLastEventID(ctx, store.SyncStateRealtime, 10))
	cache := &fakeCache{targets: map[uint64]bool{1: true}, clients: map[uint64]bool{}}
	enq := &fakeEnqueuer{}
	// The hub replays the cursor event itself at the page start.
	hubClient := &fakeHub{events: []farcaster.HubEvent{
		castAddEvent(10, 1),
		castAddEvent(11, 1),
	}}

	w, err := New(hubClient, db, cache, enq)
	require.NoError(t, err)
	require.NoError(t, w.Sync(ctx))

	require.Equal(t, []uint64{11}, enq.events)
	cursor, err := db.GetLastEventID(ctx, store.SyncStateRealtime)
	require.NoError(t, err)
	require.EqualValues(t, 11, cursor)
}

func TestSyncEmptyPageIsANoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()
	require.NoError(t, db.SetLastEventID(ctx, store.SyncStateRealtime, 5))
	cache := &fakeCache{targets: map[uint64]bool{}, clients: map[uint64]bool{}}
	enq := &fakeEnqueuer{}

	w, err := New(&fakeHub{}, db, cache, enq)
	require.NoError(t, err)
	require.NoError(t, w.Sync(ctx))

	require.Empty(t, enq.events)
	cursor, err := db.GetLastEventID(ctx, store.SyncStateRealtime)
	require.NoError(t, err)
	require.EqualValues(t, 5, cursor)
}

func TestSyncAdvancesCursorPastIrrelevantEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()
	cache := &fakeCache{targets: map[uint64]bool{}, clients: map[uint64]bool{}}
	enq := &fakeEnqueuer{}
	hubClient := &fakeHub{events: []farcaster.HubEvent{
		castAddEvent(20, 99),
		castAddEvent(21, 98),
	}}

	w, err := New(hubClient, db, cache, enq)
	require.NoError(t, err)
	require.NoError(t, w.Sync(ctx))

	require.Empty(t, enq.events)
	cursor, err := db.GetLastEventID(ctx, store.SyncStateRealtime)
	require.NoError(t, err)
	require.EqualValues(t, 21, cursor)
}

func TestSyncOnChainEventsOfTargetsAreRelevant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()
	cache := &fakeCache{targets: map[uint64]bool{5: true}, clients: map[uint64]bool{}}
	enq := &fakeEnqueuer{}
	hubClient := &fakeHub{events: []farcaster.HubEvent{
		{
			ID:   40,
			Type: farcaster.HubEventTypeMergeOnChainEvent,
			MergeOnChainEventBody: &farcaster.MergeOnChainEventBody{
				OnChainEvent: &farcaster.OnChainEvent{
					Type: farcaster.OnChainEventTypeStorageRent,
					Fid:  5,
				},
			},
		},
	}}

	w, err := New(hubClient, db, cache, enq)
	require.NoError(t, err)
	require.NoError(t, w.Sync(ctx))
	require.Equal(t, []uint64{40}, enq.events)
}

func TestSyncOnChainEventsOfClientsAreRelevant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := storetest.New()
	cache := &fakeCache{targets: map[uint64]bool{}, clients: map[uint64]bool{7: true}}
	enq := &fakeEnqueuer{}
	hubClient := &fakeHub{events: []farcaster.HubEvent{
		{
			ID:   30,
			Type: farcaster.HubEventTypeMergeOnChainEvent,
			MergeOnChainEventBody: &farcaster.MergeOnChainEventBody{
				OnChainEvent: &farcaster.OnChainEvent{
					Type: farcaster.OnChainEventTypeSigner,
					Fid:  7,
				},
			},
		},
	}}

	w, err := New(hubClient, db, cache, enq)
	require.NoError(t, err)
	require.NoError(t, w.Sync(ctx))
	require.Equal(t, []uint64{30}, enq.events)
}
