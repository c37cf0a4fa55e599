// Package storetest provides an in-memory Store for worker tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
	"github.com/fargraph/go-fargraph/pkg/store"
)

// MemStore is a Store kept in maps. It mirrors the idempotence semantics of
// the Postgres store: inserts are keyed and re-inserts are no-ops.
type MemStore struct {
	mu sync.Mutex

	Targets       map[uint64]*store.Target
	TargetClients map[uint64]time.Time

	Casts          map[farcaster.Hex]store.Cast
	Reactions      map[farcaster.Hex]store.Reaction
	Links          map[farcaster.Hex]store.Link
	Verifications  map[farcaster.Hex]store.Verification
	UserData       map[farcaster.Hex]store.UserData
	UsernameProofs map[farcaster.Hex]store.UsernameProof
	OnChainEvents  map[string]store.OnChainEvent

	SyncState map[string]uint64

	ProfileRefreshes int
}

var _ store.Store = (*MemStore)(nil)

// New creates an empty MemStore.
func New() *MemStore {
	return &MemStore{
		Targets:        map[uint64]*store.Target{},
		TargetClients:  map[uint64]time.Time{},
		Casts:          map[farcaster.Hex]store.Cast{},
		Reactions:      map[farcaster.Hex]store.Reaction{},
		Links:          map[farcaster.Hex]store.Link{},
		Verifications:  map[farcaster.Hex]store.Verification{},
		UserData:       map[farcaster.Hex]store.UserData{},
		UsernameProofs: map[farcaster.Hex]store.UsernameProof{},
		OnChainEvents:  map[string]store.OnChainEvent{},
		SyncState:      map[string]uint64{},
	}
}

// InsertTarget implements store.TargetStore.
func (s *MemStore) InsertTarget(_ context.Context, fid uint64, isRoot bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Targets[fid]; ok {
		return false, nil
	}
	s.Targets[fid] = &store.Target{Fid: fid, IsRoot: isRoot, AddedAt: time.Now()}
	return true, nil
}

// GetTarget implements store.TargetStore.
func (s *MemStore) GetTarget(_ context.Context, fid uint64) (*store.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.Targets[fid]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// ListTargets implements store.TargetStore.
func (s *MemStore) ListTargets(_ context.Context) ([]store.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Target, 0, len(s.Targets))
	for _, t := range s.Targets {
		out = append(out, *t)
	}
	return out, nil
}

// RemoveTarget implements store.TargetStore.
func (s *MemStore) RemoveTarget(_ context.Context, fid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Targets, fid)
	return nil
}

// SetTargetSynced implements store.TargetStore.
func (s *MemStore) SetTargetSynced(_ context.Context, fid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.Targets[fid]; ok {
		now := time.Now()
		t.LastSyncedAt = &now
	}
	return nil
}

// InsertTargetClient implements store.TargetStore.
func (s *MemStore) InsertTargetClient(_ context.Context, fid uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.TargetClients[fid]; ok {
		return false, nil
	}
	s.TargetClients[fid] = time.Now()
	return true, nil
}

// ListTargetClients implements store.TargetStore.
func (s *MemStore) ListTargetClients(_ context.Context) ([]store.TargetClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.TargetClient, 0, len(s.TargetClients))
	for fid, addedAt := range s.TargetClients {
		out = append(out, store.TargetClient{Fid: fid, AddedAt: addedAt})
	}
	return out, nil
}

// RemoveTargetClient implements store.TargetStore.
func (s *MemStore) RemoveTargetClient(_ context.Context, fid uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.TargetClients, fid)
	return nil
}

// InsertCasts implements store.MessageStore.
func (s *MemStore) InsertCasts(_ context.Context, casts []store.Cast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range casts {
		if _, ok := s.Casts[c.Hash]; !ok {
			s.Casts[c.Hash] = c
		}
	}
	return nil
}

// DeleteCast implements store.MessageStore.
func (s *MemStore) DeleteCast(_ context.Context, hash farcaster.Hex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Casts, hash)
	return nil
}

// InsertReactions implements store.MessageStore.
func (s *MemStore) InsertReactions(_ context.Context, reactions []store.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range reactions {
		if _, ok := s.Reactions[r.Hash]; !ok {
			s.Reactions[r.Hash] = r
		}
	}
	return nil
}

// DeleteReaction implements store.MessageStore.
func (s *MemStore) DeleteReaction(
	_ context.Context, fid uint64, targetHash farcaster.Hex, typ farcaster.ReactionType,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, r := range s.Reactions {
		if r.Fid == fid && r.Type == typ && r.TargetHash != nil && *r.TargetHash == targetHash {
			delete(s.Reactions, hash)
		}
	}
	return nil
}

// InsertLinks implements store.MessageStore.
func (s *MemStore) InsertLinks(_ context.Context, links []store.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range links {
		if _, ok := s.Links[l.Hash]; !ok {
			s.Links[l.Hash] = l
		}
	}
	return nil
}

// DeleteLink implements store.MessageStore.
func (s *MemStore) DeleteLink(_ context.Context, fid, targetFid uint64, typ farcaster.LinkType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, l := range s.Links {
		if l.Fid == fid && l.TargetFid == targetFid && l.Type == typ {
			delete(s.Links, hash)
		}
	}
	return nil
}

// InsertVerifications implements store.MessageStore.
func (s *MemStore) InsertVerifications(_ context.Context, verifications []store.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range verifications {
		if _, ok := s.Verifications[v.Hash]; !ok {
			s.Verifications[v.Hash] = v
		}
	}
	return nil
}

// DeleteVerification implements store.MessageStore.
func (s *MemStore) DeleteVerification(_ context.Context, fid uint64, address farcaster.Hex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, v := range s.Verifications {
		if v.Fid == fid && v.Address == address {
			delete(s.Verifications, hash)
		}
	}
	return nil
}

// InsertUserData implements store.MessageStore.
func (s *MemStore) InsertUserData(_ context.Context, rows []store.UserData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range rows {
		if _, ok := s.UserData[u.Hash]; !ok {
			s.UserData[u.Hash] = u
		}
	}
	return nil
}

// InsertUsernameProofs implements store.MessageStore.
func (s *MemStore) InsertUsernameProofs(_ context.Context, proofs []store.UsernameProof) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range proofs {
		if _, ok := s.UsernameProofs[p.Hash]; !ok {
			s.UsernameProofs[p.Hash] = p
		}
	}
	return nil
}

// InsertOnChainEvents implements store.MessageStore.
func (s *MemStore) InsertOnChainEvents(_ context.Context, events []store.OnChainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		key := fmt.Sprintf("%s/%d", e.TransactionHash, e.LogIndex)
		if _, ok := s.OnChainEvents[key]; !ok {
			s.OnChainEvents[key] = e
		}
	}
	return nil
}

// GetLastEventID implements store.SyncStateStore.
func (s *MemStore) GetLastEventID(_ context.Context, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SyncState[name], nil
}

// SetLastEventID implements store.SyncStateStore.
func (s *MemStore) SetLastEventID(_ context.Context, name string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SyncState[name] = id
	return nil
}

// RefreshUserProfiles implements store.Store.
func (s *MemStore) RefreshUserProfiles(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProfileRefreshes++
	return nil
}

// Close implements store.Store.
func (s *MemStore) Close() {}
