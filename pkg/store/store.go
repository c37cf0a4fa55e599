// Package store defines the persistence surface of the indexer: the row
// types of the indexed tables and the Store interface implemented by the
// Postgres-backed store in impl.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
)

// Target is a tracked fid. LastSyncedAt is nil until backfill completes.
type Target struct {
	Fid          uint64
	IsRoot       bool
	AddedAt      time.Time
	LastSyncedAt *time.Time
}

// TargetClient is a fid whose on-chain signer-key additions announce new
// root targets.
type TargetClient struct {
	Fid     uint64
	AddedAt time.Time
}

// Cast is an authored message; replies carry parent references.
type Cast struct {
	Hash              farcaster.Hex
	Fid               uint64
	Text              string
	ParentHash        *farcaster.Hex
	ParentFid         *uint64
	ParentURL         *string
	Timestamp         time.Time
	Embeds            json.RawMessage
	Mentions          json.RawMessage
	MentionsPositions json.RawMessage
}

// Reaction is a like or recast of a cast or URL.
type Reaction struct {
	Hash       farcaster.Hex
	Fid        uint64
	Type       farcaster.ReactionType
	TargetHash *farcaster.Hex
	TargetFid  *uint64
	TargetURL  *string
	Timestamp  time.Time
}

// Link is an active directed follow edge. Unfollows delete the row.
type Link struct {
	Hash      farcaster.Hex
	Fid       uint64
	TargetFid uint64
	Type      farcaster.LinkType
	Timestamp time.Time
}

// Verification is a proven address ownership.
type Verification struct {
	Hash      farcaster.Hex
	Fid       uint64
	Address   farcaster.Hex
	Protocol  farcaster.Protocol
	BlockHash *farcaster.Hex
	Timestamp time.Time
}

// UserData is one profile field value; the canonical profile takes the
// latest value per (fid, type).
type UserData struct {
	Hash      farcaster.Hex
	Fid       uint64
	Type      farcaster.UserDataType
	Value     string
	Timestamp time.Time
}

// UsernameProof is a name ownership proof.
type UsernameProof struct {
	Hash      farcaster.Hex
	Fid       uint64
	Name      string
	Owner     farcaster.Hex
	Signature farcaster.Hex
	Timestamp time.Time
}

// OnChainEvent is a hub-observed registry event. Exactly one of the body
// columns is non-nil, matching Type.
type OnChainEvent struct {
	Type                 farcaster.OnChainEventType
	ChainID              uint32
	BlockNumber          uint64
	BlockHash            farcaster.Hex
	BlockTimestamp       time.Time
	TransactionHash      farcaster.Hex
	LogIndex             uint32
	Fid                  uint64
	SignerEventBody      json.RawMessage
	IDRegisterEventBody  json.RawMessage
	KeyRegistryEventBody json.RawMessage
	StorageRentEventBody json.RawMessage
}

// SyncStateRealtime is the name of the realtime pipeline cursor.
const SyncStateRealtime = "realtime-sync"

// TargetStore manages the authoritative target and target-client tables.
type TargetStore interface {
	// InsertTarget inserts a target if absent. It reports whether a new row
	// was created.
	InsertTarget(ctx context.Context, fid uint64, isRoot bool) (bool, error)
	GetTarget(ctx context.Context, fid uint64) (*Target, error)
	ListTargets(ctx context.Context) ([]Target, error)
	RemoveTarget(ctx context.Context, fid uint64) error
	SetTargetSynced(ctx context.Context, fid uint64) error

	InsertTargetClient(ctx context.Context, fid uint64) (bool, error)
	ListTargetClients(ctx context.Context) ([]TargetClient, error)
	RemoveTargetClient(ctx context.Context, fid uint64) error
}

// MessageStore persists the five message kinds plus username proofs and
// on-chain events. All inserts are idempotent: a repeated insert of the same
// hash is a no-op.
type MessageStore interface {
	InsertCasts(ctx context.Context, casts []Cast) error
	DeleteCast(ctx context.Context, hash farcaster.Hex) error

	InsertReactions(ctx context.Context, reactions []Reaction) error
	DeleteReaction(ctx context.Context, fid uint64, targetHash farcaster.Hex, typ farcaster.ReactionType) error

	InsertLinks(ctx context.Context, links []Link) error
	DeleteLink(ctx context.Context, fid, targetFid uint64, typ farcaster.LinkType) error

	InsertVerifications(ctx context.Context, verifications []Verification) error
	DeleteVerification(ctx context.Context, fid uint64, address farcaster.Hex) error

	InsertUserData(ctx context.Context, rows []UserData) error
	InsertUsernameProofs(ctx context.Context, proofs []UsernameProof) error
	InsertOnChainEvents(ctx context.Context, events []OnChainEvent) error
}

// SyncStateStore is the durable cursor store of the realtime pipeline.
type SyncStateStore interface {
	// GetLastEventID returns the cursor for the named stream, or 0 if the
	// row is absent or NULL.
	GetLastEventID(ctx context.Context, name string) (uint64, error)
	SetLastEventID(ctx context.Context, name string, id uint64) error
}

// Store is the full persistence surface.
type Store interface {
	TargetStore
	MessageStore
	SyncStateStore

	// RefreshUserProfiles refreshes the user_profiles materialized view.
	// Operator triggered; staleness is acceptable.
	RefreshUserProfiles(ctx context.Context) error

	Close()
}
