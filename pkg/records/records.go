// Package records contains the factories that map hub messages and events to
// persistence rows. Factories are pure: they return nil iff the message type
// doesn't match, and never touch the database.
package records

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
	"github.com/fargraph/go-fargraph/pkg/store"
)

// Cast maps a CAST_ADD message to a casts row.
func Cast(m *farcaster.Message) *store.Cast {
	if m == nil || m.Data == nil || m.Data.Type != farcaster.MessageTypeCastAdd || m.Data.CastAddBody == nil {
		return nil
	}
	body := m.Data.CastAddBody
	cast := &store.Cast{
		Hash:      m.Hash,
		Fid:       m.Data.Fid,
		Text:      body.Text,
		Timestamp: m.Data.Timestamp.Time(),
	}
	if body.ParentCastID != nil {
		hash := body.ParentCastID.Hash
		fid := body.ParentCastID.Fid
		cast.ParentHash = &hash
		cast.ParentFid = &fid
	}
	if body.ParentURL != "" {
		url := body.ParentURL
		cast.ParentURL = &url
	}
	cast.Embeds = marshalOrNil(body.Embeds, len(body.Embeds) > 0)
	cast.Mentions = marshalOrNil(body.Mentions, len(body.Mentions) > 0)
	cast.MentionsPositions = marshalOrNil(body.MentionsPositions, len(body.MentionsPositions) > 0)
	return cast
}

// Reaction maps a REACTION_ADD message to a reactions row.
func Reaction(m *farcaster.Message) *store.Reaction {
	if m == nil || m.Data == nil || m.Data.Type != farcaster.MessageTypeReactionAdd || m.Data.ReactionBody == nil {
		return nil
	}
	body := m.Data.ReactionBody
	reaction := &store.Reaction{
		Hash:      m.Hash,
		Fid:       m.Data.Fid,
		Type:      body.Type,
		Timestamp: m.Data.Timestamp.Time(),
	}
	if body.TargetCastID != nil {
		hash := body.TargetCastID.Hash
		fid := body.TargetCastID.Fid
		reaction.TargetHash = &hash
		reaction.TargetFid = &fid
	}
	if body.TargetURL != "" {
		url := body.TargetURL
		reaction.TargetURL = &url
	}
	return reaction
}

// Link maps a LINK_ADD message of type follow to a links row. Link kinds
// other than follow aren't tracked and return nil.
func Link(m *farcaster.Message) *store.Link {
	if m == nil || m.Data == nil || m.Data.Type != farcaster.MessageTypeLinkAdd || m.Data.LinkBody == nil {
		return nil
	}
	body := m.Data.LinkBody
	if body.Type != farcaster.LinkTypeFollow {
		return nil
	}
	return &store.Link{
		Hash:      m.Hash,
		Fid:       m.Data.Fid,
		TargetFid: body.TargetFid,
		Type:      body.Type,
		Timestamp: m.Data.Timestamp.Time(),
	}
}

// Verification maps a VERIFICATION_ADD_ETH_ADDRESS message to a
// verifications row. The address is normalized through the 20-byte
// Ethereum address type; malformed addresses return nil.
func Verification(m *farcaster.Message) *store.Verification {
	if m == nil || m.Data == nil ||
		m.Data.Type != farcaster.MessageTypeVerificationAddEthAddress ||
		m.Data.VerificationAddEthAddressBody == nil {
		return nil
	}
	body := m.Data.VerificationAddEthAddressBody
	if !common.IsHexAddress("0x" + string(body.Address)) {
		return nil
	}
	address := farcaster.HexFromBytes(common.HexToAddress("0x" + string(body.Address)).Bytes())
	protocol := body.Protocol
	if protocol == "" {
		protocol = farcaster.ProtocolEthereum
	}
	verification := &store.Verification{
		Hash:      m.Hash,
		Fid:       m.Data.Fid,
		Address:   address,
		Protocol:  protocol,
		Timestamp: m.Data.Timestamp.Time(),
	}
	if body.BlockHash != "" {
		hash := body.BlockHash
		verification.BlockHash = &hash
	}
	return verification
}

// UserData maps a USER_DATA_ADD message to a user_data row.
func UserData(m *farcaster.Message) *store.UserData {
	if m == nil || m.Data == nil || m.Data.Type != farcaster.MessageTypeUserDataAdd || m.Data.UserDataBody == nil {
		return nil
	}
	body := m.Data.UserDataBody
	return &store.UserData{
		Hash:      m.Hash,
		Fid:       m.Data.Fid,
		Type:      body.Type,
		Value:     body.Value,
		Timestamp: m.Data.Timestamp.Time(),
	}
}

// UsernameProof maps a USERNAME_PROOF message to a username_proofs row.
func UsernameProof(m *farcaster.Message) *store.UsernameProof {
	if m == nil || m.Data == nil || m.Data.Type != farcaster.MessageTypeUsernameProof || m.Data.UsernameProofBody == nil {
		return nil
	}
	return usernameProof(m.Data.UsernameProofBody, m.Hash)
}

// UsernameProofFromProof maps a proof returned by /v1/usernameProofsByFid,
// which carries no message hash; the proof signature is the idempotency key.
func UsernameProofFromProof(p *farcaster.UsernameProofBody) *store.UsernameProof {
	if p == nil {
		return nil
	}
	return usernameProof(p, p.Signature)
}

func usernameProof(p *farcaster.UsernameProofBody, hash farcaster.Hex) *store.UsernameProof {
	return &store.UsernameProof{
		Hash:      hash,
		Fid:       p.Fid,
		Name:      p.Name,
		Owner:     p.Owner,
		Signature: p.Signature,
		Timestamp: p.Timestamp.Time(),
	}
}

// OnChainEvent maps a hub on-chain event to an on_chain_events row. The body
// matching the event type is stored as opaque JSON; the other body columns
// stay NULL.
func OnChainEvent(e *farcaster.OnChainEvent) *store.OnChainEvent {
	if e == nil {
		return nil
	}
	row := &store.OnChainEvent{
		Type:            e.Type,
		ChainID:         e.ChainID,
		BlockNumber:     e.BlockNumber,
		BlockHash:       e.BlockHash,
		BlockTimestamp:  unixTime(e.BlockTimestamp),
		TransactionHash: e.TransactionHash,
		LogIndex:        e.LogIndex,
		Fid:             e.Fid,
	}
	switch e.Type {
	case farcaster.OnChainEventTypeSigner:
		if e.SignerEventBody != nil {
			body, err := json.Marshal(e.SignerEventBody)
			if err == nil {
				row.SignerEventBody = body
			}
		}
	case farcaster.OnChainEventTypeIDRegister:
		row.IDRegisterEventBody = e.IDRegisterEventBody
	case farcaster.OnChainEventTypeKeyRegistry:
		row.KeyRegistryEventBody = e.KeyRegistryEventBody
	case farcaster.OnChainEventTypeStorageRent:
		row.StorageRentEventBody = e.StorageRentEventBody
	}
	return row
}

// unixTime converts unix seconds to a UTC instant. On-chain event block
// timestamps are plain unix, not hub-epoch relative.
func unixTime(sec uint64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}

func marshalOrNil(v interface{}, ok bool) json.RawMessage {
	if !ok {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
