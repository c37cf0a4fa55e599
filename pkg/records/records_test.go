package records

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
)

func castAddMessage() *farcaster.Message {
	parent := &farcaster.CastID{Fid: 2, Hash: "beef"}
	return &farcaster.Message{
		Hash: "aa01",
		Data: &farcaster.MessageData{
			Type:      farcaster.MessageTypeCastAdd,
			Fid:       1,
			Timestamp: 100,
			CastAddBody: &farcaster.CastAddBody{
				Text:              "gm",
				ParentCastID:      parent,
				Mentions:          []uint64{5},
				MentionsPositions: []uint32{0},
			},
		},
	}
}

func TestCast(t *testing.T) {
	t.Parallel()

	row := Cast(castAddMessage())
	require.NotNil(t, row)
	require.Equal(t, farcaster.Hex("aa01"), row.Hash)
	require.EqualValues(t, 1, row.Fid)
	require.Equal(t, "gm", row.Text)
	require.NotNil(t, row.ParentHash)
	require.Equal(t, farcaster.Hex("beef"), *row.ParentHash)
	require.NotNil(t, row.ParentFid)
	require.EqualValues(t, 2, *row.ParentFid)
	require.Nil(t, row.ParentURL)
	require.Equal(t, farcaster.Timestamp(100).Time(), row.Timestamp)
	require.JSONEq(t, `[5]`, string(row.Mentions))
	require.Nil(t, row.Embeds)
}

func TestCastRejectsOtherTypes(t *testing.T) {
	t.Parallel()

	m := castAddMessage()
	m.Data.Type = farcaster.MessageTypeCastRemove
	require.Nil(t, Cast(m))
	require.Nil(t, Cast(nil))
	require.Nil(t, Cast(&farcaster.Message{Hash: "aa"}))
}

func TestReaction(t *testing.T) {
	t.Parallel()

	m := &farcaster.Message{
		Hash: "bb02",
		Data: &farcaster.MessageData{
			Type:      farcaster.MessageTypeReactionAdd,
			Fid:       3,
			Timestamp: 50,
			ReactionBody: &farcaster.ReactionBody{
				Type:         farcaster.ReactionTypeLike,
				TargetCastID: &farcaster.CastID{Fid: 1, Hash: "aa01"},
			},
		},
	}
	row := Reaction(m)
	require.NotNil(t, row)
	require.Equal(t, farcaster.ReactionTypeLike, row.Type)
	require.NotNil(t, row.TargetHash)
	require.Equal(t, farcaster.Hex("aa01"), *row.TargetHash)

	m.Data.Type = farcaster.MessageTypeReactionRemove
	require.Nil(t, Reaction(m))
}

func TestLinkOnlyTracksFollows(t *testing.T) {
	t.Parallel()

	m := &farcaster.Message{
		Hash: "cc03",
		Data: &farcaster.MessageData{
			Type:      farcaster.MessageTypeLinkAdd,
			Fid:       3,
			Timestamp: 60,
			LinkBody:  &farcaster.LinkBody{Type: farcaster.LinkTypeFollow, TargetFid: 9},
		},
	}
	row := Link(m)
	require.NotNil(t, row)
	require.EqualValues(t, 9, row.TargetFid)

	m.Data.LinkBody.Type = "block"
	require.Nil(t, Link(m))
}

func TestVerificationNormalizesAddress(t *testing.T) {
	t.Parallel()

	m := &farcaster.Message{
		Hash: "dd04",
		Data: &farcaster.MessageData{
			Type:      farcaster.MessageTypeVerificationAddEthAddress,
			Fid:       4,
			Timestamp: 70,
			VerificationAddEthAddressBody: &farcaster.VerificationAddBody{
				Address: "8Ba1f109551bD432803012645Ac136ddd64DBA72",
			},
		},
	}
	row := Verification(m)
	require.NotNil(t, row)
	require.Equal(t, farcaster.Hex("8ba1f109551bd432803012645ac136ddd64dba72"), row.Address)
	require.Equal(t, farcaster.ProtocolEthereum, row.Protocol)

	m.Data.VerificationAddEthAddressBody.Address = "nothex"
	require.Nil(t, Verification(m))
}

func TestUserData(t *testing.T) {
	t.Parallel()

	m := &farcaster.Message{
		Hash: "ee05",
		Data: &farcaster.MessageData{
			Type:         farcaster.MessageTypeUserDataAdd,
			Fid:          5,
			Timestamp:    80,
			UserDataBody: &farcaster.UserDataBody{Type: farcaster.UserDataTypeUsername, Value: "alice"},
		},
	}
	row := UserData(m)
	require.NotNil(t, row)
	require.Equal(t, farcaster.UserDataTypeUsername, row.Type)
	require.Equal(t, "alice", row.Value)
}

func TestUsernameProofFromProofUsesSignatureAsKey(t *testing.T) {
	t.Parallel()

	p := &farcaster.UsernameProofBody{
		Timestamp: 90,
		Name:      "alice",
		Owner:     "ff06",
		Signature: "0102",
		Fid:       5,
	}
	row := UsernameProofFromProof(p)
	require.NotNil(t, row)
	require.Equal(t, farcaster.Hex("0102"), row.Hash)
	require.Equal(t, farcaster.Hex("0102"), row.Signature)
	require.Equal(t, "alice", row.Name)
}

func TestOnChainEventRoutesBodyByType(t *testing.T) {
	t.Parallel()

	e := &farcaster.OnChainEvent{
		Type:            farcaster.OnChainEventTypeSigner,
		ChainID:         10,
		BlockNumber:     100,
		BlockHash:       "0b",
		BlockTimestamp:  1700000000,
		TransactionHash: "0c",
		LogIndex:        3,
		Fid:             9,
		SignerEventBody: &farcaster.SignerEventBody{
			Key:        "0d",
			KeyType:    1,
			EventType:  farcaster.SignerEventTypeAdd,
			PayloadFid: 1234,
		},
		IDRegisterEventBody: []byte(`{"ignored": true}`),
	}
	row := OnChainEvent(e)
	require.NotNil(t, row)
	require.NotEmpty(t, row.SignerEventBody)
	require.Empty(t, row.IDRegisterEventBody)
	require.Empty(t, row.KeyRegistryEventBody)
	require.Equal(t, farcaster.Hex("0c"), row.TransactionHash)
	require.EqualValues(t, 3, row.LogIndex)

	e.Type = farcaster.OnChainEventTypeIDRegister
	row = OnChainEvent(e)
	require.NotEmpty(t, row.IDRegisterEventBody)
	require.Empty(t, row.SignerEventBody)
}
