package farcaster

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestampTime(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), Timestamp(0).Time())
	require.Equal(t, time.Date(2021, 1, 1, 1, 0, 0, 0, time.UTC), Timestamp(3600).Time())
}

func TestTimestampRoundTrip(t *testing.T) {
	t.Parallel()

	instant := time.Date(2023, 7, 15, 12, 30, 45, 0, time.UTC)
	require.Equal(t, instant, TimestampFromTime(instant).Time())
}

func TestHexFromString(t *testing.T) {
	t.Parallel()

	h, err := HexFromString("0xAbCd12")
	require.NoError(t, err)
	require.Equal(t, Hex("abcd12"), h)

	h, err = HexFromString("abcd12")
	require.NoError(t, err)
	require.Equal(t, Hex("abcd12"), h)

	_, err = HexFromString("0xzz")
	require.Error(t, err)
}

func TestHexJSON(t *testing.T) {
	t.Parallel()

	var h Hex
	require.NoError(t, json.Unmarshal([]byte(`"0xABcd"`), &h))
	require.Equal(t, Hex("abcd"), h)

	out, err := json.Marshal(Hex("abcd"))
	require.NoError(t, err)
	require.Equal(t, `"0xabcd"`, string(out))

	require.Error(t, json.Unmarshal([]byte(`123`), &h))
}

func TestMessageTypeDualDecoding(t *testing.T) {
	t.Parallel()

	var fromString, fromNumber MessageType
	require.NoError(t, json.Unmarshal([]byte(`"MESSAGE_TYPE_CAST_ADD"`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`1`), &fromNumber))
	require.Equal(t, MessageTypeCastAdd, fromString)
	require.Equal(t, fromString, fromNumber)

	var unknown MessageType
	require.NoError(t, json.Unmarshal([]byte(`99`), &unknown))
	require.Equal(t, MessageType("MESSAGE_TYPE_UNKNOWN_99"), unknown)
}

func TestReactionTypeDualDecoding(t *testing.T) {
	t.Parallel()

	var a, b, c ReactionType
	require.NoError(t, json.Unmarshal([]byte(`"REACTION_TYPE_LIKE"`), &a))
	require.NoError(t, json.Unmarshal([]byte(`"like"`), &b))
	require.NoError(t, json.Unmarshal([]byte(`1`), &c))
	require.Equal(t, ReactionTypeLike, a)
	require.Equal(t, a, b)
	require.Equal(t, a, c)

	var bad ReactionType
	require.Error(t, json.Unmarshal([]byte(`"dislike"`), &bad))
}

func TestUserDataTypeDualDecoding(t *testing.T) {
	t.Parallel()

	var fromEnum, fromCompact, fromCode UserDataType
	require.NoError(t, json.Unmarshal([]byte(`"USER_DATA_TYPE_USERNAME"`), &fromEnum))
	require.NoError(t, json.Unmarshal([]byte(`"username"`), &fromCompact))
	require.NoError(t, json.Unmarshal([]byte(`6`), &fromCode))
	require.Equal(t, UserDataTypeUsername, fromEnum)
	require.Equal(t, fromEnum, fromCompact)
	require.Equal(t, fromEnum, fromCode)

	var primary UserDataType
	require.NoError(t, json.Unmarshal([]byte(`"USER_DATA_PRIMARY_ADDRESS_ETHEREUM"`), &primary))
	require.Equal(t, UserDataTypeEthereumAddress, primary)
}

func TestHubEventTypeDualDecoding(t *testing.T) {
	t.Parallel()

	var fromString, fromNumber HubEventType
	require.NoError(t, json.Unmarshal([]byte(`"HUB_EVENT_TYPE_MERGE_MESSAGE"`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`1`), &fromNumber))
	require.Equal(t, HubEventTypeMergeMessage, fromString)
	require.Equal(t, fromString, fromNumber)
}

func TestHubEventAccessors(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"id": 42,
		"type": "HUB_EVENT_TYPE_MERGE_MESSAGE",
		"mergeMessageBody": {
			"message": {
				"data": {"type": "MESSAGE_TYPE_CAST_ADD", "fid": 7, "timestamp": 100,
					"castAddBody": {"text": "hello"}},
				"hash": "0x0a0b"
			}
		}
	}`)
	var e HubEvent
	require.NoError(t, json.Unmarshal(raw, &e))
	require.EqualValues(t, 42, e.ID)
	msg := e.Message()
	require.NotNil(t, msg)
	require.Equal(t, Hex("0a0b"), msg.Hash)
	require.Equal(t, "hello", msg.Data.CastAddBody.Text)
	require.Nil(t, e.OnChain())
}

func TestOnChainEventDecoding(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"type": "EVENT_TYPE_SIGNER",
		"chainId": 10,
		"blockNumber": 100,
		"blockHash": "0x0b",
		"blockTimestamp": 1700000000,
		"transactionHash": "0x0c",
		"logIndex": 3,
		"fid": 9,
		"signerEventBody": {"key": "0x0d", "keyType": 1, "eventType": 1, "payloadFid": 1234}
	}`)
	var e OnChainEvent
	require.NoError(t, json.Unmarshal(raw, &e))
	require.Equal(t, OnChainEventTypeSigner, e.Type)
	require.NotNil(t, e.SignerEventBody)
	require.Equal(t, SignerEventTypeAdd, e.SignerEventBody.EventType)
	require.EqualValues(t, 1234, e.SignerEventBody.PayloadFid)
}
