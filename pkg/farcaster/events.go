package farcaster

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// HubEventType discriminates the variants of HubEvent.
type HubEventType string

// Hub event types.
const (
	HubEventTypeMergeMessage      HubEventType = "HUB_EVENT_TYPE_MERGE_MESSAGE"
	HubEventTypePruneMessage      HubEventType = "HUB_EVENT_TYPE_PRUNE_MESSAGE"
	HubEventTypeRevokeMessage     HubEventType = "HUB_EVENT_TYPE_REVOKE_MESSAGE"
	HubEventTypeMergeOnChainEvent HubEventType = "HUB_EVENT_TYPE_MERGE_ON_CHAIN_EVENT"
)

var hubEventTypeByCode = map[int]HubEventType{
	1: HubEventTypeMergeMessage,
	2: HubEventTypePruneMessage,
	3: HubEventTypeRevokeMessage,
	9: HubEventTypeMergeOnChainEvent,
}

// UnmarshalJSON accepts either the string or the numeric encoding.
func (t *HubEventType) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		*t = HubEventType(s[1 : len(s)-1])
		return nil
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("hub event type must be a string or number: %s", s)
	}
	et, ok := hubEventTypeByCode[code]
	if !ok {
		*t = HubEventType(fmt.Sprintf("HUB_EVENT_TYPE_UNKNOWN_%d", code))
		return nil
	}
	*t = et
	return nil
}

// OnChainEventType discriminates the variants of OnChainEvent.
type OnChainEventType string

// On-chain event types.
const (
	OnChainEventTypeSigner      OnChainEventType = "EVENT_TYPE_SIGNER"
	OnChainEventTypeIDRegister  OnChainEventType = "EVENT_TYPE_ID_REGISTER"
	OnChainEventTypeKeyRegistry OnChainEventType = "EVENT_TYPE_KEY_REGISTRY"
	OnChainEventTypeStorageRent OnChainEventType = "EVENT_TYPE_STORAGE_RENT"
)

// SignerEventType discriminates signer on-chain events.
type SignerEventType string

// Signer event types.
const (
	SignerEventTypeAdd    SignerEventType = "SIGNER_EVENT_TYPE_ADD"
	SignerEventTypeRemove SignerEventType = "SIGNER_EVENT_TYPE_REMOVE"
)

// UnmarshalJSON accepts either the string or the numeric encoding.
func (t *SignerEventType) UnmarshalJSON(b []byte) error {
	switch s := strings.Trim(string(b), `"`); s {
	case "SIGNER_EVENT_TYPE_ADD", "1":
		*t = SignerEventTypeAdd
	case "SIGNER_EVENT_TYPE_REMOVE", "2":
		*t = SignerEventTypeRemove
	default:
		*t = SignerEventType(s)
	}
	return nil
}

// SignerEventBody is the payload of an EVENT_TYPE_SIGNER on-chain event.
// PayloadFid is the fid of the account the new signer key was issued for.
type SignerEventBody struct {
	Key        Hex             `json:"key"`
	KeyType    uint32          `json:"keyType"`
	EventType  SignerEventType `json:"eventType"`
	Metadata   string          `json:"metadata,omitempty"`
	PayloadFid uint64          `json:"payloadFid,omitempty"`
}

// OnChainEvent is a hub-observed on-chain registry event. Exactly one body
// field is set, matching Type; bodies the indexer doesn't inspect are kept
// as opaque JSON.
type OnChainEvent struct {
	Type            OnChainEventType `json:"type"`
	ChainID         uint32           `json:"chainId"`
	BlockNumber     uint64           `json:"blockNumber"`
	BlockHash       Hex              `json:"blockHash"`
	BlockTimestamp  uint64           `json:"blockTimestamp"`
	TransactionHash Hex              `json:"transactionHash"`
	LogIndex        uint32           `json:"logIndex"`
	Fid             uint64           `json:"fid"`
	TxIndex         uint32           `json:"txIndex,omitempty"`

	SignerEventBody      *SignerEventBody `json:"signerEventBody,omitempty"`
	IDRegisterEventBody  json.RawMessage  `json:"idRegisterEventBody,omitempty"`
	KeyRegistryEventBody json.RawMessage  `json:"keyRegistryEventBody,omitempty"`
	StorageRentEventBody json.RawMessage  `json:"storageRentEventBody,omitempty"`
}

// MergeMessageBody carries the merged message of a MERGE_MESSAGE hub event.
type MergeMessageBody struct {
	Message         *Message  `json:"message"`
	DeletedMessages []Message `json:"deletedMessages,omitempty"`
}

// MergeOnChainEventBody carries the on-chain event of a MERGE_ON_CHAIN_EVENT
// hub event.
type MergeOnChainEventBody struct {
	OnChainEvent *OnChainEvent `json:"onChainEvent"`
}

// PruneMessageBody carries the pruned message of a PRUNE_MESSAGE hub event.
type PruneMessageBody struct {
	Message *Message `json:"message"`
}

// RevokeMessageBody carries the revoked message of a REVOKE_MESSAGE hub event.
type RevokeMessageBody struct {
	Message *Message `json:"message"`
}

// HubEvent is one record of the hub's monotonically-increasing event stream.
// It is a closed tagged variant: exactly one body field is set, matching Type.
type HubEvent struct {
	ID   uint64       `json:"id"`
	Type HubEventType `json:"type"`

	MergeMessageBody      *MergeMessageBody      `json:"mergeMessageBody,omitempty"`
	MergeOnChainEventBody *MergeOnChainEventBody `json:"mergeOnChainEventBody,omitempty"`
	PruneMessageBody      *PruneMessageBody      `json:"pruneMessageBody,omitempty"`
	RevokeMessageBody     *RevokeMessageBody     `json:"revokeMessageBody,omitempty"`
}

// Message returns the merged message of a MERGE_MESSAGE event, or nil.
func (e *HubEvent) Message() *Message {
	if e.Type != HubEventTypeMergeMessage || e.MergeMessageBody == nil {
		return nil
	}
	return e.MergeMessageBody.Message
}

// OnChain returns the on-chain event of a MERGE_ON_CHAIN_EVENT event, or nil.
func (e *HubEvent) OnChain() *OnChainEvent {
	if e.Type != HubEventTypeMergeOnChainEvent || e.MergeOnChainEventBody == nil {
		return nil
	}
	return e.MergeOnChainEventBody.OnChainEvent
}
