package farcaster

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageType discriminates the variants of MessageData. The hub JSON API
// reports it as a MESSAGE_TYPE_* string; the typed protobuf decode reports
// the numeric code. Both decode to the same value.
type MessageType string

// Message types understood by the indexer.
const (
	MessageTypeNone                      MessageType = "MESSAGE_TYPE_NONE"
	MessageTypeCastAdd                   MessageType = "MESSAGE_TYPE_CAST_ADD"
	MessageTypeCastRemove                MessageType = "MESSAGE_TYPE_CAST_REMOVE"
	MessageTypeReactionAdd               MessageType = "MESSAGE_TYPE_REACTION_ADD"
	MessageTypeReactionRemove            MessageType = "MESSAGE_TYPE_REACTION_REMOVE"
	MessageTypeLinkAdd                   MessageType = "MESSAGE_TYPE_LINK_ADD"
	MessageTypeLinkRemove                MessageType = "MESSAGE_TYPE_LINK_REMOVE"
	MessageTypeLinkCompactState          MessageType = "MESSAGE_TYPE_LINK_COMPACT_STATE"
	MessageTypeVerificationAddEthAddress MessageType = "MESSAGE_TYPE_VERIFICATION_ADD_ETH_ADDRESS"
	MessageTypeVerificationRemove        MessageType = "MESSAGE_TYPE_VERIFICATION_REMOVE"
	MessageTypeUserDataAdd               MessageType = "MESSAGE_TYPE_USER_DATA_ADD"
	MessageTypeUsernameProof             MessageType = "MESSAGE_TYPE_USERNAME_PROOF"
)

var messageTypeByCode = map[int]MessageType{
	0:  MessageTypeNone,
	1:  MessageTypeCastAdd,
	2:  MessageTypeCastRemove,
	3:  MessageTypeReactionAdd,
	4:  MessageTypeReactionRemove,
	5:  MessageTypeLinkAdd,
	6:  MessageTypeLinkRemove,
	7:  MessageTypeVerificationAddEthAddress,
	8:  MessageTypeVerificationRemove,
	11: MessageTypeUserDataAdd,
	12: MessageTypeUsernameProof,
	13: MessageTypeLinkCompactState,
}

// UnmarshalJSON accepts either the string or the numeric encoding.
func (t *MessageType) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		*t = MessageType(s[1 : len(s)-1])
		return nil
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("message type must be a string or number: %s", s)
	}
	mt, ok := messageTypeByCode[code]
	if !ok {
		// Unknown codes are preserved so the caller can log them.
		*t = MessageType(fmt.Sprintf("MESSAGE_TYPE_UNKNOWN_%d", code))
		return nil
	}
	*t = mt
	return nil
}

// ReactionType is the closed set of reaction kinds.
type ReactionType string

// Reaction types.
const (
	ReactionTypeLike   ReactionType = "like"
	ReactionTypeRecast ReactionType = "recast"
)

// UnmarshalJSON accepts REACTION_TYPE_* strings, compact strings and
// numeric codes.
func (t *ReactionType) UnmarshalJSON(b []byte) error {
	switch s := strings.Trim(string(b), `"`); s {
	case "REACTION_TYPE_LIKE", "like", "1":
		*t = ReactionTypeLike
	case "REACTION_TYPE_RECAST", "recast", "2":
		*t = ReactionTypeRecast
	default:
		return fmt.Errorf("unknown reaction type %s", s)
	}
	return nil
}

// LinkType is the closed set of link kinds. Only follows are tracked.
type LinkType string

// Link types.
const (
	LinkTypeFollow LinkType = "follow"
)

// UserDataType is the compact form of a user-data record kind.
type UserDataType string

// User data types.
const (
	UserDataTypePfp             UserDataType = "pfp"
	UserDataTypeDisplay         UserDataType = "display"
	UserDataTypeBio             UserDataType = "bio"
	UserDataTypeURL             UserDataType = "url"
	UserDataTypeUsername        UserDataType = "username"
	UserDataTypeLocation        UserDataType = "location"
	UserDataTypeTwitter         UserDataType = "twitter"
	UserDataTypeGithub          UserDataType = "github"
	UserDataTypeBanner          UserDataType = "banner"
	UserDataTypeEthereumAddress UserDataType = "ethereum_address"
	UserDataTypeSolanaAddress   UserDataType = "solana_address"
)

var userDataTypeByCode = map[int]UserDataType{
	1:  UserDataTypePfp,
	2:  UserDataTypeDisplay,
	3:  UserDataTypeBio,
	5:  UserDataTypeURL,
	6:  UserDataTypeUsername,
	7:  UserDataTypeLocation,
	8:  UserDataTypeTwitter,
	9:  UserDataTypeGithub,
	10: UserDataTypeBanner,
	11: UserDataTypeEthereumAddress,
	12: UserDataTypeSolanaAddress,
}

var userDataTypeByName = map[string]UserDataType{
	"USER_DATA_TYPE_PFP":                 UserDataTypePfp,
	"USER_DATA_TYPE_DISPLAY":             UserDataTypeDisplay,
	"USER_DATA_TYPE_BIO":                 UserDataTypeBio,
	"USER_DATA_TYPE_URL":                 UserDataTypeURL,
	"USER_DATA_TYPE_USERNAME":            UserDataTypeUsername,
	"USER_DATA_TYPE_LOCATION":            UserDataTypeLocation,
	"USER_DATA_TYPE_TWITTER":             UserDataTypeTwitter,
	"USER_DATA_TYPE_GITHUB":              UserDataTypeGithub,
	"USER_DATA_TYPE_BANNER":              UserDataTypeBanner,
	"USER_DATA_PRIMARY_ADDRESS_ETHEREUM": UserDataTypeEthereumAddress,
	"USER_DATA_PRIMARY_ADDRESS_SOLANA":   UserDataTypeSolanaAddress,
}

// UnmarshalJSON accepts the USER_DATA_* string enum, the compact string and
// the numeric code. All map to the same compact value.
func (t *UserDataType) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if v, ok := userDataTypeByName[s]; ok {
		*t = v
		return nil
	}
	if code, err := strconv.Atoi(s); err == nil {
		v, ok := userDataTypeByCode[code]
		if !ok {
			return fmt.Errorf("unknown user data type code %d", code)
		}
		*t = v
		return nil
	}
	for _, v := range userDataTypeByName {
		if string(v) == s {
			*t = v
			return nil
		}
	}
	return fmt.Errorf("unknown user data type %s", s)
}

// Protocol is the closed set of verification protocols.
type Protocol string

// Verification protocols.
const (
	ProtocolEthereum Protocol = "ethereum"
)

// UnmarshalJSON accepts PROTOCOL_* strings, compact strings and numeric codes.
func (p *Protocol) UnmarshalJSON(b []byte) error {
	switch s := strings.Trim(string(b), `"`); s {
	case "PROTOCOL_ETHEREUM", "ethereum", "0":
		*p = ProtocolEthereum
	default:
		return fmt.Errorf("unknown protocol %s", s)
	}
	return nil
}

// CastID references a cast by author fid and message hash.
type CastID struct {
	Fid  uint64 `json:"fid"`
	Hash Hex    `json:"hash"`
}

// Embed is an embedded URL or cast reference inside a cast.
type Embed struct {
	URL    string  `json:"url,omitempty"`
	CastID *CastID `json:"castId,omitempty"`
}

// CastAddBody is the payload of a CAST_ADD message.
type CastAddBody struct {
	Text              string   `json:"text"`
	ParentCastID      *CastID  `json:"parentCastId,omitempty"`
	ParentURL         string   `json:"parentUrl,omitempty"`
	Embeds            []Embed  `json:"embeds,omitempty"`
	Mentions          []uint64 `json:"mentions,omitempty"`
	MentionsPositions []uint32 `json:"mentionsPositions,omitempty"`
}

// CastRemoveBody is the payload of a CAST_REMOVE message.
type CastRemoveBody struct {
	TargetHash Hex `json:"targetHash"`
}

// ReactionBody is the payload of REACTION_ADD/REACTION_REMOVE messages.
type ReactionBody struct {
	Type         ReactionType `json:"type"`
	TargetCastID *CastID      `json:"targetCastId,omitempty"`
	TargetURL    string       `json:"targetUrl,omitempty"`
}

// LinkBody is the payload of LINK_ADD/LINK_REMOVE messages.
type LinkBody struct {
	Type      LinkType `json:"type"`
	TargetFid uint64   `json:"targetFid"`
}

// VerificationAddBody is the payload of a VERIFICATION_ADD_ETH_ADDRESS message.
type VerificationAddBody struct {
	Address   Hex      `json:"address"`
	Protocol  Protocol `json:"protocol,omitempty"`
	BlockHash Hex      `json:"blockHash,omitempty"`
}

// VerificationRemoveBody is the payload of a VERIFICATION_REMOVE message.
type VerificationRemoveBody struct {
	Address Hex `json:"address"`
}

// UserDataBody is the payload of a USER_DATA_ADD message.
type UserDataBody struct {
	Type  UserDataType `json:"type"`
	Value string       `json:"value"`
}

// UsernameProofBody is the payload of a USERNAME_PROOF message, and also the
// shape returned by /v1/usernameProofsByFid.
type UsernameProofBody struct {
	Timestamp Timestamp `json:"timestamp"`
	Name      string    `json:"name"`
	Owner     Hex       `json:"owner"`
	Signature Hex       `json:"signature"`
	Fid       uint64    `json:"fid"`
	Type      string    `json:"type,omitempty"`
}

// MessageData is the signed payload of a hub message. Exactly one body field
// is set, matching Type.
type MessageData struct {
	Type      MessageType `json:"type"`
	Fid       uint64      `json:"fid"`
	Timestamp Timestamp   `json:"timestamp"`
	Network   string      `json:"network,omitempty"`

	CastAddBody                   *CastAddBody            `json:"castAddBody,omitempty"`
	CastRemoveBody                *CastRemoveBody         `json:"castRemoveBody,omitempty"`
	ReactionBody                  *ReactionBody           `json:"reactionBody,omitempty"`
	LinkBody                      *LinkBody               `json:"linkBody,omitempty"`
	VerificationAddEthAddressBody *VerificationAddBody    `json:"verificationAddEthAddressBody,omitempty"`
	VerificationRemoveBody        *VerificationRemoveBody `json:"verificationRemoveBody,omitempty"`
	UserDataBody                  *UserDataBody           `json:"userDataBody,omitempty"`
	UsernameProofBody             *UsernameProofBody      `json:"usernameProofBody,omitempty"`
}

// Message is a single signed hub message. Signature fields are carried
// opaquely; the indexer trusts the hub and never verifies them.
type Message struct {
	Data            *MessageData `json:"data"`
	Hash            Hex          `json:"hash"`
	HashScheme      string       `json:"hashScheme,omitempty"`
	Signature       string       `json:"signature,omitempty"`
	SignatureScheme string       `json:"signatureScheme,omitempty"`
	Signer          Hex          `json:"signer,omitempty"`
}
