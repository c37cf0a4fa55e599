// Package farcaster contains the wire types of the upstream hub HTTP API:
// messages, hub events, on-chain events and their closed enums.
package farcaster

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Epoch is the instant from which compact hub timestamps count seconds.
// It corresponds to 2021-01-01T00:00:00Z.
const Epoch int64 = 1609459200

// Timestamp is a compact hub timestamp: seconds since Epoch.
type Timestamp uint32

// Time converts a compact hub timestamp to an absolute UTC instant.
func (t Timestamp) Time() time.Time {
	return time.Unix(Epoch+int64(t), 0).UTC()
}

// TimestampFromTime converts an absolute instant to a compact hub timestamp.
func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(t.Unix() - Epoch)
}

// Hex is a lowercase hex string without the 0x prefix. Message hashes,
// addresses and signatures are persisted in this form.
type Hex string

// HexFromString normalizes a hex string that may carry a 0x prefix and
// mixed casing.
func HexFromString(s string) (Hex, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("decoding hex string %q: %s", s, err)
	}
	return Hex(s), nil
}

// HexFromBytes encodes raw bytes as lowercase hex.
func HexFromBytes(b []byte) Hex {
	return Hex(hex.EncodeToString(b))
}

// String implements fmt.Stringer.
func (h Hex) String() string { return string(h) }

// UnmarshalJSON accepts a JSON hex string, with or without the 0x prefix.
func (h *Hex) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("hex value must be a JSON string: %s", string(b))
	}
	v, err := HexFromString(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// MarshalJSON encodes the hex string with a 0x prefix, matching the hub's
// own JSON encoding.
func (h Hex) MarshalJSON() ([]byte, error) {
	return []byte(`"0x` + string(h) + `"`), nil
}
