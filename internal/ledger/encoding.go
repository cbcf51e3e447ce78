package ledger

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// IDSize is the fixed width of a consignment identifier on the ledger (bytes32).
const IDSize = 32

// EncodedID is a consignment identifier in its ledger form: the UTF-8 bytes of
// the human readable id, right-padded with zero bytes.
type EncodedID [IDSize]byte

// EncodeID converts a human readable consignment id into its bytes32 form.
// Zero bytes are the padding, so an id may not contain them.
func EncodeID(id string) (EncodedID, error) {
	var out EncodedID
	if strings.TrimSpace(id) == "" {
		return out, fmt.Errorf("%w: identifier is empty", ErrInvalidIdentifier)
	}
	if !utf8.ValidString(id) {
		return out, fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidIdentifier, id)
	}
	if strings.IndexByte(id, 0) >= 0 {
		return out, fmt.Errorf("%w: %q contains a zero byte", ErrInvalidIdentifier, id)
	}
	if len(id) > IDSize {
		return out, fmt.Errorf("%w: %q is %d bytes, max %d", ErrInvalidIdentifier, id, len(id), IDSize)
	}
	copy(out[:], id)
	return out, nil
}

// String returns the decoded id with the zero padding stripped.
func (e EncodedID) String() string {
	return string(bytes.TrimRight(e[:], "\x00"))
}

// Hex returns the 0x-prefixed hex form, as seen in event topics.
func (e EncodedID) Hex() string {
	return "0x" + hex.EncodeToString(e[:])
}

// IsZero reports whether the id is all zero bytes, which is how the contract
// reports a missing record.
func (e EncodedID) IsZero() bool {
	return e == EncodedID{}
}
