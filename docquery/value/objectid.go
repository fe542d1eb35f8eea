package value

import (
	"bytes"
	"encoding/hex"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ObjectID is a 12-byte document identifier.
type ObjectID [12]byte

// Identifier is implemented by any foreign identifier type carrying a
// 12-byte payload. Two identifiers are equal iff their payloads match,
// regardless of the wrapper type.
type Identifier interface {
	IdentifierBytes() [12]byte
}

// NewObjectID generates an identifier compatible with the MongoDB driver's.
func NewObjectID() ObjectID {
	return ObjectID(bson.NewObjectID())
}

func ObjectIDFromHex(s string) (ObjectID, error) {
	if len(s) != 24 {
		return ObjectID{}, errors.Errorf("invalid object id %q: want 24 hex characters", s)
	}
	var id ObjectID
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return ObjectID{}, errors.Wrapf(err, "invalid object id %q", s)
	}
	return id, nil
}

func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id ObjectID) String() string {
	return id.Hex()
}

func (id ObjectID) IdentifierBytes() [12]byte {
	return id
}

func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

func (id ObjectID) Compare(other ObjectID) int {
	return bytes.Compare(id[:], other[:])
}

// BSON converts to the driver's identifier type.
func (id ObjectID) BSON() bson.ObjectID {
	return bson.ObjectID(id)
}
