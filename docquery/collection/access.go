// Package collection defines how the query engine reaches other
// collections ($lookup and $merge) and provides an in-memory
// implementation.
package collection

import (
	"context"

	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// IDField is the key identifying a document within a collection.
const IDField = "_id"

var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrMissingID    = errors.New("document has no _id")
)

// Access is the storage collaborator used by $lookup and $merge.
// Implementations must be safe for concurrent use.
type Access interface {
	// Find returns the documents of collection matching filter, in storage
	// order. A limit <= 0 means no limit.
	Find(ctx context.Context, collection string, filter value.Document, limit int) ([]value.Document, error)
	// Upsert replaces the document with the same _id or inserts it.
	Upsert(ctx context.Context, collection string, doc value.Document) error
	// Insert adds documents. Either all of them are stored or none is.
	Insert(ctx context.Context, collection string, docs ...value.Document) error
}

// EnsureID returns d with a generated _id when it has none.
func EnsureID(d value.Document) value.Document {
	if d.Has(IDField) {
		return d
	}
	return value.NewDocument(value.F(IDField, value.OID(value.NewObjectID()))).Merge(d)
}
