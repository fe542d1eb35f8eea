package collection

import (
	"context"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

func inventory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	err := m.Insert(context.Background(), "inventory",
		value.MustDocument(bson.D{{Key: "_id", Value: 1}, {Key: "sku", Value: "almonds"}, {Key: "instock", Value: 120}}),
		value.MustDocument(bson.D{{Key: "_id", Value: 2}, {Key: "sku", Value: "bread"}, {Key: "instock", Value: 80}}),
		value.MustDocument(bson.D{{Key: "_id", Value: 3}, {Key: "sku", Value: "cashews"}, {Key: "instock", Value: 60}}),
	)
	require.NoError(t, err)
	return m
}

func TestMemoryFind(t *testing.T) {
	m := inventory(t)
	ctx := context.Background()

	docs, err := m.Find(ctx, "inventory", value.MustDocument(bson.D{{Key: "instock", Value: bson.D{{Key: "$gte", Value: 70}}}}), 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, value.String("almonds"), mustGet(t, docs[0], "sku"))
	assert.Equal(t, value.String("bread"), mustGet(t, docs[1], "sku"))

	docs, err = m.Find(ctx, "inventory", value.NewDocument(), 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = m.Find(ctx, "missing", value.NewDocument(), 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryFindMalformedFilter(t *testing.T) {
	m := inventory(t)
	_, err := m.Find(context.Background(), "inventory", value.MustDocument(bson.D{{Key: "$bogus", Value: 1}}), 0)
	assert.True(t, queryerr.IsMalformed(err))
}

func TestMemoryFindCancelled(t *testing.T) {
	m := inventory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Find(ctx, "inventory", value.NewDocument(), 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryUpsert(t *testing.T) {
	m := inventory(t)
	ctx := context.Background()

	require.NoError(t, m.Upsert(ctx, "inventory", value.MustDocument(bson.D{{Key: "_id", Value: 2}, {Key: "sku", Value: "rye"}})))
	require.NoError(t, m.Upsert(ctx, "inventory", value.MustDocument(bson.D{{Key: "_id", Value: 4}, {Key: "sku", Value: "pecans"}})))

	all := m.All("inventory")
	require.Len(t, all, 4)
	assert.Equal(t, value.String("rye"), mustGet(t, all[1], "sku"))
	assert.False(t, all[1].Has("instock"))
	assert.Equal(t, value.String("pecans"), mustGet(t, all[3], "sku"))

	err := m.Upsert(ctx, "inventory", value.MustDocument(bson.D{{Key: "sku", Value: "nope"}}))
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestMemoryInsertIsAllOrNothing(t *testing.T) {
	m := inventory(t)
	err := m.Insert(context.Background(), "inventory",
		value.MustDocument(bson.D{{Key: "_id", Value: 5}}),
		value.MustDocument(bson.D{{Key: "_id", Value: 1}}),
		value.MustDocument(bson.D{{Key: "_id", Value: 5}}),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
	assert.Len(t, m.All("inventory"), 3)
}

func TestMemoryInsertAssignsID(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Insert(context.Background(), "log", value.MustDocument(bson.D{{Key: "msg", Value: "hi"}})))
	all := m.All("log")
	require.Len(t, all, 1)
	id := mustGet(t, all[0], IDField)
	assert.Equal(t, value.KindObjectID, id.Kind())
	assert.Equal(t, []string{IDField, "msg"}, all[0].Keys())
	assert.Equal(t, []string{"log"}, m.Collections())
}

func mustGet(t *testing.T, d value.Document, key string) value.Value {
	t.Helper()
	v, ok := d.Get(key)
	require.True(t, ok, "missing %s in %s", key, d)
	return v
}
