package pgstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/filter"
)

func compile(t *testing.T, spec bson.D) (string, []any) {
	t.Helper()
	node, err := filter.Parse(spec)
	require.NoError(t, err)
	sql, params, err := NewCompiler("").Compile(node)
	require.NoError(t, err)
	return sql, params
}

func TestCompileID(t *testing.T) {
	t.Run("containment", func(t *testing.T) {
		sql, params := compile(t, bson.D{{Key: "_id", Value: 7}})
		assert.Equal(t, "value @> $1::jsonb", sql)
		require.Len(t, params, 1)
		assert.JSONEq(t, `{"_id": 7}`, params[0].(string))
	})

	t.Run("custom target expr", func(t *testing.T) {
		node, err := filter.Parse(bson.D{{Key: "_id", Value: "a"}})
		require.NoError(t, err)
		sql, _, err := NewCompiler("rt.value").Compile(node)
		require.NoError(t, err)
		assert.Equal(t, "rt.value @> $1::jsonb", sql)
	})

	t.Run("second _id goes to path", func(t *testing.T) {
		sql, params := compile(t, bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "_id", Value: 1}},
			bson.D{{Key: "_id", Value: 2}},
		}}})
		assert.Equal(t, "value @> $1::jsonb AND jsonb_path_exists(value, $2::jsonpath, $3::jsonb)", sql)
		require.Len(t, params, 3)
		assert.Equal(t, `$ ? (@."_id" == $p1)`, params[1])
		assert.JSONEq(t, `{"p1": 2}`, params[2].(string))
	})
}

func TestCompilePath(t *testing.T) {
	cases := []struct {
		name string
		spec bson.D
		path string
		vars string
	}{
		{
			"equality",
			bson.D{{Key: "status", Value: "active"}},
			`$ ? (@."status" == $p1)`,
			`{"p1": "active"}`,
		},
		{
			"nested path",
			bson.D{{Key: "address.city", Value: "Oslo"}},
			`$ ? (@."address"."city" == $p1)`,
			`{"p1": "Oslo"}`,
		},
		{
			"range",
			bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "qty", Value: bson.D{{Key: "$gte", Value: 5}}}},
				bson.D{{Key: "qty", Value: bson.D{{Key: "$lt", Value: 10}}}},
			}}},
			`$ ? (@."qty" >= $p1 && @."qty" < $p2)`,
			`{"p1": 5, "p2": 10}`,
		},
		{
			"in",
			bson.D{{Key: "sku", Value: bson.D{{Key: "$in", Value: bson.A{"a", "b"}}}}},
			`$ ? ((@."sku" == $p1 || @."sku" == $p2))`,
			`{"p1": "a", "p2": "b"}`,
		},
		{
			"exists",
			bson.D{{Key: "tags", Value: bson.D{{Key: "$exists", Value: false}}}},
			`$ ? (!(exists(@."tags")))`,
			`{}`,
		},
		{
			"or",
			bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "a", Value: true}},
				bson.D{{Key: "b", Value: bson.D{{Key: "$gt", Value: 1}}}},
			}}},
			`$ ? ((@."a" == $p1 || @."b" > $p2))`,
			`{"p1": true, "p2": 1}`,
		},
		{
			"quoted key",
			bson.D{{Key: `we"ird`, Value: 1}},
			`$ ? (@."we\"ird" == $p1)`,
			`{"p1": 1}`,
		},
		{
			"unpushable parts are dropped from a conjunction",
			bson.D{
				{Key: "name", Value: bson.D{{Key: "$regex", Value: "^A"}}},
				{Key: "age", Value: bson.D{{Key: "$lt", Value: 30}}},
			},
			`$ ? (@."age" < $p1)`,
			`{"p1": 30}`,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sql, params := compile(t, c.spec)
			assert.Equal(t, "jsonb_path_exists(value, $1::jsonpath, $2::jsonb)", sql)
			require.Len(t, params, 2)
			assert.Equal(t, c.path, params[0])
			assert.JSONEq(t, c.vars, params[1].(string))
		})
	}
}

func TestCompileNothingPushable(t *testing.T) {
	cases := map[string]bson.D{
		"empty":            {},
		"ne":               {{Key: "a", Value: bson.D{{Key: "$ne", Value: 1}}}},
		"null equality":    {{Key: "a", Value: nil}},
		"nor":              {{Key: "$nor", Value: bson.A{bson.D{{Key: "a", Value: 1}}}}},
		"numeric segment":  {{Key: "items.0.sku", Value: "x"}},
		"string range":     {{Key: "name", Value: bson.D{{Key: "$gt", Value: "M"}}}},
		"or with regex":    {{Key: "$or", Value: bson.A{bson.D{{Key: "a", Value: 1}}, bson.D{{Key: "b", Value: bson.D{{Key: "$regex", Value: "x"}}}}}}},
		"array equality":   {{Key: "tags", Value: bson.A{"a", "b"}}},
		"negated set":      {{Key: "a", Value: bson.D{{Key: "$nin", Value: bson.A{1, 2}}}}},
		"element matching": {{Key: "a", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$gt", Value: 1}}}}}},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			sql, params := compile(t, spec)
			assert.Empty(t, sql)
			assert.Empty(t, params)
		})
	}
}
