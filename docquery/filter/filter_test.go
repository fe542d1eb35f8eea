package filter

import (
	"fmt"
	"testing"

	"github.com/icrowley/fake"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

func doc(t *testing.T, spec bson.D) value.Document {
	t.Helper()
	d, err := value.DocumentFromGo(spec)
	require.NoError(t, err)
	return d
}

func matches(t *testing.T, filter any, d value.Document) bool {
	t.Helper()
	node, err := Parse(filter)
	require.NoError(t, err)
	ok, err := Match(node, d)
	require.NoError(t, err)
	return ok
}

var person = value.MustDocument(bson.D{
	{Key: "name", Value: "Ann Smith"},
	{Key: "age", Value: 34},
	{Key: "score", Value: 7.5},
	{Key: "nickname", Value: nil},
	{Key: "tags", Value: bson.A{"admin", "ops"}},
	{Key: "grades", Value: bson.A{80, 92, 75}},
	{Key: "address", Value: bson.D{{Key: "city", Value: "Oslo"}, {Key: "zip", Value: "0150"}}},
	{Key: "orders", Value: bson.A{
		bson.D{{Key: "sku", Value: "a1"}, {Key: "qty", Value: 2}},
		bson.D{{Key: "sku", Value: "b2"}, {Key: "qty", Value: 10}},
	}},
	{Key: "flags", Value: 0b1010},
})

func TestEquality(t *testing.T) {
	cases := []struct {
		name   string
		filter bson.D
		want   bool
	}{
		{"implicit", bson.D{{Key: "name", Value: "Ann Smith"}}, true},
		{"int matches float", bson.D{{Key: "age", Value: bson.D{{Key: "$eq", Value: 34.0}}}}, true},
		{"nested path", bson.D{{Key: "address.city", Value: "Oslo"}}, true},
		{"array contains", bson.D{{Key: "tags", Value: "ops"}}, true},
		{"array exact", bson.D{{Key: "tags", Value: bson.A{"admin", "ops"}}}, true},
		{"array order matters", bson.D{{Key: "tags", Value: bson.A{"ops", "admin"}}}, false},
		{"broadcast into array of documents", bson.D{{Key: "orders.sku", Value: "b2"}}, true},
		{"null matches null", bson.D{{Key: "nickname", Value: nil}}, true},
		{"null matches missing", bson.D{{Key: "missing", Value: nil}}, true},
		{"null does not match value", bson.D{{Key: "name", Value: nil}}, false},
		{"embedded document", bson.D{{Key: "address", Value: bson.D{{Key: "city", Value: "Oslo"}, {Key: "zip", Value: "0150"}}}}, true},
		{"ne scalar", bson.D{{Key: "age", Value: bson.D{{Key: "$ne", Value: 35}}}}, true},
		{"ne array contains", bson.D{{Key: "tags", Value: bson.D{{Key: "$ne", Value: "ops"}}}}, false},
		{"ne array lacks", bson.D{{Key: "tags", Value: bson.D{{Key: "$ne", Value: "dev"}}}}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, matches(t, c.filter, person))
		})
	}
}

func TestEqualityInvariant(t *testing.T) {
	id := bson.NewObjectID()
	values := []any{1, 1.0, 2.5, "x", true, nil, id, value.ObjectID(id), bson.A{1, 2}, bson.D{{Key: "k", Value: "v"}}}

	for _, stored := range values {
		for _, operand := range values {
			t.Run(fmt.Sprintf("%v vs %v", stored, operand), func(t *testing.T) {
				d := doc(t, bson.D{{Key: "f", Value: stored}})
				storedValue := value.MustFromGo(stored)
				operandValue := value.MustFromGo(operand)
				got := matches(t, bson.D{{Key: "f", Value: bson.D{{Key: "$eq", Value: operand}}}}, d)
				want := value.Equal(storedValue, operandValue) ||
					(storedValue.IsArray() && value.Contains(storedValue, operandValue))
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestComparison(t *testing.T) {
	assert.True(t, matches(t, bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 30}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: 34}}}},
		bson.D{{Key: "age", Value: bson.D{{Key: "$lt", Value: 35}}}},
	}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "age", Value: bson.D{{Key: "$lt", Value: 34}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "score", Value: bson.D{{Key: "$lte", Value: 8}}}}, person))

	t.Run("array broadcast", func(t *testing.T) {
		assert.True(t, matches(t, bson.D{{Key: "grades", Value: bson.D{{Key: "$gt", Value: 90}}}}, person))
		assert.False(t, matches(t, bson.D{{Key: "grades", Value: bson.D{{Key: "$gt", Value: 95}}}}, person))
		assert.True(t, matches(t, bson.D{{Key: "orders.qty", Value: bson.D{{Key: "$gte", Value: 10}}}}, person))
	})

	t.Run("missing never matches", func(t *testing.T) {
		assert.False(t, matches(t, bson.D{{Key: "missing", Value: bson.D{{Key: "$lt", Value: 100}}}}, person))
		assert.False(t, matches(t, bson.D{{Key: "nickname", Value: bson.D{{Key: "$lt", Value: 100}}}}, person))
	})

	t.Run("type mismatch", func(t *testing.T) {
		node, err := Parse(bson.D{{Key: "name", Value: bson.D{{Key: "$gt", Value: 5}}}})
		require.NoError(t, err)
		_, err = Match(node, person)
		assert.ErrorIs(t, err, queryerr.ErrTypeMismatch)
		assert.True(t, queryerr.IsEvaluation(err))
	})
}

func TestSetOperators(t *testing.T) {
	assert.True(t, matches(t, bson.D{{Key: "age", Value: bson.D{{Key: "$in", Value: bson.A{1, 34}}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "tags", Value: bson.D{{Key: "$in", Value: bson.A{"dev", "ops"}}}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "tags", Value: bson.D{{Key: "$nin", Value: bson.A{"dev", "ops"}}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "missing", Value: bson.D{{Key: "$in", Value: bson.A{nil}}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "tags", Value: bson.D{{Key: "$all", Value: bson.A{"ops", "admin"}}}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "tags", Value: bson.D{{Key: "$all", Value: bson.A{"ops", "dev"}}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "tags", Value: bson.D{{Key: "$size", Value: 2}}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "tags", Value: bson.D{{Key: "$size", Value: 3}}}}, person))
}

func TestExists(t *testing.T) {
	assert.True(t, matches(t, bson.D{{Key: "nickname", Value: bson.D{{Key: "$exists", Value: true}}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "missing", Value: bson.D{{Key: "$exists", Value: true}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "missing", Value: bson.D{{Key: "$exists", Value: false}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "orders.qty", Value: bson.D{{Key: "$exists", Value: true}}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "orders.price", Value: bson.D{{Key: "$exists", Value: true}}}}, person))
}

func TestRegex(t *testing.T) {
	t.Run("unanchored is a substring search", func(t *testing.T) {
		assert.True(t, matches(t, bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "Smi"}}}}, person))
	})

	t.Run("anchored", func(t *testing.T) {
		assert.False(t, matches(t, bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "^Smi"}}}}, person))
		assert.True(t, matches(t, bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "^Ann"}}}}, person))
	})

	t.Run("options", func(t *testing.T) {
		assert.True(t, matches(t, bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "ann"}, {Key: "$options", Value: "i"}}}}, person))
		assert.True(t, matches(t, bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "a n n # first name"}, {Key: "$options", Value: "ix"}}}}, person))
	})

	t.Run("array elements", func(t *testing.T) {
		assert.True(t, matches(t, bson.D{{Key: "tags", Value: bson.D{{Key: "$regex", Value: "^ad"}}}}, person))
	})

	t.Run("compiled patterns are cached", func(t *testing.T) {
		before := compiled.len()
		matches(t, bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "cache-probe-[0-9]+"}}}}, person)
		matches(t, bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "cache-probe-[0-9]+"}}}}, person)
		assert.Equal(t, before+1, compiled.len())
	})

	t.Run("bad option", func(t *testing.T) {
		_, err := Parse(bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "a"}, {Key: "$options", Value: "q"}}}})
		assert.True(t, queryerr.IsMalformed(err))
	})
}

func TestMiscOperators(t *testing.T) {
	assert.True(t, matches(t, bson.D{{Key: "age", Value: bson.D{{Key: "$mod", Value: bson.A{5, 4}}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "age", Value: bson.D{{Key: "$type", Value: "number"}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "score", Value: bson.D{{Key: "$type", Value: 1}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "tags", Value: bson.D{{Key: "$type", Value: "array"}}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "name", Value: bson.D{{Key: "$type", Value: bson.A{"int", "bool"}}}}}, person))

	assert.True(t, matches(t, bson.D{{Key: "flags", Value: bson.D{{Key: "$bitsAllSet", Value: bson.A{1, 3}}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "flags", Value: bson.D{{Key: "$bitsAllClear", Value: 0b0101}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "flags", Value: bson.D{{Key: "$bitsAnySet", Value: 0b0011}}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "flags", Value: bson.D{{Key: "$bitsAnyClear", Value: 0b1010}}}}, person))

	assert.False(t, matches(t, bson.D{{Key: "age", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$gt", Value: 30}}}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "missing", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$gt", Value: 30}}}}}}, person))

	t.Run("negation of a failed condition does not match", func(t *testing.T) {
		for _, spec := range []bson.D{
			{{Key: "name", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$gt", Value: 5}}}}}},
			{{Key: "$not", Value: bson.D{{Key: "name", Value: bson.D{{Key: "$gt", Value: 5}}}}}},
		} {
			node, err := Parse(spec)
			require.NoError(t, err)
			ok, err := Match(node, person)
			assert.ErrorIs(t, err, queryerr.ErrTypeMismatch)
			assert.False(t, ok)
		}
	})
}

func TestElemMatch(t *testing.T) {
	assert.True(t, matches(t, bson.D{{Key: "orders", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
		{Key: "sku", Value: "b2"}, {Key: "qty", Value: bson.D{{Key: "$gt", Value: 5}}},
	}}}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "orders", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
		{Key: "sku", Value: "a1"}, {Key: "qty", Value: bson.D{{Key: "$gt", Value: 5}}},
	}}}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "grades", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
		{Key: "$gte", Value: 90},
	}}}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "grades", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
		{Key: "$gt", Value: 95},
	}}}}}, person))
}

func TestLogical(t *testing.T) {
	assert.True(t, matches(t, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "age", Value: 1}},
		bson.D{{Key: "name", Value: "Ann Smith"}},
	}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "age", Value: 34}},
		bson.D{{Key: "name", Value: "Bob"}},
	}}}, person))
	assert.True(t, matches(t, bson.D{{Key: "$nor", Value: bson.A{
		bson.D{{Key: "age", Value: 1}},
		bson.D{{Key: "name", Value: "Bob"}},
	}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "$not", Value: bson.D{{Key: "age", Value: 34}}}}, person))
	assert.True(t, matches(t, bson.D{}, person))

	t.Run("empty list is malformed", func(t *testing.T) {
		_, err := Parse(bson.D{{Key: "$or", Value: bson.A{}}})
		assert.True(t, queryerr.IsMalformed(err))
	})
}

func TestDeMorgan(t *testing.T) {
	fake.Seed(42)
	filters := bson.A{
		bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: 40}}}},
		bson.D{{Key: "city", Value: "Oslo"}},
		bson.D{{Key: "tags", Value: bson.D{{Key: "$in", Value: bson.A{"a", "c"}}}}},
	}
	or, err := Parse(bson.D{{Key: "$or", Value: filters}})
	require.NoError(t, err)
	nor, err := Parse(bson.D{{Key: "$nor", Value: filters}})
	require.NoError(t, err)

	cities := []string{"Oslo", "Bergen"}
	tags := []string{"a", "b", "c"}
	for i := 0; i < 200; i++ {
		d := doc(t, bson.D{
			{Key: "name", Value: fake.FullName()},
			{Key: "age", Value: 18 + i%50},
			{Key: "city", Value: cities[i%len(cities)]},
			{Key: "tags", Value: bson.A{tags[i%3], tags[(i/3)%3]}},
		})
		orOK, err := Match(or, d)
		require.NoError(t, err)
		norOK, err := Match(nor, d)
		require.NoError(t, err)
		assert.Equal(t, !orOK, norOK, "document %s", d)
	}
}

func TestExpr(t *testing.T) {
	assert.True(t, matches(t, bson.D{{Key: "$expr", Value: bson.D{{Key: "$gt", Value: bson.A{"$age", "$score"}}}}}, person))
	assert.False(t, matches(t, bson.D{{Key: "$expr", Value: "$nickname"}}, person))
	assert.False(t, matches(t, bson.D{{Key: "$expr", Value: bson.D{{Key: "$subtract", Value: bson.A{"$age", 34}}}}}, person))
}

func TestText(t *testing.T) {
	article := doc(t, bson.D{
		{Key: "title", Value: "Coffee and tea"},
		{Key: "body", Value: "A short history of coffee shops in Oslo"},
		{Key: "meta", Value: bson.D{{Key: "author", Value: "Ann"}}},
	})

	assert.True(t, matches(t, bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: "coffee"}}}}, article))
	assert.True(t, matches(t, bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: "juice tea"}}}}, article))
	assert.False(t, matches(t, bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: "coffee -tea"}}}}, article))
	assert.True(t, matches(t, bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: `"coffee shops"`}}}}, article))
	assert.False(t, matches(t, bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: `"tea shops"`}}}}, article))
	assert.False(t, matches(t, bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: "COFFEE"}, {Key: "$caseSensitive", Value: true}}}}, article))

	t.Run("field restriction", func(t *testing.T) {
		p := NewParser(WithTextFields("title"))
		node, err := p.Parse(bson.D{{Key: "$text", Value: bson.D{{Key: "$search", Value: "oslo"}}}})
		require.NoError(t, err)
		ok, err := Match(node, article)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestJSONSchema(t *testing.T) {
	schema := bson.D{{Key: "$jsonSchema", Value: bson.D{
		{Key: "bsonType", Value: "object"},
		{Key: "required", Value: bson.A{"name", "age"}},
		{Key: "properties", Value: bson.D{
			{Key: "age", Value: bson.D{{Key: "bsonType", Value: "int"}, {Key: "minimum", Value: 18}}},
			{Key: "name", Value: bson.D{{Key: "bsonType", Value: "string"}}},
		}},
	}}}
	assert.True(t, matches(t, schema, person))
	assert.False(t, matches(t, schema, doc(t, bson.D{{Key: "name", Value: "Kid"}, {Key: "age", Value: 9}})))
	assert.False(t, matches(t, schema, doc(t, bson.D{{Key: "name", Value: "Nobody"}})))
}

func TestGeo(t *testing.T) {
	place := doc(t, bson.D{
		{Key: "legacy", Value: bson.A{2.0, 3.0}},
		{Key: "geo", Value: bson.D{{Key: "type", Value: "Point"}, {Key: "coordinates", Value: bson.A{10.75, 59.91}}}},
	})

	t.Run("box is exact", func(t *testing.T) {
		f := bson.D{{Key: "legacy", Value: bson.D{{Key: "$geoWithin", Value: bson.D{{Key: "$box", Value: bson.A{bson.A{0, 0}, bson.A{5, 5}}}}}}}}
		assert.True(t, matches(t, f, place))
		f = bson.D{{Key: "legacy", Value: bson.D{{Key: "$geoWithin", Value: bson.D{{Key: "$box", Value: bson.A{bson.A{3, 3}, bson.A{5, 5}}}}}}}}
		assert.False(t, matches(t, f, place))
	})

	t.Run("polygon", func(t *testing.T) {
		f := bson.D{{Key: "legacy", Value: bson.D{{Key: "$geoWithin", Value: bson.D{{Key: "$polygon", Value: bson.A{
			bson.A{0, 0}, bson.A{6, 0}, bson.A{0, 6},
		}}}}}}}
		assert.True(t, matches(t, f, place))
	})

	t.Run("geojson within geometry", func(t *testing.T) {
		f := bson.D{{Key: "geo", Value: bson.D{{Key: "$geoWithin", Value: bson.D{{Key: "$geometry", Value: bson.D{
			{Key: "type", Value: "Polygon"},
			{Key: "coordinates", Value: bson.A{bson.A{bson.A{10, 59}, bson.A{11, 59}, bson.A{11, 60}, bson.A{10, 60}, bson.A{10, 59}}}},
		}}}}}}}
		assert.True(t, matches(t, f, place))
	})

	t.Run("near with max distance in meters", func(t *testing.T) {
		near := func(max float64) bson.D {
			return bson.D{{Key: "geo", Value: bson.D{{Key: "$near", Value: bson.D{
				{Key: "$geometry", Value: bson.D{{Key: "type", Value: "Point"}, {Key: "coordinates", Value: bson.A{10.76, 59.91}}}},
				{Key: "$maxDistance", Value: max},
			}}}}}
		}
		assert.True(t, matches(t, near(2000), place))
		assert.False(t, matches(t, near(100), place))
	})

	t.Run("wkb values", func(t *testing.T) {
		data, err := wkb.Marshal(orb.Point{1, 1})
		require.NoError(t, err)
		stored := value.NewDocument(value.F("loc", value.Binary(0, data)))
		f := bson.D{{Key: "loc", Value: bson.D{{Key: "$geoWithin", Value: bson.D{{Key: "$box", Value: bson.A{bson.A{0, 0}, bson.A{2, 2}}}}}}}}
		assert.True(t, matches(t, f, stored))
	})

	t.Run("approximate operators are enumerated", func(t *testing.T) {
		approx := ApproximateOperators()
		assert.Contains(t, approx, "$near")
		assert.Contains(t, approx, "$geoWithin.$centerSphere")
		assert.NotContains(t, approx, "$geoWithin.$box")
	})
}

func TestParseErrors(t *testing.T) {
	t.Run("unknown operator is deterministic", func(t *testing.T) {
		spec := map[string]any{
			"a":    1,
			"b":    map[string]any{"$gt": 1},
			"$foo": 1,
			"c":    map[string]any{"$lt": 5},
		}
		for i := 0; i < 50; i++ {
			_, err := Parse(spec)
			require.Error(t, err)
			assert.ErrorIs(t, err, queryerr.ErrUnknownOperator)
			assert.True(t, queryerr.IsMalformed(err))
		}
	})

	t.Run("unknown field operator", func(t *testing.T) {
		_, err := Parse(bson.D{{Key: "a", Value: bson.D{{Key: "$approx", Value: 1}}}})
		assert.ErrorIs(t, err, queryerr.ErrUnknownOperator)
	})

	t.Run("mixed operator document in either key order", func(t *testing.T) {
		orders := []bson.D{
			{{Key: "$gt", Value: 1}, {Key: "b", Value: 2}},
			{{Key: "b", Value: 2}, {Key: "$gt", Value: 1}},
			{{Key: "$foo", Value: 1}, {Key: "b", Value: 2}},
			{{Key: "b", Value: 2}, {Key: "$foo", Value: 1}},
		}
		for _, cond := range orders {
			_, err := Parse(bson.D{{Key: "a", Value: cond}})
			assert.ErrorIs(t, err, queryerr.ErrMultiKeyOperator, "%v", cond)
			assert.True(t, queryerr.IsMalformed(err))

			_, err = Parse(bson.D{{Key: "a", Value: bson.D{{Key: "$elemMatch", Value: cond}}}})
			assert.True(t, queryerr.IsMalformed(err), "$elemMatch %v", cond)
		}
	})

	t.Run("one operator per document", func(t *testing.T) {
		for _, cond := range []bson.D{
			{{Key: "$gt", Value: 1}, {Key: "$lt", Value: 5}},
			{{Key: "$lt", Value: 5}, {Key: "$gt", Value: 1}},
			{{Key: "$in", Value: bson.A{1}}, {Key: "$exists", Value: true}},
		} {
			_, err := Parse(bson.D{{Key: "a", Value: cond}})
			assert.ErrorIs(t, err, queryerr.ErrMultiKeyOperator, "%v", cond)
		}

		_, err := Parse(bson.D{{Key: "a", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$gt", Value: 1}, {Key: "$lt", Value: 5}}}}}})
		assert.ErrorIs(t, err, queryerr.ErrMultiKeyOperator)

		_, err = Parse(bson.D{{Key: "a", Value: bson.D{{Key: "$options", Value: "i"}, {Key: "$regex", Value: "x"}}}})
		assert.NoError(t, err)
	})

	t.Run("error kind does not depend on top-level key order", func(t *testing.T) {
		where := bson.E{Key: "$where", Value: "this.a > 1"}
		unknown := bson.E{Key: "$foo", Value: 1}
		for _, spec := range []bson.D{{where, unknown}, {unknown, where}} {
			_, err := Parse(spec)
			assert.ErrorIs(t, err, queryerr.ErrUnknownOperator)
			assert.False(t, queryerr.IsUnsupported(err))
		}
	})

	t.Run("where is unsupported", func(t *testing.T) {
		_, err := Parse(bson.D{{Key: "$where", Value: "this.a > 1"}})
		assert.True(t, queryerr.IsUnsupported(err))
	})

	t.Run("not a document", func(t *testing.T) {
		_, err := Parse(bson.A{1})
		assert.True(t, queryerr.IsMalformed(err))
	})

	t.Run("capabilities", func(t *testing.T) {
		ops := Operators()
		assert.Contains(t, ops, "$elemMatch")
		assert.Contains(t, ops, "$nearSphere")
		assert.NotContains(t, ops, "$where")
		assert.Equal(t, []string{"$where"}, UnsupportedOperators())
	})
}
