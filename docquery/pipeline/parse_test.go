package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

func TestParseStages(t *testing.T) {
	p, err := Parse(bson.A{
		bson.D{{Key: "$match", Value: bson.D{{Key: "qty", Value: bson.D{{Key: "$gt", Value: 1}}}}}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "total", Value: bson.D{{Key: "$multiply", Value: bson.A{"$qty", "$price"}}}}}}},
		bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$sku"}, {Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "n", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$skip", Value: 2.0}},
		bson.D{{Key: "$limit", Value: 5}},
		bson.D{{Key: "$unwind", Value: "$tags"}},
		bson.D{{Key: "$count", Value: "total"}},
		bson.D{{Key: "$merge", Value: "out"}},
	})
	require.NoError(t, err)
	require.Len(t, p, 9)

	names := make([]string, len(p))
	for i, st := range p {
		names[i] = st.Name()
	}
	assert.Equal(t, []string{"$match", "$set", "$group", "$sort", "$skip", "$limit", "$unwind", "$count", "$merge"}, names)

	group := p[2].(Group)
	assert.Equal(t, expr.FieldRef{Path: "sku"}, group.ID)
	require.Len(t, group.Accumulators, 1)
	assert.Equal(t, AccSum, group.Accumulators[0].Op)

	assert.Equal(t, Sort{Keys: []SortKey{{Path: "n", Desc: true}, {Path: "_id"}}}, p[3])
	assert.Equal(t, Skip{N: 2}, p[4])
	assert.Equal(t, Unwind{Path: "tags"}, p[6])
	assert.Equal(t, Merge{Into: "out", On: []string{"_id"}, WhenMatched: MatchedMerge, WhenNotMatched: NotMatchedInsert}, p[8])
}

func TestParseProject(t *testing.T) {
	p, err := Parse(bson.A{bson.D{{Key: "$project", Value: bson.D{
		{Key: "_id", Value: 0},
		{Key: "address", Value: bson.D{{Key: "city", Value: 1}}},
		{Key: "label", Value: bson.D{{Key: "$literal", Value: "x"}}},
	}}}})
	require.NoError(t, err)
	pr := p[0].(Project)
	assert.False(t, pr.Exclusion)
	require.Len(t, pr.Fields, 3)
	assert.Equal(t, "address.city", pr.Fields[1].Path)
	assert.Equal(t, Include, pr.Fields[1].Mode)
	assert.Equal(t, Compute, pr.Fields[2].Mode)

	p, err = Parse(bson.A{bson.D{{Key: "$project", Value: bson.D{{Key: "_id", Value: 1}, {Key: "secret", Value: 0}}}}})
	require.NoError(t, err)
	assert.True(t, p[0].(Project).Exclusion)
}

func TestParseMergeOptions(t *testing.T) {
	p, err := Parse(bson.A{bson.D{{Key: "$merge", Value: bson.D{
		{Key: "into", Value: bson.D{{Key: "coll", Value: "totals"}}},
		{Key: "on", Value: bson.A{"region", "year"}},
		{Key: "whenMatched", Value: bson.A{bson.D{{Key: "$unset", Value: "tmp"}}}},
		{Key: "whenNotMatched", Value: "discard"},
	}}}})
	require.NoError(t, err)
	m := p[0].(Merge)
	assert.Equal(t, "totals", m.Into)
	assert.Equal(t, []string{"region", "year"}, m.On)
	assert.Equal(t, MatchedPipeline, m.WhenMatched)
	assert.Equal(t, Pipeline{Unset{Paths: []string{"tmp"}}}, m.Pipeline)
	assert.Equal(t, NotMatchedDiscard, m.WhenNotMatched)
}

func TestParseUnsupported(t *testing.T) {
	p, err := Parse(bson.A{bson.D{{Key: "$graphLookup", Value: bson.D{}}}})
	require.NoError(t, err)
	assert.Equal(t, "$graphLookup", p[0].Name())
	assert.IsType(t, Unsupported{}, p[0])

	cases := map[string]bson.A{
		"lookup pipeline": {bson.D{{Key: "$lookup", Value: bson.D{{Key: "from", Value: "x"}, {Key: "pipeline", Value: bson.A{}}}}}},
		"lookup let":      {bson.D{{Key: "$lookup", Value: bson.D{{Key: "from", Value: "x"}, {Key: "let", Value: bson.D{}}}}}},
		"std dev":         {bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: nil}, {Key: "s", Value: bson.D{{Key: "$stdDevPop", Value: "$x"}}}}}}},
		"compound key":    {bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: bson.D{{Key: "a", Value: "$a"}}}}}}},
		"meta sort":       {bson.D{{Key: "$sort", Value: bson.D{{Key: "score", Value: bson.D{{Key: "$meta", Value: "textScore"}}}}}}},
		"merge let":       {bson.D{{Key: "$merge", Value: bson.D{{Key: "into", Value: "x"}, {Key: "let", Value: bson.D{}}}}}},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(spec)
			require.Error(t, err)
			assert.True(t, queryerr.IsUnsupported(err), err.Error())
		})
	}
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]any{
		"not an array":         bson.D{{Key: "$match", Value: bson.D{}}},
		"two keys":             bson.A{bson.D{{Key: "$skip", Value: 1}, {Key: "$limit", Value: 1}}},
		"no dollar":            bson.A{bson.D{{Key: "match", Value: bson.D{}}}},
		"negative skip":        bson.A{bson.D{{Key: "$skip", Value: -1}}},
		"zero limit":           bson.A{bson.D{{Key: "$limit", Value: 0}}},
		"fractional limit":     bson.A{bson.D{{Key: "$limit", Value: 1.5}}},
		"mixed projection":     bson.A{bson.D{{Key: "$project", Value: bson.D{{Key: "a", Value: 1}, {Key: "b", Value: 0}}}}},
		"plain string project": bson.A{bson.D{{Key: "$project", Value: bson.D{{Key: "a", Value: "text"}}}}},
		"group without id":     bson.A{bson.D{{Key: "$group", Value: bson.D{{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}}}}}},
		"dotted group field":   bson.A{bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: nil}, {Key: "a.b", Value: bson.D{{Key: "$sum", Value: 1}}}}}}},
		"unknown accumulator":  bson.A{bson.D{{Key: "$group", Value: bson.D{{Key: "_id", Value: nil}, {Key: "n", Value: bson.D{{Key: "$median", Value: "$x"}}}}}}},
		"sort direction":       bson.A{bson.D{{Key: "$sort", Value: bson.D{{Key: "a", Value: 2}}}}},
		"unwind plain field":   bson.A{bson.D{{Key: "$unwind", Value: "items"}}},
		"lookup missing as":    bson.A{bson.D{{Key: "$lookup", Value: bson.D{{Key: "from", Value: "x"}, {Key: "localField", Value: "a"}, {Key: "foreignField", Value: "b"}}}}},
		"dotted count":         bson.A{bson.D{{Key: "$count", Value: "a.b"}}},
		"merge not last":       bson.A{bson.D{{Key: "$merge", Value: "x"}}, bson.D{{Key: "$limit", Value: 1}}},
		"bad merge mode":       bson.A{bson.D{{Key: "$merge", Value: bson.D{{Key: "into", Value: "x"}, {Key: "whenMatched", Value: "overwrite"}}}}},
		"merge pipeline stage": bson.A{bson.D{{Key: "$merge", Value: bson.D{{Key: "into", Value: "x"}, {Key: "whenMatched", Value: bson.A{bson.D{{Key: "$limit", Value: 1}}}}}}}},
		"bad filter":           bson.A{bson.D{{Key: "$match", Value: bson.D{{Key: "a", Value: bson.D{{Key: "$bogus", Value: 1}}}}}}},
		"bad expression":       bson.A{bson.D{{Key: "$set", Value: bson.D{{Key: "a", Value: bson.D{{Key: "$add", Value: 1}, {Key: "$sub", Value: 2}}}}}}},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(spec)
			require.Error(t, err)
			assert.True(t, queryerr.IsMalformed(err), err.Error())
		})
	}
}

func TestParseErrorNamesStage(t *testing.T) {
	_, err := Parse(bson.A{
		bson.D{{Key: "$limit", Value: 1}},
		bson.D{{Key: "$skip", Value: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage 1")
}

func TestCapabilities(t *testing.T) {
	assert.Contains(t, Stages(), "$lookup")
	assert.Contains(t, UnsupportedStages(), "$facet")
	assert.NotContains(t, Stages(), "$facet")
	assert.Equal(t, []string{"$addToSet", "$avg", "$count", "$first", "$last", "$max", "$min", "$push", "$sum"}, Accumulators())

	for _, name := range UnsupportedStages() {
		p, err := ParseValue(value.Array(value.Doc(value.NewDocument(value.F(name, value.Doc(value.NewDocument()))))))
		require.NoError(t, err, name)
		assert.IsType(t, Unsupported{}, p[0])
	}
}
