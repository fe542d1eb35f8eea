package pipeline

import (
	"context"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

func (e *Executor) lookup(ctx context.Context, s Lookup, docs []value.Document) ([]value.Document, error) {
	if e.collections == nil {
		return nil, queryerr.Evaluation(nil, "$lookup", "no collection store to read %q from", s.From)
	}
	out := make([]value.Document, 0, len(docs))
	for _, d := range docs {
		local, ok := d.Lookup(s.LocalField)
		if !ok {
			local = value.Null()
		}

		var joined []value.Document
		items, isArray := local.AsArray()
		if !isArray || len(items) > 0 {
			cond := value.NewDocument(value.F("$eq", local))
			if isArray {
				cond = value.NewDocument(value.F("$in", local))
			}
			var err error
			joined, err = e.collections.Find(ctx, s.From, value.NewDocument(value.F(s.ForeignField, value.Doc(cond))), 0)
			if err != nil {
				return nil, err
			}
		}

		matches := make([]value.Value, len(joined))
		for i, j := range joined {
			matches[i] = value.Doc(j)
		}
		out = append(out, d.SetPath(s.As, value.Array(matches...)))
	}
	return out, nil
}
