package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/collection"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

func (e *Executor) merge(ctx context.Context, logger *zap.Logger, s Merge, docs []value.Document) ([]value.Document, error) {
	if e.collections == nil {
		return nil, queryerr.Evaluation(nil, "$merge", "no collection store to write %q to", s.Into)
	}
	var inserted, updated, discarded int
	for i, d := range docs {
		d = collection.EnsureID(d)

		query := value.NewDocument()
		for _, field := range s.On {
			v, ok := d.Lookup(field)
			if !ok {
				return nil, queryerr.Evaluation(nil, "$merge", "document %d has no value for on field %q", i, field)
			}
			query = query.Set(field, value.Doc(value.NewDocument(value.F("$eq", v))))
		}

		targets, err := e.collections.Find(ctx, s.Into, query, 2)
		if err != nil {
			return nil, err
		}

		switch len(targets) {
		case 0:
			switch s.WhenNotMatched {
			case NotMatchedDiscard:
				discarded++
				continue
			case NotMatchedFail:
				return nil, queryerr.Evaluation(queryerr.ErrMergeNoMatch, "$merge", "no document in %s matches %s", s.Into, query)
			}
			if err := e.collections.Insert(ctx, s.Into, d); err != nil {
				return nil, err
			}
			inserted++
		case 1:
			res, write, err := e.whenMatched(ctx, logger, s, targets[0], d)
			if err != nil {
				return nil, err
			}
			if !write {
				discarded++
				continue
			}
			if err := e.collections.Upsert(ctx, s.Into, res); err != nil {
				return nil, err
			}
			updated++
		default:
			return nil, queryerr.Evaluation(queryerr.ErrNonUniqueMerge, "$merge", "%s matches more than one document in %s", query, s.Into)
		}
	}
	logger.Debug("merge written",
		zap.String("into", s.Into),
		zap.Int("inserted", inserted),
		zap.Int("updated", updated),
		zap.Int("discarded", discarded),
	)
	return []value.Document{}, nil
}

// whenMatched computes the replacement for existing. The target keeps its
// _id whatever the incoming document carries.
func (e *Executor) whenMatched(ctx context.Context, logger *zap.Logger, s Merge, existing, incoming value.Document) (value.Document, bool, error) {
	id, _ := existing.Get(collection.IDField)
	switch s.WhenMatched {
	case MatchedKeepExisting:
		return existing, false, nil
	case MatchedFail:
		return value.Document{}, false, queryerr.Evaluation(queryerr.ErrMergeMatched, "$merge", "document %s already exists in %s", id, s.Into)
	case MatchedReplace:
		return withID(incoming, id), true, nil
	case MatchedPipeline:
		vars := expr.Vars{"new": value.Doc(incoming)}
		cur := []value.Document{existing}
		for _, st := range s.Pipeline {
			next, err := e.apply(ctx, logger, st, cur, vars)
			if err != nil {
				return value.Document{}, false, err
			}
			cur = next
		}
		if len(cur) != 1 {
			return value.Document{}, false, queryerr.Evaluation(nil, "$merge", "whenMatched pipeline produced %d documents", len(cur))
		}
		return withID(cur[0], id), true, nil
	}
	return withID(existing.Merge(incoming), id), true, nil
}

func withID(d value.Document, id value.Value) value.Document {
	if d.Has(collection.IDField) {
		return d.Set(collection.IDField, id)
	}
	return value.NewDocument(value.F(collection.IDField, id)).Merge(d)
}
