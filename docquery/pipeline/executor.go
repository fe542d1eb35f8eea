package pipeline

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/collection"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/fieldname"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/filter"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/queryerr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/signals"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// UnsupportedPolicy decides what happens when a pipeline reaches an
// Unsupported stage.
type UnsupportedPolicy uint8

const (
	// Strict fails the run with an unsupported-feature error.
	Strict UnsupportedPolicy = iota
	// Permissive logs a warning and passes documents through unchanged.
	Permissive
)

func (p UnsupportedPolicy) String() string {
	if p == Permissive {
		return "permissive"
	}
	return "strict"
}

func ParsePolicy(s string) (UnsupportedPolicy, error) {
	switch strings.ToLower(s) {
	case "", "strict":
		return Strict, nil
	case "permissive":
		return Permissive, nil
	}
	return Strict, errors.Errorf("unknown unsupported-stage policy %q", s)
}

type Option func(*Executor)

// WithCollections sets the store used by $lookup and $merge.
func WithCollections(c collection.Access) Option {
	return func(e *Executor) {
		e.collections = c
	}
}

// WithResolver translates sort keys, group keys and unset paths written
// in application field names for entityType.
func WithResolver(r fieldname.Resolver, entityType string) Option {
	return func(e *Executor) {
		e.resolver = r
		e.entityType = entityType
	}
}

func WithPolicy(p UnsupportedPolicy) Option {
	return func(e *Executor) {
		e.policy = p
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRand sets the source used by $sample.
func WithRand(r *rand.Rand) Option {
	return func(e *Executor) {
		e.rand = r
	}
}

func WithSeed(seed int64) Option {
	return WithRand(rand.New(rand.NewSource(seed)))
}

func WithEvaluator(ev *expr.Evaluator) Option {
	return func(e *Executor) {
		e.evaluator = ev
	}
}

// StageFinished is published after every top-level stage of a run.
type StageFinished struct {
	RunID   string
	Index   int
	Name    string
	In      int
	Out     int
	Elapsed time.Duration
}

// Executor runs parsed pipelines. It holds no per-run state and may serve
// concurrent runs.
type Executor struct {
	collections collection.Access
	resolver    fieldname.Resolver
	entityType  string
	policy      UnsupportedPolicy
	logger      *zap.Logger
	evaluator   *expr.Evaluator
	matcher     *filter.Matcher

	randMu sync.Mutex
	rand   *rand.Rand

	stageFinished *signals.Signal[StageFinished]
}

func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		resolver:  fieldname.Identity{},
		policy:    Strict,
		logger:    zap.NewNop(),
		evaluator: expr.NewEvaluator(),

		stageFinished: signals.New[StageFinished](),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rand == nil {
		e.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	e.matcher = filter.NewMatcher(filter.WithLogger(e.logger), filter.WithEvaluator(e.evaluator))
	return e
}

func (e *Executor) Policy() UnsupportedPolicy {
	return e.policy
}

func (e *Executor) OnStageFinished() *signals.Signal[StageFinished] {
	return e.stageFinished
}

// Run applies every stage of p in order. The context is handed to the
// collection store and checked between stages.
func (e *Executor) Run(ctx context.Context, p Pipeline, docs []value.Document) ([]value.Document, error) {
	runID := ulid.Make().String()
	logger := e.logger.With(zap.String("run", runID))
	logger.Debug("pipeline started", zap.Int("stages", len(p)), zap.Int("documents", len(docs)))

	cur := docs
	for i, st := range p {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := e.apply(ctx, logger, st, cur, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %d (%s)", i, st.Name())
		}
		ev := StageFinished{RunID: runID, Index: i, Name: st.Name(), In: len(cur), Out: len(next), Elapsed: time.Since(start)}
		logger.Debug("stage finished",
			zap.Int("stage", ev.Index),
			zap.String("name", ev.Name),
			zap.Int("in", ev.In),
			zap.Int("out", ev.Out),
			zap.Duration("elapsed", ev.Elapsed),
		)
		e.stageFinished.Notify(ev)
		cur = next
	}
	return cur, nil
}

func (e *Executor) apply(ctx context.Context, logger *zap.Logger, st Stage, docs []value.Document, vars expr.Vars) ([]value.Document, error) {
	switch s := st.(type) {
	case Match:
		return e.match(s, docs)
	case Project:
		return e.project(s, docs, vars)
	case AddFields:
		return e.addFields(s, docs, vars)
	case Unset:
		return e.unset(s, docs), nil
	case ReplaceRoot:
		return e.replaceRoot(s, docs, vars)
	case Group:
		return e.group(s, docs, vars)
	case SortByCount:
		grouped, err := e.group(s.Group, docs, vars)
		if err != nil {
			return nil, err
		}
		return e.sort(s.Sort, grouped), nil
	case Sort:
		return e.sort(s, docs), nil
	case Skip:
		return skip(s.N, docs), nil
	case Limit:
		return limit(s.N, docs), nil
	case Sample:
		return e.sample(s, docs), nil
	case Count:
		return count(s, docs), nil
	case Unwind:
		return unwind(s, docs), nil
	case Lookup:
		return e.lookup(ctx, s, docs)
	case Merge:
		return e.merge(ctx, logger, s, docs)
	case Unsupported:
		if e.policy == Permissive {
			logger.Warn("unsupported stage passed through", zap.String("stage", s.Stage))
			return docs, nil
		}
		return nil, queryerr.Unsupported(queryerr.ErrNotImplemented, s.Stage, "stage is not supported")
	}
	return nil, queryerr.Malformed(nil, "pipeline", "unexpected stage %T", st)
}

func (e *Executor) resolve(path string) string {
	return fieldname.ResolvePath(e.resolver, e.entityType, path)
}

// evalField evaluates x for an output field. A plain field reference to a
// missing path reports present=false so the field can be left out.
func (e *Executor) evalField(x expr.Expr, doc value.Document, vars expr.Vars) (v value.Value, present bool, err error) {
	if ref, ok := x.(expr.FieldRef); ok {
		v, present = doc.Lookup(ref.Path)
		return v, present, nil
	}
	v, err = e.evaluator.EvaluateWith(x, doc, vars)
	return v, err == nil, err
}

func (e *Executor) match(s Match, docs []value.Document) ([]value.Document, error) {
	out := make([]value.Document, 0, len(docs))
	for _, d := range docs {
		ok, err := e.matcher.Match(s.Filter, d)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}
