package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/expr"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/fieldname"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/filter"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/pipeline"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

// input reads documents from a collection, a file argument or stdin.
func (a *app) input(ctx context.Context, from string, args []string, query value.Document, limit int) ([]value.Document, error) {
	switch {
	case from != "":
		if err := a.ensure(ctx, from); err != nil {
			return nil, err
		}
		return a.store.Find(ctx, from, query, limit)
	case len(args) > 0:
		return readFile(args[0], a.inputFormat)
	}
	return readDocuments(a.stdin, a.inputFormat)
}

func newMatchCmd(a *app) *cobra.Command {
	var (
		from  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "match FILTER [FILE]",
		Short: "Print the documents matching a filter",
		Long: "Print the documents matching a filter. FILTER is Extended JSON, or @path to read it from a file.\n" +
			"Documents come from FILE, stdin, or a stored collection given with --from.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readSpec(args[0])
			if err != nil {
				return errors.Wrap(err, "filter")
			}
			query, ok := spec.AsDocument()
			if !ok {
				return errors.Errorf("filter must be a document, got %s", spec.Kind())
			}
			node, err := a.filterParser().ParseDocument(query)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			docs, err := a.input(ctx, from, args[1:], query, limit)
			if err != nil {
				return err
			}
			if from == "" {
				matcher := filter.NewMatcher(filter.WithLogger(a.logger))
				var out []value.Document
				for _, d := range docs {
					ok, err := matcher.Match(node, d)
					if err != nil {
						return err
					}
					if ok {
						out = append(out, d)
					}
					if limit > 0 && len(out) == limit {
						break
					}
				}
				docs = out
			}
			return writeDocuments(a.stdout, docs, a.outputFormat, a.compress)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "read documents from this collection")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many matches (0 means no limit)")
	return cmd
}

func newAggregateCmd(a *app) *cobra.Command {
	var (
		from      string
		entity    string
		snakeCase bool
		stats     bool
	)
	cmd := &cobra.Command{
		Use:   "aggregate PIPELINE [FILE]",
		Short: "Run an aggregation pipeline",
		Long: "Run an aggregation pipeline. PIPELINE is an Extended JSON array of stages, or @path.\n" +
			"$lookup and $merge read and write the collections loaded with --collection or stored in PostgreSQL.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readSpec(args[0])
			if err != nil {
				return errors.Wrap(err, "pipeline")
			}
			p, err := pipeline.NewParser(pipeline.WithFilterParser(a.filterParser())).ParseValue(spec)
			if err != nil {
				return err
			}
			policy, err := a.policy()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := a.ensure(ctx, referencedCollections(p)...); err != nil {
				return err
			}
			docs, err := a.input(ctx, from, args[1:], value.NewDocument(), 0)
			if err != nil {
				return err
			}

			opts := []pipeline.Option{
				pipeline.WithCollections(a.store),
				pipeline.WithPolicy(policy),
				pipeline.WithLogger(a.logger),
				pipeline.WithEvaluator(expr.NewEvaluator()),
			}
			if a.cfg.SampleSeed != 0 {
				opts = append(opts, pipeline.WithSeed(a.cfg.SampleSeed))
			}
			if snakeCase {
				if entity == "" && from != "" {
					entity = fieldname.EntityType(from)
				}
				opts = append(opts, pipeline.WithResolver(fieldname.SnakeCase{}, entity))
			}

			executor := pipeline.NewExecutor(opts...)
			if stats {
				w := cmd.ErrOrStderr()
				executor.OnStageFinished().Attach(func(ev pipeline.StageFinished) {
					fmt.Fprintf(w, "%d\t%s\t%d -> %d\t%s\n", ev.Index, ev.Name, ev.In, ev.Out, ev.Elapsed)
				})
			}
			out, err := executor.Run(ctx, p, docs)
			if err != nil {
				return err
			}
			a.logger.Debug("aggregate finished", zap.Int("in", len(docs)), zap.Int("out", len(out)))
			return writeDocuments(a.stdout, out, a.outputFormat, a.compress)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "read input documents from this collection")
	cmd.Flags().StringVar(&entity, "entity", "", "entity type for field name resolution (default: singular of --from)")
	cmd.Flags().BoolVar(&stats, "stats", false, "print per-stage document counts to stderr")
	cmd.Flags().BoolVar(&snakeCase, "snake-case", false, "resolve camelCase sort, group and unset paths to snake_case fields")
	return cmd
}

// referencedCollections lists the collections $lookup and $merge touch.
func referencedCollections(p pipeline.Pipeline) []string {
	seen := map[string]bool{}
	for _, st := range p {
		switch s := st.(type) {
		case pipeline.Lookup:
			seen[s.From] = true
		case pipeline.Merge:
			seen[s.Into] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func newCapabilitiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List supported, unsupported and approximate operators and stages",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			list := func(names []string) value.Value {
				items := make([]value.Value, len(names))
				for i, n := range names {
					items[i] = value.String(n)
				}
				return value.Array(items...)
			}
			doc := value.NewDocument(
				value.F("stages", list(pipeline.Stages())),
				value.F("unsupportedStages", list(pipeline.UnsupportedStages())),
				value.F("accumulators", list(pipeline.Accumulators())),
				value.F("queryOperators", list(filter.Operators())),
				value.F("unsupportedQueryOperators", list(filter.UnsupportedOperators())),
				value.F("approximateQueryOperators", list(filter.ApproximateOperators())),
				value.F("expressionOperators", list(expr.Operators())),
			)
			return writeDocuments(a.stdout, []value.Document{doc}, formatJSON, false)
		},
	}
}
