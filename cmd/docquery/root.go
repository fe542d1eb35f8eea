package main

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/collection"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/collection/pgstore"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/config"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/filter"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/logging"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/pipeline"
	pgxsession "github.com/krew-solutions/ascetic-docquery-go/docquery/session/pgx"
)

// ensurer is implemented by stores that create collections up front.
type ensurer interface {
	EnsureCollection(ctx context.Context, coll string) error
}

type app struct {
	v      *viper.Viper
	cfg    config.Config
	logger *zap.Logger
	store  collection.Access
	close  func()

	stdin  io.Reader
	stdout io.Writer

	configPath   string
	inputFormat  string
	outputFormat string
	compress     bool
	preload      []string
}

func newRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	a := &app{v: config.New(), stdin: stdin, stdout: stdout, close: func() {}}

	root := &cobra.Command{
		Use:           "docquery",
		Short:         "Query and aggregate documents with MongoDB-style filters and pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
			_ = a.logger.Sync()
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "configuration file (default ./docquery.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", logging.FormatConsole, "log format: console or json")
	pf.String("policy", "strict", "unsupported stage policy: strict or permissive")
	pf.String("postgres", "", "PostgreSQL DSN; collections are kept in memory when empty")
	pf.String("table-prefix", "", "prefix for PostgreSQL collection tables")
	pf.Int64("seed", 0, "fixed $sample seed (0 picks a random one)")
	pf.StringSlice("text-field", nil, "field searched by $text (repeatable)")
	pf.StringVar(&a.inputFormat, "input-format", formatAuto, "input format: auto, json or msgpack")
	pf.StringVar(&a.outputFormat, "output-format", formatJSON, "output format: json or msgpack")
	pf.BoolVar(&a.compress, "compress", false, "zstd-compress the output")
	pf.StringArrayVar(&a.preload, "collection", nil, "load a collection from a file, as name=path (repeatable)")

	root.AddCommand(newMatchCmd(a), newAggregateCmd(a), newCapabilitiesCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	err := config.BindFlags(a.v, cmd.Flags(), map[string]string{
		"log.level":             "log-level",
		"log.format":            "log-format",
		"unsupported_policy":    "policy",
		"postgres.dsn":          "postgres",
		"postgres.table_prefix": "table-prefix",
		"sample_seed":           "seed",
		"text_fields":           "text-field",
	})
	if err != nil {
		return err
	}
	if a.cfg, err = config.Load(a.v, a.configPath); err != nil {
		return err
	}
	if a.logger, err = logging.New(a.cfg.Log.Level, a.cfg.Log.Format); err != nil {
		return err
	}
	if cmd.Name() == "capabilities" {
		return nil
	}
	if err := a.openStore(cmd.Context()); err != nil {
		return err
	}
	for _, spec := range a.preload {
		if err := a.load(cmd.Context(), spec); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.Postgres.DSN == "" {
		a.store = collection.NewMemory()
		return nil
	}
	pool, err := pgxsession.Connect(ctx, a.cfg.Postgres.DSN, a.logger)
	if err != nil {
		return err
	}
	prefix := a.cfg.Postgres.TablePrefix
	a.store = pgstore.NewStore(pool,
		pgstore.WithLogger(a.logger),
		pgstore.WithTableName(func(coll string) string { return prefix + coll }),
	)
	a.close = pool.Close
	a.logger.Debug("connected to postgres", zap.String("table_prefix", prefix))
	return nil
}

func (a *app) ensure(ctx context.Context, colls ...string) error {
	e, ok := a.store.(ensurer)
	if !ok {
		return nil
	}
	for _, coll := range colls {
		if err := e.EnsureCollection(ctx, coll); err != nil {
			return errors.Wrapf(err, "create collection %s", coll)
		}
	}
	return nil
}

func (a *app) load(ctx context.Context, spec string) error {
	name, path, ok := strings.Cut(spec, "=")
	if !ok || name == "" || path == "" {
		return errors.Errorf("--collection expects name=path, got %q", spec)
	}
	docs, err := readFile(path, formatAuto)
	if err != nil {
		return err
	}
	if err := a.ensure(ctx, name); err != nil {
		return err
	}
	if err := a.store.Insert(ctx, name, docs...); err != nil {
		return err
	}
	a.logger.Debug("collection loaded", zap.String("collection", name), zap.Int("documents", len(docs)))
	return nil
}

func (a *app) filterParser() *filter.Parser {
	return filter.NewParser(filter.WithParserLogger(a.logger), filter.WithTextFields(a.cfg.TextFields...))
}

func (a *app) policy() (pipeline.UnsupportedPolicy, error) {
	return pipeline.ParsePolicy(a.cfg.UnsupportedPolicy)
}
