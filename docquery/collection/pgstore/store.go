// Package pgstore keeps collections in PostgreSQL, one jsonb table per
// collection, and serves them to the pipeline executor.
package pgstore

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/collection"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/filter"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/session"
	"github.com/krew-solutions/ascetic-docquery-go/docquery/value"
)

const uniqueViolation = "23505"

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithTableName maps collection names to table names.
func WithTableName(fn func(collection string) string) Option {
	return func(s *Store) {
		s.tableName = fn
	}
}

type Store struct {
	pool      session.SessionPool
	tableName func(string) string
	parser    *filter.Parser
	matcher   *filter.Matcher
	logger    *zap.Logger
}

func NewStore(pool session.SessionPool, opts ...Option) *Store {
	s := &Store{
		pool:      pool,
		tableName: func(c string) string { return c },
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = filter.NewParser(filter.WithParserLogger(s.logger))
	s.matcher = filter.NewMatcher(filter.WithLogger(s.logger))
	return s
}

func (s *Store) table(coll string) string {
	return pgx.Identifier{s.tableName(coll)}.Sanitize()
}

// EnsureCollection creates the table backing coll if it is missing.
func (s *Store) EnsureCollection(ctx context.Context, coll string) error {
	return s.pool.Session(ctx, func(sess session.Session) error {
		_, err := sess.(session.DbSession).Connection().Exec(fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (seq bigserial, id text PRIMARY KEY, value jsonb NOT NULL)",
			s.table(coll),
		))
		return err
	})
}

func (s *Store) Find(ctx context.Context, coll string, query value.Document, limit int) ([]value.Document, error) {
	node, err := s.parser.ParseDocument(query)
	if err != nil {
		return nil, err
	}
	where, params, err := NewCompiler("value").Compile(node)
	if err != nil {
		return nil, errors.Wrap(err, "compile filter")
	}

	sql := fmt.Sprintf("SELECT value FROM %s", s.table(coll))
	if where != "" {
		sql += " WHERE " + where
	}
	sql += " ORDER BY seq"
	if limit > 0 && isEmpty(node) {
		sql += fmt.Sprintf(" LIMIT %d", limit)
	}

	var out []value.Document
	err = s.pool.Session(ctx, func(sess session.Session) error {
		rows, err := sess.(session.DbSession).Connection().Query(sql, params...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return err
			}
			d, err := value.UnmarshalExtJSON(data)
			if err != nil {
				return errors.Wrapf(err, "decode document from %s", coll)
			}
			ok, err := s.matcher.Match(node, d)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			out = append(out, d)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errors.Wrapf(err, "find in %s", coll)
	}
	s.logger.Debug("find", zap.String("collection", coll), zap.Bool("pushdown", where != ""), zap.Int("found", len(out)))
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, coll string, doc value.Document) error {
	id, ok := doc.Get(collection.IDField)
	if !ok {
		return errors.Wrapf(collection.ErrMissingID, "upsert into %s", coll)
	}
	key, data, err := encode(id, doc)
	if err != nil {
		return err
	}
	return s.pool.Session(ctx, func(sess session.Session) error {
		_, err := sess.(session.DbSession).Connection().Exec(fmt.Sprintf(
			"INSERT INTO %s (id, value) VALUES ($1, $2::jsonb) ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value",
			s.table(coll),
		), key, data)
		return errors.Wrapf(err, "upsert into %s", coll)
	})
}

func (s *Store) Insert(ctx context.Context, coll string, docs ...value.Document) error {
	if len(docs) == 0 {
		return nil
	}
	sql := fmt.Sprintf("INSERT INTO %s (id, value) VALUES ($1, $2::jsonb)", s.table(coll))
	return s.pool.Session(ctx, func(sess session.Session) error {
		return sess.Atomic(func(tx session.Session) error {
			conn := tx.(session.DbSession).Connection()
			for i, d := range docs {
				d = collection.EnsureID(d)
				id, _ := d.Get(collection.IDField)
				key, data, err := encode(id, d)
				if err != nil {
					return err
				}
				if _, err := conn.Exec(sql, key, data); err != nil {
					var pgErr *pgconn.PgError
					if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
						return errors.Wrapf(collection.ErrDuplicateKey, "insert into %s: document %d: _id %s", coll, i, id)
					}
					return errors.Wrapf(err, "insert into %s", coll)
				}
			}
			return nil
		})
	})
}

// encode returns the primary key and the stored form of doc. Integral
// doubles share the key of the equal integer.
func encode(id value.Value, doc value.Document) (string, string, error) {
	if f, ok := id.AsFloat(); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		id = value.Int(int64(f))
	}
	key, err := value.MarshalExtJSON(value.NewDocument(value.F(collection.IDField, id)))
	if err != nil {
		return "", "", errors.Wrap(err, "encode _id")
	}
	data, err := value.MarshalExtJSON(doc)
	if err != nil {
		return "", "", errors.Wrap(err, "encode document")
	}
	return string(key), string(data), nil
}

func isEmpty(node filter.Node) bool {
	l, ok := node.(filter.Logical)
	return ok && l.Op == filter.And && len(l.Children) == 0
}

var _ collection.Access = (*Store)(nil)
