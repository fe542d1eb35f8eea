// Package pgx runs sessions on a PostgreSQL pool through jackc/pgx.
package pgx

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/session"
)

// Session is a database session outside of any transaction.
type Session struct {
	ctx    context.Context
	conn   beginner
	logger *zap.Logger
}

func NewSession(ctx context.Context, conn beginner, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		ctx:    ctx,
		conn:   conn,
		logger: logger,
	}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Connection() session.DbConnection {
	return &connection{ctx: s.ctx, exec: s.conn, logger: s.logger}
}

func (s *Session) Atomic(callback session.SessionCallback) error {
	return atomic(s.ctx, s.conn, 1, s.logger, callback)
}

// TxSession is a session inside a transaction. Nested Atomic calls open
// savepoints.
type TxSession struct {
	ctx    context.Context
	tx     pgx.Tx
	depth  int
	logger *zap.Logger
}

func NewTxSession(ctx context.Context, tx pgx.Tx, depth int, logger *zap.Logger) *TxSession {
	return &TxSession{
		ctx:    ctx,
		tx:     tx,
		depth:  depth,
		logger: logger,
	}
}

func (s *TxSession) Context() context.Context {
	return s.ctx
}

// Depth is 1 for a transaction and greater for savepoints.
func (s *TxSession) Depth() int {
	return s.depth
}

func (s *TxSession) Connection() session.DbConnection {
	return &connection{ctx: s.ctx, exec: s.tx, logger: s.logger}
}

func (s *TxSession) Atomic(callback session.SessionCallback) error {
	return atomic(s.ctx, s.tx, s.depth+1, s.logger, callback)
}

func atomic(ctx context.Context, b beginner, depth int, logger *zap.Logger, callback session.SessionCallback) error {
	label := "transaction"
	if depth > 1 {
		label = "savepoint"
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return errors.Wrapf(err, "unable to start %s", label)
	}

	err = callback(NewTxSession(ctx, tx, depth, logger))
	if err != nil {
		if txErr := tx.Rollback(ctx); txErr != nil {
			return multierror.Append(err, txErr)
		}
		logger.Debug("rolled back", zap.String("scope", label), zap.Int("depth", depth), zap.Error(err))
		return err
	}

	if txErr := tx.Commit(ctx); txErr != nil {
		return errors.Wrapf(txErr, "failed to commit %s", label)
	}
	return nil
}

// executor is implemented by *pgxpool.Conn, *pgx.Conn and pgx.Tx.
type executor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

type beginner interface {
	executor
	Begin(ctx context.Context) (pgx.Tx, error)
}

type result struct {
	tag pgconn.CommandTag
}

func (r result) RowsAffected() int64 {
	return r.tag.RowsAffected()
}

// connection implements session.DbConnection
type connection struct {
	ctx    context.Context
	exec   executor
	logger *zap.Logger
}

func (c *connection) Exec(query string, args ...any) (session.Result, error) {
	defer c.trace(query, time.Now())
	tag, err := c.exec.Exec(c.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return result{tag: tag}, nil
}

func (c *connection) Query(query string, args ...any) (session.Rows, error) {
	defer c.trace(query, time.Now())
	return c.exec.Query(c.ctx, query, args...)
}

func (c *connection) QueryRow(query string, args ...any) session.Row {
	defer c.trace(query, time.Now())
	return c.exec.QueryRow(c.ctx, query, args...)
}

func (c *connection) trace(query string, start time.Time) {
	c.logger.Debug("query", zap.String("sql", query), zap.Duration("elapsed", time.Since(start)))
}
