package pgx

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-docquery-go/docquery/session"
)

type SessionPool struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewSessionPool(pool *pgxpool.Pool, logger *zap.Logger) *SessionPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionPool{pool: pool, logger: logger}
}

// Connect opens a pool for dsn.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*SessionPool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewSessionPool(pool, logger), nil
}

func (p *SessionPool) Close() {
	p.pool.Close()
}

func (p *SessionPool) Session(ctx context.Context, callback session.SessionPoolCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return callback(NewSession(ctx, conn, p.logger))
}
