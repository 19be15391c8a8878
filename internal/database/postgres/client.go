package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/attachtrack/attachtrack-api/internal/repository"
	"github.com/attachtrack/attachtrack-api/pkg/logger"
	"github.com/attachtrack/attachtrack-api/pkg/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	uniqueViolation = "23505"
	defaultTimeout  = 2 * time.Second
)

// Pool is the subset of *pgxpool.Pool the stores use
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Client wraps a pgx connection pool with observability and per-call timeouts
type Client struct {
	pool    Pool
	timeout time.Duration
}

// NewClient creates a client over an existing pool. Every store call is
// bounded by timeout.
func NewClient(pool Pool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{pool: pool, timeout: timeout}
}

// Stores returns the four postgres-backed stores sharing this client
func (c *Client) Stores() repository.Stores {
	return repository.Stores{
		Principals:   &PrincipalStore{c: c},
		Positions:    &PositionStore{c: c},
		Applications: &ApplicationStore{c: c},
		Attachments:  &AttachmentStore{c: c},
	}
}

// Close closes the connection pool
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
		logger.Info("PostgreSQL connection pool closed")
	}
}

// Ping checks if the database connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// observe records metrics and a debug log line for one store call.
// Business outcomes (no rows, conflicts) count as success.
func observe(store, operation string, start time.Time, err error, business bool) {
	duration := metrics.MeasureDuration(start)
	status := "success"
	if err != nil && !business {
		status = "error"
	}
	metrics.RecordStoreCall("postgres_"+store, operation, status, duration)
	if status == "error" {
		logger.LogStoreCall("postgres_"+store, operation, status, duration, zap.Error(err))
		return
	}
	logger.LogStoreCall("postgres_"+store, operation, status, duration)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !stderrors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isNoRows(err error) bool {
	return stderrors.Is(err, pgx.ErrNoRows)
}
