package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS otp_codes (
	session_id TEXT PRIMARY KEY,
	code       TEXT        NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	attempts   INTEGER     NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS otp_codes_expires_at_idx ON otp_codes (expires_at);
`

const (
	queryIssue = `
INSERT INTO otp_codes (session_id, code, expires_at, attempts)
VALUES ($1, $2, $3, 0)
ON CONFLICT (session_id) DO UPDATE
SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at, attempts = 0`

	queryLookup = `
SELECT code, expires_at, attempts FROM otp_codes
WHERE session_id = $1 AND expires_at > $2`

	queryRecordFailedAttempt = `
UPDATE otp_codes SET attempts = attempts + 1
WHERE session_id = $1 AND expires_at > $2
RETURNING attempts`

	queryConsume = `DELETE FROM otp_codes WHERE session_id = $1`

	queryCompareAndConsume = `
DELETE FROM otp_codes
WHERE session_id = $1 AND code = $2 AND expires_at > $3`

	querySweep = `DELETE FROM otp_codes WHERE expires_at <= $1`
)

// PGXPool is the subset of *pgxpool.Pool used by Postgres.
type PGXPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Postgres keeps records in the otp_codes table. Expiry is compared against
// the service clock, never the database clock.
type Postgres struct {
	pool PGXPool
	opts Options
}

func NewPostgres(pool PGXPool, opts Options) *Postgres {
	return &Postgres{pool: pool, opts: opts.withDefaults()}
}

// EnsureSchema creates the table and its expiry index when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return unavailable("ensure schema", err)
	}
	return nil
}

func (p *Postgres) now() time.Time {
	return p.opts.Clock.Now().UTC().Truncate(time.Microsecond)
}

func (p *Postgres) Issue(ctx context.Context, sessionID string) (*entity.Record, error) {
	rec := entity.Record{
		SessionID: sessionID,
		Code:      p.opts.Generator.Generate(),
		ExpiresAt: p.now().Add(p.opts.TTL),
	}

	if _, err := p.pool.Exec(ctx, queryIssue, rec.SessionID, rec.Code, rec.ExpiresAt); err != nil {
		return nil, unavailable("issue", err)
	}

	return &rec, nil
}

func (p *Postgres) Lookup(ctx context.Context, sessionID string) (*entity.Record, error) {
	rec := entity.Record{SessionID: sessionID}
	err := p.pool.QueryRow(ctx, queryLookup, sessionID, p.now()).Scan(&rec.Code, &rec.ExpiresAt, &rec.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goerror.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("lookup", err)
	}

	return &rec, nil
}

func (p *Postgres) RecordFailedAttempt(ctx context.Context, sessionID string) (int, error) {
	var attempts int
	err := p.pool.QueryRow(ctx, queryRecordFailedAttempt, sessionID, p.now()).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable("record failed attempt", err)
	}

	return attempts, nil
}

func (p *Postgres) Consume(ctx context.Context, sessionID string) error {
	if _, err := p.pool.Exec(ctx, queryConsume, sessionID); err != nil {
		return unavailable("consume", err)
	}
	return nil
}

func (p *Postgres) CompareAndConsume(ctx context.Context, sessionID, code string) (bool, error) {
	tag, err := p.pool.Exec(ctx, queryCompareAndConsume, sessionID, code, p.now())
	if err != nil {
		return false, unavailable("compare and consume", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Sweep deletes by expiry in one statement, so a row re-issued concurrently
// carries a future expires_at and survives.
func (p *Postgres) Sweep(ctx context.Context) (int, error) {
	tag, err := p.pool.Exec(ctx, querySweep, p.now())
	if err != nil {
		return 0, unavailable("sweep", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close leaves the shared pool open; its owner closes it.
func (p *Postgres) Close() error {
	return nil
}
