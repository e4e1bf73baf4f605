package access

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leasecheck/pkg/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS access_grants (
    user_id         TEXT PRIMARY KEY,
    plan            TEXT NOT NULL,
    paid_at         TIMESTAMPTZ NOT NULL,
    expires_at      TIMESTAMPTZ NOT NULL,
    analysis_ids    TEXT[] NOT NULL DEFAULT '{}',
    customer_email  TEXT NOT NULL DEFAULT '',
    transaction_id  TEXT NOT NULL DEFAULT '',
    subscription_id TEXT NOT NULL DEFAULT '',
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS free_analyses (
    user_id TEXT PRIMARY KEY,
    used_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const grantColumns = `user_id, plan, paid_at, expires_at, analysis_ids, customer_email, transaction_id, subscription_id`

// PostgresStore is a GrantStore and FreeTierStore backed by PostgreSQL.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	const op = "NewPostgresStore"

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, WrapAccessError(op, err, "invalid DATABASE_URL")
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, storeError(op, err)
	}

	return &PostgresStore{Pool: pool}, nil
}

// EnsureSchema creates the tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaSQL)
	return storeError("EnsureSchema", err)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.Pool.Close()
}

func scanGrant(row pgx.Row) (*models.AccessGrant, error) {
	var g models.AccessGrant
	var plan string
	err := row.Scan(
		&g.UserID,
		&plan,
		&g.PaidAt,
		&g.ExpiresAt,
		&g.AnalysisIDs,
		&g.CustomerEmail,
		&g.TransactionID,
		&g.SubscriptionID,
	)
	if err != nil {
		return nil, err
	}
	g.Plan = models.ParsePlan(plan)
	if g.AnalysisIDs == nil {
		g.AnalysisIDs = []string{}
	}
	return &g, nil
}

// Get implements GrantStore.
func (s *PostgresStore) Get(ctx context.Context, userID string) (*models.AccessGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM access_grants WHERE user_id = $1`

	g, err := scanGrant(s.Pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("Get", err)
	}
	return g, nil
}

// Upsert implements GrantStore. analysis_ids is never touched on conflict.
func (s *PostgresStore) Upsert(ctx context.Context, grant models.AccessGrant) (models.AccessGrant, error) {
	query := `
        INSERT INTO access_grants (user_id, plan, paid_at, expires_at, customer_email, transaction_id, subscription_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id) DO UPDATE SET
            plan            = EXCLUDED.plan,
            paid_at         = EXCLUDED.paid_at,
            expires_at      = EXCLUDED.expires_at,
            customer_email  = COALESCE(NULLIF(EXCLUDED.customer_email, ''), access_grants.customer_email),
            transaction_id  = EXCLUDED.transaction_id,
            subscription_id = EXCLUDED.subscription_id,
            updated_at      = NOW()
        RETURNING ` + grantColumns

	g, err := scanGrant(s.Pool.QueryRow(ctx, query,
		grant.UserID,
		string(grant.Plan),
		grant.PaidAt,
		grant.ExpiresAt,
		grant.CustomerEmail,
		grant.TransactionID,
		grant.SubscriptionID,
	))
	if err != nil {
		return models.AccessGrant{}, storeError("Upsert", err)
	}
	return *g, nil
}

// AppendWithCeiling implements GrantStore with a single conditional UPDATE.
func (s *PostgresStore) AppendWithCeiling(ctx context.Context, userID, analysisID string, ceiling int, now time.Time) (AppendResult, error) {
	const op = "AppendWithCeiling"

	query := `
        UPDATE access_grants
        SET analysis_ids = array_append(analysis_ids, $2), updated_at = NOW()
        WHERE user_id = $1
          AND expires_at > $3
          AND cardinality(analysis_ids) < $4
          AND NOT ($2 = ANY(analysis_ids))
    `
	tag, err := s.Pool.Exec(ctx, query, userID, analysisID, now, ceiling)
	if err != nil {
		return Inactive, storeError(op, err)
	}
	if tag.RowsAffected() == 1 {
		return Appended, nil
	}

	g, err := s.Get(ctx, userID)
	if err != nil {
		return Inactive, err
	}
	switch {
	case !g.Active(now):
		return Inactive, nil
	case g.HasAnalysis(analysisID):
		return Appended, nil
	default:
		return Exhausted, nil
	}
}

// Append implements GrantStore.
func (s *PostgresStore) Append(ctx context.Context, userID, analysisID string) error {
	query := `
        UPDATE access_grants
        SET analysis_ids = array_append(analysis_ids, $2), updated_at = NOW()
        WHERE user_id = $1 AND NOT ($2 = ANY(analysis_ids))
    `
	_, err := s.Pool.Exec(ctx, query, userID, analysisID)
	return storeError("Append", err)
}

// Remove implements GrantStore.
func (s *PostgresStore) Remove(ctx context.Context, userID, analysisID string) error {
	query := `
        UPDATE access_grants
        SET analysis_ids = array_remove(analysis_ids, $2), updated_at = NOW()
        WHERE user_id = $1
    `
	_, err := s.Pool.Exec(ctx, query, userID, analysisID)
	return storeError("Remove", err)
}

// Claim implements FreeTierStore.
func (s *PostgresStore) Claim(ctx context.Context, userID string) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `INSERT INTO free_analyses (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return false, storeError("Claim", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Used implements FreeTierStore.
func (s *PostgresStore) Used(ctx context.Context, userID string) (bool, error) {
	var used bool
	err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM free_analyses WHERE user_id = $1)`, userID).Scan(&used)
	if err != nil {
		return false, storeError("Used", err)
	}
	return used, nil
}
