package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type RateLimitRepo struct{ pool *pgxpool.Pool }

func NewRateLimitRepo(pool *pgxpool.Pool) *RateLimitRepo { return &RateLimitRepo{pool: pool} }

// Hit counts one request against key in a fixed window and returns the count so far. A window
// that started more than `window` ago is reset.
func (r *RateLimitRepo) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	const q = `INSERT INTO rate_limits (key, count, window_start, expires_at)
VALUES ($1, 1, $2, $3)
ON CONFLICT (key) DO UPDATE SET
    count = CASE WHEN rate_limits.window_start <= $4 THEN 1 ELSE rate_limits.count + 1 END,
    window_start = CASE WHEN rate_limits.window_start <= $4 THEN $2 ELSE rate_limits.window_start END,
    expires_at = CASE WHEN rate_limits.window_start <= $4 THEN $3 ELSE rate_limits.expires_at END
RETURNING count`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var count int
	err := r.pool.QueryRow(ctx, q, key, now, now.Add(window), now.Add(-window)).Scan(&count)
	return count, err
}

// CleanupExpired removes counters whose window is over.
func (r *RateLimitRepo) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ct, err := r.pool.Exec(ctx, `DELETE FROM rate_limits WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
