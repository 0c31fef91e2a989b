package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the part of *pgxpool.Pool the database check needs.
type Pool interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

// DatabaseCheck pings the pool and fails while every connection is checked
// out.
func DatabaseCheck(pool Pool) CheckFunc {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		st := pool.Stat()
		if st.MaxConns() > 0 && st.AcquiredConns() >= st.MaxConns() {
			return errors.Errorf("pool saturated: %d/%d connections acquired", st.AcquiredConns(), st.MaxConns())
		}
		return nil
	}
}

// GoroutineCountCheck fails when more than threshold goroutines are running.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}
