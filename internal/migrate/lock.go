package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"

	"github.com/stratadb/strata/internal/dialect"
)

// lockPollInterval is how often a blocked process retries the migration
// lock.
const lockPollInterval = 250 * time.Millisecond

const releaseTimeout = 5 * time.Second

var errLockBusy = errors.New("migration lock busy")

// acquireLock takes the dialect's migration lock on a dedicated connection,
// polling at a constant interval until timeout elapses. The returned release
// function unlocks on the same connection and closes it; call it exactly
// once.
func acquireLock(ctx context.Context, db *sqlx.DB, d dialect.Dialect, key int64, timeout time.Duration, logger *slog.Logger) (func(), error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("open lock connection: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempt := func() error {
		ok, err := d.AcquireLock(lockCtx, conn, key)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockBusy
		}
		return nil
	}
	policy := backoff.WithContext(backoff.NewConstantBackOff(lockPollInterval), lockCtx)
	if err := backoff.Retry(attempt, policy); err != nil {
		conn.Close()
		if ctx.Err() == nil && (errors.Is(err, errLockBusy) || errors.Is(err, context.DeadlineExceeded)) {
			return nil, &LockTimeoutError{Key: key, Timeout: timeout}
		}
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := d.ReleaseLock(releaseCtx, conn, key); err != nil {
			logger.Warn("could not release migration lock", "key", key, "error", err)
		}
		conn.Close()
	}
	return release, nil
}
