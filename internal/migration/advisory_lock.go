package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// migrationLockKey namespaces this service's deploy lock so migrations never
// contend with another application sharing the same Postgres instance.
const migrationLockKey int64 = 7_305_118_246

type unlockFunc func(ctx context.Context) error

// acquireMigrationLock takes a session-level advisory lock guarding the
// schema. It fails fast instead of blocking when another deploy holds it.
func acquireMigrationLock(ctx context.Context, db *sql.DB) (unlockFunc, error) {
	if db == nil {
		return nil, errors.New("migration lock requires a database handle")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var locked bool
	if err := db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", migrationLockKey).Scan(&locked); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	if !locked {
		return nil, errors.New("migration lock held by another process")
	}

	unlock := func(unlockCtx context.Context) error {
		if unlockCtx == nil {
			unlockCtx = context.Background()
		}
		var released bool
		if err := db.QueryRowContext(unlockCtx, "SELECT pg_advisory_unlock($1)", migrationLockKey).Scan(&released); err != nil {
			return fmt.Errorf("release migration lock: %w", err)
		}
		if !released {
			return errors.New("migration lock was not held by this session")
		}
		return nil
	}
	return unlock, nil
}
