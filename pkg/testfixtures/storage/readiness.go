package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// waitForDatabase pings the database until it answers or the timeout lapses.
func waitForDatabase(driverName, uri string, timeout time.Duration) error {
	db, err := sql.Open(driverName, uri)
	if err != nil {
		return fmt.Errorf("open connection to %s: %w", driverName, err)
	}
	defer func() { _ = db.Close() }()

	backoffPolicy := backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(timeout))
	if err := backoff.Retry(db.Ping, backoffPolicy); err != nil {
		return fmt.Errorf("ping %s database: %w", driverName, err)
	}

	return nil
}
