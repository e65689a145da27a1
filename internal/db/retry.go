package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// IsTransient reports whether err is a connection-level failure worth one
// reconnect-and-retry. Constraint violations and cancelled contexts are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P01..57P03: server shutting down.
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03"
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// runTx runs fn in one transaction. A transient failure triggers a single
// reconnect (pool ping) and one more attempt; the second result is final.
func (p *Pool) runTx(ctx context.Context, label string, fn func(tx *gorm.DB) error) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	err := p.gdb.WithContext(ctx).Transaction(fn)
	if err == nil || !IsTransient(err) || ctx.Err() != nil {
		return err
	}

	p.logger.Warn().Err(err).Str("operation", label).Msg("transient database error, reconnecting")
	if pingErr := p.sqlDB.PingContext(ctx); pingErr != nil {
		return fmt.Errorf("%s: reconnect after %v: %w", label, err, pingErr)
	}

	if retryErr := p.gdb.WithContext(ctx).Transaction(fn); retryErr != nil {
		return fmt.Errorf("%s: retry failed: %w", label, retryErr)
	}
	return nil
}

func (p *Pool) waitForConnection(ctx context.Context, retries int, delay time.Duration) error {
	if retries < 0 {
		retries = 0
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = p.sqlDB.PingContext(ctx); err == nil {
			return nil
		}
		if attempt == retries {
			break
		}
		p.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", retries+1).
			Dur("retry_in", delay).
			Msg("database not reachable yet")
		if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
			return fmt.Errorf("wait for database: %w", errors.Join(err, sleepErr))
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
