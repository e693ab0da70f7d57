package obsindex

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"

	"neodisc/internal/domain"
	"neodisc/internal/logger"
)

// RetryPolicy configures Retrying.
type RetryPolicy struct {
	// Attempts is the number of retries after the first try.
	Attempts int
	// Timeout bounds a single lookup attempt; zero means no bound.
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retrying retries lookups that fail with a transient error. Permanent
// errors and cancellation of the caller's context end the retry loop at once.
type Retrying struct {
	next   Index
	policy RetryPolicy
	log    *logger.Logger
}

func NewRetrying(next Index, policy RetryPolicy, log *logger.Logger) *Retrying {
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 200 * time.Millisecond
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Retrying{next: next, policy: policy, log: log}
}

func (r *Retrying) LookupByPermanent(ctx context.Context, id string) ([]domain.Observation, error) {
	return r.do(ctx, KindPermanent, id)
}

func (r *Retrying) LookupByProvisional(ctx context.Context, id string) ([]domain.Observation, error) {
	return r.do(ctx, KindProvisional, id)
}

func (r *Retrying) LookupByTracklet(ctx context.Context, id string) ([]domain.Observation, error) {
	return r.do(ctx, KindTracklet, id)
}

func (r *Retrying) do(ctx context.Context, kind, id string) ([]domain.Observation, error) {
	op := func() ([]domain.Observation, error) {
		actx, cancel := ctx, context.CancelFunc(func() {})
		if r.policy.Timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		}
		defer cancel()
		obs, err := lookup(actx, r.next, kind, id)
		if err == nil {
			return obs, nil
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.policy.InitialInterval
	eb.MaxInterval = r.policy.MaxInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.policy.Attempts)), ctx)
	notify := func(err error, wait time.Duration) {
		r.log.Warn("index lookup failed, retrying", "kind", kind, "key", id, "wait", wait, "error", err)
	}
	return backoff.RetryNotifyWithData(op, b, notify)
}

// IsRetryable reports whether a lookup error is transient: connection loss,
// serialization or deadlock aborts, server shutdown or overload, attempt
// timeouts and SQLite lock contention.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := strings.TrimSpace(pgErr.Code)
		switch {
		case strings.HasPrefix(code, "08"): // connection_exception
			return true
		case code == "40001", code == "40P01": // serialization_failure, deadlock_detected
			return true
		case code == "57P01", code == "57P02", code == "57P03": // admin/crash shutdown, cannot_connect_now
			return true
		case code == "53300": // too_many_connections
			return true
		}
		return false
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
