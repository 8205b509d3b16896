package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/campusconnect/events-backend/model"
)

// Resolver is the resolveAccount entry point: it wraps the engine in a
// bounded retry loop with exponential backoff. Transient failures
// (duplicate-key races, storage hiccups) are retried up to the cap;
// validation and conflict errors pass through untouched on the first
// attempt.
type Resolver struct {
	engine     *Engine
	store      Store
	logger     *zap.Logger
	maxRetries uint64
	baseDelay  time.Duration
}

// NewResolver builds a retry controller around an engine. maxRetries is
// the number of re-attempts after the first try, so maxRetries=3 means 4
// total attempts.
func NewResolver(engine *Engine, store Store, cfg Config, logger *zap.Logger) *Resolver {
	return &Resolver{
		engine:     engine,
		store:      store,
		logger:     logger,
		maxRetries: uint64(cfg.MaxRetries),
		baseDelay:  cfg.RetryBaseDelay,
	}
}

// Resolve maps a verified identity claim onto exactly one account, retrying
// transient failures. On cap exhaustion it returns PROVISIONING_FAILED and
// marks the in-flight record for this idempotency key (if any) as ERROR so
// the failure stays diagnosable.
func (r *Resolver) Resolve(ctx context.Context, externalID, email string) (*model.Account, error) {
	var acct *model.Account
	attempt := 0

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.baseDelay
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	op := func() error {
		attempt++
		resolved, err := r.engine.Resolve(ctx, externalID, email)
		if err == nil {
			acct = resolved
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		if isDuplicateKey(err) {
			// Another concurrent attempt won the race; the next attempt's
			// lookup phase will find the winner's record.
			r.logger.Info("lost account creation race, retrying",
				zap.String("external_id", externalID),
				zap.Int("attempt", attempt))
		} else {
			r.logger.Warn("transient storage error during reconciliation, retrying",
				zap.String("external_id", externalID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		retriesTotal.Inc()
		return err
	}

	err := backoff.Retry(op, backoff.WithMaxRetries(backoff.WithContext(bo, ctx), r.maxRetries))
	if err == nil {
		resolveTotal.WithLabelValues("resolved").Inc()
		return acct, nil
	}

	if !IsRetryable(err) {
		resolveTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}

	failure := exhaustedError(
		fmt.Sprintf("no attempt succeeded after %d tries", attempt), err)
	resolveTotal.WithLabelValues("exhausted").Inc()

	if key, kerr := DeriveIdempotencyKey(externalID, email); kerr == nil {
		if merr := r.store.MarkError(ctx, key, failure.Error()); merr != nil {
			r.logger.Error("failed to mark exhausted provisioning record",
				zap.String("external_id", externalID),
				zap.Error(merr))
		}
	}

	r.logger.Error("account provisioning exhausted retry budget",
		zap.String("external_id", externalID),
		zap.Int("attempts", attempt),
		zap.Error(err))
	return nil, failure
}

func outcomeLabel(err error) string {
	switch ClassOf(err) {
	case ClassValidation:
		return "validation_error"
	case ClassConflict:
		return "conflict"
	case ClassExhausted:
		return "exhausted"
	default:
		return "error"
	}
}
