package provision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/campusconnect/events-backend/model"
)

// Engine executes the find-or-create-or-link protocol for one identity
// claim. A single Engine call performs exactly one of: a no-op lookup, a
// link mutation, or a new-record creation, all inside one Reconcile
// transaction.
type Engine struct {
	store  Store
	logger *zap.Logger
}

// NewEngine builds a reconciliation engine on top of a store.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Resolve maps a verified IdP identity onto exactly one local account.
//
// Inside the transaction the protocol is, in order: lookup by external id
// (the steady-state fast path), lookup of an in-flight record by
// idempotency key (concurrent duplicate requests converge here), lookup by
// normalized email (link a pre-IdP account, or reject a cross-identity
// collision), and finally creation of a fresh account in CREATING advanced
// to PENDING. A lookup that hits an ERROR record deletes it and continues,
// so a failed prior attempt never blocks re-provisioning of the same
// identity. After commit a best-effort, non-transactional step promotes
// PENDING to ACTIVE; its failure is logged, not surfaced, since the caller
// already holds a durably resolvable account.
func (e *Engine) Resolve(ctx context.Context, externalID, email string) (*model.Account, error) {
	key, err := DeriveIdempotencyKey(externalID, email)
	if err != nil {
		return nil, err
	}
	normalized := NormalizeEmail(email)

	var result *model.Account

	err = e.store.Reconcile(ctx, func(ctx context.Context, tx Tx) error {
		acct, err := tx.AccountByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if acct != nil {
			if acct.AccountState != model.StateError {
				result = acct
				return nil
			}
			// A prior exhausted attempt left this record behind. Reclaim it
			// now rather than serving a failed account until the sweep runs.
			if err := tx.DeleteAccount(ctx, acct); err != nil {
				return err
			}
			e.logger.Info("reclaimed failed account record during re-resolution",
				zap.String("account_id", acct.ID),
				zap.String("external_id", externalID))
		}

		acct, err = tx.InFlightByKey(ctx, key)
		if err != nil {
			return err
		}
		if acct != nil {
			result = acct
			return nil
		}

		acct, err = tx.AccountByEmail(ctx, normalized)
		if err != nil {
			return err
		}
		if acct != nil && acct.AccountState == model.StateError {
			if err := tx.DeleteAccount(ctx, acct); err != nil {
				return err
			}
			e.logger.Info("reclaimed failed account record during re-resolution",
				zap.String("account_id", acct.ID),
				zap.String("email", normalized))
			acct = nil
		}
		if acct != nil {
			switch {
			case acct.ExternalID == "":
				acct.MarkLinked(externalID, key)
				if err := tx.UpdateAccount(ctx, acct); err != nil {
					return err
				}
				e.logger.Info("linked external identity to existing account",
					zap.String("account_id", acct.ID),
					zap.String("external_id", externalID))
				result = acct
				return nil
			case acct.ExternalID != externalID:
				return conflictError(fmt.Sprintf(
					"email %s already belongs to a different external identity", normalized))
			default:
				result = acct
				return nil
			}
		}

		fresh := model.NewAccount(e.defaultUsername(ctx), normalized, externalID, key)
		fresh.CreationMetadata["creation_method"] = "idp_reconciliation"
		if err := tx.InsertAccount(ctx, fresh); err != nil {
			return err
		}
		fresh.Transition(model.StatePending, "persisted")
		if err := tx.UpdateAccount(ctx, fresh); err != nil {
			return err
		}
		result = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.AccountState == model.StatePending {
		if err := e.store.PromoteToActive(ctx, result.ID); err != nil {
			e.logger.Warn("post-commit activation failed, account stays PENDING until re-resolved or swept",
				zap.String("account_id", result.ID),
				zap.Error(err))
		} else {
			result.Transition(model.StateActive, "activated")
		}
	}

	return result, nil
}

// defaultUsername draws the next value from the shared username counter.
// When the atomic increment itself is unavailable it degrades to a
// timestamp+random name rather than failing the whole resolution.
func (e *Engine) defaultUsername(ctx context.Context) string {
	seq, err := e.store.NextSequence(ctx, model.UsernameCounter)
	if err != nil {
		e.logger.Warn("username counter increment failed, falling back to probabilistic name",
			zap.Error(err))
		return FallbackUsername()
	}
	return DefaultUsername(seq)
}
