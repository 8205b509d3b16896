package provision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusconnect/events-backend/model"
)

func newTestResolver(store Store, maxRetries int) *Resolver {
	cfg := DefaultConfig()
	cfg.MaxRetries = maxRetries
	cfg.RetryBaseDelay = time.Millisecond
	return NewResolver(NewEngine(store, zap.NewNop()), store, cfg, zap.NewNop())
}

func TestResolver_SucceedsFirstAttempt(t *testing.T) {
	store := newMemStore()
	resolver := newTestResolver(store, 3)

	acct, err := resolver.Resolve(context.Background(), "idp|1", "a@x.edu")
	require.NoError(t, err)
	assert.Equal(t, model.StateActive, acct.AccountState)
	assert.Equal(t, 1, store.reconcileCalls)
}

func TestResolver_RetriesTransientFailures(t *testing.T) {
	store := newMemStore()
	store.reconcileFailures = 2
	resolver := newTestResolver(store, 3)

	acct, err := resolver.Resolve(context.Background(), "idp|1", "a@x.edu")
	require.NoError(t, err)
	assert.NotNil(t, acct)
	assert.Equal(t, 3, store.reconcileCalls, "two failures then the winning attempt")
}

func TestResolver_ExhaustsCapAndMarksError(t *testing.T) {
	store := newMemStore()
	store.reconcileFailures = 100
	resolver := newTestResolver(store, 3)

	// A record already in flight for this idempotency key gets marked
	// ERROR when the cap is exceeded.
	key, err := DeriveIdempotencyKey("idp|1", "a@x.edu")
	require.NoError(t, err)
	inflight := model.NewAccount("tempuser", "a@x.edu", "idp|1", key)
	store.put(inflight)

	_, err = resolver.Resolve(context.Background(), "idp|1", "a@x.edu")
	require.Error(t, err)
	assert.Equal(t, CodeProvisioningFailed, CodeOf(err))
	assert.Equal(t, ClassExhausted, ClassOf(err))
	assert.Equal(t, 4, store.reconcileCalls, "cap of 3 retries means 4 total attempts")

	marked := store.get(inflight.ID)
	require.NotNil(t, marked)
	assert.Equal(t, model.StateError, marked.AccountState)
	assert.NotEmpty(t, marked.LastError)
}

func TestResolver_MarkErrorRecordsPriorState(t *testing.T) {
	store := newMemStore()
	store.reconcileFailures = 100
	resolver := newTestResolver(store, 1)

	key, err := DeriveIdempotencyKey("idp|1", "a@x.edu")
	require.NoError(t, err)
	inflight := model.NewAccount("tempuser", "a@x.edu", "idp|1", key)
	inflight.Transition(model.StatePending, "persisted")
	store.put(inflight)

	_, err = resolver.Resolve(context.Background(), "idp|1", "a@x.edu")
	require.Error(t, err)

	marked := store.get(inflight.ID)
	require.NotNil(t, marked)
	last := marked.StateTransitions[len(marked.StateTransitions)-1]
	assert.Equal(t, model.StatePending, last.From, "the audit log must record the state the record actually failed from")
	assert.Equal(t, model.StateError, last.To)
}

func TestResolver_ConflictIsNeverRetried(t *testing.T) {
	store := newMemStore()
	resolver := newTestResolver(store, 3)

	_, err := resolver.Resolve(context.Background(), "idp|1", "a@x.edu")
	require.NoError(t, err)
	store.reconcileCalls = 0

	_, err = resolver.Resolve(context.Background(), "idp|2", "a@x.edu")
	require.Error(t, err)
	assert.Equal(t, CodeAccountConflict, CodeOf(err))
	assert.Equal(t, 1, store.reconcileCalls, "fatal errors propagate immediately")
}

func TestResolver_ValidationIsNeverRetried(t *testing.T) {
	store := newMemStore()
	resolver := newTestResolver(store, 3)

	_, err := resolver.Resolve(context.Background(), "", "a@x.edu")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidIdentity, CodeOf(err))
	assert.Equal(t, 0, store.reconcileCalls, "validation fails before any storage work")
}

func TestResolver_DuplicateKeyRaceConvergesOnWinner(t *testing.T) {
	store := newMemStore()
	resolver := newTestResolver(store, 3)

	// Simulate losing the insert race: the winner's record appears
	// between this call's failed attempt and its retry.
	store.reconcileFailures = 1
	winner, err := DeriveIdempotencyKey("idp|1", "a@x.edu")
	require.NoError(t, err)
	raced := model.NewAccount("tempuser", "a@x.edu", "idp|1", winner)
	raced.Transition(model.StatePending, "persisted")
	store.put(raced)

	acct, err := resolver.Resolve(context.Background(), "idp|1", "a@x.edu")
	require.NoError(t, err)
	assert.Equal(t, raced.ID, acct.ID, "retry finds the winner's record")
	assert.Equal(t, 1, store.accountCount())
}
