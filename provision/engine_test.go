package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusconnect/events-backend/model"
)

func newTestEngine(store Store) *Engine {
	return NewEngine(store, zap.NewNop())
}

func TestEngine_CreatesAccountOnFirstContact(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	acct, err := engine.Resolve(context.Background(), "idp|42", "Student@Vanderbilt.EDU")
	require.NoError(t, err)
	require.NotNil(t, acct)

	assert.Equal(t, "student@vanderbilt.edu", acct.Email)
	assert.Equal(t, "idp|42", acct.ExternalID)
	assert.Equal(t, "tempuser", acct.Username)
	assert.Equal(t, model.StateActive, acct.AccountState)
	assert.NotEmpty(t, acct.ID)
	assert.Equal(t, 1, store.accountCount())

	// Transition log walks every edge in order
	var path []model.AccountState
	for _, tr := range acct.StateTransitions {
		path = append(path, tr.To)
	}
	assert.Equal(t, []model.AccountState{
		model.StateCreating, model.StatePending, model.StateActive,
	}, path)
}

func TestEngine_DefaultUsernameSequence(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	for i := 1; i <= 8; i++ {
		acct, err := engine.Resolve(context.Background(),
			fmt.Sprintf("idp|%d", i), fmt.Sprintf("user%d@x.edu", i))
		require.NoError(t, err)
		if i == 1 {
			assert.Equal(t, "tempuser", acct.Username)
		} else {
			assert.Equal(t, fmt.Sprintf("tempuser%d", i-1), acct.Username)
		}
	}
	assert.Equal(t, 8, store.accountCount())
}

func TestEngine_ReturningUserFastPath(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	first, err := engine.Resolve(context.Background(), "idp|7", "a@x.edu")
	require.NoError(t, err)

	second, err := engine.Resolve(context.Background(), "idp|7", "a@x.edu")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.accountCount())
}

func TestEngine_IdempotencyUnderConcurrency(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acct, err := engine.Resolve(context.Background(), "idp|same", "same@x.edu")
			errs[i] = err
			if acct != nil {
				ids[i] = acct.ID
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, store.accountCount(), "all calls must converge on one account")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestEngine_DistinctIdentitiesUnderConcurrency(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Resolve(context.Background(),
				fmt.Sprintf("idp|c%d", i), fmt.Sprintf("c%d@x.edu", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	require.Equal(t, n, store.accountCount())

	// No duplicate usernames
	seen := map[string]bool{}
	counts, err := store.CountsByState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, counts[model.StateActive])
	for i := 0; i < n; i++ {
		acct, err := engine.Resolve(context.Background(),
			fmt.Sprintf("idp|c%d", i), fmt.Sprintf("c%d@x.edu", i))
		require.NoError(t, err)
		assert.False(t, seen[acct.Username], "duplicate username %q", acct.Username)
		seen[acct.Username] = true
	}
}

func TestEngine_LinksLegacyAccountByEmail(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	legacy := &model.Account{
		ID:           "legacy-1",
		Username:     "mvb",
		Email:        "a@x.edu",
		AccountState: model.StateActive,
	}
	store.put(legacy)

	acct, err := engine.Resolve(context.Background(), "idp|1", "a@x.edu")
	require.NoError(t, err)

	assert.Equal(t, "legacy-1", acct.ID, "must adopt the legacy account, not create a new one")
	assert.Equal(t, "idp|1", acct.ExternalID)
	assert.Equal(t, model.StateActive, acct.AccountState)
	assert.NotNil(t, acct.LinkedAt)
	assert.Equal(t, 1, store.accountCount())
}

func TestEngine_LinksCompletedAccountWithoutRewindingState(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	done := &model.Account{
		ID:           "legacy-done",
		Username:     "mvb",
		Email:        "done@x.edu",
		AccountState: model.StateComplete,
	}
	store.put(done)

	acct, err := engine.Resolve(context.Background(), "idp|99", "done@x.edu")
	require.NoError(t, err)

	assert.Equal(t, "legacy-done", acct.ID)
	assert.Equal(t, "idp|99", acct.ExternalID)
	assert.NotNil(t, acct.LinkedAt)
	assert.Equal(t, model.StateComplete, acct.AccountState, "a completed profile must survive linking")
	assert.Equal(t, model.StateComplete, store.get("legacy-done").AccountState)
	assert.Equal(t, 1, store.accountCount())
}

func TestEngine_ReclaimsFailedRecordOnReResolution(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	failed := model.NewAccount("tempuser", "a@x.edu", "idp|1", "key-1")
	failed.MarkError("storage temporarily unavailable")
	store.put(failed)

	acct, err := engine.Resolve(context.Background(), "idp|1", "a@x.edu")
	require.NoError(t, err)

	assert.NotEqual(t, failed.ID, acct.ID, "the failed record is replaced, not resurrected")
	assert.Equal(t, model.StateActive, acct.AccountState)
	assert.Equal(t, "a@x.edu", acct.Email)
	assert.Nil(t, store.get(failed.ID))
	assert.Equal(t, 1, store.accountCount())
}

func TestEngine_RejectsCrossIdentityEmailCollision(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	linked, err := engine.Resolve(context.Background(), "idp|1", "a@x.edu")
	require.NoError(t, err)
	before := store.get(linked.ID)

	_, err = engine.Resolve(context.Background(), "idp|2", "a@x.edu")
	require.Error(t, err)
	assert.Equal(t, CodeAccountConflict, CodeOf(err))
	assert.Equal(t, ClassConflict, ClassOf(err))

	// The existing account is completely unmodified
	after := store.get(linked.ID)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, store.accountCount())
}

func TestEngine_ValidationFailures(t *testing.T) {
	engine := newTestEngine(newMemStore())

	_, err := engine.Resolve(context.Background(), "", "a@x.edu")
	assert.Equal(t, CodeInvalidIdentity, CodeOf(err))

	_, err = engine.Resolve(context.Background(), "idp|1", "not-an-email")
	assert.Equal(t, CodeInvalidEmail, CodeOf(err))
}

func TestEngine_CounterOutageFallsBackToProbabilisticName(t *testing.T) {
	store := newMemStore()
	store.sequenceErr = errors.New("counters collection unavailable")
	engine := newTestEngine(store)

	acct, err := engine.Resolve(context.Background(), "idp|9", "b@x.edu")
	require.NoError(t, err)
	assert.NotEqual(t, "tempuser", acct.Username)
	assert.Contains(t, acct.Username, "tempuser")
}

func TestEngine_ActivationFailureLeavesPending(t *testing.T) {
	store := newMemStore()
	store.promoteErr = errors.New("activation write timed out")
	engine := newTestEngine(store)

	acct, err := engine.Resolve(context.Background(), "idp|5", "p@x.edu")
	require.NoError(t, err, "activation failure must not fail the call")
	assert.Equal(t, model.StatePending, acct.AccountState)

	// A later resolve converges on the same record and re-attempts
	// activation.
	store.promoteErr = nil
	again, err := engine.Resolve(context.Background(), "idp|5", "p@x.edu")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, again.ID)
	assert.Equal(t, model.StateActive, again.AccountState)
}

func TestEngine_EmailCaseVariantsConverge(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	first, err := engine.Resolve(context.Background(), "idp|c", "Mixed.Case@X.EDU")
	require.NoError(t, err)
	second, err := engine.Resolve(context.Background(), "idp|c", "mixed.case@x.edu")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "mixed.case@x.edu", first.Email)
	assert.Equal(t, 1, store.accountCount())
}
