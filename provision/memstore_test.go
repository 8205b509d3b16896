package provision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/campusconnect/events-backend/model"
)

// memStore is an in-memory Store used by the provisioning tests. A single
// mutex around Reconcile stands in for the serializable transaction, and
// the insert/update paths enforce the same uniqueness rules the accounts
// collection carries.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account // by account id

	// counters carry their own lock: the engine increments the username
	// sequence from inside a Reconcile callback.
	cmu      sync.Mutex
	counters map[string]int64

	// fault injection
	reconcileFailures int   // fail this many Reconcile calls up front
	sequenceErr       error // NextSequence failure
	promoteErr        error // PromoteToActive failure

	reconcileCalls int
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*model.Account),
		counters: make(map[string]int64),
	}
}

func cloneAccount(a *model.Account) *model.Account {
	dup := *a
	dup.StateTransitions = append([]model.StateTransition(nil), a.StateTransitions...)
	if a.CreationMetadata != nil {
		dup.CreationMetadata = make(map[string]string, len(a.CreationMetadata))
		for k, v := range a.CreationMetadata {
			dup.CreationMetadata[k] = v
		}
	}
	if a.LinkedAt != nil {
		linked := *a.LinkedAt
		dup.LinkedAt = &linked
	}
	return &dup
}

func checkUnique(accounts map[string]*model.Account, candidate *model.Account) error {
	for _, existing := range accounts {
		if existing.ID == candidate.ID {
			continue
		}
		if candidate.ExternalID != "" && existing.ExternalID == candidate.ExternalID {
			return fmt.Errorf("unique constraint violated on external_id %q", candidate.ExternalID)
		}
		if candidate.Email != "" && existing.Email == candidate.Email {
			return fmt.Errorf("unique constraint violated on email %q", candidate.Email)
		}
		if candidate.PendingKey != "" && existing.PendingKey == candidate.PendingKey {
			return fmt.Errorf("unique constraint violated on pending_key %q", candidate.PendingKey)
		}
		if existing.Username == candidate.Username {
			return fmt.Errorf("unique constraint violated on username %q", candidate.Username)
		}
	}
	return nil
}

func (m *memStore) Reconcile(_ context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reconcileCalls++
	if m.reconcileFailures > 0 {
		m.reconcileFailures--
		return fmt.Errorf("storage temporarily unavailable")
	}

	// Transaction scratch space: mutations land on staged copies and only
	// replace the committed map when fn succeeds.
	staged := make(map[string]*model.Account, len(m.accounts))
	for id, acct := range m.accounts {
		staged[id] = cloneAccount(acct)
	}

	tx := &memTx{staged: staged}
	if err := fn(context.Background(), tx); err != nil {
		return err
	}
	m.accounts = staged
	return nil
}

func (m *memStore) NextSequence(_ context.Context, counter string) (int64, error) {
	m.cmu.Lock()
	defer m.cmu.Unlock()
	if m.sequenceErr != nil {
		return 0, m.sequenceErr
	}
	m.counters[counter]++
	return m.counters[counter], nil
}

func (m *memStore) PromoteToActive(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.promoteErr != nil {
		return m.promoteErr
	}
	acct, ok := m.accounts[id]
	if !ok || acct.AccountState != model.StatePending {
		return nil
	}
	acct.Transition(model.StateActive, "activated")
	return nil
}

func (m *memStore) MarkError(_ context.Context, key, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acct := range m.accounts {
		if acct.PendingKey == key && acct.AccountState.InFlight() {
			acct.MarkError(lastError)
			return nil
		}
	}
	return nil
}

func (m *memStore) DeleteStale(_ context.Context, state model.AccountState, cutoff time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, acct := range m.accounts {
		if removed >= limit {
			break
		}
		if acct.AccountState == state && acct.CreatedAt.Before(cutoff) {
			delete(m.accounts, id)
			removed++
		}
	}
	return removed, nil
}

func (m *memStore) StaleInState(_ context.Context, state model.AccountState, cutoff time.Time, limit int) ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []*model.Account
	for _, acct := range m.accounts {
		if len(stale) >= limit {
			break
		}
		if acct.AccountState == state && acct.CreatedAt.Before(cutoff) {
			stale = append(stale, cloneAccount(acct))
		}
	}
	return stale, nil
}

func (m *memStore) CountsByState(_ context.Context) (map[model.AccountState]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.AccountState]int)
	for _, acct := range m.accounts {
		counts[acct.AccountState]++
	}
	return counts, nil
}

func (m *memStore) AccountByID(_ context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acct, ok := m.accounts[id]; ok {
		return cloneAccount(acct), nil
	}
	return nil, nil
}

// direct accessors for test assertions

func (m *memStore) accountCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

func (m *memStore) put(acct *model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acct.ID] = cloneAccount(acct)
}

func (m *memStore) get(id string) *model.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acct, ok := m.accounts[id]; ok {
		return cloneAccount(acct)
	}
	return nil
}

// memTx is the transactional view over staged copies.
type memTx struct {
	staged map[string]*model.Account
}

func (t *memTx) AccountByExternalID(_ context.Context, externalID string) (*model.Account, error) {
	for _, acct := range t.staged {
		if acct.ExternalID == externalID {
			return cloneAccount(acct), nil
		}
	}
	return nil, nil
}

func (t *memTx) InFlightByKey(_ context.Context, key string) (*model.Account, error) {
	for _, acct := range t.staged {
		if acct.PendingKey == key && acct.AccountState.InFlight() {
			return cloneAccount(acct), nil
		}
	}
	return nil, nil
}

func (t *memTx) AccountByEmail(_ context.Context, email string) (*model.Account, error) {
	for _, acct := range t.staged {
		if acct.Email == email {
			return cloneAccount(acct), nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertAccount(_ context.Context, acct *model.Account) error {
	if err := checkUnique(t.staged, acct); err != nil {
		return err
	}
	if _, exists := t.staged[acct.ID]; exists {
		return fmt.Errorf("duplicate account id %q", acct.ID)
	}
	t.staged[acct.ID] = cloneAccount(acct)
	return nil
}

func (t *memTx) DeleteAccount(_ context.Context, acct *model.Account) error {
	delete(t.staged, acct.ID)
	return nil
}

func (t *memTx) UpdateAccount(_ context.Context, acct *model.Account) error {
	if _, exists := t.staged[acct.ID]; !exists {
		return fmt.Errorf("account %q does not exist", acct.ID)
	}
	if err := checkUnique(t.staged, acct); err != nil {
		return err
	}
	t.staged[acct.ID] = cloneAccount(acct)
	return nil
}
