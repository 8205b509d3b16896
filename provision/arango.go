package provision

import (
	"context"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"

	"github.com/campusconnect/events-backend/database"
	"github.com/campusconnect/events-backend/model"
)

// aqlRunner is satisfied by both arangodb.Database and a running
// arangodb.Transaction, so the same lookup helpers serve transactional
// and standalone access.
type aqlRunner interface {
	Query(ctx context.Context, query string, opts *arangodb.QueryOptions) (arangodb.Cursor, error)
}

var inFlightStates = []string{string(model.StateCreating), string(model.StatePending)}

// ArangoStore is the production Store backed by the accounts and counters
// collections.
type ArangoStore struct {
	db database.DBConnection
}

// NewArangoStore wraps a database connection as a provisioning store.
func NewArangoStore(db database.DBConnection) *ArangoStore {
	return &ArangoStore{db: db}
}

// Reconcile runs fn inside a stream transaction holding an exclusive lock
// on the accounts collection. WaitForSync makes the commit durable before
// the caller proceeds; the exclusive lock keeps two concurrent protocol
// runs from interleaving their lookup and insert phases.
func (s *ArangoStore) Reconcile(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	cols := arangodb.TransactionCollections{
		Exclusive: []string{database.CollectionAccounts},
	}
	opts := &arangodb.BeginTransactionOptions{WaitForSync: true}

	return s.db.Database.WithTransaction(ctx, cols, opts, nil, nil,
		func(ctx context.Context, trx arangodb.Transaction) error {
			return fn(ctx, &arangoTx{run: trx})
		})
}

// NextSequence performs the single atomic increment-and-fetch on the named
// counter document, creating it on first use.
func (s *ArangoStore) NextSequence(ctx context.Context, counter string) (int64, error) {
	query := `
		UPSERT { name: @name }
			INSERT { name: @name, sequence: 1 }
			UPDATE { sequence: OLD.sequence + 1 }
		IN counters OPTIONS { exclusive: true }
		RETURN NEW
	`
	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"name": counter},
	})
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	var doc model.Counter
	if _, err := cursor.ReadDocument(ctx, &doc); err != nil {
		return 0, err
	}
	return doc.Sequence, nil
}

// PromoteToActive is the best-effort post-commit activation step. The
// filter on PENDING makes it idempotent and safe against accounts that
// moved on in the meantime.
func (s *ArangoStore) PromoteToActive(ctx context.Context, id string) error {
	query := `
		FOR a IN accounts
			FILTER a.id == @id AND a.account_state == @pending
			UPDATE a WITH {
				account_state: @active,
				pending_key: null,
				state_transitions: APPEND(a.state_transitions, @transition)
			} IN accounts OPTIONS { keepNull: false }
	`
	_, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"id":      id,
			"pending": string(model.StatePending),
			"active":  string(model.StateActive),
			"transition": model.StateTransition{
				From:      model.StatePending,
				To:        model.StateActive,
				Timestamp: time.Now().UTC(),
				Reason:    "activated",
			},
		},
	})
	return err
}

// MarkError moves the in-flight account holding key into ERROR so the
// failure stays inspectable until the reclamation sweep purges it.
func (s *ArangoStore) MarkError(ctx context.Context, key, lastError string) error {
	query := `
		FOR a IN accounts
			FILTER a.pending_key == @key AND a.account_state IN @inflight
			UPDATE a WITH {
				account_state: @error,
				last_error: @lastError,
				pending_key: null,
				state_transitions: APPEND(a.state_transitions, {
					from: a.account_state,
					to: @error,
					timestamp: @now,
					reason: @lastError
				})
			} IN accounts OPTIONS { keepNull: false }
	`
	_, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"key":       key,
			"inflight":  inFlightStates,
			"error":     string(model.StateError),
			"lastError": lastError,
			"now":       time.Now().UTC(),
		},
	})
	return err
}

// DeleteStale removes up to limit accounts stuck in state since before
// cutoff.
func (s *ArangoStore) DeleteStale(ctx context.Context, state model.AccountState, cutoff time.Time, limit int) (int, error) {
	query := `
		FOR a IN accounts
			FILTER a.account_state == @state AND a.created_at < @cutoff
			LIMIT @limit
			REMOVE a IN accounts
			COLLECT WITH COUNT INTO removed
			RETURN removed
	`
	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"state":  string(state),
			"cutoff": cutoff.UTC(),
			"limit":  limit,
		},
	})
	if err != nil {
		return 0, err
	}
	defer cursor.Close()

	var removed int
	if cursor.HasMore() {
		if _, err := cursor.ReadDocument(ctx, &removed); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

// StaleInState returns up to limit accounts stuck in state since before
// cutoff, oldest first.
func (s *ArangoStore) StaleInState(ctx context.Context, state model.AccountState, cutoff time.Time, limit int) ([]*model.Account, error) {
	query := `
		FOR a IN accounts
			FILTER a.account_state == @state AND a.created_at < @cutoff
			SORT a.created_at ASC
			LIMIT @limit
			RETURN a
	`
	cursor, err := s.db.Database.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{
			"state":  string(state),
			"cutoff": cutoff.UTC(),
			"limit":  limit,
		},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var accounts []*model.Account
	for cursor.HasMore() {
		var acct model.Account
		if _, err := cursor.ReadDocument(ctx, &acct); err == nil {
			accounts = append(accounts, &acct)
		}
	}
	return accounts, nil
}

// CountsByState aggregates account totals per lifecycle state.
func (s *ArangoStore) CountsByState(ctx context.Context) (map[model.AccountState]int, error) {
	query := `
		FOR a IN accounts
			COLLECT state = a.account_state WITH COUNT INTO total
			RETURN { state, total }
	`
	cursor, err := s.db.Database.Query(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	counts := make(map[model.AccountState]int)
	for cursor.HasMore() {
		var row struct {
			State string `json:"state"`
			Total int    `json:"total"`
		}
		if _, err := cursor.ReadDocument(ctx, &row); err == nil {
			counts[model.AccountState(row.State)] = row.Total
		}
	}
	return counts, nil
}

// AccountByID fetches one account by its opaque id.
func (s *ArangoStore) AccountByID(ctx context.Context, id string) (*model.Account, error) {
	return readOneAccount(ctx, s.db.Database,
		`FOR a IN accounts FILTER a.id == @value LIMIT 1 RETURN a`, id)
}

// arangoTx provides the Tx surface over a running stream transaction.
type arangoTx struct {
	run aqlRunner
}

func (t *arangoTx) AccountByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	return readOneAccount(ctx, t.run,
		`FOR a IN accounts FILTER a.external_id == @value LIMIT 1 RETURN a`, externalID)
}

func (t *arangoTx) InFlightByKey(ctx context.Context, key string) (*model.Account, error) {
	query := `
		FOR a IN accounts
			FILTER a.pending_key == @key AND a.account_state IN @inflight
			LIMIT 1
			RETURN a
	`
	cursor, err := t.run.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"key": key, "inflight": inFlightStates},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil, nil
	}
	var acct model.Account
	if _, err := cursor.ReadDocument(ctx, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (t *arangoTx) AccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return readOneAccount(ctx, t.run,
		`FOR a IN accounts FILTER a.email == @value LIMIT 1 RETURN a`, email)
}

func (t *arangoTx) InsertAccount(ctx context.Context, acct *model.Account) error {
	_, err := t.run.Query(ctx, `INSERT @account INTO accounts`, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"account": acct},
	})
	return err
}

func (t *arangoTx) UpdateAccount(ctx context.Context, acct *model.Account) error {
	// keepNull:false drops pending_key from the document when the account
	// leaves its in-flight state, releasing the unique index slot.
	query := `
		FOR a IN accounts
			FILTER a.id == @id
			UPDATE a WITH @patch IN accounts OPTIONS { keepNull: false }
	`
	var pendingKey interface{}
	if acct.PendingKey != "" {
		pendingKey = acct.PendingKey
	}
	var lastError interface{}
	if acct.LastError != "" {
		lastError = acct.LastError
	}
	patch := map[string]interface{}{
		"external_id":       acct.ExternalID,
		"idempotency_key":   acct.IdempotencyKey,
		"pending_key":       pendingKey,
		"account_state":     string(acct.AccountState),
		"state_transitions": acct.StateTransitions,
		"last_error":        lastError,
		"linked_at":         acct.LinkedAt,
	}
	_, err := t.run.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"id": acct.ID, "patch": patch},
	})
	return err
}

func (t *arangoTx) DeleteAccount(ctx context.Context, acct *model.Account) error {
	_, err := t.run.Query(ctx, `
		FOR a IN accounts
			FILTER a.id == @id
			REMOVE a IN accounts
	`, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"id": acct.ID},
	})
	return err
}

func readOneAccount(ctx context.Context, run aqlRunner, query, value string) (*model.Account, error) {
	cursor, err := run.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]interface{}{"value": value},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return nil, nil
	}
	var acct model.Account
	if _, err := cursor.ReadDocument(ctx, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}
