// Package model provides data models for the events backend.
package model

import (
	"time"

	"github.com/google/uuid"
)

// AccountState is the provisioning lifecycle state of an account.
type AccountState string

// Account lifecycle states. CREATING and PENDING are in-flight;
// ACTIVE and COMPLETE are terminal for the provisioning core, ERROR
// is terminal until the reclamation sweep purges it.
const (
	StateCreating AccountState = "CREATING"
	StatePending  AccountState = "PENDING"
	StateActive   AccountState = "ACTIVE"
	StateComplete AccountState = "COMPLETE"
	StateError    AccountState = "ERROR"
)

// stateEdges defines the only legal transitions between account states.
var stateEdges = map[AccountState][]AccountState{
	StateCreating: {StatePending, StateError},
	StatePending:  {StateActive, StateError},
	StateActive:   {StateComplete, StateError},
	StateComplete: {},
	StateError:    {},
}

// InFlight reports whether the state is non-terminal (CREATING or PENDING).
func (s AccountState) InFlight() bool {
	return s == StateCreating || s == StatePending
}

// CanTransitionTo reports whether the edge from s to next is legal.
func (s AccountState) CanTransitionTo(next AccountState) bool {
	for _, edge := range stateEdges[s] {
		if edge == next {
			return true
		}
	}
	return false
}

// StateTransition is one entry in an account's append-only transition log.
type StateTransition struct {
	From      AccountState `json:"from"`
	To        AccountState `json:"to"`
	Timestamp time.Time    `json:"timestamp"`
	Reason    string       `json:"reason"`
}

// Account represents a reconciled local identity record.
//
// ExternalID, Email and PendingKey each carry a unique sparse persistent
// index in the accounts collection; PendingKey mirrors IdempotencyKey only
// while the account is in flight, which is what enforces "at most one
// in-flight account per idempotency key" at the storage level.
type Account struct {
	Key              string            `json:"_key,omitempty"`
	ID               string            `json:"id"`
	Username         string            `json:"username"`
	Email            string            `json:"email,omitempty"`
	ExternalID       string            `json:"external_id,omitempty"`
	IdempotencyKey   string            `json:"idempotency_key,omitempty"`
	PendingKey       string            `json:"pending_key,omitempty"`
	AccountState     AccountState      `json:"account_state"`
	StateTransitions []StateTransition `json:"state_transitions"`
	CreationMetadata map[string]string `json:"creation_metadata,omitempty"`
	LastError        string            `json:"last_error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	LinkedAt         *time.Time        `json:"linked_at,omitempty"`
}

// NewAccount creates a new account in the CREATING state.
func NewAccount(username, email, externalID, idempotencyKey string) *Account {
	now := time.Now().UTC()
	return &Account{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		ExternalID:     externalID,
		IdempotencyKey: idempotencyKey,
		PendingKey:     idempotencyKey,
		AccountState:   StateCreating,
		StateTransitions: []StateTransition{
			{From: "", To: StateCreating, Timestamp: now, Reason: "created"},
		},
		CreationMetadata: map[string]string{},
		CreatedAt:        now,
	}
}

// Transition advances the account to next, appending to the transition
// log. It returns false without mutating anything when the edge is not
// legal from the current state.
func (a *Account) Transition(next AccountState, reason string) bool {
	if !a.AccountState.CanTransitionTo(next) {
		return false
	}
	a.StateTransitions = append(a.StateTransitions, StateTransition{
		From:      a.AccountState,
		To:        next,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	})
	a.AccountState = next
	if !next.InFlight() {
		// The idempotency key only guards in-flight records.
		a.PendingKey = ""
	}
	return true
}

// MarkError force-moves the account into ERROR and records the failure.
func (a *Account) MarkError(reason string) {
	a.StateTransitions = append(a.StateTransitions, StateTransition{
		From:      a.AccountState,
		To:        StateError,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	})
	a.AccountState = StateError
	a.LastError = reason
	a.PendingKey = ""
}

// MarkLinked records the adoption of an external identity by a
// pre-existing local account. The state only advances to ACTIVE when that
// edge is legal from the current state; an account already ACTIVE or
// COMPLETE keeps its state, linking never walks the lifecycle backwards.
func (a *Account) MarkLinked(externalID, idempotencyKey string) {
	now := time.Now().UTC()
	a.ExternalID = externalID
	a.IdempotencyKey = idempotencyKey
	a.LinkedAt = &now
	a.Transition(StateActive, "linked external identity")
}
