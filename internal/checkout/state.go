package checkout

import (
	"errors"
	"fmt"
)

// SagaState captures the current state of a checkout saga.
type SagaState string

const (
	StateCreated           SagaState = "created"
	StatePriced            SagaState = "priced"
	StateAuthenticated     SagaState = "gateway_authenticated"
	StateTransactionOpened SagaState = "transaction_opened"
	StateCredentialIssued  SagaState = "credential_issued"
	StateSettled           SagaState = "settled"
	StateDiscarded         SagaState = "discarded"
	StateExpired           SagaState = "expired"
	StateAborted           SagaState = "aborted"
)

// ErrInvalidTransition signals a saga transition the state machine forbids.
var ErrInvalidTransition = errors.New("invalid saga transition")

var sagaTransitions = map[SagaState][]SagaState{
	StateCreated:           {StatePriced, StateAborted},
	StatePriced:            {StateAuthenticated, StateAborted},
	StateAuthenticated:     {StateTransactionOpened, StateAborted},
	StateTransactionOpened: {StateCredentialIssued, StateAborted},
	StateCredentialIssued:  {StateSettled, StateDiscarded, StateExpired},
}

// CanTransition reports whether the state machine allows moving to next.
func (s SagaState) CanTransition(next SagaState) bool {
	for _, allowed := range sagaTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state has no outgoing transitions.
func (s SagaState) Terminal() bool {
	return len(sagaTransitions[s]) == 0
}

// Saga tracks a single checkout through the state machine. Transitions are
// pure; callers decide what side effects accompany each step.
type Saga struct {
	state SagaState
}

// NewSaga starts a saga in the created state.
func NewSaga() *Saga {
	return &Saga{state: StateCreated}
}

// State returns the current saga state.
func (s *Saga) State() SagaState {
	return s.state
}

// Advance moves the saga to next or fails with ErrInvalidTransition.
func (s *Saga) Advance(next SagaState) error {
	if !s.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
	}
	s.state = next
	return nil
}
