package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Failure modes the core reacts to. Everything else from the payment layer
// is wrapped and treated as opaque.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrPaymentMethodInvalid = errors.New("payment method invalid")
	ErrHoldNotFound         = errors.New("escrow hold not found")
)

// Coordinator is the external escrow service as seen by the matching engine.
// The engine only requests holds and releases; all fee computation and
// payment-method logic lives on the other side of this interface.
type Coordinator interface {
	HoldFunds(ctx context.Context, reservationID string, amountCents int64) (holdID string, err error)
	ReleaseFunds(ctx context.Context, holdID string) error
	SettleFunds(ctx context.Context, holdID string, finalAmountCents int64) error
}

type holdState struct {
	reservationID string
	amountCents   int64
	settled       bool
	released      bool
}

// MemoryCoordinator is an in-process escrow used for local runs and tests.
// FailHolds switches every HoldFunds call into an insufficient-funds error.
type MemoryCoordinator struct {
	mu        sync.Mutex
	seq       int
	holds     map[string]*holdState
	FailHolds bool
}

func NewMemoryCoordinator() *MemoryCoordinator {
	return &MemoryCoordinator{holds: make(map[string]*holdState)}
}

func (m *MemoryCoordinator) HoldFunds(ctx context.Context, reservationID string, amountCents int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailHolds {
		return "", ErrInsufficientFunds
	}
	m.seq++
	id := fmt.Sprintf("hold-%d", m.seq)
	m.holds[id] = &holdState{reservationID: reservationID, amountCents: amountCents}
	return id, nil
}

func (m *MemoryCoordinator) ReleaseFunds(ctx context.Context, holdID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return ErrHoldNotFound
	}
	h.released = true
	return nil
}

func (m *MemoryCoordinator) SettleFunds(ctx context.Context, holdID string, finalAmountCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	if !ok {
		return ErrHoldNotFound
	}
	h.settled = true
	h.amountCents = finalAmountCents
	return nil
}

// Held reports whether a hold exists and is neither settled nor released.
func (m *MemoryCoordinator) Held(holdID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	return ok && !h.settled && !h.released
}

// Released reports whether a hold was released back to the payer.
func (m *MemoryCoordinator) Released(holdID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	return ok && h.released
}

// Settled reports whether a hold was captured.
func (m *MemoryCoordinator) Settled(holdID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.holds[holdID]
	return ok && h.settled
}
