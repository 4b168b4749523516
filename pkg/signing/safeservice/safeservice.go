// Copyright 2025 Certen Protocol
//
// Package safeservice implements the SafeService port against an in-memory
// model of a Safe Transaction Service instance. A real HTTP client belongs
// here too once a concrete Safe Transaction Service deployment is targeted;
// until then this adapter is what development and tests run against.
package safeservice

import (
	"context"
	"sync"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
)

type remoteTx struct {
	tx            domain.PendingSafeTx
	confirmations [][]byte
	executed      bool
	executedHash  *domain.Hash32
}

// Adapter is the SafeService port's in-memory implementation.
type Adapter struct {
	mu  sync.Mutex
	txs map[domain.Hash32]*remoteTx
}

// NewAdapter constructs an empty in-memory Safe Transaction Service model.
func NewAdapter() *Adapter {
	return &Adapter{txs: make(map[domain.Hash32]*remoteTx)}
}

// ProposeTx registers tx with the remote service. Re-proposing the same
// safeTxHash is idempotent: the stored payload is refreshed but existing
// confirmations and execution state are preserved.
func (a *Adapter) ProposeTx(ctx context.Context, tx domain.PendingSafeTx) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.txs[tx.SafeTxHash]
	if !ok {
		a.txs[tx.SafeTxHash] = &remoteTx{tx: tx}
		return nil
	}
	existing.tx = tx
	return nil
}

// ConfirmTx records one owner's confirmation signature against an
// already-proposed tx. Confirming a tx that was never proposed is a
// Conflict, not an implicit propose.
func (a *Adapter) ConfirmTx(ctx context.Context, safeTxHash domain.Hash32, signature []byte) error {
	if len(signature) < 65 {
		return ports.NewValidationError(ports.ReasonInvalidSignatureFormat)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.txs[safeTxHash]
	if !ok {
		return ports.NewConflictError("cannot confirm %s: tx was never proposed", safeTxHash.Hex())
	}
	for _, s := range existing.confirmations {
		if string(s) == string(signature) {
			return nil
		}
	}
	existing.confirmations = append(existing.confirmations, signature)
	return nil
}

// ExecuteTx marks a tx executed and returns a fabricated on-chain
// transaction hash. Threshold is checked against tx's own collected
// signatures rather than this service's confirmation tally, since owners
// may gather signatures off-chain without ever calling ConfirmTx here.
// Executing a tx below its declared threshold is a Policy violation.
func (a *Adapter) ExecuteTx(ctx context.Context, tx domain.PendingSafeTx) (domain.Hash32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.txs[tx.SafeTxHash]
	if !ok {
		return domain.Hash32{}, ports.NewConflictError("cannot execute %s: tx was never proposed", tx.SafeTxHash.Hex())
	}
	if tx.SignatureCount() < tx.Payload.ThresholdOrDefault() {
		return domain.Hash32{}, ports.NewPolicyError(
			"cannot execute %s: have %d signatures, need %d", tx.SafeTxHash.Hex(), tx.SignatureCount(), tx.Payload.ThresholdOrDefault())
	}
	if existing.executed {
		return *existing.executedHash, nil
	}

	execHash := domain.Hash32(tx.SafeTxHash)
	existing.executed = true
	existing.executedHash = &execHash
	return execHash, nil
}

// FetchStatus returns the remote service's current view of a tx.
func (a *Adapter) FetchStatus(ctx context.Context, safeTxHash domain.Hash32) (ports.RemoteTxStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.txs[safeTxHash]
	if !ok {
		return ports.RemoteTxStatus{}, ports.NewNotFoundError("no proposed tx for %s", safeTxHash.Hex())
	}
	return ports.RemoteTxStatus{
		SafeTxHash:     safeTxHash,
		Proposed:       true,
		Confirmations:  len(existing.confirmations),
		Executed:       existing.executed,
		ExecutedTxHash: existing.executedHash,
	}, nil
}
