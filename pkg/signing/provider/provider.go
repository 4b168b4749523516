// Copyright 2025 Certen Protocol
//
// Package provider implements the Provider port in three modes: a real
// injected-wallet bridge left unimplemented pending a concrete transport, a
// deterministic in-memory wallet for development and tests, and a disabled
// mode that fails closed. All three share the same recoverable event buffer
// semantics.
package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/metrics"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
)

// Mode selects which of the three Provider behaviors an Adapter exhibits.
type Mode string

const (
	ModeRuntimeAttached Mode = "RuntimeAttached"
	ModeDeterministic   Mode = "Deterministic"
	ModeDisabled        Mode = "Disabled"
)

// deterministicAccount is the single stable account the Deterministic mode
// reports connected at all times.
var deterministicAccount = common.HexToAddress("0x1000000000000000000000000000000000000001")

const deterministicChainID uint64 = 1

const disabledReason = "provider disabled by runtime policy"

// Adapter is the Provider port's implementation. eventSeq and events track
// the recoverable {AccountsChanged, ChainChanged} buffer shared by every
// mode; a debug injection appends to it and a drain clears it.
type Adapter struct {
	mode Mode

	mu              sync.Mutex
	events          []domain.ProviderEvent
	nextSeq         uint64
	connected       []common.Address
	chainID         uint64
}

// NewAdapter constructs a Provider adapter in the given mode. Deterministic
// mode starts pre-connected to deterministicAccount on chain 1.
func NewAdapter(mode Mode) *Adapter {
	a := &Adapter{mode: mode, nextSeq: 1}
	if mode == ModeDeterministic {
		a.connected = []common.Address{deterministicAccount}
		a.chainID = deterministicChainID
	}
	return a
}

func (a *Adapter) disabledErr() error {
	return ports.NewPolicyError(disabledReason)
}

// RequestAccounts returns the connected account set. Deterministic mode
// always returns the single stable account; RuntimeAttached is not wired to
// a concrete wallet transport yet.
func (a *Adapter) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	switch a.mode {
	case ModeDisabled:
		return nil, a.disabledErr()
	case ModeDeterministic:
		a.mu.Lock()
		defer a.mu.Unlock()
		out := make([]common.Address, len(a.connected))
		copy(out, a.connected)
		return out, nil
	default:
		return nil, ports.NewNotImplementedError("runtime-attached provider requires a configured wallet bridge")
	}
}

// ChainID returns the chain the active account set is connected to.
func (a *Adapter) ChainID(ctx context.Context) (uint64, error) {
	switch a.mode {
	case ModeDisabled:
		return 0, a.disabledErr()
	case ModeDeterministic:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.chainID, nil
	default:
		return 0, ports.NewNotImplementedError("runtime-attached provider requires a configured wallet bridge")
	}
}

// WalletGetCapabilities returns the wallet's advertised capability set.
// Deterministic mode reports an empty capability object; no wallet has any
// special capabilities worth faking in development.
func (a *Adapter) WalletGetCapabilities(ctx context.Context) ([]byte, error) {
	switch a.mode {
	case ModeDisabled:
		return nil, a.disabledErr()
	case ModeDeterministic:
		return []byte("{}"), nil
	default:
		return nil, ports.NewNotImplementedError("runtime-attached provider requires a configured wallet bridge")
	}
}

// SignPayload produces a signature over payload attributed to method and
// expectedSigner. In Deterministic mode the signature is a fixed, reproducible
// 65-byte blob: h = keccak256(method || signer || payload), sig = h || h ||
// 0x1b. This is not a valid ECDSA signature; it exists purely so
// development and test flows exercise the exact same code paths a real
// signature would.
func (a *Adapter) SignPayload(ctx context.Context, method domain.SigningMethod, payload []byte, expectedSigner common.Address) ([]byte, error) {
	switch a.mode {
	case ModeDisabled:
		return nil, a.disabledErr()
	case ModeDeterministic:
		buf := make([]byte, 0, len(method)+len(expectedSigner)+len(payload))
		buf = append(buf, []byte(method)...)
		buf = append(buf, expectedSigner.Bytes()...)
		buf = append(buf, payload...)
		h := crypto.Keccak256(buf)
		sig := make([]byte, 0, 65)
		sig = append(sig, h...)
		sig = append(sig, h...)
		sig = append(sig, 0x1b)
		return sig, nil
	default:
		return nil, ports.NewNotImplementedError("runtime-attached provider requires a configured wallet bridge")
	}
}

// SendTransaction broadcasts a raw transaction payload and returns its hash.
// Deterministic mode fabricates a hash from the payload so callers get a
// stable, reproducible result without a real chain.
func (a *Adapter) SendTransaction(ctx context.Context, txPayload []byte) (domain.Hash32, error) {
	switch a.mode {
	case ModeDisabled:
		return domain.Hash32{}, a.disabledErr()
	case ModeDeterministic:
		return crypto.Keccak256Hash(txPayload), nil
	default:
		return domain.Hash32{}, ports.NewNotImplementedError("runtime-attached provider requires a configured wallet bridge")
	}
}

// DrainEvents returns every buffered event since the last drain and clears
// the buffer. Sequence numbers are monotonic across the adapter's lifetime,
// not reset per drain.
func (a *Adapter) DrainEvents(ctx context.Context) ([]domain.ProviderEvent, error) {
	if a.mode == ModeDisabled {
		return nil, a.disabledErr()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	drained := a.events
	a.events = nil
	metrics.ProviderEventsDrainedTotal.Add(float64(len(drained)))
	return drained, nil
}

// DebugInjectAccountsChanged simulates the wallet switching its connected
// account set, updating Deterministic mode's live state and appending an
// AccountsChanged event for the next DrainEvents.
func (a *Adapter) DebugInjectAccountsChanged(accounts []common.Address) error {
	if a.mode == ModeDisabled {
		return a.disabledErr()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = append([]common.Address{}, accounts...)
	value := []byte(fmt.Sprintf("%d accounts", len(accounts)))
	a.events = append(a.events, domain.ProviderEvent{
		Sequence: a.nextSeq,
		Kind:     domain.EventAccountsChanged,
		Value:    value,
	})
	a.nextSeq++
	return nil
}

// DebugInjectChainChanged simulates the wallet switching networks.
func (a *Adapter) DebugInjectChainChanged(chainID uint64) error {
	if a.mode == ModeDisabled {
		return a.disabledErr()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chainID = chainID
	value := []byte(fmt.Sprintf("%d", chainID))
	a.events = append(a.events, domain.ProviderEvent{
		Sequence: a.nextSeq,
		Kind:     domain.EventChainChanged,
		Value:    value,
	})
	a.nextSeq++
	return nil
}
