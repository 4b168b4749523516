package provider

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
)

func TestDeterministicModeStartsConnected(t *testing.T) {
	a := NewAdapter(ModeDeterministic)
	accounts, err := a.RequestAccounts(context.Background())
	if err != nil {
		t.Fatalf("request accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != deterministicAccount {
		t.Fatalf("expected single deterministic account, got %v", accounts)
	}
	chainID, err := a.ChainID(context.Background())
	if err != nil || chainID != 1 {
		t.Fatalf("expected chain id 1, got %d, err %v", chainID, err)
	}
}

func TestDeterministicSignPayloadIsReproducible(t *testing.T) {
	a := NewAdapter(ModeDeterministic)
	payload := []byte("hello")
	sig1, err := a.SignPayload(context.Background(), domain.MethodPersonalSign, payload, deterministicAccount)
	if err != nil {
		t.Fatalf("sign 1: %v", err)
	}
	sig2, err := a.SignPayload(context.Background(), domain.MethodPersonalSign, payload, deterministicAccount)
	if err != nil {
		t.Fatalf("sign 2: %v", err)
	}
	if !bytes.Equal(sig1, sig2) {
		t.Fatal("deterministic signature must be reproducible")
	}
	if len(sig1) != 65 {
		t.Fatalf("expected 65-byte signature, got %d", len(sig1))
	}
	if sig1[64] != 0x1b {
		t.Fatalf("expected trailing recovery byte 0x1b, got %x", sig1[64])
	}
	if !bytes.Equal(sig1[:32], sig1[32:64]) {
		t.Fatal("expected r and s halves to be identical by construction")
	}
}

func TestDisabledModeFailsEveryCall(t *testing.T) {
	a := NewAdapter(ModeDisabled)
	if _, err := a.RequestAccounts(context.Background()); !ports.IsKind(err, ports.KindPolicy) {
		t.Fatalf("expected Policy error, got %v", err)
	}
	if _, err := a.ChainID(context.Background()); !ports.IsKind(err, ports.KindPolicy) {
		t.Fatalf("expected Policy error, got %v", err)
	}
	if _, err := a.DrainEvents(context.Background()); !ports.IsKind(err, ports.KindPolicy) {
		t.Fatalf("expected Policy error, got %v", err)
	}
}

func TestDrainEventsClearsBufferAndIsMonotonic(t *testing.T) {
	a := NewAdapter(ModeDeterministic)
	if err := a.DebugInjectAccountsChanged([]common.Address{common.HexToAddress("0x02")}); err != nil {
		t.Fatalf("inject accounts: %v", err)
	}
	if err := a.DebugInjectChainChanged(5); err != nil {
		t.Fatalf("inject chain: %v", err)
	}

	events, err := a.DrainEvents(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Sequence != 1 || events[0].Kind != domain.EventAccountsChanged {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Sequence != 2 || events[1].Kind != domain.EventChainChanged {
		t.Fatalf("unexpected second event: %+v", events[1])
	}

	again, err := a.DrainEvents(context.Background())
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(again) != 0 {
		t.Fatal("expected buffer to be empty after a drain")
	}

	if err := a.DebugInjectChainChanged(7); err != nil {
		t.Fatalf("inject chain 2: %v", err)
	}
	third, err := a.DrainEvents(context.Background())
	if err != nil {
		t.Fatalf("third drain: %v", err)
	}
	if len(third) != 1 || third[0].Sequence != 3 {
		t.Fatalf("expected sequence to continue from 3, got %+v", third)
	}
}
