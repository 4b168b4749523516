package statemachine

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
)

func TestTxTransitionHappyPath(t *testing.T) {
	steps := []struct {
		from   domain.TxStatus
		action TxAction
		want   domain.TxStatus
	}{
		{domain.TxDraft, TxActionSign, domain.TxSigning},
		{domain.TxSigning, TxActionPropose, domain.TxProposed},
		{domain.TxProposed, TxActionConfirm, domain.TxConfirming},
		{domain.TxConfirming, TxActionThresholdMet, domain.TxReadyToExecute},
		{domain.TxReadyToExecute, TxActionExecuteStart, domain.TxExecuting},
		{domain.TxExecuting, TxActionExecuteSuccess, domain.TxExecuted},
	}
	for _, s := range steps {
		got, err := TxTransition(s.from, s.action)
		if err != nil {
			t.Fatalf("%s via %s: %v", s.from, s.action, err)
		}
		if got != s.want {
			t.Fatalf("%s via %s: got %s want %s", s.from, s.action, got, s.want)
		}
	}
}

func TestTxTransitionRejectsIllegalEdge(t *testing.T) {
	if _, err := TxTransition(domain.TxDraft, TxActionExecuteStart); err == nil {
		t.Fatal("expected error transitioning draft->executing directly")
	}
	if _, err := TxTransition(domain.TxExecuted, TxActionSign); err == nil {
		t.Fatal("expected error transitioning out of a terminal state")
	}
}

func TestThresholdMetForTx(t *testing.T) {
	tx := &domain.PendingSafeTx{
		Status:  domain.TxSigning,
		Payload: domain.TxPayload{Threshold: 2},
		Signatures: []domain.CollectedSignature{
			{Signer: common.HexToAddress("0x01")}, {Signer: common.HexToAddress("0x02")},
		},
	}
	if !ThresholdMetForTx(tx) {
		t.Fatal("expected threshold met with 2/2 signatures")
	}
	tx.Status = domain.TxExecuted
	if ThresholdMetForTx(tx) {
		t.Fatal("threshold escalation should not apply once executed")
	}
}

func TestMessageTransitionHappyPath(t *testing.T) {
	got, err := MessageTransition(domain.MsgDraft, MessageActionSign)
	if err != nil || got != domain.MsgSigning {
		t.Fatalf("draft->signing: got %s, err %v", got, err)
	}
	got, err = MessageTransition(domain.MsgSigning, MessageActionThresholdMet)
	if err != nil || got != domain.MsgThresholdMet {
		t.Fatalf("signing->thresholdmet: got %s, err %v", got, err)
	}
	got, err = MessageTransition(domain.MsgThresholdMet, MessageActionRespond)
	if err != nil || got != domain.MsgResponded {
		t.Fatalf("thresholdmet->responded: got %s, err %v", got, err)
	}
	if _, err := MessageTransition(domain.MsgResponded, MessageActionSign); err == nil {
		t.Fatal("expected error transitioning out of responded")
	}
}

func TestWcTransitionExpireFromAnyNonTerminalState(t *testing.T) {
	for _, from := range []domain.WcStatus{domain.WcPending, domain.WcRouted, domain.WcAwaitingThreshold, domain.WcRespondingImmediate} {
		got, err := WcTransition(from, WcActionExpire)
		if err != nil {
			t.Fatalf("expire from %s: %v", from, err)
		}
		if got != domain.WcExpired {
			t.Fatalf("expire from %s: got %s want Expired", from, got)
		}
	}
}

func TestWcTransitionRejectsExpireFromTerminalState(t *testing.T) {
	if _, err := WcTransition(domain.WcResponded, WcActionExpire); err == nil {
		t.Fatal("expected error expiring an already-responded request")
	}
}

func TestWcTransitionHappyPath(t *testing.T) {
	got, err := WcTransition(domain.WcPending, WcActionRoute)
	if err != nil || got != domain.WcRouted {
		t.Fatalf("pending->routed: got %s, err %v", got, err)
	}
	got, err = WcTransition(domain.WcRouted, WcActionRespondImmediate)
	if err != nil || got != domain.WcRespondingImmediate {
		t.Fatalf("routed->respondingimmediate: got %s, err %v", got, err)
	}
	got, err = WcTransition(domain.WcRespondingImmediate, WcActionRespond)
	if err != nil || got != domain.WcResponded {
		t.Fatalf("respondingimmediate->responded: got %s, err %v", got, err)
	}
}
