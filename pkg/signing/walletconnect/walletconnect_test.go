package walletconnect

import (
	"context"
	"testing"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/clock"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
)

func TestPairThenApproveThenInjectRequest(t *testing.T) {
	a := NewAdapter(clock.NewSystemClock())
	ctx := context.Background()

	session, err := a.Pair(ctx, "wc:abc@2")
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	if session.Status != domain.SessionProposed {
		t.Fatalf("expected proposed status, got %s", session.Status)
	}

	approved, err := a.SessionAction(ctx, session.Topic, ports.WcActionApprove)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.SessionApproved {
		t.Fatalf("expected approved status, got %s", approved.Status)
	}

	err = a.InjectRequest(domain.PendingWalletConnectRequest{
		RequestID: "req-1",
		Topic:     session.Topic,
		Method:    domain.WcMethodSignMessage,
		Status:    domain.WcPending,
	})
	if err != nil {
		t.Fatalf("inject: %v", err)
	}

	pending, err := a.ListPendingRequests(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].RequestID != "req-1" {
		t.Fatalf("expected one pending request, got %v", pending)
	}
}

func TestInjectRequestRejectedWithoutApprovedSession(t *testing.T) {
	a := NewAdapter(clock.NewSystemClock())
	ctx := context.Background()

	session, err := a.Pair(ctx, "wc:abc@2")
	if err != nil {
		t.Fatalf("pair: %v", err)
	}

	err = a.InjectRequest(domain.PendingWalletConnectRequest{
		RequestID: "req-1",
		Topic:     session.Topic,
		Status:    domain.WcPending,
	})
	if !ports.IsKind(err, ports.KindPolicy) {
		t.Fatalf("expected Policy error for unapproved session, got %v", err)
	}
}

func TestRespondSuccessMarksRequestResponded(t *testing.T) {
	a := NewAdapter(clock.NewSystemClock())
	ctx := context.Background()

	session, _ := a.Pair(ctx, "wc:abc@2")
	_, _ = a.SessionAction(ctx, session.Topic, ports.WcActionApprove)
	_ = a.InjectRequest(domain.PendingWalletConnectRequest{RequestID: "req-1", Topic: session.Topic, Status: domain.WcPending})

	if err := a.RespondSuccess(ctx, "req-1", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("respond: %v", err)
	}

	pending, err := a.ListPendingRequests(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests after responding, got %v", pending)
	}
}

func TestRespondSuccessUnknownRequestIsNotFound(t *testing.T) {
	a := NewAdapter(clock.NewSystemClock())
	err := a.RespondSuccess(context.Background(), "missing", nil)
	if !ports.IsKind(err, ports.KindNotFound) {
		t.Fatalf("expected NotFound error, got %v", err)
	}
}

func TestRespondRejectsExpiredRequest(t *testing.T) {
	c := clock.NewSystemClock()
	a := NewAdapter(c)
	ctx := context.Background()

	session, _ := a.Pair(ctx, "wc:abc@2")
	_, _ = a.SessionAction(ctx, session.Topic, ports.WcActionApprove)
	expired := c.NowMs() - 1000
	_ = a.InjectRequest(domain.PendingWalletConnectRequest{
		RequestID:   "req-1",
		Topic:       session.Topic,
		Status:      domain.WcPending,
		ExpiresAtMs: &expired,
	})

	err := a.RespondSuccess(ctx, "req-1", []byte(`{"ok":true}`))
	if !ports.IsKind(err, ports.KindValidation) {
		t.Fatalf("expected Validation error for expired request, got %v", err)
	}
}

func TestRespondRejectsUnapprovedSession(t *testing.T) {
	a := NewAdapter(clock.NewSystemClock())
	ctx := context.Background()

	session, _ := a.Pair(ctx, "wc:abc@2")
	_, _ = a.SessionAction(ctx, session.Topic, ports.WcActionApprove)
	_ = a.InjectRequest(domain.PendingWalletConnectRequest{RequestID: "req-1", Topic: session.Topic, Status: domain.WcPending})
	if _, err := a.SessionAction(ctx, session.Topic, ports.WcActionDisconnect); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	err := a.RespondSuccess(ctx, "req-1", []byte(`{"ok":true}`))
	if !ports.IsKind(err, ports.KindPolicy) {
		t.Fatalf("expected Policy error for unapproved session, got %v", err)
	}
}

func TestRespondRejectsDeferredSignTransactionWithoutLinkedTx(t *testing.T) {
	a := NewAdapter(clock.NewSystemClock())
	ctx := context.Background()

	session, _ := a.Pair(ctx, "wc:abc@2")
	_, _ = a.SessionAction(ctx, session.Topic, ports.WcActionApprove)
	_ = a.InjectRequest(domain.PendingWalletConnectRequest{
		RequestID: "req-1",
		Topic:     session.Topic,
		Method:    domain.WcMethodSignTransaction,
		Status:    domain.WcPending,
	})

	err := a.RespondSuccess(ctx, "req-1", []byte(`{"ok":true}`))
	if !ports.IsKind(err, ports.KindValidation) {
		t.Fatalf("expected Validation error for unlinked deferred sign-transaction request, got %v", err)
	}
}
