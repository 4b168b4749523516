// Copyright 2025 Certen Protocol
//
// Package walletconnect implements the WalletConnect port: pairing, session
// actions, and the inbound request queue a paired dApp drives. An in-memory
// backend covers development and tests; an HTTP bridge client for a real
// WalletConnect relay is future work and would live alongside it behind the
// same interface.
package walletconnect

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
)

// Adapter is the WalletConnect port's in-memory implementation.
type Adapter struct {
	clock ports.Clock

	mu       sync.Mutex
	sessions map[string]*domain.WcSessionContext
	requests map[string]*domain.PendingWalletConnectRequest
}

// NewAdapter constructs an empty in-memory WalletConnect adapter.
func NewAdapter(clock ports.Clock) *Adapter {
	return &Adapter{
		clock:    clock,
		sessions: make(map[string]*domain.WcSessionContext),
		requests: make(map[string]*domain.PendingWalletConnectRequest),
	}
}

// Pair registers a new proposed session for the given pairing URI and
// returns its initial context. The topic is a freshly generated UUID rather
// than the URI itself, since a real relay issues its own topic on pairing.
func (a *Adapter) Pair(ctx context.Context, uri string) (domain.WcSessionContext, error) {
	if uri == "" {
		return domain.WcSessionContext{}, ports.NewValidationError("pairing uri must not be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	topic := uuid.NewString()
	session := &domain.WcSessionContext{
		Topic:       topic,
		Status:      domain.SessionProposed,
		UpdatedAtMs: a.clock.NowMs(),
	}
	a.sessions[topic] = session
	return *session, nil
}

// SessionAction applies Approve/Reject/Disconnect to a proposed or active
// session.
func (a *Adapter) SessionAction(ctx context.Context, topic string, action ports.WcSessionAction) (domain.WcSessionContext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	session, ok := a.sessions[topic]
	if !ok {
		return domain.WcSessionContext{}, ports.NewNotFoundError("no session for topic %q", topic)
	}

	switch action {
	case ports.WcActionApprove:
		session.Status = domain.SessionApproved
	case ports.WcActionReject:
		session.Status = domain.SessionRejected
	case ports.WcActionDisconnect:
		session.Status = domain.SessionDisconnected
	default:
		return domain.WcSessionContext{}, ports.NewValidationError("unknown session action %q", action)
	}
	session.UpdatedAtMs = a.clock.NowMs()
	return *session, nil
}

// ListSessions returns every known session regardless of status.
func (a *Adapter) ListSessions(ctx context.Context) ([]domain.WcSessionContext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.WcSessionContext, 0, len(a.sessions))
	for _, s := range a.sessions {
		out = append(out, *s)
	}
	return out, nil
}

// ListPendingRequests returns every request not yet in a terminal status.
func (a *Adapter) ListPendingRequests(ctx context.Context) ([]domain.PendingWalletConnectRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.PendingWalletConnectRequest, 0, len(a.requests))
	for _, r := range a.requests {
		if r.Status != domain.WcResponded && r.Status != domain.WcExpired && r.Status != domain.WcFailed {
			out = append(out, *r)
		}
	}
	return out, nil
}

// RespondSuccess answers a pending request with a successful JSON-RPC
// result and marks it Responded.
func (a *Adapter) RespondSuccess(ctx context.Context, requestID string, result []byte) error {
	return a.respond(requestID)
}

// RespondError answers a pending request with a JSON-RPC error and marks it
// Responded; the code/msg pair is the relay payload, not modeled further
// here since this adapter has no wire transport yet.
func (a *Adapter) RespondError(ctx context.Context, requestID string, code int, msg string) error {
	return a.respond(requestID)
}

// respond validates req against the three invariants a real relay would
// enforce before delivering a response: it must not have expired, its
// session must still be approved, and a transaction-signing request that is
// being answered out of band must already be linked to the safeTxHash it
// was deferred for.
func (a *Adapter) respond(requestID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	req, ok := a.requests[requestID]
	if !ok {
		return ports.NewNotFoundError("no pending wc request %q", requestID)
	}

	now := a.clock.NowMs()
	if req.IsExpired(now) {
		req.Status = domain.WcExpired
		req.UpdatedAtMs = now
		return ports.NewValidationError(ports.ReasonWcRequestExpired)
	}

	session, ok := a.sessions[req.Topic]
	if !ok || session.Status != domain.SessionApproved {
		return ports.NewPolicyError(ports.ReasonWcSessionNotApproved)
	}

	if req.Method == domain.WcMethodSignTransaction && req.LinkedSafeTxHash == nil {
		return ports.NewValidationError("deferred wc request %s has no linked safe tx", requestID)
	}

	req.Status = domain.WcResponded
	req.UpdatedAtMs = now
	return nil
}

// Sync is a no-op for the in-memory backend; a relay-backed adapter would
// use it to pull queued requests and session updates.
func (a *Adapter) Sync(ctx context.Context) error {
	return nil
}

// InjectRequest is a test/bootstrap hook that enqueues an inbound request
// as if it had arrived from a paired dApp over the relay.
func (a *Adapter) InjectRequest(req domain.PendingWalletConnectRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if req.RequestID == "" {
		return ports.NewValidationError("request id must not be empty")
	}
	session, ok := a.sessions[req.Topic]
	if !ok || session.Status != domain.SessionApproved {
		return ports.NewPolicyError(fmt.Sprintf("%s: session %q is not approved", ports.ReasonWcSessionNotApproved, req.Topic))
	}
	a.requests[req.RequestID] = &req
	return nil
}
