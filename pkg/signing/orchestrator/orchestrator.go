// Copyright 2025 Certen Protocol
//
// Package orchestrator is the single entry point every command flows
// through: it stamps a CommandEnvelope, enforces the writer lock, drives
// the statemachine transition tables, and coordinates the Provider,
// SafeService, WalletConnect, Abi, Hashing, and Queue ports behind one
// struct of interfaces (Go's stand-in for a generic-over-collaborators
// orchestrator type).
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/policy"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/statemachine"
)

// validateSignatureBytes rejects anything shorter than a packed r||s||v
// ECDSA signature. Callers that accept raw signature bytes off the wire
// check this before the bytes are ever recorded against a tx or message.
func validateSignatureBytes(sig []byte) error {
	if len(sig) < 65 {
		return ports.NewValidationError(ports.ReasonInvalidSignatureFormat)
	}
	return nil
}

// AuditRecorder mirrors transition log records to a durable audit trail
// outside the Queue port's own storage. It is optional; a nil AuditRecorder
// on Orchestrator disables mirroring entirely.
type AuditRecorder interface {
	Record(ctx context.Context, record domain.TransitionLogRecord) error
}

// Orchestrator wires the seven ports behind a single dispatch surface.
type Orchestrator struct {
	Clock         ports.Clock
	Provider      ports.Provider
	SafeService   ports.SafeService
	WalletConnect ports.WalletConnect
	Abi           ports.Abi
	Hashing       ports.Hashing
	Queue         ports.Queue

	// AuditSink, when set, receives a copy of every transition log record
	// alongside the Queue's own append. Wire it with SetAuditSink.
	AuditSink AuditRecorder

	// Policy bounds the signature thresholds and Safe addresses CreateSafeTx
	// and CreateSafeTxFromAbi will accept. A nil Policy skips enforcement,
	// matching the permissive policy.Load("") default.
	Policy *policy.Policy
}

// New constructs an Orchestrator over the given port implementations.
func New(clock ports.Clock, provider ports.Provider, safeService ports.SafeService, walletConnect ports.WalletConnect, abi ports.Abi, hashing ports.Hashing, queue ports.Queue) *Orchestrator {
	return &Orchestrator{
		Clock:         clock,
		Provider:      provider,
		SafeService:   safeService,
		WalletConnect: walletConnect,
		Abi:           abi,
		Hashing:       hashing,
		Queue:         queue,
	}
}

// stampEnvelope fabricates a CommandEnvelope for a new inbound command. The
// orchestrator owns CommandID/IssuedAtMs; callers supply CorrelationID and
// IdempotencyKey when their transport layer tracks one.
func (o *Orchestrator) stampEnvelope(kind, correlationID, idempotencyKey string) domain.CommandEnvelope {
	return domain.CommandEnvelope{
		CommandID:      uuid.NewString(),
		CorrelationID:  correlationID,
		IdempotencyKey: idempotencyKey,
		IssuedAtMs:     o.Clock.NowMs(),
		CommandKind:    kind,
	}
}

func (o *Orchestrator) recordTransition(ctx context.Context, envelope domain.CommandEnvelope, flowID, before, after string) error {
	log, err := o.Queue.LoadTransitionLog(ctx, flowID)
	if err != nil {
		return err
	}
	record := domain.TransitionLogRecord{
		EventSeq:     uint64(len(log)) + 1,
		CommandID:    envelope.CommandID,
		FlowID:       flowID,
		StateBefore:  before,
		StateAfter:   after,
		RecordedAtMs: o.Clock.NowMs(),
	}
	if err := o.Queue.AppendTransitionLog(ctx, record); err != nil {
		return err
	}
	if o.AuditSink != nil {
		if err := o.AuditSink.Record(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// SetAuditSink wires an optional durable audit trail. Call it once after New.
func (o *Orchestrator) SetAuditSink(sink AuditRecorder) {
	o.AuditSink = sink
}

// SetPolicy wires the signing policy bounds. Call it once after New.
func (o *Orchestrator) SetPolicy(p *policy.Policy) {
	o.Policy = p
}

func (o *Orchestrator) checkPolicy(chainID uint64, safeAddress common.Address, threshold int) error {
	if o.Policy == nil {
		return nil
	}
	chainPolicy := o.Policy.ForChain(chainID)
	if chainPolicy.IsDenied(safeAddress) {
		return ports.NewPolicyError("safe %s is denied by policy on chain %d", safeAddress.Hex(), chainID)
	}
	if err := chainPolicy.CheckThreshold(threshold); err != nil {
		return ports.NewPolicyError("%v", err)
	}
	return nil
}

// AcquireWriterLock grants tabID the exclusive-writer lease, replacing any
// expired lease it finds.
func (o *Orchestrator) AcquireWriterLock(ctx context.Context, tabID string, ttlMs uint64) (domain.AppWriterLock, error) {
	now := o.Clock.NowMs()
	lock := domain.AppWriterLock{
		HolderTabID:  tabID,
		TabNonce:     uuid.NewString(),
		AcquiredAtMs: now,
		ExpiresAtMs:  now + ttlMs,
	}
	if existing, err := o.Queue.LoadWriterLock(ctx); err == nil && existing != nil && !existing.Expired(now) {
		lock.LockEpoch = existing.LockEpoch + 1
	}
	if err := o.Queue.AcquireWriterLock(ctx, lock); err != nil {
		return domain.AppWriterLock{}, err
	}
	return lock, nil
}

// CreateSafeTx builds a new PendingSafeTx from a raw payload, computing its
// safeTxHash and seeding an empty signature set.
func (o *Orchestrator) CreateSafeTx(ctx context.Context, tabID string, chainID uint64, safeAddress common.Address, nonce uint64, payload domain.TxPayload) (domain.PendingSafeTx, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.PendingSafeTx{}, err
	}
	if err := o.checkPolicy(chainID, safeAddress, payload.ThresholdOrDefault()); err != nil {
		return domain.PendingSafeTx{}, err
	}

	hash, unsafeFallback, err := o.Hashing.SafeTxHash(chainID, safeAddress, nonce, payload)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}

	now := o.Clock.NowMs()
	tx := domain.PendingSafeTx{
		SchemaVersion: 1,
		ChainID:       chainID,
		SafeAddress:   safeAddress,
		Nonce:         nonce,
		Payload:       payload,
		BuildSource:   domain.BuildRawCalldata,
		SafeTxHash:    hash,
		Status:        domain.TxDraft,
		StateRevision: 1,
		CreatedAtMs:   now,
		UpdatedAtMs:   now,
		MacAlgorithm:  domain.MacHmacSha256V1,
		MacKeyID:      hash.Hex(),
	}
	if unsafeFallback {
		tx.Status = domain.TxDraft
	}

	mac, err := o.Hashing.IntegrityMac(macInput(tx), tx.MacKeyID)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx.IntegrityMac = mac

	if err := o.Queue.SaveTx(ctx, tx); err != nil {
		return domain.PendingSafeTx{}, err
	}
	envelope := o.stampEnvelope("CreateSafeTx", "", "")
	if err := o.recordTransition(ctx, envelope, tx.FlowID(), "", string(tx.Status)); err != nil {
		return domain.PendingSafeTx{}, err
	}
	return tx, nil
}

func macInput(tx domain.PendingSafeTx) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s", tx.SafeAddress.Hex(), tx.Nonce, tx.SafeTxHash.Hex()))
}

// CreateSafeTxFromAbi builds a tx whose calldata is produced by encoding
// methodSignature/args against abiJSON, recording the ABI provenance on
// AbiContext so a later audit can re-derive the calldata.
func (o *Orchestrator) CreateSafeTxFromAbi(ctx context.Context, tabID string, chainID uint64, safeAddress common.Address, nonce uint64, payload domain.TxPayload, abiJSON []byte, methodSignature string, args []string) (domain.PendingSafeTx, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.PendingSafeTx{}, err
	}

	encoded, selector, err := o.Abi.EncodeCalldata(abiJSON, methodSignature, args)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	payload.Data = fmt.Sprintf("0x%x", encoded)

	tx, err := o.CreateSafeTx(ctx, tabID, chainID, safeAddress, nonce, payload)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx.BuildSource = domain.BuildAbiMethodForm
	tx.AbiContext = &domain.AbiMethodContext{
		MethodSignature: methodSignature,
		MethodSelector:  selector,
		EncodedArgs:     encoded,
	}
	tx.StateRevision++
	if err := o.Queue.SaveTx(ctx, tx); err != nil {
		return domain.PendingSafeTx{}, err
	}
	return tx, nil
}

// AddTxSignature validates and records an owner's signature against tx,
// transitioning Draft->Signing on the first signature and escalating to
// ReadyToExecute once the payload's threshold is met.
func (o *Orchestrator) AddTxSignature(ctx context.Context, tabID string, safeTxHash domain.Hash32, sig domain.CollectedSignature) (domain.PendingSafeTx, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.PendingSafeTx{}, err
	}
	if err := validateSignatureBytes(sig.Bytes); err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx, err := o.Queue.LoadTx(ctx, safeTxHash)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	if tx.IsTerminal() {
		return domain.PendingSafeTx{}, ports.NewConflictError("tx %s is in a terminal state", safeTxHash.Hex())
	}
	if tx.HasSignature(sig) {
		return *tx, nil
	}

	before := tx.Status
	if tx.Status == domain.TxDraft {
		next, err := statemachine.TxTransition(tx.Status, statemachine.TxActionSign)
		if err != nil {
			return domain.PendingSafeTx{}, err
		}
		tx.Status = next
	}

	tx.Signatures = append(tx.Signatures, sig)
	if statemachine.ThresholdMetForTx(tx) {
		next, err := statemachine.TxTransition(tx.Status, statemachine.TxActionThresholdMet)
		if err == nil {
			tx.Status = next
		}
	}

	tx.UpdatedAtMs = o.Clock.NowMs()
	tx.StateRevision++
	if err := o.Queue.SaveTx(ctx, *tx); err != nil {
		return domain.PendingSafeTx{}, err
	}
	if before != tx.Status {
		envelope := o.stampEnvelope("AddTxSignature", "", "")
		if err := o.recordTransition(ctx, envelope, tx.FlowID(), string(before), string(tx.Status)); err != nil {
			return domain.PendingSafeTx{}, err
		}
	}
	return *tx, nil
}

// ProposeTx submits tx to the remote Safe service and advances its status.
func (o *Orchestrator) ProposeTx(ctx context.Context, tabID string, safeTxHash domain.Hash32) (domain.PendingSafeTx, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx, err := o.Queue.LoadTx(ctx, safeTxHash)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	if err := o.SafeService.ProposeTx(ctx, *tx); err != nil {
		return domain.PendingSafeTx{}, err
	}

	before := tx.Status
	next, err := statemachine.TxTransition(tx.Status, statemachine.TxActionPropose)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx.Status = next
	tx.UpdatedAtMs = o.Clock.NowMs()
	tx.StateRevision++
	if err := o.Queue.SaveTx(ctx, *tx); err != nil {
		return domain.PendingSafeTx{}, err
	}
	envelope := o.stampEnvelope("ProposeTx", "", "")
	if err := o.recordTransition(ctx, envelope, tx.FlowID(), string(before), string(tx.Status)); err != nil {
		return domain.PendingSafeTx{}, err
	}
	return *tx, nil
}

// ConfirmTx submits a confirmation signature to the remote Safe service,
// records it against the tx's own signature set attributed to whichever
// account the Provider currently reports connected, and escalates straight
// to ReadyToExecute if that confirmation is what meets the threshold.
func (o *Orchestrator) ConfirmTx(ctx context.Context, tabID string, safeTxHash domain.Hash32, signature []byte) (domain.PendingSafeTx, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.PendingSafeTx{}, err
	}
	if err := validateSignatureBytes(signature); err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx, err := o.Queue.LoadTx(ctx, safeTxHash)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	if err := o.SafeService.ConfirmTx(ctx, safeTxHash, signature); err != nil {
		return domain.PendingSafeTx{}, err
	}

	accounts, err := o.Provider.RequestAccounts(ctx)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	var signer common.Address
	if len(accounts) > 0 {
		signer = accounts[0]
	}
	confirmation := domain.CollectedSignature{
		Signer:      signer,
		Bytes:       signature,
		Source:      domain.SourceInjectedProvider,
		Method:      domain.MethodSafeTxHash,
		ChainID:     tx.ChainID,
		SafeAddress: tx.SafeAddress,
		PayloadHash: tx.SafeTxHash,
		AddedAtMs:   o.Clock.NowMs(),
	}

	before := tx.Status
	next, err := statemachine.TxTransition(tx.Status, statemachine.TxActionConfirm)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx.Status = next

	if !tx.HasSignature(confirmation) {
		tx.Signatures = append(tx.Signatures, confirmation)
	}
	if statemachine.ThresholdMetForTx(tx) {
		if ready, terr := statemachine.TxTransition(tx.Status, statemachine.TxActionThresholdMet); terr == nil {
			tx.Status = ready
		}
	}

	tx.UpdatedAtMs = o.Clock.NowMs()
	tx.StateRevision++
	if err := o.Queue.SaveTx(ctx, *tx); err != nil {
		return domain.PendingSafeTx{}, err
	}
	envelope := o.stampEnvelope("ConfirmTx", "", "")
	if err := o.recordTransition(ctx, envelope, tx.FlowID(), string(before), string(tx.Status)); err != nil {
		return domain.PendingSafeTx{}, err
	}
	return *tx, nil
}

// ExecuteTx submits tx for on-chain execution once its threshold is met.
func (o *Orchestrator) ExecuteTx(ctx context.Context, tabID string, safeTxHash domain.Hash32) (domain.PendingSafeTx, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx, err := o.Queue.LoadTx(ctx, safeTxHash)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}

	before := tx.Status
	next, err := statemachine.TxTransition(tx.Status, statemachine.TxActionExecuteStart)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx.Status = next
	execHash, execErr := o.SafeService.ExecuteTx(ctx, *tx)
	if execErr != nil {
		tx.Status, _ = statemachine.TxTransition(tx.Status, statemachine.TxActionExecuteFail)
		tx.UpdatedAtMs = o.Clock.NowMs()
		tx.StateRevision++
		_ = o.Queue.SaveTx(ctx, *tx)
		return domain.PendingSafeTx{}, execErr
	}

	tx.Status, err = statemachine.TxTransition(tx.Status, statemachine.TxActionExecuteSuccess)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx.ExecutedTxHash = &execHash
	tx.UpdatedAtMs = o.Clock.NowMs()
	tx.StateRevision++
	if err := o.Queue.SaveTx(ctx, *tx); err != nil {
		return domain.PendingSafeTx{}, err
	}
	envelope := o.stampEnvelope("ExecuteTx", "", "")
	if err := o.recordTransition(ctx, envelope, tx.FlowID(), string(before), string(tx.Status)); err != nil {
		return domain.PendingSafeTx{}, err
	}
	return *tx, nil
}

// SignTxWithProvider asks the attached wallet to sign tx's safeTxHash
// directly, on behalf of whichever account it currently reports connected,
// and records the result the same way AddTxSignature does. It fails
// NO_CONNECTED_ACCOUNT if the provider reports no account and CHAIN_MISMATCH
// if the provider's chain doesn't match the tx's.
func (o *Orchestrator) SignTxWithProvider(ctx context.Context, tabID string, safeTxHash domain.Hash32) (domain.PendingSafeTx, error) {
	tx, err := o.Queue.LoadTx(ctx, safeTxHash)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}

	chainID, err := o.Provider.ChainID(ctx)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	if chainID != tx.ChainID {
		return domain.PendingSafeTx{}, ports.NewPolicyError(ports.ReasonChainMismatch)
	}

	accounts, err := o.Provider.RequestAccounts(ctx)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	if len(accounts) == 0 {
		return domain.PendingSafeTx{}, ports.NewPolicyError(ports.ReasonNoConnectedAccount)
	}
	signer := accounts[0]

	sigBytes, err := o.Provider.SignPayload(ctx, domain.MethodSafeTxHash, tx.SafeTxHash.Bytes(), signer)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}

	return o.AddTxSignature(ctx, tabID, safeTxHash, domain.CollectedSignature{
		Signer:         signer,
		Bytes:          sigBytes,
		Source:         domain.SourceInjectedProvider,
		Method:         domain.MethodSafeTxHash,
		ChainID:        tx.ChainID,
		SafeAddress:    tx.SafeAddress,
		PayloadHash:    tx.SafeTxHash,
		ExpectedSigner: signer,
		AddedAtMs:      o.Clock.NowMs(),
	})
}

// ExecuteTxViaProvider submits a ReadyToExecute tx directly through the
// attached wallet instead of routing execution through SafeService, the way
// a connected owner broadcasting their own final execution would. It fails
// CHAIN_MISMATCH if the provider's chain doesn't match the tx's and
// NO_CONNECTED_ACCOUNT if no account is connected to send from.
func (o *Orchestrator) ExecuteTxViaProvider(ctx context.Context, tabID string, safeTxHash domain.Hash32) (domain.PendingSafeTx, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx, err := o.Queue.LoadTx(ctx, safeTxHash)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}

	chainID, err := o.Provider.ChainID(ctx)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	if chainID != tx.ChainID {
		return domain.PendingSafeTx{}, ports.NewPolicyError(ports.ReasonChainMismatch)
	}
	accounts, err := o.Provider.RequestAccounts(ctx)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	if len(accounts) == 0 {
		return domain.PendingSafeTx{}, ports.NewPolicyError(ports.ReasonNoConnectedAccount)
	}

	before := tx.Status
	next, err := statemachine.TxTransition(tx.Status, statemachine.TxActionExecuteStart)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx.Status = next

	payloadBytes, merr := json.Marshal(tx.Payload)
	if merr != nil {
		return domain.PendingSafeTx{}, ports.NewValidationError("marshal tx payload: %v", merr)
	}
	execHash, execErr := o.Provider.SendTransaction(ctx, payloadBytes)
	if execErr != nil {
		tx.Status, _ = statemachine.TxTransition(tx.Status, statemachine.TxActionExecuteFail)
		tx.UpdatedAtMs = o.Clock.NowMs()
		tx.StateRevision++
		_ = o.Queue.SaveTx(ctx, *tx)
		return domain.PendingSafeTx{}, execErr
	}

	tx.Status, err = statemachine.TxTransition(tx.Status, statemachine.TxActionExecuteSuccess)
	if err != nil {
		return domain.PendingSafeTx{}, err
	}
	tx.ExecutedTxHash = &execHash
	tx.UpdatedAtMs = o.Clock.NowMs()
	tx.StateRevision++
	if err := o.Queue.SaveTx(ctx, *tx); err != nil {
		return domain.PendingSafeTx{}, err
	}
	envelope := o.stampEnvelope("ExecuteTxViaProvider", "", "")
	if err := o.recordTransition(ctx, envelope, tx.FlowID(), string(before), string(tx.Status)); err != nil {
		return domain.PendingSafeTx{}, err
	}
	return *tx, nil
}

// CreateMessage builds a new PendingSafeMessage, computing its message hash.
func (o *Orchestrator) CreateMessage(ctx context.Context, tabID string, chainID uint64, safeAddress common.Address, method domain.SigningMethod, payload domain.MessagePayload) (domain.PendingSafeMessage, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.PendingSafeMessage{}, err
	}
	if method == domain.MethodEthSign {
		return domain.PendingSafeMessage{}, ports.NewPolicyError("eth_sign is disabled by default policy")
	}

	hash, err := o.Hashing.MessageHash(chainID, safeAddress, method, payload)
	if err != nil {
		return domain.PendingSafeMessage{}, err
	}

	now := o.Clock.NowMs()
	msg := domain.PendingSafeMessage{
		SchemaVersion: 1,
		ChainID:       chainID,
		SafeAddress:   safeAddress,
		Method:        method,
		Payload:       payload,
		MessageHash:   hash,
		Status:        domain.MsgDraft,
		StateRevision: 1,
		CreatedAtMs:   now,
		UpdatedAtMs:   now,
		MacAlgorithm:  domain.MacHmacSha256V1,
		MacKeyID:      hash.Hex(),
	}
	mac, err := o.Hashing.IntegrityMac([]byte(hash.Hex()), msg.MacKeyID)
	if err != nil {
		return domain.PendingSafeMessage{}, err
	}
	msg.IntegrityMac = mac

	if err := o.Queue.SaveMessage(ctx, msg); err != nil {
		return domain.PendingSafeMessage{}, err
	}
	return msg, nil
}

// AddMessageSignature mirrors AddTxSignature for off-chain messages.
func (o *Orchestrator) AddMessageSignature(ctx context.Context, tabID string, messageHash domain.Hash32, sig domain.CollectedSignature) (domain.PendingSafeMessage, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.PendingSafeMessage{}, err
	}
	msg, err := o.Queue.LoadMessage(ctx, messageHash)
	if err != nil {
		return domain.PendingSafeMessage{}, err
	}
	if msg.IsTerminal() {
		return domain.PendingSafeMessage{}, ports.NewConflictError("message %s is in a terminal state", messageHash.Hex())
	}
	if msg.HasSignature(sig) {
		return *msg, nil
	}

	if msg.Status == domain.MsgDraft {
		next, err := statemachine.MessageTransition(msg.Status, statemachine.MessageActionSign)
		if err != nil {
			return domain.PendingSafeMessage{}, err
		}
		msg.Status = next
	}

	msg.Signatures = append(msg.Signatures, sig)
	if statemachine.ThresholdMetForMessage(msg) {
		next, err := statemachine.MessageTransition(msg.Status, statemachine.MessageActionThresholdMet)
		if err == nil {
			msg.Status = next
		}
	}

	msg.UpdatedAtMs = o.Clock.NowMs()
	msg.StateRevision++
	if err := o.Queue.SaveMessage(ctx, *msg); err != nil {
		return domain.PendingSafeMessage{}, err
	}
	return *msg, nil
}

// ConnectProvider requests accounts/chain from the Provider port and flags a
// mismatch against expectedChainID rather than failing outright, mirroring
// the tolerant reconciliation RecoverProviderEvents performs later.
func (o *Orchestrator) ConnectProvider(ctx context.Context, expectedChainID uint64) ([]common.Address, bool, error) {
	accounts, err := o.Provider.RequestAccounts(ctx)
	if err != nil {
		return nil, false, err
	}
	chainID, err := o.Provider.ChainID(ctx)
	if err != nil {
		return nil, false, err
	}
	return accounts, chainID != expectedChainID, nil
}

// RecoverProviderEvents drains the Provider's event buffer and reconciles
// the queue. An AccountsChanged event is reported in the summary only; it
// changes no flow. When a ChainChanged event was drained or the provider's
// chain differs from expectedChainID, every non-terminal tx and message
// whose ChainID differs from the provider's chain is marked Failed.
func (o *Orchestrator) RecoverProviderEvents(ctx context.Context, expectedChainID uint64) (domain.ProviderRecoverySummary, error) {
	events, err := o.Provider.DrainEvents(ctx)
	if err != nil {
		return domain.ProviderRecoverySummary{}, err
	}

	summary := domain.ProviderRecoverySummary{DrainedEvents: len(events)}
	var latestChainID *uint64
	for _, ev := range events {
		switch ev.Kind {
		case domain.EventAccountsChanged:
			summary.AccountsChanged = true
		case domain.EventChainChanged:
			summary.ChainChanged = true
		}
	}

	accounts, err := o.Provider.RequestAccounts(ctx)
	if err != nil {
		return domain.ProviderRecoverySummary{}, err
	}
	summary.LatestAccountCount = len(accounts)

	chainID, err := o.Provider.ChainID(ctx)
	if err != nil {
		return domain.ProviderRecoverySummary{}, err
	}
	latestChainID = &chainID
	summary.LatestChainID = latestChainID
	summary.ExpectedChainMismatch = chainID != expectedChainID

	if summary.ChainChanged || summary.ExpectedChainMismatch {
		txs, err := o.Queue.ListTxs(ctx)
		if err != nil {
			return domain.ProviderRecoverySummary{}, err
		}
		for _, tx := range txs {
			if tx.IsTerminal() || tx.ChainID == chainID {
				continue
			}
			tx.Status = domain.TxFailed
			tx.UpdatedAtMs = o.Clock.NowMs()
			tx.StateRevision++
			if err := o.Queue.SaveTx(ctx, tx); err == nil {
				summary.TxFlowsMarked++
			}
		}
		messages, err := o.Queue.ListMessages(ctx)
		if err != nil {
			return domain.ProviderRecoverySummary{}, err
		}
		for _, msg := range messages {
			if msg.IsTerminal() || msg.ChainID == chainID {
				continue
			}
			msg.Status = domain.MsgFailed
			msg.UpdatedAtMs = o.Clock.NowMs()
			msg.StateRevision++
			if err := o.Queue.SaveMessage(ctx, msg); err == nil {
				summary.MessageFlowsMarked++
			}
		}
	}

	return summary, nil
}

// WcPair pairs a new WalletConnect session from a relay URI.
func (o *Orchestrator) WcPair(ctx context.Context, uri string) (domain.WcSessionContext, error) {
	return o.WalletConnect.Pair(ctx, uri)
}

// WcSessionAction applies Approve/Reject/Disconnect to an existing session.
func (o *Orchestrator) WcSessionAction(ctx context.Context, topic string, action ports.WcSessionAction) (domain.WcSessionContext, error) {
	return o.WalletConnect.SessionAction(ctx, topic, action)
}

// RespondWalletConnect answers an inbound dApp request. The WalletConnect
// port itself enforces the request-expiry, session-approval, and
// deferred-linkage invariants before marking the request Responded; this
// also mirrors that transition into the queue's own bookkeeping copy, if
// one exists.
func (o *Orchestrator) RespondWalletConnect(ctx context.Context, tabID, requestID string, result []byte, rpcErr *RpcError) error {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return err
	}

	if rpcErr != nil {
		if err := o.WalletConnect.RespondError(ctx, requestID, rpcErr.Code, rpcErr.Message); err != nil {
			return err
		}
	} else {
		if err := o.WalletConnect.RespondSuccess(ctx, requestID, result); err != nil {
			return err
		}
	}

	req, err := o.Queue.LoadWcRequest(ctx, requestID)
	if ports.IsKind(err, ports.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	before := req.Status
	next, err := statemachine.WcTransition(req.Status, statemachine.WcActionRespond)
	if err != nil {
		return err
	}
	req.Status = next
	req.UpdatedAtMs = o.Clock.NowMs()
	req.StateRevision++
	if err := o.Queue.SaveWcRequest(ctx, *req); err != nil {
		return err
	}
	envelope := o.stampEnvelope("RespondWalletConnect", "", "")
	return o.recordTransition(ctx, envelope, req.FlowID(), string(before), string(req.Status))
}

// RpcError carries a JSON-RPC error response for RespondWalletConnect.
type RpcError struct {
	Code    int
	Message string
}

// ImportBundle merges an exported signing bundle into the queue.
func (o *Orchestrator) ImportBundle(ctx context.Context, tabID string, bundle domain.SigningBundle) (domain.MergeResult, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.MergeResult{}, err
	}
	return o.Queue.ImportBundle(ctx, bundle)
}

// ExportBundle assembles a portable bundle of the named flows.
func (o *Orchestrator) ExportBundle(ctx context.Context, flowIDs []string) (domain.SigningBundle, error) {
	return o.Queue.ExportBundle(ctx, flowIDs)
}

// ImportUrlPayload merges a single-item URL-import envelope into the queue.
func (o *Orchestrator) ImportUrlPayload(ctx context.Context, tabID string, envelope domain.UrlImportEnvelope) (domain.MergeResult, error) {
	if err := o.Queue.EnsureWriterLock(ctx, tabID, o.Clock.NowMs()); err != nil {
		return domain.MergeResult{}, err
	}
	return o.Queue.ImportUrlPayload(ctx, envelope)
}
