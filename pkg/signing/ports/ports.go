// Copyright 2025 Certen Protocol
//
// Package ports declares the interface boundary between the orchestrator
// and its seven collaborators (Clock, Provider, SafeService, WalletConnect,
// Abi, Queue, Hashing), plus the error taxonomy every one of them speaks.
package ports

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
)

// ErrorKind is one of the six reserved error categories propagated verbatim
// to callers. Never add a seventh without updating every switch over Kind.
type ErrorKind string

const (
	KindNotImplemented ErrorKind = "NotImplemented"
	KindTransport      ErrorKind = "Transport"
	KindValidation     ErrorKind = "Validation"
	KindNotFound       ErrorKind = "NotFound"
	KindConflict       ErrorKind = "Conflict"
	KindPolicy         ErrorKind = "Policy"
)

// PortError is the single error type every port returns. Callers switch on
// Kind rather than comparing against sentinel values, since the message
// text varies.
type PortError struct {
	Kind    ErrorKind
	Message string
}

func (e *PortError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newErr(kind ErrorKind, format string, args ...interface{}) *PortError {
	return &PortError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewNotImplementedError(reason string) *PortError { return newErr(KindNotImplemented, "%s", reason) }
func NewTransportError(format string, args ...interface{}) *PortError {
	return newErr(KindTransport, format, args...)
}
func NewValidationError(format string, args ...interface{}) *PortError {
	return newErr(KindValidation, format, args...)
}
func NewNotFoundError(format string, args ...interface{}) *PortError {
	return newErr(KindNotFound, format, args...)
}
func NewConflictError(format string, args ...interface{}) *PortError {
	return newErr(KindConflict, format, args...)
}
func NewPolicyError(format string, args ...interface{}) *PortError {
	return newErr(KindPolicy, format, args...)
}

// IsKind reports whether err is a *PortError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	pe, ok := err.(*PortError)
	return ok && pe.Kind == kind
}

// Reason* are the stable, user-visible error codes the orchestrator's
// callers match on. Keep them verbatim once published; renaming one is a
// breaking change for every client that pattern-matches on the string.
const (
	ReasonWriterLockConflict    = "WRITER_LOCK_CONFLICT"
	ReasonInvalidSignatureFormat = "INVALID_SIGNATURE_FORMAT"
	ReasonSignerRecoveryMismatch = "SIGNER_RECOVERY_MISMATCH"
	ReasonAbiSelectorMismatch   = "ABI_SELECTOR_MISMATCH"
	ReasonUrlImportSchemaInvalid = "URL_IMPORT_SCHEMA_INVALID"
	ReasonWcSessionNotApproved  = "WC_SESSION_NOT_APPROVED"
	ReasonWcRequestExpired      = "WC_REQUEST_EXPIRED"
	ReasonChainMismatch         = "CHAIN_MISMATCH"
	ReasonNoConnectedAccount    = "NO_CONNECTED_ACCOUNT"
)

// Clock returns monotonic (within a process run) millisecond timestamps.
type Clock interface {
	NowMs() domain.TimestampMs
}

// Provider is the injected-wallet / bridge abstraction: accounts, chain id,
// capabilities, signing, sending, and the recoverable event stream.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	WalletGetCapabilities(ctx context.Context) ([]byte, error)
	SignPayload(ctx context.Context, method domain.SigningMethod, payload []byte, expectedSigner common.Address) ([]byte, error)
	SendTransaction(ctx context.Context, txPayload []byte) (domain.Hash32, error)
	DrainEvents(ctx context.Context) ([]domain.ProviderEvent, error)
	DebugInjectAccountsChanged(accounts []common.Address) error
	DebugInjectChainChanged(chainID uint64) error
}

// RemoteTxStatus is the structured status returned by SafeService.FetchStatus.
type RemoteTxStatus struct {
	SafeTxHash  domain.Hash32 `json:"safe_tx_hash"`
	Proposed    bool          `json:"proposed"`
	Confirmations int         `json:"confirmations"`
	Executed    bool          `json:"executed"`
	ExecutedTxHash *domain.Hash32 `json:"executed_tx_hash,omitempty"`
}

// SafeService is the remote Safe Transaction Service abstraction.
type SafeService interface {
	ProposeTx(ctx context.Context, tx domain.PendingSafeTx) error
	ConfirmTx(ctx context.Context, safeTxHash domain.Hash32, signature []byte) error
	ExecuteTx(ctx context.Context, tx domain.PendingSafeTx) (domain.Hash32, error)
	FetchStatus(ctx context.Context, safeTxHash domain.Hash32) (RemoteTxStatus, error)
}

// WcSessionAction is one of the three session-level WalletConnect actions.
type WcSessionAction string

const (
	WcActionApprove    WcSessionAction = "Approve"
	WcActionReject     WcSessionAction = "Reject"
	WcActionDisconnect WcSessionAction = "Disconnect"
)

// WalletConnect is the pairing / session / request-response abstraction.
type WalletConnect interface {
	Pair(ctx context.Context, uri string) (domain.WcSessionContext, error)
	SessionAction(ctx context.Context, topic string, action WcSessionAction) (domain.WcSessionContext, error)
	ListSessions(ctx context.Context) ([]domain.WcSessionContext, error)
	ListPendingRequests(ctx context.Context) ([]domain.PendingWalletConnectRequest, error)
	RespondSuccess(ctx context.Context, requestID string, result []byte) error
	RespondError(ctx context.Context, requestID string, code int, msg string) error
	Sync(ctx context.Context) error
}

// Abi is the calldata-encoding abstraction.
type Abi interface {
	EncodeCalldata(abiJSON []byte, methodSignature string, args []string) ([]byte, [4]byte, error)
}

// Hashing computes the deterministic digests the orchestrator signs over.
type Hashing interface {
	SafeTxHash(chainID uint64, safeAddress common.Address, nonce uint64, payload domain.TxPayload) (hash domain.Hash32, unsafeFallback bool, err error)
	MessageHash(chainID uint64, safeAddress common.Address, method domain.SigningMethod, payload domain.MessagePayload) (domain.Hash32, error)
	IntegrityMac(payload []byte, keyID string) ([]byte, error)
}

// Queue owns every persisted entity plus the writer lock and transition log.
type Queue interface {
	AcquireWriterLock(ctx context.Context, lock domain.AppWriterLock) error
	LoadWriterLock(ctx context.Context) (*domain.AppWriterLock, error)
	ReleaseWriterLock(ctx context.Context, tabID string) error
	EnsureWriterLock(ctx context.Context, tabID string, nowMs domain.TimestampMs) error

	SaveTx(ctx context.Context, tx domain.PendingSafeTx) error
	LoadTx(ctx context.Context, hash domain.Hash32) (*domain.PendingSafeTx, error)
	ListTxs(ctx context.Context) ([]domain.PendingSafeTx, error)

	SaveMessage(ctx context.Context, msg domain.PendingSafeMessage) error
	LoadMessage(ctx context.Context, hash domain.Hash32) (*domain.PendingSafeMessage, error)
	ListMessages(ctx context.Context) ([]domain.PendingSafeMessage, error)

	SaveWcRequest(ctx context.Context, req domain.PendingWalletConnectRequest) error
	LoadWcRequest(ctx context.Context, id string) (*domain.PendingWalletConnectRequest, error)
	ListWcRequests(ctx context.Context) ([]domain.PendingWalletConnectRequest, error)

	AppendTransitionLog(ctx context.Context, record domain.TransitionLogRecord) error
	LoadTransitionLog(ctx context.Context, flowID string) ([]domain.TransitionLogRecord, error)

	ImportBundle(ctx context.Context, bundle domain.SigningBundle) (domain.MergeResult, error)
	ExportBundle(ctx context.Context, flowIDs []string) (domain.SigningBundle, error)
	ImportUrlPayload(ctx context.Context, envelope domain.UrlImportEnvelope) (domain.MergeResult, error)
}
