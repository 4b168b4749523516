// Copyright 2025 Certen Protocol
//
// Package domain holds the entities owned by the signing queue: pending
// transactions, pending messages, WalletConnect requests, the writer lock,
// the transition log, and the portable signing bundle. Nothing in this
// package talks to the network or the filesystem; it is pure data plus the
// small amount of logic (signature counting, merge bookkeeping) that every
// port needs a shared view of.
package domain

import "github.com/ethereum/go-ethereum/common"

// TimestampMs is milliseconds since the Unix epoch.
type TimestampMs = uint64

// Hash32 is a 32-byte digest: safeTxHash, messageHash, bundle digest, MAC.
type Hash32 = common.Hash

// SignatureSource identifies where a collected signature came from.
type SignatureSource string

const (
	SourceInjectedProvider SignatureSource = "InjectedProvider"
	SourceWalletConnect    SignatureSource = "WalletConnect"
	SourceImportedBundle   SignatureSource = "ImportedBundle"
	SourceManualEntry      SignatureSource = "ManualEntry"
)

// SigningMethod is the wallet RPC method used to produce a signature.
type SigningMethod string

const (
	MethodSafeTxHash          SigningMethod = "SafeTxHash"
	MethodPersonalSign        SigningMethod = "PersonalSign"
	MethodEthSign             SigningMethod = "EthSign"
	MethodEthSignTypedData    SigningMethod = "EthSignTypedData"
	MethodEthSignTypedDataV4  SigningMethod = "EthSignTypedDataV4"
)

// CollectedSignature is one owner's signature over a specific payload hash.
type CollectedSignature struct {
	Signer         common.Address  `json:"signer"`
	Bytes          []byte          `json:"bytes"`
	Source         SignatureSource `json:"source"`
	Method         SigningMethod   `json:"method"`
	ChainID        uint64          `json:"chain_id"`
	SafeAddress    common.Address  `json:"safe_address"`
	PayloadHash    Hash32          `json:"payload_hash"`
	ExpectedSigner common.Address  `json:"expected_signer"`
	RecoveredSigner *common.Address `json:"recovered_signer,omitempty"`
	AddedAtMs      TimestampMs     `json:"added_at_ms"`
}

// Equal compares two collected signatures by (signer, bytes); all other
// fields are provenance/bookkeeping and do not affect identity.
func (s CollectedSignature) Equal(other CollectedSignature) bool {
	if s.Signer != other.Signer {
		return false
	}
	if len(s.Bytes) != len(other.Bytes) {
		return false
	}
	for i := range s.Bytes {
		if s.Bytes[i] != other.Bytes[i] {
			return false
		}
	}
	return true
}

// TxStatus is the lifecycle state of a PendingSafeTx.
type TxStatus string

const (
	TxDraft          TxStatus = "Draft"
	TxSigning        TxStatus = "Signing"
	TxProposed       TxStatus = "Proposed"
	TxConfirming     TxStatus = "Confirming"
	TxReadyToExecute TxStatus = "ReadyToExecute"
	TxExecuting      TxStatus = "Executing"
	TxExecuted       TxStatus = "Executed"
	TxFailed         TxStatus = "Failed"
	TxCancelled      TxStatus = "Cancelled"
)

// BuildSource records how a tx's calldata was produced.
type BuildSource string

const (
	BuildRawCalldata   BuildSource = "RawCalldata"
	BuildAbiMethodForm BuildSource = "AbiMethodForm"
	BuildUrlImport     BuildSource = "UrlImport"
)

// MacAlgorithm names the integrity-MAC construction recorded on persisted
// entities and bundles.
type MacAlgorithm string

const MacHmacSha256V1 MacAlgorithm = "HmacSha256V1"

// AbiMethodContext records how a tx's calldata was built from an ABI method.
type AbiMethodContext struct {
	AbiDigest           Hash32 `json:"abi_digest"`
	MethodSignature     string `json:"method_signature"`
	MethodSelector      [4]byte `json:"method_selector"`
	EncodedArgs         []byte `json:"encoded_args"`
	RawCalldataOverride bool   `json:"raw_calldata_override"`
}

// TxPayload is the structured Safe transaction payload. All numeric fields
// are carried as decimal or 0x-hex strings on the wire; missing numerics
// default to zero and missing addresses default to the zero address per
// the hashing component's rules.
type TxPayload struct {
	To             string `json:"to"`
	Value          string `json:"value"`
	Data           string `json:"data"`
	Operation      int    `json:"operation"`
	SafeTxGas      string `json:"safeTxGas"`
	BaseGas        string `json:"baseGas"`
	GasPrice       string `json:"gasPrice"`
	GasToken       string `json:"gasToken"`
	RefundReceiver string `json:"refundReceiver"`
	Threshold      int    `json:"threshold"`
	SafeVersion    string `json:"safeVersion"`
}

// ThresholdOrDefault derives the signature threshold from the payload,
// clamping anything below 1 up to 1.
func (p TxPayload) ThresholdOrDefault() int {
	if p.Threshold < 1 {
		return 1
	}
	return p.Threshold
}

// PendingSafeTx is a transaction awaiting collection of owner signatures.
type PendingSafeTx struct {
	SchemaVersion    int                 `json:"schema_version"`
	ChainID          uint64              `json:"chain_id"`
	SafeAddress      common.Address      `json:"safe_address"`
	Nonce            uint64              `json:"nonce"`
	Payload          TxPayload           `json:"payload"`
	BuildSource      BuildSource         `json:"build_source"`
	AbiContext       *AbiMethodContext   `json:"abi_context,omitempty"`
	SafeTxHash       Hash32              `json:"safe_tx_hash"`
	Signatures       []CollectedSignature `json:"signatures"`
	Status           TxStatus            `json:"status"`
	StateRevision    uint64              `json:"state_revision"`
	IdempotencyKey   string              `json:"idempotency_key"`
	CreatedAtMs      TimestampMs         `json:"created_at_ms"`
	UpdatedAtMs      TimestampMs         `json:"updated_at_ms"`
	ExecutedTxHash   *Hash32             `json:"executed_tx_hash,omitempty"`
	MacAlgorithm     MacAlgorithm        `json:"mac_algorithm"`
	MacKeyID         string              `json:"mac_key_id"`
	IntegrityMac     []byte              `json:"integrity_mac"`
}

// SignatureCount returns the number of distinct collected signatures.
func (t *PendingSafeTx) SignatureCount() int {
	return len(t.Signatures)
}

// HasSignature reports whether (signer, bytes) is already recorded.
func (t *PendingSafeTx) HasSignature(sig CollectedSignature) bool {
	for _, existing := range t.Signatures {
		if existing.Equal(sig) {
			return true
		}
	}
	return false
}

// FlowID is the transition-log key for a tx flow.
func (t *PendingSafeTx) FlowID() string {
	return "tx:" + t.SafeTxHash.Hex()
}

// IsTerminal reports whether the tx's status accepts no further mutation.
func (t *PendingSafeTx) IsTerminal() bool {
	switch t.Status {
	case TxExecuted, TxFailed, TxCancelled:
		return true
	default:
		return false
	}
}

// MessageStatus is the lifecycle state of a PendingSafeMessage.
type MessageStatus string

const (
	MsgDraft            MessageStatus = "Draft"
	MsgSigning          MessageStatus = "Signing"
	MsgAwaitingThreshold MessageStatus = "AwaitingThreshold"
	MsgThresholdMet     MessageStatus = "ThresholdMet"
	MsgResponded        MessageStatus = "Responded"
	MsgFailed           MessageStatus = "Failed"
	MsgCancelled        MessageStatus = "Cancelled"
)

// MessagePayload is the structured payload for a Safe off-chain message.
type MessagePayload struct {
	Message     string `json:"message"`
	Threshold   int    `json:"threshold"`
	SafeVersion string `json:"safeVersion"`
}

// ThresholdOrDefault mirrors TxPayload's rule.
func (p MessagePayload) ThresholdOrDefault() int {
	if p.Threshold < 1 {
		return 1
	}
	return p.Threshold
}

// PendingSafeMessage is an off-chain message awaiting owner signatures.
type PendingSafeMessage struct {
	SchemaVersion int                  `json:"schema_version"`
	ChainID       uint64               `json:"chain_id"`
	SafeAddress   common.Address       `json:"safe_address"`
	Method        SigningMethod        `json:"method"`
	Payload       MessagePayload       `json:"payload"`
	MessageHash   Hash32               `json:"message_hash"`
	Signatures    []CollectedSignature `json:"signatures"`
	Status        MessageStatus        `json:"status"`
	StateRevision uint64               `json:"state_revision"`
	CreatedAtMs   TimestampMs          `json:"created_at_ms"`
	UpdatedAtMs   TimestampMs          `json:"updated_at_ms"`
	MacAlgorithm  MacAlgorithm         `json:"mac_algorithm"`
	MacKeyID      string               `json:"mac_key_id"`
	IntegrityMac  []byte               `json:"integrity_mac"`
}

func (m *PendingSafeMessage) SignatureCount() int { return len(m.Signatures) }

func (m *PendingSafeMessage) HasSignature(sig CollectedSignature) bool {
	for _, existing := range m.Signatures {
		if existing.Equal(sig) {
			return true
		}
	}
	return false
}

func (m *PendingSafeMessage) FlowID() string { return "msg:" + m.MessageHash.Hex() }

func (m *PendingSafeMessage) IsTerminal() bool {
	switch m.Status {
	case MsgResponded, MsgFailed, MsgCancelled:
		return true
	default:
		return false
	}
}

// WcStatus is the lifecycle state of a PendingWalletConnectRequest.
type WcStatus string

const (
	WcPending            WcStatus = "Pending"
	WcRouted             WcStatus = "Routed"
	WcRespondingImmediate WcStatus = "RespondingImmediate"
	WcRespondingDeferred WcStatus = "RespondingDeferred"
	WcResponded          WcStatus = "Responded"
	WcAwaitingThreshold  WcStatus = "AwaitingThreshold"
	WcExpired            WcStatus = "Expired"
	WcFailed             WcStatus = "Failed"
)

// WcMethod is the JSON-RPC method carried by a WalletConnect request.
type WcMethod string

const (
	WcMethodSignTransaction WcMethod = "eth_sendTransaction"
	WcMethodSignMessage     WcMethod = "personal_sign"
	WcMethodSignTypedData   WcMethod = "eth_signTypedData_v4"
)

// PendingWalletConnectRequest is an inbound dApp request routed through a
// WalletConnect session, possibly linked to a tx or message flow.
type PendingWalletConnectRequest struct {
	RequestID         string      `json:"request_id"`
	Topic             string      `json:"topic"`
	SessionStatus     string      `json:"session_status"`
	ChainID           uint64      `json:"chain_id"`
	Method            WcMethod    `json:"method"`
	Status            WcStatus    `json:"status"`
	LinkedSafeTxHash  *Hash32     `json:"linked_safe_tx_hash,omitempty"`
	LinkedMessageHash *Hash32     `json:"linked_message_hash,omitempty"`
	CreatedAtMs       TimestampMs `json:"created_at_ms"`
	UpdatedAtMs       TimestampMs `json:"updated_at_ms"`
	ExpiresAtMs       *TimestampMs `json:"expires_at_ms,omitempty"`
	StateRevision     uint64      `json:"state_revision"`
	CorrelationID     string      `json:"correlation_id"`
}

func (w *PendingWalletConnectRequest) FlowID() string { return "wc:" + w.RequestID }

func (w *PendingWalletConnectRequest) IsExpired(nowMs TimestampMs) bool {
	return w.ExpiresAtMs != nil && nowMs >= *w.ExpiresAtMs
}

// WcSessionStatus is the lifecycle state of a dApp session.
type WcSessionStatus string

const (
	SessionProposed     WcSessionStatus = "Proposed"
	SessionApproved     WcSessionStatus = "Approved"
	SessionRejected     WcSessionStatus = "Rejected"
	SessionDisconnected WcSessionStatus = "Disconnected"
)

// WcSessionContext describes one dApp's pairing/session state.
type WcSessionContext struct {
	Topic              string          `json:"topic"`
	Status             WcSessionStatus `json:"status"`
	DappName           string          `json:"dapp_name,omitempty"`
	DappURL            string          `json:"dapp_url,omitempty"`
	DappIcons          []string        `json:"dapp_icons,omitempty"`
	CapabilitySnapshot []byte          `json:"capability_snapshot,omitempty"`
	UpdatedAtMs        TimestampMs     `json:"updated_at_ms"`
}

// AppWriterLock is the single-holder leased exclusivity token serializing
// mutating commands across devices/tabs.
type AppWriterLock struct {
	HolderTabID string      `json:"holder_tab_id"`
	TabNonce    string      `json:"tab_nonce"`
	LockEpoch   uint64      `json:"lock_epoch"`
	AcquiredAtMs TimestampMs `json:"acquired_at_ms"`
	ExpiresAtMs TimestampMs `json:"expires_at_ms"`
}

// Expired reports whether the lease has elapsed as of nowMs.
func (l AppWriterLock) Expired(nowMs TimestampMs) bool {
	return l.ExpiresAtMs <= nowMs
}

// TransitionLogRecord is one append-only entry in a flow's transition log.
type TransitionLogRecord struct {
	EventSeq           uint64      `json:"event_seq"`
	CommandID          string      `json:"command_id"`
	FlowID             string      `json:"flow_id"`
	StateBefore        string      `json:"state_before"`
	StateAfter         string      `json:"state_after"`
	SideEffectKey      string      `json:"side_effect_key,omitempty"`
	SideEffectDispatched bool      `json:"side_effect_dispatched"`
	SideEffectOutcome  string      `json:"side_effect_outcome,omitempty"`
	RecordedAtMs       TimestampMs `json:"recorded_at_ms"`
}

// KdfAlgorithm names the key-derivation function used by a bundle's crypto
// envelope.
type KdfAlgorithm string

const (
	KdfArgon2idV1          KdfAlgorithm = "Argon2idV1"
	KdfPbkdf2HmacSha256V1  KdfAlgorithm = "Pbkdf2HmacSha256V1"
)

// BundleCryptoEnvelope carries the AEAD parameters for an encrypted bundle.
type BundleCryptoEnvelope struct {
	KdfAlgorithm KdfAlgorithm `json:"kdf_algorithm"`
	KdfSalt      []byte       `json:"kdf_salt_base64"`
	EncNonce     []byte       `json:"enc_nonce_base64"`
	Ciphertext   []byte       `json:"ciphertext_base64"`
}

// SigningBundle is a portable, authenticated snapshot of selected flows.
type SigningBundle struct {
	SchemaVersion  int                          `json:"schema_version"`
	ExportedAtMs   TimestampMs                  `json:"exported_at_ms"`
	Exporter       common.Address               `json:"exporter"`
	BundleDigest   Hash32                       `json:"bundle_digest"`
	BundleSignature []byte                      `json:"bundle_signature"`
	Txs            []PendingSafeTx              `json:"txs"`
	Messages       []PendingSafeMessage         `json:"messages"`
	WcRequests     []PendingWalletConnectRequest `json:"wc_requests"`
	CryptoEnvelope *BundleCryptoEnvelope        `json:"crypto_envelope,omitempty"`
	MacAlgorithm   MacAlgorithm                 `json:"mac_algorithm"`
	MacKeyID       string                       `json:"mac_key_id"`
	IntegrityMac   []byte                       `json:"integrity_mac"`
}

// UrlImportKey names the four single-item URL-import envelope kinds.
type UrlImportKey string

const (
	UrlImportTx      UrlImportKey = "importTx"
	UrlImportSig     UrlImportKey = "importSig"
	UrlImportMsg     UrlImportKey = "importMsg"
	UrlImportMsgSig  UrlImportKey = "importMsgSig"
)

// UrlImportEnvelope is a single-item, base64url-encoded import payload.
type UrlImportEnvelope struct {
	Key            UrlImportKey `json:"key"`
	SchemaVersion  int          `json:"schema_version"`
	PayloadBase64Url string     `json:"payload_base64url"`
}

// MergeResult tallies the outcome of merging an imported bundle into the
// queue, per entity kind.
type MergeResult struct {
	TxAdded         int `json:"tx_added"`
	TxUpdated       int `json:"tx_updated"`
	TxSkipped       int `json:"tx_skipped"`
	TxConflicted    int `json:"tx_conflicted"`
	MessageAdded    int `json:"message_added"`
	MessageUpdated  int `json:"message_updated"`
	MessageSkipped  int `json:"message_skipped"`
	MessageConflicted int `json:"message_conflicted"`
	WcAdded         int `json:"wc_added"`
	WcSkipped       int `json:"wc_skipped"`
}

// Empty returns a zeroed MergeResult.
func Empty() MergeResult { return MergeResult{} }

// ProviderEventKind distinguishes the two recoverable provider events.
type ProviderEventKind string

const (
	EventAccountsChanged ProviderEventKind = "AccountsChanged"
	EventChainChanged    ProviderEventKind = "ChainChanged"
)

// ProviderEvent is one entry in the provider's drainable event buffer.
type ProviderEvent struct {
	Sequence uint64            `json:"sequence"`
	Kind     ProviderEventKind `json:"kind"`
	Value    []byte            `json:"value"`
}

// ProviderRecoverySummary is returned from RecoverProviderEvents.
type ProviderRecoverySummary struct {
	DrainedEvents         int    `json:"drained_events"`
	AccountsChanged       bool   `json:"accounts_changed"`
	ChainChanged          bool   `json:"chain_changed"`
	LatestChainID         *uint64 `json:"latest_chain_id,omitempty"`
	ExpectedChainMismatch bool   `json:"expected_chain_mismatch"`
	LatestAccountCount    int    `json:"latest_account_count"`
	TxFlowsMarked         int    `json:"tx_flows_marked"`
	MessageFlowsMarked    int    `json:"message_flows_marked"`
}

// CommandEnvelope is stamped onto every inbound command before dispatch.
type CommandEnvelope struct {
	CommandID          string      `json:"command_id"`
	CorrelationID      string      `json:"correlation_id"`
	ParityCapabilityID string      `json:"parity_capability_id"`
	IdempotencyKey     string      `json:"idempotency_key"`
	IssuedAtMs         TimestampMs `json:"issued_at_ms"`
	CommandKind        string      `json:"command_kind"`
}
