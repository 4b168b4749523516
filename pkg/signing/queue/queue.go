// Copyright 2025 Certen Protocol
//
// Package queue implements the Queue port: an in-memory store for pending
// txs, messages, and WalletConnect requests, the single-holder writer lock
// that serializes mutation across devices, the append-only per-flow
// transition log, and bundle/URL import-export. A durable KV-backed mirror
// can sit behind the same interface; this adapter is the source of truth
// for development and tests.
package queue

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/cryptoutil"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/metrics"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
)

// Adapter is the Queue port's in-memory implementation.
type Adapter struct {
	clock   ports.Clock
	hashing ports.Hashing

	mu            sync.Mutex
	lock          *domain.AppWriterLock
	txs           map[domain.Hash32]*domain.PendingSafeTx
	messages      map[domain.Hash32]*domain.PendingSafeMessage
	wcRequests    map[string]*domain.PendingWalletConnectRequest
	transitionLog map[string][]domain.TransitionLogRecord

	exportSigner     *ecdsa.PrivateKey
	bundlePassphrase []byte
}

// SetExportSigner configures the key ExportBundle signs bundle digests with.
// Bundles exported with no key configured carry no signature or exporter.
func (a *Adapter) SetExportSigner(key *ecdsa.PrivateKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.exportSigner = key
}

// SetBundlePassphrase configures the passphrase ExportBundle derives an
// AES-256-GCM key from to encrypt bundle contents. Bundles exported with no
// passphrase configured carry no crypto envelope.
func (a *Adapter) SetBundlePassphrase(passphrase []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bundlePassphrase = passphrase
}

// NewAdapter constructs an empty in-memory Queue.
func NewAdapter(clock ports.Clock, hashing ports.Hashing) *Adapter {
	return &Adapter{
		clock:         clock,
		hashing:       hashing,
		txs:           make(map[domain.Hash32]*domain.PendingSafeTx),
		messages:      make(map[domain.Hash32]*domain.PendingSafeMessage),
		wcRequests:    make(map[string]*domain.PendingWalletConnectRequest),
		transitionLog: make(map[string][]domain.TransitionLogRecord),
	}
}

// AcquireWriterLock grants lock to its holder if no lease is currently held,
// the existing lease has expired, or the requester already holds it.
func (a *Adapter) AcquireWriterLock(ctx context.Context, lock domain.AppWriterLock) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lock != nil && !a.lock.Expired(a.clock.NowMs()) && a.lock.HolderTabID != lock.HolderTabID {
		metrics.WriterLockConflictsTotal.Inc()
		return ports.NewConflictError(ports.ReasonWriterLockConflict)
	}
	a.lock = &lock
	return nil
}

// LoadWriterLock returns the current lease, or nil if none is held.
func (a *Adapter) LoadWriterLock(ctx context.Context) (*domain.AppWriterLock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lock == nil {
		return nil, nil
	}
	copied := *a.lock
	return &copied, nil
}

// ReleaseWriterLock releases the lease if tabID currently holds it.
func (a *Adapter) ReleaseWriterLock(ctx context.Context, tabID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lock == nil {
		return nil
	}
	if a.lock.HolderTabID != tabID {
		return ports.NewConflictError(ports.ReasonWriterLockConflict)
	}
	a.lock = nil
	return nil
}

// EnsureWriterLock verifies tabID currently holds a non-expired lease.
// Every mutating orchestrator command calls this before touching state.
func (a *Adapter) EnsureWriterLock(ctx context.Context, tabID string, nowMs domain.TimestampMs) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lock == nil || a.lock.Expired(nowMs) || a.lock.HolderTabID != tabID {
		return ports.NewConflictError(ports.ReasonWriterLockConflict)
	}
	return nil
}

// SaveTx persists tx under optimistic concurrency: a brand new tx must carry
// StateRevision 1, and an update must carry exactly existing.StateRevision+1.
func (a *Adapter) SaveTx(ctx context.Context, tx domain.PendingSafeTx) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.txs[tx.SafeTxHash]
	if err := checkRevision(ok, revisionOf(existing), tx.StateRevision); err != nil {
		return err
	}
	stored := tx
	a.txs[tx.SafeTxHash] = &stored
	return nil
}

func revisionOf(tx *domain.PendingSafeTx) uint64 {
	if tx == nil {
		return 0
	}
	return tx.StateRevision
}

func checkRevision(exists bool, currentRevision, incomingRevision uint64) error {
	if !exists {
		if incomingRevision != 1 {
			return ports.NewConflictError("new entity must start at state revision 1, got %d", incomingRevision)
		}
		return nil
	}
	if incomingRevision != currentRevision+1 {
		return ports.NewConflictError("stale write: current revision %d, incoming %d", currentRevision, incomingRevision)
	}
	return nil
}

// LoadTx returns the tx for safeTxHash, or a NotFound error.
func (a *Adapter) LoadTx(ctx context.Context, hash domain.Hash32) (*domain.PendingSafeTx, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, ok := a.txs[hash]
	if !ok {
		return nil, ports.NewNotFoundError("no tx for safeTxHash %s", hash.Hex())
	}
	copied := *tx
	return &copied, nil
}

// ListTxs returns every tracked tx.
func (a *Adapter) ListTxs(ctx context.Context) ([]domain.PendingSafeTx, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.PendingSafeTx, 0, len(a.txs))
	for _, tx := range a.txs {
		out = append(out, *tx)
	}
	return out, nil
}

// SaveMessage mirrors SaveTx's optimistic-concurrency rule for messages.
func (a *Adapter) SaveMessage(ctx context.Context, msg domain.PendingSafeMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.messages[msg.MessageHash]
	currentRevision := uint64(0)
	if ok {
		currentRevision = existing.StateRevision
	}
	if err := checkRevision(ok, currentRevision, msg.StateRevision); err != nil {
		return err
	}
	stored := msg
	a.messages[msg.MessageHash] = &stored
	return nil
}

// LoadMessage returns the message for messageHash, or a NotFound error.
func (a *Adapter) LoadMessage(ctx context.Context, hash domain.Hash32) (*domain.PendingSafeMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg, ok := a.messages[hash]
	if !ok {
		return nil, ports.NewNotFoundError("no message for messageHash %s", hash.Hex())
	}
	copied := *msg
	return &copied, nil
}

// ListMessages returns every tracked message.
func (a *Adapter) ListMessages(ctx context.Context) ([]domain.PendingSafeMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.PendingSafeMessage, 0, len(a.messages))
	for _, msg := range a.messages {
		out = append(out, *msg)
	}
	return out, nil
}

// SaveWcRequest mirrors SaveTx's optimistic-concurrency rule for requests.
func (a *Adapter) SaveWcRequest(ctx context.Context, req domain.PendingWalletConnectRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, ok := a.wcRequests[req.RequestID]
	currentRevision := uint64(0)
	if ok {
		currentRevision = existing.StateRevision
	}
	if err := checkRevision(ok, currentRevision, req.StateRevision); err != nil {
		return err
	}
	stored := req
	a.wcRequests[req.RequestID] = &stored
	return nil
}

// LoadWcRequest returns the request for id, or a NotFound error.
func (a *Adapter) LoadWcRequest(ctx context.Context, id string) (*domain.PendingWalletConnectRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	req, ok := a.wcRequests[id]
	if !ok {
		return nil, ports.NewNotFoundError("no wc request %q", id)
	}
	copied := *req
	return &copied, nil
}

// ListWcRequests returns every tracked request.
func (a *Adapter) ListWcRequests(ctx context.Context) ([]domain.PendingWalletConnectRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]domain.PendingWalletConnectRequest, 0, len(a.wcRequests))
	for _, req := range a.wcRequests {
		out = append(out, *req)
	}
	return out, nil
}

// AppendTransitionLog appends record to its flow's log, rejecting any
// record whose EventSeq would leave a gap or duplicate an existing entry.
func (a *Adapter) AppendTransitionLog(ctx context.Context, record domain.TransitionLogRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	existing := a.transitionLog[record.FlowID]
	wantSeq := uint64(len(existing) + 1)
	if record.EventSeq != wantSeq {
		return ports.NewConflictError("transition log for %s expected event_seq %d, got %d", record.FlowID, wantSeq, record.EventSeq)
	}
	a.transitionLog[record.FlowID] = append(existing, record)
	return nil
}

// LoadTransitionLog returns the full, gap-free log for flowID in event_seq
// order.
func (a *Adapter) LoadTransitionLog(ctx context.Context, flowID string) ([]domain.TransitionLogRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	records := a.transitionLog[flowID]
	out := make([]domain.TransitionLogRecord, len(records))
	copy(out, records)
	return out, nil
}

// ImportBundle merges every tx, message, and wc request carried in bundle
// into the queue. Txs and messages follow the state-revision merge rule: a
// missing entity is added outright, a higher incoming revision updates, a
// lower one is skipped, and an equal revision is skipped when status and
// signature count match and conflicts otherwise. A wc request is added only
// when its id is absent and is skipped otherwise.
func (a *Adapter) ImportBundle(ctx context.Context, bundle domain.SigningBundle) (domain.MergeResult, error) {
	if err := a.verifyBundleIntegrity(bundle); err != nil {
		return domain.MergeResult{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	result := domain.Empty()

	for _, incoming := range bundle.Txs {
		existing, ok := a.txs[incoming.SafeTxHash]
		switch mergeDecision(ok, revisionOf(existing), incoming.StateRevision, func() bool {
			return ok && existing.Status == incoming.Status && len(existing.Signatures) == len(incoming.Signatures)
		}) {
		case decisionAdd:
			stored := incoming
			a.txs[incoming.SafeTxHash] = &stored
			result.TxAdded++
		case decisionUpdate:
			stored := incoming
			a.txs[incoming.SafeTxHash] = &stored
			result.TxUpdated++
		case decisionSkip:
			result.TxSkipped++
		case decisionConflict:
			result.TxConflicted++
		}
	}

	for _, incoming := range bundle.Messages {
		existing, ok := a.messages[incoming.MessageHash]
		switch mergeDecision(ok, revisionOfMsg(existing), incoming.StateRevision, func() bool {
			return ok && existing.Status == incoming.Status && len(existing.Signatures) == len(incoming.Signatures)
		}) {
		case decisionAdd:
			stored := incoming
			a.messages[incoming.MessageHash] = &stored
			result.MessageAdded++
		case decisionUpdate:
			stored := incoming
			a.messages[incoming.MessageHash] = &stored
			result.MessageUpdated++
		case decisionSkip:
			result.MessageSkipped++
		case decisionConflict:
			result.MessageConflicted++
		}
	}

	for _, incoming := range bundle.WcRequests {
		if _, ok := a.wcRequests[incoming.RequestID]; ok {
			result.WcSkipped++
			continue
		}
		stored := incoming
		a.wcRequests[incoming.RequestID] = &stored
		result.WcAdded++
	}

	return result, nil
}

type mergeOutcome int

const (
	decisionAdd mergeOutcome = iota
	decisionUpdate
	decisionSkip
	decisionConflict
)

func mergeDecision(exists bool, currentRevision, incomingRevision uint64, sameContent func() bool) mergeOutcome {
	if !exists {
		return decisionAdd
	}
	switch {
	case incomingRevision > currentRevision:
		return decisionUpdate
	case incomingRevision == currentRevision:
		if sameContent() {
			return decisionSkip
		}
		return decisionConflict
	default:
		return decisionSkip
	}
}

func revisionOfMsg(msg *domain.PendingSafeMessage) uint64 {
	if msg == nil {
		return 0
	}
	return msg.StateRevision
}

// ExportBundle assembles a SigningBundle containing every flow named in
// flowIDs ("tx:0x..", "msg:0x..", "wc:<id>"), stamps it with a keccak256
// digest over its canonical contents, signs that digest with the configured
// export signer (if any), seals the contents under a passphrase-derived
// AES-256-GCM key with an appended HMAC-SHA256 tag (if a passphrase is
// configured), and finally stamps the whole thing with an integrity MAC the
// same way every other persisted entity is.
func (a *Adapter) ExportBundle(ctx context.Context, flowIDs []string) (domain.SigningBundle, error) {
	a.mu.Lock()
	txs := make([]domain.PendingSafeTx, 0)
	messages := make([]domain.PendingSafeMessage, 0)
	wcRequests := make([]domain.PendingWalletConnectRequest, 0)
	for _, tx := range a.txs {
		if containsFlowID(flowIDs, tx.FlowID()) {
			txs = append(txs, *tx)
		}
	}
	for _, msg := range a.messages {
		if containsFlowID(flowIDs, msg.FlowID()) {
			messages = append(messages, *msg)
		}
	}
	for _, req := range a.wcRequests {
		if containsFlowID(flowIDs, req.FlowID()) {
			wcRequests = append(wcRequests, *req)
		}
	}
	nowMs := a.clock.NowMs()
	signer := a.exportSigner
	passphrase := a.bundlePassphrase
	a.mu.Unlock()

	bundle := domain.SigningBundle{
		SchemaVersion: 1,
		ExportedAtMs:  nowMs,
		Txs:           txs,
		Messages:      messages,
		WcRequests:    wcRequests,
		MacAlgorithm:  domain.MacHmacSha256V1,
		MacKeyID:      "bundle-export-v1",
	}

	digestBytes, err := bundleDigestBytes(bundle)
	if err != nil {
		return domain.SigningBundle{}, ports.NewValidationError("canonicalize bundle: %v", err)
	}
	digest := crypto.Keccak256Hash(digestBytes)
	bundle.BundleDigest = digest

	if signer != nil {
		bundle.Exporter = crypto.PubkeyToAddress(signer.PublicKey)
		sig, err := crypto.Sign(digest.Bytes(), signer)
		if err != nil {
			return domain.SigningBundle{}, ports.NewTransportError("sign bundle digest: %v", err)
		}
		bundle.BundleSignature = sig
	}

	if len(passphrase) > 0 {
		envelope, err := encryptBundlePayload(passphrase, digestBytes)
		if err != nil {
			return domain.SigningBundle{}, err
		}
		bundle.CryptoEnvelope = envelope
	}

	canonical, err := canonicalBundleBytes(bundle)
	if err != nil {
		return domain.SigningBundle{}, ports.NewValidationError("canonicalize bundle: %v", err)
	}
	mac, err := a.hashing.IntegrityMac(canonical, bundle.MacKeyID)
	if err != nil {
		return domain.SigningBundle{}, err
	}
	bundle.IntegrityMac = mac
	return bundle, nil
}

func containsFlowID(flowIDs []string, id string) bool {
	for _, f := range flowIDs {
		if f == id {
			return true
		}
	}
	return false
}

// bundleDigestBytes canonicalizes the parts of bundle that the digest and
// crypto envelope cover: the flows and their export metadata, never the
// exporter/digest/signature/envelope/integrity-mac fields ExportBundle fills
// in after the digest is taken.
func bundleDigestBytes(bundle domain.SigningBundle) ([]byte, error) {
	view := bundle
	view.Exporter = common.Address{}
	view.BundleDigest = domain.Hash32{}
	view.BundleSignature = nil
	view.CryptoEnvelope = nil
	view.IntegrityMac = nil
	return cryptoutil.CanonicalJSONBytes(view)
}

func canonicalBundleBytes(bundle domain.SigningBundle) ([]byte, error) {
	view := bundle
	view.IntegrityMac = nil
	return cryptoutil.CanonicalJSONBytes(view)
}

// encryptBundlePayload derives an AES-256-GCM key and an HMAC-SHA256 key
// from passphrase, seals plaintext, and appends the HMAC tag over the
// sealed ciphertext so ImportBundle can reject a tampered envelope before
// ever attempting to decrypt it.
func encryptBundlePayload(passphrase, plaintext []byte) (*domain.BundleCryptoEnvelope, error) {
	salt, err := cryptoutil.GenerateSalt()
	if err != nil {
		return nil, err
	}
	nonce, err := cryptoutil.GenerateNonce()
	if err != nil {
		return nil, err
	}
	derived, err := cryptoutil.DeriveCrypto(passphrase, salt)
	if err != nil {
		return nil, err
	}
	ciphertext, err := cryptoutil.EncryptAesGcm(derived.EncKey, nonce, plaintext)
	if err != nil {
		return nil, err
	}
	tag := cryptoutil.HmacSha256(derived.MacKey, ciphertext)
	return &domain.BundleCryptoEnvelope{
		KdfAlgorithm: domain.KdfAlgorithm(derived.KdfAlgorithm),
		KdfSalt:      salt,
		EncNonce:     nonce,
		Ciphertext:   append(ciphertext, tag...),
	}, nil
}

// decryptBundlePayload reverses encryptBundlePayload: it splits the trailing
// HMAC-SHA256 tag off envelope.Ciphertext, verifies it in constant time, and
// only then opens the AES-256-GCM seal.
func decryptBundlePayload(passphrase []byte, envelope *domain.BundleCryptoEnvelope) ([]byte, error) {
	const tagLen = 32
	if len(envelope.Ciphertext) < tagLen {
		return nil, ports.NewValidationError("bundle crypto envelope ciphertext too short")
	}
	sealed := envelope.Ciphertext[:len(envelope.Ciphertext)-tagLen]
	tag := envelope.Ciphertext[len(envelope.Ciphertext)-tagLen:]

	derived, err := cryptoutil.DeriveCrypto(passphrase, envelope.KdfSalt)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal(cryptoutil.HmacSha256(derived.MacKey, sealed), tag) {
		return nil, ports.NewValidationError("bundle crypto envelope integrity tag mismatch")
	}
	return cryptoutil.DecryptAesGcm(derived.EncKey, envelope.EncNonce, sealed)
}

// recoverAddress recovers the signer of a 65-byte packed r||s||v signature
// over hash, normalizing a v of 27/28 to the 0/1 go-ethereum expects.
func recoverAddress(hash domain.Hash32, sig []byte) (common.Address, error) {
	if len(sig) < 65 {
		return common.Address{}, ports.NewValidationError(ports.ReasonInvalidSignatureFormat)
	}
	normalized := make([]byte, 65)
	copy(normalized, sig[:65])
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return common.Address{}, ports.NewValidationError("recover signer: %v", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// verifyBundleIntegrity re-derives bundle's digest and, where present,
// checks the export signature recovers to Exporter and the crypto envelope
// decrypts to exactly the digest-covered contents. ImportBundle calls this
// before merging anything in, so a tampered or mis-keyed bundle never
// touches queue state.
func (a *Adapter) verifyBundleIntegrity(bundle domain.SigningBundle) error {
	digestBytes, err := bundleDigestBytes(bundle)
	if err != nil {
		return ports.NewValidationError("canonicalize bundle: %v", err)
	}

	hasDigest := bundle.BundleDigest != (domain.Hash32{})
	if hasDigest {
		want := crypto.Keccak256Hash(digestBytes)
		if want != bundle.BundleDigest {
			return ports.NewValidationError("bundle digest mismatch")
		}
	}

	if len(bundle.BundleSignature) > 0 {
		if !hasDigest {
			return ports.NewValidationError("bundle carries a signature but no digest")
		}
		recovered, err := recoverAddress(bundle.BundleDigest, bundle.BundleSignature)
		if err != nil {
			return err
		}
		if recovered != bundle.Exporter {
			return ports.NewValidationError(ports.ReasonSignerRecoveryMismatch)
		}
	}

	if bundle.CryptoEnvelope != nil {
		a.mu.Lock()
		passphrase := a.bundlePassphrase
		a.mu.Unlock()
		if len(passphrase) == 0 {
			return ports.NewValidationError("bundle is encrypted but no bundle passphrase is configured")
		}
		plaintext, err := decryptBundlePayload(passphrase, bundle.CryptoEnvelope)
		if err != nil {
			return err
		}
		if string(plaintext) != string(digestBytes) {
			return ports.NewValidationError("bundle crypto envelope does not match its digest-covered contents")
		}
	}

	return nil
}

// ImportUrlPayload decodes a single-item base64url envelope and merges it
// into the queue via the same rule ImportBundle uses.
func (a *Adapter) ImportUrlPayload(ctx context.Context, envelope domain.UrlImportEnvelope) (domain.MergeResult, error) {
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(envelope.PayloadBase64Url)
	if err != nil {
		return domain.MergeResult{}, ports.NewValidationError(ports.ReasonUrlImportSchemaInvalid)
	}

	switch envelope.Key {
	case domain.UrlImportTx:
		var tx domain.PendingSafeTx
		if err := json.Unmarshal(raw, &tx); err != nil {
			return domain.MergeResult{}, ports.NewValidationError(ports.ReasonUrlImportSchemaInvalid)
		}
		return a.ImportBundle(ctx, domain.SigningBundle{Txs: []domain.PendingSafeTx{tx}})

	case domain.UrlImportMsg:
		var msg domain.PendingSafeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return domain.MergeResult{}, ports.NewValidationError(ports.ReasonUrlImportSchemaInvalid)
		}
		return a.ImportBundle(ctx, domain.SigningBundle{Messages: []domain.PendingSafeMessage{msg}})

	case domain.UrlImportSig:
		return a.importDetachedSignature(raw, true)

	case domain.UrlImportMsgSig:
		return a.importDetachedSignature(raw, false)

	default:
		return domain.MergeResult{}, ports.NewValidationError(ports.ReasonUrlImportSchemaInvalid)
	}
}

type detachedSignature struct {
	Hash      domain.Hash32              `json:"hash"`
	Signature domain.CollectedSignature  `json:"signature"`
}

func (a *Adapter) importDetachedSignature(raw []byte, forTx bool) (domain.MergeResult, error) {
	var payload detachedSignature
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.MergeResult{}, ports.NewValidationError(ports.ReasonUrlImportSchemaInvalid)
	}

	recovered, err := recoverAddress(payload.Hash, payload.Signature.Bytes)
	if err != nil {
		return domain.MergeResult{}, err
	}
	expected := payload.Signature.ExpectedSigner
	if expected == (common.Address{}) {
		expected = payload.Signature.Signer
	}
	if expected != (common.Address{}) && recovered != expected {
		return domain.MergeResult{}, ports.NewValidationError(ports.ReasonSignerRecoveryMismatch)
	}
	payload.Signature.RecoveredSigner = &recovered
	if payload.Signature.Signer == (common.Address{}) {
		payload.Signature.Signer = recovered
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	result := domain.Empty()
	if forTx {
		tx, ok := a.txs[payload.Hash]
		if !ok {
			result.TxSkipped++
			return result, nil
		}
		if tx.HasSignature(payload.Signature) {
			result.TxSkipped++
			return result, nil
		}
		tx.Signatures = append(tx.Signatures, payload.Signature)
		tx.StateRevision++
		result.TxUpdated++
		return result, nil
	}

	msg, ok := a.messages[payload.Hash]
	if !ok {
		result.MessageSkipped++
		return result, nil
	}
	if msg.HasSignature(payload.Signature) {
		result.MessageSkipped++
		return result, nil
	}
	msg.Signatures = append(msg.Signatures, payload.Signature)
	msg.StateRevision++
	result.MessageUpdated++
	return result, nil
}
