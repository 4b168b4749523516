package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/clock"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/hashing"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
)

func newTestAdapter() *Adapter {
	return NewAdapter(clock.NewSystemClock(), hashing.NewAdapter(nil))
}

func TestWriterLockAcquireAndConflict(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()
	now := a.clock.NowMs()

	if err := a.AcquireWriterLock(ctx, domain.AppWriterLock{HolderTabID: "tab-a", ExpiresAtMs: now + 10000}); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	err := a.AcquireWriterLock(ctx, domain.AppWriterLock{HolderTabID: "tab-b", ExpiresAtMs: now + 10000})
	if !ports.IsKind(err, ports.KindConflict) {
		t.Fatalf("expected Conflict for second holder, got %v", err)
	}

	if err := a.EnsureWriterLock(ctx, "tab-a", now); err != nil {
		t.Fatalf("ensure tab-a: %v", err)
	}
	if err := a.EnsureWriterLock(ctx, "tab-b", now); !ports.IsKind(err, ports.KindConflict) {
		t.Fatalf("expected Conflict ensuring non-holder, got %v", err)
	}
}

func TestWriterLockAcquirableAfterExpiry(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()
	now := a.clock.NowMs()

	if err := a.AcquireWriterLock(ctx, domain.AppWriterLock{HolderTabID: "tab-a", ExpiresAtMs: now}); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	if err := a.AcquireWriterLock(ctx, domain.AppWriterLock{HolderTabID: "tab-b", ExpiresAtMs: now + 10000}); err != nil {
		t.Fatalf("expected tab-b to acquire the expired lease: %v", err)
	}
}

func TestSaveTxRejectsNonSequentialRevision(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()
	hash := common.HexToHash("0xAAA")

	if err := a.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 2}); !ports.IsKind(err, ports.KindConflict) {
		t.Fatalf("expected Conflict creating at revision 2, got %v", err)
	}
	if err := a.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 1}); err != nil {
		t.Fatalf("save at revision 1: %v", err)
	}
	if err := a.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 3}); !ports.IsKind(err, ports.KindConflict) {
		t.Fatalf("expected Conflict skipping to revision 3, got %v", err)
	}
	if err := a.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 2}); err != nil {
		t.Fatalf("save at revision 2: %v", err)
	}
}

func TestAppendTransitionLogRejectsGaps(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()
	flow := "tx:0xAAA"

	if err := a.AppendTransitionLog(ctx, domain.TransitionLogRecord{FlowID: flow, EventSeq: 1}); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := a.AppendTransitionLog(ctx, domain.TransitionLogRecord{FlowID: flow, EventSeq: 3}); !ports.IsKind(err, ports.KindConflict) {
		t.Fatalf("expected Conflict on gap, got %v", err)
	}
	if err := a.AppendTransitionLog(ctx, domain.TransitionLogRecord{FlowID: flow, EventSeq: 2}); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	records, err := a.LoadTransitionLog(ctx, flow)
	if err != nil {
		t.Fatalf("load log: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestImportBundleAddsUpdatesAndConflicts(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()
	hash := common.HexToHash("0xBBB")

	if err := a.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 1, Status: domain.TxDraft}); err != nil {
		t.Fatalf("seed tx: %v", err)
	}

	result, err := a.ImportBundle(ctx, domain.SigningBundle{Txs: []domain.PendingSafeTx{
		{SafeTxHash: common.HexToHash("0xCCC"), StateRevision: 1, Status: domain.TxDraft},
		{SafeTxHash: hash, StateRevision: 2, Status: domain.TxSigning},
	}})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.TxAdded != 1 || result.TxUpdated != 1 {
		t.Fatalf("expected 1 added + 1 updated, got %+v", result)
	}

	result2, err := a.ImportBundle(ctx, domain.SigningBundle{Txs: []domain.PendingSafeTx{
		{SafeTxHash: hash, StateRevision: 2, Status: domain.TxConfirming},
	}})
	if err != nil {
		t.Fatalf("import conflicting: %v", err)
	}
	if result2.TxConflicted != 1 {
		t.Fatalf("expected a conflict on divergent same-revision content, got %+v", result2)
	}
}

func TestExportBundleStampsIntegrityMac(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()
	hash := common.HexToHash("0xDDD")

	if err := a.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}

	bundle, err := a.ExportBundle(ctx, []string{"tx:" + hash.Hex()})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(bundle.Txs) != 1 {
		t.Fatalf("expected 1 tx in bundle, got %d", len(bundle.Txs))
	}
	if len(bundle.IntegrityMac) == 0 {
		t.Fatal("expected a non-empty integrity mac")
	}
}

func TestImportDetachedSignatureVerifiesRecovery(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()
	hash := common.HexToHash("0xEEE1")

	if err := a.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 1}); err != nil {
		t.Fatalf("seed tx: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := crypto.PubkeyToAddress(key.PublicKey)
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	raw, err := json.Marshal(detachedSignature{
		Hash:      hash,
		Signature: domain.CollectedSignature{Signer: signer, Bytes: sig},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	result, err := a.importDetachedSignature(raw, true)
	if err != nil {
		t.Fatalf("import detached signature: %v", err)
	}
	if result.TxUpdated != 1 {
		t.Fatalf("expected 1 tx updated, got %+v", result)
	}

	tx, err := a.LoadTx(ctx, hash)
	if err != nil {
		t.Fatalf("load tx: %v", err)
	}
	if len(tx.Signatures) != 1 || tx.Signatures[0].RecoveredSigner == nil || *tx.Signatures[0].RecoveredSigner != signer {
		t.Fatalf("expected recovered signer %s recorded, got %+v", signer.Hex(), tx.Signatures)
	}
}

func TestImportDetachedSignatureRejectsSignerMismatch(t *testing.T) {
	a := newTestAdapter()
	ctx := context.Background()
	hash := common.HexToHash("0xEEE2")

	if err := a.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 1}); err != nil {
		t.Fatalf("seed tx: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	raw, err := json.Marshal(detachedSignature{
		Hash: hash,
		Signature: domain.CollectedSignature{
			Signer:         common.HexToAddress("0xC0FFEE"),
			ExpectedSigner: common.HexToAddress("0xC0FFEE"),
			Bytes:          sig,
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	_, err = a.importDetachedSignature(raw, true)
	if !ports.IsKind(err, ports.KindValidation) {
		t.Fatalf("expected Validation error for signer mismatch, got %v", err)
	}
}

func TestExportImportBundleCryptoEnvelopeRoundTrip(t *testing.T) {
	exporter := newTestAdapter()
	ctx := context.Background()
	hash := common.HexToHash("0xFFF1")

	if err := exporter.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 1}); err != nil {
		t.Fatalf("seed tx: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	passphrase := []byte("correct horse battery staple")
	exporter.SetExportSigner(key)
	exporter.SetBundlePassphrase(passphrase)

	bundle, err := exporter.ExportBundle(ctx, []string{"tx:" + hash.Hex()})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if bundle.BundleDigest == (domain.Hash32{}) {
		t.Fatal("expected a non-zero bundle digest")
	}
	if len(bundle.BundleSignature) == 0 {
		t.Fatal("expected a non-empty bundle signature")
	}
	if bundle.Exporter != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("expected exporter %s, got %s", crypto.PubkeyToAddress(key.PublicKey).Hex(), bundle.Exporter.Hex())
	}
	if bundle.CryptoEnvelope == nil {
		t.Fatal("expected a populated crypto envelope")
	}

	importer := newTestAdapter()
	importer.SetBundlePassphrase(passphrase)
	result, err := importer.ImportBundle(ctx, bundle)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.TxAdded != 1 {
		t.Fatalf("expected 1 tx added, got %+v", result)
	}
}

func TestImportBundleRejectsTamperedCiphertext(t *testing.T) {
	exporter := newTestAdapter()
	ctx := context.Background()
	hash := common.HexToHash("0xFFF2")

	if err := exporter.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 1}); err != nil {
		t.Fatalf("seed tx: %v", err)
	}

	passphrase := []byte("correct horse battery staple")
	exporter.SetBundlePassphrase(passphrase)

	bundle, err := exporter.ExportBundle(ctx, []string{"tx:" + hash.Hex()})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if bundle.CryptoEnvelope == nil || len(bundle.CryptoEnvelope.Ciphertext) == 0 {
		t.Fatal("expected a non-empty crypto envelope ciphertext")
	}
	bundle.CryptoEnvelope.Ciphertext[0] ^= 0xFF

	importer := newTestAdapter()
	importer.SetBundlePassphrase(passphrase)
	if _, err := importer.ImportBundle(ctx, bundle); err == nil {
		t.Fatal("expected tampered ciphertext to fail integrity verification")
	}
}

func TestImportBundleRejectsWrongBundleSignature(t *testing.T) {
	exporter := newTestAdapter()
	ctx := context.Background()
	hash := common.HexToHash("0xFFF3")

	if err := exporter.SaveTx(ctx, domain.PendingSafeTx{SafeTxHash: hash, StateRevision: 1}); err != nil {
		t.Fatalf("seed tx: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	exporter.SetExportSigner(key)

	bundle, err := exporter.ExportBundle(ctx, []string{"tx:" + hash.Hex()})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	otherKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate other key: %v", err)
	}
	forged, err := crypto.Sign(bundle.BundleDigest.Bytes(), otherKey)
	if err != nil {
		t.Fatalf("forge signature: %v", err)
	}
	bundle.BundleSignature = forged

	importer := newTestAdapter()
	_, err = importer.ImportBundle(ctx, bundle)
	if !ports.IsKind(err, ports.KindValidation) {
		t.Fatalf("expected Validation error for signer recovery mismatch, got %v", err)
	}
}
