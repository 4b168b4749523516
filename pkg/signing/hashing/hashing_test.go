package hashing

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
)

func testPayload() domain.TxPayload {
	return domain.TxPayload{
		To:             "0x000000000000000000000000000000000000CAFE",
		Value:          "0",
		Data:           "0x",
		Operation:      0,
		SafeTxGas:      "0",
		BaseGas:        "0",
		GasPrice:       "0",
		GasToken:       "0x0000000000000000000000000000000000000000",
		RefundReceiver: "0x0000000000000000000000000000000000000000",
		Threshold:      2,
		SafeVersion:    "1.3.0",
	}
}

func TestSafeTxHashIsDeterministic(t *testing.T) {
	a := NewAdapter(nil)
	safe := common.HexToAddress("0x000000000000000000000000000000BEEFBEEF")

	first, fallback1, err := a.SafeTxHash(1, safe, 42, testPayload())
	if err != nil {
		t.Fatalf("first hash: %v", err)
	}
	second, fallback2, err := a.SafeTxHash(1, safe, 42, testPayload())
	if err != nil {
		t.Fatalf("second hash: %v", err)
	}
	if fallback1 || fallback2 {
		t.Fatal("well-formed payload should not hit the unsafe fallback path")
	}
	if first != second {
		t.Fatalf("safeTxHash not deterministic: %s vs %s", first.Hex(), second.Hex())
	}
}

func TestSafeTxHashChangesWithNonce(t *testing.T) {
	a := NewAdapter(nil)
	safe := common.HexToAddress("0x000000000000000000000000000000BEEFBEEF")

	h1, _, _ := a.SafeTxHash(1, safe, 1, testPayload())
	h2, _, _ := a.SafeTxHash(1, safe, 2, testPayload())
	if h1 == h2 {
		t.Fatal("expected distinct hashes for distinct nonces")
	}
}

func TestMessageHashDeterministicAndCRLFNormalized(t *testing.T) {
	a := NewAdapter(nil)
	safe := common.HexToAddress("0x000000000000000000000000000000BEEFBEEF")

	crlf := domain.MessagePayload{Message: "hello\r\nworld", Threshold: 1, SafeVersion: "1.3.0"}
	lf := domain.MessagePayload{Message: "hello\nworld", Threshold: 1, SafeVersion: "1.3.0"}

	h1, err := a.MessageHash(1, safe, domain.MethodPersonalSign, crlf)
	if err != nil {
		t.Fatalf("hash crlf: %v", err)
	}
	h2, err := a.MessageHash(1, safe, domain.MethodPersonalSign, lf)
	if err != nil {
		t.Fatalf("hash lf: %v", err)
	}
	if h1 != h2 {
		t.Fatal("CRLF and LF variants of the same message must hash identically")
	}
}

func TestIntegrityMacDeterministicPerKeyID(t *testing.T) {
	a := NewAdapter(func(string) (string, bool) { return "", false })
	payload := []byte(`{"x":1}`)

	macA1, err := a.IntegrityMac(payload, "key-a")
	if err != nil {
		t.Fatalf("mac a1: %v", err)
	}
	macA2, err := a.IntegrityMac(payload, "key-a")
	if err != nil {
		t.Fatalf("mac a2: %v", err)
	}
	macB, err := a.IntegrityMac(payload, "key-b")
	if err != nil {
		t.Fatalf("mac b: %v", err)
	}

	if string(macA1) != string(macA2) {
		t.Fatal("integrity mac must be deterministic for the same key id")
	}
	if string(macA1) == string(macB) {
		t.Fatal("integrity mac must differ across key ids")
	}
}
