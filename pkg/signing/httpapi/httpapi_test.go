package httpapi

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http/httptest"
	"testing"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/abi"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/clock"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/hashing"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/orchestrator"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/provider"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/queue"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/safeservice"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/walletconnect"
)

func newTestHandlers() *Handlers {
	c := clock.NewSystemClock()
	h := hashing.NewAdapter(nil)
	q := queue.NewAdapter(c, h)
	orch := orchestrator.New(c, provider.NewAdapter(provider.ModeDeterministic), safeservice.NewAdapter(), walletconnect.NewAdapter(c), abi.NewAdapter(), h, q)
	return NewHandlers(orch, log.New(log.Writer(), "[test] ", log.LstdFlags))
}

func TestHandleHealthReturnsOk(t *testing.T) {
	h := newTestHandlers()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/health", nil)
	h.HandleHealth(w, r)
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHandleAcquireWriterLockThenCreateSafeTx(t *testing.T) {
	h := newTestHandlers()

	lockBody, _ := json.Marshal(map[string]interface{}{"tab_id": "tab-1", "ttl_ms": 30000})
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/lock/acquire", bytes.NewReader(lockBody))
	h.HandleAcquireWriterLock(w, r)
	if w.Code != 200 {
		t.Fatalf("expected 200 acquiring lock, got %d: %s", w.Code, w.Body.String())
	}

	txBody, _ := json.Marshal(map[string]interface{}{
		"tab_id":       "tab-1",
		"chain_id":     1,
		"safe_address": "0x00000000000000000000000000000000000000BE",
		"nonce":        1,
		"payload": map[string]interface{}{
			"to":        "0x000000000000000000000000000000000000CA",
			"value":     "0",
			"data":      "0x",
			"threshold": 1,
		},
	})
	w = httptest.NewRecorder()
	r = httptest.NewRequest("POST", "/api/txs", bytes.NewReader(txBody))
	h.HandleCreateSafeTx(w, r)
	if w.Code != 201 {
		t.Fatalf("expected 201 creating tx, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleCreateSafeTxWithoutLockReturnsConflict(t *testing.T) {
	h := newTestHandlers()

	txBody, _ := json.Marshal(map[string]interface{}{
		"tab_id":       "tab-unlocked",
		"chain_id":     1,
		"safe_address": "0x00000000000000000000000000000000000000BE",
		"nonce":        1,
		"payload": map[string]interface{}{
			"to":        "0x000000000000000000000000000000000000CA",
			"value":     "0",
			"data":      "0x",
			"threshold": 1,
		},
	})
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/txs", bytes.NewReader(txBody))
	h.HandleCreateSafeTx(w, r)
	if w.Code != 409 {
		t.Fatalf("expected 409 without a writer lock, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleCreateSafeTxRejectsMalformedBody(t *testing.T) {
	h := newTestHandlers()
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/txs", bytes.NewReader([]byte("not-json")))
	h.HandleCreateSafeTx(w, r)
	if w.Code != 400 {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}
