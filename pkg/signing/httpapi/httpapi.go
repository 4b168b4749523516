// Copyright 2025 Certen Protocol
//
// Package httpapi exposes the orchestrator's command surface over HTTP.
// Every handler decodes a JSON request body, calls straight through to the
// Orchestrator, and encodes the result (or maps a *ports.PortError to a
// status code) as JSON. No business logic lives here.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/orchestrator"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
)

// Handlers wraps an Orchestrator with HTTP handler methods.
type Handlers struct {
	orch   *orchestrator.Orchestrator
	logger *log.Logger
}

// NewHandlers constructs request handlers over orch, logging through logger.
func NewHandlers(orch *orchestrator.Orchestrator, logger *log.Logger) *Handlers {
	return &Handlers{orch: orch, logger: logger}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Printf("encode response: %v", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if pe, ok := err.(*ports.PortError); ok {
		switch pe.Kind {
		case ports.KindValidation:
			status = http.StatusBadRequest
		case ports.KindNotFound:
			status = http.StatusNotFound
		case ports.KindConflict:
			status = http.StatusConflict
		case ports.KindPolicy:
			status = http.StatusForbidden
		case ports.KindNotImplemented:
			status = http.StatusNotImplemented
		case ports.KindTransport:
			status = http.StatusBadGateway
		}
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// HandleAcquireWriterLock handles POST /api/lock/acquire.
func (h *Handlers) HandleAcquireWriterLock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID string `json:"tab_id"`
		TtlMs uint64 `json:"ttl_ms"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	lock, err := h.orch.AcquireWriterLock(r.Context(), req.TabID, req.TtlMs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lock)
}

// HandleCreateSafeTx handles POST /api/txs.
func (h *Handlers) HandleCreateSafeTx(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID       string          `json:"tab_id"`
		ChainID     uint64          `json:"chain_id"`
		SafeAddress common.Address  `json:"safe_address"`
		Nonce       uint64          `json:"nonce"`
		Payload     domain.TxPayload `json:"payload"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	tx, err := h.orch.CreateSafeTx(r.Context(), req.TabID, req.ChainID, req.SafeAddress, req.Nonce, req.Payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

// HandleCreateSafeTxFromAbi handles POST /api/txs/from-abi.
func (h *Handlers) HandleCreateSafeTxFromAbi(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID           string          `json:"tab_id"`
		ChainID         uint64          `json:"chain_id"`
		SafeAddress     common.Address  `json:"safe_address"`
		Nonce           uint64          `json:"nonce"`
		Payload         domain.TxPayload `json:"payload"`
		AbiJSON         json.RawMessage `json:"abi_json"`
		MethodSignature string          `json:"method_signature"`
		Args            []string        `json:"args"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	tx, err := h.orch.CreateSafeTxFromAbi(r.Context(), req.TabID, req.ChainID, req.SafeAddress, req.Nonce, req.Payload, req.AbiJSON, req.MethodSignature, req.Args)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

// HandleAddTxSignature handles POST /api/txs/signatures, with safeTxHash
// supplied in the request body to keep the mux routing flat.
func (h *Handlers) HandleAddTxSignature(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID      string                     `json:"tab_id"`
		SafeTxHash common.Hash                `json:"safe_tx_hash"`
		Signature  domain.CollectedSignature  `json:"signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	tx, err := h.orch.AddTxSignature(r.Context(), req.TabID, req.SafeTxHash, req.Signature)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// HandleProposeTx handles POST /api/txs/propose.
func (h *Handlers) HandleProposeTx(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID      string      `json:"tab_id"`
		SafeTxHash common.Hash `json:"safe_tx_hash"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	tx, err := h.orch.ProposeTx(r.Context(), req.TabID, req.SafeTxHash)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// HandleConfirmTx handles POST /api/txs/confirm.
func (h *Handlers) HandleConfirmTx(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID      string      `json:"tab_id"`
		SafeTxHash common.Hash `json:"safe_tx_hash"`
		Signature  []byte      `json:"signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	tx, err := h.orch.ConfirmTx(r.Context(), req.TabID, req.SafeTxHash, req.Signature)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// HandleExecuteTx handles POST /api/txs/execute.
func (h *Handlers) HandleExecuteTx(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID      string      `json:"tab_id"`
		SafeTxHash common.Hash `json:"safe_tx_hash"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	tx, err := h.orch.ExecuteTx(r.Context(), req.TabID, req.SafeTxHash)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// HandleSignTxWithProvider handles POST /api/txs/sign-with-provider.
func (h *Handlers) HandleSignTxWithProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID      string      `json:"tab_id"`
		SafeTxHash common.Hash `json:"safe_tx_hash"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	tx, err := h.orch.SignTxWithProvider(r.Context(), req.TabID, req.SafeTxHash)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// HandleExecuteTxViaProvider handles POST /api/txs/execute-with-provider.
func (h *Handlers) HandleExecuteTxViaProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID      string      `json:"tab_id"`
		SafeTxHash common.Hash `json:"safe_tx_hash"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	tx, err := h.orch.ExecuteTxViaProvider(r.Context(), req.TabID, req.SafeTxHash)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tx)
}

// HandleCreateMessage handles POST /api/messages.
func (h *Handlers) HandleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID       string               `json:"tab_id"`
		ChainID     uint64               `json:"chain_id"`
		SafeAddress common.Address       `json:"safe_address"`
		Method      domain.SigningMethod `json:"method"`
		Payload     domain.MessagePayload `json:"payload"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	msg, err := h.orch.CreateMessage(r.Context(), req.TabID, req.ChainID, req.SafeAddress, req.Method, req.Payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

// HandleAddMessageSignature handles POST /api/messages/signatures.
func (h *Handlers) HandleAddMessageSignature(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID       string                    `json:"tab_id"`
		MessageHash common.Hash               `json:"message_hash"`
		Signature   domain.CollectedSignature `json:"signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	msg, err := h.orch.AddMessageSignature(r.Context(), req.TabID, req.MessageHash, req.Signature)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, msg)
}

// HandleConnectProvider handles POST /api/provider/connect.
func (h *Handlers) HandleConnectProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedChainID uint64 `json:"expected_chain_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	accounts, mismatch, err := h.orch.ConnectProvider(r.Context(), req.ExpectedChainID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts":         accounts,
		"chain_id_mismatch": mismatch,
	})
}

// HandleRecoverProviderEvents handles POST /api/provider/recover.
func (h *Handlers) HandleRecoverProviderEvents(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ExpectedChainID uint64 `json:"expected_chain_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	summary, err := h.orch.RecoverProviderEvents(r.Context(), req.ExpectedChainID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// HandleWcPair handles POST /api/walletconnect/pair.
func (h *Handlers) HandleWcPair(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Uri string `json:"uri"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	session, err := h.orch.WcPair(r.Context(), req.Uri)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, session)
}

// HandleWcSessionAction handles POST /api/walletconnect/session-action.
func (h *Handlers) HandleWcSessionAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic  string               `json:"topic"`
		Action ports.WcSessionAction `json:"action"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	session, err := h.orch.WcSessionAction(r.Context(), req.Topic, req.Action)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// HandleRespondWalletConnect handles POST /api/walletconnect/respond.
func (h *Handlers) HandleRespondWalletConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID     string                `json:"tab_id"`
		RequestID string                `json:"request_id"`
		Result    []byte                `json:"result"`
		RpcError  *orchestrator.RpcError `json:"rpc_error"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	if err := h.orch.RespondWalletConnect(r.Context(), req.TabID, req.RequestID, req.Result, req.RpcError); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

// HandleImportBundle handles POST /api/bundles/import.
func (h *Handlers) HandleImportBundle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID  string              `json:"tab_id"`
		Bundle domain.SigningBundle `json:"bundle"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	result, err := h.orch.ImportBundle(r.Context(), req.TabID, req.Bundle)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleExportBundle handles POST /api/bundles/export.
func (h *Handlers) HandleExportBundle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FlowIDs []string `json:"flow_ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	bundle, err := h.orch.ExportBundle(r.Context(), req.FlowIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bundle)
}

// HandleImportUrlPayload handles POST /api/url-import.
func (h *Handlers) HandleImportUrlPayload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TabID    string                  `json:"tab_id"`
		Envelope domain.UrlImportEnvelope `json:"envelope"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, ports.NewValidationError("invalid request body: %v", err))
		return
	}
	result, err := h.orch.ImportUrlPayload(r.Context(), req.TabID, req.Envelope)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
