// Copyright 2025 Certen Protocol
//
// Package statemachine holds the three pure transition tables (tx, message,
// WalletConnect request) the orchestrator drives. No I/O, no locks: every
// function here is a total function of (current state, action) that either
// returns the next state or an "illegal transition" error.
package statemachine

import (
	"fmt"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
)

// TxAction is one of the actions that can drive a PendingSafeTx forward.
type TxAction string

const (
	TxActionSign          TxAction = "Sign"
	TxActionPropose       TxAction = "Propose"
	TxActionConfirm       TxAction = "Confirm"
	TxActionThresholdMet  TxAction = "ThresholdMet"
	TxActionExecuteStart  TxAction = "ExecuteStart"
	TxActionExecuteSuccess TxAction = "ExecuteSuccess"
	TxActionExecuteFail   TxAction = "ExecuteFail"
	TxActionCancel        TxAction = "Cancel"
)

// TxTransition returns the next TxStatus for (from, action), or an error
// for any (from, action) pair not explicitly listed in the transition
// table below.
func TxTransition(from domain.TxStatus, action TxAction) (domain.TxStatus, error) {
	switch from {
	case domain.TxDraft:
		if action == TxActionSign {
			return domain.TxSigning, nil
		}
	case domain.TxSigning:
		switch action {
		case TxActionPropose:
			return domain.TxProposed, nil
		case TxActionThresholdMet:
			return domain.TxReadyToExecute, nil
		case TxActionCancel:
			return domain.TxCancelled, nil
		}
	case domain.TxProposed:
		switch action {
		case TxActionConfirm:
			return domain.TxConfirming, nil
		case TxActionThresholdMet:
			return domain.TxReadyToExecute, nil
		}
	case domain.TxConfirming:
		switch action {
		case TxActionThresholdMet:
			return domain.TxReadyToExecute, nil
		case TxActionConfirm:
			return domain.TxConfirming, nil
		}
	case domain.TxReadyToExecute:
		if action == TxActionExecuteStart {
			return domain.TxExecuting, nil
		}
	case domain.TxExecuting:
		switch action {
		case TxActionExecuteSuccess:
			return domain.TxExecuted, nil
		case TxActionExecuteFail:
			return domain.TxFailed, nil
		}
	}
	return "", illegalTransition("tx", string(from), string(action))
}

// ThresholdMetForTx reports whether the tx's collected signature count has
// reached its payload threshold, and whether the current status is one
// that the threshold-escalation rule applies to.
func ThresholdMetForTx(tx *domain.PendingSafeTx) bool {
	switch tx.Status {
	case domain.TxSigning, domain.TxProposed, domain.TxConfirming:
		return tx.SignatureCount() >= tx.Payload.ThresholdOrDefault()
	default:
		return false
	}
}

// MessageAction is one of the actions that can drive a PendingSafeMessage.
type MessageAction string

const (
	MessageActionSign           MessageAction = "Sign"
	MessageActionAwaitThreshold MessageAction = "AwaitThreshold"
	MessageActionThresholdMet   MessageAction = "ThresholdMet"
	MessageActionRespond        MessageAction = "Respond"
	MessageActionCancel         MessageAction = "Cancel"
)

// MessageTransition implements Draft -> Signing -> AwaitingThreshold ->
// ThresholdMet -> Responded, rejecting any transition out of a finalized
// state (Responded, Failed, Cancelled).
func MessageTransition(from domain.MessageStatus, action MessageAction) (domain.MessageStatus, error) {
	switch from {
	case domain.MsgDraft:
		if action == MessageActionSign {
			return domain.MsgSigning, nil
		}
	case domain.MsgSigning:
		switch action {
		case MessageActionAwaitThreshold:
			return domain.MsgAwaitingThreshold, nil
		case MessageActionThresholdMet:
			return domain.MsgThresholdMet, nil
		case MessageActionCancel:
			return domain.MsgCancelled, nil
		}
	case domain.MsgAwaitingThreshold:
		if action == MessageActionThresholdMet {
			return domain.MsgThresholdMet, nil
		}
	case domain.MsgThresholdMet:
		if action == MessageActionRespond {
			return domain.MsgResponded, nil
		}
	}
	return "", illegalTransition("message", string(from), string(action))
}

// ThresholdMetForMessage mirrors ThresholdMetForTx for messages.
func ThresholdMetForMessage(msg *domain.PendingSafeMessage) bool {
	switch msg.Status {
	case domain.MsgSigning, domain.MsgAwaitingThreshold:
		return msg.SignatureCount() >= msg.Payload.ThresholdOrDefault()
	default:
		return false
	}
}

// WcAction is one of the actions that can drive a WalletConnect request.
type WcAction string

const (
	WcActionRoute            WcAction = "Route"
	WcActionAwaitThreshold   WcAction = "AwaitThreshold"
	WcActionRespondImmediate WcAction = "RespondImmediate"
	WcActionRespondDeferred  WcAction = "RespondDeferred"
	WcActionRespond          WcAction = "Respond"
	WcActionExpire           WcAction = "Expire"
)

// WcTransition implements Pending -> Routed -> {RespondingImmediate |
// RespondingDeferred} -> Responded, plus the AwaitingThreshold side branch
// and the unconditional Expire edge from any non-terminal state.
func WcTransition(from domain.WcStatus, action WcAction) (domain.WcStatus, error) {
	if action == WcActionExpire && !isTerminalWc(from) {
		return domain.WcExpired, nil
	}

	switch from {
	case domain.WcPending:
		switch action {
		case WcActionRoute:
			return domain.WcRouted, nil
		case WcActionAwaitThreshold:
			return domain.WcAwaitingThreshold, nil
		}
	case domain.WcRouted:
		switch action {
		case WcActionAwaitThreshold:
			return domain.WcAwaitingThreshold, nil
		case WcActionRespondImmediate:
			return domain.WcRespondingImmediate, nil
		case WcActionRespondDeferred:
			return domain.WcRespondingDeferred, nil
		}
	case domain.WcAwaitingThreshold:
		if action == WcActionRespondDeferred {
			return domain.WcRespondingDeferred, nil
		}
	case domain.WcRespondingImmediate, domain.WcRespondingDeferred:
		if action == WcActionRespond {
			return domain.WcResponded, nil
		}
	}
	return "", illegalTransition("wc", string(from), string(action))
}

func isTerminalWc(status domain.WcStatus) bool {
	switch status {
	case domain.WcResponded, domain.WcExpired, domain.WcFailed:
		return true
	default:
		return false
	}
}

func illegalTransition(machine, from, action string) error {
	return ports.NewValidationError("illegal %s transition from %s via %s", machine, from, action)
}
