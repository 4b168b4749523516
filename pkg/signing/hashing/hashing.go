// Copyright 2025 Certen Protocol
//
// Package hashing computes the deterministic digests the orchestrator signs
// over: the EIP-712 safeTxHash, the Safe off-chain message hash, and the
// HKDF-derived integrity MAC recorded on every persisted entity.
package hashing

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/cryptoutil"
	"github.com/rusty-safe/signing-orchestrator/pkg/signing/domain"
)

const defaultSafeVersion = "1.3.0"
const macSecretEnv = "RUSTY_SAFE_MAC_SECRET"
const macSecretDevDefault = "rusty-safe-mac-dev-secret"

var (
	domainTypehash  = crypto.Keccak256([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypehash  = crypto.Keccak256([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
	safeMsgTypehash = crypto.Keccak256([]byte("SafeMessage(bytes message)"))
)

// MacSecretLookup resolves the MAC root secret from the environment,
// indirected so tests don't depend on process-global env state.
type MacSecretLookup func(name string) (string, bool)

// Adapter is the Hashing port's implementation. envLookup is injected so
// RUSTY_SAFE_MAC_SECRET resolution is testable without os.Setenv.
type Adapter struct {
	envLookup MacSecretLookup
}

// NewAdapter constructs a hashing Adapter that resolves the MAC root secret
// through envLookup (os.LookupEnv in the binary); a nil envLookup reports
// the secret as unset.
func NewAdapter(envLookup MacSecretLookup) *Adapter {
	if envLookup == nil {
		envLookup = func(string) (string, bool) { return "", false }
	}
	return &Adapter{envLookup: envLookup}
}

func pad32(b []byte) []byte {
	return common.LeftPadBytes(b, 32)
}

func encodeUint(v *big.Int) []byte {
	if v == nil {
		v = big.NewInt(0)
	}
	return pad32(v.Bytes())
}

func encodeAddress(addr common.Address) []byte {
	return pad32(addr.Bytes())
}

func encodeUint8(v int) []byte {
	return pad32([]byte{byte(v)})
}

// parseU256 parses a decimal or 0x-hex numeric string; empty defaults to 0.
func parseU256(s string) *big.Int {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v := new(big.Int)
		if _, ok := v.SetString(s[2:], 16); ok {
			return v
		}
		return big.NewInt(0)
	}
	v := new(big.Int)
	if _, ok := v.SetString(s, 10); ok {
		return v
	}
	return big.NewInt(0)
}

func parseAddress(s string) common.Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func parseData(s string) []byte {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil
		}
		out[i] = byte(b)
	}
	return out
}

func safeVersionOrDefault(v string) string {
	if strings.TrimSpace(v) == "" {
		return defaultSafeVersion
	}
	return v
}

func domainSeparator(chainID uint64, safeAddress common.Address) common.Hash {
	packed := append([]byte{}, domainTypehash...)
	packed = append(packed, encodeUint(new(big.Int).SetUint64(chainID))...)
	packed = append(packed, encodeAddress(safeAddress)...)
	return crypto.Keccak256Hash(packed)
}

func eip712Digest(domainSep common.Hash, structHash common.Hash) common.Hash {
	prefix := []byte{0x19, 0x01}
	payload := append(append(append([]byte{}, prefix...), domainSep.Bytes()...), structHash.Bytes()...)
	return crypto.Keccak256Hash(payload)
}

// SafeTxHash computes the EIP-712 safeTxHash per the Safe v1.3.0+ domain and
// SafeTx struct definitions. Payload fields that do not parse are read as
// zero, the zero address, or empty data rather than rejected. If the strict
// computation panics, it returns a deterministic but explicitly unsafe
// fallback digest instead of erroring; the bool return tells the caller the digest is diagnostic
// only and must never be submitted to a Safe service or signed for real.
func (a *Adapter) SafeTxHash(chainID uint64, safeAddress common.Address, nonce uint64, payload domain.TxPayload) (domain.Hash32, bool, error) {
	hash, err := safeTxHashStrict(chainID, safeAddress, nonce, payload)
	if err == nil {
		return hash, false, nil
	}
	fallback := fallbackSafeTxHash(chainID, safeAddress, nonce, payload)
	return fallback, true, nil
}

func safeTxHashStrict(chainID uint64, safeAddress common.Address, nonce uint64, payload domain.TxPayload) (digest common.Hash, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("safeTxHash: %v", r)
		}
	}()

	to := parseAddress(payload.To)
	value := parseU256(payload.Value)
	data := parseData(payload.Data)
	operation := payload.Operation
	safeTxGas := parseU256(payload.SafeTxGas)
	baseGas := parseU256(payload.BaseGas)
	gasPrice := parseU256(payload.GasPrice)
	gasToken := parseAddress(payload.GasToken)
	refundReceiver := parseAddress(payload.RefundReceiver)

	dataHash := crypto.Keccak256(data)

	packed := append([]byte{}, safeTxTypehash...)
	packed = append(packed, encodeAddress(to)...)
	packed = append(packed, encodeUint(value)...)
	packed = append(packed, dataHash...)
	packed = append(packed, encodeUint8(operation)...)
	packed = append(packed, encodeUint(safeTxGas)...)
	packed = append(packed, encodeUint(baseGas)...)
	packed = append(packed, encodeUint(gasPrice)...)
	packed = append(packed, encodeAddress(gasToken)...)
	packed = append(packed, encodeAddress(refundReceiver)...)
	packed = append(packed, encodeUint(new(big.Int).SetUint64(nonce))...)

	structHash := crypto.Keccak256Hash(packed)
	domainSep := domainSeparator(chainID, safeAddress)
	return eip712Digest(domainSep, structHash), nil
}

// fallbackSafeTxHash is the diagnostic-only fallback digest:
// keccak256(chain_id || safe_address || nonce || canonical_json(payload)).
// Callers MUST treat the bool returned alongside it as "do not submit".
func fallbackSafeTxHash(chainID uint64, safeAddress common.Address, nonce uint64, payload domain.TxPayload) common.Hash {
	canonical, err := cryptoutil.CanonicalJSONBytes(payload)
	if err != nil {
		canonical = nil
	}
	buf := make([]byte, 0, 8+20+8+len(canonical))
	chainBytes := new(big.Int).SetUint64(chainID).Bytes()
	buf = append(buf, chainBytes...)
	buf = append(buf, safeAddress.Bytes()...)
	nonceBytes := new(big.Int).SetUint64(nonce).Bytes()
	buf = append(buf, nonceBytes...)
	buf = append(buf, canonical...)
	return crypto.Keccak256Hash(buf)
}

// MessageHash computes the Safe off-chain message hash: the domain
// separator combined with keccak256(SafeMessage(bytes message)) over the
// CRLF-normalized plaintext extracted from payload.message.
func (a *Adapter) MessageHash(chainID uint64, safeAddress common.Address, method domain.SigningMethod, payload domain.MessagePayload) (domain.Hash32, error) {
	message := extractMessage(payload.Message)
	msgHash := crypto.Keccak256([]byte(message))

	packed := append([]byte{}, safeMsgTypehash...)
	packed = append(packed, msgHash...)
	structHash := crypto.Keccak256Hash(packed)

	domainSep := domainSeparator(chainID, safeAddress)
	return eip712Digest(domainSep, structHash), nil
}

func extractMessage(raw string) string {
	return strings.ReplaceAll(raw, "\r\n", "\n")
}

// IntegrityMac derives a per-key MAC secret via HKDF(root=env secret,
// info=keyID) and returns HMAC-SHA-256(payload) under that secret.
func (a *Adapter) IntegrityMac(payload []byte, keyID string) ([]byte, error) {
	root, ok := a.envLookup(macSecretEnv)
	if !ok || root == "" {
		root = macSecretDevDefault
	}
	macKey, err := cryptoutil.HkdfSha256([]byte(root), []byte(keyID), 32)
	if err != nil {
		return nil, err
	}
	return cryptoutil.HmacSha256(macKey, payload), nil
}
