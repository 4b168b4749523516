package abi

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

const erc20ABI = `[
  {"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

func TestEncodeCalldataSelectorMatchesKeccak(t *testing.T) {
	a := NewAdapter()
	encoded, selector, err := a.EncodeCalldata([]byte(erc20ABI), "transfer", []string{"0x000000000000000000000000000000000000dEaD", "100"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	want := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	if !bytes.Equal(selector[:], want) {
		t.Fatalf("selector mismatch: got %x want %x", selector, want)
	}
	if !bytes.Equal(encoded[:4], selector[:]) {
		t.Fatal("encoded calldata must start with the selector")
	}
	if len(encoded) != 4+32+32 {
		t.Fatalf("expected 68-byte calldata, got %d", len(encoded))
	}
}

func TestEncodeCalldataIsDeterministic(t *testing.T) {
	a := NewAdapter()
	args := []string{"0x000000000000000000000000000000000000dEaD", "100"}
	first, _, err := a.EncodeCalldata([]byte(erc20ABI), "transfer(address,uint256)", args)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, _, err := a.EncodeCalldata([]byte(erc20ABI), "transfer(address,uint256)", args)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("calldata must be byte-identical across builds")
	}
}

func TestEncodeCalldataArgumentCountMismatch(t *testing.T) {
	a := NewAdapter()
	_, _, err := a.EncodeCalldata([]byte(erc20ABI), "transfer", []string{"0x000000000000000000000000000000000000dEaD"})
	if err == nil {
		t.Fatal("expected validation error on argument count mismatch")
	}
}

func TestEncodeCalldataQualifiedOverloadLookup(t *testing.T) {
	a := NewAdapter()
	_, sel, err := a.EncodeCalldata([]byte(erc20ABI), "approve(address,uint256)", []string{"0x000000000000000000000000000000000000dEaD", "1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
	if !bytes.Equal(sel[:], want) {
		t.Fatalf("selector mismatch for qualified overload lookup: got %x want %x", sel, want)
	}
}
