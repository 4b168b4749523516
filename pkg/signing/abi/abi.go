// Copyright 2025 Certen Protocol
//
// Package abi implements the Abi port: encode_calldata(abi_json,
// method_signature, args) -> (bytes, 4-byte selector), using go-ethereum's
// accounts/abi package for type parsing and argument packing.
package abi

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rusty-safe/signing-orchestrator/pkg/signing/ports"
)

// Adapter is the Abi port's implementation.
type Adapter struct{}

// NewAdapter constructs an abi.Adapter.
func NewAdapter() *Adapter { return &Adapter{} }

// EncodeCalldata selects the named/overloaded method, coerces args into its
// declared Solidity types, and returns selector||packed_args. It verifies
// the computed selector matches keccak256 of the selected method's
// canonical signature, first four bytes, before returning, failing with
// ABI_SELECTOR_MISMATCH if not. This should only
// ever trip on a parsing bug, since the selector is derived from the same
// method the args were packed against, but callers get a distinct error
// rather than silently shipping mismatched calldata.
func (a *Adapter) EncodeCalldata(abiJSON []byte, methodSignature string, args []string) ([]byte, [4]byte, error) {
	parsed, err := gethabi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, [4]byte{}, ports.NewValidationError("invalid abi json: %v", err)
	}

	method, err := selectMethod(parsed, methodSignature)
	if err != nil {
		return nil, [4]byte{}, err
	}

	if len(args) != len(method.Inputs) {
		return nil, [4]byte{}, ports.NewValidationError(
			"argument count mismatch for %s: expected %d, got %d", method.Sig, len(method.Inputs), len(args))
	}

	values := make([]interface{}, len(args))
	for i, rawArg := range args {
		coerced, err := coerceArg(rawArg, method.Inputs[i].Type)
		if err != nil {
			return nil, [4]byte{}, ports.NewValidationError("argument %d (%s): %v", i, method.Inputs[i].Type.String(), err)
		}
		values[i] = coerced
	}

	packedArgs, err := method.Inputs.Pack(values...)
	if err != nil {
		return nil, [4]byte{}, ports.NewValidationError("pack arguments: %v", err)
	}

	canonicalSig := canonicalSignature(method)
	selector := selectorFromSignature(canonicalSig)

	encoded := make([]byte, 0, 4+len(packedArgs))
	encoded = append(encoded, selector[:]...)
	encoded = append(encoded, packedArgs...)

	if [4]byte(encoded[:4]) != selector {
		return nil, [4]byte{}, ports.NewValidationError(ports.ReasonAbiSelectorMismatch)
	}

	return encoded, selector, nil
}

// selectorFromSignature returns keccak256(signature)[0:4].
func selectorFromSignature(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

func canonicalSignature(method gethabi.Method) string {
	types := make([]string, len(method.Inputs))
	for i, in := range method.Inputs {
		types[i] = in.Type.String()
	}
	return fmt.Sprintf("%s(%s)", method.RawName, strings.Join(types, ","))
}

// selectMethod resolves overloads: a signature containing "(" must match a
// method's exact canonical signature; otherwise an unqualified name selects
// the first overload found.
func selectMethod(parsed gethabi.ABI, methodSignature string) (gethabi.Method, error) {
	if strings.Contains(methodSignature, "(") {
		for _, m := range parsed.Methods {
			if canonicalSignature(m) == methodSignature {
				return m, nil
			}
		}
		return gethabi.Method{}, ports.NewValidationError("no method overload matches signature %q", methodSignature)
	}

	var found *gethabi.Method
	for name, m := range parsed.Methods {
		if m.RawName == methodSignature && (found == nil || name < found.Name) {
			mCopy := m
			found = &mCopy
		}
	}
	if found == nil {
		return gethabi.Method{}, ports.NewValidationError("no method named %q", methodSignature)
	}
	return *found, nil
}

// coerceArg parses rawArg first as JSON, falling back to the plain string,
// then coerces the resulting value into t.
func coerceArg(rawArg string, t gethabi.Type) (interface{}, error) {
	var asJSON interface{}
	if err := json.Unmarshal([]byte(rawArg), &asJSON); err != nil {
		asJSON = rawArg
	}
	return coerceValue(asJSON, t)
}

func coerceValue(v interface{}, t gethabi.Type) (interface{}, error) {
	switch t.T {
	case gethabi.BoolTy:
		return coerceBool(v)
	case gethabi.UintTy, gethabi.IntTy:
		return coerceInt(v, t)
	case gethabi.AddressTy:
		return coerceAddress(v)
	case gethabi.FixedBytesTy:
		return coerceFixedBytes(v, t.Size)
	case gethabi.BytesTy:
		return coerceBytes(v)
	case gethabi.StringTy:
		return coerceString(v)
	case gethabi.SliceTy:
		return coerceSlice(v, t)
	case gethabi.ArrayTy:
		return coerceArray(v, t)
	case gethabi.TupleTy:
		return coerceTuple(v, t)
	default:
		return nil, fmt.Errorf("unsupported abi type %s", t.String())
	}
}

func coerceBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, fmt.Errorf("invalid bool %q", t)
		}
		return b, nil
	default:
		return false, fmt.Errorf("cannot coerce %T to bool", v)
	}
}

func coerceIntString(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n := new(big.Int)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if _, ok := n.SetString(s[2:], 16); !ok {
			return nil, fmt.Errorf("invalid hex integer %q", s)
		}
		return n, nil
	}
	if _, ok := n.SetString(s, 10); !ok {
		return nil, fmt.Errorf("invalid decimal integer %q", s)
	}
	return n, nil
}

func coerceInt(v interface{}, t gethabi.Type) (interface{}, error) {
	var n *big.Int
	var err error
	switch val := v.(type) {
	case string:
		n, err = coerceIntString(val)
	case float64:
		n = big.NewInt(int64(val))
	case json.Number:
		n, ok := new(big.Int).SetString(val.String(), 10)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", val.String())
		}
		return sizeInt(n, t), nil
	default:
		return nil, fmt.Errorf("cannot coerce %T to integer", v)
	}
	if err != nil {
		return nil, err
	}
	return sizeInt(n, t), nil
}

// sizeInt narrows a *big.Int to the small fixed-width Go types go-ethereum's
// Pack expects for sub-256-bit integers, matching accounts/abi's reflection
// rules; 256-bit ints stay as *big.Int.
func sizeInt(n *big.Int, t gethabi.Type) interface{} {
	if t.Size > 64 || t.Size == 0 {
		return n
	}
	if t.T == gethabi.UintTy {
		switch {
		case t.Size <= 8:
			return uint8(n.Uint64())
		case t.Size <= 16:
			return uint16(n.Uint64())
		case t.Size <= 32:
			return uint32(n.Uint64())
		default:
			return n.Uint64()
		}
	}
	switch {
	case t.Size <= 8:
		return int8(n.Int64())
	case t.Size <= 16:
		return int16(n.Int64())
	case t.Size <= 32:
		return int32(n.Int64())
	default:
		return n.Int64()
	}
}

func coerceAddress(v interface{}) (common.Address, error) {
	s, ok := v.(string)
	if !ok {
		return common.Address{}, fmt.Errorf("cannot coerce %T to address", v)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func decodeHexOrRaw(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("cannot coerce %T to bytes", v)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		h := s[2:]
		if len(h)%2 != 0 {
			h = "0" + h
		}
		out := make([]byte, len(h)/2)
		for i := 0; i < len(out); i++ {
			b, err := strconv.ParseUint(h[i*2:i*2+2], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid hex bytes %q", s)
			}
			out[i] = byte(b)
		}
		return out, nil
	}
	return []byte(s), nil
}

func coerceFixedBytes(v interface{}, size int) (interface{}, error) {
	raw, err := decodeHexOrRaw(v)
	if err != nil {
		return nil, err
	}
	if len(raw) != size {
		return nil, fmt.Errorf("expected %d bytes, got %d", size, len(raw))
	}
	arrType := reflect.ArrayOf(size, reflect.TypeOf(byte(0)))
	val := reflect.New(arrType).Elem()
	reflect.Copy(val, reflect.ValueOf(raw))
	return val.Interface(), nil
}

func coerceBytes(v interface{}) ([]byte, error) {
	return decodeHexOrRaw(v)
}

func coerceString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("cannot coerce %T to string", v)
	}
	return s, nil
}

func coerceSlice(v interface{}, t gethabi.Type) (interface{}, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("cannot coerce %T to array", v)
	}
	return packHomogeneous(items, t.Elem, -1)
}

func coerceArray(v interface{}, t gethabi.Type) (interface{}, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("cannot coerce %T to fixed array", v)
	}
	if len(items) != t.Size {
		return nil, fmt.Errorf("expected fixed array of size %d, got %d", t.Size, len(items))
	}
	return packHomogeneous(items, t.Elem, t.Size)
}

// packHomogeneous coerces each item against elemType and assembles a Go
// slice (fixedSize < 0, for dynamic arrays) or a Go array of fixedSize (for
// Solidity fixed-size arrays) via reflection, matching what go-ethereum's
// Pack expects for SliceTy vs ArrayTy respectively.
func packHomogeneous(items []interface{}, elemType *gethabi.Type, fixedSize int) (interface{}, error) {
	coerced := make([]interface{}, len(items))
	elemReflectType := elemType.GetType()
	for i, it := range items {
		c, err := coerceValue(it, *elemType)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		coerced[i] = c
	}

	if fixedSize < 0 {
		slice := reflect.MakeSlice(reflect.SliceOf(elemReflectType), len(coerced), len(coerced))
		for i, c := range coerced {
			setReflectElem(slice.Index(i), c)
		}
		return slice.Interface(), nil
	}

	arr := reflect.New(reflect.ArrayOf(fixedSize, elemReflectType)).Elem()
	for i, c := range coerced {
		setReflectElem(arr.Index(i), c)
	}
	return arr.Interface(), nil
}

func setReflectElem(dst reflect.Value, v interface{}) {
	val := reflect.ValueOf(v)
	if val.Type() != dst.Type() && val.Type().ConvertibleTo(dst.Type()) {
		val = val.Convert(dst.Type())
	}
	dst.Set(val)
}

// coerceTuple builds the anonymous struct value go-ethereum's Pack expects
// for a tuple type, field by field, via reflection.
func coerceTuple(v interface{}, t gethabi.Type) (interface{}, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("cannot coerce %T to tuple", v)
	}
	if len(items) != len(t.TupleElems) {
		return nil, fmt.Errorf("expected tuple of %d elements, got %d", len(t.TupleElems), len(items))
	}

	structType := t.GetType()
	out := reflect.New(structType).Elem()
	for i, elemType := range t.TupleElems {
		coerced, err := coerceValue(items[i], *elemType)
		if err != nil {
			return nil, fmt.Errorf("tuple element %d: %w", i, err)
		}
		fieldVal := reflect.ValueOf(coerced)
		field := out.Field(i)
		if fieldVal.Type() != field.Type() && fieldVal.Type().ConvertibleTo(field.Type()) {
			fieldVal = fieldVal.Convert(field.Type())
		}
		field.Set(fieldVal)
	}
	return out.Interface(), nil
}
