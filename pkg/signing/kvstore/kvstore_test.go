package kvstore

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
)

func TestSetGetRoundTrip(t *testing.T) {
	db := dbm.NewMemDB()
	s := NewStore(db)

	if err := s.Set([]byte("tx:0xAAA"), []byte(`{"status":"Draft"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := s.Get([]byte("tx:0xAAA"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != `{"status":"Draft"}` {
		t.Fatalf("unexpected value %q", v)
	}
}

func TestNilDbIsNoOp(t *testing.T) {
	s := NewStore(nil)
	if err := s.Set([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("set on nil db should be a no-op, got %v", err)
	}
	v, err := s.Get([]byte("k"))
	if err != nil || v != nil {
		t.Fatalf("get on nil db should miss, got %v, %v", v, err)
	}
}

func TestIterateVisitsKeysInRange(t *testing.T) {
	db := dbm.NewMemDB()
	s := NewStore(db)
	_ = s.Set([]byte("a"), []byte("1"))
	_ = s.Set([]byte("b"), []byte("2"))
	_ = s.Set([]byte("c"), []byte("3"))

	var seen []string
	err := s.Iterate(nil, nil, func(key, value []byte) bool {
		seen = append(seen, string(key))
		return true
	})
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 keys, got %v", seen)
	}
}
