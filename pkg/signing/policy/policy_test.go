package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestLoadWithEmptyPathIsPermissive(t *testing.T) {
	p, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	chain := p.ForChain(1)
	if err := chain.CheckThreshold(1); err != nil {
		t.Fatalf("expected threshold 1 to satisfy default policy: %v", err)
	}
}

func TestLoadParsesChainOverridesAndDenyList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	denied := common.HexToAddress("0xDEAD")
	doc := "default:\n  min_threshold: 1\nchains:\n  - chain_id: 5\n    min_threshold: 2\n    max_threshold: 3\n    denied_safes:\n      - \"" + denied.Hex() + "\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chain := p.ForChain(5)
	if chain.MinThreshold != 2 || chain.MaxThreshold != 3 {
		t.Fatalf("unexpected chain policy: %+v", chain)
	}
	if err := chain.CheckThreshold(1); err == nil {
		t.Fatalf("expected threshold 1 to violate min_threshold 2")
	}
	if err := chain.CheckThreshold(4); err == nil {
		t.Fatalf("expected threshold 4 to violate max_threshold 3")
	}
	if !chain.IsDenied(denied) {
		t.Fatalf("expected %s to be denied", denied.Hex())
	}

	unlisted := p.ForChain(999)
	if unlisted.MinThreshold != p.Default.MinThreshold {
		t.Fatalf("expected unlisted chain to fall back to default policy")
	}
}
