// Copyright 2025 Certen Protocol
//
// Package policy loads a YAML signing-policy file, following the same
// yaml.v3 struct-tag convention used for this codebase's other YAML
// configuration. Unlike the flat RUSTY_SAFE_* environment config, policy
// covers per-chain rules an operator tunes without a redeploy: signature
// threshold bounds and a deny list of Safe addresses.
package policy

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ChainPolicy bounds the signature threshold accepted for one chain and
// lists Safe addresses that may never be proposed against. DeniedSafes is
// parsed as hex strings rather than common.Address directly, since
// go-ethereum's Address type has no YAML unmarshaler.
type ChainPolicy struct {
	ChainID      uint64   `yaml:"chain_id"`
	MinThreshold int      `yaml:"min_threshold"`
	MaxThreshold int      `yaml:"max_threshold"`
	DeniedSafes  []string `yaml:"denied_safes"`
}

// Policy is the full signing-policy document: a default applied to any
// chain without its own entry, plus per-chain overrides.
type Policy struct {
	Default ChainPolicy   `yaml:"default"`
	Chains  []ChainPolicy `yaml:"chains"`
}

// Load reads and parses a policy document from path. An empty path returns
// a permissive default policy (MinThreshold 1, MaxThreshold unbounded) so
// callers can wire Load unconditionally.
func Load(path string) (*Policy, error) {
	if path == "" {
		return &Policy{Default: ChainPolicy{MinThreshold: 1}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if p.Default.MinThreshold < 1 {
		p.Default.MinThreshold = 1
	}
	return &p, nil
}

// ForChain returns the policy in effect for chainID, falling back to the
// default entry when no chain-specific override exists.
func (p *Policy) ForChain(chainID uint64) ChainPolicy {
	for _, c := range p.Chains {
		if c.ChainID == chainID {
			if c.MinThreshold < 1 {
				c.MinThreshold = p.Default.MinThreshold
			}
			return c
		}
	}
	return p.Default
}

// CheckThreshold reports whether threshold satisfies the chain's policy
// bounds. MaxThreshold of 0 means unbounded.
func (c ChainPolicy) CheckThreshold(threshold int) error {
	if threshold < c.MinThreshold {
		return fmt.Errorf("threshold %d is below the minimum of %d", threshold, c.MinThreshold)
	}
	if c.MaxThreshold > 0 && threshold > c.MaxThreshold {
		return fmt.Errorf("threshold %d exceeds the maximum of %d", threshold, c.MaxThreshold)
	}
	return nil
}

// IsDenied reports whether safeAddress is on the chain's deny list.
func (c ChainPolicy) IsDenied(safeAddress common.Address) bool {
	for _, denied := range c.DeniedSafes {
		if common.HexToAddress(denied) == safeAddress {
			return true
		}
	}
	return false
}
