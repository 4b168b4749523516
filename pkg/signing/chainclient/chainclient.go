// Copyright 2025 Certen Protocol
//
// Package chainclient wraps go-ethereum's ethclient for the two things the
// orchestrator needs from a real chain: a liveness check for the
// runtime-attached provider mode, and the key-management helpers around the
// export signer. It is intentionally a thin slice of what a full chain
// client could do; nothing here builds or broadcasts transactions, since
// SafeService and Provider own that.
package chainclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps a dialed JSON-RPC connection to an Ethereum-compatible chain.
type Client struct {
	client  *ethclient.Client
	chainID *big.Int
	url     string
}

// Dial connects to url and remembers the expected chainID for logging; it
// does not itself verify the remote chain ID matches (Health/BlockNumber do
// not either — that check belongs to the orchestrator's ConnectProvider
// flow, which compares against the Provider port's reported chain id).
func Dial(url string, chainID int64) (*Client, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum rpc: %w", err)
	}
	return &Client{client: client, chainID: big.NewInt(chainID), url: url}, nil
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// BlockNumber returns the latest block number the RPC endpoint reports.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return n, nil
}

// Health reports whether the RPC endpoint is reachable and responsive.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("ethereum health check failed: %w", err)
	}
	return nil
}

// GetPublicAddress recovers the address for a hex-encoded private key. Used
// when loading the export signer from RUSTY_SAFE_EXPORT_SIGNER_PRIVATE_KEY.
func GetPublicAddress(privateKeyHex string) (common.Address, error) {
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("cast public key to ecdsa")
	}
	return crypto.PubkeyToAddress(*publicKeyECDSA), nil
}

// ParsePrivateKey parses a hex-encoded private key, used to load the export
// signer into the queue adapter rather than just logging its address.
func ParsePrivateKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return privateKey, nil
}

// GeneratePrivateKey generates a fresh secp256k1 key, used by development
// tooling to mint a throwaway export signer.
func GeneratePrivateKey() (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return privateKey, nil
}

// PrivateKeyToHex renders a private key as a 0x-prefixed hex string.
func PrivateKeyToHex(privateKey *ecdsa.PrivateKey) string {
	return fmt.Sprintf("0x%x", crypto.FromECDSA(privateKey))
}
