package payment

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Scheme names the payment mechanism. Only exact-amount EIP-3009 transfers
// are implemented today.
type Scheme string

const SchemeExact Scheme = "exact"

// Network identifies a target chain by its x402 human label.
type Network string

const (
	NetworkBase          Network = "base"
	NetworkBaseSepolia   Network = "base-sepolia"
	NetworkAvalanche     Network = "avalanche"
	NetworkAvalancheFuji Network = "avalanche-fuji"
	NetworkPolygonAmoy   Network = "polygon-amoy"
)

// NetworkInfo is the static per-network data the facilitator needs: the chain
// id and the canonical USDC deployment with its EIP-712 domain parameters.
type NetworkInfo struct {
	ChainID       int64
	USDC          common.Address
	DomainName    string
	DomainVersion string
}

// USDC addresses and EIP-712 domain parameters per Circle's deployments.
var networks = map[Network]NetworkInfo{
	NetworkBase: {
		ChainID:       8453,
		USDC:          common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		DomainName:    "USD Coin",
		DomainVersion: "2",
	},
	NetworkBaseSepolia: {
		ChainID:       84532,
		USDC:          common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
		DomainName:    "USDC",
		DomainVersion: "2",
	},
	NetworkAvalanche: {
		ChainID:       43114,
		USDC:          common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"),
		DomainName:    "USD Coin",
		DomainVersion: "2",
	},
	NetworkAvalancheFuji: {
		ChainID:       43113,
		USDC:          common.HexToAddress("0x5425890298aed601595a70AB815c96711a31Bc65"),
		DomainName:    "USD Coin",
		DomainVersion: "2",
	},
	NetworkPolygonAmoy: {
		ChainID:       80002,
		USDC:          common.HexToAddress("0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582"),
		DomainName:    "USDC",
		DomainVersion: "2",
	},
}

// KnownNetwork looks up the static info for a network label.
func KnownNetwork(n Network) (NetworkInfo, bool) {
	info, ok := networks[n]
	return info, ok
}

// ChainID returns the chain id for a known network, nil otherwise.
func (n Network) ChainID() *big.Int {
	info, ok := networks[n]
	if !ok {
		return nil
	}
	return big.NewInt(info.ChainID)
}

func (n Network) String() string { return string(n) }

func (s Scheme) String() string { return string(s) }
