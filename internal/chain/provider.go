// Package chain wraps go-ethereum RPC access for the facilitator: ERC-20
// balance reads, EIP-3009 transfer submission with the facilitator's own
// operating account paying gas, and provider health probes.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

// The subset of the EIP-3009 token ABI the facilitator touches.
const erc20ABI = `
[
  {
    "name": "balanceOf",
    "type": "function",
    "stateMutability": "view",
    "inputs": [{ "name": "account", "type": "address" }],
    "outputs": [{ "name": "", "type": "uint256" }]
  },
  {
    "name": "authorizationState",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      { "name": "authorizer", "type": "address" },
      { "name": "nonce", "type": "bytes32" }
    ],
    "outputs": [{ "name": "", "type": "bool" }]
  },
  {
    "name": "transferWithAuthorization",
    "type": "function",
    "stateMutability": "nonpayable",
    "inputs": [
      { "name": "from", "type": "address" },
      { "name": "to", "type": "address" },
      { "name": "value", "type": "uint256" },
      { "name": "validAfter", "type": "uint256" },
      { "name": "validBefore", "type": "uint256" },
      { "name": "nonce", "type": "bytes32" },
      { "name": "v", "type": "uint8" },
      { "name": "r", "type": "bytes32" },
      { "name": "s", "type": "bytes32" }
    ],
    "outputs": []
  }
]
`

// Provider wraps go-ethereum for one network. It is safe for concurrent use
// by multiple in-flight requests; all mutable state lives on-chain.
type Provider struct {
	network        payment.Network
	chainID        *big.Int
	eth            *ethclient.Client
	erc20          abi.ABI
	signerKey      *ecdsa.PrivateKey
	signerAddr     common.Address
	callTimeout    time.Duration
	confirmTimeout time.Duration
}

// Options bound every chain interaction so no request can hang indefinitely.
type Options struct {
	CallTimeout    time.Duration
	ConfirmTimeout time.Duration
}

// NewProvider dials the RPC endpoint and checks that the node's chain id
// matches the registry entry for the network, failing fast on misconfig.
func NewProvider(ctx context.Context, network payment.Network, rpcURL, signerKeyHex string, opts Options) (*Provider, error) {
	info, ok := payment.KnownNetwork(network)
	if !ok {
		return nil, fmt.Errorf("unknown network %q", network)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc for %s: %w", network, err)
	}

	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(signerKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}

	p := &Provider{
		network:        network,
		chainID:        big.NewInt(info.ChainID),
		eth:            eth,
		erc20:          parsed,
		signerKey:      privKey,
		signerAddr:     crypto.PubkeyToAddress(privKey.PublicKey),
		callTimeout:    opts.CallTimeout,
		confirmTimeout: opts.ConfirmTimeout,
	}

	nodeCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
	defer cancel()
	nodeID, err := eth.ChainID(nodeCtx)
	if err != nil {
		return nil, fmt.Errorf("chain id for %s: %w", network, err)
	}
	if nodeID.Cmp(p.chainID) != 0 {
		return nil, fmt.Errorf("rpc for %s reports chain id %s, want %s", network, nodeID, p.chainID)
	}

	return p, nil
}

// Network returns the network this provider serves.
func (p *Provider) Network() payment.Network { return p.network }

// SignerAddress is the facilitator's operating account on this network.
func (p *Provider) SignerAddress() common.Address { return p.signerAddr }

func (p *Provider) token(asset common.Address) *bind.BoundContract {
	return bind.NewBoundContract(asset, p.erc20, p.eth, p.eth, p.eth)
}

// BalanceOf reads the payer's token balance.
func (p *Provider) BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	var out []interface{}
	err := p.token(asset).Call(&bind.CallOpts{Context: callCtx}, &out, "balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("balanceOf: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// AuthorizationUsed reports whether the nonce was already consumed on-chain.
func (p *Provider) AuthorizationUsed(ctx context.Context, asset, authorizer common.Address, nonce common.Hash) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	var out []interface{}
	err := p.token(asset).Call(&bind.CallOpts{Context: callCtx}, &out, "authorizationState", authorizer, [32]byte(nonce))
	if err != nil {
		return false, fmt.Errorf("authorizationState: %w", err)
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// SubmitTransfer broadcasts transferWithAuthorization, paying gas from the
// facilitator's operating account. The payer signed the authorization but
// never submits anything.
func (p *Provider) SubmitTransfer(ctx context.Context, asset common.Address, auth *payment.Authorization, sig []byte) (*types.Transaction, error) {
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	var r, s [32]byte
	copy(r[:], sig[0:32])
	copy(s[:], sig[32:64])
	v := sig[64]
	if v < 27 {
		v += 27
	}

	opts, err := bind.NewKeyedTransactorWithChainID(p.signerKey, p.chainID)
	if err != nil {
		return nil, fmt.Errorf("build tx opts: %w", err)
	}
	submitCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()
	opts.Context = submitCtx

	tx, err := p.token(asset).Transact(opts, "transferWithAuthorization",
		auth.From,
		auth.To,
		&auth.Value.Int,
		&auth.ValidAfter.Int,
		&auth.ValidBefore.Int,
		[32]byte(auth.Nonce),
		v, r, s,
	)
	if err != nil {
		return nil, fmt.Errorf("transferWithAuthorization tx: %w", err)
	}
	return tx, nil
}

// AwaitReceipt waits for the transaction to be mined, bounded by the
// provider's confirmation timeout on top of the caller's context.
func (p *Provider) AwaitReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, p.eth, tx)
	if err != nil {
		return nil, fmt.Errorf("wait mined %s: %w", tx.Hash().Hex(), err)
	}
	return receipt, nil
}

// Ping probes the RPC endpoint and returns the head block and round-trip
// latency. Used by the health refresher, never on the request path.
func (p *Provider) Ping(ctx context.Context) (uint64, time.Duration, error) {
	pingCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	start := time.Now()
	block, err := p.eth.BlockNumber(pingCtx)
	if err != nil {
		return 0, 0, fmt.Errorf("block number: %w", err)
	}
	return block, time.Since(start), nil
}

// Close releases the underlying RPC connection.
func (p *Provider) Close() {
	p.eth.Close()
}
