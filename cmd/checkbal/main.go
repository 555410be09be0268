// cmd/checkbal/main.go — operator tool: reads a payer's USDC balance and,
// optionally, whether an authorization nonce was already used on-chain.
//
// Usage:
//
//	go run ./cmd/checkbal/ --network base-sepolia --rpc https://sepolia.base.org \
//	  --account 0x... [--nonce 0x...]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

const readABI = `
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
  }
]
`

func main() {
	network := flag.String("network", "base-sepolia", "x402 network label")
	rpcURL := flag.String("rpc", "", "RPC endpoint")
	account := flag.String("account", "", "payer address")
	nonce := flag.String("nonce", "", "authorization nonce to check (optional)")
	flag.Parse()

	if *rpcURL == "" || *account == "" {
		fmt.Fprintln(os.Stderr, "usage: checkbal --network <label> --rpc <url> --account 0x... [--nonce 0x...]")
		os.Exit(1)
	}
	info, ok := payment.KnownNetwork(payment.Network(*network))
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown network %q\n", *network)
		os.Exit(1)
	}

	eth, err := ethclient.Dial(*rpcURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	parsed, err := abi.JSON(strings.NewReader(readABI))
	if err != nil {
		fmt.Fprintf(os.Stderr, "abi: %v\n", err)
		os.Exit(1)
	}
	token := bind.NewBoundContract(info.USDC, parsed, eth, eth, eth)
	opts := &bind.CallOpts{Context: context.Background()}
	payer := common.HexToAddress(*account)

	var out []interface{}
	if err := token.Call(opts, &out, "balanceOf", payer); err != nil {
		fmt.Fprintf(os.Stderr, "balanceOf: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("network:  %s (chain id %d)\n", *network, info.ChainID)
	fmt.Printf("usdc:     %s\n", info.USDC.Hex())
	fmt.Printf("balance:  %s atomic units\n", out[0])

	if *nonce != "" {
		out = out[:0]
		if err := token.Call(opts, &out, "authorizationState", payer, common.HexToHash(*nonce)); err != nil {
			fmt.Fprintf(os.Stderr, "authorizationState: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("nonce used: %v\n", out[0])
	}
}
