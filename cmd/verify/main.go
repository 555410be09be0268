// cmd/verify/main.go — smoke-test client: builds a signed x402 payment for a
// throwaway (or supplied) payer key and submits it to a running facilitator's
// /verify endpoint, optionally following up with /settle.
//
// Usage:
//
//	go run ./cmd/verify/ --facilitator http://localhost:8080 \
//	  --network base-sepolia --to 0x... --value 1000 [--key <hex>] [--settle]
package main

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ultravioletadao/x402-facilitator/internal/eip3009"
	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

func main() {
	facilitator := flag.String("facilitator", "http://localhost:8080", "facilitator base URL")
	network := flag.String("network", "base-sepolia", "x402 network label")
	to := flag.String("to", "", "recipient address (payTo)")
	value := flag.String("value", "1000", "amount in atomic units")
	keyHex := flag.String("key", "", "payer private key hex (generated if omitted)")
	settle := flag.Bool("settle", false, "also call /settle after /verify")
	flag.Parse()

	if *to == "" {
		fmt.Fprintln(os.Stderr, "usage: verify --facilitator <url> --network <label> --to 0x... --value <atomic> [--key <hex>] [--settle]")
		os.Exit(1)
	}
	info, ok := payment.KnownNetwork(payment.Network(*network))
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown network %q\n", *network)
		os.Exit(1)
	}
	amount, ok := new(big.Int).SetString(*value, 10)
	if !ok || amount.Sign() < 0 {
		fmt.Fprintf(os.Stderr, "invalid value %q\n", *value)
		os.Exit(1)
	}

	var key *ecdsa.PrivateKey
	var err error
	if *keyHex != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	} else {
		key, err = crypto.GenerateKey()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "payer key: %v\n", err)
		os.Exit(1)
	}
	payer := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := eip3009.NewNonce()
	if err != nil {
		fmt.Fprintf(os.Stderr, "nonce: %v\n", err)
		os.Exit(1)
	}
	now := time.Now().Unix()
	auth := payment.Authorization{
		From:        payer,
		To:          common.HexToAddress(*to),
		Value:       payment.NewUint256(amount),
		ValidAfter:  payment.Uint256FromUint64(0),
		ValidBefore: payment.Uint256FromUint64(uint64(now + 600)),
		Nonce:       nonce,
	}
	sig, err := eip3009.Sign(&auth, key, eip3009.Domain{
		Name:              info.DomainName,
		Version:           info.DomainVersion,
		ChainID:           big.NewInt(info.ChainID),
		VerifyingContract: info.USDC,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}

	req := payment.VerifyRequest{
		X402Version: 1,
		PaymentPayload: payment.PaymentPayload{
			X402Version: 1,
			Scheme:      payment.SchemeExact,
			Network:     payment.Network(*network),
			Payload: payment.ExactEvmPayload{
				Signature:     sig,
				Authorization: auth,
			},
		},
		PaymentRequirements: payment.PaymentRequirements{
			Scheme:            payment.SchemeExact,
			Network:           payment.Network(*network),
			MaxAmountRequired: payment.NewUint256(amount),
			PayTo:             common.HexToAddress(*to),
			Asset:             info.USDC,
		},
	}

	fmt.Printf("payer: %s\n", payer.Hex())
	post(*facilitator+"/verify", &req)
	if *settle {
		post(*facilitator+"/settle", &req)
	}
}

func post(url string, req *payment.VerifyRequest) {
	body, err := json.Marshal(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "POST %s: %v\n", url, err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s -> %d %s\n", url, resp.StatusCode, out)
}
