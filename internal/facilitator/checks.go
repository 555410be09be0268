package facilitator

import (
	"context"
	"math/big"

	"github.com/ultravioletadao/x402-facilitator/internal/eip3009"
	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

// check runs the fixed admission pipeline: requirement match, timing window,
// signature recovery, funds. The order is load-bearing — categorical
// mismatches must be reported before signature or funds issues so clients get
// deterministic, actionable feedback.
func (e *Engine) check(ctx context.Context, req *payment.VerifyRequest) *Error {
	if err := req.Validate(); err != nil {
		return decoding(err.Error())
	}

	payload := &req.PaymentPayload
	reqs := &req.PaymentRequirements
	auth := &payload.Payload.Authorization

	if ferr := e.match(payload, reqs); ferr != nil {
		return ferr
	}
	if ferr := e.checkTiming(auth); ferr != nil {
		return ferr
	}
	if ferr := e.checkSignature(payload, reqs); ferr != nil {
		return ferr
	}
	return e.checkFunds(ctx, auth, reqs)
}

// match is the pure compatibility check between payload and requirements.
// First failure wins; every failure carries the best-known payer from the
// authorization, recoverable even when other checks would fail.
func (e *Engine) match(payload *payment.PaymentPayload, reqs *payment.PaymentRequirements) *Error {
	auth := &payload.Payload.Authorization

	if payload.Scheme != reqs.Scheme || payload.Scheme != payment.SchemeExact {
		return reject(KindSchemeMismatch, auth.From)
	}

	if _, ok := e.providers[payload.Network]; !ok {
		return reject(KindUnsupportedNetwork, auth.From)
	}
	if payload.Network != reqs.Network {
		if _, ok := e.providers[reqs.Network]; !ok {
			return reject(KindUnsupportedNetwork, auth.From)
		}
		return reject(KindNetworkMismatch, auth.From)
	}

	if auth.To != reqs.PayTo {
		return reject(KindReceiverMismatch, auth.From)
	}

	// Inclusive boundary: an authorization for exactly the required amount
	// passes.
	if auth.Value.Cmp(&reqs.MaxAmountRequired.Int) < 0 {
		return reject(KindInsufficientValue, auth.From)
	}
	return nil
}

// checkTiming validates the authorization window against the injected clock:
// valid iff validAfter <= now+skew and now < validBefore. The upper bound is
// exclusive and gets no skew grace — an authorization at its expiry instant
// would revert on-chain anyway.
func (e *Engine) checkTiming(auth *payment.Authorization) *Error {
	now := e.clock()
	if now.IsZero() {
		return &Error{Kind: KindClockError, Detail: "clock returned zero time"}
	}

	skewed := big.NewInt(now.Unix() + int64(e.skew.Seconds()))
	if auth.ValidAfter.Cmp(skewed) > 0 {
		return reject(KindInvalidTiming, auth.From)
	}
	if big.NewInt(now.Unix()).Cmp(&auth.ValidBefore.Int) >= 0 {
		return reject(KindInvalidTiming, auth.From)
	}
	return nil
}

// checkSignature reconstructs the EIP-712 digest under the token's domain and
// requires the recovered signer to equal the claimed payer. Wrong signer,
// malformed signature, and wrong domain are indistinguishable to the
// verifier and all reject the same way. Runs exactly once per call — results
// are never memoized, authorizations are single-use.
func (e *Engine) checkSignature(payload *payment.PaymentPayload, reqs *payment.PaymentRequirements) *Error {
	auth := &payload.Payload.Authorization

	name, version := reqs.Domain()
	domain := eip3009.Domain{
		Name:              name,
		Version:           version,
		ChainID:           reqs.Network.ChainID(),
		VerifyingContract: reqs.Asset,
	}
	signer, err := eip3009.RecoverSigner(auth, payload.Payload.Signature, domain)
	if err != nil {
		return reject(KindInvalidSignature, auth.From)
	}
	if signer != auth.From {
		return reject(KindInvalidSignature, auth.From)
	}
	return nil
}

// checkFunds is the one verification step with network I/O: it reads the
// payer's token balance through the chain provider. RPC failures are
// infrastructure faults, never conflated with the payer being underfunded.
func (e *Engine) checkFunds(ctx context.Context, auth *payment.Authorization, reqs *payment.PaymentRequirements) *Error {
	provider := e.providers[reqs.Network]
	balance, err := provider.BalanceOf(ctx, reqs.Asset, auth.From)
	if err != nil {
		return contractCall(err)
	}
	if balance.Cmp(&auth.Value.Int) < 0 {
		return reject(KindInsufficientFunds, auth.From)
	}
	return nil
}
