// Package payment defines the x402 v1 wire types exchanged between clients,
// resource servers, and the facilitator, plus the static network registry.
// All entities are constructed per request and discarded; the chain is the
// only durable state.
package payment

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Authorization is a signed EIP-3009 promise to transfer Value from From to
// To, redeemable once (Nonce), only within [ValidAfter, ValidBefore).
type Authorization struct {
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Value       *Uint256       `json:"value"`
	ValidAfter  *Uint256       `json:"validAfter"`
	ValidBefore *Uint256       `json:"validBefore"`
	Nonce       common.Hash    `json:"nonce"`
}

// ExactEvmPayload carries the authorization plus its 65-byte ECDSA signature
// (r || s || v).
type ExactEvmPayload struct {
	Signature     hexutil.Bytes `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// PaymentPayload is what the client sends in the X-PAYMENT header.
type PaymentPayload struct {
	X402Version int             `json:"x402Version"`
	Scheme      Scheme          `json:"scheme"`
	Network     Network         `json:"network"`
	Payload     ExactEvmPayload `json:"payload"`
}

// PaymentRequirements is what the resource server demands for access.
type PaymentRequirements struct {
	Scheme            Scheme           `json:"scheme"`
	Network           Network          `json:"network"`
	MaxAmountRequired *Uint256         `json:"maxAmountRequired"`
	Resource          string           `json:"resource,omitempty"`
	Description       string           `json:"description,omitempty"`
	MimeType          string           `json:"mimeType,omitempty"`
	PayTo             common.Address   `json:"payTo"`
	MaxTimeoutSeconds int              `json:"maxTimeoutSeconds,omitempty"`
	Asset             common.Address   `json:"asset"`
	OutputSchema      *json.RawMessage `json:"outputSchema,omitempty"`
	Extra             *json.RawMessage `json:"extra,omitempty"`
}

// ExtraDomain is the optional `extra` block on requirements carrying EIP-712
// domain overrides for tokens whose name/version differ from the registry.
type ExtraDomain struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Domain resolves the EIP-712 domain name and version for the requirements'
// asset: the extra block wins, then the network registry default.
func (r *PaymentRequirements) Domain() (name, version string) {
	if info, ok := KnownNetwork(r.Network); ok {
		name, version = info.DomainName, info.DomainVersion
	}
	if r.Extra != nil {
		var extra ExtraDomain
		if err := json.Unmarshal(*r.Extra, &extra); err == nil {
			if extra.Name != "" {
				name = extra.Name
			}
			if extra.Version != "" {
				version = extra.Version
			}
		}
	}
	return name, version
}

// VerifyRequest is the facilitator /verify (and /settle) request body.
type VerifyRequest struct {
	X402Version         int                 `json:"x402Version" validate:"required"`
	PaymentPayload      PaymentPayload      `json:"paymentPayload" validate:"required"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements" validate:"required"`
}

// SettleRequest has the same shape as VerifyRequest.
type SettleRequest = VerifyRequest

// VerifyResponse is the facilitator's verification outcome. Business-rule
// rejections are carried here, never as transport errors.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse reports the definitive on-chain settlement outcome.
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	TxHash      string  `json:"transaction,omitempty"`
	Network     Network `json:"network,omitempty"`
}

// SupportedKind is one (scheme, network) pair the facilitator accepts.
type SupportedKind struct {
	X402Version int     `json:"x402Version"`
	Scheme      Scheme  `json:"scheme"`
	Network     Network `json:"network"`
}

// Validate checks structural invariants that JSON decoding cannot express.
// Signature recovery, timing, and funds are the engine's job; this only
// rejects payloads that are not well-formed enough to reason about.
func (p *PaymentPayload) Validate() error {
	auth := &p.Payload.Authorization
	if auth.Value == nil || auth.ValidAfter == nil || auth.ValidBefore == nil {
		return fmt.Errorf("authorization value, validAfter and validBefore are required")
	}
	if !auth.Value.Fits() || !auth.ValidAfter.Fits() || !auth.ValidBefore.Fits() {
		return fmt.Errorf("authorization numeric field exceeds uint256")
	}
	if len(p.Payload.Signature) != 65 {
		return fmt.Errorf("signature must be 65 bytes, got %d", len(p.Payload.Signature))
	}
	return nil
}

// Validate checks the requirements half of a request.
func (r *PaymentRequirements) Validate() error {
	if r.Scheme == "" {
		return fmt.Errorf("paymentRequirements.scheme is required")
	}
	if r.Network == "" {
		return fmt.Errorf("paymentRequirements.network is required")
	}
	if r.MaxAmountRequired == nil {
		return fmt.Errorf("paymentRequirements.maxAmountRequired is required")
	}
	if r.PayTo == (common.Address{}) {
		return fmt.Errorf("paymentRequirements.payTo is required")
	}
	if r.Asset == (common.Address{}) {
		return fmt.Errorf("paymentRequirements.asset is required")
	}
	return nil
}

// Validate checks a full verify/settle request.
func (v *VerifyRequest) Validate() error {
	if v.X402Version != 1 {
		return fmt.Errorf("unsupported x402Version %d", v.X402Version)
	}
	if err := v.PaymentPayload.Validate(); err != nil {
		return err
	}
	return v.PaymentRequirements.Validate()
}
