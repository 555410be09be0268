// Package facilitator is the verification and settlement decision engine: it
// takes a (PaymentPayload, PaymentRequirements) pair and either admits it
// (Verify) or executes it on-chain and reports the definitive outcome
// (Settle). The engine is stateless across requests; the chain is the only
// durable state.
package facilitator

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ultravioletadao/x402-facilitator/internal/chain"
	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

// ChainBackend is the provider capability the engine consumes. Satisfied by
// *chain.Provider; engine tests substitute a mock.
type ChainBackend interface {
	Network() payment.Network
	SignerAddress() common.Address
	BalanceOf(ctx context.Context, asset, account common.Address) (*big.Int, error)
	SubmitTransfer(ctx context.Context, asset common.Address, auth *payment.Authorization, sig []byte) (*types.Transaction, error)
	AwaitReceipt(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// HealthSource exposes the out-of-band provider health snapshot.
// Satisfied by *chain.Registry.
type HealthSource interface {
	Snapshot() map[payment.Network]chain.Health
}

// SettlementRecord is the journal entry written for every settlement attempt
// that reached the chain.
type SettlementRecord struct {
	Network     payment.Network `json:"network"`
	Payer       string          `json:"payer"`
	Recipient   string          `json:"recipient"`
	Asset       string          `json:"asset"`
	Value       string          `json:"value"`
	TxHash      string          `json:"txHash"`
	Success     bool            `json:"success"`
	ErrorReason string          `json:"errorReason,omitempty"`
	SettledAt   time.Time       `json:"settledAt"`
}

// Recorder persists settlement outcomes for observability. Implemented by
// journal.Journal; a nil Recorder disables recording.
type Recorder interface {
	Record(ctx context.Context, rec SettlementRecord) error
}

// Config carries the engine's read-only configuration. The engine holds no
// per-request state, so one instance serves all concurrent callers.
type Config struct {
	Providers []ChainBackend
	Health    HealthSource
	Journal   Recorder                     // optional
	Clock     func() time.Time             // defaults to time.Now
	ClockSkew time.Duration                // tolerance on validAfter
	ValueCaps map[payment.Network]*big.Int // optional per-network settle limit
	Log       *zap.Logger
}

type Engine struct {
	providers map[payment.Network]ChainBackend
	kinds     []payment.SupportedKind
	health    HealthSource
	journal   Recorder
	clock     func() time.Time
	skew      time.Duration
	caps      map[payment.Network]*big.Int
	log       *zap.Logger
}

func NewEngine(cfg Config) *Engine {
	providers := make(map[payment.Network]ChainBackend, len(cfg.Providers))
	kinds := make([]payment.SupportedKind, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		providers[p.Network()] = p
		kinds = append(kinds, payment.SupportedKind{
			X402Version: 1,
			Scheme:      payment.SchemeExact,
			Network:     p.Network(),
		})
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Network < kinds[j].Network })

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		providers: providers,
		kinds:     kinds,
		health:    cfg.Health,
		journal:   cfg.Journal,
		clock:     clock,
		skew:      cfg.ClockSkew,
		caps:      cfg.ValueCaps,
		log:       log,
	}
}

// Kinds returns the statically known (scheme, network) support matrix.
func (e *Engine) Kinds() []payment.SupportedKind {
	return e.kinds
}

// Health returns the last-known per-provider liveness snapshot. It never
// probes on the request path.
func (e *Engine) Health() map[payment.Network]chain.Health {
	if e.health == nil {
		return map[payment.Network]chain.Health{}
	}
	return e.health.Snapshot()
}

// Verify runs the full admission pipeline: requirement match, timing,
// signature recovery, then the on-chain balance read. It never mutates chain
// state. Business-rule rejections come back inside the response; only
// infrastructure faults are returned as errors.
func (e *Engine) Verify(ctx context.Context, req *payment.VerifyRequest) (*payment.VerifyResponse, error) {
	if ferr := e.check(ctx, req); ferr != nil {
		if ferr.Business() {
			return &payment.VerifyResponse{
				IsValid:       false,
				InvalidReason: ferr.Reason(),
				Payer:         ferr.PayerHex(),
			}, nil
		}
		return nil, ferr
	}
	return &payment.VerifyResponse{
		IsValid: true,
		Payer:   req.PaymentPayload.Payload.Authorization.From.Hex(),
	}, nil
}

// Settle re-runs every verification check (a settle call never trusts a
// prior verify from a different request), then broadcasts the transfer and
// awaits inclusion. Once broadcast, the transaction proceeds on-chain
// regardless of caller cancellation; the final outcome is journaled either
// way.
func (e *Engine) Settle(ctx context.Context, req *payment.SettleRequest) (*payment.SettleResponse, error) {
	auth := &req.PaymentPayload.Payload.Authorization
	network := req.PaymentRequirements.Network

	if ferr := e.check(ctx, req); ferr != nil {
		if ferr.Business() {
			return &payment.SettleResponse{
				Success:     false,
				ErrorReason: ferr.Reason(),
				Payer:       ferr.PayerHex(),
				Network:     network,
			}, nil
		}
		return nil, ferr
	}

	if limit, ok := e.caps[network]; ok && auth.Value.Cmp(limit) > 0 {
		ferr := reject(KindValueAboveCap, auth.From)
		return &payment.SettleResponse{
			Success:     false,
			ErrorReason: ferr.Reason(),
			Payer:       ferr.PayerHex(),
			Network:     network,
		}, nil
	}

	provider := e.providers[network]
	tx, err := provider.SubmitTransfer(ctx, req.PaymentRequirements.Asset, auth, req.PaymentPayload.Payload.Signature)
	if err != nil {
		return nil, contractCall(err)
	}

	receipt, err := provider.AwaitReceipt(ctx, tx)
	if err != nil {
		// A failed wait is not a failed transaction: it is already
		// on-chain, whether the caller disconnected or the confirmation
		// timeout fired. Track it to completion for the journal.
		go e.recordDetached(provider, tx, req)
		return nil, contractCall(err)
	}

	resp := e.classify(receipt, tx, req)
	e.record(context.WithoutCancel(ctx), resp, req)
	return resp, nil
}

// classify turns a mined receipt into the settlement outcome: a non-reverted
// receipt is success, a reverted one is a structured failure.
func (e *Engine) classify(receipt *types.Receipt, tx *types.Transaction, req *payment.SettleRequest) *payment.SettleResponse {
	resp := &payment.SettleResponse{
		Payer:   req.PaymentPayload.Payload.Authorization.From.Hex(),
		TxHash:  tx.Hash().Hex(),
		Network: req.PaymentRequirements.Network,
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		resp.Success = true
	} else {
		resp.ErrorReason = "transaction_reverted"
	}
	return resp
}

func (e *Engine) record(ctx context.Context, resp *payment.SettleResponse, req *payment.SettleRequest) {
	if e.journal == nil {
		return
	}
	auth := &req.PaymentPayload.Payload.Authorization
	rec := SettlementRecord{
		Network:     req.PaymentRequirements.Network,
		Payer:       auth.From.Hex(),
		Recipient:   auth.To.Hex(),
		Asset:       req.PaymentRequirements.Asset.Hex(),
		Value:       auth.Value.Text(10),
		TxHash:      resp.TxHash,
		Success:     resp.Success,
		ErrorReason: resp.ErrorReason,
		SettledAt:   e.clock(),
	}
	if err := e.journal.Record(ctx, rec); err != nil {
		e.log.Error("journal settlement record",
			zap.String("txHash", rec.TxHash),
			zap.Error(err),
		)
	}
}

// recordDetached follows an already-broadcast transaction after the original
// caller disconnected, so the final outcome still reaches the journal.
func (e *Engine) recordDetached(provider ChainBackend, tx *types.Transaction, req *payment.SettleRequest) {
	ctx := context.Background()
	receipt, err := provider.AwaitReceipt(ctx, tx)
	if err != nil {
		e.log.Warn("detached confirmation wait failed",
			zap.String("txHash", tx.Hash().Hex()),
			zap.Error(err),
		)
		return
	}
	resp := e.classify(receipt, tx, req)
	e.record(ctx, resp, req)
	e.log.Info("settlement confirmed after caller disconnect",
		zap.String("txHash", resp.TxHash),
		zap.Bool("success", resp.Success),
	)
}
