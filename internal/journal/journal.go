// Package journal persists settlement outcomes to a Redis stream so the final
// result of every broadcast transfer survives the original caller — including
// callers that disconnected mid-settlement.
package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ultravioletadao/x402-facilitator/internal/facilitator"
)

// StreamKey is the Redis stream settlement records are appended to.
const StreamKey = "x402:settlements"

// MaxLen bounds the stream; older entries are trimmed approximately.
const MaxLen = 10_000

// Journal implements facilitator.Recorder on top of a Redis stream.
type Journal struct {
	rdb *redis.Client
	log *zap.Logger
}

func New(rdb *redis.Client, log *zap.Logger) *Journal {
	return &Journal{rdb: rdb, log: log}
}

// Record appends one settlement outcome to the stream.
func (j *Journal) Record(ctx context.Context, rec facilitator.SettlementRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal settlement record: %w", err)
	}
	err = j.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"record":  string(raw),
			"network": string(rec.Network),
			"success": rec.Success,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd settlement record: %w", err)
	}
	j.log.Info("settlement journaled",
		zap.String("txHash", rec.TxHash),
		zap.String("network", string(rec.Network)),
		zap.Bool("success", rec.Success),
	)
	return nil
}

// Recent returns up to n of the newest settlement records, newest first.
func (j *Journal) Recent(ctx context.Context, n int64) ([]facilitator.SettlementRecord, error) {
	msgs, err := j.rdb.XRevRangeN(ctx, StreamKey, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange settlements: %w", err)
	}
	out := make([]facilitator.SettlementRecord, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["record"].(string)
		if !ok {
			continue
		}
		var rec facilitator.SettlementRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			j.log.Warn("skip malformed journal entry", zap.String("id", m.ID), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
