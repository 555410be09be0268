package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ultravioletadao/x402-facilitator/internal/facilitator"
	"github.com/ultravioletadao/x402-facilitator/internal/payment"
)

func newTestJournal(t *testing.T) (*Journal, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, zap.NewNop()), rdb
}

func testRecord(i int, success bool) facilitator.SettlementRecord {
	return facilitator.SettlementRecord{
		Network:   payment.NetworkBaseSepolia,
		Payer:     "0x1111111111111111111111111111111111111111",
		Recipient: "0x2222222222222222222222222222222222222222",
		Asset:     "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Value:     "1000000",
		TxHash:    fmt.Sprintf("0x%064d", i),
		Success:   success,
		SettledAt: time.Unix(1_700_000_000+int64(i), 0).UTC(),
	}
}

func TestRecordAndRecent(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := j.Record(ctx, testRecord(i, i != 1)); err != nil {
			t.Fatalf("Record(%d): %v", i, err)
		}
	}

	got, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(Recent) = %d, want 3", len(got))
	}

	// Newest first.
	for i, rec := range got {
		want := testRecord(2-i, (2-i) != 1)
		if rec.TxHash != want.TxHash {
			t.Errorf("Recent[%d].TxHash = %s, want %s", i, rec.TxHash, want.TxHash)
		}
		if rec.Success != want.Success {
			t.Errorf("Recent[%d].Success = %v", i, rec.Success)
		}
		if rec.Network != want.Network || rec.Value != want.Value {
			t.Errorf("Recent[%d] = %+v", i, rec)
		}
	}
}

func TestRecentLimit(t *testing.T) {
	j, _ := newTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := j.Record(ctx, testRecord(i, true)); err != nil {
			t.Fatalf("Record(%d): %v", i, err)
		}
	}

	got, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Recent) = %d, want 2", len(got))
	}
	if got[0].TxHash != testRecord(4, true).TxHash {
		t.Errorf("Recent[0].TxHash = %s", got[0].TxHash)
	}
}

func TestRecentEmpty(t *testing.T) {
	j, _ := newTestJournal(t)
	got, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent on empty stream: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len(Recent) = %d, want 0", len(got))
	}
}

func TestRecentSkipsMalformed(t *testing.T) {
	j, rdb := newTestJournal(t)
	ctx := context.Background()

	if err := j.Record(ctx, testRecord(0, true)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	// An entry whose record field is not JSON must not poison the scan.
	err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		Values: map[string]interface{}{"record": "{not json"},
	}).Err()
	if err != nil {
		t.Fatalf("XAdd: %v", err)
	}

	got, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(Recent) = %d, want 1", len(got))
	}
	if got[0].TxHash != testRecord(0, true).TxHash {
		t.Errorf("Recent[0].TxHash = %s", got[0].TxHash)
	}
}
