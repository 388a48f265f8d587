package persistence

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadStateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveState("binance", "BTCUSDT", `{"tickValue":0.01}`); err != nil {
		t.Fatalf("save: %v", err)
	}
	row, err := s.LoadState("binance", "BTCUSDT")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if row.StateJSON != `{"tickValue":0.01}` {
		t.Fatalf("unexpected state json: %s", row.StateJSON)
	}
}

func TestSaveStateBatchThenLoadBatch(t *testing.T) {
	s := newTestStore(t)
	rows := []StateRow{
		{Exchange: "binance", Symbol: "BTCUSDT", StateJSON: "a"},
		{Exchange: "binance", Symbol: "ETHUSDT", StateJSON: "b"},
	}
	if err := s.SaveStateBatch(rows); err != nil {
		t.Fatalf("save_batch: %v", err)
	}
	loaded, err := s.LoadStateBatch("binance", []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("load_batch: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(loaded))
	}
}

func TestGapSaveLoadAndMarkSynced(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveGap(GapRow{Exchange: "binance", Symbol: "BTCUSDT", FromTradeID: 101, ToTradeID: 104, GapSize: 4, DetectedAt: time.Now().UnixMilli()}); err != nil {
		t.Fatalf("save gap: %v", err)
	}
	rows, err := s.LoadGaps(GapFilter{Exchange: "binance", Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("load gaps: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 gap row, got %d", len(rows))
	}
	n, err := s.MarkGapsSynced([]int64{rows[0].ID, 999999})
	if err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly 1 row affected (unknown id ignored), got %d", n)
	}
}

func TestQueueEnqueuePollMarkProcessedAndPrune(t *testing.T) {
	s := newTestStore(t)
	if err := s.Enqueue("gap_backfill", `{"symbol":"BTCUSDT"}`); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	rows, err := s.PollUnprocessed(10)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 unprocessed row, got %d", len(rows))
	}
	if err := s.MarkProcessed([]int64{rows[0].ID}); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	again, err := s.PollUnprocessed(10)
	if err != nil {
		t.Fatalf("poll after mark: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no unprocessed rows left, got %d", len(again))
	}
	if _, err := s.PruneProcessed(0); err != nil {
		t.Fatalf("prune: %v", err)
	}
}
