package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"footprintd/internal/events"
	"footprintd/internal/ipc"
	"footprintd/internal/worker"
)

// RemoteClient is the IPC-backed implementation of worker.StateClient and
// gapwriter.BatchSaver, run from the worker-pool process and talking to
// the persistence server over its Unix-domain socket.
type RemoteClient struct {
	ipc    *ipc.Client
	logger *zap.Logger
}

// NewRemoteClient wraps an already-connected ipc.Client.
func NewRemoteClient(c *ipc.Client, logger *zap.Logger) *RemoteClient {
	return &RemoteClient{ipc: c, logger: logger.Named("persistence-client")}
}

// LoadState implements worker.StateClient.
func (r *RemoteClient) LoadState(ctx context.Context, exchange, symbol string) (string, bool, error) {
	resp, err := r.ipc.SendRequest(ctx, ipc.TypeState, statePayload{Action: "load", Exchange: exchange, Symbol: symbol}, 0)
	if err != nil {
		return "", false, err
	}
	if !resp.Success {
		return "", false, fmt.Errorf("persistence: state load failed: %s", resp.Error)
	}
	if resp.Data == nil {
		return "", false, nil
	}
	var row StateRow
	if err := decodeInto(resp.Data, &row); err != nil {
		return "", false, fmt.Errorf("persistence: decode state row: %w", err)
	}
	return row.StateJSON, true, nil
}

// SaveStateBatch implements worker.StateClient.
func (r *RemoteClient) SaveStateBatch(ctx context.Context, states []worker.StatePair) error {
	if len(states) == 0 {
		return nil
	}
	kvs := make([]stateKV, 0, len(states))
	for _, s := range states {
		kvs = append(kvs, stateKV{Exchange: s.Exchange, Symbol: s.Symbol, StateJSON: s.StateJSON})
	}
	resp, err := r.ipc.SendRequest(ctx, ipc.TypeState, statePayload{Action: "save_batch", States: kvs}, 0)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("persistence: save_batch failed: %s", resp.Error)
	}
	return nil
}

// SaveGapBatch implements gapwriter.BatchSaver.
func (r *RemoteClient) SaveGapBatch(ctx context.Context, batch []events.GapRecord) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]GapRow, 0, len(batch))
	for _, g := range batch {
		rows = append(rows, GapRow{
			Exchange:    g.Exchange,
			Symbol:      g.Symbol,
			FromTradeID: g.FromTradeID,
			ToTradeID:   g.ToTradeID,
			GapSize:     g.GapSize,
			DetectedAt:  g.DetectedAt,
			Synced:      g.Synced,
		})
	}
	resp, err := r.ipc.SendRequest(ctx, ipc.TypeGap, gapPayload{Action: "gap_save_batch", Gaps: rows}, 0)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("persistence: gap_save_batch failed: %s", resp.Error)
	}
	return nil
}

func decodeInto(data interface{}, dst interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
