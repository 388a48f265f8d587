package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"footprintd/internal/ipc"
)

// Server wires the Store to an ipc.Server, implementing the state, gap,
// and queue request families over that transport.
type Server struct {
	store  *Store
	ipc    *ipc.Server
	poller *Poller
	logger *zap.Logger
}

// NewServer builds and registers all three handler families on ipcSrv.
func NewServer(store *Store, ipcSrv *ipc.Server, router QueueRouter, pollInterval, retention time.Duration, zlog *zap.Logger) *Server {
	s := &Server{
		store:  store,
		ipc:    ipcSrv,
		logger: zlog.Named("persistence-server"),
	}
	s.poller = NewPoller(store, router, 100, pollInterval, retention, zlog)
	ipcSrv.Handle(ipc.TypeState, s.handleState)
	ipcSrv.Handle(ipc.TypeGap, s.handleGap)
	ipcSrv.Handle(ipc.TypeQueue, s.handleQueue)
	return s
}

// RunPoller blocks draining the fallback queue until ctx is cancelled;
// the caller runs this in its own goroutine.
func (s *Server) RunPoller(ctx context.Context) {
	s.poller.Run(ctx)
}

type statePayload struct {
	Action    string     `json:"action"`
	Exchange  string     `json:"exchange"`
	Symbol    string     `json:"symbol"`
	StateJSON string     `json:"stateJson,omitempty"`
	States    []stateKV  `json:"states,omitempty"`
	Symbols   []string   `json:"symbols,omitempty"`
}

type stateKV struct {
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol"`
	StateJSON string `json:"stateJson"`
}

func (s *Server) handleState(raw json.RawMessage) (interface{}, error) {
	var p statePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("state: bad payload: %w", err)
	}
	switch p.Action {
	case "save":
		if err := s.store.SaveState(p.Exchange, p.Symbol, p.StateJSON); err != nil {
			return nil, fmt.Errorf("state save: %w", err)
		}
		return nil, nil

	case "save_batch":
		rows := make([]StateRow, 0, len(p.States))
		for _, kv := range p.States {
			rows = append(rows, StateRow{Exchange: kv.Exchange, Symbol: kv.Symbol, StateJSON: kv.StateJSON})
		}
		if err := s.store.SaveStateBatch(rows); err != nil {
			return nil, fmt.Errorf("state save_batch: %w", err)
		}
		return nil, nil

	case "load":
		row, err := s.store.LoadState(p.Exchange, p.Symbol)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, nil
			}
			return nil, fmt.Errorf("state load: %w", err)
		}
		return row, nil

	case "load_batch":
		rows, err := s.store.LoadStateBatch(p.Exchange, p.Symbols)
		if err != nil {
			return nil, fmt.Errorf("state load_batch: %w", err)
		}
		return rows, nil

	case "load_all":
		rows, err := s.store.LoadAllState()
		if err != nil {
			return nil, fmt.Errorf("state load_all: %w", err)
		}
		return rows, nil

	default:
		return nil, fmt.Errorf("state: unknown action %q", p.Action)
	}
}

type gapPayload struct {
	Action     string   `json:"action"`
	Gap        *GapRow  `json:"gap,omitempty"`
	Gaps       []GapRow `json:"gaps,omitempty"`
	Exchange   string   `json:"exchange,omitempty"`
	Symbol     string   `json:"symbol,omitempty"`
	SyncedOnly bool     `json:"syncedOnly,omitempty"`
	IDs        []int64  `json:"ids,omitempty"`
}

func (s *Server) handleGap(raw json.RawMessage) (interface{}, error) {
	var p gapPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("gap: bad payload: %w", err)
	}
	switch p.Action {
	case "gap_save":
		if p.Gap == nil {
			return nil, fmt.Errorf("gap_save: missing gap")
		}
		if err := s.store.SaveGap(*p.Gap); err != nil {
			return nil, fmt.Errorf("gap_save: %w", err)
		}
		return nil, nil

	case "gap_save_batch":
		if err := s.store.SaveGapBatch(p.Gaps); err != nil {
			return nil, fmt.Errorf("gap_save_batch: %w", err)
		}
		return nil, nil

	case "gap_load":
		rows, err := s.store.LoadGaps(GapFilter{Exchange: p.Exchange, Symbol: p.Symbol, SyncedOnly: p.SyncedOnly})
		if err != nil {
			return nil, fmt.Errorf("gap_load: %w", err)
		}
		return rows, nil

	case "gap_mark_synced":
		n, err := s.store.MarkGapsSynced(p.IDs)
		if err != nil {
			return nil, fmt.Errorf("gap_mark_synced: %w", err)
		}
		return map[string]int64{"updated": n}, nil

	default:
		return nil, fmt.Errorf("gap: unknown action %q", p.Action)
	}
}

type queuePayload struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleQueue(raw json.RawMessage) (interface{}, error) {
	var p queuePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("queue: bad payload: %w", err)
	}
	if err := s.store.Enqueue(p.Type, string(p.Payload)); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	return nil, nil
}
