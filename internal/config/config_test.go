package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
pool:
  workerCount: 4
ipc:
  socketPath: /tmp/footprintd.sock
`)
	cfg, err := NewConfigLoader().LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Pool.ReadyTimeoutMs != 10000 {
		t.Fatalf("expected default readyTimeoutMs 10000, got %d", cfg.Pool.ReadyTimeoutMs)
	}
	if cfg.GapWriter.MaxQueueSize != 1000 {
		t.Fatalf("expected default maxQueueSize 1000, got %d", cfg.GapWriter.MaxQueueSize)
	}
	if cfg.Redis.Host != "localhost" || cfg.Redis.Port != 6379 {
		t.Fatalf("expected default redis address, got %s:%d", cfg.Redis.Host, cfg.Redis.Port)
	}
}

func TestLoadConfigRejectsInvalidWorkerCount(t *testing.T) {
	path := writeTempConfig(t, `
pool:
  workerCount: 0
ipc:
  socketPath: /tmp/footprintd.sock
`)
	if _, err := NewConfigLoader().LoadConfig(path); err == nil {
		t.Fatal("expected validation error for workerCount 0")
	}
}

func TestGetSymbolConfig(t *testing.T) {
	c := &Config{Symbols: []SymbolConfig{{Exchange: "binance", Symbol: "BTCUSDT", TickValue: 0.01, BinMultiplier: 1}}}
	sc, ok := c.GetSymbolConfig("binance", "BTCUSDT")
	if !ok || sc.TickValue != 0.01 {
		t.Fatalf("expected to find symbol config, got %+v ok=%v", sc, ok)
	}
	if _, ok := c.GetSymbolConfig("binance", "ETHUSDT"); ok {
		t.Fatal("expected not found for unknown symbol")
	}
}
