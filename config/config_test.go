package config

import "testing"

func TestDefaultIsUsable(t *testing.T) {
	cfg := Default()
	if cfg.StoreRoot == "" {
		t.Errorf("StoreRoot must not be empty")
	}
	if cfg.HTTPAddr == "" {
		t.Errorf("HTTPAddr must not be empty")
	}
	if cfg.ShardWidth != 2 {
		t.Errorf("ShardWidth = %d, want 2", cfg.ShardWidth)
	}
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("JOURNAL_STORE_ROOT", "/tmp/custom-store")
	t.Setenv("JOURNAL_SHARD_WIDTH", "4")
	t.Setenv("JOURNAL_HTTP_ADDR", "0.0.0.0:9999")

	cfg := Load()
	if cfg.StoreRoot != "/tmp/custom-store" {
		t.Errorf("StoreRoot = %q, want /tmp/custom-store", cfg.StoreRoot)
	}
	if cfg.ShardWidth != 4 {
		t.Errorf("ShardWidth = %d, want 4", cfg.ShardWidth)
	}
	if cfg.HTTPAddr != "0.0.0.0:9999" {
		t.Errorf("HTTPAddr = %q, want 0.0.0.0:9999", cfg.HTTPAddr)
	}
}

func TestLoadIgnoresInvalidShardWidth(t *testing.T) {
	t.Setenv("JOURNAL_SHARD_WIDTH", "not-a-number")
	cfg := Load()
	if cfg.ShardWidth != Default().ShardWidth {
		t.Errorf("invalid shard width should fall back to default, got %d", cfg.ShardWidth)
	}
}
