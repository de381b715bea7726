package twitchmon_test

import (
	"testing"
	"time"

	twitchmon "github.com/tingyu08/Twitch-monitoring-and-statistics-system-sub003"
)

func TestNormalizedFillsUnsetFields(t *testing.T) {
	cfg := twitchmon.Config{Distributed: true, MaxChannels: 10}.Normalized()
	def := twitchmon.DefaultConfig()

	if cfg.HeartbeatInterval != def.HeartbeatInterval {
		t.Errorf("HeartbeatInterval = %v, want default %v", cfg.HeartbeatInterval, def.HeartbeatInterval)
	}
	if cfg.StaleThreshold != def.StaleThreshold {
		t.Errorf("StaleThreshold = %v, want default %v", cfg.StaleThreshold, def.StaleThreshold)
	}
	if cfg.CleanupEvery != def.CleanupEvery {
		t.Errorf("CleanupEvery = %d, want default %d", cfg.CleanupEvery, def.CleanupEvery)
	}
	if cfg.MaxChannels != 10 {
		t.Errorf("MaxChannels = %d, want the explicit 10", cfg.MaxChannels)
	}
	if !cfg.Distributed {
		t.Error("Normalized must not flip Distributed")
	}
}

func TestNormalizedKeepsExplicitValues(t *testing.T) {
	in := twitchmon.Config{
		HeartbeatInterval: 3 * time.Second,
		StaleThreshold:    9 * time.Second,
		MaxChannels:       5,
		CleanupEvery:      7,
	}
	if got := in.Normalized(); got != in {
		t.Errorf("Normalized changed a fully set config: %+v -> %+v", in, got)
	}
}

func TestEffectiveHealthTimeout(t *testing.T) {
	cfg := twitchmon.DefaultConfig()
	if got := cfg.EffectiveHealthTimeout(); got != 2*cfg.HeartbeatInterval {
		t.Errorf("unset HealthTimeout should derive 2x heartbeat, got %v", got)
	}
	cfg.HealthTimeout = time.Minute
	if got := cfg.EffectiveHealthTimeout(); got != time.Minute {
		t.Errorf("explicit HealthTimeout should win, got %v", got)
	}
}
