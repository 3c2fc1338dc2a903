package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int     `yaml:"tick_rate_hz"`
	GravityY   float64 `yaml:"gravity_y"`
	FloorY     float64 `yaml:"floor_y"`

	HistoryTicks       int `yaml:"history_ticks"`
	InboxCapacity      int `yaml:"inbox_capacity"`
	MaxEntities        int `yaml:"max_entities"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`

	MaxSessions int `yaml:"max_sessions"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         30,
		GravityY:           -9.81,
		FloorY:             0,
		HistoryTicks:       128,
		InboxCapacity:      1024,
		MaxEntities:        4096,
		SnapshotEveryTicks: 600,
		MaxSessions:        64,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be positive, got %d", t.TickRateHz)
	}
	if t.HistoryTicks <= 0 {
		return fmt.Errorf("history_ticks must be positive, got %d", t.HistoryTicks)
	}
	if t.InboxCapacity <= 0 {
		return fmt.Errorf("inbox_capacity must be positive, got %d", t.InboxCapacity)
	}
	if t.MaxEntities <= 0 {
		return fmt.Errorf("max_entities must be positive, got %d", t.MaxEntities)
	}
	if t.SnapshotEveryTicks <= 0 {
		return fmt.Errorf("snapshot_every_ticks must be positive, got %d", t.SnapshotEveryTicks)
	}
	return nil
}
