package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SpreadStatistics is the derived state of the spread history buffer.
type SpreadStatistics struct {
	// Mean is the rolling mean of the buffered spread samples.
	Mean float64 `yaml:"mean" json:"mean"`
	// Stdev is the rolling standard deviation of the buffered samples.
	Stdev float64 `yaml:"stdev" json:"stdev"`
	// SampleCount is the number of samples currently buffered.
	SampleCount int `yaml:"sample_count" json:"sample_count"`
	// Ready is true once the buffer has filled to capacity. The strategy
	// must not emit OPEN signals while not ready.
	Ready bool `yaml:"ready" json:"ready"`
}

// CycleStatus is the per-cycle observable record consumed by an external
// console or telemetry layer. Formatting is out of scope here; the engine
// only makes the fields available.
type CycleStatus struct {
	// Iteration is the cycle counter, starting at 1.
	Iteration int64 `yaml:"iteration" json:"iteration"`

	// Time is when this cycle completed.
	Time time.Time `yaml:"time" json:"time"`

	// PositionA and PositionB are the signed holdings per instrument.
	PositionA float64 `yaml:"position_a" json:"position_a"`
	PositionB float64 `yaml:"position_b" json:"position_b"`

	// Delta is the net directional exposure across the pair.
	Delta float64 `yaml:"delta" json:"delta"`

	// Spread is the last observed spread sample, zero until one exists.
	Spread float64 `yaml:"spread" json:"spread"`

	// Mean and Stdev mirror the current spread statistics.
	Mean  float64 `yaml:"mean" json:"mean"`
	Stdev float64 `yaml:"stdev" json:"stdev"`

	// StatsReady reports whether the history buffer is full.
	StatsReady bool `yaml:"stats_ready" json:"stats_ready"`

	// PositionState is the pair-level position state.
	PositionState PositionState `yaml:"position_state" json:"position_state"`

	// RealizedPnL is the cumulative realized profit and loss.
	RealizedPnL float64 `yaml:"realized_pnl" json:"realized_pnl"`

	// Cash is the available cash balance.
	Cash float64 `yaml:"cash" json:"cash"`

	// TradeCount is the number of pair trades completed so far.
	TradeCount int `yaml:"trade_count" json:"trade_count"`

	// Frozen reports whether OPEN signals are disabled pending manual
	// reconciliation after a partial fill.
	Frozen bool `yaml:"frozen" json:"frozen"`
}

// WriteCycleStatus writes a cycle status record to a YAML file.
func WriteCycleStatus(path string, status CycleStatus) error {
	data, err := yaml.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle status to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cycle status to file: %w", err)
	}

	return nil
}

// ReadCycleStatus reads a cycle status record from a YAML file.
func ReadCycleStatus(path string) (CycleStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CycleStatus{}, fmt.Errorf("failed to read cycle status file: %w", err)
	}

	var status CycleStatus
	if err := yaml.Unmarshal(data, &status); err != nil {
		return CycleStatus{}, fmt.Errorf("failed to unmarshal cycle status: %w", err)
	}

	return status, nil
}
