package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/meanrev-lab/pairtrader/internal/version"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
	"github.com/meanrev-lab/pairtrader/pkg/schema"
)

// Default configuration values.
const (
	DefaultEntryStdev        = 2.0
	DefaultExitStdev         = 0.2
	DefaultHistoryLength     = 100
	DefaultMinLiquidityRatio = 1.0
	DefaultMarginFactor      = 2.0
	DefaultCycleInterval     = 200 * time.Millisecond
)

// AnchorMode selects the center of the entry/exit bands.
type AnchorMode string

const (
	// AnchorEmpirical centers the bands on the rolling historical mean.
	AnchorEmpirical AnchorMode = "empirical"
	// AnchorParity centers the bands on the theoretical parity spread of 1.0.
	// Appropriate when the two listings are perfectly fungible.
	AnchorParity AnchorMode = "parity"
)

// StdevMode selects the standard deviation estimator.
type StdevMode string

const (
	StdevSample     StdevMode = "sample"
	StdevPopulation StdevMode = "population"
)

// PartialFillPolicy selects the automatic response to a partial fill.
type PartialFillPolicy string

const (
	// PartialFillCompensate submits an immediate reversing order on the
	// filled leg to restore delta neutrality.
	PartialFillCompensate PartialFillPolicy = "compensate"
	// PartialFillFreeze disables further OPEN signals until the ledger is
	// manually confirmed balanced.
	PartialFillFreeze PartialFillPolicy = "freeze"
)

// PairConfig names the two economically equivalent instruments.
type PairConfig struct {
	// SymbolA is the first instrument of the pair (the spread numerator).
	SymbolA string `yaml:"symbol_a" json:"symbol_a" validate:"required" jsonschema:"description=First instrument of the pair"`
	// SymbolB is the second instrument of the pair (the spread denominator).
	SymbolB string `yaml:"symbol_b" json:"symbol_b" validate:"required,nefield=SymbolA" jsonschema:"description=Second instrument of the pair"`
}

// StrategyConfig holds the spread statistics and signal thresholds.
type StrategyConfig struct {
	// EntryStdev is the entry sensitivity in standard deviations.
	EntryStdev float64 `yaml:"entry_stdev" json:"entry_stdev" validate:"gt=0" jsonschema:"description=Entry threshold in standard deviations,default=2.0"`
	// ExitStdev is the exit sensitivity in standard deviations. Must be
	// smaller than EntryStdev so the exit bands sit inside the entry bands.
	ExitStdev float64 `yaml:"exit_stdev" json:"exit_stdev" validate:"gt=0,ltfield=EntryStdev" jsonschema:"description=Exit threshold in standard deviations,default=0.2"`
	// HistoryLength is the spread sample buffer capacity.
	HistoryLength int `yaml:"history_length" json:"history_length" validate:"gt=1" jsonschema:"description=Number of spread samples for mean/stdev,default=100"`
	// AnchorMode centers the bands on the rolling mean or on parity 1.0.
	AnchorMode AnchorMode `yaml:"anchor_mode" json:"anchor_mode" validate:"oneof=empirical parity" jsonschema:"description=Band center mode,enum=empirical,enum=parity,default=empirical"`
	// StdevMode selects the sample or population estimator.
	StdevMode StdevMode `yaml:"stdev_mode" json:"stdev_mode" validate:"oneof=sample population" jsonschema:"description=Standard deviation estimator,enum=sample,enum=population,default=sample"`
}

// RiskConfig holds the guard-rail thresholds.
type RiskConfig struct {
	// MaxPositionSize is the per-leg volume requested by OPEN signals.
	MaxPositionSize float64 `yaml:"max_position_size" json:"max_position_size" validate:"gt=0" jsonschema:"description=Requested per-leg trade volume"`
	// MaxBidAskWidthA is the maximum acceptable bid-ask width for symbol A.
	MaxBidAskWidthA float64 `yaml:"max_bid_ask_width_a" json:"max_bid_ask_width_a" validate:"gt=0" jsonschema:"description=Maximum bid-ask width for symbol A"`
	// MaxBidAskWidthB is the maximum acceptable bid-ask width for symbol B.
	MaxBidAskWidthB float64 `yaml:"max_bid_ask_width_b" json:"max_bid_ask_width_b" validate:"gt=0" jsonschema:"description=Maximum bid-ask width for symbol B"`
	// MinLiquidityRatio scales the requested volume when checking leg
	// liquidity: available >= requested * ratio.
	MinLiquidityRatio float64 `yaml:"min_liquidity_ratio" json:"min_liquidity_ratio" validate:"gt=0,lte=1" jsonschema:"description=Required available/requested volume ratio,default=1.0"`
	// MarginFactor is the conservative margin requirement per unit of volume.
	MarginFactor float64 `yaml:"margin_factor" json:"margin_factor" validate:"gt=0" jsonschema:"description=Required margin per unit volume,default=2.0"`
	// FrontRunTolerance loosens the stale-signal re-check by this absolute
	// spread amount.
	FrontRunTolerance float64 `yaml:"front_run_tolerance" json:"front_run_tolerance" validate:"gte=0" jsonschema:"description=Tolerance for spread movement between signal and execution"`
	// DeltaTolerance is the maximum absolute pair delta considered neutral.
	DeltaTolerance float64 `yaml:"delta_tolerance" json:"delta_tolerance" validate:"gte=0" jsonschema:"description=Maximum absolute delta considered neutral"`
	// TradingDisabled is the global kill switch.
	TradingDisabled bool `yaml:"trading_disabled" json:"trading_disabled" jsonschema:"description=Global kill switch,default=false"`
	// PartialFillPolicy selects the automatic response to a partial fill.
	PartialFillPolicy PartialFillPolicy `yaml:"partial_fill_policy" json:"partial_fill_policy" validate:"oneof=compensate freeze" jsonschema:"description=Response to a partial fill,enum=compensate,enum=freeze,default=compensate"`
}

// EngineConfig holds the loop and reporting settings.
type EngineConfig struct {
	// CycleInterval is the sleep between polling cycles.
	CycleInterval time.Duration `yaml:"cycle_interval" json:"cycle_interval" validate:"gt=0" jsonschema:"description=Sleep between polling cycles"`
	// StatusAddr is the listen address for the HTTP status endpoint.
	// Empty disables the endpoint.
	StatusAddr string `yaml:"status_addr" json:"status_addr" jsonschema:"description=Listen address for the status HTTP endpoint"`
	// JournalPath is the DuckDB journal database path. Empty uses an
	// in-memory journal.
	JournalPath string `yaml:"journal_path" json:"journal_path" jsonschema:"description=DuckDB journal path (empty for in-memory)"`
	// StatusPath is an optional YAML file updated with the latest cycle
	// status record.
	StatusPath string `yaml:"status_path" json:"status_path" jsonschema:"description=Optional YAML file for the latest cycle status"`
}

// Config is the full engine configuration. All components receive it (or a
// sub-struct) at construction; there is no mutable global configuration.
type Config struct {
	// Version pins the config file to an engine version line.
	Version  string         `yaml:"version" json:"version" validate:"required" jsonschema:"description=Engine version this config targets"`
	Pair     PairConfig     `yaml:"pair" json:"pair" validate:"required"`
	Strategy StrategyConfig `yaml:"strategy" json:"strategy" validate:"required"`
	Risk     RiskConfig     `yaml:"risk" json:"risk" validate:"required"`
	Engine   EngineConfig   `yaml:"engine" json:"engine" validate:"required"`
}

// ApplyDefaults fills unset numeric fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Strategy.EntryStdev == 0 {
		c.Strategy.EntryStdev = DefaultEntryStdev
	}

	if c.Strategy.ExitStdev == 0 {
		c.Strategy.ExitStdev = DefaultExitStdev
	}

	if c.Strategy.HistoryLength == 0 {
		c.Strategy.HistoryLength = DefaultHistoryLength
	}

	if c.Strategy.AnchorMode == "" {
		c.Strategy.AnchorMode = AnchorEmpirical
	}

	if c.Strategy.StdevMode == "" {
		c.Strategy.StdevMode = StdevSample
	}

	if c.Risk.MinLiquidityRatio == 0 {
		c.Risk.MinLiquidityRatio = DefaultMinLiquidityRatio
	}

	if c.Risk.MarginFactor == 0 {
		c.Risk.MarginFactor = DefaultMarginFactor
	}

	if c.Risk.PartialFillPolicy == "" {
		c.Risk.PartialFillPolicy = PartialFillCompensate
	}

	if c.Engine.CycleInterval == 0 {
		c.Engine.CycleInterval = DefaultCycleInterval
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	return nil
}

// Load reads, defaults, validates, and version-checks a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to read config file", err)
	}

	return Parse(data)
}

// Parse parses a YAML config document.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if err := version.CheckVersionCompatibility(version.Version, cfg.Version); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeVersionMismatch, "config version incompatible with engine", err)
	}

	return cfg, nil
}

// GetConfigSchema returns the JSON schema for Config.
func GetConfigSchema() (string, error) {
	return schema.ToJSONSchema(&Config{}) //nolint:exhaustruct // Empty config for schema generation
}
