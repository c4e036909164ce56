// Package engine defines the trading engine contract and its lifecycle
// callbacks.
package engine

import (
	"context"

	"github.com/meanrev-lab/pairtrader/internal/config"
	"github.com/meanrev-lab/pairtrader/internal/guardrail"
	"github.com/meanrev-lab/pairtrader/internal/ledger"
	"github.com/meanrev-lab/pairtrader/internal/market"
	"github.com/meanrev-lab/pairtrader/internal/types"
)

// Lifecycle callback types for engine phases.
// Callbacks with an error return can abort the run by returning an error.

// OnEngineStartCallback is called after reconciliation succeeds, with the
// reconcile outcome the engine adopted.
type OnEngineStartCallback func(outcome types.ReconcileOutcome) error

// OnEngineStopCallback is called when the engine stops (always called via defer).
type OnEngineStopCallback func(err error)

// OnCycleCallback is called at the end of every polling cycle with the
// cycle's observable snapshot.
type OnCycleCallback func(status types.CycleStatus) error

// OnSignalCallback is called when the strategy emits an actionable signal.
type OnSignalCallback func(signal types.Signal) error

// OnRejectionCallback is called when the guard rail vetoes a signal.
type OnRejectionCallback func(signal types.Signal, rejection *guardrail.Rejection)

// OnTradeCallback is called after an execution outcome has been applied.
type OnTradeCallback func(outcome types.ExecutionOutcome) error

// OnPartialFillCallback is called when a paired order fills on exactly one
// leg, before the partial-fill policy runs.
type OnPartialFillCallback func(outcome types.ExecutionOutcome)

// OnErrorCallback is called when a non-fatal error occurs.
type OnErrorCallback func(err error)

// Callbacks holds all lifecycle callback functions for the engine.
// All fields are pointers; nil means no callback will be invoked.
type Callbacks struct {
	// OnEngineStart is called after startup reconciliation succeeds.
	OnEngineStart *OnEngineStartCallback

	// OnEngineStop is called when the engine stops (always called via defer).
	OnEngineStop *OnEngineStopCallback

	// OnCycle is called at the end of every polling cycle.
	OnCycle *OnCycleCallback

	// OnSignal is called when the strategy emits an actionable signal.
	OnSignal *OnSignalCallback

	// OnRejection is called when the guard rail vetoes a signal.
	OnRejection *OnRejectionCallback

	// OnTrade is called after an execution outcome has been applied.
	OnTrade *OnTradeCallback

	// OnPartialFill is called when a paired order fills on exactly one leg.
	OnPartialFill *OnPartialFillCallback

	// OnError is called when a non-fatal error occurs.
	OnError *OnErrorCallback
}

// TradingEngine runs the pairs-trading decision loop against an exchange.
type TradingEngine interface {
	// Initialize sets up the engine with the given configuration.
	Initialize(config config.Config) error

	// SetExchange configures the exchange the engine trades against.
	SetExchange(exchange market.Exchange) error

	// SetUnbalancedDecision injects the decision applied when startup
	// reconciliation finds unbalanced holdings. Defaults to abort.
	SetUnbalancedDecision(decide ledger.DecisionFunc) error

	// Run starts the polling loop. Blocks until the context is cancelled
	// or a fatal error occurs.
	Run(ctx context.Context, callbacks Callbacks) error

	// GetConfigSchema returns the JSON schema for the engine configuration.
	GetConfigSchema() (string, error)
}
