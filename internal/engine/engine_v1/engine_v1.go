package engine_v1

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/meanrev-lab/pairtrader/internal/config"
	"github.com/meanrev-lab/pairtrader/internal/engine"
	"github.com/meanrev-lab/pairtrader/internal/executor"
	"github.com/meanrev-lab/pairtrader/internal/guardrail"
	"github.com/meanrev-lab/pairtrader/internal/journal"
	"github.com/meanrev-lab/pairtrader/internal/ledger"
	"github.com/meanrev-lab/pairtrader/internal/logger"
	"github.com/meanrev-lab/pairtrader/internal/market"
	"github.com/meanrev-lab/pairtrader/internal/spread"
	"github.com/meanrev-lab/pairtrader/internal/statusapi"
	"github.com/meanrev-lab/pairtrader/internal/strategy"
	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/pkg/errors"
)

// EngineV1 implements the TradingEngine interface as a single-goroutine
// polling loop: one quote fetch, one strategy evaluation and at most one
// paired trade per cycle.
type EngineV1 struct {
	cfg          config.Config
	exchange     market.Exchange
	tracker      *spread.Tracker
	signals      *strategy.SignalGenerator
	guard        *guardrail.GuardRail
	orders       *executor.PairedOrderExecutor
	book         *ledger.Ledger
	journal      *journal.Journal
	statusServer *statusapi.Server
	decide       ledger.DecisionFunc
	log          *logger.Logger
	iteration    int64
	initialized  bool
}

// NewEngineV1 creates an uninitialized engine.
func NewEngineV1() (engine.TradingEngine, error) {
	log, err := logger.NewLogger()
	if err != nil {
		return nil, err
	}

	return &EngineV1{
		cfg:          config.Config{},
		exchange:     nil,
		tracker:      nil,
		signals:      nil,
		guard:        nil,
		orders:       nil,
		book:         nil,
		journal:      nil,
		statusServer: nil,
		decide:       ledger.AbortOnUnbalanced,
		log:          log,
		iteration:    0,
		initialized:  false,
	}, nil
}

// Initialize implements engine.TradingEngine.
func (e *EngineV1) Initialize(cfg config.Config) error {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return err
	}

	journalPath := cfg.Engine.JournalPath
	if journalPath == "" {
		journalPath = ":memory:"
	}

	j, err := journal.New(journalPath, e.log)
	if err != nil {
		return err
	}

	e.cfg = cfg
	e.tracker = spread.NewTracker(cfg.Strategy.HistoryLength, cfg.Strategy.StdevMode)
	e.signals = strategy.NewSignalGenerator(cfg.Strategy, cfg.Risk.MaxPositionSize)
	e.guard = guardrail.New(cfg.Pair, cfg.Risk, e.log)
	e.book = ledger.New(cfg.Pair, cfg.Risk, e.log)
	e.journal = j
	e.statusServer = statusapi.NewServer(e.log)
	e.initialized = true

	e.log.Info("Engine initialized",
		zap.String("symbol_a", cfg.Pair.SymbolA),
		zap.String("symbol_b", cfg.Pair.SymbolB),
		zap.Duration("cycle_interval", cfg.Engine.CycleInterval),
	)

	return nil
}

// SetExchange implements engine.TradingEngine.
func (e *EngineV1) SetExchange(exchange market.Exchange) error {
	e.exchange = exchange
	e.log.Debug("Exchange set")

	return nil
}

// SetUnbalancedDecision implements engine.TradingEngine.
func (e *EngineV1) SetUnbalancedDecision(decide ledger.DecisionFunc) error {
	if decide == nil {
		return errors.New(errors.ErrCodeInvalidParameter, "decision function cannot be nil")
	}

	e.decide = decide

	return nil
}

// GetConfigSchema implements engine.TradingEngine.
func (e *EngineV1) GetConfigSchema() (string, error) {
	return config.GetConfigSchema()
}

func (e *EngineV1) preRunCheck() error {
	if !e.initialized {
		return errors.New(errors.ErrCodeEngineInitFailed, "engine is not initialized")
	}

	if e.exchange == nil {
		return errors.New(errors.ErrCodeEngineInitFailed, "exchange is not set")
	}

	if e.orders == nil {
		e.orders = executor.New(e.exchange, e.log)
	}

	return nil
}

// Run implements engine.TradingEngine.
func (e *EngineV1) Run(ctx context.Context, callbacks engine.Callbacks) error {
	var runErr error

	// Always leave a clean book behind, whatever ends the loop.
	defer func() {
		e.shutdown()

		if callbacks.OnEngineStop != nil {
			(*callbacks.OnEngineStop)(runErr)
		}
	}()

	if err := e.preRunCheck(); err != nil {
		runErr = err

		return runErr
	}

	outcome, err := e.book.Reconcile(ctx, e.exchange, e.decide)
	if err != nil {
		runErr = err

		return runErr
	}

	e.log.Info("Startup reconciliation complete",
		zap.String("outcome", string(outcome)),
		zap.String("state", string(e.book.State())),
	)

	if callbacks.OnEngineStart != nil {
		if err := (*callbacks.OnEngineStart)(outcome); err != nil {
			runErr = errors.Wrap(errors.ErrCodeCallbackFailed, "OnEngineStart callback failed", err)

			return runErr
		}
	}

	if e.cfg.Engine.StatusAddr != "" {
		if err := e.statusServer.Start(e.cfg.Engine.StatusAddr); err != nil {
			runErr = err

			return runErr
		}
	}

	ticker := time.NewTicker(e.cfg.Engine.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()

			return runErr
		case <-ticker.C:
			if err := e.cycle(ctx, callbacks); err != nil {
				runErr = err

				return runErr
			}
		}
	}
}

// cycle runs one iteration of the decision loop. A non-nil return is fatal
// and stops the engine; recoverable conditions are journaled and absorbed.
func (e *EngineV1) cycle(ctx context.Context, callbacks engine.Callbacks) error {
	e.iteration++

	quoteA, quoteB, err := e.fetchQuotes(ctx)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeProviderUnavailable) {
			return err
		}

		e.log.Warn("Skipping cycle on quote failure", zap.Error(err))
		e.notifyError(callbacks, err)

		return nil
	}

	stats := e.tracker.Update(quoteA, quoteB)
	lastSpread, hasSpread := e.tracker.LastSpread()

	// A one-sided book yields no fresh sample, and the retained spread is
	// stale against it. No signal is evaluated until both books recover.
	booksComplete := quoteA.IsComplete() && quoteB.IsComplete()
	if !booksComplete {
		e.log.Debug("Skipping signal evaluation on incomplete book",
			zap.Bool("a_complete", quoteA.IsComplete()),
			zap.Bool("b_complete", quoteB.IsComplete()),
		)
	}

	if hasSpread && booksComplete {
		signal := e.signals.Evaluate(lastSpread, stats, e.book.State())
		if signal.Type != types.SignalTypeNoAction {
			if err := e.act(ctx, callbacks, signal, quoteA, quoteB, stats); err != nil {
				return err
			}
		}
	}

	if err := e.book.CheckDelta(); err != nil {
		e.log.Error("Delta drift detected", zap.Error(err))
		e.book.Freeze("delta out of tolerance")
		e.notifyError(callbacks, err)
	}

	status := e.snapshot(lastSpread, stats)
	e.statusServer.Update(status)

	if err := e.journal.RecordCycle(status); err != nil {
		e.log.Warn("Failed to journal cycle", zap.Error(err))
	}

	if e.cfg.Engine.StatusPath != "" {
		if err := types.WriteCycleStatus(e.cfg.Engine.StatusPath, status); err != nil {
			e.log.Warn("Failed to write cycle status file", zap.Error(err))
		}
	}

	if callbacks.OnCycle != nil {
		if err := (*callbacks.OnCycle)(status); err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "OnCycle callback failed", err)
		}
	}

	return nil
}

// act pushes an actionable signal through the guard rail and, when it
// passes, executes and applies the paired trade.
func (e *EngineV1) act(
	ctx context.Context,
	callbacks engine.Callbacks,
	signal types.Signal,
	quoteA, quoteB types.Quote,
	stats types.SpreadStatistics,
) error {
	if callbacks.OnSignal != nil {
		if err := (*callbacks.OnSignal)(signal); err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "OnSignal callback failed", err)
		}
	}

	bands := e.signals.ResolveBands(stats)

	intent, err := e.guard.Validate(signal, quoteA, quoteB, bands, e.book)
	if err != nil {
		if rejection, ok := guardrail.AsRejection(err); ok {
			e.log.Debug("Signal rejected",
				zap.String("signal", string(signal.Type)),
				zap.String("tag", rejection.Tag()),
			)

			if jerr := e.journal.RecordRejection(signal, rejection.Tag(), rejection.Message); jerr != nil {
				e.log.Warn("Failed to journal rejection", zap.Error(jerr))
			}

			if callbacks.OnRejection != nil {
				(*callbacks.OnRejection)(signal, rejection)
			}

			return nil
		}

		e.notifyError(callbacks, err)

		return nil
	}

	outcome, err := e.orders.Execute(ctx, intent)
	if err != nil {
		// Execute only fails when the exchange transport is down.
		return err
	}

	if jerr := e.journal.RecordTrade(outcome); jerr != nil {
		e.log.Warn("Failed to journal trade", zap.Error(jerr))
	}

	switch outcome.Status {
	case types.OutcomeFilled:
		if err := e.book.Apply(outcome); err != nil {
			return err
		}

		if callbacks.OnTrade != nil {
			if err := (*callbacks.OnTrade)(outcome); err != nil {
				return errors.Wrap(errors.ErrCodeCallbackFailed, "OnTrade callback failed", err)
			}
		}

	case types.OutcomeUnfilled:
		// Missed opportunity. The next cycle re-evaluates from scratch.
		e.log.Info("Paired order missed on both legs",
			zap.String("signal", string(intent.Signal)),
		)

	case types.OutcomePartial:
		return e.handlePartialFill(ctx, callbacks, outcome)
	}

	return nil
}

// handlePartialFill resolves single-leg exposure under the configured
// policy. The exposure is never silently absorbed.
func (e *EngineV1) handlePartialFill(ctx context.Context, callbacks engine.Callbacks, outcome types.ExecutionOutcome) error {
	filled, _ := outcome.FilledLeg()

	e.log.Warn("Partial fill detected",
		zap.String("signal", string(outcome.Intent.Signal)),
		zap.String("filled_symbol", filled.Symbol),
		zap.String("policy", string(e.cfg.Risk.PartialFillPolicy)),
	)

	e.book.ApplyLegFill(filled)

	if callbacks.OnPartialFill != nil {
		(*callbacks.OnPartialFill)(outcome)
	}

	if e.cfg.Risk.PartialFillPolicy == config.PartialFillFreeze {
		e.book.Freeze("partial fill on " + filled.Symbol)

		return nil
	}

	compensation, err := e.orders.Compensate(ctx, outcome)
	if err != nil {
		e.log.Error("Compensation failed, freezing", zap.Error(err))
		e.book.Freeze("compensation failed for " + filled.Symbol)
		e.notifyError(callbacks, err)

		return nil
	}

	e.book.ApplyLegFill(compensation)

	return nil
}

func (e *EngineV1) fetchQuotes(ctx context.Context) (types.Quote, types.Quote, error) {
	quoteA, err := e.exchange.GetQuote(ctx, e.cfg.Pair.SymbolA)
	if err != nil {
		return types.Quote{}, types.Quote{}, err
	}

	quoteB, err := e.exchange.GetQuote(ctx, e.cfg.Pair.SymbolB)
	if err != nil {
		return types.Quote{}, types.Quote{}, err
	}

	return quoteA, quoteB, nil
}

func (e *EngineV1) snapshot(lastSpread float64, stats types.SpreadStatistics) types.CycleStatus {
	qtyA, qtyB := e.book.Quantities()

	return types.CycleStatus{
		Iteration:     e.iteration,
		Time:          time.Now(),
		PositionA:     qtyA,
		PositionB:     qtyB,
		Delta:         e.book.Delta(),
		Spread:        lastSpread,
		Mean:          stats.Mean,
		Stdev:         stats.Stdev,
		StatsReady:    stats.Ready,
		PositionState: e.book.State(),
		RealizedPnL:   e.book.RealizedPnL(),
		Cash:          e.book.Cash(),
		TradeCount:    e.book.TradeCount(),
		Frozen:        e.book.Frozen(),
	}
}

// shutdown cancels resting orders on both legs and releases resources. It
// uses a fresh context because the run context is usually already cancelled.
func (e *EngineV1) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if e.exchange != nil {
		for _, symbol := range []string{e.cfg.Pair.SymbolA, e.cfg.Pair.SymbolB} {
			if symbol == "" {
				continue
			}

			if err := e.exchange.CancelAllResting(ctx, symbol); err != nil {
				e.log.Warn("Failed to cancel resting orders",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
			}
		}
	}

	if e.statusServer != nil {
		if err := e.statusServer.Stop(); err != nil {
			e.log.Warn("Failed to stop status server", zap.Error(err))
		}
	}

	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			e.log.Warn("Failed to close journal", zap.Error(err))
		}
	}

	e.log.Info("Engine stopped", zap.Int64("iterations", e.iteration))
}

func (e *EngineV1) notifyError(callbacks engine.Callbacks, err error) {
	if callbacks.OnError != nil {
		(*callbacks.OnError)(err)
	}
}

// Verify EngineV1 implements the TradingEngine interface.
var _ engine.TradingEngine = (*EngineV1)(nil)
