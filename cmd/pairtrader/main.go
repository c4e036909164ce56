package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/meanrev-lab/pairtrader/internal/config"
	"github.com/meanrev-lab/pairtrader/internal/engine"
	engine_v1 "github.com/meanrev-lab/pairtrader/internal/engine/engine_v1"
	"github.com/meanrev-lab/pairtrader/internal/guardrail"
	"github.com/meanrev-lab/pairtrader/internal/market"
	"github.com/meanrev-lab/pairtrader/internal/types"
	"github.com/meanrev-lab/pairtrader/internal/version"
)

// runAction wires the configured exchange into the engine and runs the
// polling loop until interrupted.
func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	eng, err := engine_v1.NewEngineV1()
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if err := eng.Initialize(cfg); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	exchange, err := buildExchange(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	if err := eng.SetExchange(exchange); err != nil {
		return err
	}

	callbacks := buildCallbacks(cfg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting pairtrader %s on %s/%s (mode=%s)",
		version.GetVersion(), cfg.Pair.SymbolA, cfg.Pair.SymbolB, cmd.String("mode"))

	if err := eng.Run(ctx, callbacks); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

// buildExchange constructs the exchange adapter selected by --mode.
func buildExchange(ctx context.Context, cmd *cli.Command, cfg config.Config) (market.Exchange, error) {
	switch mode := cmd.String("mode"); mode {
	case "paper":
		paper := market.NewPaperExchange(cmd.Float("cash"))

		return paper, nil

	case "binance":
		path := cmd.String("binance-config")
		if path == "" {
			return nil, fmt.Errorf("--binance-config is required for binance mode")
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read binance config: %w", err)
		}

		var binanceCfg market.BinanceConfig
		if err := yaml.Unmarshal(data, &binanceCfg); err != nil {
			return nil, fmt.Errorf("failed to parse binance config: %w", err)
		}

		return market.NewBinanceExchange(binanceCfg)

	case "gateway":
		url := cmd.String("gateway-url")
		if url == "" {
			return nil, fmt.Errorf("--gateway-url is required for gateway mode")
		}

		return market.DialGateway(ctx, url)

	case "observe":
		apiKey := cmd.String("polygon-api-key")
		if apiKey == "" {
			apiKey = os.Getenv("POLYGON_API_KEY")
		}

		if apiKey == "" {
			return nil, fmt.Errorf("--polygon-api-key or POLYGON_API_KEY env required for observe mode")
		}

		provider := market.NewPolygonQuoteProvider(apiKey)

		return market.NewObserveExchange(provider), nil

	default:
		return nil, fmt.Errorf("unknown mode %q (want paper, binance, gateway or observe)", mode)
	}
}

// buildCallbacks reports warmup progress until the spread statistics are
// ready, then logs signals, trades and rejections.
func buildCallbacks(cfg config.Config) engine.Callbacks {
	bar := progressbar.NewOptions(cfg.Strategy.HistoryLength,
		progressbar.OptionSetDescription("Warming up spread history"),
		progressbar.OptionShowCount(),
	)
	warmedUp := false

	onCycle := engine.OnCycleCallback(func(status types.CycleStatus) error {
		if !warmedUp {
			if status.StatsReady {
				warmedUp = true

				_ = bar.Finish()
				log.Printf("Spread statistics ready (mean=%.4f stdev=%.6f)", status.Mean, status.Stdev)
			} else {
				_ = bar.Set(int(status.Iteration))
			}
		}

		return nil
	})

	onSignal := engine.OnSignalCallback(func(signal types.Signal) error {
		log.Printf("Signal %s: %s", signal.Type, signal.Reason)

		return nil
	})

	onRejection := engine.OnRejectionCallback(func(signal types.Signal, rejection *guardrail.Rejection) {
		log.Printf("Rejected %s: %s", signal.Type, rejection.Error())
	})

	onTrade := engine.OnTradeCallback(func(outcome types.ExecutionOutcome) error {
		log.Printf("Trade %s %s: A %s@%.4f, B %s@%.4f",
			outcome.Intent.Signal, outcome.Status,
			outcome.LegA.Side, outcome.LegA.FillPrice,
			outcome.LegB.Side, outcome.LegB.FillPrice)

		return nil
	})

	onPartialFill := engine.OnPartialFillCallback(func(outcome types.ExecutionOutcome) {
		filled, _ := outcome.FilledLeg()
		log.Printf("PARTIAL FILL on %s (%s %f@%.4f)", filled.Symbol, filled.Side, filled.FillVolume, filled.FillPrice)
	})

	onStop := engine.OnEngineStopCallback(func(err error) {
		if err != nil && err != context.Canceled {
			log.Printf("Engine stopped with error: %v", err)

			return
		}

		log.Println("Engine stopped")
	})

	return engine.Callbacks{
		OnEngineStart: nil,
		OnEngineStop:  &onStop,
		OnCycle:       &onCycle,
		OnSignal:      &onSignal,
		OnRejection:   &onRejection,
		OnTrade:       &onTrade,
		OnPartialFill: &onPartialFill,
		OnError:       nil,
	}
}

// checkAction validates a configuration file without running anything.
func checkAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	fmt.Printf("Config OK: %s/%s, entry=%.2f stdev, exit=%.2f stdev, history=%d\n",
		cfg.Pair.SymbolA, cfg.Pair.SymbolB,
		cfg.Strategy.EntryStdev, cfg.Strategy.ExitStdev, cfg.Strategy.HistoryLength)

	return nil
}

// schemaAction prints the JSON schema of the configuration file.
func schemaAction(_ context.Context, _ *cli.Command) error {
	schema, err := config.GetConfigSchema()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	configFlag := &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path to the engine configuration file",
		Required: true,
	}

	cmd := &cli.Command{
		Name:    "pairtrader",
		Usage:   "Mean-reversion pairs trading engine",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the trading loop against an exchange",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Exchange mode: paper, binance, gateway or observe",
						Value: "paper",
					},
					&cli.FloatFlag{
						Name:  "cash",
						Usage: "Initial cash for paper mode",
						Value: 10000,
					},
					&cli.StringFlag{
						Name:  "binance-config",
						Usage: "Path to the Binance credentials config (binance mode)",
					},
					&cli.StringFlag{
						Name:  "gateway-url",
						Usage: "WebSocket URL of the exchange gateway (gateway mode)",
					},
					&cli.StringFlag{
						Name:  "polygon-api-key",
						Usage: "Polygon API key (observe mode)",
					},
				},
				Action: runAction,
			},
			{
				Name:   "check",
				Usage:  "Validate a configuration file",
				Flags:  []cli.Flag{configFlag},
				Action: checkAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the configuration JSON schema",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
