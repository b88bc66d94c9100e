package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/tradectl/api"
	"github.com/rustyeddy/tradectl/broker"
	"github.com/rustyeddy/tradectl/broker/alpaca"
	"github.com/rustyeddy/tradectl/broker/paper"
	"github.com/rustyeddy/tradectl/clock"
	"github.com/rustyeddy/tradectl/config"
	"github.com/rustyeddy/tradectl/daemon"
	"github.com/rustyeddy/tradectl/journal"
	"github.com/rustyeddy/tradectl/logger"
	"github.com/rustyeddy/tradectl/portfolio"
	"github.com/rustyeddy/tradectl/state"
	"github.com/rustyeddy/tradectl/strategies"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the trading daemon and its control plane",
	Long: `Load the configuration, restore the last state snapshot and run the
control loop and HTTP control plane until interrupted.

Environment variables (and a .env file in the working directory) override
the file; see "tradectl config init" for the available keys.

Example:
  tradectl serve -f tradectl.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveConfigPath string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveConfigPath, "file", "f", "", "path to config file (YAML or JSON); defaults only when empty")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(&cfg.Log); err != nil {
		logger.Warnf("log level %q: %v, using info", cfg.Log.Level, err)
	}

	limits, err := cfg.RiskLimits()
	if err != nil {
		return err
	}
	interval, err := cfg.Daemon.TickDuration()
	if err != nil {
		return err
	}
	mode, err := state.ParseMode(cfg.Daemon.InitialMode)
	if err != nil {
		return err
	}

	clk := clock.System{}
	exec, err := newExecutor(cfg.Broker, clk)
	if err != nil {
		return err
	}
	eval, err := strategies.EvaluatorByName(cfg.Strategy.Name, cfg.Strategy.Stock, cfg.Strategy.Options)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	// validated by config.Load; unused when the manager is "none"
	every, _ := cfg.Portfolio.IntervalDuration()
	pm, err := portfolio.New(cfg.Portfolio.Name, cfg.Portfolio.Orders, every, clk)
	if err != nil {
		return fmt.Errorf("portfolio: %w", err)
	}
	j, err := journal.Open(cfg.Journal.Type, journalPath(cfg.Journal))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	d, err := daemon.New(daemon.Options{
		Limits:       limits,
		Store:        state.NewStore(cfg.Daemon.StatePath),
		Executor:     exec,
		Evaluator:    eval,
		Journal:      j,
		Clock:        clk,
		TickInterval: interval,
		InitialMode:  mode,
		Portfolio:    pm,
	})
	if err != nil {
		return err
	}

	timeout, _ := cfg.Broker.TimeoutDuration()
	srv := api.NewServer(d, api.Config{
		Addr:           cfg.Server.Addr,
		APIToken:       cfg.Server.APIToken,
		OrderTimeout:   timeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Start() }()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = d.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-srvErr:
		stop()
	}

	if serr := srv.Shutdown(); serr != nil {
		logger.Warnf("control plane shutdown: %v", serr)
	}
	<-loopDone
	if cerr := d.Close(); cerr != nil {
		logger.Errorf("final state flush: %v", cerr)
	}
	if err != nil {
		return fmt.Errorf("control plane: %w", err)
	}
	return nil
}

func newExecutor(b config.BrokerConfig, clk clock.Clock) (broker.Executor, error) {
	switch b.Type {
	case "paper":
		return paper.NewEngine(clk, b.PaperPrice), nil
	case "alpaca":
		timeout, err := b.TimeoutDuration()
		if err != nil {
			return nil, err
		}
		return alpaca.NewClient(b.BaseURL, b.KeyID, b.SecretKey, timeout), nil
	default:
		return nil, fmt.Errorf("unknown broker type %q", b.Type)
	}
}

func journalPath(j config.JournalConfig) string {
	if j.Type == "csv" {
		return j.CSVPath
	}
	return j.DBPath
}
