package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/systemstart/steppipe/pkg/api"
	"github.com/systemstart/steppipe/pkg/builtin"
	"github.com/systemstart/steppipe/pkg/cli"
	"github.com/systemstart/steppipe/pkg/ledger"
	"github.com/systemstart/steppipe/pkg/logging"
	"github.com/systemstart/steppipe/pkg/metrics"
	"github.com/systemstart/steppipe/pkg/processing"
	"github.com/systemstart/steppipe/pkg/reference"
	"github.com/systemstart/steppipe/pkg/steps"
	"github.com/systemstart/steppipe/pkg/store"
)

var version = "dev"

const (
	_ = iota
	exitStepFailed
	exitUsage
	exitDotenvError
	exitLoggingFailed
	exitLoadContextFailed
	exitConfigurationError
	exitOpenStoreFailed
	exitOpenReferenceFailed
	exitOpenLedgerFailed
	exitLoadInputsFailed
	exitLoadBatchFailed
	exitSaveParametersFailed
	exitWriteMetricsFailed
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, exit, err := cli.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			_, _ = fmt.Fprintln(os.Stderr, exitErr.Message)
			return exitErr.Code
		}
		return exitUsage
	}
	if exit {
		return 0
	}
	if cfg.ShowVersion {
		fmt.Println(version)
		return 0
	}

	logger, err := logging.Initialize(cfg.LoggingType, cfg.LogLevel)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return exitLoggingFailed
	}

	if code := includeEnv(); code != 0 {
		return code
	}

	registry := steps.NewRegistry()
	if err := builtin.Register(registry); err != nil {
		slog.Error("failed to register step classes", "error", err)
		return exitConfigurationError
	}

	if cfg.Help {
		return renderHelp(registry, cfg.Ref)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observation, err := loadObservation(cfg.ContextFile)
	if err != nil {
		slog.Error("failed to load context file", "filename", cfg.ContextFile, "error", err)
		return exitLoadContextFailed
	}

	persister, err := store.Open(ctx, cfg.Output)
	if err != nil {
		slog.Error("failed to open output store", "location", cfg.Output, "error", err)
		return exitOpenStoreFailed
	}

	opts := []processing.Option{
		processing.WithLogger(logger),
		processing.WithPersister(persister),
		processing.WithObservation(observation),
		processing.WithFailureStrategy(cfg.FailureStrategy, newTrap(os.Stdin, os.Stderr, cfg.Debug && interactive())),
	}

	if !cfg.DisableRetrieval && cfg.Reference != "" {
		provider, err := openReference(cfg, logger)
		if err != nil {
			slog.Error("failed to open reference parameters", "location", cfg.Reference, "error", err)
			return exitOpenReferenceFailed
		}
		opts = append(opts, processing.WithProvider(provider))
	}

	db, l, err := openLedger(ctx, logger)
	if err != nil {
		slog.Error("failed to open run ledger", "error", err)
		return exitOpenLedgerFailed
	}
	if db != nil {
		defer func() { _ = db.Close() }()
		opts = append(opts, processing.WithLedger(l))
	}

	var collector *metrics.Collector
	if cfg.MetricsFile != "" {
		collector = metrics.NewCollector(metrics.DefaultNamespace)
		opts = append(opts, processing.WithMetrics(collector))
	}

	orch := processing.New(registry, opts...)

	var code int
	if cfg.Batch != "" {
		code = runBatch(ctx, orch, cfg)
	} else {
		code = runSingle(ctx, orch, cfg)
	}

	if collector != nil {
		if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
			slog.Error("failed to write metrics", "error", err)
			if code == 0 {
				code = exitWriteMetricsFailed
			}
		}
	}

	if code == 0 {
		slog.Info("done")
	}
	return code
}

func runSingle(ctx context.Context, orch *processing.Orchestrator, cfg *cli.Config) int {
	overrides := cfg.Overrides
	if _, ok := overrides[steps.ParamSaveResults]; !ok {
		overrides[steps.ParamSaveResults] = "true"
	}

	inst, err := orch.Build(ctx, processing.BuildRequest{Ref: cfg.Ref, Overrides: overrides, DisableRetrieval: cfg.DisableRetrieval})
	if err != nil {
		slog.Error("failed to configure step", "ref", cfg.Ref, "error", err)
		return exitConfigurationError
	}

	if cfg.SaveParameters != "" {
		if err := orch.SaveParameters(inst, cfg.SaveParameters); err != nil {
			slog.Error("failed to save parameters", "error", err)
			return exitSaveParametersFailed
		}
	}

	var inputs []*steps.Artifact
	if len(cfg.Inputs) > 0 {
		inputs, err = processing.LoadInputs(cfg.Inputs...)
		if err != nil {
			slog.Error("failed to load inputs", "error", err)
			return exitLoadInputsFailed
		}
	}

	res, err := orch.Run(ctx, inst, inputs...)
	if err != nil {
		slog.Error("step failed", "step", inst.Name(), "error", err)
		return exitStepFailed
	}
	for _, out := range res.Outputs {
		fmt.Println(out)
	}
	if res.Failed() {
		slog.Error("step finished with failed members", "step", inst.Name())
		return exitStepFailed
	}
	return 0
}

func runBatch(ctx context.Context, orch *processing.Orchestrator, cfg *cli.Config) int {
	b, err := api.LoadBatch(cfg.Batch)
	if err != nil {
		slog.Error("failed to load batch file", "filename", cfg.Batch, "error", err)
		return exitLoadBatchFailed
	}

	results, err := orch.RunBatch(ctx, b)
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, out := range res.Outputs {
			fmt.Println(out)
		}
	}
	if err != nil {
		slog.Error("batch failed", "error", err)
		return exitStepFailed
	}
	return 0
}

func renderHelp(registry *steps.Registry, ref string) int {
	className := ref
	if !registry.Has(ref) {
		if _, err := api.FormatOf(ref); err == nil {
			pf, err := api.LoadParameterFile(ref)
			if err != nil {
				slog.Error("failed to load parameter file", "filename", ref, "error", err)
				return exitConfigurationError
			}
			className = pf.Class
		}
	}

	class, err := registry.Lookup(className)
	if err != nil {
		slog.Error("cannot render help", "ref", ref, "error", err)
		return exitConfigurationError
	}

	fmt.Printf("%s\n\n", class.Name)
	if class.Help != "" {
		fmt.Printf("%s\n\n", class.Help)
	}
	fmt.Println("Parameters:")
	if err := class.FullSpec().Render(os.Stdout); err != nil {
		slog.Error("cannot render help", "error", err)
		return exitConfigurationError
	}
	return 0
}

func loadObservation(contextFile string) (map[string]any, error) {
	if contextFile == "" {
		return nil, nil
	}
	return processing.LoadContextFile(contextFile)
}

func openReference(cfg *cli.Config, logger *slog.Logger) (processing.Provider, error) {
	bucket, prefix, ok := store.ParseS3(cfg.Reference)
	if !ok {
		return reference.NewDirProvider(cfg.Reference, cfg.MaxDepth, logger), nil
	}

	s3cfg, err := store.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	s3cfg.Bucket = bucket
	client, err := store.NewClient(s3cfg)
	if err != nil {
		return nil, err
	}
	return reference.NewMinioProvider(client, bucket, prefix, logger)
}

func openLedger(ctx context.Context, logger *slog.Logger) (*sql.DB, *ledger.Ledger, error) {
	cfg, err := ledger.ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Enabled() {
		return nil, nil, nil
	}
	db, err := ledger.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	l := ledger.New(db, logger)
	if err := l.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, l, nil
}

func includeEnv() int {
	err := godotenv.Load()
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to load .env", "error", err)
			return exitDotenvError
		}
		slog.Debug("no .env file found")
	} else {
		slog.Debug("using .env file")
	}
	return 0
}
