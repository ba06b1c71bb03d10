package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/scribe-go/internal/checkpoint"
	"github.com/raphaelgruber/scribe-go/internal/config"
	"github.com/raphaelgruber/scribe-go/internal/jobs"
	"github.com/raphaelgruber/scribe-go/internal/llm"
	"github.com/raphaelgruber/scribe-go/internal/metrics"
	"github.com/raphaelgruber/scribe-go/internal/pipeline"
	"github.com/raphaelgruber/scribe-go/internal/retry"
	"github.com/raphaelgruber/scribe-go/internal/server"
	"github.com/raphaelgruber/scribe-go/internal/stt"
	"github.com/raphaelgruber/scribe-go/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the processing server",
	Long: `Run the HTTP server and the input folder watcher.

Recordings arrive via 'scribe process', direct HTTP upload, or by dropping
files into the input directory. Jobs survive restarts: re-submitting an
interrupted file resumes from the last checkpoint.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("create data directories: %w", err)
	}

	logger := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	slog.SetDefault(logger)

	store, err := checkpoint.NewFSStore(cfg.IntermediateDir)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}

	generator, err := llm.New(cfg)
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()

	policy := retry.DefaultPolicy(logger)
	policy.IsTransient = llm.IsTransient

	processor := pipeline.New(store, engine, generator, pipeline.Options{
		ChunkSize:      cfg.ChunkSize,
		LLMConcurrency: cfg.LLMConcurrency,
		OutputDir:      cfg.OutputDir,
		ProcessedDir:   cfg.ProcessedDir,
		FailedDir:      cfg.FailedDir,
		Retry:          policy,
		Metrics:        collector,
		Logger:         logger,
	})

	manager := jobs.NewManager(processor, jobs.Options{
		Workers:       cfg.Workers,
		ValidateInput: stt.CheckFormat,
		Logger:        logger,
	})
	defer manager.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting scribe",
		"version", Version,
		"llm_provider", cfg.LLMProvider,
		"stt_engine", cfg.STTEngine,
	)

	srv := server.New(cfg.ServerAddr, cfg.InputDir, manager, collector, logger)
	watch := watcher.New(cfg.InputDir, manager, logger)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Run(ctx) })
	group.Go(func() error {
		if err := watch.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("scribe stopped")
	return nil
}

// buildEngine selects the speech-to-text backend from configuration.
func buildEngine(cfg config.Config, logger *slog.Logger) (stt.Engine, error) {
	switch cfg.STTEngine {
	case "fasterwhisper":
		return &stt.FasterWhisper{
			Model:  cfg.WhisperModel,
			Device: cfg.WhisperDevice,
			Logger: logger,
		}, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("stt_engine 'openai' requires openai_api_key")
		}
		return stt.NewOpenAI(cfg.OpenAIAPIKey, "", "whisper-1"), nil
	default:
		return nil, fmt.Errorf("unknown stt_engine %q", cfg.STTEngine)
	}
}
