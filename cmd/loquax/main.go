// Command loquax transcribes a media file into a corrected Markdown
// transcript: ffmpeg extraction, whisper.cpp recognition with model-tier
// fallback, LLM terminology correction, and optional Postgres archival.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/loquax/internal/config"
	"github.com/MrWong99/loquax/internal/modelcache"
	"github.com/MrWong99/loquax/internal/observe"
	"github.com/MrWong99/loquax/internal/pipeline"
	"github.com/MrWong99/loquax/internal/recognize"
)

// Exit codes beyond the generic 1, so batch scripts can tell a corrupt
// model download from an out-of-memory fallback chain.
const (
	exitErr       = 1
	exitExhausted = 2
	exitChecksum  = 3
)

var (
	cfgPath string
	verbose bool
	quiet   bool

	// cfg is loaded in PersistentPreRunE and read by runTranscribe.
	cfg *config.Config
)

var (
	flagOutput   string
	flagModel    string
	flagLanguage string
	flagPriority string
	flagGPUMem   float64
	flagThreads  uint
	flagNoLLM    bool
)

var rootCmd = &cobra.Command{
	Use:   "loquax <media-file>",
	Short: "Transcribe media files into corrected Markdown transcripts",
	Long: `Loquax transcribes audio and video files into Markdown documents using
whisper.cpp with automatic model-tier fallback, then fixes misrecognized
technical terminology with an LLM while keeping term spellings consistent
across the whole document.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		setupLogging()
		return nil
	},
	RunE: runTranscribe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	rootCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output Markdown path (default: <input>.md)")
	rootCmd.Flags().StringVarP(&flagModel, "model", "m", "", "force a model tier: tiny, base, small, medium, large")
	rootCmd.Flags().StringVarP(&flagLanguage, "language", "l", "", "spoken language hint (default: auto-detect)")
	rootCmd.Flags().StringVar(&flagPriority, "priority", "", "tier planning trade-off: accuracy or speed")
	rootCmd.Flags().Float64Var(&flagGPUMem, "gpu-mem", 0, "usable accelerator memory in GiB for tier planning")
	rootCmd.Flags().UintVar(&flagThreads, "threads", 0, "whisper.cpp thread count (default: all cores)")
	rootCmd.Flags().BoolVar(&flagNoLLM, "no-correct", false, "skip the LLM terminology correction stage")
}

// loadConfig loads the config file and layers the CLI flags on top. A
// missing file is only an error when --config was given explicitly.
func loadConfig(cmd *cobra.Command) error {
	path := cfgPath
	explicit := cmd.Flags().Changed("config")
	if path == "" {
		path = "loquax.yaml"
	}

	c, err := config.Load(path)
	switch {
	case err == nil:
		cfg = c
	case errors.Is(err, os.ErrNotExist) && !explicit:
		cfg = config.Default()
	default:
		return err
	}

	if cmd.Flags().Changed("model") {
		cfg.Recognition.Model = flagModel
	}
	if cmd.Flags().Changed("language") {
		cfg.Recognition.Language = flagLanguage
	}
	if cmd.Flags().Changed("priority") {
		cfg.Recognition.Priority = flagPriority
	}
	if cmd.Flags().Changed("gpu-mem") {
		cfg.Recognition.AcceleratorMemoryGiB = flagGPUMem
	}
	if flagNoLLM {
		cfg.Correction.Enabled = false
	}
	return cfg.Validate()
}

func setupLogging() {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case config.LogLevelDebug:
		level = slog.LevelDebug
	case config.LogLevelWarn:
		level = slog.LevelWarn
	case config.LogLevelError:
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	mediaPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(mediaPath); err != nil {
		return fmt.Errorf("media file: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	p, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := p.Run(ctx, pipeline.Input{MediaPath: mediaPath, OutputPath: flagOutput})
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Printf("wrote %s (%d segments, model %s)\n",
			res.OutputPath, len(res.Document.Segments), res.Document.Model)
		if r := res.Report; r != nil && len(r.Skipped) > 0 {
			fmt.Printf("warning: %d of %d correction batches kept their original text\n",
				len(r.Skipped), r.Batches)
		}
	}
	return nil
}

// version is stamped via -ldflags at release time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "loquax: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, recognize.ErrAllTiersExhausted):
		return exitExhausted
	case errors.Is(err, modelcache.ErrChecksumMismatch):
		return exitChecksum
	default:
		return exitErr
	}
}
