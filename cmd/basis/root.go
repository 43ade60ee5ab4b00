package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	basis "github.com/ieee0824/basis-speech"
	"github.com/ieee0824/basis-speech/store"
)

var (
	configPath string
	logLevel   string

	// flagCfg receives flag values; only flags set on the command line
	// override the config file.
	flagCfg = basis.DefaultConfig()

	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "basis",
	Short: "Per-phone basis function modelling of spectral features",
	Long: `basis compresses per-phone MGC trajectories into Legendre coefficients,
trains a quin/tri/single phone backoff model of Gaussian mixtures on them and
predicts features for new label files.

Examples:
  basis encode  --manifest train.txt --label-dir labels/full --mgc-dir mgc --cache-dir .cache
  basis train   --manifest train.txt --model gmm.msgpack --baseline lr.msgpack
  basis predict --manifest test.txt --model gmm.msgpack --baseline lr.msgpack --runs 25 --out predicted`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file")
	pf.StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	pf.IntVar(&flagCfg.NumBases, "bases", flagCfg.NumBases, "Legendre coefficients per phone and component")
	pf.IntVar(&flagCfg.NumComponents, "components", flagCfg.NumComponents, "feature components per frame")
	pf.Float64Var(&flagCfg.BlendingMs, "blending-ms", flagCfg.BlendingMs, "boundary cross-fade half-window in ms (0 disables)")
	pf.Float64Var(&flagCfg.FrameRate, "frame-rate", flagCfg.FrameRate, "feature frames per second")
	pf.StringVar(&flagCfg.LabelDir, "label-dir", flagCfg.LabelDir, "directory of label files")
	pf.StringVar(&flagCfg.MGCDir, "mgc-dir", flagCfg.MGCDir, "directory of feature files")
	pf.StringVar(&flagCfg.CacheDir, "cache-dir", flagCfg.CacheDir, "encoded utterance cache directory (empty disables)")
	pf.IntVar(&flagCfg.Workers, "workers", flagCfg.Workers, "concurrent workers")
	pf.Uint64Var(&flagCfg.Seed, "seed", flagCfg.Seed, "random seed (0 = time based)")
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	l, err := newLogger(logLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(l)
	return nil
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "info", "":
		lv = slog.LevelInfo
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})), nil
}

// loadConfig reads --config, applies explicitly set flags and validates.
func loadConfig(cmd *cobra.Command) (basis.Config, error) {
	cfg := basis.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = basis.LoadConfig(configPath); err != nil {
			return cfg, err
		}
	}
	flags := cmd.Flags()
	override := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	override("bases", func() { cfg.NumBases = flagCfg.NumBases })
	override("components", func() { cfg.NumComponents = flagCfg.NumComponents })
	override("blending-ms", func() { cfg.BlendingMs = flagCfg.BlendingMs })
	override("frame-rate", func() { cfg.FrameRate = flagCfg.FrameRate })
	override("label-dir", func() { cfg.LabelDir = flagCfg.LabelDir })
	override("mgc-dir", func() { cfg.MGCDir = flagCfg.MGCDir })
	override("cache-dir", func() { cfg.CacheDir = flagCfg.CacheDir })
	override("workers", func() { cfg.Workers = flagCfg.Workers })
	override("seed", func() { cfg.Seed = flagCfg.Seed })
	return cfg, cfg.Validate()
}

// openCorpus creates the corpus, backed by a Badger cache when cache_dir is
// set. The returned close function releases the cache.
func openCorpus(cfg basis.Config) (*basis.Corpus, func() error, error) {
	if cfg.CacheDir == "" {
		return basis.NewCorpus(cfg, nil), func() error { return nil }, nil
	}
	db, err := store.NewBadger(store.BadgerOptions{Dir: cfg.CacheDir, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	cache := store.NewCache(db, cfg.FeatureName,
		fmt.Sprintf("d%d", cfg.NumComponents), fmt.Sprintf("k%d", cfg.NumBases))
	return basis.NewCorpus(cfg, cache), db.Close, nil
}

// baselineExt is the file extension of saved regression baselines.
const baselineExt = ".msgpack"

// closeInto calls closeFn and keeps its error in *err unless *err already
// holds one.
func closeInto(err *error, closeFn func() error) {
	if cerr := closeFn(); *err == nil {
		*err = cerr
	}
}

func readManifest(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("--manifest is required")
	}
	names, err := basis.ReadManifestFile(path)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("manifest %s lists no utterances", path)
	}
	return names, nil
}

func createFile(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}
