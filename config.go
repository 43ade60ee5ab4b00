package basis

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/ieee0824/basis-speech/acoustic"
	"github.com/ieee0824/basis-speech/bfcr"
	"github.com/ieee0824/basis-speech/regression"
)

// Config holds the parameters shared by encoding, training and prediction.
type Config struct {
	NumBases      int     `yaml:"num_bases"`      // Legendre coefficients per phone and component
	NumComponents int     `yaml:"num_components"` // feature components per frame (MGC order + 1)
	BlendingMs    float64 `yaml:"blending_ms"`    // cross-fade half-window; 0 disables blending
	FrameRate     float64 `yaml:"frame_rate"`     // frames per second of the feature files
	FeatureName   string  `yaml:"feature_name"`

	MinInstances  int     `yaml:"min_instances"`
	Mixtures      int     `yaml:"mixtures"`
	MaxIterations int     `yaml:"max_iterations"`
	Tolerance     float64 `yaml:"tolerance"`
	RegCovar      float64 `yaml:"reg_covar"`
	Diagonal      bool    `yaml:"diagonal"`
	Workers       int     `yaml:"workers"`
	Seed          uint64  `yaml:"seed"` // 0 picks a time based seed

	ForestTrees []int `yaml:"forest_trees"` // one random forest baseline per entry

	LabelDir   string `yaml:"label_dir"`
	MGCDir     string `yaml:"mgc_dir"`
	CacheDir   string `yaml:"cache_dir"` // empty disables the encoded-utterance cache
	LabelExt   string `yaml:"label_ext"`
	FeatureExt string `yaml:"feature_ext"`
}

// DefaultConfig returns the setup used for 48 kHz speech with a 240 sample
// frame shift and 34th order mel-generalized cepstra.
func DefaultConfig() Config {
	fit := acoustic.DefaultFitConfig()
	return Config{
		NumBases:      5,
		NumComponents: 35,
		BlendingMs:    bfcr.DefaultBlendingMs,
		FrameRate:     bfcr.DefaultFrameRate,
		FeatureName:   "mgc",
		MinInstances:  acoustic.DefaultMinInstances,
		Mixtures:      fit.Mixtures,
		MaxIterations: fit.MaxIterations,
		Tolerance:     fit.Tolerance,
		RegCovar:      fit.RegCovar,
		Workers:       runtime.NumCPU(),
		ForestTrees:   []int{10, 50},
		LabelExt:      ".lab",
		FeatureExt:    ".mgc",
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Keys missing from the
// file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	switch {
	case c.NumBases < 1:
		return fmt.Errorf("%w: num_bases %d < 1", bfcr.ErrConfiguration, c.NumBases)
	case c.NumComponents < 1:
		return fmt.Errorf("%w: num_components %d < 1", bfcr.ErrConfiguration, c.NumComponents)
	case c.BlendingMs < 0:
		return fmt.Errorf("%w: blending_ms %v < 0", bfcr.ErrConfiguration, c.BlendingMs)
	case c.FrameRate <= 0:
		return fmt.Errorf("%w: frame_rate %v <= 0", bfcr.ErrConfiguration, c.FrameRate)
	case c.FeatureName == "":
		return fmt.Errorf("%w: empty feature_name", bfcr.ErrConfiguration)
	case c.MinInstances < 1:
		return fmt.Errorf("%w: min_instances %d < 1", bfcr.ErrConfiguration, c.MinInstances)
	case c.Mixtures < 1:
		return fmt.Errorf("%w: mixtures %d < 1", bfcr.ErrConfiguration, c.Mixtures)
	case c.MaxIterations < 0:
		return fmt.Errorf("%w: max_iterations %d < 0", bfcr.ErrConfiguration, c.MaxIterations)
	case c.RegCovar < 0:
		return fmt.Errorf("%w: reg_covar %v < 0", bfcr.ErrConfiguration, c.RegCovar)
	}
	for _, n := range c.ForestTrees {
		if n < 1 {
			return fmt.Errorf("%w: forest_trees entry %d < 1", bfcr.ErrConfiguration, n)
		}
	}
	return nil
}

// Shape returns the per-phone coefficient layout.
func (c Config) Shape() acoustic.Shape {
	return acoustic.Shape{Components: c.NumComponents, Bases: c.NumBases}
}

// TrainConfig maps c onto the hierarchy training parameters.
func (c Config) TrainConfig(logger *slog.Logger) acoustic.TrainConfig {
	return acoustic.TrainConfig{
		Fit: acoustic.FitConfig{
			Mixtures:      c.Mixtures,
			MaxIterations: c.MaxIterations,
			Tolerance:     c.Tolerance,
			RegCovar:      c.RegCovar,
			Diagonal:      c.Diagonal,
		},
		Workers: c.Workers,
		Seed:    c.Seed,
		Logger:  logger,
	}
}

// ForestConfig maps c onto the parameters of a forest with the given number
// of trees.
func (c Config) ForestConfig(trees int) regression.ForestConfig {
	fc := regression.DefaultForestConfig(trees)
	fc.Workers = c.Workers
	fc.Seed = c.Seed
	return fc
}
