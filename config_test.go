package basis

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieee0824/basis-speech/acoustic"
	"github.com/ieee0824/basis-speech/bfcr"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.NumBases)
	assert.Equal(t, 35, cfg.NumComponents)
	assert.Equal(t, 25.0, cfg.BlendingMs)
	assert.Equal(t, 200.0, cfg.FrameRate)
	assert.Equal(t, 3, cfg.MinInstances)
	assert.Equal(t, []int{10, 50}, cfg.ForestTrees)
	assert.Equal(t, acoustic.Shape{Components: 35, Bases: 5}, cfg.Shape())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "basis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_bases: 3\nmixtures: 2\ndiagonal: true\nlabel_dir: labels/full\nforest_trees: [4]\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.NumBases)
	assert.Equal(t, 2, cfg.Mixtures)
	assert.True(t, cfg.Diagonal)
	assert.Equal(t, "labels/full", cfg.LabelDir)
	assert.Equal(t, []int{4}, cfg.ForestTrees)
	assert.Equal(t, 35, cfg.NumComponents, "unset keys keep defaults")

	tc := cfg.TrainConfig(nil)
	assert.Equal(t, 2, tc.Fit.Mixtures)
	assert.True(t, tc.Fit.Diagonal)
	assert.Equal(t, cfg.Workers, tc.Workers)
	assert.Equal(t, cfg.Seed, tc.Seed)

	fc := cfg.ForestConfig(10)
	assert.Equal(t, 10, fc.Trees)
	assert.Equal(t, cfg.Workers, fc.Workers)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_bases: [1\n"), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("num_bases: 0\n"), 0o644))
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, bfcr.ErrConfiguration)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bases", func(c *Config) { c.NumBases = 0 }},
		{"components", func(c *Config) { c.NumComponents = 0 }},
		{"blending", func(c *Config) { c.BlendingMs = -1 }},
		{"frame rate", func(c *Config) { c.FrameRate = 0 }},
		{"feature name", func(c *Config) { c.FeatureName = "" }},
		{"min instances", func(c *Config) { c.MinInstances = 0 }},
		{"mixtures", func(c *Config) { c.Mixtures = 0 }},
		{"iterations", func(c *Config) { c.MaxIterations = -1 }},
		{"reg covar", func(c *Config) { c.RegCovar = -1 }},
		{"forest trees", func(c *Config) { c.ForestTrees = []int{10, 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.ErrorIs(t, cfg.Validate(), bfcr.ErrConfiguration)
		})
	}
}
