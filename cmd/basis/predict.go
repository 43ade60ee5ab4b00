package main

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	basis "github.com/ieee0824/basis-speech"
	"github.com/ieee0824/basis-speech/feature"
	"github.com/ieee0824/basis-speech/regression"
)

var (
	predictManifest string
	predictModel    string
	predictBaselines string
	predictRuns     int
	predictOut      string
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Predict features for held-out utterances and score them",
	Long: `Sample coefficients for every phone of each test utterance, decode them to
frame-level features and report the mean squared error against the original
features. With --runs N the error is averaged over N independent samplings.
Predicted features of the last run are written to --out as raw float32 files
for an external vocoder.

A phone that has no model at any context level aborts the whole batch.`,
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(predictCmd)
	f := predictCmd.Flags()
	f.StringVar(&predictManifest, "manifest", "", "file listing one test utterance per line")
	f.StringVar(&predictModel, "model", "gmm.msgpack", "trained model path")
	f.StringVar(&predictBaselines, "baselines", "", "directory of regression baselines written by train (empty skips them)")
	f.IntVar(&predictRuns, "runs", 1, "samplings per utterance")
	f.StringVar(&predictOut, "out", "", "directory for predicted feature files")
}

func runPredict(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	names, err := readManifest(predictManifest)
	if err != nil {
		return err
	}

	opts := []basis.Option{basis.WithConfig(cfg)}
	if predictBaselines != "" {
		baselines, err := loadBaselines(predictBaselines)
		if err != nil {
			return err
		}
		opts = append(opts, basis.WithBaselines(baselines...))
	}
	synth, err := basis.LoadSynthesizer(predictModel, cfg.Shape(), opts...)
	if err != nil {
		return err
	}
	corpus, closeCorpus, err := openCorpus(cfg)
	if err != nil {
		return err
	}
	defer closeInto(&err, closeCorpus)
	if predictOut != "" {
		if err := os.MkdirAll(predictOut, 0o755); err != nil {
			return err
		}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewPCG(seed, 0)

	totals := make(map[string][]float64)
	var models []string
	for i, name := range names {
		lab, err := corpus.Label(name)
		if err != nil {
			return err
		}
		original, err := corpus.Features(name)
		if err != nil {
			return err
		}
		p, scores, err := synth.Evaluate(name, lab, original, predictRuns, src)
		if err != nil {
			return err
		}
		for _, sc := range scores {
			if _, ok := totals[sc.Model]; !ok {
				models = append(models, sc.Model)
			}
			totals[sc.Model] = append(totals[sc.Model], sc.MSE)
			logger.Info("mse", "n", i+1, "total", len(names), "utterance", name, "model", sc.Model, "mse", sc.MSE, "runs", predictRuns)
		}
		if predictOut == "" {
			continue
		}
		for _, r := range p.All() {
			path := filepath.Join(predictOut, fmt.Sprintf("%s_%s%s", name, r.Model, cfg.FeatureExt))
			if err := feature.WriteMatrixFile(path, r.Y); err != nil {
				return err
			}
		}
	}
	for _, m := range models {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.6f\n", m, stat.Mean(totals[m], nil))
	}
	return nil
}

// loadBaselines restores every baseline in dir in file name order.
func loadBaselines(dir string) ([]regression.Regressor, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+baselineExt))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no baselines in %s", dir)
	}
	out := make([]regression.Regressor, 0, len(paths))
	for _, path := range paths {
		r, err := loadBaseline(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		logger.Debug("loaded baseline", "model", r.Name(), "path", path)
		out = append(out, r)
	}
	return out, nil
}

func loadBaseline(path string) (regression.Regressor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open baseline: %w", err)
	}
	defer f.Close()
	return regression.LoadRegressor(f)
}
