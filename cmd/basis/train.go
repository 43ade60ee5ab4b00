package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/spf13/cobra"

	basis "github.com/ieee0824/basis-speech"
)

var (
	trainManifest  string
	trainModel     string
	trainBaselines string
	trainMixtures  int
	trainMinInst   int
	trainDiagonal  bool
	trainForests   []int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the context backoff model",
	Long: `Encode the training utterances, group their phones by quin, tri and single
phone context and fit one Gaussian mixture per group. With --baselines, also fit
the linear regression and random forest baselines on the same data and write
each to <dir>/<name>.msgpack.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	f := trainCmd.Flags()
	f.StringVar(&trainManifest, "manifest", "", "file listing one training utterance per line")
	f.StringVar(&trainModel, "model", "gmm.msgpack", "output model path")
	f.StringVar(&trainBaselines, "baselines", "", "output directory for regression baselines (empty skips them)")
	f.IntSliceVar(&trainForests, "forest-trees", nil, "tree counts of the random forest baselines")
	f.IntVar(&trainMixtures, "mixtures", 1, "mixture components per context")
	f.IntVar(&trainMinInst, "min-instances", 3, "smallest tri/quin group that gets a model")
	f.BoolVar(&trainDiagonal, "diagonal", false, "diagonal covariances")
}

func runTrain(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("mixtures") {
		cfg.Mixtures = trainMixtures
	}
	if flags.Changed("min-instances") {
		cfg.MinInstances = trainMinInst
	}
	if flags.Changed("diagonal") {
		cfg.Diagonal = trainDiagonal
	}
	if flags.Changed("forest-trees") {
		cfg.ForestTrees = trainForests
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	names, err := readManifest(trainManifest)
	if err != nil {
		return err
	}
	corpus, closeCorpus, err := openCorpus(cfg)
	if err != nil {
		return err
	}
	defer closeInto(&err, closeCorpus)

	ctx := commandContext(cmd)
	var done atomic.Int64
	utts, err := corpus.LoadAll(ctx, names, cfg.Workers, func(name string) {
		logger.Debug("loaded", "n", done.Add(1), "total", len(names), "utterance", name)
	})
	if err != nil {
		return err
	}

	var ts basis.TrainingSet
	for i, b := range utts {
		if err := ts.Add(b, cfg.FeatureName); err != nil {
			return fmt.Errorf("%s: %w", names[i], err)
		}
	}
	logger.Info("training data", "utterances", len(utts), "phones", ts.Len())

	h, err := basis.TrainHierarchy(ctx, &ts, cfg, logger)
	if err != nil {
		return err
	}
	f, err := createFile(trainModel)
	if err != nil {
		return err
	}
	err = h.Save(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	logger.Info("saved model", "path", trainModel)

	if trainBaselines == "" {
		return nil
	}
	baselines, err := basis.TrainBaselines(ctx, &ts, cfg, logger)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(trainBaselines, 0o755); err != nil {
		return err
	}
	for _, r := range baselines {
		path := filepath.Join(trainBaselines, r.Name()+baselineExt)
		f, err := createFile(path)
		if err != nil {
			return err
		}
		err = r.Save(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		logger.Info("saved baseline", "model", r.Name(), "path", path)
	}
	return nil
}
