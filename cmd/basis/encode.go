package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/spf13/cobra"
)

var (
	encodeManifest string
	encodeOut      string
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode utterances into per-phone coefficients",
	Long: `Encode every utterance in the manifest. Encoded utterances are stored in the
cache when --cache-dir is set and written as one .bfcr file each when --out is set.`,
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().StringVar(&encodeManifest, "manifest", "", "file listing one utterance name per line")
	encodeCmd.Flags().StringVar(&encodeOut, "out", "", "directory for .bfcr files")
}

func runEncode(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	names, err := readManifest(encodeManifest)
	if err != nil {
		return err
	}
	corpus, closeCorpus, err := openCorpus(cfg)
	if err != nil {
		return err
	}
	defer closeInto(&err, closeCorpus)

	var done atomic.Int64
	utts, err := corpus.LoadAll(commandContext(cmd), names, cfg.Workers, func(name string) {
		logger.Debug("encoded", "n", done.Add(1), "total", len(names), "utterance", name)
	})
	if err != nil {
		return err
	}
	logger.Info("encoding done", "utterances", len(utts))
	if corpus.Cache != nil {
		cached, err := corpus.Cache.Names(commandContext(cmd))
		if err != nil {
			return err
		}
		logger.Info("cache", "namespace", corpus.Cache.Namespace(), "utterances", len(cached))
	}

	if encodeOut == "" {
		return nil
	}
	if err := os.MkdirAll(encodeOut, 0o755); err != nil {
		return err
	}
	for i, b := range utts {
		f, err := createFile(filepath.Join(encodeOut, names[i]+".bfcr"))
		if err != nil {
			return err
		}
		err = b.Save(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// commandContext returns cmd's context or a background context when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
