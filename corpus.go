package basis

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ieee0824/basis-speech/bfcr"
	"github.com/ieee0824/basis-speech/feature"
	"github.com/ieee0824/basis-speech/label"
	"github.com/ieee0824/basis-speech/store"
)

// Corpus locates the label and feature files of named utterances and
// encodes them.
type Corpus struct {
	LabelDir   string
	FeatureDir string
	LabelExt   string
	FeatureExt string

	FeatureName   string
	NumComponents int
	NumBases      int
	FrameRate     float64

	// Cache, if set, holds encoded utterances across runs.
	Cache *store.Cache
}

// NewCorpus creates a Corpus from cfg. cache may be nil.
func NewCorpus(cfg Config, cache *store.Cache) *Corpus {
	return &Corpus{
		LabelDir:      cfg.LabelDir,
		FeatureDir:    cfg.MGCDir,
		LabelExt:      cfg.LabelExt,
		FeatureExt:    cfg.FeatureExt,
		FeatureName:   cfg.FeatureName,
		NumComponents: cfg.NumComponents,
		NumBases:      cfg.NumBases,
		FrameRate:     cfg.FrameRate,
		Cache:         cache,
	}
}

// LabelPath returns the label file of name.
func (c *Corpus) LabelPath(name string) string {
	return filepath.Join(c.LabelDir, name+c.LabelExt)
}

// FeaturePath returns the feature file of name.
func (c *Corpus) FeaturePath(name string) string {
	return filepath.Join(c.FeatureDir, name+c.FeatureExt)
}

// Label parses the label file of name.
func (c *Corpus) Label(name string) (*label.Label, error) {
	lab, err := label.ParseFile(c.LabelPath(name))
	if err != nil {
		return nil, fmt.Errorf("label %s: %w", name, err)
	}
	return lab, nil
}

// Features reads the feature matrix of name.
func (c *Corpus) Features(name string) (*feature.Matrix, error) {
	m, err := feature.ReadMatrixFile(c.FeaturePath(name), c.NumComponents)
	if err != nil {
		return nil, fmt.Errorf("features %s: %w", name, err)
	}
	return m, nil
}

// Encode parses and encodes name without consulting the cache.
func (c *Corpus) Encode(name string) (*bfcr.BFCR, error) {
	lab, err := c.Label(name)
	if err != nil {
		return nil, err
	}
	m, err := c.Features(name)
	if err != nil {
		return nil, err
	}
	b := bfcr.New(lab, bfcr.WithFrameRate(c.FrameRate))
	if err := b.Encode(c.FeatureName, m, c.NumBases); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

// Load returns the encoded utterance name, from the cache when available.
func (c *Corpus) Load(ctx context.Context, name string) (*bfcr.BFCR, error) {
	if c.Cache == nil {
		return c.Encode(name)
	}
	b, _, err := c.Cache.GetOrCreate(ctx, name, func() (*bfcr.BFCR, error) {
		return c.Encode(name)
	})
	return b, err
}

// LoadAll loads names concurrently, bounded by workers, and returns the
// utterances in input order. progress, if non-nil, is called after each
// utterance and must be safe for concurrent use.
func (c *Corpus) LoadAll(ctx context.Context, names []string, workers int, progress func(name string)) ([]*bfcr.BFCR, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	out := make([]*bfcr.BFCR, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := c.Load(gctx, name)
			if err != nil {
				return err
			}
			out[i] = b
			if progress != nil {
				progress(name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadManifest reads one utterance name per line. Blank lines and lines
// starting with '#' are skipped; directories and extensions are stripped.
func ReadManifest(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		base := filepath.Base(line)
		names = append(names, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return names, nil
}

// ReadManifestFile is a convenience wrapper that opens a file path.
func ReadManifestFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadManifest(f)
}
