// Package pipeline runs keyfold's operations end to end: analyze proposes
// a mapping, apply consumes the reviewed mapping, check reports drift.
// All of them share one parameterized pipeline built from a config.Config.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/minios-linux/keyfold/arbfile"
	"github.com/minios-linux/keyfold/backup"
	"github.com/minios-linux/keyfold/cluster"
	"github.com/minios-linux/keyfold/config"
	"github.com/minios-linux/keyfold/report"
	"github.com/minios-linux/keyfold/rewrite"
	"github.com/minios-linux/keyfold/usage"
)

// Pipeline carries the configuration and collaborators of a run.
type Pipeline struct {
	cfg     *config.Config
	log     zerolog.Logger
	metric  cluster.Metric
	idioms  []*rewrite.Idiom
	backups *backup.Manager
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetric replaces the configured similarity metric.
func WithMetric(m cluster.Metric) Option {
	return func(p *Pipeline) { p.metric = m }
}

// WithIdioms replaces the configured accessor idioms.
func WithIdioms(idioms []*rewrite.Idiom) Option {
	return func(p *Pipeline) { p.idioms = idioms }
}

// WithBackupManager replaces the backup manager, e.g. to fix its clock.
func WithBackupManager(m *backup.Manager) Option {
	return func(p *Pipeline) { p.backups = m }
}

// New validates cfg and returns a Pipeline.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, log: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}
	if p.metric == nil {
		p.metric = cluster.GetMetric(cfg.Metric)
	}
	if p.idioms == nil {
		idioms, err := rewrite.IdiomsFromConfig(cfg.Idioms)
		if err != nil {
			return nil, err
		}
		p.idioms = idioms
	}
	if p.backups == nil {
		p.backups = backup.NewManager(cfg.Root, cfg.AbsBackupRoot())
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// loadCatalogs discovers and parses the catalogs. The primary locale comes
// first, the rest follow sorted by locale. Any failure is a configuration
// error: nothing can be changed safely without every catalog.
func (p *Pipeline) loadCatalogs(ctx context.Context) ([]report.Catalog, error) {
	dir := p.cfg.AbsCatalogDir()
	found, err := arbfile.Discover(dir, p.cfg.CatalogPattern)
	if err != nil {
		return nil, &config.ConfigurationError{Path: dir, Err: err}
	}
	if len(found) == 0 {
		return nil, config.Errorf(dir, "no catalogs matching %q", p.cfg.CatalogPattern)
	}

	var cats []report.Catalog
	for _, c := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := arbfile.ParseFile(c.Path)
		if err != nil {
			return nil, &config.ConfigurationError{Path: c.Path, Err: err}
		}
		cats = append(cats, report.Catalog{Path: c.Path, Locale: c.Locale, File: f})
		p.log.Debug().Str("locale", c.Locale).Int("keys", f.Len()).Str("path", p.rel(c.Path)).Msg("Loaded catalog")
	}

	primary := p.cfg.PrimaryLocale
	if primary == "" {
		primary = "en"
	}
	sort.SliceStable(cats, func(i, j int) bool {
		return cats[i].Name() == primary && cats[j].Name() != primary
	})
	if p.cfg.PrimaryLocale != "" && cats[0].Name() != p.cfg.PrimaryLocale {
		return nil, config.Errorf(dir, "primary locale %q has no catalog", p.cfg.PrimaryLocale)
	}
	return cats, nil
}

// sources lists the source files to scan.
func (p *Pipeline) sources() ([]string, error) {
	files, err := rewrite.FindSources(rewrite.SourceSet{
		Dirs:       p.cfg.AbsSourceDirs(),
		Extensions: p.cfg.SourceExtensions,
		Exclude:    p.cfg.Exclude,
	})
	if err != nil {
		return nil, &config.ConfigurationError{Err: err}
	}
	p.log.Debug().Int("files", len(files)).Msg("Found source files")
	return files, nil
}

// rel shortens path for log output.
func (p *Pipeline) rel(path string) string {
	if r, err := filepath.Rel(p.cfg.Root, path); err == nil {
		return r
	}
	return path
}

func marshalEqual(a, b *arbfile.File) (bool, error) {
	da, err := a.Marshal()
	if err != nil {
		return false, err
	}
	db, err := b.Marshal()
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

func keyUnion(cats []report.Catalog) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, c := range cats {
		for _, k := range c.File.Keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// ScanUnused counts key references in the source tree and, unless the run
// is a dry run, writes the unused-keys list.
func (p *Pipeline) ScanUnused(ctx context.Context) (*usage.Report, error) {
	cats, err := p.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	files, err := p.sources()
	if err != nil {
		return nil, err
	}
	scanner, err := usage.NewScanner(p.idioms, p.cfg.KeepPatterns)
	if err != nil {
		return nil, &config.ConfigurationError{Err: err}
	}
	rep, err := scanner.Scan(ctx, files, keyUnion(cats))
	if err != nil {
		return nil, err
	}
	for _, w := range rep.Warnings {
		p.log.Warn().Err(w.Err).Str("file", p.rel(w.Path)).Msg("Skipped unreadable source file")
	}
	p.log.Info().Int("files", rep.Scanned).Int("unused", len(rep.Unused)).Int("kept", len(rep.Kept)).Msg("Usage scan complete")

	if !p.cfg.DryRun {
		path := p.cfg.AbsUnusedKeysFile()
		if err := usage.WriteListFile(path, rep.Unused); err != nil {
			return nil, fmt.Errorf("writing unused keys list: %w", err)
		}
		p.log.Info().Str("path", p.rel(path)).Msg("Wrote unused keys list")
	}
	return rep, nil
}
