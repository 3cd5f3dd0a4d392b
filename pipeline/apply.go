package pipeline

import (
	"context"
	"fmt"

	"github.com/minios-linux/keyfold/arbfile"
	"github.com/minios-linux/keyfold/backup"
	"github.com/minios-linux/keyfold/consolidate"
	"github.com/minios-linux/keyfold/mapping"
	"github.com/minios-linux/keyfold/report"
	"github.com/minios-linux/keyfold/rewrite"
)

// ApplyResult is the outcome of Apply.
type ApplyResult struct {
	Summary       report.Summary
	Catalogs      []consolidate.Result
	Written       []string // catalogs rewritten
	UnusedRefs    []rewrite.SourceReference
	Skipped       []rewrite.IOWarning
	ParseWarnings []mapping.ParseWarning
	Conflicts     []mapping.Conflict
	// Report is the post-apply verification, or the preview on a dry run.
	Report *report.Report
	// Snapshot is nil on a dry run.
	Snapshot *backup.Snapshot
}

// Apply reads the reviewed mapping and rewrites catalogs and sources.
//
// Everything is computed before anything is written. A snapshot directory
// is then created and every catalog is backed up; a failed catalog backup
// aborts the run before any mutation. Source files are backed up one by
// one right before they are written, and a failed backup skips only that
// file.
func (p *Pipeline) Apply(ctx context.Context) (*ApplyResult, error) {
	model, warnings, err := mapping.ParseFile(p.cfg.AbsMappingFile())
	if err != nil {
		return nil, err
	}
	res := &ApplyResult{ParseWarnings: warnings, Conflicts: model.Conflicts()}
	for _, w := range warnings {
		p.log.Warn().Int("line", w.Line).Str("text", w.Text).Msg(w.Reason)
	}
	for _, c := range res.Conflicts {
		p.log.Warn().
			Str("key", c.Key).
			Str("previous", c.Previous).
			Str("winner", c.Winner).
			Int("line", c.Line).
			Msg("Key claimed by two groups, last claim wins")
	}

	cats, err := p.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}

	opts := consolidate.Options{RemoveUnused: p.cfg.RemoveUnused}
	after := make([]report.Catalog, len(cats))
	changed := make([]bool, len(cats))
	replaced, removed := make(map[string]bool), make(map[string]bool)
	for i, c := range cats {
		out, cres := consolidate.Consolidate(c.File, model, opts)
		cres.Locale = c.Name()
		after[i] = report.Catalog{Path: c.Path, Locale: c.Locale, File: out}
		same, err := marshalEqual(c.File, out)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", c.Path, err)
		}
		changed[i] = !same
		res.Catalogs = append(res.Catalogs, cres)
		for _, k := range cres.Replaced {
			replaced[k] = true
		}
		for _, k := range cres.RemovedUnused {
			removed[k] = true
		}
		for _, k := range cres.Fallbacks {
			p.log.Warn().Str("locale", cres.Locale).Str("key", k).Msg("Canonical key missing, kept the replaced key's value")
		}
	}

	// Keys are counted once across locales.
	res.Summary.Replaced = len(replaced)
	res.Summary.Removed = len(removed)

	files, err := p.sources()
	if err != nil {
		return nil, err
	}
	renames := make(map[string]string)
	for _, k := range model.Replaced() {
		renames[k] = model.Resolve(k)
	}
	unused := make(map[string]bool)
	for _, k := range model.Unused() {
		unused[k] = true
	}
	rw := rewrite.New(p.idioms)
	plan, err := rw.Plan(ctx, files, renames, unused)
	if err != nil {
		return nil, err
	}
	res.UnusedRefs = plan.UnusedRefs
	res.Skipped = append(res.Skipped, plan.Warnings...)
	for _, ref := range plan.UnusedRefs {
		p.log.Info().Str("file", p.rel(ref.File)).Int("line", ref.Line).Str("key", ref.Key).Msg("Reference to unused key left in place")
	}

	if p.cfg.DryRun {
		res.Report = report.Preview(cats, model, opts)
		res.Summary.DryRun = true
		res.Summary.Touched = len(plan.Changes)
		res.Summary.Sites = plan.Sites()
		res.Summary.Skipped = len(res.Skipped)
		res.Summary.UnusedRefs = len(res.UnusedRefs)
		return res, nil
	}

	snap, err := p.backups.Begin()
	if err != nil {
		return nil, fmt.Errorf("creating backup: %w", err)
	}
	res.Snapshot = snap
	res.Summary.Snapshot = snap.Dir
	defer func() {
		if err := snap.Seal(); err != nil {
			p.log.Error().Err(err).Str("snapshot", snap.Dir).Msg("Failed to write backup manifest")
		}
	}()

	for _, c := range cats {
		if err := snap.Add(c.Path); err != nil {
			return nil, err
		}
	}
	p.log.Info().Str("snapshot", p.rel(snap.Dir)).Int("catalogs", len(cats)).Msg("Backed up catalogs")

	for i, c := range after {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !changed[i] {
			continue
		}
		if err := writeCatalog(snap, c); err != nil {
			return res, err
		}
		res.Written = append(res.Written, c.Path)
		p.log.Info().Str("locale", c.Name()).Str("summary", res.Catalogs[i].Summary()).Msg("Rewrote catalog")
	}

	applied, err := rw.Apply(ctx, plan, snap.Guard)
	if applied != nil {
		res.Skipped = append(res.Skipped, applied.Skipped...)
		res.Summary.Touched = len(applied.Touched)
		res.Summary.Sites = applied.Sites
	}
	res.Summary.Skipped = len(res.Skipped)
	res.Summary.UnusedRefs = len(res.UnusedRefs)
	for _, w := range res.Skipped {
		p.log.Warn().Err(w.Err).Str("file", p.rel(w.Path)).Msg("Skipped source file")
	}
	if err != nil {
		return res, err
	}

	res.Report = report.Verify(cats, after, model, opts)
	return res, nil
}

// writeCatalog writes a catalog that snap must already cover.
func writeCatalog(snap *backup.Snapshot, c report.Catalog) error {
	if !snap.Covers(c.Path) {
		return &backup.BackupFailure{Path: c.Path, Err: fmt.Errorf("not in snapshot %s", snap.Name)}
	}
	return writeFile(c.File, c.Path)
}

func writeFile(f *arbfile.File, path string) error {
	if err := f.WriteFile(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
