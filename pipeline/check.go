package pipeline

import (
	"context"

	"github.com/minios-linux/keyfold/backup"
	"github.com/minios-linux/keyfold/consolidate"
	"github.com/minios-linux/keyfold/mapping"
	"github.com/minios-linux/keyfold/report"
)

// Check reports drift between the catalogs and the mapping without
// changing anything.
func (p *Pipeline) Check(ctx context.Context) (*report.Report, error) {
	model, warnings, err := mapping.ParseFile(p.cfg.AbsMappingFile())
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		p.log.Warn().Int("line", w.Line).Str("text", w.Text).Msg(w.Reason)
	}
	cats, err := p.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}
	rep := report.Preview(cats, model, consolidate.Options{RemoveUnused: p.cfg.RemoveUnused})
	for _, w := range rep.Warnings() {
		p.log.Warn().Str("locale", w.Locale).Str("kind", string(w.Kind)).Int("keys", len(w.Keys)).Msg("Drift")
	}
	return rep, nil
}

// SortResult is the outcome of Sort.
type SortResult struct {
	Sorted   []string // catalogs rewritten
	Snapshot *backup.Snapshot
}

// Sort orders the keys of every catalog case-insensitively. Catalogs that
// are already sorted are left alone; the others are backed up first.
func (p *Pipeline) Sort(ctx context.Context) (*SortResult, error) {
	cats, err := p.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}

	res := &SortResult{}
	var pending []report.Catalog
	for _, c := range cats {
		sorted := c.File.Sorted()
		same, err := marshalEqual(c.File, sorted)
		if err != nil {
			return nil, err
		}
		if !same {
			pending = append(pending, report.Catalog{Path: c.Path, Locale: c.Locale, File: sorted})
		}
	}
	if len(pending) == 0 || p.cfg.DryRun {
		for _, c := range pending {
			res.Sorted = append(res.Sorted, c.Path)
		}
		return res, nil
	}

	snap, err := p.backups.Begin()
	if err != nil {
		return nil, err
	}
	res.Snapshot = snap
	for _, c := range pending {
		if err := snap.Add(c.Path); err != nil {
			snap.Seal()
			return nil, err
		}
	}
	if err := snap.Seal(); err != nil {
		return nil, err
	}
	for _, c := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := writeCatalog(snap, c); err != nil {
			return res, err
		}
		res.Sorted = append(res.Sorted, c.Path)
		p.log.Info().Str("locale", c.Name()).Msg("Sorted catalog")
	}
	return res, nil
}
