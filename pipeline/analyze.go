package pipeline

import (
	"context"
	"fmt"

	"github.com/minios-linux/keyfold/cluster"
	"github.com/minios-linux/keyfold/mapping"
	"github.com/minios-linux/keyfold/report"
	"github.com/minios-linux/keyfold/usage"
)

// AnalyzeResult is the outcome of Analyze.
type AnalyzeResult struct {
	Locales       []string
	Keys          int
	Groups        []cluster.Group
	Disagreements []cluster.Disagreement
	Unused        int
	MappingFile   string
	Model         *mapping.Model
}

// Replaced counts keys that the proposed mapping folds away.
func (r *AnalyzeResult) Replaced() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Keys) - 1
	}
	return n
}

// Analyze clusters the catalogs and writes the proposed mapping for review.
// With scanUnused the usage scan runs first; otherwise the unused-keys list
// from a previous scan is used when present.
func (p *Pipeline) Analyze(ctx context.Context, scanUnused bool) (*AnalyzeResult, error) {
	cats, err := p.loadCatalogs(ctx)
	if err != nil {
		return nil, err
	}

	var unused map[string]bool
	if scanUnused {
		rep, err := p.ScanUnused(ctx)
		if err != nil {
			return nil, err
		}
		unused = rep.UnusedSet()
	} else {
		unused, err = usage.ReadListFile(p.cfg.AbsUnusedKeysFile())
		if err != nil {
			return nil, fmt.Errorf("reading unused keys list: %w", err)
		}
	}

	locales := make([]cluster.Locale, len(cats))
	names := make([]string, len(cats))
	for i, c := range cats {
		locales[i] = cluster.Locale{Name: c.Name(), Values: c.File.SourceValues()}
		names[i] = c.Name()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := cluster.Cluster(locales, cluster.Options{
		Threshold:  p.cfg.Threshold,
		Metric:     p.metric,
		Normalize:  cluster.GetNormalizer(p.cfg.Normalize),
		Unused:     unused,
		PreferUsed: p.cfg.PreferUsed,
	})
	for _, d := range res.Disagreements {
		p.log.Warn().Str("locale", d.Locale).Strs("keys", d.Keys).Msg("Locales disagree, group not merged")
	}

	// Only keys present in some catalog are flagged.
	known := make(map[string]bool, len(unused))
	for _, k := range res.Keys {
		if unused[k] {
			known[k] = true
		}
	}
	model := mapping.FromClusters(res, known)

	primary := cats[0]
	path := p.cfg.AbsMappingFile()
	if !p.cfg.DryRun {
		err := mapping.WriteFile(path, model, mapping.WriteOptions{
			Locale:        primary.Name(),
			Values:        referenceValues(cats),
			Groups:        res.Groups,
			Disagreements: res.Disagreements,
		})
		if err != nil {
			return nil, fmt.Errorf("writing mapping: %w", err)
		}
	}

	out := &AnalyzeResult{
		Locales:       names,
		Keys:          len(res.Keys),
		Groups:        res.Groups,
		Disagreements: res.Disagreements,
		Unused:        len(known),
		MappingFile:   path,
		Model:         model,
	}
	p.log.Info().
		Strs("locales", names).
		Int("keys", out.Keys).
		Int("groups", len(out.Groups)).
		Int("replaced", out.Replaced()).
		Int("unused", out.Unused).
		Str("mapping", p.rel(path)).
		Msg("Analysis complete")
	return out, nil
}

// referenceValues returns the primary catalog's values, filled in from the
// other catalogs for keys the primary lacks.
func referenceValues(cats []report.Catalog) map[string]string {
	values := make(map[string]string)
	for i := len(cats) - 1; i >= 0; i-- {
		for k, v := range cats[i].File.SourceValues() {
			values[k] = v
		}
	}
	return values
}
