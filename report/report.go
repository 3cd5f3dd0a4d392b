// Package report compares catalogs with a mapping and describes the drift
// between them. It never modifies anything.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minios-linux/keyfold/arbfile"
	"github.com/minios-linux/keyfold/consolidate"
	"github.com/minios-linux/keyfold/mapping"
)

// DriftKind classifies a DriftWarning.
type DriftKind string

const (
	// DriftUnmapped: catalog keys with no entry in the mapping.
	DriftUnmapped DriftKind = "unmapped"
	// DriftStale: mapping keys absent from the catalog.
	DriftStale DriftKind = "stale"
	// DriftMissing: keys other catalogs have and this one lacks.
	DriftMissing DriftKind = "missing"
	// DriftOrphanMeta: "@key" metadata without its content key.
	DriftOrphanMeta DriftKind = "orphan-metadata"
)

// DriftWarning is a key-set mismatch in one catalog.
type DriftWarning struct {
	Locale string
	Kind   DriftKind
	Keys   []string
}

func (w DriftWarning) Error() string {
	return fmt.Sprintf("%s: %d %s key(s): %s", w.Locale, len(w.Keys), w.Kind, strings.Join(w.Keys, ", "))
}

// Catalog is one loaded catalog.
type Catalog struct {
	Path string
	// Locale overrides File.Locale() for catalogs without @@locale.
	Locale string
	File   *arbfile.File
}

// Name returns the catalog's locale.
func (c Catalog) Name() string {
	if c.Locale != "" {
		return c.Locale
	}
	return c.File.Locale()
}

// LocaleReport holds the figures for one catalog.
type LocaleReport struct {
	Locale     string
	Path       string
	Original   int
	Final      int
	Unmapped   []string
	Stale      []string
	Missing    []string
	OrphanMeta []string
}

// Reduction is the share of keys removed, in percent.
func (l LocaleReport) Reduction() float64 {
	if l.Original == 0 {
		return 0
	}
	return float64(l.Original-l.Final) * 100 / float64(l.Original)
}

// Report is the consistency report over all catalogs.
type Report struct {
	Locales   []LocaleReport
	Conflicts []mapping.Conflict
}

// Warnings returns one DriftWarning per non-empty drift list.
func (r *Report) Warnings() []DriftWarning {
	var out []DriftWarning
	for _, l := range r.Locales {
		for _, d := range []struct {
			kind DriftKind
			keys []string
		}{
			{DriftUnmapped, l.Unmapped},
			{DriftStale, l.Stale},
			{DriftMissing, l.Missing},
			{DriftOrphanMeta, l.OrphanMeta},
		} {
			if len(d.keys) > 0 {
				out = append(out, DriftWarning{Locale: l.Locale, Kind: d.kind, Keys: d.keys})
			}
		}
	}
	return out
}

// HasDrift reports whether any catalog drifted.
func (r *Report) HasDrift() bool {
	return len(r.Warnings()) > 0
}

// Preview reports what applying m to catalogs would do, without writing.
// Replaced keys already folded into their canonical are not stale.
func Preview(catalogs []Catalog, m *mapping.Model, opts consolidate.Options) *Report {
	r := &Report{Conflicts: m.Conflicts()}
	union := keyUnion(catalogs)
	for _, c := range catalogs {
		_, res := consolidate.Consolidate(c.File, m, opts)
		l := LocaleReport{
			Locale:     c.Name(),
			Path:       c.Path,
			Original:   res.Original,
			Final:      res.Final,
			Unmapped:   unmapped(c.File, m),
			Stale:      stale(c.File, m, folded(c.File, m)),
			Missing:    missing(c.File, union),
			OrphanMeta: c.File.OrphanMetadata(),
		}
		r.Locales = append(r.Locales, l)
	}
	return r
}

// Verify reports on catalogs after an apply. before holds the catalogs as
// they were, after the rewritten ones, in the same order. Mapping keys
// that were expected to disappear are not reported stale.
func Verify(before, after []Catalog, m *mapping.Model, opts consolidate.Options) *Report {
	r := &Report{Conflicts: m.Conflicts()}
	gone := func(key string) bool {
		return m.Resolve(key) != key || (opts.RemoveUnused && m.IsUnused(key))
	}
	union := keyUnion(after)
	for i, c := range after {
		l := LocaleReport{
			Locale:     c.Name(),
			Path:       c.Path,
			Final:      c.File.Len(),
			Unmapped:   unmapped(c.File, m),
			Stale:      stale(c.File, m, gone),
			Missing:    missing(c.File, union),
			OrphanMeta: c.File.OrphanMetadata(),
		}
		if i < len(before) {
			l.Original = before[i].File.Len()
		}
		r.Locales = append(r.Locales, l)
	}
	return r
}

// folded reports replaced keys that an earlier apply already removed:
// the key is gone but its canonical is present.
func folded(f *arbfile.File, m *mapping.Model) func(string) bool {
	return func(key string) bool {
		c := m.Resolve(key)
		return c != key && f.Has(c)
	}
}

func keyUnion(catalogs []Catalog) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, c := range catalogs {
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

func unmapped(f *arbfile.File, m *mapping.Model) []string {
	var keys []string
	for _, k := range f.Keys() {
		if !m.Has(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func stale(f *arbfile.File, m *mapping.Model, skip func(string) bool) []string {
	var keys []string
	for _, k := range m.Keys() {
		if f.Has(k) || (skip != nil && skip(k)) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func missing(f *arbfile.File, union []string) []string {
	var keys []string
	for _, k := range union {
		if !f.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// maxListed caps the keys printed per drift line.
const maxListed = 10

// Write prints the report as a table followed by the drift details.
func (r *Report) Write(w io.Writer) {
	fmt.Fprintf(w, "%-10s %-10s %-10s %-10s %-10s %-10s\n", "Locale", "Original", "Final", "Reduction", "Unmapped", "Stale")
	fmt.Fprintln(w, strings.Repeat("─", 64))
	for _, l := range r.Locales {
		fmt.Fprintf(w, "%-10s %-10d %-10d %-10s %-10d %-10d\n",
			l.Locale, l.Original, l.Final, fmt.Sprintf("%.1f%%", l.Reduction()), len(l.Unmapped), len(l.Stale))
	}
	fmt.Fprintln(w, strings.Repeat("─", 64))

	for _, c := range r.Conflicts {
		fmt.Fprintf(w, "conflict: %s claimed by %s and %s (line %d), %s wins\n", c.Key, c.Previous, c.Winner, c.Line, c.Winner)
	}
	for _, d := range r.Warnings() {
		keys := d.Keys
		more := ""
		if len(keys) > maxListed {
			more = fmt.Sprintf(" (+%d more)", len(keys)-maxListed)
			keys = keys[:maxListed]
		}
		fmt.Fprintf(w, "%s: %s: %s%s\n", d.Locale, d.Kind, strings.Join(keys, ", "), more)
	}
}
