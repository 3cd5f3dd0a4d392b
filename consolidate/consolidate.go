// Package consolidate rewrites one catalog according to a mapping: replaced
// keys fold into their canonical key and, optionally, unused keys are
// dropped.
package consolidate

import (
	"fmt"

	"github.com/minios-linux/keyfold/arbfile"
	"github.com/minios-linux/keyfold/mapping"
)

// Options controls consolidation.
type Options struct {
	// RemoveUnused drops keys the mapping flags unused.
	RemoveUnused bool
}

// Result counts what happened to one catalog.
type Result struct {
	Locale   string
	Original int
	Final    int
	// Replaced are keys folded into another key.
	Replaced []string
	// RemovedUnused are keys dropped because they were flagged unused.
	RemovedUnused []string
	// Fallbacks are canonical keys missing from this catalog whose value
	// was taken from the replaced key instead.
	Fallbacks []string
	// DroppedMeta are orphan "@key" entries that were not carried over.
	DroppedMeta []string
}

// Changed reports whether the catalog content changed.
func (r Result) Changed() bool {
	return len(r.Replaced) > 0 || len(r.RemovedUnused) > 0 || len(r.DroppedMeta) > 0
}

// Consolidate builds the consolidated version of f. f is not modified.
//
// Keys are visited in catalog order. Each key resolves to its canonical key;
// the first key resolving to a canonical emits it, later ones are dropped.
// The emitted value is the canonical key's own value in f, or the visiting
// key's value when the canonical is missing from this catalog.
func Consolidate(f *arbfile.File, m *mapping.Model, opts Options) (*arbfile.File, Result) {
	out := f.Blank()
	res := Result{Locale: f.Locale(), Original: f.Len()}

	// A canonical that still absorbs live keys is never removed, even when
	// it is flagged unused itself: references are rewritten onto it.
	absorbing := make(map[string]bool)
	for _, key := range f.Keys() {
		if c := m.Resolve(key); c != key && !(opts.RemoveUnused && m.IsUnused(key)) {
			absorbing[c] = true
		}
	}

	// Globals keep their place among the content keys.
	for _, key := range f.Order() {
		if arbfile.IsGlobal(key) {
			raw, _ := f.Global(key)
			out.AddGlobal(key, raw)
			continue
		}
		if !f.Has(key) {
			continue // metadata follows its content key
		}
		if opts.RemoveUnused && m.IsUnused(key) && !absorbing[key] {
			res.RemovedUnused = append(res.RemovedUnused, key)
			continue
		}

		canonical := m.Resolve(key)
		if canonical != key {
			res.Replaced = append(res.Replaced, key)
		}
		if out.Has(canonical) {
			continue
		}

		source := canonical
		if !f.Has(canonical) {
			source = key
			res.Fallbacks = append(res.Fallbacks, canonical)
		}
		out.AddFrom(f, source, canonical)
		if meta, ok := f.Meta(source); ok {
			out.AddMeta(canonical, meta)
		}
	}

	for _, k := range f.OrphanMetadata() {
		res.DroppedMeta = append(res.DroppedMeta, k)
	}
	res.Final = out.Len()
	return out, res
}

// Summary renders a one-line description of r.
func (r Result) Summary() string {
	return fmt.Sprintf("%s: %d -> %d keys (replaced %d, removed %d, fallbacks %d)",
		r.Locale, r.Original, r.Final, len(r.Replaced), len(r.RemovedUnused), len(r.Fallbacks))
}
