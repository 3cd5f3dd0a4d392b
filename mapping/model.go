// Package mapping holds the consolidation plan: which key each original key
// folds into, and which keys are flagged unused. The plan round-trips
// through an editable text format (see Write and Parse) so a human can
// review it between analyze and apply.
package mapping

import (
	"sort"

	"github.com/minios-linux/keyfold/cluster"
)

// Entry maps one original key to its canonical key.
type Entry struct {
	Key       string
	Canonical string // Key itself when not consolidated
	Unused    bool
}

// Conflict records a key claimed by two canonical keys. The later claim
// wins.
type Conflict struct {
	Key      string
	Previous string
	Winner   string
	Line     int // mapping file line of the winning claim, 0 if not parsed
}

// Model is the set of mapping entries in first-seen order.
type Model struct {
	entries   []Entry
	index     map[string]int
	conflicts []Conflict
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{index: make(map[string]int)}
}

func (m *Model) entry(key string) *Entry {
	idx, ok := m.index[key]
	if !ok {
		m.index[key] = len(m.entries)
		m.entries = append(m.entries, Entry{Key: key, Canonical: key})
		idx = len(m.entries) - 1
	}
	return &m.entries[idx]
}

// Add registers key as mapping to itself unless it already has an entry.
func (m *Model) Add(key string) {
	m.entry(key)
}

// Assign maps key to canonical. If key was already mapped to a different
// canonical, the new claim wins and a Conflict is recorded. line is the
// source line of the claim (0 when not parsed from a file).
func (m *Model) Assign(key, canonical string, line int) {
	e := m.entry(key)
	if e.Canonical != key && e.Canonical != canonical {
		m.conflicts = append(m.conflicts, Conflict{
			Key:      key,
			Previous: e.Canonical,
			Winner:   canonical,
			Line:     line,
		})
	}
	e.Canonical = canonical
	m.entry(canonical)
}

// MarkUnused flags key as unused.
func (m *Model) MarkUnused(key string) {
	m.entry(key).Unused = true
}

// Has reports whether key has an explicit entry.
func (m *Model) Has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// Get returns the entry for key.
func (m *Model) Get(key string) (Entry, bool) {
	idx, ok := m.index[key]
	if !ok {
		return Entry{}, false
	}
	return m.entries[idx], true
}

// IsUnused reports whether key is flagged unused.
func (m *Model) IsUnused(key string) bool {
	idx, ok := m.index[key]
	return ok && m.entries[idx].Unused
}

// Resolve returns the final canonical key for key, following chains where
// a canonical was itself folded into another key. Keys without an entry
// resolve to themselves, and so does a key caught in a cycle.
func (m *Model) Resolve(key string) string {
	seen := map[string]bool{key: true}
	cur := key
	for {
		idx, ok := m.index[cur]
		if !ok {
			return cur
		}
		next := m.entries[idx].Canonical
		if next == cur {
			return cur
		}
		if seen[next] {
			return key
		}
		seen[next] = true
		cur = next
	}
}

// Entries returns a copy of all entries in first-seen order.
func (m *Model) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Keys returns every key with an entry, in first-seen order.
func (m *Model) Keys() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Len returns the number of entries.
func (m *Model) Len() int { return len(m.entries) }

// Replacements returns canonical → replaced keys (resolved, excluding the
// canonical itself). Each slice is sorted.
func (m *Model) Replacements() map[string][]string {
	out := make(map[string][]string)
	for _, e := range m.entries {
		c := m.Resolve(e.Key)
		if c == e.Key {
			continue
		}
		out[c] = append(out[c], e.Key)
	}
	for _, keys := range out {
		sort.Strings(keys)
	}
	return out
}

// Replaced returns every key that resolves to a different key, sorted.
func (m *Model) Replaced() []string {
	var keys []string
	for _, e := range m.entries {
		if m.Resolve(e.Key) != e.Key {
			keys = append(keys, e.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Canonicals returns the keys that replace at least one other key, sorted.
func (m *Model) Canonicals() []string {
	repl := m.Replacements()
	keys := make([]string, 0, len(repl))
	for k := range repl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Unused returns keys flagged unused, in first-seen order.
func (m *Model) Unused() []string {
	var keys []string
	for _, e := range m.entries {
		if e.Unused {
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// Conflicts returns recorded conflicting claims in the order seen.
func (m *Model) Conflicts() []Conflict {
	return append([]Conflict(nil), m.conflicts...)
}

// FromClusters builds a model from clustering output. Every key in res gets
// an entry; group members map to the group canonical; keys in unused are
// flagged.
func FromClusters(res *cluster.Result, unused map[string]bool) *Model {
	m := NewModel()
	for _, k := range res.Keys {
		m.Add(k)
	}
	for _, g := range res.Groups {
		for _, k := range g.Replaced() {
			m.Assign(k, g.Canonical, 0)
		}
	}
	for _, k := range res.Keys {
		if unused[k] {
			m.MarkUnused(k)
		}
	}
	return m
}
