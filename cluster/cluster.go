// Package cluster groups catalog keys whose values are duplicates or
// near-duplicates, and only trusts a grouping that every locale agrees on.
//
// Per locale, keys with byte-identical values are always merged; the
// remaining keys are merged when their similarity reaches the threshold.
// Overlapping merges are resolved by union. The trusted grouping is the
// meet of the per-locale partitions: two keys end up together only if they
// are together in every locale. Candidate groups that some locale splits up
// are reported as disagreements instead of being merged.
package cluster

import (
	"sort"
	"strconv"
	"strings"
)

// DefaultThreshold is the minimum similarity for a near-duplicate merge.
const DefaultThreshold = 0.85

// Reason describes why a group was formed.
type Reason string

const (
	// ReasonIdentical: values are byte-identical in every locale.
	ReasonIdentical Reason = "identical"
	// ReasonSimilar: values are similar above the threshold in every locale.
	ReasonSimilar Reason = "similar"
)

// Locale is one catalog's content values.
type Locale struct {
	Name   string
	Values map[string]string
}

// Options tunes clustering.
type Options struct {
	// Threshold is the minimum similarity in [0,1] (default DefaultThreshold).
	Threshold float64
	// Metric scores similarity (default Ratio).
	Metric Metric
	// Normalize is applied to values before scoring (default NormalizeNFKC).
	Normalize Normalizer
	// Unused holds keys flagged by a usage scan.
	Unused map[string]bool
	// PreferUsed ranks keys not in Unused ahead of the usual tie-break when
	// choosing a canonical key.
	PreferUsed bool
}

// Group is a set of keys considered duplicates.
type Group struct {
	Canonical string
	// Keys holds every member, canonical included, sorted.
	Keys   []string
	Reason Reason
	// Score is the lowest similarity between the canonical value and a
	// member value across all locales.
	Score float64
}

// Replaced returns the members other than the canonical key.
func (g Group) Replaced() []string {
	out := make([]string, 0, len(g.Keys)-1)
	for _, k := range g.Keys {
		if k != g.Canonical {
			out = append(out, k)
		}
	}
	return out
}

// Disagreement is a candidate group from one locale that the other locales
// do not confirm.
type Disagreement struct {
	Locale string
	Keys   []string
}

// Result is the clustering output.
type Result struct {
	// Keys is the sorted union of content keys across locales.
	Keys          []string
	Groups        []Group
	Disagreements []Disagreement
}

// GroupOf returns the group containing key.
func (r *Result) GroupOf(key string) (Group, bool) {
	for _, g := range r.Groups {
		for _, k := range g.Keys {
			if k == key {
				return g, true
			}
		}
	}
	return Group{}, false
}

// Cluster groups the keys of locales.
func Cluster(locales []Locale, opts Options) *Result {
	lengthBound := opts.Metric == nil
	if opts.Metric == nil {
		opts.Metric = Ratio
	}
	if opts.Normalize == nil {
		opts.Normalize = NormalizeNFKC
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}

	keys := universe(locales)
	res := &Result{Keys: keys}
	if len(keys) == 0 || len(locales) == 0 {
		return res
	}

	partitions := make([][]int, len(locales))
	for i, loc := range locales {
		partitions[i] = partition(keys, loc.Values, opts, lengthBound)
	}

	// Meet of all partitions: group by the tuple of component ids.
	bySig := make(map[string][]int)
	var sigOrder []string
	sigOf := make([]string, len(keys))
	for k := range keys {
		var b strings.Builder
		for _, comp := range partitions {
			b.WriteString(strconv.Itoa(comp[k]))
			b.WriteByte(',')
		}
		sig := b.String()
		sigOf[k] = sig
		if _, ok := bySig[sig]; !ok {
			sigOrder = append(sigOrder, sig)
		}
		bySig[sig] = append(bySig[sig], k)
	}

	for _, sig := range sigOrder {
		members := bySig[sig]
		if len(members) < 2 {
			continue
		}
		names := make([]string, len(members))
		for i, m := range members {
			names[i] = keys[m]
		}
		res.Groups = append(res.Groups, newGroup(names, locales, opts))
	}
	sort.Slice(res.Groups, func(i, j int) bool {
		return res.Groups[i].Canonical < res.Groups[j].Canonical
	})

	for li, comp := range partitions {
		for _, members := range components(comp) {
			if len(members) < 2 {
				continue
			}
			agreed := true
			for _, m := range members[1:] {
				if sigOf[m] != sigOf[members[0]] {
					agreed = false
					break
				}
			}
			if agreed {
				continue
			}
			names := make([]string, len(members))
			for i, m := range members {
				names[i] = keys[m]
			}
			res.Disagreements = append(res.Disagreements, Disagreement{
				Locale: locales[li].Name,
				Keys:   names,
			})
		}
	}

	return res
}

// universe returns the sorted union of keys.
func universe(locales []Locale) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, loc := range locales {
		for k := range loc.Values {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// partition clusters keys within one locale and returns the component id
// (lowest member index) of every key. Keys missing from the locale or with
// an empty value stay singletons.
func partition(keys []string, values map[string]string, opts Options, lengthBound bool) []int {
	uf := newUnionFind(len(keys))

	// Step 1: byte-identical values.
	firstByValue := make(map[string]int)
	var reps []int // one index per distinct value, in key order
	for i, k := range keys {
		v, ok := values[k]
		if !ok || v == "" {
			continue
		}
		if first, seen := firstByValue[v]; seen {
			uf.union(first, i)
			continue
		}
		firstByValue[v] = i
		reps = append(reps, i)
	}

	// Step 2: near-duplicates, compared once per distinct value.
	normalized := make([]string, len(reps))
	lengths := make([]int, len(reps))
	for i, r := range reps {
		normalized[i] = opts.Normalize(values[keys[r]])
		lengths[i] = len([]rune(normalized[i]))
	}
	for i := 0; i < len(reps); i++ {
		for j := i + 1; j < len(reps); j++ {
			if uf.find(reps[i]) == uf.find(reps[j]) {
				continue
			}
			if lengthBound {
				// Ratio can never exceed 2*min/(la+lb).
				la, lb := lengths[i], lengths[j]
				if la+lb == 0 || 2*float64(min(la, lb))/float64(la+lb) < opts.Threshold {
					continue
				}
			}
			if opts.Metric(normalized[i], normalized[j]) >= opts.Threshold {
				uf.union(reps[i], reps[j])
			}
		}
	}

	comp := make([]int, len(keys))
	for i := range keys {
		comp[i] = uf.find(i)
	}
	return comp
}

// components lists members per component, ordered by component id.
func components(comp []int) [][]int {
	byRoot := make(map[int][]int)
	var roots []int
	for i, r := range comp {
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], i)
	}
	sort.Ints(roots)
	out := make([][]int, len(roots))
	for i, r := range roots {
		out[i] = byRoot[r]
	}
	return out
}

func newGroup(names []string, locales []Locale, opts Options) Group {
	sort.Strings(names)
	canonical := ChooseCanonical(names, opts.Unused, opts.PreferUsed)

	g := Group{Canonical: canonical, Keys: names, Reason: ReasonIdentical, Score: 1}
	for _, loc := range locales {
		cv := loc.Values[canonical]
		for _, k := range names {
			v := loc.Values[k]
			if v == cv {
				continue
			}
			g.Reason = ReasonSimilar
			if s := opts.Metric(opts.Normalize(cv), opts.Normalize(v)); s < g.Score {
				g.Score = s
			}
		}
	}
	return g
}

// ChooseCanonical picks the representative of keys: fewest
// underscore-separated segments, then shortest, then lexicographically
// smallest. With preferUsed, keys not flagged in unused win first.
func ChooseCanonical(keys []string, unused map[string]bool, preferUsed bool) string {
	if len(keys) == 0 {
		return ""
	}
	best := keys[0]
	for _, k := range keys[1:] {
		if canonicalLess(k, best, unused, preferUsed) {
			best = k
		}
	}
	return best
}

func canonicalLess(a, b string, unused map[string]bool, preferUsed bool) bool {
	if preferUsed && unused[a] != unused[b] {
		return !unused[a]
	}
	if sa, sb := segments(a), segments(b); sa != sb {
		return sa < sb
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func segments(key string) int {
	return strings.Count(key, "_") + 1
}

// ---------------------------------------------------------------------------
// Union-find
// ---------------------------------------------------------------------------

// unionFind keeps the lowest index as the root, so component ids do not
// depend on the order of unions.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
