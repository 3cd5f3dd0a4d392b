package rewrite

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/minios-linux/keyfold/atomicfile"
)

// SourceReference is one key reference in a source file.
type SourceReference struct {
	File  string
	Line  int
	Key   string
	Idiom string
}

func (r SourceReference) String() string {
	return fmt.Sprintf("%s:%d: %s (%s)", r.File, r.Line, r.Key, r.Idiom)
}

// IOWarning reports a source file that could not be read or written. The
// file is skipped and the batch continues.
type IOWarning struct {
	Path string
	Err  error
}

func (w IOWarning) Error() string { return fmt.Sprintf("%s: %v", w.Path, w.Err) }

func (w IOWarning) Unwrap() error { return w.Err }

// FileChange is the planned new content of one file.
type FileChange struct {
	Path     string
	original []byte
	updated  []byte
	mode     os.FileMode
	// Sites are the rewritten references, keyed by the old key.
	Sites []SourceReference
}

// Updated returns the planned content.
func (c FileChange) Updated() []byte { return c.updated }

// Plan is the outcome of the read-only phase.
type Plan struct {
	Scanned int
	Changes []FileChange
	// UnusedRefs are references to keys flagged unused. They are reported
	// and never rewritten or removed.
	UnusedRefs []SourceReference
	Warnings   []IOWarning
}

// Sites returns the number of planned reference rewrites.
func (p *Plan) Sites() int {
	n := 0
	for _, c := range p.Changes {
		n += len(c.Sites)
	}
	return n
}

// Rewriter renames keys at their call sites.
type Rewriter struct {
	idioms   []*Idiom
	patterns map[string][]*regexp.Regexp
}

// New returns a Rewriter for idioms. Nil means DefaultIdioms.
func New(idioms []*Idiom) *Rewriter {
	if idioms == nil {
		idioms = DefaultIdioms()
	}
	return &Rewriter{idioms: idioms, patterns: make(map[string][]*regexp.Regexp)}
}

// Idioms returns the idioms in use.
func (r *Rewriter) Idioms() []*Idiom { return r.idioms }

func (r *Rewriter) patternsFor(key string) []*regexp.Regexp {
	if p, ok := r.patterns[key]; ok {
		return p
	}
	p := make([]*regexp.Regexp, len(r.idioms))
	for i, id := range r.idioms {
		p[i] = id.Pattern(key)
	}
	r.patterns[key] = p
	return p
}

// RewriteContent applies renames (old key → new key) to src. It returns
// the new text and the rewritten sites; File is left empty.
func (r *Rewriter) RewriteContent(src string, renames map[string]string) (string, []SourceReference) {
	olds := make([]string, 0, len(renames))
	for old, nw := range renames {
		if old != nw {
			olds = append(olds, old)
		}
	}
	sort.Strings(olds)

	var sites []SourceReference
	for _, old := range olds {
		if !strings.Contains(src, old) {
			continue
		}
		key := strings.ReplaceAll(renames[old], "$", "$$")
		for i, re := range r.patternsFor(old) {
			repl := "${1}" + key + "${" + strconv.Itoa(re.NumSubexp()) + "}"
			locs := re.FindAllStringIndex(src, -1)
			if len(locs) == 0 {
				continue
			}
			for _, loc := range locs {
				sites = append(sites, SourceReference{
					Line:  lineAt(src, loc[0]),
					Key:   old,
					Idiom: r.idioms[i].Name,
				})
			}
			src = re.ReplaceAllString(src, repl)
		}
	}
	sort.SliceStable(sites, func(i, j int) bool { return sites[i].Line < sites[j].Line })
	return src, sites
}

// References returns every reference to one of keys in src.
func (r *Rewriter) References(src string, keys map[string]bool) []SourceReference {
	var refs []SourceReference
	for _, id := range r.idioms {
		for _, m := range id.KeysIn(src) {
			if keys[m.Key] {
				refs = append(refs, SourceReference{Line: lineAt(src, m.Offset), Key: m.Key, Idiom: id.Name})
			}
		}
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Line < refs[j].Line })
	return refs
}

// Plan reads files and computes their rewritten content without writing.
// Unreadable files become warnings. Keys in unused that are not renamed
// are collected as UnusedRefs.
func (r *Rewriter) Plan(ctx context.Context, files []string, renames map[string]string, unused map[string]bool) (*Plan, error) {
	plan := &Plan{}

	reportable := make(map[string]bool, len(unused))
	for k, flagged := range unused {
		if nw, ok := renames[k]; !flagged || (ok && nw != k) {
			continue
		}
		reportable[k] = true
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return plan, err
		}
		info, err := os.Stat(path)
		if err != nil {
			plan.Warnings = append(plan.Warnings, IOWarning{Path: path, Err: err})
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			plan.Warnings = append(plan.Warnings, IOWarning{Path: path, Err: err})
			continue
		}
		plan.Scanned++
		src := string(data)

		for _, ref := range r.References(src, reportable) {
			ref.File = path
			plan.UnusedRefs = append(plan.UnusedRefs, ref)
		}

		updated, sites := r.RewriteContent(src, renames)
		if len(sites) == 0 {
			continue
		}
		for i := range sites {
			sites[i].File = path
		}
		plan.Changes = append(plan.Changes, FileChange{
			Path:     path,
			original: data,
			updated:  []byte(updated),
			mode:     info.Mode().Perm(),
			Sites:    sites,
		})
	}
	return plan, nil
}

// Guard is consulted before a file is written. A non-nil error skips the
// file.
type Guard func(path string) error

// Result is the outcome of Apply.
type Result struct {
	Scanned int
	Touched []string
	Sites   int
	Skipped []IOWarning
}

// Apply writes the planned changes. Each file is written atomically, and
// only if guard allows it and the file has not changed since it was
// planned. Failures skip the file and are returned in Result.Skipped.
func (r *Rewriter) Apply(ctx context.Context, plan *Plan, guard Guard) (*Result, error) {
	res := &Result{Scanned: plan.Scanned}
	for _, c := range plan.Changes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if guard != nil {
			if err := guard(c.Path); err != nil {
				res.Skipped = append(res.Skipped, IOWarning{Path: c.Path, Err: err})
				continue
			}
		}
		current, err := os.ReadFile(c.Path)
		if err != nil {
			res.Skipped = append(res.Skipped, IOWarning{Path: c.Path, Err: err})
			continue
		}
		if !bytes.Equal(current, c.original) {
			res.Skipped = append(res.Skipped, IOWarning{Path: c.Path, Err: fmt.Errorf("modified since planning")})
			continue
		}
		if err := atomicfile.WriteFile(c.Path, c.updated, c.mode); err != nil {
			res.Skipped = append(res.Skipped, IOWarning{Path: c.Path, Err: err})
			continue
		}
		res.Touched = append(res.Touched, c.Path)
		res.Sites += len(c.Sites)
	}
	return res, nil
}

func lineAt(s string, offset int) int {
	return strings.Count(s[:offset], "\n") + 1
}
