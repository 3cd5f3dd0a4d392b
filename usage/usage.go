// Package usage finds catalog keys that no source file references.
package usage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/minios-linux/keyfold/atomicfile"
	"github.com/minios-linux/keyfold/rewrite"
)

// Report is the result of a usage scan.
type Report struct {
	Scanned int
	// Counts holds the reference count of every catalog key.
	Counts map[string]int
	// Unused are keys with no reference that no keep pattern protects,
	// sorted.
	Unused []string
	// Kept are unreferenced keys protected by a keep pattern, sorted.
	Kept     []string
	Warnings []rewrite.IOWarning
}

// UnusedSet returns Unused as a set.
func (r *Report) UnusedSet() map[string]bool {
	set := make(map[string]bool, len(r.Unused))
	for _, k := range r.Unused {
		set[k] = true
	}
	return set
}

// Scanner counts key references through accessor idioms.
type Scanner struct {
	idioms []*rewrite.Idiom
	keep   []glob.Glob
}

// NewScanner returns a Scanner. keep holds glob patterns for keys that
// must never be reported unused (keys built dynamically, for example).
func NewScanner(idioms []*rewrite.Idiom, keep []string) (*Scanner, error) {
	if idioms == nil {
		idioms = rewrite.DefaultIdioms()
	}
	s := &Scanner{idioms: idioms}
	for _, p := range keep {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid keep pattern %q: %w", p, err)
		}
		s.keep = append(s.keep, g)
	}
	return s, nil
}

func (s *Scanner) kept(key string) bool {
	for _, g := range s.keep {
		if g.Match(key) {
			return true
		}
	}
	return false
}

// Scan counts references to keys in files.
func (s *Scanner) Scan(ctx context.Context, files []string, keys []string) (*Report, error) {
	rep := &Report{Counts: make(map[string]int, len(keys))}
	for _, k := range keys {
		rep.Counts[k] = 0
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			rep.Warnings = append(rep.Warnings, rewrite.IOWarning{Path: path, Err: err})
			continue
		}
		rep.Scanned++
		src := string(data)
		for _, id := range s.idioms {
			for _, m := range id.KeysIn(src) {
				if _, ok := rep.Counts[m.Key]; ok {
					rep.Counts[m.Key]++
				}
			}
		}
	}

	for k, n := range rep.Counts {
		if n > 0 {
			continue
		}
		if s.kept(k) {
			rep.Kept = append(rep.Kept, k)
		} else {
			rep.Unused = append(rep.Unused, k)
		}
	}
	sort.Strings(rep.Unused)
	sort.Strings(rep.Kept)
	return rep, nil
}

// WriteList writes keys one per line with a comment header.
func WriteList(w io.Writer, keys []string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "# Keys with no reference in the scanned sources.")
	fmt.Fprintln(bw, "# Delete a line to keep that key.")
	for _, k := range keys {
		fmt.Fprintln(bw, k)
	}
	return bw.Flush()
}

// WriteListFile writes the list to path.
func WriteListFile(path string, keys []string) error {
	var b strings.Builder
	if err := WriteList(&b, keys); err != nil {
		return err
	}
	return atomicfile.WriteFile(path, []byte(b.String()), 0644)
}

// ReadList reads a key list: one key per line, blank lines and "#"
// comments ignored.
func ReadList(r io.Reader) (map[string]bool, error) {
	keys := make(map[string]bool)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys[line] = true
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// ReadListFile reads the list at path. A missing file yields an empty set.
func ReadListFile(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	defer f.Close()
	keys, err := ReadList(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return keys, nil
}
