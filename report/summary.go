package report

import (
	"fmt"
	"io"
)

// Summary is printed at the end of every apply, whatever happened.
type Summary struct {
	Replaced int // catalog keys folded into another key
	Removed  int // unused keys removed
	Touched  int // source files rewritten
	Sites    int // reference sites rewritten
	Skipped  int // source files skipped on error
	// UnusedRefs counts references to unused keys left in place.
	UnusedRefs int
	Snapshot   string
	DryRun     bool
}

// Write prints the summary.
func (s Summary) Write(w io.Writer) {
	prefix := ""
	if s.DryRun {
		prefix = "[dry-run] "
	}
	fmt.Fprintf(w, "%sreplaced: %d, removed: %d, touched: %d (%d sites), skipped: %d\n",
		prefix, s.Replaced, s.Removed, s.Touched, s.Sites, s.Skipped)
	if s.UnusedRefs > 0 {
		fmt.Fprintf(w, "%sreferences to unused keys left in place: %d\n", prefix, s.UnusedRefs)
	}
	if s.Snapshot != "" {
		fmt.Fprintf(w, "backup: %s\n", s.Snapshot)
	}
}
