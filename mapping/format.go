package mapping

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minios-linux/keyfold/atomicfile"
	"github.com/minios-linux/keyfold/cluster"
)

// Section markers. A marker line switches the parser state.
const (
	MarkerReplacement = "# === REPLACEMENT GROUPS ==="
	MarkerStandalone  = "# === STANDALONE KEYS ==="
	MarkerUnused      = "# === UNUSED KEYS ==="
)

// Older mapping files used these markers; they are still accepted.
var legacyMarkers = map[string]string{
	"# 以下键替代了其他键":  MarkerReplacement,
	"# 以下是普通键":     MarkerStandalone,
	"# 未替代其他键":     MarkerStandalone,
	"# 以下是未使用的键":   MarkerUnused,
}

// WriteOptions controls what Write prints next to each key.
type WriteOptions struct {
	// Locale names the catalog the values come from.
	Locale string
	// Values are shown after each key for reference. Missing keys print an
	// empty value.
	Values map[string]string
	// Groups annotate replacement groups with their reason and score.
	Groups []cluster.Group
	// Disagreements are listed as comments in the header.
	Disagreements []cluster.Disagreement
}

// Write serializes m in the editable mapping format.
func Write(w io.Writer, m *Model, opts WriteOptions) error {
	bw := bufio.NewWriter(w)

	repl := m.Replacements()
	canonicals := m.Canonicals()
	replaced := make(map[string]bool)
	for _, keys := range repl {
		for _, k := range keys {
			replaced[k] = true
		}
	}

	var standalone, unused []string
	for _, k := range sortedKeys(m) {
		if replaced[k] {
			continue
		}
		if m.IsUnused(k) {
			// An unused canonical is listed in its group and here.
			unused = append(unused, k)
			if _, ok := repl[k]; !ok {
				continue
			}
		}
		if _, ok := repl[k]; !ok {
			standalone = append(standalone, k)
		}
	}

	groupInfo := make(map[string]cluster.Group, len(opts.Groups))
	for _, g := range opts.Groups {
		groupInfo[g.Canonical] = g
	}

	line := func(key string) string {
		return key + ": " + escapeValue(opts.Values[key])
	}

	fmt.Fprintln(bw, "# keyfold key mapping")
	fmt.Fprintln(bw, "#")
	fmt.Fprintln(bw, "# Review this plan, then run `keyfold apply`.")
	fmt.Fprintln(bw, "#   - Each top-level \"key: value\" under REPLACEMENT GROUPS is a canonical key.")
	fmt.Fprintln(bw, "#     The indented keys below it are folded into it.")
	fmt.Fprintln(bw, "#   - Delete an indented line, or move it to STANDALONE KEYS, to keep that key.")
	fmt.Fprintln(bw, "#   - Keys under UNUSED KEYS are removed by `keyfold apply --remove-unused`.")
	fmt.Fprintln(bw, "#   - Values are shown for reference only and are never read back.")
	fmt.Fprintln(bw, "#")
	if opts.Locale != "" {
		fmt.Fprintf(bw, "# Locale: %s\n", opts.Locale)
	}
	fmt.Fprintf(bw, "# Keys: %d, groups: %d, replaced: %d, standalone: %d, unused: %d\n",
		m.Len(), len(canonicals), len(replaced), len(standalone), len(unused))
	if len(opts.Disagreements) > 0 {
		fmt.Fprintln(bw, "#")
		fmt.Fprintln(bw, "# Not merged, locales disagree:")
		for _, d := range opts.Disagreements {
			fmt.Fprintf(bw, "#   [%s] %s\n", d.Locale, strings.Join(d.Keys, ", "))
		}
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, MarkerReplacement)
	for _, c := range canonicals {
		fmt.Fprintln(bw)
		if g, ok := groupInfo[c]; ok {
			if g.Reason == cluster.ReasonSimilar {
				fmt.Fprintf(bw, "# %s (%.2f)\n", g.Reason, g.Score)
			} else {
				fmt.Fprintf(bw, "# %s\n", g.Reason)
			}
		}
		fmt.Fprintln(bw, line(c))
		fmt.Fprintln(bw, "  "+line(c))
		for _, k := range repl[c] {
			fmt.Fprintln(bw, "  "+line(k))
		}
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, MarkerStandalone)
	fmt.Fprintln(bw)
	for _, k := range standalone {
		fmt.Fprintln(bw, line(k))
	}

	fmt.Fprintln(bw)
	fmt.Fprintln(bw, MarkerUnused)
	fmt.Fprintln(bw)
	for _, k := range unused {
		fmt.Fprintln(bw, line(k))
	}

	return bw.Flush()
}

// WriteFile writes m to path, creating parent directories.
func WriteFile(path string, m *Model, opts WriteOptions) error {
	var b strings.Builder
	if err := Write(&b, m, opts); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	return atomicfile.WriteFile(path, []byte(b.String()), 0644)
}

func sortedKeys(m *Model) []string {
	keys := m.Keys()
	sort.Strings(keys)
	return keys
}

var valueEscaper = strings.NewReplacer("\\", "\\\\", "\n", "\\n", "\r", "\\r", "\t", "\\t")

// escapeValue keeps a value on one line.
func escapeValue(v string) string {
	return valueEscaper.Replace(v)
}
