package mapping

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/minios-linux/keyfold/config"
)

// ParseWarning is an unrecognized or misplaced mapping line. The line is
// skipped and parsing continues.
type ParseWarning struct {
	Line   int
	Text   string
	Reason string
}

func (w ParseWarning) Error() string {
	return fmt.Sprintf("line %d: %s: %q", w.Line, w.Reason, w.Text)
}

type state int

const (
	stateNormal state = iota
	stateReplacementGroup
	stateUnusedSection
)

func (s state) String() string {
	switch s {
	case stateReplacementGroup:
		return "replacement-group"
	case stateUnusedSection:
		return "unused-section"
	default:
		return "normal"
	}
}

// parser holds the state machine.
type parser struct {
	model    *Model
	warnings []ParseWarning

	state state
	// canonical is the active canonical key in stateReplacementGroup.
	canonical string
	// lastTop is the previous non-indented key in any state.
	lastTop string
}

// Parse reads a mapping from r. Warnings for skipped lines are returned
// alongside the model; only read errors are fatal.
func Parse(r io.Reader) (*Model, []ParseWarning, error) {
	p := &parser{model: NewModel()}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		text := sc.Text()
		if n == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		p.line(n, strings.TrimRight(text, "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading mapping: %w", err)
	}
	return p.model, p.warnings, nil
}

// ParseFile reads the mapping file at path. A missing or unreadable file
// is a *config.ConfigurationError.
func ParseFile(path string) (*Model, []ParseWarning, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, config.Errorf(path, "mapping file not found (run `keyfold analyze` first)")
		}
		return nil, nil, &config.ConfigurationError{Path: path, Err: err}
	}
	defer f.Close()

	m, warnings, err := Parse(f)
	if err != nil {
		return nil, nil, &config.ConfigurationError{Path: path, Err: err}
	}
	return m, warnings, nil
}

func (p *parser) warn(n int, text, reason string) {
	p.warnings = append(p.warnings, ParseWarning{Line: n, Text: text, Reason: reason})
}

func (p *parser) line(n int, raw string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return
	}

	if strings.HasPrefix(trimmed, "#") {
		p.marker(trimmed)
		return
	}

	key, ok := splitKey(trimmed)
	if !ok {
		p.warn(n, raw, "not a \"key: value\" line")
		return
	}

	// Indentation is judged on the raw line.
	if raw[0] == ' ' || raw[0] == '\t' {
		p.indented(n, raw, key)
		return
	}
	p.topLevel(key)
}

func (p *parser) marker(comment string) {
	if alias, ok := legacyMarkers[comment]; ok {
		comment = alias
	}
	switch comment {
	case MarkerReplacement:
		p.state = stateReplacementGroup
	case MarkerStandalone:
		p.state = stateNormal
	case MarkerUnused:
		p.state = stateUnusedSection
	default:
		return
	}
	p.canonical = ""
	p.lastTop = ""
}

func (p *parser) topLevel(key string) {
	p.lastTop = key
	switch p.state {
	case stateReplacementGroup:
		p.canonical = key
		p.model.Add(key)
	case stateUnusedSection:
		p.model.MarkUnused(key)
	default:
		p.model.Add(key)
	}
}

func (p *parser) indented(n int, raw, key string) {
	if key == p.lastTop {
		return // self-reference
	}
	if p.state != stateReplacementGroup || p.canonical == "" {
		p.warn(n, raw, fmt.Sprintf("indented key outside a replacement group (%s)", p.state))
		return
	}
	p.model.Assign(key, p.canonical, n)
}

// splitKey extracts the key of a "key: value" or "key:" line.
func splitKey(line string) (string, bool) {
	var key string
	if i := strings.Index(line, ": "); i >= 0 {
		key = line[:i]
	} else if strings.HasSuffix(line, ":") {
		key = line[:len(line)-1]
	} else {
		return "", false
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, " \t") || strings.HasPrefix(key, "@") {
		return "", false
	}
	return key, true
}
