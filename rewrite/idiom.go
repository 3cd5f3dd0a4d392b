// Package rewrite renames localization keys at their call sites.
//
// A call site is recognized by an accessor idiom: a prefix expression such
// as `AppLocalizations.of(context)!.` directly followed by the key name.
// Each rename compiles a key-specific pattern that must be followed by a
// character that cannot continue a Dart identifier, so renaming "add" never
// touches "addAll" or "add$1".
package rewrite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/minios-linux/keyfold/config"
)

// Idiom is one accessor style.
type Idiom struct {
	Name string
	// prefix matches the accessor up to and including the dot before the key.
	prefix *regexp.Regexp
	// render is the canonical accessor text with %s for the key.
	render string

	keys *regexp.Regexp
}

// NewIdiom compiles an idiom. prefix is a regular expression; render is a
// format string with one %s for the key. An empty render defaults to "%s".
func NewIdiom(name, prefix, render string) (*Idiom, error) {
	re, err := regexp.Compile(prefix)
	if err != nil {
		return nil, fmt.Errorf("idiom %q: invalid prefix: %w", name, err)
	}
	if render == "" {
		render = "%s"
	}
	if strings.Count(render, "%s") != 1 {
		return nil, fmt.Errorf("idiom %q: render must contain exactly one %%s", name)
	}
	keys, err := regexp.Compile(`(` + prefix + `)([A-Za-z_$][A-Za-z0-9_$]*)`)
	if err != nil {
		return nil, fmt.Errorf("idiom %q: %w", name, err)
	}
	return &Idiom{Name: name, prefix: re, render: render, keys: keys}, nil
}

// MustIdiom is NewIdiom that panics on error.
func MustIdiom(name, prefix, render string) *Idiom {
	i, err := NewIdiom(name, prefix, render)
	if err != nil {
		panic(err)
	}
	return i
}

// Pattern returns the expression matching a reference to key through this
// idiom. Group 1 is the accessor prefix; the last group is the character
// after the key, empty at the end of input.
func (i *Idiom) Pattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(` + i.prefix.String() + `)` + regexp.QuoteMeta(key) + identEnd)
}

// identEnd matches what may follow a complete Dart identifier.
const identEnd = `([^A-Za-z0-9_$]|$)`

// Render returns the canonical accessor text for key.
func (i *Idiom) Render(key string) string {
	return fmt.Sprintf(i.render, key)
}

// KeysIn returns every key referenced through this idiom in src, with the
// byte offset of the key.
func (i *Idiom) KeysIn(src string) []Match {
	var out []Match
	for _, loc := range i.keys.FindAllStringSubmatchIndex(src, -1) {
		// The key is always the last group.
		k := len(loc) - 2
		out = append(out, Match{Key: src[loc[k]:loc[k+1]], Offset: loc[k]})
	}
	return out
}

// Match is a key found in source text.
type Match struct {
	Key    string
	Offset int
}

// DefaultIdioms returns the Flutter accessor idioms.
func DefaultIdioms() []*Idiom {
	return []*Idiom{
		MustIdiom("context-scoped", `AppLocalizations\.of\(\s*context\s*\)!?\.`, "AppLocalizations.of(context)!.%s"),
		MustIdiom("localization-object", `\bl10n\.`, "l10n.%s"),
		MustIdiom("static-accessor", `\bS\.(?:current|of\(\s*context\s*\))\.`, "S.current.%s"),
	}
}

// IdiomsFromConfig returns the default idioms followed by the custom ones.
func IdiomsFromConfig(specs []config.IdiomSpec) ([]*Idiom, error) {
	idioms := DefaultIdioms()
	for _, s := range specs {
		i, err := NewIdiom(s.Name, s.Prefix, s.Render)
		if err != nil {
			return nil, config.Errorf("", "%v", err)
		}
		idioms = append(idioms, i)
	}
	return idioms, nil
}
