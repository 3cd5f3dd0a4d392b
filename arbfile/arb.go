// Package arbfile implements reading and writing of Flutter ARB (Application
// Resource Bundle) catalogs.
//
// ARB files are JSON objects with a specific structure:
//
//   - "@@locale" holds the BCP-47 language code (e.g. "en", "zh").
//   - Other "@@" keys are catalog-scoped globals (e.g. "@@last_modified").
//   - Keys starting with a single "@" are metadata for the content key of
//     the same name ("@greeting" describes "greeting").
//   - All other keys are content keys with string values.
//
// Round-trip fidelity: entry order (including the position of @@locale),
// the original string encodings and the presence of a final newline are
// preserved, so a 2-space indented catalog is reproduced byte for byte by
// ParseFile followed by WriteFile. New strings are written with full
// Unicode and no HTML escaping.
package arbfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/minios-linux/keyfold/atomicfile"
)

// LocaleKey is the catalog-scoped key naming the locale.
const LocaleKey = "@@locale"

// ---------------------------------------------------------------------------
// File model
// ---------------------------------------------------------------------------

type kind int

const (
	kindContent kind = iota
	kindMeta         // "@key"
	kindGlobal       // "@@name"
)

// entry is a single key in the ARB file.
type entry struct {
	key      string
	kind     kind
	value    string          // content value
	rawValue json.RawMessage // original JSON bytes
}

// File represents a parsed ARB catalog.
type File struct {
	// locale is the value of @@locale.
	locale string
	// entries stores all keys in document order.
	entries []entry
	// index maps key → index in entries.
	index map[string]int
	// newline is whether the serialized object ends with "\n".
	newline bool
}

// ParseError reports a catalog that cannot be loaded safely.
type ParseError struct {
	Path string
	Key  string
	Err  error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parsing ARB")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " (key %q)", e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewFile returns an empty catalog for locale.
func NewFile(locale string) *File {
	return &File{locale: locale, index: make(map[string]int), newline: true}
}

// Blank returns an empty catalog with f's locale and layout.
func (f *File) Blank() *File {
	out := NewFile(f.locale)
	out.newline = f.newline
	return out
}

func keyKind(key string) kind {
	switch {
	case strings.HasPrefix(key, "@@"):
		return kindGlobal
	case strings.HasPrefix(key, "@"):
		return kindMeta
	default:
		return kindContent
	}
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// ParseFile reads and parses an ARB file from disk.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return f, nil
}

// Parse parses ARB content from a byte slice. Duplicate keys and
// non-string content values are rejected: either would make a rewrite lossy.
func Parse(data []byte) (*File, error) {
	f := NewFile("")
	f.newline = bytes.HasSuffix(data, []byte("\n"))

	// Token streaming keeps document order.
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &ParseError{Err: fmt.Errorf("expected '{', got %v", tok)}
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, &ParseError{Err: fmt.Errorf("expected string key, got %T", keyTok)}
		}

		var rawVal json.RawMessage
		if err := dec.Decode(&rawVal); err != nil {
			return nil, &ParseError{Key: key, Err: err}
		}

		if _, dup := f.index[key]; dup {
			return nil, &ParseError{Key: key, Err: errors.New("duplicate key")}
		}

		e := entry{key: key, kind: keyKind(key), rawValue: rawVal}
		switch e.kind {
		case kindContent:
			if err := json.Unmarshal(rawVal, &e.value); err != nil {
				return nil, &ParseError{Key: key, Err: errors.New("content value is not a string")}
			}
		case kindGlobal:
			if key == LocaleKey {
				if err := json.Unmarshal(rawVal, &f.locale); err != nil {
					return nil, &ParseError{Key: key, Err: errors.New("locale is not a string")}
				}
			}
		}
		f.append(e)
	}

	if _, err := dec.Token(); err != nil {
		return nil, &ParseError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Err: errors.New("trailing data after catalog object")}
	}

	return f, nil
}

func (f *File) append(e entry) {
	f.index[e.key] = len(f.entries)
	f.entries = append(f.entries, e)
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Locale returns the @@locale value.
func (f *File) Locale() string { return f.locale }

// SetLocale sets the @@locale value. A catalog without an @@locale entry
// gets one at the top when marshaled.
func (f *File) SetLocale(locale string) { f.locale = locale }

// Keys returns all content keys in document order.
func (f *File) Keys() []string {
	keys := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		if e.kind == kindContent {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Len returns the number of content keys.
func (f *File) Len() int {
	n := 0
	for _, e := range f.entries {
		if e.kind == kindContent {
			n++
		}
	}
	return n
}

// Has reports whether key is a content key.
func (f *File) Has(key string) bool {
	idx, ok := f.index[key]
	return ok && f.entries[idx].kind == kindContent
}

// Get returns the string value for a content key.
func (f *File) Get(key string) (string, bool) {
	if idx, ok := f.index[key]; ok && f.entries[idx].kind == kindContent {
		return f.entries[idx].value, true
	}
	return "", false
}

// Meta returns the raw "@key" metadata for a content key.
func (f *File) Meta(key string) (json.RawMessage, bool) {
	if idx, ok := f.index["@"+key]; ok && f.entries[idx].kind == kindMeta {
		return f.entries[idx].rawValue, true
	}
	return nil, false
}

// Order returns every entry key (globals, content and "@" metadata) in
// document order.
func (f *File) Order() []string {
	keys := make([]string, len(f.entries))
	for i, e := range f.entries {
		keys[i] = e.key
	}
	return keys
}

// IsGlobal reports whether key names a "@@" entry.
func IsGlobal(key string) bool { return keyKind(key) == kindGlobal }

// Globals returns the "@@" keys in document order.
func (f *File) Globals() []string {
	var keys []string
	for _, e := range f.entries {
		if e.kind == kindGlobal {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// Global returns the raw value of a "@@" key.
func (f *File) Global(key string) (json.RawMessage, bool) {
	if idx, ok := f.index[key]; ok && f.entries[idx].kind == kindGlobal {
		return f.entries[idx].rawValue, true
	}
	return nil, false
}

// SourceValues returns a map of key → value for all content keys.
func (f *File) SourceValues() map[string]string {
	m := make(map[string]string, len(f.index))
	for _, e := range f.entries {
		if e.kind == kindContent {
			m[e.key] = e.value
		}
	}
	return m
}

// OrphanMetadata returns metadata keys ("@key") whose content key does not
// exist, in document order.
func (f *File) OrphanMetadata() []string {
	var orphans []string
	for _, e := range f.entries {
		if e.kind == kindMeta && !f.Has(strings.TrimPrefix(e.key, "@")) {
			orphans = append(orphans, e.key)
		}
	}
	return orphans
}

// ---------------------------------------------------------------------------
// Building
// ---------------------------------------------------------------------------

// Add appends a content key. It returns false if the key already exists.
func (f *File) Add(key, value string) bool {
	if _, ok := f.index[key]; ok || keyKind(key) != kindContent {
		return false
	}
	raw, _ := encodeString(value)
	f.append(entry{key: key, kind: kindContent, value: value, rawValue: raw})
	return true
}

// AddFrom appends key with the value of srcKey in src, keeping its
// original encoding. It returns false if srcKey is not a content key in
// src or key already exists.
func (f *File) AddFrom(src *File, srcKey, key string) bool {
	idx, ok := src.index[srcKey]
	if !ok || src.entries[idx].kind != kindContent {
		return false
	}
	if _, dup := f.index[key]; dup || keyKind(key) != kindContent {
		return false
	}
	e := src.entries[idx]
	f.append(entry{key: key, kind: kindContent, value: e.value, rawValue: e.rawValue})
	return true
}

// AddMeta appends "@key" metadata for a content key.
func (f *File) AddMeta(key string, raw json.RawMessage) bool {
	metaKey := "@" + key
	if _, ok := f.index[metaKey]; ok {
		return false
	}
	f.append(entry{key: metaKey, kind: kindMeta, rawValue: raw})
	return true
}

// AddGlobal appends a "@@" key. @@locale is tracked through SetLocale.
func (f *File) AddGlobal(key string, raw json.RawMessage) bool {
	if _, ok := f.index[key]; ok || keyKind(key) != kindGlobal {
		return false
	}
	if key == LocaleKey {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return false
		}
		f.locale = s
	}
	f.append(entry{key: key, kind: kindGlobal, rawValue: raw})
	return true
}

// Sorted returns a copy with content keys ordered case-insensitively.
// Globals come first and each metadata entry follows its content key;
// orphan metadata is kept at the end.
func (f *File) Sorted() *File {
	out := f.Blank()
	for _, e := range f.entries {
		if e.kind == kindGlobal {
			out.append(e)
		}
	}

	keys := f.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		li, lj := strings.ToLower(keys[i]), strings.ToLower(keys[j])
		if li != lj {
			return li < lj
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		out.append(f.entries[f.index[k]])
		if idx, ok := f.index["@"+k]; ok {
			out.append(f.entries[idx])
		}
	}
	for _, k := range f.OrphanMetadata() {
		out.append(f.entries[f.index[k]])
	}
	return out
}

// ---------------------------------------------------------------------------
// Serialization
// ---------------------------------------------------------------------------

// encodeString JSON-encodes s without HTML escaping.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Marshal serialises the ARB file to JSON with 2-space indentation.
// @@locale is written where the catalog had it, or first when the catalog
// had none.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")

	first := true
	writeKey := func(key string) error {
		if !first {
			buf.WriteString(",")
		}
		first = false
		buf.WriteString("\n  ")
		kb, err := encodeString(key)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteString(": ")
		return nil
	}

	writeLocale := func() error {
		if err := writeKey(LocaleKey); err != nil {
			return err
		}
		raw, err := encodeString(f.locale)
		if err != nil {
			return err
		}
		buf.Write(raw)
		return nil
	}

	if _, ok := f.index[LocaleKey]; !ok && f.locale != "" {
		if err := writeLocale(); err != nil {
			return nil, err
		}
	}

	for _, e := range f.entries {
		if e.key == LocaleKey {
			if err := writeLocale(); err != nil {
				return nil, err
			}
			continue
		}
		if err := writeKey(e.key); err != nil {
			return nil, err
		}
		if e.kind == kindContent {
			if len(e.rawValue) > 0 {
				buf.Write(e.rawValue)
				continue
			}
			raw, err := encodeString(e.value)
			if err != nil {
				return nil, fmt.Errorf("encoding %q: %w", e.key, err)
			}
			buf.Write(raw)
			continue
		}
		// Pretty-print metadata objects.
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, e.rawValue, "  ", "  "); err != nil {
			return nil, fmt.Errorf("encoding %q: %w", e.key, err)
		}
		buf.Write(pretty.Bytes())
	}

	if !first {
		buf.WriteString("\n")
	}
	buf.WriteString("}")
	if f.newline {
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// WriteFile serialises and writes to path. The file is written to a
// temporary sibling and renamed into place so a failed write never leaves
// a truncated catalog behind.
func (f *File) WriteFile(path string) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0644)
}
