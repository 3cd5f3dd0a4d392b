package usage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestScan(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.dart")
	b := filepath.Join(dir, "b.dart")
	os.WriteFile(a, []byte("Text(l10n.save)\nText(S.current.save)\n"), 0644)
	os.WriteFile(b, []byte("AppLocalizations.of(context)!.title\n// l10n is great\n"), 0644)

	s, err := NewScanner(nil, []string{"debug*"})
	if err != nil {
		t.Fatal(err)
	}
	keys := []string{"save", "saveAll", "title", "debugLabel", "orphan"}
	rep, err := s.Scan(context.Background(), []string{a, b, filepath.Join(dir, "missing.dart")}, keys)
	if err != nil {
		t.Fatal(err)
	}

	if rep.Counts["save"] != 2 || rep.Counts["title"] != 1 || rep.Counts["saveAll"] != 0 {
		t.Errorf("Counts = %v", rep.Counts)
	}
	if !reflect.DeepEqual(rep.Unused, []string{"orphan", "saveAll"}) {
		t.Errorf("Unused = %v", rep.Unused)
	}
	if !reflect.DeepEqual(rep.Kept, []string{"debugLabel"}) {
		t.Errorf("Kept = %v", rep.Kept)
	}
	if rep.Scanned != 2 || len(rep.Warnings) != 1 {
		t.Errorf("Scanned = %d, Warnings = %v", rep.Scanned, rep.Warnings)
	}
}

func TestNewScanner_BadPattern(t *testing.T) {
	if _, err := NewScanner(nil, []string{"[unclosed"}); err == nil {
		t.Error("expected error")
	}
}

func TestListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unused_keys.txt")
	if err := WriteListFile(path, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	got, err := ReadListFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, map[string]bool{"a": true, "b": true}) {
		t.Errorf("ReadListFile = %v", got)
	}

	got, err = ReadList(strings.NewReader("# c\n\n  x  \n"))
	if err != nil || !got["x"] || len(got) != 1 {
		t.Errorf("ReadList = %v, %v", got, err)
	}

	empty, err := ReadListFile(filepath.Join(t.TempDir(), "none.txt"))
	if err != nil || len(empty) != 0 {
		t.Errorf("missing list = %v, %v", empty, err)
	}
}
