package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func fixedManager(t *testing.T, root string) *Manager {
	t.Helper()
	m := NewManager(root, filepath.Join(root, ".keyfold", "backups"))
	clock := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	m.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	n := 0
	m.NewID = func() string {
		n++
		return fmt.Sprintf("%08x", n)
	}
	return m
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBegin_UniqueDirectories(t *testing.T) {
	root := t.TempDir()
	m := fixedManager(t, root)

	s1, err := m.Begin()
	if err != nil {
		t.Fatal(err)
	}
	s2, err := m.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if s1.Dir == s2.Dir {
		t.Fatalf("snapshots share a directory: %s", s1.Dir)
	}
	if s1.Name != "20240309-140508-00000001" {
		t.Errorf("Name = %q", s1.Name)
	}
}

func TestBegin_NeverReusesDirectory(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, filepath.Join(root, "backups"))
	m.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	m.NewID = func() string { return "deadbeef" }

	if _, err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Begin(); !errors.Is(err, os.ErrExist) {
		t.Fatalf("second Begin with the same name: err = %v, want ErrExist", err)
	}
}

func TestSnapshot_AddAndSeal(t *testing.T) {
	root := t.TempDir()
	catalog := writeFile(t, root, "lib/l10n/app_en.arb", `{"@@locale": "en"}`)
	source := writeFile(t, root, "lib/main.dart", "l10n.save;\n")

	s, err := fixedManager(t, root).Begin()
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{catalog, source, catalog} {
		if err := s.Add(p); err != nil {
			t.Fatalf("Add(%s): %v", p, err)
		}
	}
	if !s.Covers(catalog) || s.Covers(filepath.Join(root, "other.dart")) {
		t.Error("Covers reports the wrong files")
	}

	copied, err := os.ReadFile(filepath.Join(s.Dir, "lib", "l10n", "app_en.arb"))
	if err != nil || string(copied) != `{"@@locale": "en"}` {
		t.Fatalf("copy = %q, %v", copied, err)
	}

	if err := s.Seal(); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(s.Dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []ManifestFile{
		{Path: "lib/l10n/app_en.arb", Size: 18, MD5: Hash([]byte(`{"@@locale": "en"}`))},
		{Path: "lib/main.dart", Size: 11, MD5: Hash([]byte("l10n.save;\n"))},
	}
	if !reflect.DeepEqual(m.Files, want) {
		t.Errorf("manifest files = %+v, want %+v", m.Files, want)
	}
	if bad := m.Verify(s.Dir); len(bad) != 0 {
		t.Errorf("Verify = %v", bad)
	}

	if err := s.Add(writeFile(t, root, "late.dart", "")); err == nil {
		t.Error("Add after Seal should fail")
	}
}

func TestSnapshot_AddFailures(t *testing.T) {
	root := t.TempDir()
	s, err := fixedManager(t, root).Begin()
	if err != nil {
		t.Fatal(err)
	}

	var bf *BackupFailure
	if err := s.Add(filepath.Join(root, "missing.arb")); !errors.As(err, &bf) {
		t.Errorf("missing file: err = %v, want *BackupFailure", err)
	}
	outside := filepath.Join(t.TempDir(), "x.dart")
	os.WriteFile(outside, []byte("x"), 0644)
	if err := s.Guard(outside); !errors.As(err, &bf) {
		t.Errorf("outside root: err = %v, want *BackupFailure", err)
	}
}

func TestManifest_VerifyDetectsTampering(t *testing.T) {
	root := t.TempDir()
	p := writeFile(t, root, "a.arb", "{}")
	s, _ := fixedManager(t, root).Begin()
	if err := s.Add(p); err != nil {
		t.Fatal(err)
	}
	if err := s.Seal(); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(s.Dir, "a.arb"), []byte("[]"), 0644)

	m, _ := LoadManifest(s.Dir)
	if bad := m.Verify(s.Dir); !reflect.DeepEqual(bad, []string{"a.arb"}) {
		t.Errorf("Verify = %v", bad)
	}
}

func TestListAndPrune(t *testing.T) {
	root := t.TempDir()
	m := fixedManager(t, root)
	var names []string
	for i := 0; i < 3; i++ {
		s, err := m.Begin()
		if err != nil {
			t.Fatal(err)
		}
		if i < 2 {
			if err := s.Seal(); err != nil {
				t.Fatal(err)
			}
		}
		names = append(names, s.Name)
	}
	os.Mkdir(filepath.Join(m.Dir, "not-a-snapshot"), 0755)

	list, err := List(m.Dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Name != names[0] || list[2].Sealed {
		t.Fatalf("List = %+v", list)
	}

	res, err := Prune(m.Dir, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Candidates, names[:2]) || res.Deleted != 0 {
		t.Errorf("dry-run = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(m.Dir, names[0])); err != nil {
		t.Error("dry-run removed a snapshot")
	}

	res, err = Prune(m.Dir, 1, true)
	if err != nil || res.Deleted != 2 {
		t.Fatalf("Prune = %+v, %v", res, err)
	}
	list, _ = List(m.Dir)
	if len(list) != 1 || list[0].Name != names[2] {
		t.Errorf("after prune: %+v", list)
	}

	if _, err := Prune(m.Dir, -1, false); err == nil {
		t.Error("negative keep should fail")
	}
}

func TestList_MissingDir(t *testing.T) {
	list, err := List(filepath.Join(t.TempDir(), "none"))
	if err != nil || list != nil {
		t.Errorf("List = %v, %v", list, err)
	}
}
