package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/minios-linux/keyfold/arbfile"
	"github.com/minios-linux/keyfold/backup"
	"github.com/minios-linux/keyfold/config"
	"github.com/minios-linux/keyfold/report"
)

func writeProjectFile(t *testing.T, root, rel, content string) string {
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

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// newProject lays out a small Flutter project.
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeProjectFile(t, root, "lib/l10n/app_en.arb", `{
  "@@locale": "en",
  "save": "Save",
  "saveFile": "Save",
  "@saveFile": {
    "description": "Toolbar"
  },
  "title": "My App",
  "debugLabel": "Debug"
}
`)
	writeProjectFile(t, root, "lib/l10n/app_zh.arb", `{
  "@@locale": "zh",
  "save": "保存",
  "saveFile": "保存",
  "title": "我的应用",
  "debugLabel": "调试"
}
`)
	writeProjectFile(t, root, "lib/main.dart", `Text(AppLocalizations.of(context)!.saveFile);
Text(l10n.save);
Text(S.current.title);
`)
	writeProjectFile(t, root, "lib/main.g.dart", "l10n.saveFile;\n")
	return root
}

func newPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	// Random IDs keep snapshots of separate pipelines apart.
	m := backup.NewManager(cfg.Root, cfg.AbsBackupRoot())
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	p, err := New(cfg, WithBackupManager(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestAnalyzeThenApply(t *testing.T) {
	root := newProject(t)
	cfg := config.Default(root)
	p := newPipeline(t, cfg)
	ctx := context.Background()

	ares, err := p.Analyze(ctx, true)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(ares.Groups) != 1 || ares.Groups[0].Canonical != "save" {
		t.Fatalf("Groups = %+v", ares.Groups)
	}
	if ares.Unused != 1 {
		t.Errorf("Unused = %d, want 1 (debugLabel)", ares.Unused)
	}
	mappingText := readFile(t, cfg.AbsMappingFile())
	if !strings.Contains(mappingText, "save: Save\n  save: Save\n  saveFile: Save\n") {
		t.Errorf("mapping file:\n%s", mappingText)
	}
	if !strings.Contains(readFile(t, cfg.AbsUnusedKeysFile()), "debugLabel") {
		t.Error("unused keys list not written")
	}

	res, err := p.Apply(ctx)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Summary.Replaced != 1 || res.Summary.Removed != 0 || res.Summary.Touched != 1 || res.Summary.Sites != 1 {
		t.Errorf("Summary = %+v", res.Summary)
	}
	if len(res.Written) != 2 {
		t.Errorf("Written = %v", res.Written)
	}

	en, err := arbfile.ParseFile(filepath.Join(root, "lib/l10n/app_en.arb"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(en.Keys(), []string{"save", "title", "debugLabel"}) {
		t.Errorf("en keys = %v", en.Keys())
	}
	if got := readFile(t, filepath.Join(root, "lib/main.dart")); !strings.HasPrefix(got, "Text(AppLocalizations.of(context)!.save);") {
		t.Errorf("main.dart = %q", got)
	}
	if got := readFile(t, filepath.Join(root, "lib/main.g.dart")); got != "l10n.saveFile;\n" {
		t.Errorf("generated file was rewritten: %q", got)
	}

	// The snapshot holds the originals.
	orig := readFile(t, filepath.Join(res.Snapshot.Dir, "lib", "l10n", "app_en.arb"))
	if !strings.Contains(orig, "saveFile") {
		t.Errorf("backup does not hold the original catalog")
	}
	if _, err := backup.LoadManifest(res.Snapshot.Dir); err != nil {
		t.Errorf("manifest: %v", err)
	}
	if res.Report.HasDrift() {
		t.Errorf("unexpected drift after apply: %v", res.Report.Warnings())
	}
}

func TestApply_TwiceIsNoOp(t *testing.T) {
	root := newProject(t)
	cfg := config.Default(root)
	p := newPipeline(t, cfg)
	ctx := context.Background()

	if _, err := p.Analyze(ctx, false); err != nil {
		t.Fatal(err)
	}
	first, err := p.Apply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	enPath := filepath.Join(root, "lib/l10n/app_en.arb")
	before := readFile(t, enPath)
	info, _ := os.Stat(enPath)

	second, err := p.Apply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Snapshot.Dir == second.Snapshot.Dir {
		t.Error("second apply reused the backup directory")
	}
	if len(second.Written) != 0 || second.Summary.Touched != 0 {
		t.Errorf("second apply changed files: %+v", second.Summary)
	}
	if readFile(t, enPath) != before {
		t.Error("catalog content changed on second apply")
	}
	if info2, _ := os.Stat(enPath); !info2.ModTime().Equal(info.ModTime()) {
		t.Error("catalog was rewritten on second apply")
	}

	list, err := backup.List(cfg.AbsBackupRoot())
	if err != nil || len(list) != 2 {
		t.Errorf("backups = %v, %v", list, err)
	}
}

func TestApply_RemoveUnused(t *testing.T) {
	root := newProject(t)
	cfg := config.Default(root)
	ctx := context.Background()

	if _, err := newPipeline(t, cfg).Analyze(ctx, true); err != nil {
		t.Fatal(err)
	}

	keep, err := newPipeline(t, cfg).Apply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if keep.Summary.Removed != 0 {
		t.Errorf("Removed = %d without --remove-unused", keep.Summary.Removed)
	}

	cfg.RemoveUnused = true
	res, err := newPipeline(t, cfg).Apply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary.Removed != 1 {
		t.Errorf("Removed = %d, want 1", res.Summary.Removed)
	}
	zh, _ := arbfile.ParseFile(filepath.Join(root, "lib/l10n/app_zh.arb"))
	if zh.Has("debugLabel") {
		t.Error("debugLabel should be gone")
	}
}

func TestApply_DryRunWritesNothing(t *testing.T) {
	root := newProject(t)
	cfg := config.Default(root)
	ctx := context.Background()
	if _, err := newPipeline(t, cfg).Analyze(ctx, false); err != nil {
		t.Fatal(err)
	}
	enBefore := readFile(t, filepath.Join(root, "lib/l10n/app_en.arb"))

	cfg.DryRun = true
	res, err := newPipeline(t, cfg).Apply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Summary.DryRun || res.Snapshot != nil || res.Summary.Touched != 1 {
		t.Errorf("result = %+v", res.Summary)
	}
	if readFile(t, filepath.Join(root, "lib/l10n/app_en.arb")) != enBefore {
		t.Error("dry run modified a catalog")
	}
	if _, err := os.Stat(cfg.AbsBackupRoot()); !os.IsNotExist(err) {
		t.Error("dry run created a backup directory")
	}
}

func TestApply_MissingMappingIsConfigurationError(t *testing.T) {
	root := newProject(t)
	_, err := newPipeline(t, config.Default(root)).Apply(context.Background())
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *config.ConfigurationError", err)
	}
	if _, err := os.Stat(filepath.Join(root, config.DefaultBackupDir)); !os.IsNotExist(err) {
		t.Error("a backup was created before the mapping was read")
	}
}

func TestApply_BadCatalogAbortsBeforeMutation(t *testing.T) {
	root := newProject(t)
	cfg := config.Default(root)
	ctx := context.Background()
	if _, err := newPipeline(t, cfg).Analyze(ctx, false); err != nil {
		t.Fatal(err)
	}
	writeProjectFile(t, root, "lib/l10n/app_zh.arb", `{"@@locale": "zh", "save": "a", "save": "b"}`)

	_, err := newPipeline(t, cfg).Apply(ctx)
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *config.ConfigurationError", err)
	}
	if got := readFile(t, filepath.Join(root, "lib/main.dart")); !strings.Contains(got, "saveFile") {
		t.Error("sources were modified")
	}
}

func TestCheck_UnmappedDrift(t *testing.T) {
	root := newProject(t)
	cfg := config.Default(root)
	ctx := context.Background()
	if _, err := newPipeline(t, cfg).Analyze(ctx, false); err != nil {
		t.Fatal(err)
	}
	// A key added after analysis.
	writeProjectFile(t, root, "lib/l10n/app_en.arb", `{"@@locale": "en", "save": "Save", "saveFile": "Save", "title": "My App", "debugLabel": "Debug", "brandNew": "New"}`)

	rep, err := newPipeline(t, cfg).Check(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var unmapped []string
	for _, w := range rep.Warnings() {
		if w.Kind == report.DriftUnmapped {
			unmapped = append(unmapped, w.Keys...)
		}
	}
	if !reflect.DeepEqual(unmapped, []string{"brandNew"}) {
		t.Errorf("unmapped = %v", unmapped)
	}

	res, err := newPipeline(t, cfg).Apply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	en, _ := arbfile.ParseFile(filepath.Join(root, "lib/l10n/app_en.arb"))
	if v, _ := en.Get("brandNew"); v != "New" {
		t.Errorf("unmapped key not passed through: %q", v)
	}
	if len(res.Report.Locales[0].Unmapped) != 1 {
		t.Errorf("verify report Unmapped = %v", res.Report.Locales[0].Unmapped)
	}
}

func TestSort(t *testing.T) {
	root := t.TempDir()
	path := writeProjectFile(t, root, "lib/l10n/app_en.arb", `{"@@locale": "en", "b": "B", "A": "a", "@b": {}}`)
	cfg := config.Default(root)

	res, err := newPipeline(t, cfg).Sort(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Sorted) != 1 || res.Snapshot == nil {
		t.Fatalf("result = %+v", res)
	}
	f, _ := arbfile.ParseFile(path)
	if !reflect.DeepEqual(f.Keys(), []string{"A", "b"}) {
		t.Errorf("keys = %v", f.Keys())
	}

	again, err := newPipeline(t, cfg).Sort(context.Background())
	if err != nil || len(again.Sorted) != 0 || again.Snapshot != nil {
		t.Errorf("second sort = %+v, %v", again, err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Threshold = 2
	var ce *config.ConfigurationError
	if _, err := New(cfg); !errors.As(err, &ce) {
		t.Errorf("err = %v", err)
	}
}

func TestLoadCatalogs_PrimaryFirst(t *testing.T) {
	root := newProject(t)
	cfg := config.Default(root)
	cfg.PrimaryLocale = "zh"
	cats, err := newPipeline(t, cfg).loadCatalogs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cats[0].Name() != "zh" {
		t.Errorf("first catalog = %s", cats[0].Name())
	}

	cfg.PrimaryLocale = "fr"
	if _, err := newPipeline(t, cfg).loadCatalogs(context.Background()); err == nil {
		t.Error("missing primary locale should fail")
	}
}
