package arbfile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app_zh.arb"), `{"@@locale":"zh","a":"甲"}`)
	writeFile(t, filepath.Join(dir, "app_en.arb"), `{"a":"A"}`)
	writeFile(t, filepath.Join(dir, "notes.txt"), `ignored`)

	cats, err := Discover(dir, "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("found %d catalogs, want 2", len(cats))
	}
	if cats[0].Locale != "en" || cats[1].Locale != "zh" {
		t.Errorf("locales = %s, %s", cats[0].Locale, cats[1].Locale)
	}
}

func TestDiscover_DuplicateLocale(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app_en.arb"), `{"@@locale":"en"}`)
	writeFile(t, filepath.Join(dir, "app_en_US.arb"), `{"@@locale":"en"}`)

	if _, err := Discover(dir, ""); err == nil {
		t.Fatal("expected error for two catalogs with the same locale")
	}
}

func TestLocaleFromFilename(t *testing.T) {
	tests := map[string]string{
		"app_en.arb":      "en",
		"app_zh_Hant.arb": "zh_Hant",
		"intl_pt_BR.arb":  "pt_BR",
		"de.arb":          "de",
	}
	for name, want := range tests {
		if got := LocaleFromFilename(name); got != want {
			t.Errorf("LocaleFromFilename(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestValidateLocale(t *testing.T) {
	if err := ValidateLocale("zh-Hant"); err != nil {
		t.Errorf("zh-Hant: %v", err)
	}
	if err := ValidateLocale(""); err == nil {
		t.Error("empty locale should be rejected")
	}
	if err := ValidateLocale("not a locale!"); err == nil {
		t.Error("garbage locale should be rejected")
	}
}
