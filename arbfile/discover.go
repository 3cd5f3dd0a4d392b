package arbfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/text/language"
)

// DefaultPattern matches the Flutter gen-l10n naming convention.
const DefaultPattern = "app_*.arb"

// Catalog is a discovered catalog file.
type Catalog struct {
	Path   string
	Locale string
}

// Discover finds catalogs in dir whose base name matches pattern and
// resolves each one's locale: @@locale when present, otherwise the filename
// suffix after the first underscore. Locales must be valid BCP-47 tags.
// Results are sorted by locale.
func Discover(dir, pattern string) ([]Catalog, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("catalog pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var cats []Catalog
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !g.Match(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		f, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		locale := f.Locale()
		if locale == "" {
			locale = LocaleFromFilename(e.Name())
		}
		if err := ValidateLocale(locale); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if prev, dup := seen[locale]; dup {
			return nil, fmt.Errorf("locale %q declared by both %s and %s", locale, prev, path)
		}
		seen[locale] = path
		cats = append(cats, Catalog{Path: path, Locale: locale})
	}

	sort.Slice(cats, func(i, j int) bool { return cats[i].Locale < cats[j].Locale })
	return cats, nil
}

// LocaleFromFilename derives a locale from names like app_zh_Hant.arb.
func LocaleFromFilename(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if _, after, ok := strings.Cut(base, "_"); ok {
		return after
	}
	return base
}

// ValidateLocale checks that locale parses as a BCP-47 tag.
func ValidateLocale(locale string) error {
	if locale == "" {
		return fmt.Errorf("empty locale")
	}
	if _, err := language.Parse(locale); err != nil {
		return fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return nil
}
