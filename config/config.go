package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults for a Flutter project layout.
const (
	DefaultCatalogDir     = "lib/l10n"
	DefaultCatalogPattern = "app_*.arb"
	DefaultMappingFile    = "arb_report/key_mapping.txt"
	DefaultUnusedList     = "arb_report/unused_keys.txt"
	DefaultBackupDir      = ".keyfold/backups"
	DefaultThreshold      = 0.85
	DefaultMetric         = "ratio"
	DefaultNormalize      = "nfkc"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KEYFOLD_"

// Config is the explicit configuration of one run. It is built once at the
// process boundary and passed down; nothing below reads globals.
type Config struct {
	// Root is the absolute project root; relative paths resolve against it.
	Root string

	CatalogDir     string
	CatalogPattern string
	PrimaryLocale  string

	MappingFile    string
	UnusedKeysFile string

	SourceDirs       []string
	SourceExtensions []string
	Exclude          []string
	KeepPatterns     []string
	Idioms           []IdiomSpec

	BackupRoot string

	Threshold  float64
	Metric     string
	Normalize  string
	PreferUsed bool

	// RemoveUnused drops keys flagged unused during apply.
	RemoveUnused bool
	// DryRun computes and reports without writing anything.
	DryRun bool
}

// Default returns the built-in configuration rooted at root.
func Default(root string) *Config {
	return &Config{
		Root:             root,
		CatalogDir:       DefaultCatalogDir,
		CatalogPattern:   DefaultCatalogPattern,
		MappingFile:      DefaultMappingFile,
		UnusedKeysFile:   DefaultUnusedList,
		SourceDirs:       []string{"lib"},
		SourceExtensions: []string{".dart"},
		Exclude:          []string{"*.g.dart", "*.freezed.dart"},
		BackupRoot:       DefaultBackupDir,
		Threshold:        DefaultThreshold,
		Metric:           DefaultMetric,
		Normalize:        DefaultNormalize,
	}
}

// Load builds the configuration for rootDir: defaults, then the config file
// (configPath or rootDir/.keyfold.yaml), then KEYFOLD_* variables from the
// environment or rootDir/.env. Flags are applied by the caller afterwards,
// followed by Validate.
func Load(rootDir, configPath string) (*Config, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, &ConfigurationError{Path: rootDir, Err: err}
	}
	cfg := Default(absRoot)

	kf, err := LoadKeyfoldFile(absRoot, configPath)
	if err != nil {
		return nil, err
	}
	if kf != nil {
		cfg.apply(kf)
	}

	env, err := readDotEnv(filepath.Join(absRoot, ".env"))
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(kf *KeyfoldFile) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.CatalogDir, kf.Catalogs.Dir)
	set(&c.CatalogPattern, kf.Catalogs.Pattern)
	set(&c.PrimaryLocale, kf.Catalogs.Primary)
	set(&c.MappingFile, kf.Mapping.File)
	set(&c.UnusedKeysFile, kf.Mapping.UnusedList)
	set(&c.BackupRoot, kf.BackupDir)
	set(&c.Metric, kf.Cluster.Metric)
	set(&c.Normalize, kf.Cluster.Normalize)

	if len(kf.Sources.Dirs) > 0 {
		c.SourceDirs = kf.Sources.Dirs
	}
	if len(kf.Sources.Extensions) > 0 {
		c.SourceExtensions = kf.Sources.Extensions
	}
	if kf.Sources.Exclude != nil {
		c.Exclude = kf.Sources.Exclude
	}
	c.KeepPatterns = append(c.KeepPatterns, kf.Sources.Keep...)
	c.Idioms = append(c.Idioms, kf.Sources.Idioms...)
	if kf.Cluster.Threshold > 0 {
		c.Threshold = kf.Cluster.Threshold
	}
	c.PreferUsed = c.PreferUsed || kf.Cluster.PreferUsed
}

// readDotEnv reads a .env file without touching the process environment.
func readDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	return env, nil
}

// applyEnv applies KEYFOLD_* overrides. Real environment variables win over
// .env entries.
func (c *Config) applyEnv(dotenv map[string]string) error {
	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+name]
		return v, ok
	}

	strs := map[string]*string{
		"CATALOG_DIR":      &c.CatalogDir,
		"CATALOG_PATTERN":  &c.CatalogPattern,
		"PRIMARY_LOCALE":   &c.PrimaryLocale,
		"MAPPING_FILE":     &c.MappingFile,
		"UNUSED_KEYS_FILE": &c.UnusedKeysFile,
		"BACKUP_DIR":       &c.BackupRoot,
		"METRIC":           &c.Metric,
		"NORMALIZE":        &c.Normalize,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("SOURCE_DIRS"); ok && v != "" {
		c.SourceDirs = splitList(v)
	}
	if v, ok := lookup("THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Errorf(EnvPrefix+"THRESHOLD", "not a number: %q", v)
		}
		c.Threshold = f
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	if c.Root == "" {
		return Errorf("", "project root is not set")
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return Errorf("", "similarity threshold must be within (0,1], got %v", c.Threshold)
	}
	switch c.Metric {
	case "ratio", "levenshtein":
	default:
		return Errorf("", "unknown similarity metric %q (valid: ratio, levenshtein)", c.Metric)
	}
	switch c.Normalize {
	case "nfkc", "fold", "none":
	default:
		return Errorf("", "unknown normalization %q (valid: nfkc, fold, none)", c.Normalize)
	}
	if c.CatalogDir == "" {
		return Errorf("", "catalog directory is not set")
	}
	if c.MappingFile == "" {
		return Errorf("", "mapping file is not set")
	}
	if c.BackupRoot == "" {
		return Errorf("", "backup directory is not set")
	}
	for _, ext := range c.SourceExtensions {
		if !strings.HasPrefix(ext, ".") {
			return Errorf("", "source extension %q must start with a dot", ext)
		}
	}
	return nil
}

// Abs resolves p against the project root.
func (c *Config) Abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// AbsCatalogDir returns the absolute catalog directory.
func (c *Config) AbsCatalogDir() string { return c.Abs(c.CatalogDir) }

// AbsMappingFile returns the absolute mapping file path.
func (c *Config) AbsMappingFile() string { return c.Abs(c.MappingFile) }

// AbsUnusedKeysFile returns the absolute unused-keys list path.
func (c *Config) AbsUnusedKeysFile() string { return c.Abs(c.UnusedKeysFile) }

// AbsBackupRoot returns the absolute backup root.
func (c *Config) AbsBackupRoot() string { return c.Abs(c.BackupRoot) }

// AbsSourceDirs returns the absolute source directories.
func (c *Config) AbsSourceDirs() []string {
	dirs := make([]string, len(c.SourceDirs))
	for i, d := range c.SourceDirs {
		dirs[i] = c.Abs(d)
	}
	return dirs
}
