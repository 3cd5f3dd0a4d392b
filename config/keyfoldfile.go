// Package config — .keyfold.yaml configuration file support.
//
// When a .keyfold.yaml file exists in the project root, its values replace
// the built-in defaults. Keys are validated strictly: a misspelled key is an
// error rather than a silently ignored setting.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeyfoldFileName is the default config file name.
const KeyfoldFileName = ".keyfold.yaml"

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// KeyfoldFile is the top-level .keyfold.yaml structure. Zero values mean
// "keep the default".
type KeyfoldFile struct {
	// Catalogs locates the ARB files.
	Catalogs CatalogSection `yaml:"catalogs,omitempty"`
	// Mapping locates the editable mapping and the unused-keys list.
	Mapping MappingSection `yaml:"mapping,omitempty"`
	// Sources describes the source tree rewritten by apply.
	Sources SourceSection `yaml:"sources,omitempty"`
	// Cluster tunes similarity detection.
	Cluster ClusterSection `yaml:"cluster,omitempty"`
	// BackupDir is where snapshots are created.
	BackupDir string `yaml:"backup_dir,omitempty"`
}

// CatalogSection configures catalog discovery.
type CatalogSection struct {
	// Dir is the directory holding the catalogs (default "lib/l10n").
	Dir string `yaml:"dir,omitempty"`
	// Pattern is a glob matched against file names (default "app_*.arb").
	Pattern string `yaml:"pattern,omitempty"`
	// Primary is the locale whose values are shown in the mapping file.
	Primary string `yaml:"primary,omitempty"`
}

// MappingSection configures the hand-off files between analyze and apply.
type MappingSection struct {
	File       string `yaml:"file,omitempty"`
	UnusedList string `yaml:"unused_list,omitempty"`
}

// SourceSection configures source scanning and rewriting.
type SourceSection struct {
	Dirs       []string    `yaml:"dirs,omitempty"`
	Extensions []string    `yaml:"extensions,omitempty"`
	Exclude    []string    `yaml:"exclude,omitempty"`
	Keep       []string    `yaml:"keep,omitempty"`
	Idioms     []IdiomSpec `yaml:"idioms,omitempty"`
}

// IdiomSpec declares a custom accessor idiom: Prefix is a regular
// expression matching the text right before a key, Render is the literal
// text written before a rewritten key (defaults to the unescaped prefix).
type IdiomSpec struct {
	Name   string `yaml:"name"`
	Prefix string `yaml:"prefix"`
	Render string `yaml:"render,omitempty"`
}

// ClusterSection tunes the clusterer.
type ClusterSection struct {
	Threshold  float64 `yaml:"threshold,omitempty"`
	Metric     string  `yaml:"metric,omitempty"`
	Normalize  string  `yaml:"normalize,omitempty"`
	PreferUsed bool    `yaml:"prefer_used,omitempty"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadKeyfoldFile loads and validates a config file. An empty path means
// rootDir/.keyfold.yaml. Returns nil if the default file does not exist; an
// explicitly named file must exist.
func LoadKeyfoldFile(rootDir, path string) (*KeyfoldFile, error) {
	explicit := path != ""
	if !explicit {
		path = filepath.Join(rootDir, KeyfoldFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	var kf KeyfoldFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&kf); err != nil && !errors.Is(err, io.EOF) {
		if strings.Contains(err.Error(), "not found in type") {
			return nil, Errorf(path, "unsupported key: %v", err)
		}
		return nil, Errorf(path, "parsing: %v", err)
	}

	for i, id := range kf.Sources.Idioms {
		if id.Name == "" {
			return nil, Errorf(path, "sources.idioms #%d has no name", i+1)
		}
		if id.Prefix == "" {
			return nil, Errorf(path, "idiom %q has no prefix", id.Name)
		}
	}
	if t := kf.Cluster.Threshold; t < 0 || t > 1 {
		return nil, Errorf(path, "cluster.threshold must be within [0,1], got %v", t)
	}

	return &kf, nil
}

// Save writes the config file to rootDir/.keyfold.yaml.
func (kf *KeyfoldFile) Save(rootDir string) error {
	data, err := yaml.Marshal(kf)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	path := filepath.Join(rootDir, KeyfoldFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
