package backup

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestName is the manifest file inside a snapshot.
const ManifestName = "manifest.yaml"

// ManifestVersion is the manifest format version.
const ManifestVersion = 1

// Manifest lists the files of a snapshot.
type Manifest struct {
	Version int            `yaml:"version"`
	Created time.Time      `yaml:"created"`
	Root    string         `yaml:"root"`
	Files   []ManifestFile `yaml:"files"`
}

// ManifestFile is one backed-up file.
type ManifestFile struct {
	Path string `yaml:"path"` // slash-separated, relative to the project root
	Size int64  `yaml:"size"`
	MD5  string `yaml:"md5"`
}

// Save writes the manifest into dir.
func (m *Manifest) Save(dir string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// LoadManifest reads the manifest of the snapshot in dir.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &m, nil
}

// Verify checks every file of the snapshot in dir against the manifest and
// returns the paths that are missing or differ.
func (m *Manifest) Verify(dir string) []string {
	var bad []string
	for _, f := range m.Files {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if err != nil || int64(len(data)) != f.Size || Hash(data) != f.MD5 {
			bad = append(bad, f.Path)
		}
	}
	return bad
}

// Hash computes the MD5 hex digest of data.
func Hash(data []byte) string {
	return fmt.Sprintf("%x", md5.Sum(data))
}
