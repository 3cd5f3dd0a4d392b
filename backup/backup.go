// Package backup snapshots files before keyfold mutates them.
//
// Every apply run gets its own directory under the backup root, named
// <YYYYMMDD-HHMMSS>-<id>. The directory is created with os.Mkdir, so an
// existing snapshot is never reused or overwritten. Files keep their path
// relative to the project root inside the snapshot, and a manifest.yaml
// records the size and MD5 of every copy.
package backup

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeLayout formats the timestamp part of a snapshot name.
const TimeLayout = "20060102-150405"

// BackupFailure reports a file that could not be backed up. The mutation
// of that file must not proceed.
type BackupFailure struct {
	Path string
	Err  error
}

func (e *BackupFailure) Error() string {
	return fmt.Sprintf("backup of %s failed: %v", e.Path, e.Err)
}

func (e *BackupFailure) Unwrap() error { return e.Err }

// Manager creates snapshots.
type Manager struct {
	// Root is the project root; snapshot paths are relative to it.
	Root string
	// Dir is the directory holding the snapshots.
	Dir string

	// Now and NewID name new snapshots.
	Now   func() time.Time
	NewID func() string
}

// NewManager returns a Manager using the wall clock and random IDs.
func NewManager(root, dir string) *Manager {
	return &Manager{
		Root:  root,
		Dir:   dir,
		Now:   time.Now,
		NewID: shortID,
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Begin creates a new, empty snapshot directory.
func (m *Manager) Begin() (*Snapshot, error) {
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup root: %w", err)
	}
	now := m.Now()
	name := now.Format(TimeLayout) + "-" + m.NewID()
	dir := filepath.Join(m.Dir, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot %s: %w", name, err)
	}
	return &Snapshot{
		Name:    name,
		Dir:     dir,
		Created: now,
		root:    m.Root,
		files:   make(map[string]int),
	}, nil
}

// Snapshot is one backup directory being filled.
type Snapshot struct {
	Name    string
	Dir     string
	Created time.Time

	root     string
	manifest []ManifestFile
	files    map[string]int // absolute source path → manifest index
	sealed   bool
}

// Add copies path into the snapshot and verifies the copy. Adding the same
// file twice is a no-op.
func (s *Snapshot) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &BackupFailure{Path: path, Err: err}
	}
	if _, ok := s.files[abs]; ok {
		return nil
	}
	if s.sealed {
		return &BackupFailure{Path: path, Err: errors.New("snapshot already sealed")}
	}

	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &BackupFailure{Path: path, Err: errors.New("file is outside the project root")}
	}

	entry, err := copyFile(abs, filepath.Join(s.Dir, rel))
	if err != nil {
		return &BackupFailure{Path: path, Err: err}
	}
	entry.Path = filepath.ToSlash(rel)
	s.files[abs] = len(s.manifest)
	s.manifest = append(s.manifest, entry)
	return nil
}

// Covers reports whether path has been backed up in this snapshot.
func (s *Snapshot) Covers(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	_, ok := s.files[abs]
	return ok
}

// Guard backs path up if needed and returns an error when it cannot be
// covered. It is meant as the gate in front of a file write.
func (s *Snapshot) Guard(path string) error {
	if s.Covers(path) {
		return nil
	}
	return s.Add(path)
}

// Files returns the manifest entries added so far.
func (s *Snapshot) Files() []ManifestFile {
	return append([]ManifestFile(nil), s.manifest...)
}

// Seal writes the manifest. No files can be added afterwards.
func (s *Snapshot) Seal() error {
	if s.sealed {
		return nil
	}
	m := &Manifest{
		Version: ManifestVersion,
		Created: s.Created,
		Root:    s.root,
		Files:   s.Files(),
	}
	if err := m.Save(s.Dir); err != nil {
		return err
	}
	s.sealed = true
	return nil
}

// copyFile copies src to dst and checks the copy's size against src.
func copyFile(src, dst string) (ManifestFile, error) {
	in, err := os.Open(src)
	if err != nil {
		return ManifestFile{}, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return ManifestFile{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return ManifestFile{}, err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return ManifestFile{}, err
	}

	h := md5.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		out.Close()
		return ManifestFile{}, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return ManifestFile{}, err
	}
	if err := out.Close(); err != nil {
		return ManifestFile{}, err
	}

	copied, err := os.Stat(dst)
	if err != nil {
		return ManifestFile{}, fmt.Errorf("verifying copy: %w", err)
	}
	if copied.Size() != info.Size() {
		return ManifestFile{}, fmt.Errorf("verifying copy: size %d, want %d", copied.Size(), info.Size())
	}
	return ManifestFile{Size: info.Size(), MD5: fmt.Sprintf("%x", h.Sum(nil))}, nil
}
