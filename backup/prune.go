package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

var snapshotName = regexp.MustCompile(`^\d{8}-\d{6}-[0-9a-f]{8}$`)

// Info describes an existing snapshot.
type Info struct {
	Name    string
	Dir     string
	Created time.Time
	Files   int
	// Sealed is false when the manifest is missing, e.g. after an
	// interrupted run.
	Sealed bool
}

// List returns the snapshots in dir, oldest first.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []Info
	for _, e := range entries {
		if !e.IsDir() || !snapshotName.MatchString(e.Name()) {
			continue
		}
		info := Info{Name: e.Name(), Dir: filepath.Join(dir, e.Name())}
		if m, err := LoadManifest(info.Dir); err == nil {
			info.Created = m.Created
			info.Files = len(m.Files)
			info.Sealed = true
		} else if t, err := time.ParseInLocation(TimeLayout, e.Name()[:len(TimeLayout)], time.Local); err == nil {
			info.Created = t
		}
		out = append(out, info)
	}
	// Names start with the timestamp.
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// PruneResult holds the outcome of a prune.
type PruneResult struct {
	Candidates []string // snapshot names beyond the newest keep
	Deleted    int      // snapshots actually removed (0 in dry-run)
}

// Prune keeps the newest keep snapshots in dir. When execute is false it
// only lists what would be removed.
func Prune(dir string, keep int, execute bool) (PruneResult, error) {
	if keep < 0 {
		return PruneResult{}, fmt.Errorf("keep must not be negative, got %d", keep)
	}
	snaps, err := List(dir)
	if err != nil {
		return PruneResult{}, err
	}

	var result PruneResult
	if len(snaps) <= keep {
		return result, nil
	}
	for _, s := range snaps[:len(snaps)-keep] {
		result.Candidates = append(result.Candidates, s.Name)
		if execute {
			if err := os.RemoveAll(s.Dir); err == nil {
				result.Deleted++
			}
		}
	}
	return result, nil
}
