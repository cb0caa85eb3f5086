package appconfig

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultMaxRecent bounds the scan history.
const DefaultMaxRecent = 10

// State is what songgrid remembers between runs. It lives next to the
// database, not in the config file, so config stays hand-edited only.
type State struct {
	RecentRoots []string `yaml:"recent_roots"`
	MaxRecent   int      `yaml:"max_recent"`
}

// LastRoot is the most recently scanned directory, or "".
func (s State) LastRoot() string {
	if len(s.RecentRoots) == 0 {
		return ""
	}
	return s.RecentRoots[0]
}

// Remember moves root to the front of the history.
func (s *State) Remember(root string) {
	limit := s.MaxRecent
	if limit <= 0 {
		limit = DefaultMaxRecent
	}
	s.RecentRoots = addToRecent(s.RecentRoots, root, limit)
}

// DefaultStatePath returns the standard state file path.
func DefaultStatePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.yaml"), nil
}

// LoadState reads the state file. A missing file is an empty state.
func LoadState(path string) (State, error) {
	st := State{MaxRecent: DefaultMaxRecent}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return State{MaxRecent: DefaultMaxRecent}, err
	}
	return st, nil
}

// SaveState writes st to path, creating the directory.
func SaveState(path string, st State) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func addToRecent(paths []string, newPath string, maxRecent int) []string {
	if newPath == "" {
		return paths
	}
	result := make([]string, 0, len(paths)+1)
	result = append(result, newPath)
	for _, p := range paths {
		if p != newPath {
			result = append(result, p)
		}
	}
	if len(result) > maxRecent {
		result = result[:maxRecent]
	}
	return result
}
