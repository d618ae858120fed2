package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// stagingScope is an isolated working copy of the files one apply may
// touch. It lives in a temp directory under .bowerbird/, is seeded with
// copies of every declared destination that exists in the live tree, and
// is discarded wholesale on abort. Reads and writes are path-isolated
// behind one mutex; parallel renders never share candidate state.
type stagingScope struct {
	projectRoot string
	dir         string

	mu       sync.Mutex
	declared map[string]bool   // project-relative paths the plan may touch
	writers  map[string]string // rel path -> feature id of last OutputSpec write
	written  map[string]bool   // rel paths actually written this apply
}

// openStaging creates the staging directory and seeds it.
func openStaging(projectRoot string, declared []string) (*stagingScope, error) {
	base := filepath.Join(projectRoot, ".bowerbird")
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(base, "staging-")
	if err != nil {
		return nil, fmt.Errorf("creating staging scope: %w", err)
	}

	s := &stagingScope{
		projectRoot: projectRoot,
		dir:         dir,
		declared:    make(map[string]bool, len(declared)),
		writers:     make(map[string]string),
		written:     make(map[string]bool),
	}

	for _, rel := range declared {
		s.declared[rel] = true
		live := filepath.Join(projectRoot, rel)
		content, err := os.ReadFile(live)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			s.discard()
			return nil, err
		}
		if err := s.writeRaw(rel, content); err != nil {
			s.discard()
			return nil, err
		}
	}
	return s, nil
}

// Read returns the staged content for rel, falling back to absent when
// the path was never seeded or written.
func (s *stagingScope) Read(rel string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(filepath.Join(s.dir, rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return content, true, nil
}

// Write stages content for rel.
func (s *stagingScope) Write(rel string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeRaw(rel, content); err != nil {
		return err
	}
	s.written[rel] = true
	return nil
}

func (s *stagingScope) writeRaw(rel string, content []byte) error {
	dst := filepath.Join(s.dir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, content, 0644)
}

// recordWriter notes which feature's OutputSpec last wrote rel. Config
// mutations do not claim ownership, so they never call this.
func (s *stagingScope) recordWriter(rel, feature string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writers[rel] = feature
}

// ownedWriters returns a copy of the path -> feature ownership map.
func (s *stagingScope) ownedWriters() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.writers))
	for rel, feature := range s.writers {
		out[rel] = feature
	}
	return out
}

// changedPaths returns the staged paths written this apply, sorted.
func (s *stagingScope) changedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.written))
	for p := range s.written {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// validate walks the staging directory and fails if any staged file is
// outside the declared destination set. This is a defense against merge
// strategy bugs, not a user-facing condition.
func (s *stagingScope) validate() error {
	return filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !s.declared[rel] {
			return fmt.Errorf("staging scope contains undeclared file %s", rel)
		}
		return nil
	})
}

// commitFile atomically replaces the live file at rel with its staged
// counterpart: write to a temp file in the destination directory, then
// rename over the target.
func (s *stagingScope) commitFile(rel string) error {
	content, err := os.ReadFile(filepath.Join(s.dir, rel))
	if err != nil {
		return err
	}

	live := filepath.Join(s.projectRoot, rel)
	if err := os.MkdirAll(filepath.Dir(live), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(live), ".bowerbird-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), live)
}

// discard removes the staging directory. Best effort; a leaked staging
// dir under .bowerbird/ is inert.
func (s *stagingScope) discard() {
	os.RemoveAll(s.dir)
}

// isStructuredTarget reports whether rel needs a post-merge re-parse.
func isStructuredTarget(rel string) bool {
	base := filepath.Base(rel)
	ext := filepath.Ext(rel)
	return base == "go.mod" || ext == ".yml" || ext == ".yaml" || strings.HasPrefix(base, ".env")
}
