// Package manifest persists what the engine believes is on disk for one
// project: which features are installed and a fingerprint of every file
// the engine has ever written.
//
// The manifest lives at .bowerbird/manifest.yml under the project root and
// stays human-inspectable. It is the sole authority on file ownership and
// is mutated only by the transaction coordinator, only on commit.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Dir is the hidden metadata directory under the project root.
	Dir = ".bowerbird"
	// FileName is the manifest file inside Dir.
	FileName = "manifest.yml"
)

// CorruptionError reports a manifest that cannot be trusted: the file is
// unreadable or not valid YAML. It triggers reconciliation or manual
// repair, never a silent overwrite.
type CorruptionError struct {
	Path   string
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("manifest %s is corrupt: %s", e.Path, e.Detail)
}

// InstalledFeature records one installed feature.
type InstalledFeature struct {
	Version     string    `yaml:"version"`
	InstalledAt time.Time `yaml:"installed_at"`
}

// OwnedFile records the engine's last write to a path.
type OwnedFile struct {
	Fingerprint string `yaml:"fingerprint"` // sha256 of content at last write
	Feature     string `yaml:"feature"`     // feature that wrote it
}

// Manifest is the persisted project state.
type Manifest struct {
	Installed map[string]InstalledFeature `yaml:"installed_features"`
	Owned     map[string]OwnedFile        `yaml:"owned_files"`

	root string `yaml:"-"`
}

// Path returns the manifest file location for a project root.
func Path(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// Load reads the manifest for the project at root. A missing manifest is
// not an error; it yields an empty manifest (fresh project).
func Load(root string) (*Manifest, error) {
	m := &Manifest{
		Installed: make(map[string]InstalledFeature),
		Owned:     make(map[string]OwnedFile),
		root:      root,
	}

	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, &CorruptionError{Path: Path(root), Detail: err.Error()}
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, &CorruptionError{Path: Path(root), Detail: err.Error()}
	}
	if m.Installed == nil {
		m.Installed = make(map[string]InstalledFeature)
	}
	if m.Owned == nil {
		m.Owned = make(map[string]OwnedFile)
	}
	m.root = root
	return m, nil
}

// Save writes the manifest atomically (temp file + rename in Dir).
func (m *Manifest) Save() error {
	dir := filepath.Join(m.root, Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "manifest-*.yml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), Path(m.root))
}

// InstalledVersions returns the installed feature set as id -> version.
func (m *Manifest) InstalledVersions() map[string]string {
	out := make(map[string]string, len(m.Installed))
	for id, f := range m.Installed {
		out[id] = f.Version
	}
	return out
}

// RecordInstall marks a feature installed (or upgraded) now.
func (m *Manifest) RecordInstall(id, version string) {
	m.Installed[id] = InstalledFeature{Version: version, InstalledAt: time.Now().UTC()}
}

// RecordWrite marks path as owned by feature with the given content.
func (m *Manifest) RecordWrite(path, feature string, content []byte) {
	m.Owned[path] = OwnedFile{Fingerprint: Fingerprint(content), Feature: feature}
}

// Disown removes path from the owned set.
func (m *Manifest) Disown(path string) {
	delete(m.Owned, path)
}

// OwnedPaths returns the owned file paths, sorted.
func (m *Manifest) OwnedPaths() []string {
	paths := make([]string, 0, len(m.Owned))
	for p := range m.Owned {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FileState classifies a project-relative path against the manifest and
// the bytes currently on disk (or staged).
type FileState int

const (
	// Absent: the file does not exist.
	Absent FileState = iota
	// Unowned: the file exists but the engine never wrote it.
	Unowned
	// OwnedClean: the engine wrote it and it is unchanged since.
	OwnedClean
	// OwnedEdited: the engine wrote it and someone changed it after.
	OwnedEdited
)

// Classify reports the state of path given its current content. present
// is false when the file does not exist.
func (m *Manifest) Classify(path string, content []byte, present bool) FileState {
	if !present {
		return Absent
	}
	owned, ok := m.Owned[path]
	if !ok {
		return Unowned
	}
	if owned.Fingerprint == Fingerprint(content) {
		return OwnedClean
	}
	return OwnedEdited
}

// Fingerprint returns the content fingerprint used throughout the manifest.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
