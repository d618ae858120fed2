package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const journalName = "journal.yml"

// Journal records the file swaps of one commit before they happen. It is
// removed after the manifest update, so a journal found at open time means
// the process died between swapping files and recording them. The swap and
// the manifest update form one logical unit; the journal is how the next
// apply repairs a tear between them.
type Journal struct {
	// Entries maps project-relative path -> fingerprint of the staged
	// content about to be swapped in.
	Entries map[string]string `yaml:"entries"`
}

func journalPath(root string) string {
	return filepath.Join(root, Dir, journalName)
}

// WriteJournal persists the journal before any live file is replaced.
func WriteJournal(root string, entries map[string]string) error {
	data, err := yaml.Marshal(&Journal{Entries: entries})
	if err != nil {
		return fmt.Errorf("marshaling journal: %w", err)
	}
	return os.WriteFile(journalPath(root), data, 0644)
}

// ClearJournal removes the journal after the manifest update lands.
func ClearJournal(root string) error {
	if err := os.Remove(journalPath(root)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Reconcile repairs the manifest after an interrupted commit. For every
// journaled path whose on-disk content matches the staged fingerprint, the
// swap happened but was never recorded: the manifest entry (if any) is
// stale, so the path is demoted to unowned until a later apply re-verifies
// it. The repaired manifest is saved and the journal cleared.
//
// Returns the demoted paths. A missing journal is a no-op.
func Reconcile(m *Manifest) ([]string, error) {
	data, err := os.ReadFile(journalPath(m.root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &CorruptionError{Path: journalPath(m.root), Detail: err.Error()}
	}

	var j Journal
	if err := yaml.Unmarshal(data, &j); err != nil {
		return nil, &CorruptionError{Path: journalPath(m.root), Detail: err.Error()}
	}

	var demoted []string
	for rel, staged := range j.Entries {
		owned, isOwned := m.Owned[rel]
		if !isOwned {
			continue
		}
		content, err := os.ReadFile(filepath.Join(m.root, rel))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		disk := Fingerprint(content)
		if disk == staged && disk != owned.Fingerprint {
			// Swapped but never recorded.
			m.Disown(rel)
			demoted = append(demoted, rel)
		}
	}

	if len(demoted) > 0 {
		log.Warn().Strs("paths", demoted).Msg("recovered interrupted commit; demoted files to unowned")
		if err := m.Save(); err != nil {
			return nil, err
		}
	}
	return demoted, ClearJournal(m.root)
}
