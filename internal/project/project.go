// Package project inspects the target project tree.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

// Info describes the project a feature set is applied to.
type Info struct {
	Root      string // absolute project root
	Name      string // base name of the root directory
	Module    string // Go module path from go.mod (e.g., "github.com/user/app")
	GoVersion string // Go version requirement (e.g., "1.25")
}

// Detect reads go.mod at rootPath and returns project information.
// Returns an error if go.mod doesn't exist or is invalid.
func Detect(rootPath string) (*Info, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	modPath := filepath.Join(abs, "go.mod")
	data, err := os.ReadFile(modPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("go.mod not found in %s", abs)
		}
		return nil, fmt.Errorf("reading go.mod: %w", err)
	}

	mf, err := modfile.Parse(modPath, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing go.mod: %w", err)
	}

	info := &Info{
		Root:   abs,
		Name:   filepath.Base(abs),
		Module: mf.Module.Mod.Path,
	}
	if mf.Go != nil {
		info.GoVersion = mf.Go.Version
	}

	return info, nil
}
