package merge

import (
	"fmt"
	"path"
	"strings"

	"github.com/simonhull/bowerbird/internal/astutil"
	"github.com/simonhull/bowerbird/internal/registry"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"
)

// applyMutation applies one structured mutation to the current content of
// its target. All mutation kinds are idempotent: re-applying a mutation
// whose payload is already present returns the content unchanged.
//
// When the target is absent (present == false), the mutation creates it
// with just the payload; silently skipping would violate the propagation
// policy.
func applyMutation(feature string, kind registry.MutationKind, target, payload string, existing []byte, present bool) ([]byte, error) {
	switch kind {
	case registry.AddDependency:
		if !present {
			return nil, &AmbiguityError{Feature: feature, Path: target, Detail: "dependency file does not exist"}
		}
		return addDependency(feature, target, payload, existing)
	case registry.AppendEnvVar:
		return appendEnvVar(feature, target, payload, existing, present)
	case registry.InsertMarkedBlock:
		if !present {
			return renderBlock(target, feature, []byte(payload)), nil
		}
		updated, _ := upsertBlock(existing, target, feature, []byte(payload))
		return updated, nil
	case registry.RegisterImport:
		if !present {
			return nil, &AmbiguityError{Feature: feature, Path: target, Detail: "target source file does not exist"}
		}
		return registerImport(feature, target, payload, existing)
	default:
		return nil, fmt.Errorf("unknown mutation kind %q", kind)
	}
}

// addDependency inserts one require line into a go.mod file. Present at
// the same version is a no-op; present at a different version means the
// user (or another tool) moved it, which the engine must not second-guess.
func addDependency(feature, target, payload string, existing []byte) ([]byte, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return nil, &AmbiguityError{Feature: feature, Path: target, Detail: fmt.Sprintf("dependency payload %q is not \"module version\"", payload)}
	}
	modPath, version := fields[0], fields[1]

	mf, err := modfile.Parse(target, existing, nil)
	if err != nil {
		return nil, &AmbiguityError{Feature: feature, Path: target, Detail: fmt.Sprintf("not a parseable go.mod: %v", err)}
	}

	for _, req := range mf.Require {
		if req.Mod.Path == modPath {
			if req.Mod.Version == version {
				return existing, nil
			}
			return nil, &AmbiguityError{
				Feature: feature,
				Path:    target,
				Detail:  fmt.Sprintf("%s already required at %s (wanted %s)", modPath, req.Mod.Version, version),
			}
		}
	}

	if err := mf.AddRequire(modPath, version); err != nil {
		return nil, &AmbiguityError{Feature: feature, Path: target, Detail: err.Error()}
	}
	mf.Cleanup()
	out, err := mf.Format()
	if err != nil {
		return nil, &AmbiguityError{Feature: feature, Path: target, Detail: err.Error()}
	}
	return out, nil
}

// appendEnvVar adds one KEY=VALUE line to a dotenv file. Same key and
// value is a no-op; same key with another value is ambiguous.
func appendEnvVar(feature, target, payload string, existing []byte, present bool) ([]byte, error) {
	key, _, ok := strings.Cut(payload, "=")
	if !ok || key == "" {
		return nil, &AmbiguityError{Feature: feature, Path: target, Detail: fmt.Sprintf("env payload %q is not KEY=VALUE", payload)}
	}

	if !present {
		return []byte(payload + "\n"), nil
	}

	for _, line := range strings.Split(string(existing), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		k, _, lineOK := strings.Cut(trimmed, "=")
		if !lineOK || k != key {
			continue
		}
		if trimmed == payload {
			return existing, nil
		}
		return nil, &AmbiguityError{
			Feature: feature,
			Path:    target,
			Detail:  fmt.Sprintf("%s is already set to a different value", key),
		}
	}

	out := string(existing)
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return []byte(out + payload + "\n"), nil
}

// registerImport inserts an import path into a Go source file through the
// AST, creating the import declaration when the file has none. Already
// present is a no-op; a file that no longer parses as Go has had its
// insertion point altered and fails as ambiguous.
func registerImport(feature, target, payload string, existing []byte) ([]byte, error) {
	updated, _, err := astutil.AddImport(target, existing, payload)
	if err != nil {
		return nil, &AmbiguityError{Feature: feature, Path: target, Detail: err.Error()}
	}
	return updated, nil
}

// ValidateStructured re-parses a structured target after staging, as a
// defense against merge bugs producing syntactically broken files.
func ValidateStructured(target string, content []byte) error {
	switch {
	case path.Base(target) == "go.mod":
		if _, err := modfile.Parse(target, content, nil); err != nil {
			return fmt.Errorf("%s no longer parses: %w", target, err)
		}
	case path.Ext(target) == ".yml" || path.Ext(target) == ".yaml":
		var doc any
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return fmt.Errorf("%s no longer parses: %w", target, err)
		}
	case strings.HasPrefix(path.Base(target), ".env"):
		for i, line := range strings.Split(string(content), "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			if !strings.Contains(trimmed, "=") {
				return fmt.Errorf("%s line %d is not KEY=VALUE", target, i+1)
			}
		}
	}
	return nil
}
