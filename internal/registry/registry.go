// Package registry loads and validates the feature catalog.
//
// A catalog is a filesystem with two top-level directories:
//
//	features/   one YAML definition per feature
//	templates/  template files referenced by OutputSpecs
//
// The catalog is read once at startup and never mutated afterwards. The
// engine receives the loaded *Registry by value injection; there is no
// runtime API for adding features.
package registry

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// IntegrityError reports an invalid catalog. It is fatal: a catalog that
// fails validation is a deployment defect, never a user mistake.
type IntegrityError struct {
	Feature string
	Detail  string
}

func (e *IntegrityError) Error() string {
	if e.Feature == "" {
		return fmt.Sprintf("invalid feature catalog: %s", e.Detail)
	}
	return fmt.Sprintf("invalid feature catalog: feature %q: %s", e.Feature, e.Detail)
}

// NotFoundError reports a lookup of an unknown feature id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown feature: %q", e.ID)
}

// Registry is the immutable catalog of available features.
type Registry struct {
	features  map[string]*Feature
	templates fs.FS
}

// Load reads every definition under features/ in fsys and validates the
// catalog as a whole. Templates referenced by outputs stay lazy; they are
// resolved through Templates() at render time.
func Load(fsys fs.FS) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, "features")
	if err != nil {
		return nil, &IntegrityError{Detail: fmt.Sprintf("reading features dir: %v", err)}
	}

	features := make(map[string]*Feature)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join("features", entry.Name()))
		if err != nil {
			return nil, &IntegrityError{Detail: fmt.Sprintf("reading %s: %v", entry.Name(), err)}
		}
		var f Feature
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, &IntegrityError{Detail: fmt.Sprintf("parsing %s: %v", entry.Name(), err)}
		}
		if f.ID == "" {
			return nil, &IntegrityError{Detail: fmt.Sprintf("%s declares no id", entry.Name())}
		}
		if _, dup := features[f.ID]; dup {
			return nil, &IntegrityError{Feature: f.ID, Detail: "declared more than once"}
		}
		features[f.ID] = &f
	}

	templates, err := fs.Sub(fsys, "templates")
	if err != nil {
		return nil, &IntegrityError{Detail: fmt.Sprintf("no templates dir: %v", err)}
	}

	r := &Registry{features: features, templates: templates}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Lookup returns the definition for id, or a NotFoundError.
func (r *Registry) Lookup(id string) (*Feature, error) {
	f, ok := r.features[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return f, nil
}

// All returns every feature, sorted by id for deterministic listings.
func (r *Registry) All() []*Feature {
	out := make([]*Feature, 0, len(r.features))
	for _, f := range r.features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Templates returns the catalog's template filesystem.
func (r *Registry) Templates() fs.FS {
	return r.templates
}

// validate performs the load-time integrity checks: every referenced id
// must exist, conflicts must be symmetric, non-append outputs must not
// collide on a destination path, and parameter declarations must be sound.
func (r *Registry) validate() error {
	owners := make(map[string]string) // destination path -> feature id, for non-append outputs

	for _, f := range r.features {
		for _, req := range f.Requires {
			if _, ok := r.features[req]; !ok {
				return &IntegrityError{Feature: f.ID, Detail: fmt.Sprintf("requires unknown feature %q", req)}
			}
			if req == f.ID {
				return &IntegrityError{Feature: f.ID, Detail: "requires itself"}
			}
		}

		for _, c := range f.ConflictsWith {
			other, ok := r.features[c]
			if !ok {
				return &IntegrityError{Feature: f.ID, Detail: fmt.Sprintf("conflicts with unknown feature %q", c)}
			}
			if !contains(other.ConflictsWith, f.ID) {
				return &IntegrityError{Feature: f.ID, Detail: fmt.Sprintf("conflict with %q is not symmetric", c)}
			}
		}

		for _, out := range f.Outputs {
			if out.Path == "" || out.Template == "" {
				return &IntegrityError{Feature: f.ID, Detail: "output with empty path or template"}
			}
			switch out.Strategy {
			case CreateOnly, OverwriteOwned, StructuredMerge:
				// Two features may claim the same path only if they can
				// never co-exist (mutually conflicting alternatives,
				// e.g. database drivers).
				if owner, taken := owners[out.Path]; taken && owner != f.ID && !contains(f.ConflictsWith, owner) {
					return &IntegrityError{Feature: f.ID, Detail: fmt.Sprintf("output path %q already claimed by %q", out.Path, owner)}
				}
				owners[out.Path] = f.ID
			case AppendBlock:
				// Append-block files are shared; sentinels are scoped per
				// feature id, so overlap is safe by construction.
			default:
				return &IntegrityError{Feature: f.ID, Detail: fmt.Sprintf("output %q has unknown strategy %q", out.Path, out.Strategy)}
			}
			if out.Strategy == StructuredMerge && out.Mutation == nil {
				return &IntegrityError{Feature: f.ID, Detail: fmt.Sprintf("structured-merge output %q declares no mutation", out.Path)}
			}
		}

		for _, m := range f.Mutations {
			switch m.Kind {
			case AddDependency, AppendEnvVar, InsertMarkedBlock, RegisterImport:
			default:
				return &IntegrityError{Feature: f.ID, Detail: fmt.Sprintf("mutation on %q has unknown kind %q", m.Path, m.Kind)}
			}
			if m.Path == "" || m.Payload == "" {
				return &IntegrityError{Feature: f.ID, Detail: "mutation with empty path or payload"}
			}
		}

		for name, p := range f.Parameters {
			switch p.Type {
			case "string", "bool", "int":
			case "enum":
				if len(p.Values) == 0 {
					return &IntegrityError{Feature: f.ID, Detail: fmt.Sprintf("enum parameter %q declares no values", name)}
				}
			default:
				return &IntegrityError{Feature: f.ID, Detail: fmt.Sprintf("parameter %q has unknown type %q", name, p.Type)}
			}
		}
	}

	return nil
}

// ValidateParams checks user-supplied arguments against the feature's
// declared parameters and fills in defaults. Returns the effective map.
func (r *Registry) ValidateParams(f *Feature, supplied map[string]string) (map[string]string, error) {
	effective := make(map[string]string, len(f.Parameters))
	for name, p := range f.Parameters {
		if p.Default != "" {
			effective[name] = p.Default
		}
	}
	for name, value := range supplied {
		p, ok := f.Parameters[name]
		if !ok {
			return nil, fmt.Errorf("feature %q has no parameter %q", f.ID, name)
		}
		if p.Type == "enum" && !contains(p.Values, value) {
			return nil, fmt.Errorf("feature %q: parameter %q must be one of %s", f.ID, name, strings.Join(p.Values, ", "))
		}
		effective[name] = value
	}
	return effective, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
