// Package merge applies rendered feature outputs to the staged project
// tree.
//
// Every write targets the staging scope, never the live tree. The
// manifest decides whether a destination is absent, foreign, owned and
// untouched, or owned but edited by the user; the output's strategy
// decides what each of those states means.
package merge

import (
	"github.com/simonhull/bowerbird/internal/manifest"
	"github.com/simonhull/bowerbird/internal/registry"
)

// Scope is the staged view of the project tree. Reads see live content
// until the path is written within the current apply; writes are isolated
// until commit.
type Scope interface {
	Read(rel string) (content []byte, present bool, err error)
	Write(rel string, content []byte) error
}

// Candidate is one rendered output ready to be resolved against the tree.
type Candidate struct {
	Feature  string
	Path     string
	Strategy registry.Strategy
	Content  []byte // rendered template output
	Mutation *registry.ConfigMutation
	Payload  string // rendered mutation payload, when Mutation is set
}

// Engine resolves candidates against one staging scope.
type Engine struct {
	scope Scope
	man   *manifest.Manifest
	force bool
}

// NewEngine creates a merge engine for one apply attempt. force bypasses
// UserModifiedError on overwrite-owned outputs.
func NewEngine(scope Scope, man *manifest.Manifest, force bool) *Engine {
	return &Engine{scope: scope, man: man, force: force}
}

// Resolve applies one candidate. upgrade promotes create-only to
// overwrite-owned for re-applied features. Returns true when the staged
// tree changed.
func (e *Engine) Resolve(c Candidate, upgrade bool) (bool, error) {
	current, present, err := e.scope.Read(c.Path)
	if err != nil {
		return false, err
	}
	state := e.man.Classify(c.Path, current, present)

	strategy := c.Strategy
	if upgrade && strategy == registry.CreateOnly {
		strategy = registry.OverwriteOwned
	}

	switch strategy {
	case registry.CreateOnly:
		switch state {
		case manifest.Absent:
			return true, e.scope.Write(c.Path, c.Content)
		case manifest.Unowned:
			return false, &PathCollisionError{Feature: c.Feature, Path: c.Path}
		default:
			// Already correct, or deliberately edited by the user.
			// Either way: leave it alone.
			return false, nil
		}

	case registry.OverwriteOwned:
		switch state {
		case manifest.Absent:
			return true, e.scope.Write(c.Path, c.Content)
		case manifest.Unowned:
			return false, &PathCollisionError{Feature: c.Feature, Path: c.Path}
		case manifest.OwnedClean:
			return true, e.scope.Write(c.Path, c.Content)
		default: // OwnedEdited
			if e.force {
				return true, e.scope.Write(c.Path, c.Content)
			}
			return false, &UserModifiedError{Feature: c.Feature, Path: c.Path}
		}

	case registry.AppendBlock:
		if state == manifest.Absent {
			return true, e.scope.Write(c.Path, renderBlock(c.Path, c.Feature, c.Content))
		}
		if state == manifest.Unowned && hasBlock(current, c.Feature) {
			// A block in a file nothing tracks means the tracking record
			// was lost, not that the block is stale. Rewriting it could
			// clobber edits the user made inside the region.
			return false, nil
		}
		updated, changed := upsertBlock(current, c.Path, c.Feature, c.Content)
		if !changed {
			return false, nil
		}
		return true, e.scope.Write(c.Path, updated)

	case registry.StructuredMerge:
		switch state {
		case manifest.Absent:
			return true, e.scope.Write(c.Path, c.Content)
		case manifest.Unowned:
			return false, &PathCollisionError{Feature: c.Feature, Path: c.Path}
		default:
			updated, err := applyMutation(c.Feature, c.Mutation.Kind, c.Path, c.Payload, current, true)
			if err != nil {
				return false, err
			}
			if string(updated) == string(current) {
				return false, nil
			}
			return true, e.scope.Write(c.Path, updated)
		}
	}

	// Unknown strategies are rejected at registry load time.
	return false, &AmbiguityError{Feature: c.Feature, Path: c.Path, Detail: "unknown merge strategy"}
}

// ApplyMutation applies one config mutation (go.mod dependency, env var,
// marked block, import registration) to the staged tree. Mutations are not
// gated by ownership: they target files the project owns, like go.mod.
// Returns true when the staged tree changed.
func (e *Engine) ApplyMutation(feature string, m registry.ConfigMutation, payload string) (bool, error) {
	current, present, err := e.scope.Read(m.Path)
	if err != nil {
		return false, err
	}

	updated, err := applyMutation(feature, m.Kind, m.Path, payload, current, present)
	if err != nil {
		return false, err
	}
	if present && string(updated) == string(current) {
		return false, nil
	}
	return true, e.scope.Write(m.Path, updated)
}
