// Package engine coordinates one apply: plan, stage, validate, commit.
//
// The coordinator is a state machine per Apply call:
//
//	OPEN → STAGING → VALIDATING → COMMITTING → DONE
//	OPEN → STAGING → ABORTED (any failure)
//
// No partial application is ever visible in the live tree: every write
// lands in a staging scope, and a failure at any point before COMMITTING
// discards the scope, leaving the project byte-identical.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/simonhull/bowerbird/internal/diff"
	"github.com/simonhull/bowerbird/internal/logging"
	"github.com/simonhull/bowerbird/internal/manifest"
	"github.com/simonhull/bowerbird/internal/merge"
	"github.com/simonhull/bowerbird/internal/project"
	"github.com/simonhull/bowerbird/internal/registry"
	"github.com/simonhull/bowerbird/internal/render"
	"github.com/simonhull/bowerbird/internal/resolver"
	"golang.org/x/sync/errgroup"
)

// DefaultLockWait bounds how long a concurrent apply blocks on the
// project lock before failing with manifest.LockedError.
const DefaultLockWait = 5 * time.Second

// Options configures one Apply call.
type Options struct {
	// Force bypasses UserModifiedError on overwrite-owned outputs.
	Force bool
	// DryRun stages and validates everything, then discards the scope
	// and reports diffs instead of committing.
	DryRun bool
	// LockWait bounds the wait for the project lock. Zero means
	// DefaultLockWait.
	LockWait time.Duration
}

// Result reports what an apply did (or, for a dry run, would do).
type Result struct {
	Installed []string          // feature ids newly installed, in plan order
	Upgraded  []string          // feature ids re-applied at a new version
	Written   []string          // project-relative paths created or modified
	Diffs     map[string]string // dry run only: path -> unified diff
}

// Coordinator runs applies against projects using one catalog.
type Coordinator struct {
	reg      *registry.Registry
	resolver *resolver.Resolver
	renderer *render.Renderer
}

// New creates a coordinator over the given catalog.
func New(reg *registry.Registry) *Coordinator {
	return &Coordinator{
		reg:      reg,
		resolver: resolver.New(reg),
		renderer: render.New(),
	}
}

// Plan resolves a request without touching the project. Used by the plan
// command and by tests.
func (c *Coordinator) Plan(proj *project.Info, requests []resolver.Request) (*resolver.Plan, error) {
	man, err := manifest.Load(proj.Root)
	if err != nil {
		return nil, err
	}
	return c.resolver.Resolve(requests, man.InstalledVersions())
}

// Apply installs the requested features into the project. On failure the
// project tree is untouched and the returned error is one of the typed
// failures (conflict, cycle, render, collision, user-modified, ambiguity,
// locked, corruption) naming the feature and path implicated.
func (c *Coordinator) Apply(ctx context.Context, proj *project.Info, requests []resolver.Request, opts Options) (*Result, error) {
	log := logging.Logger("engine")

	if opts.LockWait == 0 {
		opts.LockWait = DefaultLockWait
	}

	// OPEN: serialize against concurrent applies, load state, repair any
	// interrupted commit, and plan.
	lock, err := manifest.Acquire(ctx, proj.Root, opts.LockWait)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	man, err := manifest.Load(proj.Root)
	if err != nil {
		return nil, err
	}
	if demoted, err := manifest.Reconcile(man); err != nil {
		return nil, err
	} else if len(demoted) > 0 {
		log.Warn().Int("files", len(demoted)).Msg("manifest reconciled after interrupted commit")
	}

	plan, err := c.resolver.Resolve(requests, man.InstalledVersions())
	if err != nil {
		return nil, err
	}
	if len(plan.Steps) == 0 {
		log.Debug().Msg("request already satisfied; nothing to apply")
		return &Result{}, nil
	}
	log.Info().Strs("plan", plan.IDs()).Msg("resolved application plan")

	staging, err := openStaging(proj.Root, declaredPaths(plan))
	if err != nil {
		return nil, err
	}
	defer staging.discard()

	// STAGING: render and merge every planned feature, in plan order.
	eng := merge.NewEngine(staging, man, opts.Force)
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.stageFeature(ctx, eng, staging, proj, step); err != nil {
			log.Debug().Str("feature", step.Feature.ID).Err(err).Msg("staging aborted")
			return nil, err
		}
	}

	// VALIDATING: nothing outside the declared set, and every structured
	// target still parses.
	if err := staging.validate(); err != nil {
		return nil, err
	}
	for _, rel := range staging.changedPaths() {
		if !isStructuredTarget(rel) {
			continue
		}
		content, _, err := staging.Read(rel)
		if err != nil {
			return nil, err
		}
		if err := merge.ValidateStructured(rel, content); err != nil {
			return nil, err
		}
	}

	result := &Result{Written: staging.changedPaths()}
	for _, step := range plan.Steps {
		if step.Upgrade {
			result.Upgraded = append(result.Upgraded, step.Feature.ID)
		} else {
			result.Installed = append(result.Installed, step.Feature.ID)
		}
	}

	if opts.DryRun {
		result.Diffs = make(map[string]string, len(result.Written))
		for _, rel := range result.Written {
			staged, _, err := staging.Read(rel)
			if err != nil {
				return nil, err
			}
			live, err := os.ReadFile(filepath.Join(proj.Root, rel))
			if err != nil && !os.IsNotExist(err) {
				return nil, err
			}
			result.Diffs[rel] = diff.Unified(rel, live, staged)
		}
		return result, nil
	}

	// COMMITTING: journal, swap, record. This phase runs to completion;
	// cancellation is not honored past this point because every step is
	// a local, near-atomic rename.
	journal := make(map[string]string, len(result.Written))
	for _, rel := range result.Written {
		content, _, err := staging.Read(rel)
		if err != nil {
			return nil, err
		}
		journal[rel] = manifest.Fingerprint(content)
	}
	if err := manifest.WriteJournal(proj.Root, journal); err != nil {
		return nil, err
	}

	for _, rel := range result.Written {
		if err := staging.commitFile(rel); err != nil {
			return nil, fmt.Errorf("committing %s: %w", rel, err)
		}
	}

	for _, step := range plan.Steps {
		man.RecordInstall(step.Feature.ID, step.Feature.Version)
	}
	// Refresh fingerprints for every committed path that is (or became)
	// owned. Mutations never claim ownership, but a mutation into a file
	// some feature owns still changes its bytes; without the refresh the
	// owner's next upgrade would mistake the engine's own write for a
	// user edit.
	owners := staging.ownedWriters()
	for _, rel := range result.Written {
		feature, claimed := owners[rel]
		if !claimed {
			prior, owned := man.Owned[rel]
			if !owned {
				continue // project-owned target (go.mod, .env)
			}
			feature = prior.Feature
		}
		content, _, err := staging.Read(rel)
		if err != nil {
			return nil, err
		}
		man.RecordWrite(rel, feature, content)
	}

	if err := man.Save(); err != nil {
		return nil, err
	}
	if err := manifest.ClearJournal(proj.Root); err != nil {
		return nil, err
	}

	log.Info().
		Strs("installed", result.Installed).
		Strs("upgraded", result.Upgraded).
		Int("files", len(result.Written)).
		Msg("apply committed")
	return result, nil
}

// stageFeature renders one feature's outputs in parallel, resolves them in
// declaration order, then applies its config mutations serially. Mutation
// order matters: later mutations may anchor on earlier ones.
func (c *Coordinator) stageFeature(ctx context.Context, eng *merge.Engine, staging *stagingScope, proj *project.Info, step resolver.Step) error {
	f := step.Feature
	data := templateData(proj, step)

	candidates := make([]merge.Candidate, len(f.Outputs))
	g, _ := errgroup.WithContext(ctx)
	for i, out := range f.Outputs {
		g.Go(func() error {
			content, err := c.renderer.RenderFS(c.reg.Templates(), out.Template, data)
			if err != nil {
				return err
			}
			cand := merge.Candidate{
				Feature:  f.ID,
				Path:     out.Path,
				Strategy: out.Strategy,
				Content:  content,
				Mutation: out.Mutation,
			}
			if out.Mutation != nil {
				payload, err := c.renderer.RenderString(f.ID+":"+out.Path, out.Mutation.Payload, data)
				if err != nil {
					return err
				}
				cand.Payload = string(payload)
			}
			candidates[i] = cand
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, cand := range candidates {
		changed, err := eng.Resolve(cand, step.Upgrade)
		if err != nil {
			return err
		}
		if changed {
			staging.recordWriter(cand.Path, f.ID)
		}
	}

	for _, m := range f.Mutations {
		payload, err := c.renderer.RenderString(f.ID+":"+m.Path, m.Payload, data)
		if err != nil {
			return err
		}
		if _, err := eng.ApplyMutation(f.ID, m, string(payload)); err != nil {
			return err
		}
	}

	return nil
}

// declaredPaths collects every destination the plan may touch, for
// seeding and for the post-staging containment check.
func declaredPaths(plan *resolver.Plan) []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, step := range plan.Steps {
		for _, out := range step.Feature.Outputs {
			add(out.Path)
		}
		for _, m := range step.Feature.Mutations {
			add(m.Path)
		}
	}
	return paths
}

// templateData builds the render context. Precedence, lowest to highest:
// project settings, validated feature parameters, computed values.
func templateData(proj *project.Info, step resolver.Step) map[string]any {
	return map[string]any{
		"Project": map[string]any{
			"Name":      proj.Name,
			"Module":    proj.Module,
			"GoVersion": proj.GoVersion,
		},
		"Params": step.Params,
		"Feature": map[string]any{
			"ID":      step.Feature.ID,
			"Version": step.Feature.Version,
		},
	}
}
