// Package resolver turns a feature request into an ordered application plan.
package resolver

import (
	"fmt"
	"strings"

	"github.com/simonhull/bowerbird/internal/registry"
)

// Request names one feature to install, with user-supplied parameters.
type Request struct {
	ID     string
	Params map[string]string
}

// Step is one entry in an application plan.
type Step struct {
	Feature *registry.Feature
	Params  map[string]string
	// Upgrade marks a re-apply of an already-installed feature whose
	// catalog version differs from the installed one. Upgrades use
	// overwrite-owned semantics for the feature's outputs.
	Upgrade bool
}

// Plan is an ordered sequence of steps such that every feature's
// requirements appear earlier. A plan may be empty (the request was
// fully satisfied already).
type Plan struct {
	Steps []Step
}

// IDs returns the planned feature ids in order.
func (p *Plan) IDs() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.Feature.ID
	}
	return ids
}

// ConflictError reports two features that may never co-exist. Either may
// already be installed; the request is rejected before any I/O.
type ConflictError struct {
	A, B string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("features %q and %q conflict", e.A, e.B)
}

// CycleError reports a requires cycle in the catalog closure of a request.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// Resolver computes application plans against one catalog.
type Resolver struct {
	reg *registry.Registry
}

// New creates a resolver over the given catalog.
func New(reg *registry.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve computes the plan for installing the requested features into a
// project whose installed features (id -> version) are given.
//
// The result is deterministic: the same request against the same catalog
// and installed set always yields an identical plan. Declaration order in
// the request breaks ties between otherwise unordered features.
func (r *Resolver) Resolve(requests []Request, installed map[string]string) (*Plan, error) {
	// Dedup requests, keeping the first occurrence of each id.
	seen := make(map[string]bool)
	var ordered []Request
	for _, req := range requests {
		if seen[req.ID] {
			continue
		}
		seen[req.ID] = true
		ordered = append(ordered, req)
	}

	// Validate ids and params up front; param errors must surface even
	// for requests that plan to a no-op.
	params := make(map[string]map[string]string)
	for _, req := range ordered {
		f, err := r.reg.Lookup(req.ID)
		if err != nil {
			return nil, err
		}
		eff, err := r.reg.ValidateParams(f, req.Params)
		if err != nil {
			return nil, err
		}
		params[req.ID] = eff
	}

	// Build the closure over target ∪ installed, assigning each node a
	// deterministic order index: request declaration order first, then
	// discovery order of transitive requirements.
	order := make(map[string]int)
	next := 0
	assign := func(id string) {
		if _, ok := order[id]; !ok {
			order[id] = next
			next++
		}
	}

	var queue []string
	for _, req := range ordered {
		assign(req.ID)
		queue = append(queue, req.ID)
	}
	for id := range installed {
		if _, err := r.reg.Lookup(id); err != nil {
			// Installed feature no longer in the catalog: drop it from
			// planning entirely. No catalog feature can name it either,
			// since the registry rejects unknown requires/conflicts ids
			// at load time.
			continue
		}
		assign(id)
		queue = append(queue, id)
	}

	closure := make(map[string]*registry.Feature)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, done := closure[id]; done {
			continue
		}
		f, err := r.reg.Lookup(id)
		if err != nil {
			return nil, err
		}
		closure[id] = f
		for _, req := range f.Requires {
			assign(req)
			queue = append(queue, req)
		}
	}

	nodes := sortByOrder(closure, order)

	// Conflicts fail the whole request, even against installed features.
	for _, a := range nodes {
		for _, c := range a.ConflictsWith {
			if _, present := closure[c]; present {
				first, second := a.ID, c
				if order[second] < order[first] {
					first, second = second, first
				}
				return nil, &ConflictError{A: first, B: second}
			}
		}
	}

	// Restrict the sort to nodes that actually need applying: not yet
	// installed, or requested at a different catalog version (upgrade).
	toApply := make(map[string]bool)
	upgrade := make(map[string]bool)
	for _, f := range nodes {
		installedVersion, isInstalled := installed[f.ID]
		if !isInstalled {
			toApply[f.ID] = true
			continue
		}
		if seen[f.ID] && installedVersion != f.Version {
			toApply[f.ID] = true
			upgrade[f.ID] = true
		}
	}

	steps, err := r.topoSort(closure, order, toApply)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	for _, f := range steps {
		stepParams := params[f.ID]
		if stepParams == nil {
			// Pulled in transitively: defaults only.
			stepParams, err = r.reg.ValidateParams(f, nil)
			if err != nil {
				return nil, err
			}
		}
		plan.Steps = append(plan.Steps, Step{
			Feature: f,
			Params:  stepParams,
			Upgrade: upgrade[f.ID],
		})
	}
	return plan, nil
}

// topoSort runs Kahn's algorithm over the to-apply set. Edges from
// already-installed features are treated as satisfied. Ties between ready
// nodes break on the deterministic order index.
func (r *Resolver) topoSort(closure map[string]*registry.Feature, order map[string]int, toApply map[string]bool) ([]*registry.Feature, error) {
	indegree := make(map[string]int)
	dependents := make(map[string][]string)
	for id := range toApply {
		f := closure[id]
		for _, req := range f.Requires {
			if toApply[req] {
				indegree[id]++
				dependents[req] = append(dependents[req], id)
			}
		}
	}

	var ready []string
	for id := range toApply {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	var result []*registry.Feature
	for len(ready) > 0 {
		// Pick the ready node with the smallest order index.
		best := 0
		for i := 1; i < len(ready); i++ {
			if order[ready[i]] < order[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)

		result = append(result, closure[id])
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(result) != len(toApply) {
		return nil, &CycleError{Cycle: findCycle(closure, order, toApply, indegree)}
	}
	return result, nil
}

// findCycle walks requires edges among the stuck nodes until an id repeats.
func findCycle(closure map[string]*registry.Feature, order map[string]int, toApply map[string]bool, indegree map[string]int) []string {
	stuck := make(map[string]bool)
	var start string
	startOrder := -1
	for id := range toApply {
		if indegree[id] > 0 {
			stuck[id] = true
			if startOrder == -1 || order[id] < startOrder {
				start, startOrder = id, order[id]
			}
		}
	}

	visited := make(map[string]int)
	var path []string
	cur := start
	for {
		if pos, again := visited[cur]; again {
			cycle := append([]string{}, path[pos:]...)
			return append(cycle, cur)
		}
		visited[cur] = len(path)
		path = append(path, cur)

		next := ""
		nextOrder := -1
		for _, req := range closure[cur].Requires {
			if stuck[req] && (nextOrder == -1 || order[req] < nextOrder) {
				next, nextOrder = req, order[req]
			}
		}
		if next == "" {
			return path
		}
		cur = next
	}
}

func sortByOrder(closure map[string]*registry.Feature, order map[string]int) []*registry.Feature {
	out := make([]*registry.Feature, 0, len(closure))
	for id := range closure {
		out = append(out, closure[id])
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && order[out[j].ID] < order[out[j-1].ID]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
