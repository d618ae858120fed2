package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/simonhull/bowerbird/internal/features"
	"github.com/simonhull/bowerbird/internal/project"
	"github.com/simonhull/bowerbird/internal/registry"
	"github.com/simonhull/bowerbird/internal/resolver"
	"github.com/spf13/viper"
)

// loadCatalog opens the feature catalog: a directory given by --catalog
// (or BOWERBIRD_CATALOG), falling back to the built-in embedded catalog.
func loadCatalog(catalogDir string) (*registry.Registry, error) {
	if catalogDir == "" {
		catalogDir = viper.GetString("catalog")
	}
	if catalogDir == "" {
		return registry.Load(features.Catalog())
	}
	info, err := os.Stat(catalogDir)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", catalogDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog %s is not a directory", catalogDir)
	}
	return registry.Load(os.DirFS(catalogDir))
}

// detectProject locates the target project from the working directory.
func detectProject() (*project.Info, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	proj, err := project.Detect(wd)
	if err != nil {
		return nil, fmt.Errorf("not inside a Go project: %w", err)
	}
	return proj, nil
}

// buildRequests turns positional feature ids and --param values into
// resolver requests. Params are either scoped ("feature.key=value") or
// bare ("key=value"); bare params are only unambiguous with a single
// requested feature.
func buildRequests(ids []string, params []string) ([]resolver.Request, error) {
	requests := make([]resolver.Request, len(ids))
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		requests[i] = resolver.Request{ID: id, Params: map[string]string{}}
		// A repeated id keeps its first slot so scoped params land on
		// the request the resolver will actually plan.
		if _, seen := index[id]; !seen {
			index[id] = i
		}
	}

	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", p)
		}
		if feature, rest, scoped := strings.Cut(key, "."); scoped {
			i, known := index[feature]
			if !known {
				return nil, fmt.Errorf("--param %q names feature %q, which was not requested", p, feature)
			}
			requests[i].Params[rest] = value
			continue
		}
		if len(ids) != 1 {
			return nil, fmt.Errorf("--param %q is ambiguous with multiple features; use feature.key=value", p)
		}
		requests[0].Params[key] = value
	}

	return requests, nil
}
