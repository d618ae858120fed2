package features_test

import (
	"strings"
	"testing"

	"github.com/simonhull/bowerbird/internal/features"
	"github.com/simonhull/bowerbird/internal/registry"
	"github.com/simonhull/bowerbird/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCatalogLoads(t *testing.T) {
	reg, err := registry.Load(features.Catalog())
	require.NoError(t, err)

	for _, id := range []string{
		"auth-jwt", "auth-oauth",
		"db-postgres", "db-mysql", "db-sqlite",
		"cache-redis", "cache-memory",
		"middleware-logging", "middleware-cors",
		"jobs-worker", "deploy-docker", "domain",
	} {
		_, err := reg.Lookup(id)
		assert.NoError(t, err, "catalog should carry %s", id)
	}
}

// Every output template in the built-in catalog must render with default
// parameters alone; a feature whose defaults cannot render is unusable.
func TestBuiltinTemplatesRenderWithDefaults(t *testing.T) {
	reg, err := registry.Load(features.Catalog())
	require.NoError(t, err)

	r := render.New()
	data := func(f *registry.Feature, params map[string]string) map[string]any {
		return map[string]any{
			"Project": map[string]any{
				"Name":      "myapp",
				"Module":    "github.com/test/myapp",
				"GoVersion": "1.25",
			},
			"Params": params,
			"Feature": map[string]any{
				"ID":      f.ID,
				"Version": f.Version,
			},
		}
	}

	for _, f := range reg.All() {
		params, err := reg.ValidateParams(f, nil)
		require.NoError(t, err, f.ID)

		for _, out := range f.Outputs {
			content, err := r.RenderFS(reg.Templates(), out.Template, data(f, params))
			require.NoError(t, err, "%s: %s", f.ID, out.Template)
			assert.NotEmpty(t, content, "%s: %s", f.ID, out.Template)

			if out.Mutation != nil {
				_, err := r.RenderString(f.ID+":"+out.Path, out.Mutation.Payload, data(f, params))
				require.NoError(t, err, "%s: mutation on %s", f.ID, out.Path)
			}
		}
		for _, m := range f.Mutations {
			payload, err := r.RenderString(f.ID+":"+m.Path, m.Payload, data(f, params))
			require.NoError(t, err, "%s: mutation on %s", f.ID, m.Path)
			if m.Kind == registry.AppendEnvVar {
				assert.Contains(t, string(payload), "=", "%s: env payload must be KEY=VALUE", f.ID)
			}
		}
	}
}

func TestBuiltinGoTemplatesDeclarePackages(t *testing.T) {
	reg, err := registry.Load(features.Catalog())
	require.NoError(t, err)

	r := render.New()
	for _, f := range reg.All() {
		params, err := reg.ValidateParams(f, nil)
		require.NoError(t, err, f.ID)

		for _, out := range f.Outputs {
			if !strings.HasSuffix(out.Path, ".go") || out.Strategy == registry.AppendBlock {
				continue
			}
			content, err := r.RenderFS(reg.Templates(), out.Template, map[string]any{
				"Project": map[string]any{"Name": "myapp", "Module": "github.com/test/myapp", "GoVersion": "1.25"},
				"Params":  params,
				"Feature": map[string]any{"ID": f.ID, "Version": f.Version},
			})
			require.NoError(t, err, "%s: %s", f.ID, out.Template)
			assert.Contains(t, string(content), "package ", "%s: %s", f.ID, out.Path)
		}
	}
}
