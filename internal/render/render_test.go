package render

import (
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderFS(t *testing.T) {
	fsys := fstest.MapFS{
		"auth-jwt/jwt.go.tmpl": &fstest.MapFile{
			Data: []byte("package auth // for {{ .Project.Name }}\n"),
		},
	}
	r := New()

	out, err := r.RenderFS(fsys, "auth-jwt/jwt.go.tmpl", map[string]any{
		"Project": map[string]any{"Name": "myapp"},
	})
	require.NoError(t, err)
	assert.Equal(t, "package auth // for myapp\n", string(out))
}

func TestRenderFSMissingTemplate(t *testing.T) {
	r := New()

	_, err := r.RenderFS(fstest.MapFS{}, "ghost.tmpl", nil)
	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ghost.tmpl", re.Template)
}

func TestRenderFailsOnMissingKey(t *testing.T) {
	r := New()

	_, err := r.RenderString("payload", "{{ .Params.missing }}", map[string]any{
		"Params": map[string]string{},
	})
	var re *Error
	require.ErrorAs(t, err, &re)
}

func TestRenderStringPayload(t *testing.T) {
	r := New()

	out, err := r.RenderString("env", "DATABASE_URL=postgres://localhost/{{ .Project.Name }}", map[string]any{
		"Project": map[string]any{"Name": "myapp"},
	})
	require.NoError(t, err)
	assert.Equal(t, "DATABASE_URL=postgres://localhost/myapp", string(out))
}

func TestRenderHelperFunctions(t *testing.T) {
	r := New()

	out, err := r.RenderString("helpers",
		`{{ pascalCase .id }} {{ camelCase .id }} {{ snakeCase .id }} {{ upper .id }} {{ quote .id }}`,
		map[string]string{"id": "auth-jwt"})
	require.NoError(t, err)
	assert.Equal(t, `AuthJwt authJwt auth_jwt AUTH-JWT "auth-jwt"`, string(out))
}

func TestRenderCacheIsConcurrencySafe(t *testing.T) {
	fsys := fstest.MapFS{
		"t.tmpl": &fstest.MapFile{Data: []byte("{{ .N }}")},
	}
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.RenderFS(fsys, "t.tmpl", map[string]any{"N": "7"})
			assert.NoError(t, err)
			assert.Equal(t, "7", string(out))
		}()
	}
	wg.Wait()
}

func TestCaseConversions(t *testing.T) {
	assert.Equal(t, "AuthJwt", PascalCase("auth-jwt"))
	assert.Equal(t, "UserName", PascalCase("user_name"))
	assert.Equal(t, "DbPostgres", PascalCase("db-postgres"))
	assert.Equal(t, "", PascalCase(""))

	assert.Equal(t, "authJwt", CamelCase("auth-jwt"))
	assert.Equal(t, "userName", CamelCase("UserName"))

	assert.Equal(t, "auth_jwt", SnakeCase("auth-jwt"))
	assert.Equal(t, "user_name", SnakeCase("UserName"))
	assert.Equal(t, "http_server", SnakeCase("HTTPServer"))
}
