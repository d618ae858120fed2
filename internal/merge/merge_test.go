package merge

import (
	"strings"
	"testing"

	"github.com/simonhull/bowerbird/internal/manifest"
	"github.com/simonhull/bowerbird/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memScope is an in-memory Scope for exercising merge strategies without
// a real staging directory.
type memScope struct {
	files map[string][]byte
}

func newMemScope() *memScope {
	return &memScope{files: make(map[string][]byte)}
}

func (s *memScope) Read(rel string) ([]byte, bool, error) {
	content, ok := s.files[rel]
	return content, ok, nil
}

func (s *memScope) Write(rel string, content []byte) error {
	s.files[rel] = content
	return nil
}

func newManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Load(t.TempDir())
	require.NoError(t, err)
	return m
}

func TestCreateOnlyWritesAbsentFile(t *testing.T) {
	scope := newMemScope()
	eng := NewEngine(scope, newManifest(t), false)

	changed, err := eng.Resolve(Candidate{
		Feature:  "auth-jwt",
		Path:     "internal/auth/jwt.go",
		Strategy: registry.CreateOnly,
		Content:  []byte("package auth\n"),
	}, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "package auth\n", string(scope.files["internal/auth/jwt.go"]))
}

func TestCreateOnlyCollidesWithForeignFile(t *testing.T) {
	scope := newMemScope()
	scope.files["internal/auth/jwt.go"] = []byte("hand written\n")
	eng := NewEngine(scope, newManifest(t), false)

	_, err := eng.Resolve(Candidate{
		Feature:  "auth-jwt",
		Path:     "internal/auth/jwt.go",
		Strategy: registry.CreateOnly,
		Content:  []byte("package auth\n"),
	}, false)
	var pce *PathCollisionError
	require.ErrorAs(t, err, &pce)
	assert.Equal(t, "auth-jwt", pce.Feature)
	assert.Equal(t, "internal/auth/jwt.go", pce.Path)
}

func TestCreateOnlyLeavesOwnedFilesAlone(t *testing.T) {
	scope := newMemScope()
	man := newManifest(t)
	eng := NewEngine(scope, man, false)

	generated := []byte("package auth\n")
	man.RecordWrite("internal/auth/jwt.go", "auth-jwt", generated)

	// Clean: already correct, nothing to do.
	scope.files["internal/auth/jwt.go"] = generated
	changed, err := eng.Resolve(Candidate{
		Feature: "auth-jwt", Path: "internal/auth/jwt.go",
		Strategy: registry.CreateOnly, Content: generated,
	}, false)
	require.NoError(t, err)
	assert.False(t, changed)

	// Edited: the user's version wins.
	edited := []byte("package auth // tweaked\n")
	scope.files["internal/auth/jwt.go"] = edited
	changed, err = eng.Resolve(Candidate{
		Feature: "auth-jwt", Path: "internal/auth/jwt.go",
		Strategy: registry.CreateOnly, Content: generated,
	}, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, edited, scope.files["internal/auth/jwt.go"])
}

func TestOverwriteOwnedRewritesCleanFile(t *testing.T) {
	scope := newMemScope()
	man := newManifest(t)
	eng := NewEngine(scope, man, false)

	old := []byte("package database // v1\n")
	man.RecordWrite("internal/database/database.go", "db-postgres", old)
	scope.files["internal/database/database.go"] = old

	changed, err := eng.Resolve(Candidate{
		Feature: "db-postgres", Path: "internal/database/database.go",
		Strategy: registry.OverwriteOwned, Content: []byte("package database // v2\n"),
	}, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, string(scope.files["internal/database/database.go"]), "v2")
}

func TestOverwriteOwnedRefusesUserEdits(t *testing.T) {
	scope := newMemScope()
	man := newManifest(t)

	man.RecordWrite("internal/database/database.go", "db-postgres", []byte("generated\n"))
	scope.files["internal/database/database.go"] = []byte("user edit\n")

	cand := Candidate{
		Feature: "db-postgres", Path: "internal/database/database.go",
		Strategy: registry.OverwriteOwned, Content: []byte("regenerated\n"),
	}

	_, err := NewEngine(scope, man, false).Resolve(cand, false)
	var ume *UserModifiedError
	require.ErrorAs(t, err, &ume)
	assert.Equal(t, "user edit\n", string(scope.files["internal/database/database.go"]))

	// force reclaims the file.
	changed, err := NewEngine(scope, man, true).Resolve(cand, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "regenerated\n", string(scope.files["internal/database/database.go"]))
}

func TestUpgradePromotesCreateOnly(t *testing.T) {
	scope := newMemScope()
	man := newManifest(t)
	eng := NewEngine(scope, man, false)

	old := []byte("package auth // v1\n")
	man.RecordWrite("internal/auth/jwt.go", "auth-jwt", old)
	scope.files["internal/auth/jwt.go"] = old

	changed, err := eng.Resolve(Candidate{
		Feature: "auth-jwt", Path: "internal/auth/jwt.go",
		Strategy: registry.CreateOnly, Content: []byte("package auth // v2\n"),
	}, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, string(scope.files["internal/auth/jwt.go"]), "v2")
}

func TestAppendBlockCreatesFileWithSentinels(t *testing.T) {
	scope := newMemScope()
	eng := NewEngine(scope, newManifest(t), false)

	changed, err := eng.Resolve(Candidate{
		Feature: "middleware-cors", Path: "cmd/server/main.go",
		Strategy: registry.AppendBlock, Content: []byte("handler = cors(handler)"),
	}, false)
	require.NoError(t, err)
	assert.True(t, changed)

	got := string(scope.files["cmd/server/main.go"])
	assert.Contains(t, got, "// >>> bowerbird:middleware-cors >>>")
	assert.Contains(t, got, "handler = cors(handler)")
	assert.Contains(t, got, "// <<< bowerbird:middleware-cors <<<")
}

func TestAppendBlocksFromTwoFeaturesCoexist(t *testing.T) {
	scope := newMemScope()
	eng := NewEngine(scope, newManifest(t), false)

	base := "package main\n\nfunc main() {}\n"
	scope.files["cmd/server/main.go"] = []byte(base)

	_, err := eng.Resolve(Candidate{
		Feature: "middleware-logging", Path: "cmd/server/main.go",
		Strategy: registry.AppendBlock, Content: []byte("logging setup"),
	}, false)
	require.NoError(t, err)

	_, err = eng.Resolve(Candidate{
		Feature: "middleware-cors", Path: "cmd/server/main.go",
		Strategy: registry.AppendBlock, Content: []byte("cors setup"),
	}, false)
	require.NoError(t, err)

	got := string(scope.files["cmd/server/main.go"])
	assert.True(t, strings.HasPrefix(got, base), "foreign content must stay first and untouched")
	assert.Contains(t, got, "bowerbird:middleware-logging")
	assert.Contains(t, got, "bowerbird:middleware-cors")
	assert.Less(t, strings.Index(got, "logging setup"), strings.Index(got, "cors setup"))
}

func TestAppendBlockReplacesOnlyItsOwnRegion(t *testing.T) {
	scope := newMemScope()
	man := newManifest(t)
	eng := NewEngine(scope, man, false)

	existing := []byte(strings.Join([]string{
		"package main",
		"",
		"// user content above",
		"// >>> bowerbird:middleware-cors >>>",
		"old body",
		"// <<< bowerbird:middleware-cors <<<",
		"// user content below",
		"",
	}, "\n"))
	man.RecordWrite("cmd/server/main.go", "middleware-cors", existing)
	scope.files["cmd/server/main.go"] = existing

	changed, err := eng.Resolve(Candidate{
		Feature: "middleware-cors", Path: "cmd/server/main.go",
		Strategy: registry.AppendBlock, Content: []byte("new body"),
	}, false)
	require.NoError(t, err)
	assert.True(t, changed)

	got := string(scope.files["cmd/server/main.go"])
	assert.Contains(t, got, "new body")
	assert.NotContains(t, got, "old body")
	assert.Contains(t, got, "// user content above")
	assert.Contains(t, got, "// user content below")
}

func TestAppendBlockLeavesUntrackedRegionAlone(t *testing.T) {
	scope := newMemScope()
	eng := NewEngine(scope, newManifest(t), false)

	// The file carries a marked region but nothing in the manifest
	// tracks it, so the region's current body must win.
	existing := strings.Join([]string{
		"package main",
		"",
		"// >>> bowerbird:middleware-cors >>>",
		"hand-tuned body",
		"// <<< bowerbird:middleware-cors <<<",
		"",
	}, "\n")
	scope.files["cmd/server/main.go"] = []byte(existing)

	changed, err := eng.Resolve(Candidate{
		Feature: "middleware-cors", Path: "cmd/server/main.go",
		Strategy: registry.AppendBlock, Content: []byte("regenerated body"),
	}, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, existing, string(scope.files["cmd/server/main.go"]))
}

func TestAppendBlockIsIdempotent(t *testing.T) {
	scope := newMemScope()
	eng := NewEngine(scope, newManifest(t), false)

	cand := Candidate{
		Feature: "middleware-cors", Path: "cmd/server/main.go",
		Strategy: registry.AppendBlock, Content: []byte("setup"),
	}

	changed, err := eng.Resolve(cand, false)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = eng.Resolve(cand, false)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestAddDependencyMutation(t *testing.T) {
	gomod := "module github.com/test/myapp\n\ngo 1.25\n"
	mutation := registry.ConfigMutation{Path: "go.mod", Kind: registry.AddDependency}

	t.Run("inserts new requirement", func(t *testing.T) {
		scope := newMemScope()
		scope.files["go.mod"] = []byte(gomod)
		eng := NewEngine(scope, newManifest(t), false)

		changed, err := eng.ApplyMutation("auth-jwt", mutation, "github.com/golang-jwt/jwt/v5 v5.3.0")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Contains(t, string(scope.files["go.mod"]), "github.com/golang-jwt/jwt/v5 v5.3.0")
	})

	t.Run("same version is a no-op", func(t *testing.T) {
		scope := newMemScope()
		scope.files["go.mod"] = []byte(gomod + "\nrequire github.com/golang-jwt/jwt/v5 v5.3.0\n")
		eng := NewEngine(scope, newManifest(t), false)

		changed, err := eng.ApplyMutation("auth-jwt", mutation, "github.com/golang-jwt/jwt/v5 v5.3.0")
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("different version is ambiguous", func(t *testing.T) {
		scope := newMemScope()
		scope.files["go.mod"] = []byte(gomod + "\nrequire github.com/golang-jwt/jwt/v5 v5.0.0\n")
		eng := NewEngine(scope, newManifest(t), false)

		_, err := eng.ApplyMutation("auth-jwt", mutation, "github.com/golang-jwt/jwt/v5 v5.3.0")
		var ae *AmbiguityError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "go.mod", ae.Path)
	})

	t.Run("missing go.mod is ambiguous", func(t *testing.T) {
		scope := newMemScope()
		eng := NewEngine(scope, newManifest(t), false)

		_, err := eng.ApplyMutation("auth-jwt", mutation, "github.com/golang-jwt/jwt/v5 v5.3.0")
		var ae *AmbiguityError
		require.ErrorAs(t, err, &ae)
	})
}

func TestAppendEnvVarMutation(t *testing.T) {
	mutation := registry.ConfigMutation{Path: ".env", Kind: registry.AppendEnvVar}

	t.Run("creates missing file", func(t *testing.T) {
		scope := newMemScope()
		eng := NewEngine(scope, newManifest(t), false)

		changed, err := eng.ApplyMutation("auth-jwt", mutation, "JWT_SECRET=change-me")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "JWT_SECRET=change-me\n", string(scope.files[".env"]))
	})

	t.Run("appends to existing file", func(t *testing.T) {
		scope := newMemScope()
		scope.files[".env"] = []byte("APP_PORT=8080\n")
		eng := NewEngine(scope, newManifest(t), false)

		changed, err := eng.ApplyMutation("auth-jwt", mutation, "JWT_SECRET=change-me")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "APP_PORT=8080\nJWT_SECRET=change-me\n", string(scope.files[".env"]))
	})

	t.Run("same key and value is a no-op", func(t *testing.T) {
		scope := newMemScope()
		scope.files[".env"] = []byte("JWT_SECRET=change-me\n")
		eng := NewEngine(scope, newManifest(t), false)

		changed, err := eng.ApplyMutation("auth-jwt", mutation, "JWT_SECRET=change-me")
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("same key different value is ambiguous", func(t *testing.T) {
		scope := newMemScope()
		scope.files[".env"] = []byte("JWT_SECRET=user-set\n")
		eng := NewEngine(scope, newManifest(t), false)

		_, err := eng.ApplyMutation("auth-jwt", mutation, "JWT_SECRET=change-me")
		var ae *AmbiguityError
		require.ErrorAs(t, err, &ae)
	})
}

func TestRegisterImportMutation(t *testing.T) {
	mutation := registry.ConfigMutation{Path: "cmd/server/main.go", Kind: registry.RegisterImport}
	source := strings.Join([]string{
		"package main",
		"",
		"import (",
		"\t\"net/http\"",
		")",
		"",
		"func main() {}",
		"",
	}, "\n")

	t.Run("inserts into import block", func(t *testing.T) {
		scope := newMemScope()
		scope.files["cmd/server/main.go"] = []byte(source)
		eng := NewEngine(scope, newManifest(t), false)

		changed, err := eng.ApplyMutation("domain", mutation, "github.com/test/myapp/internal/domain")
		require.NoError(t, err)
		assert.True(t, changed)

		got := string(scope.files["cmd/server/main.go"])
		assert.Contains(t, got, "\"github.com/test/myapp/internal/domain\"")
		assert.Contains(t, got, "\"net/http\"")
	})

	t.Run("already imported is a no-op", func(t *testing.T) {
		scope := newMemScope()
		scope.files["cmd/server/main.go"] = []byte(strings.Replace(source,
			")", "\t\"github.com/test/myapp/internal/domain\"\n)", 1))
		eng := NewEngine(scope, newManifest(t), false)

		changed, err := eng.ApplyMutation("domain", mutation, "github.com/test/myapp/internal/domain")
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("creates import declaration when missing", func(t *testing.T) {
		scope := newMemScope()
		scope.files["cmd/server/main.go"] = []byte("package main\n\nfunc main() {}\n")
		eng := NewEngine(scope, newManifest(t), false)

		changed, err := eng.ApplyMutation("domain", mutation, "github.com/test/myapp/internal/domain")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Contains(t, string(scope.files["cmd/server/main.go"]),
			"\"github.com/test/myapp/internal/domain\"")
	})

	t.Run("unparseable source is ambiguous", func(t *testing.T) {
		scope := newMemScope()
		scope.files["cmd/server/main.go"] = []byte("package main\n\nfunc {\n")
		eng := NewEngine(scope, newManifest(t), false)

		_, err := eng.ApplyMutation("domain", mutation, "github.com/test/myapp/internal/domain")
		var ae *AmbiguityError
		require.ErrorAs(t, err, &ae)
	})
}

func TestStructuredMergeOutput(t *testing.T) {
	mutation := &registry.ConfigMutation{Path: ".env", Kind: registry.AppendEnvVar, Payload: "APP_PORT=8080"}

	t.Run("absent target gets the full rendered file", func(t *testing.T) {
		scope := newMemScope()
		eng := NewEngine(scope, newManifest(t), false)

		changed, err := eng.Resolve(Candidate{
			Feature: "deploy-docker", Path: ".env",
			Strategy: registry.StructuredMerge,
			Content:  []byte("APP_PORT=8080\n"),
			Mutation: mutation, Payload: "APP_PORT=8080",
		}, false)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "APP_PORT=8080\n", string(scope.files[".env"]))
	})

	t.Run("owned target gets only the mutation", func(t *testing.T) {
		scope := newMemScope()
		man := newManifest(t)
		existing := []byte("JWT_SECRET=change-me\n")
		man.RecordWrite(".env", "auth-jwt", existing)
		scope.files[".env"] = existing
		eng := NewEngine(scope, man, false)

		changed, err := eng.Resolve(Candidate{
			Feature: "deploy-docker", Path: ".env",
			Strategy: registry.StructuredMerge,
			Content:  []byte("APP_PORT=8080\n"),
			Mutation: mutation, Payload: "APP_PORT=8080",
		}, false)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, "JWT_SECRET=change-me\nAPP_PORT=8080\n", string(scope.files[".env"]))
	})

	t.Run("unowned target collides", func(t *testing.T) {
		scope := newMemScope()
		scope.files[".env"] = []byte("USER_VAR=1\n")
		eng := NewEngine(scope, newManifest(t), false)

		_, err := eng.Resolve(Candidate{
			Feature: "deploy-docker", Path: ".env",
			Strategy: registry.StructuredMerge,
			Content:  []byte("APP_PORT=8080\n"),
			Mutation: mutation, Payload: "APP_PORT=8080",
		}, false)
		var pce *PathCollisionError
		require.ErrorAs(t, err, &pce)
	})
}

func TestValidateStructured(t *testing.T) {
	assert.NoError(t, ValidateStructured("go.mod", []byte("module x\n\ngo 1.25\n")))
	assert.Error(t, ValidateStructured("go.mod", []byte("mod ule {{{\n")))

	assert.NoError(t, ValidateStructured("docker-compose.yml", []byte("services: {}\n")))
	assert.Error(t, ValidateStructured("docker-compose.yml", []byte("services: [unclosed\n")))

	assert.NoError(t, ValidateStructured(".env", []byte("A=1\n# comment\n\nB=2\n")))
	assert.Error(t, ValidateStructured(".env", []byte("NOT A VAR\n")))

	// Non-structured files are never parsed.
	assert.NoError(t, ValidateStructured("main.go", []byte("not go at all")))
}
