package astutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddImportToGroupedBlock(t *testing.T) {
	src := []byte(strings.Join([]string{
		"package main",
		"",
		"import (",
		"\t\"net/http\"",
		")",
		"",
		"func main() {}",
		"",
	}, "\n"))

	out, changed, err := AddImport("main.go", src, "github.com/test/myapp/internal/domain")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, string(out), "\"github.com/test/myapp/internal/domain\"")
	assert.Contains(t, string(out), "\"net/http\"")
}

func TestAddImportToSingleLineImport(t *testing.T) {
	src := []byte("package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println() }\n")

	out, changed, err := AddImport("main.go", src, "os")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, string(out), "\"fmt\"")
	assert.Contains(t, string(out), "\"os\"")

	has, err := HasImport("main.go", out, "os")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestAddImportCreatesDeclarationWhenMissing(t *testing.T) {
	src := []byte("package main\n\nfunc main() {}\n")

	out, changed, err := AddImport("main.go", src, "os")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, string(out), "import")
	assert.Contains(t, string(out), "\"os\"")
}

func TestAddImportIsIdempotent(t *testing.T) {
	src := []byte("package main\n\nimport \"os\"\n\nfunc main() {}\n")

	out, changed, err := AddImport("main.go", src, "os")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, src, out, "a no-op must return the input bytes untouched")
}

func TestAddImportRejectsUnparseableSource(t *testing.T) {
	_, _, err := AddImport("main.go", []byte("package main\n\nfunc {\n"), "os")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing main.go")
}

func TestHasImport(t *testing.T) {
	src := []byte("package main\n\nimport \"net/http\"\n")

	has, err := HasImport("main.go", src, "net/http")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = HasImport("main.go", src, "os")
	require.NoError(t, err)
	assert.False(t, has)
}
