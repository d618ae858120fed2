package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	root := t.TempDir()
	gomod := "module github.com/example/shop\n\ngo 1.25\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte(gomod), 0644))

	info, err := Detect(root)
	require.NoError(t, err)
	assert.Equal(t, "github.com/example/shop", info.Module)
	assert.Equal(t, "1.25", info.GoVersion)
	assert.Equal(t, filepath.Base(root), info.Name)
	assert.True(t, filepath.IsAbs(info.Root))
}

func TestDetectMissingGoMod(t *testing.T) {
	_, err := Detect(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "go.mod not found")
}

func TestDetectInvalidGoMod(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("not a modfile {{{"), 0644))

	_, err := Detect(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing go.mod")
}
