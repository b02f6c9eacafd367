package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDependencies(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "fake-tool")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	deps := CheckDependencies(bin, filepath.Join(dir, "missing-tool"), "  ")
	require.Len(t, deps, 2)

	assert.True(t, deps[0].Available)
	assert.Equal(t, bin, deps[0].Path)
	assert.False(t, deps[1].Available)
	assert.NotEmpty(t, deps[1].Error)
	assert.False(t, AllAvailable(deps))
	assert.True(t, AllAvailable(deps[:1]))
}
