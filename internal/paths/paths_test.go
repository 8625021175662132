package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomeOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "home")
	t.Setenv(envHome, dir)
	assert.Equal(t, dir, Home())
	assert.Equal(t, filepath.Join(dir, "server.pid"), PIDFile())

	got, err := EnsureHome()
	require.NoError(t, err)
	assert.DirExists(t, got)
}

func TestHomeDefault(t *testing.T) {
	t.Setenv(envHome, "")
	t.Setenv("HOME", "/tmp/someone")
	assert.Equal(t, filepath.Join("/tmp/someone", ".almsync"), Home())
}
