package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvName(t *testing.T) {
	assert.Equal(t, "ALMSYNC_SECRET_ALM", EnvName("alm"))
	assert.Equal(t, "ALMSYNC_SECRET_ALM_PROD_2", EnvName("alm-prod.2"))
}

func TestEnvVault(t *testing.T) {
	ctx := context.Background()
	t.Setenv("ALMSYNC_SECRET_ALM", "s3cret")
	dao, err := NewVaultDAO("env")
	require.NoError(t, err)

	md, err := dao.GetSecretMetadata(ctx, "alm")
	require.NoError(t, err)
	assert.Equal(t, SecretMetadata{Name: "alm", IsSet: true, Backend: "env"}, md)

	v, err := dao.GetSecretForInternalUse(ctx, "alm")
	require.NoError(t, err)
	assert.Equal(t, []byte("s3cret"), v)

	_, err = dao.GetSecretForInternalUse(ctx, "missing")
	assert.ErrorContains(t, err, "ALMSYNC_SECRET_MISSING")

	assert.ErrorIs(t, dao.SetSecret(ctx, "alm", []byte("x")), ErrReadOnly)
	assert.ErrorIs(t, dao.UnsetSecret(ctx, "alm"), ErrReadOnly)
}

func TestUnknownBackend(t *testing.T) {
	_, err := NewVaultDAO("hashicorp")
	assert.ErrorContains(t, err, "not implemented")
}

func TestGetSecretUsesConfiguredBackend(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ALMSYNC_HOME_DIR", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("vault:\n  backend: env\n"), 0o644))
	t.Setenv("ALMSYNC_SECRET_ALM", "from-env")

	v, err := GetSecret(context.Background(), "alm")
	require.NoError(t, err)
	assert.Equal(t, "from-env", string(v))
}

func TestGetSecretReturnsPrivateCopies(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ALMSYNC_HOME_DIR", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("vault:\n  backend: env\n"), 0o644))
	t.Setenv("ALMSYNC_SECRET_ALM", "abc")

	a, err := GetSecret(context.Background(), "alm")
	require.NoError(t, err)
	a[0] = 'x'
	b, err := GetSecret(context.Background(), "alm")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(b))
}
