package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarebyte/almsync/internal/alm"
	"github.com/flarebyte/almsync/internal/alm/almtest"
	"github.com/flarebyte/almsync/internal/syncer"
)

func TestResolveAppliesFlagsOverConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ALMSYNC_HOME_DIR", home)
	t.Setenv("ALMSYNC_PASSWORD", "")
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(`
alm:
  url: https://alm.example.com/qcbin
  username: ci
  password: from-file
target:
  domain: DEFAULT
  project: demo
  plan_folder: Subject/CI
  lab_folder: Root/CI
`), 0o644))

	var f TargetFlags
	cmd := &cobra.Command{Use: "x"}
	f.Register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--project", "other", "--fail-on-no-results=false", "--timeout", "5s"}))

	cfg, s, err := f.Resolve(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, "other", cfg.Target.Project)
	assert.Equal(t, "other", s.Project)
	assert.Equal(t, "DEFAULT", s.Domain)
	assert.Equal(t, "from-file", s.Password)
	assert.False(t, s.FailOnNoTestResults)
	assert.Equal(t, 5*time.Second, s.HTTP.Timeout)
}

func TestLogin(t *testing.T) {
	srv := almtest.New(t, "ci", "secret")
	s, err := Login(context.Background(), syncerSettings(srv.BaseURL(), "secret"))
	require.NoError(t, err)
	ok, err := s.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Login(context.Background(), syncerSettings(srv.BaseURL(), "bad"))
	assert.ErrorIs(t, err, alm.ErrAuthenticationFailed)
}

func TestDescribeError(t *testing.T) {
	err := fmt.Errorf("create run: %w", &alm.RemoteServiceError{ID: "qccore.x", Title: "nope", StackTrace: "at A"})
	assert.Equal(t, "ALM error qccore.x: nope\nat A", DescribeError(err))
	assert.Equal(t, "plain", DescribeError(errors.New("plain")))
}

func syncerSettings(url, password string) syncer.Settings {
	return syncer.Settings{URL: url, Username: "ci", Password: password}
}
