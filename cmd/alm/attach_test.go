package almcmd

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarebyte/almsync/internal/alm"
	"github.com/flarebyte/almsync/internal/alm/almtest"
)

func runAttach(t *testing.T, srv *almtest.Server, id, file string) error {
	t.Helper()
	t.Setenv("ALMSYNC_HOME_DIR", t.TempDir())
	ALMCmd.SilenceUsage = true
	ALMCmd.SilenceErrors = true
	ALMCmd.SetOut(io.Discard)
	ALMCmd.SetErr(io.Discard)
	ALMCmd.SetArgs([]string{"attach",
		"--url", srv.BaseURL(), "--username", "ci", "--password", "secret",
		"--domain", "DEFAULT", "--project", "demo",
		"--resource", "tests", "--id", id, file})
	return ALMCmd.Execute()
}

func reportFile(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "TEST-com.acme.FooTest.xml")
	require.NoError(t, os.WriteFile(p, []byte("<testsuite/>"), 0o644))
	return p
}

func TestAttachUploadsFile(t *testing.T) {
	srv := almtest.New(t, "ci", "secret")
	id := srv.Seed("DEFAULT", "demo", "tests", "test", alm.Field{Name: "name", Value: "com.acme.FooTest"})

	require.NoError(t, runAttach(t, srv, id, reportFile(t)))
	att := srv.Attachments()
	require.Len(t, att, 1)
	assert.Equal(t, id, att[0].ID)
	assert.Equal(t, "TEST-com.acme.FooTest.xml", att[0].Filename)
}

func TestAttachKeepsRemoteError(t *testing.T) {
	srv := almtest.New(t, "ci", "secret")
	id := srv.Seed("DEFAULT", "demo", "tests", "test", alm.Field{Name: "name", Value: "com.acme.FooTest"})
	srv.FailWith(http.MethodPost, "tests/"+id+"/attachments", &alm.RemoteServiceError{ID: "qccore.general-error", Title: "attachment too large"})

	err := runAttach(t, srv, id, reportFile(t))
	var rerr *alm.RemoteServiceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "attachment too large", rerr.Title)
	assert.Empty(t, srv.Attachments())
}
