package syncer_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarebyte/almsync/internal/alm"
	"github.com/flarebyte/almsync/internal/alm/almtest"
	"github.com/flarebyte/almsync/internal/report"
	"github.com/flarebyte/almsync/internal/syncer"
)

const (
	domain  = "DEFAULT"
	project = "demo"
)

type testBuild struct {
	rep *report.Report
	out bytes.Buffer
	log *slog.Logger
}

func newBuild(rep *report.Report) *testBuild {
	b := &testBuild{rep: rep}
	b.log = slog.New(slog.NewTextHandler(&b.out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return b
}

func (b *testBuild) Report() *report.Report { return b.rep }
func (b *testBuild) Logger() *slog.Logger    { return b.log }
func (b *testBuild) JobName() string         { return "nightly" }
func (b *testBuild) DisplayName() string     { return "#42" }
func (b *testBuild) Host() string            { return "ci-agent-1" }

func sampleReport() *report.Report {
	return &report.Report{Packages: []*report.Package{{
		Name: "com.acme",
		Classes: []*report.Class{
			{Package: "com.acme", Name: "CalculatorTest", Cases: []*report.Case{
				{Name: "adds", Duration: 0.25},
				{Name: "divides", Duration: 1.0, Failed: true,
					Stdout: "X", Stderr: "Y", ErrorDetails: "Z", ErrorStackTrace: "S"},
			}},
			{Package: "com.acme", Name: "StringsTest", Cases: []*report.Case{
				{Name: "trims", Duration: 0.4},
				{Name: "pads", Skipped: true},
			}},
		},
	}}}
}

type fixture struct {
	srv      *almtest.Server
	planID   string
	labID    string
	settings syncer.Settings
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := almtest.New(t, "ci", "secret")
	f := &fixture{
		srv:    srv,
		planID: srv.SeedFolder(domain, project, alm.ResourceTestFolders, "Subject/CI"),
		labID:  srv.SeedFolder(domain, project, alm.ResourceTestSetFolders, "Root/CI"),
	}
	f.settings = syncer.Settings{
		URL:                 srv.BaseURL(),
		Username:            "ci",
		Password:            "secret",
		Domain:              domain,
		Project:             project,
		PlanFolder:          "Subject/CI",
		LabFolder:           "Root/CI",
		UserDefinedFields:   "user-01=Regression,user-02=Nightly",
		FailOnNoTestResults: true,
	}
	return f
}

func (f *fixture) records(resource string) []alm.Record {
	return f.srv.Records(domain, project, resource)
}

func field(r alm.Record, name string) (string, bool) {
	for _, fl := range r.Fields {
		if fl.Name == name {
			return fl.Value, true
		}
	}
	return "", false
}

func mustField(t *testing.T, r alm.Record, name string) string {
	t.Helper()
	v, ok := field(r, name)
	require.True(t, ok, "field %s missing from %s", name, r.Type)
	return v
}

func TestRunCreatesEntityGraph(t *testing.T) {
	f := newFixture(t)
	b := newBuild(sampleReport())

	sum, err := syncer.Run(context.Background(), b, f.settings)
	require.NoError(t, err)
	assert.Equal(t, syncer.Summary{
		TestsCreated:     2,
		TestSetCreated:   true,
		InstancesCreated: 2,
		Runs:             2,
		RunSteps:         4,
		Skipped:          1,
	}, sum)

	tests := f.records("tests")
	require.Len(t, tests, 2)
	calc := tests[0]
	assert.Equal(t, "test", calc.Type)
	var names []string
	for _, fl := range calc.Fields {
		names = append(names, fl.Name)
	}
	assert.Equal(t, []string{"id", "name", "parent-id", "owner", "subtype-id", "user-01", "user-02", "status", "ver-stamp"}, names)
	assert.Equal(t, "com.acme.CalculatorTest", mustField(t, calc, "name"))
	assert.Equal(t, f.planID, mustField(t, calc, "parent-id"))
	assert.Equal(t, "ci", mustField(t, calc, "owner"))
	assert.Equal(t, "VAPI-XP-TEST", mustField(t, calc, "subtype-id"))
	assert.Equal(t, "Regression", mustField(t, calc, "user-01"))
	assert.Equal(t, "Ready", mustField(t, calc, "status"))

	sets := f.records("test-sets")
	require.Len(t, sets, 1)
	set := sets[0]
	assert.Equal(t, "nightly", mustField(t, set, "name"))
	assert.Equal(t, f.labID, mustField(t, set, "parent-id"))
	assert.Equal(t, "hp.qc.test-set.default", mustField(t, set, "subtype-id"))
	setID := mustField(t, set, "id")

	instances := f.records("test-instances")
	require.Len(t, instances, 2)
	inst := instances[0]
	calcID := mustField(t, calc, "id")
	assert.Equal(t, calcID, mustField(t, inst, "test-id"))
	assert.Equal(t, calcID, mustField(t, inst, "test-config-id"))
	assert.Equal(t, setID, mustField(t, inst, "cycle-id"))
	assert.Equal(t, "0", mustField(t, inst, "test-order"))
	assert.Equal(t, "hp.qc.test-instance.VAPI-XP-TEST", mustField(t, inst, "subtype-id"))

	runs := f.records("runs")
	require.Len(t, runs, 2)
	run := runs[0]
	assert.Equal(t, "Failed", mustField(t, run, "status"))
	assert.Equal(t, "Finished", mustField(t, run, "state"))
	assert.Equal(t, "hp.qc.run.VAPI-XP-TEST", mustField(t, run, "subtype-id"))
	assert.Equal(t, setID, mustField(t, run, "cycle-id"))
	assert.Equal(t, mustField(t, inst, "id"), mustField(t, run, "testcycl-id"))
	assert.Equal(t, calcID, mustField(t, run, "test-id"))
	assert.Equal(t, "1", mustField(t, run, "duration"))
	assert.Equal(t, "#42", mustField(t, run, "name"))
	assert.Equal(t, "ci-agent-1", mustField(t, run, "host"))
	assert.Equal(t, "ci", mustField(t, run, "owner"))
	// the skipped case does not fail the class
	assert.Equal(t, "Passed", mustField(t, runs[1], "status"))

	steps := f.records("runs/" + mustField(t, run, "id") + "/run-steps")
	require.Len(t, steps, 2)
	assert.Equal(t, "adds", mustField(t, steps[0], "name"))
	assert.Equal(t, "Passed", mustField(t, steps[0], "status"))
	_, hasActual := field(steps[0], "actual")
	assert.False(t, hasActual)
	assert.Equal(t, "divides", mustField(t, steps[1], "name"))
	assert.Equal(t, "Failed", mustField(t, steps[1], "status"))
	assert.Equal(t, "X\nY\nZ\nS", mustField(t, steps[1], "actual"))

	stringsSteps := f.records("runs/" + mustField(t, runs[1], "id") + "/run-steps")
	require.Len(t, stringsSteps, 2)
	assert.Equal(t, "Failed", mustField(t, stringsSteps[1], "status"))

	log := b.out.String()
	assert.Contains(t, log, "Creating test: com.acme.CalculatorTest")
	assert.Contains(t, log, "Creating test set: nightly")
	assert.Contains(t, log, "Adding test run: com.acme.CalculatorTest (Failed)")
	assert.Contains(t, log, "Adding test run step: divides (Failed)")
}

func TestRunIsIdempotentExceptForRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := syncer.Run(ctx, newBuild(sampleReport()), f.settings)
	require.NoError(t, err)
	b := newBuild(sampleReport())
	sum, err := syncer.Run(ctx, b, f.settings)
	require.NoError(t, err)
	assert.Equal(t, syncer.Summary{
		TestsExisting:     2,
		InstancesExisting: 2,
		Runs:              2,
		RunSteps:          4,
		Skipped:           1,
	}, sum)

	assert.Len(t, f.records("tests"), 2)
	assert.Len(t, f.records("test-sets"), 1)
	assert.Len(t, f.records("test-instances"), 2)
	assert.Len(t, f.records("runs"), 4)

	log := b.out.String()
	assert.Contains(t, log, "Test exists: com.acme.StringsTest")
	assert.Contains(t, log, "Test set exists: nightly")
	assert.Contains(t, log, "Test instance exists: com.acme.StringsTest")
}

func TestRunStatusIsWrittenInTwoPhases(t *testing.T) {
	f := newFixture(t)
	_, err := syncer.Run(context.Background(), newBuild(sampleReport()), f.settings)
	require.NoError(t, err)

	var trail []string
	for _, r := range f.srv.Requests() {
		switch {
		case r.Method == http.MethodPost && r.Resource == "runs":
			status, _ := field(*r.Record, "status")
			trail = append(trail, "post run "+status)
		case r.Method == http.MethodPut && strings.HasPrefix(r.Resource, "runs/"):
			status, _ := field(*r.Record, "status")
			trail = append(trail, "put run "+status)
		case r.Method == http.MethodPost && strings.HasSuffix(r.Resource, "/run-steps"):
			name, _ := field(*r.Record, "name")
			trail = append(trail, "step "+name)
		}
	}
	assert.Equal(t, []string{
		"post run Not Completed", "put run Failed", "step adds", "step divides",
		"post run Not Completed", "put run Passed", "step trims", "step pads",
	}, trail)
}

func TestRunKeepsExistingTestsUntouched(t *testing.T) {
	f := newFixture(t)
	existing := f.srv.Seed(domain, project, "tests", "test",
		alm.Field{Name: "name", Value: "com.acme.StringsTest"},
		alm.Field{Name: "parent-id", Value: f.planID},
		alm.Field{Name: "status", Value: "Design"})

	sum, err := syncer.Run(context.Background(), newBuild(sampleReport()), f.settings)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TestsCreated)
	assert.Equal(t, 1, sum.TestsExisting)
	assert.Zero(t, f.srv.Count(http.MethodPut, "tests/"+existing))

	tests := f.records("tests")
	require.Len(t, tests, 2)
	assert.Equal(t, "Design", mustField(t, tests[0], "status"))
	for _, inst := range f.records("test-instances") {
		if mustField(t, inst, "test-id") == existing {
			return
		}
	}
	t.Fatalf("no instance references the existing test %s", existing)
}

func TestRunIgnoresInstancesOfForeignTests(t *testing.T) {
	f := newFixture(t)
	setID := f.srv.Seed(domain, project, "test-sets", "test-set",
		alm.Field{Name: "parent-id", Value: f.labID}, alm.Field{Name: "name", Value: "nightly"})
	f.srv.Seed(domain, project, "test-instances", "test-instance",
		alm.Field{Name: "test-id", Value: "999"}, alm.Field{Name: "cycle-id", Value: setID})

	sum, err := syncer.Run(context.Background(), newBuild(sampleReport()), f.settings)
	require.NoError(t, err)
	assert.False(t, sum.TestSetCreated)
	assert.Equal(t, 2, sum.InstancesCreated)
	assert.Len(t, f.records("test-instances"), 3)
}

func TestNoTestResults(t *testing.T) {
	unreachable := syncer.Settings{URL: "http://127.0.0.1:1/qcbin", FailOnNoTestResults: true}

	for _, rep := range []*report.Report{nil, {}} {
		b := newBuild(rep)
		_, err := syncer.Run(context.Background(), b, unreachable)
		assert.ErrorIs(t, err, syncer.ErrNoTestResults)
		assert.Contains(t, b.out.String(), "No test results found")
	}

	lenient := unreachable
	lenient.FailOnNoTestResults = false
	sum, err := syncer.Run(context.Background(), newBuild(nil), lenient)
	require.NoError(t, err)
	assert.Equal(t, syncer.Summary{}, sum)
}

func TestRunFailsOnMissingFolder(t *testing.T) {
	f := newFixture(t)
	f.settings.LabFolder = "Root/Missing"
	b := newBuild(sampleReport())
	_, err := syncer.Run(context.Background(), b, f.settings)
	require.ErrorIs(t, err, alm.ErrPathNotFound)
	assert.Contains(t, err.Error(), `lab folder "Root/Missing"`)
	for _, r := range f.srv.Requests() {
		assert.Equal(t, http.MethodGet, r.Method)
	}
}

func TestRunFailsOnBadCredentials(t *testing.T) {
	f := newFixture(t)
	f.settings.Password = "wrong"
	b := newBuild(sampleReport())
	_, err := syncer.Run(context.Background(), b, f.settings)
	assert.ErrorIs(t, err, alm.ErrAuthenticationFailed)
	assert.Empty(t, f.srv.Requests())
	assert.Contains(t, b.out.String(), "Authentication failed!")
}

func TestRunAbortsOnRemoteError(t *testing.T) {
	f := newFixture(t)
	f.srv.FailWith(http.MethodPost, "test-instances", &alm.RemoteServiceError{
		ID:    "qccore.general-error",
		Title: "Test configuration is missing",
	})

	sum, err := syncer.Run(context.Background(), newBuild(sampleReport()), f.settings)
	var rerr *alm.RemoteServiceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "Test configuration is missing", rerr.Title)

	// created entities stay, nothing after the failing call is attempted
	assert.Equal(t, 2, sum.TestsCreated)
	assert.Len(t, f.records("tests"), 2)
	assert.Len(t, f.records("test-sets"), 1)
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, "test-instances"))
	assert.Zero(t, f.srv.Count(http.MethodPost, "runs"))
}
