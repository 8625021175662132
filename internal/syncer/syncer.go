// Package syncer publishes a test report to ALM: it makes sure a test exists
// per test class under the plan folder, a test set named after the job exists
// under the lab folder, every test has an instance in that set, and then
// records one run per class with one step per case.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/flarebyte/almsync/internal/alm"
	"github.com/flarebyte/almsync/internal/report"
)

// ErrNoTestResults is returned when the build has no report and
// Settings.FailOnNoTestResults is set.
var ErrNoTestResults = errors.New("no test results found")

// Fixed values expected by the ALM VAPI-XP workflow.
const (
	testSubtype         = "VAPI-XP-TEST"
	testSetSubtype      = "hp.qc.test-set.default"
	testInstanceSubtype = "hp.qc.test-instance.VAPI-XP-TEST"
	runSubtype          = "hp.qc.run.VAPI-XP-TEST"

	statusPassed       = "Passed"
	statusFailed       = "Failed"
	statusNotCompleted = "Not Completed"
)

// Build is what the synchronization needs from the job that produced the report.
type Build interface {
	// Report is nil or empty when the job produced no results.
	Report() *report.Report
	Logger() *slog.Logger
	// JobName names the test set.
	JobName() string
	// DisplayName names each run.
	DisplayName() string
	// Host is recorded on each run.
	Host() string
}

// Settings is the target server, account and location.
type Settings struct {
	URL      string
	Username string
	Password string
	Domain   string
	Project  string
	// PlanFolder is a "/" separated test-folders path, e.g. "Subject/CI".
	PlanFolder string
	// LabFolder is a "/" separated test-set-folders path, e.g. "Root/CI".
	LabFolder string
	// UserDefinedFields is a key=value,key=value list set on created tests.
	UserDefinedFields   string
	FailOnNoTestResults bool
	HTTP                alm.Options
}

// Summary counts what one pass did.
type Summary struct {
	TestsCreated      int  `json:"tests_created"`
	TestsExisting     int  `json:"tests_existing"`
	TestSetCreated    bool `json:"test_set_created"`
	InstancesCreated  int  `json:"instances_created"`
	InstancesExisting int  `json:"instances_existing"`
	Runs              int  `json:"runs"`
	RunSteps          int  `json:"run_steps"`
	// Skipped counts skipped cases, reported as failed steps.
	Skipped int `json:"skipped"`
}

// Folders are the resolved plan and lab folders.
type Folders struct {
	Plan *alm.Entity
	Lab  *alm.Entity
}

// Run performs one synchronization pass. The first failing call aborts the
// pass; entities created before it are left in place.
func Run(ctx context.Context, b Build, s Settings) (Summary, error) {
	log := b.Logger()
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	rep := b.Report()
	if rep.Empty() {
		log.Error("No test results found. Results will not be published to Quality Center.")
		if s.FailOnNoTestResults {
			return Summary{}, ErrNoTestResults
		}
		return Summary{}, nil
	}

	client, err := alm.NewClient(s.URL, s.HTTP)
	if err != nil {
		return Summary{}, err
	}
	log.Info("Synchronizing test results with ALM instance: " + s.URL)
	session, err := client.Login(ctx, s.Username, s.Password)
	if err != nil {
		log.Error("Authentication failed!")
		return Summary{}, err
	}
	defer session.Logout(ctx)

	p := &pass{session: session, build: b, settings: s, log: log, classes: rep.Classes()}
	if err := p.run(ctx); err != nil {
		return p.summary, err
	}
	return p.summary, nil
}

// ResolveFolders resolves the plan and lab folders of s. Folders are never created.
func ResolveFolders(ctx context.Context, session *alm.Session, s Settings) (Folders, error) {
	plan, err := alm.ResolvePath(ctx, session.Query(s.Domain, s.Project).Resource(alm.ResourceTestFolders), alm.SplitPath(s.PlanFolder))
	if err != nil {
		return Folders{}, fmt.Errorf("plan folder %q does not exist: %w", s.PlanFolder, err)
	}
	lab, err := alm.ResolvePath(ctx, session.Query(s.Domain, s.Project).Resource(alm.ResourceTestSetFolders), alm.SplitPath(s.LabFolder))
	if err != nil {
		return Folders{}, fmt.Errorf("lab folder %q does not exist: %w", s.LabFolder, err)
	}
	return Folders{Plan: plan, Lab: lab}, nil
}

type pass struct {
	session  *alm.Session
	build    Build
	settings Settings
	log      *slog.Logger
	classes  []*report.Class
	summary  Summary

	planID    string
	labID     string
	tests     map[string]*alm.Entity // by name
	testsByID map[string]*alm.Entity
	set       *alm.Entity
	setID     string
	instances map[string]*alm.Entity // by test name
}

func (p *pass) run(ctx context.Context) error {
	folders, err := ResolveFolders(ctx, p.session, p.settings)
	if err != nil {
		p.log.Error(err.Error())
		return err
	}
	if p.planID, err = folders.Plan.ID(); err != nil {
		return err
	}
	if p.labID, err = folders.Lab.ID(); err != nil {
		return err
	}
	steps := []func(context.Context) error{
		p.indexTests,
		p.createTests,
		p.ensureTestSet,
		p.indexInstances,
		p.createInstances,
		p.addRuns,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) query() *alm.Query {
	return p.session.Query(p.settings.Domain, p.settings.Project)
}

func (p *pass) create(resource, typ string) *alm.Entity {
	e := p.session.Create(p.settings.Domain, p.settings.Project, resource)
	e.SetType(typ)
	return e
}

func (p *pass) indexTests(ctx context.Context) error {
	found, err := p.query().Resource("tests").Filter("parent-id[={0}]", p.planID).Execute(ctx)
	if err != nil {
		return err
	}
	p.tests = make(map[string]*alm.Entity, len(found))
	p.testsByID = make(map[string]*alm.Entity, len(found))
	for _, e := range found {
		name, err := e.Get("name")
		if err != nil {
			return err
		}
		id, err := e.ID()
		if err != nil {
			return err
		}
		p.tests[name] = e
		p.testsByID[id] = e
	}
	return nil
}

func (p *pass) createTests(ctx context.Context) error {
	for _, cls := range p.classes {
		name := cls.FullName()
		if _, ok := p.tests[name]; ok {
			p.log.Info("Test exists: " + name)
			p.summary.TestsExisting++
			continue
		}
		p.log.Info("Creating test: " + name)
		e := p.create("tests", "test")
		e.Add("name", name)
		e.Add("parent-id", p.planID)
		e.Add("owner", p.settings.Username)
		e.Add("subtype-id", testSubtype)
		for _, f := range ParseUserDefinedFields(p.settings.UserDefinedFields) {
			e.Add(f.Name, f.Value)
		}
		e.Add("status", "Ready")
		if err := e.Post(ctx); err != nil {
			return err
		}
		id, err := e.ID()
		if err != nil {
			return err
		}
		p.tests[name] = e
		p.testsByID[id] = e
		p.summary.TestsCreated++
	}
	return nil
}

func (p *pass) ensureTestSet(ctx context.Context) error {
	jobName := p.build.JobName()
	sets, err := p.query().Resource("test-sets").
		Filter(`parent-id[={0}];name["{1}"]`, p.labID, jobName).
		Execute(ctx)
	if err != nil {
		return err
	}
	if len(sets) > 0 {
		p.log.Info("Test set exists: " + jobName)
		p.set = sets[0]
	} else {
		p.log.Info("Creating test set: " + jobName)
		e := p.create("test-sets", "test-set")
		e.Add("subtype-id", testSetSubtype)
		e.Add("parent-id", p.labID)
		e.Add("name", jobName)
		if err := e.Post(ctx); err != nil {
			return err
		}
		p.set = e
		p.summary.TestSetCreated = true
	}
	p.setID, err = p.set.ID()
	return err
}

func (p *pass) indexInstances(ctx context.Context) error {
	found, err := p.query().Resource("test-instances").Filter("cycle-id[{0}]", p.setID).Execute(ctx)
	if err != nil {
		return err
	}
	p.instances = make(map[string]*alm.Entity, len(found))
	for _, e := range found {
		testID, _ := e.Lookup("test-id")
		test, ok := p.testsByID[testID]
		if !ok {
			p.log.Debug("ignoring test instance of a test outside the plan folder", "test_id", testID)
			continue
		}
		name, err := test.Get("name")
		if err != nil {
			return err
		}
		p.instances[name] = e
	}
	return nil
}

func (p *pass) createInstances(ctx context.Context) error {
	for _, cls := range p.classes {
		name := cls.FullName()
		if _, ok := p.instances[name]; ok {
			p.log.Info("Test instance exists: " + name)
			p.summary.InstancesExisting++
			continue
		}
		p.log.Info("Creating test instance: " + name)
		testID, err := p.tests[name].ID()
		if err != nil {
			return err
		}
		e := p.create("test-instances", "test-instance")
		e.Add("subtype-id", testInstanceSubtype)
		e.Add("test-id", testID)
		e.Add("test-config-id", testID)
		e.Add("cycle-id", p.setID)
		e.Add("test-order", "0")
		if err := e.Post(ctx); err != nil {
			return err
		}
		p.instances[name] = e
		p.summary.InstancesCreated++
	}
	return nil
}

func (p *pass) addRuns(ctx context.Context) error {
	for _, cls := range p.classes {
		if err := p.addRun(ctx, cls); err != nil {
			return err
		}
	}
	return nil
}

// addRun posts the run as "Not Completed" and then moves it to its final
// status; ALM rejects a terminal status on creation.
func (p *pass) addRun(ctx context.Context, cls *report.Class) error {
	status := statusOf(cls.Passed())
	p.log.Info("Adding test run: " + cls.FullName() + " (" + status + ")")
	inst := p.instances[cls.FullName()]
	instID, err := inst.ID()
	if err != nil {
		return err
	}
	testID, err := inst.Get("test-id")
	if err != nil {
		return err
	}
	r := p.create("runs", "run")
	r.Add("subtype-id", runSubtype)
	r.Add("owner", p.settings.Username)
	r.Add("state", "Finished")
	r.Add("cycle-id", p.setID)
	r.Add("testcycl-id", instID)
	r.Add("test-id", testID)
	r.Add("duration", strconv.Itoa(int(math.Round(cls.Duration()))))
	r.Add("name", p.build.DisplayName())
	r.Add("host", p.build.Host())
	r.Add("status", statusNotCompleted)
	if err := r.Post(ctx); err != nil {
		return err
	}
	r.Set("status", status)
	if err := r.Put(ctx); err != nil {
		return err
	}
	p.summary.Runs++

	runID, err := r.ID()
	if err != nil {
		return err
	}
	for _, c := range cls.Cases {
		stepStatus := statusOf(c.Passed())
		step := p.create("runs/"+runID+"/run-steps", "run-step")
		step.Add("parent-id", runID)
		step.Add("name", c.Name)
		step.Add("status", stepStatus)
		if !c.Passed() {
			step.Add("actual", ActualResult(c))
		}
		p.log.Info("Adding test run step: " + c.Name + " (" + stepStatus + ")")
		if err := step.Post(ctx); err != nil {
			return err
		}
		p.summary.RunSteps++
		if c.Skipped {
			p.summary.Skipped++
		}
	}
	return nil
}

func statusOf(passed bool) string {
	if passed {
		return statusPassed
	}
	return statusFailed
}
