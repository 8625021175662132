package report_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flarebyte/almsync/internal/report"
)

const calculatorSuite = `<?xml version="1.0" encoding="UTF-8"?>
<testsuite name="com.acme.CalculatorTest" tests="4" failures="1" errors="1" skipped="1" time="1.75">
  <testcase name="adds" classname="com.acme.CalculatorTest" time="0.25"/>
  <testcase name="divides" classname="com.acme.CalculatorTest" time="1.0">
    <failure message="expected 2 but was 3" type="AssertionError">at com.acme.CalculatorTest.divides(CalculatorTest.java:20)</failure>
    <system-out>dividing</system-out>
    <system-err>warning</system-err>
  </testcase>
  <testcase name="overflows" classname="com.acme.CalculatorTest" time="0.5">
    <error message="boom" type="java.lang.ArithmeticException">trace</error>
  </testcase>
  <testcase name="later" classname="com.acme.CalculatorTest" time="0">
    <skipped/>
  </testcase>
</testsuite>`

func TestParseSingleSuite(t *testing.T) {
	rep, err := report.Parse(strings.NewReader(calculatorSuite))
	require.NoError(t, err)
	require.Len(t, rep.Packages, 1)
	assert.Equal(t, "com.acme", rep.Packages[0].Name)

	classes := rep.Classes()
	require.Len(t, classes, 1)
	cls := classes[0]
	assert.Equal(t, "com.acme.CalculatorTest", cls.FullName())
	assert.Equal(t, "CalculatorTest", cls.Name)
	assert.InDelta(t, 1.75, cls.Duration(), 1e-9)
	assert.Equal(t, 2, cls.FailCount())
	assert.Equal(t, 1, cls.SkipCount())
	assert.False(t, cls.Passed())

	require.Len(t, cls.Cases, 4)
	adds, divides, overflows, later := cls.Cases[0], cls.Cases[1], cls.Cases[2], cls.Cases[3]
	assert.True(t, adds.Passed())

	assert.False(t, divides.Passed())
	assert.Equal(t, "expected 2 but was 3", divides.ErrorDetails)
	assert.Equal(t, "at com.acme.CalculatorTest.divides(CalculatorTest.java:20)", divides.ErrorStackTrace)
	assert.Equal(t, "dividing", divides.Stdout)
	assert.Equal(t, "warning", divides.Stderr)

	assert.True(t, overflows.Failed)
	assert.Equal(t, "boom", overflows.ErrorDetails)

	assert.True(t, later.Skipped)
	assert.False(t, later.Passed())
}

func TestParseSuites(t *testing.T) {
	doc := `<testsuites>
  <testsuite name="outer">
    <testsuite name="inner">
      <testcase name="a" classname="pkg.One"/>
    </testsuite>
    <testcase name="b" classname="pkg.Two"/>
    <testcase name="c" classname="Bare"/>
    <testcase name="d"/>
  </testsuite>
</testsuites>`
	rep, err := report.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	var names []string
	for _, c := range rep.Classes() {
		names = append(names, c.FullName())
	}
	assert.Equal(t, []string{"pkg.One", "pkg.Two", "Bare", "outer"}, names)
	assert.True(t, rep.Classes()[2].Passed())
}

func TestSkippedOnlyClassPasses(t *testing.T) {
	rep, err := report.Parse(strings.NewReader(`<testsuite><testcase name="x" classname="a.B"><skipped/></testcase></testsuite>`))
	require.NoError(t, err)
	cls := rep.Classes()[0]
	assert.True(t, cls.Passed())
	assert.False(t, cls.Cases[0].Passed())
}

func TestParseRejectsOtherDocuments(t *testing.T) {
	_, err := report.Parse(strings.NewReader(`<html><body/></html>`))
	assert.ErrorIs(t, err, report.ErrNotJUnit)

	_, err = report.Parse(strings.NewReader(``))
	assert.ErrorIs(t, err, report.ErrNotJUnit)

	_, err = report.Parse(strings.NewReader(`<testsuite><testcase`))
	assert.Error(t, err)
}

func TestParseDurations(t *testing.T) {
	rep, err := report.Parse(strings.NewReader(`<testsuite>
  <testcase name="a" classname="p.C" time="1,200.5"/>
  <testcase name="b" classname="p.C" time="oops"/>
  <testcase name="c" classname="p.C" time=""/>
</testsuite>`))
	require.NoError(t, err)
	assert.InDelta(t, 1200.5, rep.Classes()[0].Duration(), 1e-9)
}

func TestLoadFilesMerges(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("TEST-a.xml", `<testsuite><testcase name="one" classname="p.A"/></testsuite>`)
	write("TEST-b.xml", `<testsuite><testcase name="two" classname="p.A"/><testcase name="x" classname="q.B"/></testsuite>`)
	write("notes.txt", "ignored")

	rep, err := report.LoadFiles(filepath.Join(dir, "TEST-*.xml"), filepath.Join(dir, "*.xml"))
	require.NoError(t, err)
	classes := rep.Classes()
	require.Len(t, classes, 2)
	assert.Equal(t, "p.A", classes[0].FullName())
	require.Len(t, classes[0].Cases, 2)
	assert.Equal(t, "one", classes[0].Cases[0].Name)
	assert.Equal(t, "two", classes[0].Cases[1].Name)

	total, failed, skipped := rep.Counts()
	assert.Equal(t, 3, total)
	assert.Zero(t, failed)
	assert.Zero(t, skipped)
}

func TestLoadFilesNoMatch(t *testing.T) {
	rep, err := report.LoadFiles(filepath.Join(t.TempDir(), "*.xml"))
	require.NoError(t, err)
	assert.True(t, rep.Empty())
}

func TestLoadFilesBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.xml"), []byte("<nope/>"), 0o644))
	_, err := report.LoadFiles(filepath.Join(dir, "*.xml"))
	assert.ErrorIs(t, err, report.ErrNotJUnit)
}

func TestEmpty(t *testing.T) {
	var nilReport *report.Report
	assert.True(t, nilReport.Empty())
	assert.True(t, (&report.Report{Packages: []*report.Package{{Name: "p"}}}).Empty())
}

func TestParseLatin1Document(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<testsuite name=\"com.acme.CafeTest\">" +
		"<testcase name=\"caf\xe9\" classname=\"com.acme.CafeTest\" time=\"0.1\"/>" +
		"</testsuite>"
	rep, err := report.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	classes := rep.Classes()
	require.Len(t, classes, 1)
	require.Len(t, classes[0].Cases, 1)
	assert.Equal(t, "café", classes[0].Cases[0].Name)
}
