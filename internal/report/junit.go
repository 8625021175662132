package report

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// ErrNotJUnit is returned for XML documents whose root is neither
// <testsuites> nor <testsuite>.
var ErrNotJUnit = errors.New("not a junit report")

type suiteXML struct {
	Name      string     `xml:"name,attr"`
	Suites    []suiteXML `xml:"testsuite"`
	Cases     []caseXML  `xml:"testcase"`
	SystemOut string     `xml:"system-out"`
	SystemErr string     `xml:"system-err"`
}

type caseXML struct {
	Name      string      `xml:"name,attr"`
	ClassName string      `xml:"classname,attr"`
	Time      string      `xml:"time,attr"`
	Failure   *problemXML `xml:"failure"`
	Error     *problemXML `xml:"error"`
	Skipped   *problemXML `xml:"skipped"`
	SystemOut string      `xml:"system-out"`
	SystemErr string      `xml:"system-err"`
}

type problemXML struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// Parse reads one JUnit XML document.
func Parse(r io.Reader) (*Report, error) {
	dec := xml.NewDecoder(r)
	// honours declared encodings such as ISO-8859-1
	dec.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty document", ErrNotJUnit)
		}
		if err != nil {
			return nil, fmt.Errorf("parse junit: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "testsuites" && start.Name.Local != "testsuite" {
			return nil, fmt.Errorf("%w: root element <%s>", ErrNotJUnit, start.Name.Local)
		}
		var root suiteXML
		if err := dec.DecodeElement(&root, &start); err != nil {
			return nil, fmt.Errorf("parse junit: %w", err)
		}
		rep := &Report{}
		addSuite(rep, root)
		return rep, nil
	}
}

// ParseFile reads one JUnit XML file.
func ParseFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rep, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}

// LoadFiles expands glob patterns and merges every matching file into one
// report. Files are read in lexical order; each file is read once even when
// several patterns match it. No match at all yields an empty report.
func LoadFiles(patterns ...string) (*Report, error) {
	seen := map[string]bool{}
	var files []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	rep := &Report{}
	for _, f := range files {
		part, err := ParseFile(f)
		if err != nil {
			return nil, err
		}
		rep.Merge(part)
	}
	return rep, nil
}

func addSuite(rep *Report, s suiteXML) {
	for _, child := range s.Suites {
		addSuite(rep, child)
	}
	for _, c := range s.Cases {
		className := c.ClassName
		if className == "" {
			className = s.Name
		}
		pkgName, simple := splitClassName(className)
		tc := &Case{
			Name:      c.Name,
			ClassName: className,
			Duration:  parseSeconds(c.Time),
			Stdout:    strings.TrimSpace(c.SystemOut),
			Stderr:    strings.TrimSpace(c.SystemErr),
		}
		problem := c.Failure
		if problem == nil {
			problem = c.Error
		}
		if problem != nil {
			tc.Failed = true
			tc.ErrorDetails = problem.Message
			tc.ErrorStackTrace = strings.TrimSpace(problem.Body)
		}
		if c.Skipped != nil && !tc.Failed {
			tc.Skipped = true
		}
		cls := rep.pkg(pkgName).class(simple)
		cls.Cases = append(cls.Cases, tc)
	}
}

// splitClassName splits "a.b.C" into ("a.b", "C").
func splitClassName(name string) (string, string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

func parseSeconds(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
