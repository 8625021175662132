// Package report holds the hierarchical test report synchronized to ALM:
// packages contain classes, classes contain cases.
package report

import "sort"

// Report is a set of packages, merged from one or more result files.
type Report struct {
	Packages []*Package
}

// Package groups classes sharing a dotted prefix. The default package has an empty name.
type Package struct {
	Name    string
	Classes []*Class
}

// Class is one test class. Its FullName is the ALM test name.
type Class struct {
	Package string
	Name    string
	Cases   []*Case
}

// Case is one executed test case.
type Case struct {
	Name      string
	ClassName string
	// Duration in seconds.
	Duration        float64
	Skipped         bool
	Failed          bool
	Stdout          string
	Stderr          string
	ErrorDetails    string
	ErrorStackTrace string
}

// Passed reports whether the case ran and did not fail.
func (c *Case) Passed() bool { return !c.Skipped && !c.Failed }

// FullName is "package.Class", or just the class name in the default package.
func (c *Class) FullName() string {
	if c.Package == "" {
		return c.Name
	}
	return c.Package + "." + c.Name
}

// Duration is the sum of the case durations, in seconds.
func (c *Class) Duration() float64 {
	var d float64
	for _, tc := range c.Cases {
		d += tc.Duration
	}
	return d
}

// FailCount is the number of failed cases. Skipped cases are not failures.
func (c *Class) FailCount() int {
	n := 0
	for _, tc := range c.Cases {
		if tc.Failed {
			n++
		}
	}
	return n
}

// SkipCount is the number of skipped cases.
func (c *Class) SkipCount() int {
	n := 0
	for _, tc := range c.Cases {
		if tc.Skipped {
			n++
		}
	}
	return n
}

// Passed reports whether no case of the class failed.
func (c *Class) Passed() bool { return c.FailCount() == 0 }

// Empty reports whether the report carries no class at all.
func (r *Report) Empty() bool {
	if r == nil {
		return true
	}
	for _, p := range r.Packages {
		if len(p.Classes) > 0 {
			return false
		}
	}
	return true
}

// Classes returns every class in report order.
func (r *Report) Classes() []*Class {
	if r == nil {
		return nil
	}
	var out []*Class
	for _, p := range r.Packages {
		out = append(out, p.Classes...)
	}
	return out
}

// Counts returns the number of cases, failures and skips across the report.
func (r *Report) Counts() (total, failed, skipped int) {
	for _, c := range r.Classes() {
		total += len(c.Cases)
		failed += c.FailCount()
		skipped += c.SkipCount()
	}
	return total, failed, skipped
}

// Merge folds other into r. Packages and classes with the same name are
// combined; cases are appended in order.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	for _, op := range other.Packages {
		p := r.pkg(op.Name)
		for _, oc := range op.Classes {
			c := p.class(oc.Name)
			c.Cases = append(c.Cases, oc.Cases...)
		}
	}
}

// Sort orders packages and classes by name, keeping case order.
func (r *Report) Sort() {
	sort.SliceStable(r.Packages, func(i, j int) bool { return r.Packages[i].Name < r.Packages[j].Name })
	for _, p := range r.Packages {
		sort.SliceStable(p.Classes, func(i, j int) bool { return p.Classes[i].Name < p.Classes[j].Name })
	}
}

func (r *Report) pkg(name string) *Package {
	for _, p := range r.Packages {
		if p.Name == name {
			return p
		}
	}
	p := &Package{Name: name}
	r.Packages = append(r.Packages, p)
	return p
}

func (p *Package) class(name string) *Class {
	for _, c := range p.Classes {
		if c.Name == name {
			return c
		}
	}
	c := &Class{Package: p.Name, Name: name}
	p.Classes = append(p.Classes, c)
	return c
}
