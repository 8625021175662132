package syncer

import (
	"regexp"
	"strings"

	"github.com/flarebyte/almsync/internal/alm"
	"github.com/flarebyte/almsync/internal/report"
)

var (
	userFieldPair = regexp.MustCompile(`([^=]+)=([^=]+)(?:,|$)`)
	userFieldList = regexp.MustCompile(`^(([^=]+)=([^=]+)(?:,|$))+$`)
)

// ParseUserDefinedFields parses "key=value,key=value" into ordered fields.
// Fragments without "=" are skipped.
func ParseUserDefinedFields(s string) []alm.Field {
	var out []alm.Field
	for _, m := range userFieldPair.FindAllStringSubmatch(s, -1) {
		out = append(out, alm.Field{Name: m[1], Value: m[2]})
	}
	return out
}

// ValidUserDefinedFields reports whether s is empty or a well-formed
// key=value list.
func ValidUserDefinedFields(s string) bool {
	return s == "" || userFieldList.MatchString(s)
}

// ActualResult is the "actual" text of a failed step: stdout, stderr, error
// message and stack trace, newline separated, empty parts left out.
func ActualResult(c *report.Case) string {
	var parts []string
	for _, s := range []string{c.Stdout, c.Stderr, c.ErrorDetails, c.ErrorStackTrace} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
