package almtest

import (
	"fmt"
	"strings"

	"github.com/flarebyte/almsync/internal/alm"
)

type predicate struct {
	field string
	value string
}

// parseFilter understands the subset of the filter syntax the client emits:
// {field[value];field[=value];field["quoted value"]}.
func parseFilter(q string) ([]predicate, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if !strings.HasPrefix(q, "{") || !strings.HasSuffix(q, "}") {
		return nil, fmt.Errorf("filter %q: missing braces", q)
	}
	q = q[1 : len(q)-1]
	var out []predicate
	for _, part := range splitTopLevel(q) {
		open := strings.IndexByte(part, '[')
		if open <= 0 || !strings.HasSuffix(part, "]") {
			return nil, fmt.Errorf("filter predicate %q: expected field[value]", part)
		}
		expr := strings.TrimPrefix(part[open+1:len(part)-1], "=")
		expr = strings.TrimSpace(expr)
		if len(expr) >= 2 && expr[0] == '"' && expr[len(expr)-1] == '"' {
			expr = expr[1 : len(expr)-1]
		}
		out = append(out, predicate{field: strings.TrimSpace(part[:open]), value: expr})
	}
	return out, nil
}

// splitTopLevel splits on ';' outside brackets and quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth, quoted, start := 0, false, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case '[':
			if !quoted {
				depth++
			}
		case ']':
			if !quoted {
				depth--
			}
		case ';':
			if !quoted && depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func matches(r alm.Record, preds []predicate) bool {
	for _, p := range preds {
		if value(r, p.field) != p.value {
			return false
		}
	}
	return true
}
