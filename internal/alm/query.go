package alm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PageSize is the number of entities requested per page.
const PageSize = 50

// Query is a reusable, project-scoped collection query. The builder state set
// before Execute is kept between calls; results are never cached.
type Query struct {
	session  *Session
	root     target
	resource string
	filter   string
	fields   []string
}

// Resource selects the collection, e.g. "tests".
func (q *Query) Resource(name string) *Query {
	q.resource = name
	return q
}

// Filter sets the server-side filter. template uses positional placeholders
// {0}, {1}, ... which are replaced with params; the result is wrapped in braces.
//
//	q.Filter(`parent-id[={0}];name["{1}"]`, 0, "Subject")
func (q *Query) Filter(template string, params ...any) *Query {
	q.filter = "{" + formatTemplate(template, params...) + "}"
	return q
}

// Fields records a field projection.
// TODO: send the projection as the "fields" query parameter; it is accepted but not applied.
func (q *Query) Fields(names ...string) *Query {
	q.fields = append([]string(nil), names...)
	return q
}

// Execute fetches every page of the collection, starting from start-index 1,
// until a page comes back empty. Entities are bound to the collection endpoint.
func (q *Query) Execute(ctx context.Context) ([]*Entity, error) {
	if strings.TrimSpace(q.resource) == "" {
		return nil, errors.New("query: empty resource")
	}
	collection := q.root.path(q.resource)
	var results []*Entity
	for page := 0; ; page++ {
		params := url.Values{}
		if q.filter != "" {
			params.Set("query", q.filter)
		}
		params.Set("page-size", strconv.Itoa(PageSize))
		params.Set("start-index", strconv.Itoa(page*PageSize+1))
		body, err := q.session.get(ctx, collection, params)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.resource, err)
		}
		records, err := UnmarshalRecords(body)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.resource, err)
		}
		if len(records) == 0 {
			return results, nil
		}
		for _, r := range records {
			results = append(results, &Entity{session: q.session, collection: collection, record: r})
		}
	}
}

// formatTemplate substitutes {N} placeholders. Placeholders without a matching
// parameter are left as written.
func formatTemplate(template string, params ...any) string {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		if template[i] == '{' {
			if end := strings.IndexByte(template[i:], '}'); end > 1 {
				if n, err := strconv.Atoi(template[i+1 : i+end]); err == nil && n >= 0 && n < len(params) {
					fmt.Fprint(&b, params[n])
					i += end
					continue
				}
			}
		}
		b.WriteByte(template[i])
	}
	return b.String()
}
