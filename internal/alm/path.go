package alm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	// ResourceTestFolders is the plan folder tree.
	ResourceTestFolders = "test-folders"
	// ResourceTestSetFolders is the lab folder tree.
	ResourceTestSetFolders = "test-set-folders"
)

// SplitPath splits a "/" separated folder path, dropping empty segments.
func SplitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// ResolvePath walks segments from the root (parent id 0), querying the query's
// resource for a child with the current parent id and the segment name. The
// first match wins; a miss stops the walk with a *PathNotFoundError.
func ResolvePath(ctx context.Context, q *Query, segments []string) (*Entity, error) {
	if len(segments) == 0 {
		return nil, &PathNotFoundError{Resource: q.resource, Path: segments}
	}
	parentID := 0
	var entity *Entity
	for i, name := range segments {
		found, err := q.Filter(`parent-id[={0}];name["{1}"]`, parentID, name).Execute(ctx)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, &PathNotFoundError{Resource: q.resource, Path: segments, Depth: i + 1}
		}
		entity = found[0]
		id, err := entity.ID()
		if err != nil {
			return nil, err
		}
		if parentID, err = strconv.Atoi(id); err != nil {
			return nil, fmt.Errorf("%s %q: non-numeric id %q: %w", q.resource, name, id, err)
		}
	}
	return entity, nil
}
