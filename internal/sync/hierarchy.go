package sync

import (
    "context"
    "fmt"
    "time"

    "github.com/rodri-oliveira/pmo-backend-sub000/internal/adapters/jira"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/domain"
)

// parentRef is the resolved one-level hierarchy of an issue: the epic (or
// other parent) materialized as a local project.
type parentRef struct {
    Key     string
    Project *domain.Project
}

// resolveParent materializes the parent of a child issue as a project of its
// own. The hierarchy is one level deep: a parent's own parent, if the
// tracker ever reports one, is ignored. When the search payload carries only
// the parent key the full issue is fetched once per run.
func (s *Syncer) resolveParent(ctx context.Context, st *runState, iss *jira.Issue, sectionID *int64) (*parentRef, error) {
    if iss.Fields.Parent == nil || iss.Fields.Parent.Key == "" { return nil, nil }
    key := iss.Fields.Parent.Key

    name := iss.Fields.Parent.Fields.Summary
    var planned *time.Time
    if name == "" {
        st.mu.Lock()
        cached, hit := st.projects[key]
        st.mu.Unlock()
        if hit { return &parentRef{Key: key, Project: cached}, nil }
        full, err := s.jira.Issue(ctx, key)
        if err != nil { return nil, fmt.Errorf("fetch parent %s: %w", key, err) }
        name = full.Fields.Summary
        planned = plannedStart(full.Fields)
    }

    p, err := s.resolveProject(ctx, st, key, name, sectionID, planned)
    if err != nil { return nil, fmt.Errorf("parent %s: %w", key, err) }
    return &parentRef{Key: key, Project: p}, nil
}
