package sync

import (
    "context"
    "encoding/json"
    "fmt"
    "strings"
    "time"

    "github.com/rodri-oliveira/pmo-backend-sub000/internal/adapters/jira"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/domain"
)

type outcome int

const (
    outCreated outcome = iota
    outUpdated
    outSkipped
)

// processIssue reconciles every worklog of one issue. A failing worklog is
// counted and skipped; it never aborts the rest of the issue.
func (s *Syncer) processIssue(ctx context.Context, st *runState, p Params, iss jira.Issue) error {
    code := iss.Fields.Project.Key
    sectionID, err := s.resolveSection(ctx, st, code)
    if err != nil { return err }

    proj, err := s.resolveProject(ctx, st, code, iss.Fields.Project.Name, &sectionID, plannedStart(iss.Fields))
    if err != nil { return err }

    parent, err := s.resolveParent(ctx, st, &iss, &sectionID)
    if err != nil { return err }

    worklogs, err := s.jira.ListWorklogs(ctx, iss.Key)
    if err != nil { return fmt.Errorf("worklogs %s: %w", iss.Key, err) }

    for _, wl := range worklogs {
        out, err := s.processWorklog(ctx, st, p, iss, wl, proj, parent)
        if err != nil {
            st.fail(fmt.Sprintf("%s/worklog %s: %v", iss.Key, wl.ID, err))
            continue
        }
        st.mu.Lock()
        switch out {
        case outCreated:
            st.created++
        case outUpdated:
            st.updated++
        case outSkipped:
            st.skipped++
        }
        st.mu.Unlock()
    }

    st.mu.Lock()
    st.issues++
    st.mu.Unlock()
    return nil
}

// processWorklog maps one remote worklog onto a local time entry and
// upserts it by its remote id. Skips are silent by design: no email, a date
// outside the window, hours out of bounds, or a manual row shielded by the
// provenance guard.
func (s *Syncer) processWorklog(ctx context.Context, st *runState, p Params, iss jira.Issue, wl jira.Worklog, proj *domain.Project, parent *parentRef) (outcome, error) {
    if wl.ID == "" { return outSkipped, nil }
    rc, err := s.resolveResource(ctx, st, wl.Author)
    if err != nil { return outSkipped, err }
    if rc == nil {
        s.log.Debug().Str("issue", iss.Key).Str("worklog", wl.ID).Msg("author without email, skipped")
        return outSkipped, nil
    }

    started, err := parseJiraTime(wl.Started)
    if err != nil { return outSkipped, fmt.Errorf("started %q: %w", wl.Started, err) }
    day := started.Truncate(24 * time.Hour)

    if day.Before(p.From) || day.After(p.To) { return outSkipped, nil }

    hours := float64(wl.TimeSpentSeconds) / 3600.0
    if hours <= 0 || hours > 24 {
        s.log.Warn().Str("issue", iss.Key).Str("worklog", wl.ID).Float64("horas", hours).Msg("hours out of bounds, skipped")
        return outSkipped, nil
    }

    entry := domain.TimeEntry{
        JiraWorklogID: wl.ID,
        ResourceID:    rc.ID,
        ProjectID:     proj.ID,
        IssueKey:      iss.Key,
        IssueType:     iss.Fields.IssueType.Name,
        Date:          day,
        StartedAt:     &started,
        Hours:         hours,
        Description:   adfText(wl.Comment),
        Source:        domain.SourceJira,
    }
    // hierarchy fields travel together: a top-level issue is not a subtask
    // of anything
    if parent != nil {
        entry.SubtaskName = iss.Fields.Summary
        entry.ParentKey = parent.Key
        entry.ParentProjectID = &parent.Project.ID
        entry.ParentProjectName = parent.Project.Name
    }

    id, created, err := s.store.SyncTimeEntry(ctx, entry)
    if err != nil { return outSkipped, fmt.Errorf("upsert: %w", err) }
    if id == 0 { return outSkipped, nil }
    if created { return outCreated, nil }
    return outUpdated, nil
}

// plannedStart derives a project's expected start: the first sprint's start
// date when present, the issue creation date otherwise.
func plannedStart(f jira.IssueFields) *time.Time {
    for _, sp := range f.Sprints {
        if t, err := parseJiraTime(sp.StartDate); err == nil { return &t }
    }
    if t, err := parseJiraTime(f.Created); err == nil { return &t }
    return nil
}

// jiraTimeLayout is the tracker's timestamp format for worklog fields.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

func parseJiraTime(s string) (time.Time, error) {
    if s == "" { return time.Time{}, fmt.Errorf("empty timestamp") }
    t, err := time.Parse(jiraTimeLayout, s)
    if err != nil {
        t, err = time.Parse(time.RFC3339, s)
        if err != nil { return time.Time{}, err }
    }
    return t.UTC(), nil
}

// adfText flattens a worklog comment to plain text. The v3 API returns an
// Atlassian Document node tree, the v2 API a bare string; both decode here.
func adfText(raw json.RawMessage) string {
    if len(raw) == 0 { return "" }
    var plain string
    if err := json.Unmarshal(raw, &plain); err == nil { return strings.TrimSpace(plain) }
    var node map[string]any
    if err := json.Unmarshal(raw, &node); err != nil { return "" }
    var b strings.Builder
    walkADF(node, &b)
    return strings.TrimSpace(b.String())
}

func walkADF(node map[string]any, b *strings.Builder) {
    if t, _ := node["text"].(string); t != "" {
        if b.Len() > 0 { b.WriteByte(' ') }
        b.WriteString(t)
    }
    kids, _ := node["content"].([]any)
    for _, k := range kids {
        if m, ok := k.(map[string]any); ok { walkADF(m, b) }
    }
}
