package sync

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/rodri-oliveira/pmo-backend-sub000/internal/adapters/jira"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/config"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/domain"
)

// resolveSection maps a remote project code to a local section id, creating
// the section on first sight. The section profile supplies the display name
// and the owning section key (e.g. DTIN issues land in TIN).
func (s *Syncer) resolveSection(ctx context.Context, st *runState, code string) (int64, error) {
    profile, ok := s.cfg.ProfileFor(code)
    if !ok { profile = config.SectionProfile{JiraKey: code, SectionKey: code, Name: "Seção " + code} }
    key := strings.ToUpper(profile.SectionKey)

    st.mu.Lock()
    id, hit := st.sections[key]
    st.mu.Unlock()
    if hit { return id, nil }

    sec, err := s.store.SectionByKey(ctx, key)
    if err != nil { return 0, fmt.Errorf("section %s: %w", key, err) }
    if sec == nil {
        id, err = s.store.CreateSection(ctx, domain.Section{
            Name:           profile.Name,
            Description:    "Criada automaticamente pela sincronização Jira",
            JiraProjectKey: key,
        })
        if err != nil { return 0, fmt.Errorf("create section %s: %w", key, err) }
        s.log.Info().Str("secao", key).Int64("id", id).Msg("section created")
    } else {
        id = sec.ID
    }

    st.mu.Lock()
    st.sections[key] = id
    st.mu.Unlock()
    return id, nil
}

// resolveProject is the single entry point for materializing a project from
// a remote key, whether it is a tracker project (PRJ) or an epic acting as a
// parent (PRJ-1). Existing projects are updated only when a synced field
// actually changed.
func (s *Syncer) resolveProject(ctx context.Context, st *runState, key, name string, sectionID *int64, planned *time.Time) (*domain.Project, error) {
    key = strings.TrimSpace(key)
    if key == "" { return nil, fmt.Errorf("empty project key") }

    st.mu.Lock()
    if p, hit := st.projects[key]; hit {
        st.mu.Unlock()
        return p, nil
    }
    st.mu.Unlock()

    p, err := s.store.ProjectByJiraKey(ctx, key)
    if err != nil { return nil, fmt.Errorf("project %s: %w", key, err) }
    if p == nil {
        statusID, err := s.ensureDefaultStatus(ctx, st)
        if err != nil { return nil, err }
        if name == "" { name = key }
        np := domain.Project{
            Name:           name,
            Description:    "Criado automaticamente pela sincronização Jira",
            JiraProjectKey: key,
            SectionID:      sectionID,
            StatusID:       statusID,
            PlannedStart:   planned,
        }
        id, err := s.store.CreateProject(ctx, np)
        if err != nil { return nil, fmt.Errorf("create project %s: %w", key, err) }
        np.ID = id
        p = &np
        s.log.Info().Str("projeto", key).Int64("id", id).Msg("project created")
    } else {
        dirty := false
        if name != "" && p.Name != name { p.Name = name; dirty = true }
        if p.SectionID == nil && sectionID != nil { p.SectionID = sectionID; dirty = true }
        if dirty {
            if err := s.store.UpdateProject(ctx, *p); err != nil { return nil, fmt.Errorf("update project %s: %w", key, err) }
        }
    }

    st.mu.Lock()
    st.projects[key] = p
    st.mu.Unlock()
    return p, nil
}

func (s *Syncer) ensureDefaultStatus(ctx context.Context, st *runState) (int64, error) {
    st.mu.Lock()
    id := st.defaultStatus
    st.mu.Unlock()
    if id != 0 { return id, nil }
    id, err := s.store.EnsureDefaultStatus(ctx)
    if err != nil { return 0, fmt.Errorf("default status: %w", err) }
    st.mu.Lock()
    st.defaultStatus = id
    st.mu.Unlock()
    return id, nil
}

// resolveResource maps a worklog author to a local resource. The remote
// account id is the primary identity (it survives an email change), email
// the secondary one. An author without an email is looked up remotely once
// and, if still absent, the worklog is not attributable and the caller must
// skip it. Returns (nil, nil) for that case.
func (s *Syncer) resolveResource(ctx context.Context, st *runState, author *jira.User) (*domain.Resource, error) {
    if author == nil { return nil, nil }
    email := strings.TrimSpace(author.Email)
    name := author.DisplayName
    active := author.Active
    if email == "" && author.AccountID != "" {
        u, err := s.jira.User(ctx, author.AccountID)
        if err != nil {
            s.log.Warn().Err(err).Str("account", author.AccountID).Msg("user lookup failed")
        } else if u != nil {
            email = strings.TrimSpace(u.Email)
            if name == "" { name = u.DisplayName }
            active = u.Active
        }
    }
    if email == "" { return nil, nil }
    emailKey := strings.ToLower(email)

    st.mu.Lock()
    rc, hit := st.resources[emailKey]
    if !hit && author.AccountID != "" { rc, hit = st.resources[author.AccountID] }
    st.mu.Unlock()
    if hit { return rc, nil }

    var err error
    if author.AccountID != "" {
        rc, err = s.store.ResourceByJiraUserID(ctx, author.AccountID)
        if err != nil { return nil, fmt.Errorf("resource %s: %w", author.AccountID, err) }
    }
    if rc == nil {
        rc, err = s.store.ResourceByEmail(ctx, email)
        if err != nil { return nil, fmt.Errorf("resource %s: %w", email, err) }
    }
    if rc == nil {
        if name == "" { name = email }
        nr := domain.Resource{Name: name, Email: email, JiraUserID: author.AccountID, Active: active}
        id, err := s.store.CreateResource(ctx, nr)
        if err != nil { return nil, fmt.Errorf("create resource %s: %w", email, err) }
        nr.ID = id
        rc = &nr
        s.log.Info().Str("recurso", email).Int64("id", id).Msg("resource created")
    } else {
        dirty := false
        if name != "" && rc.Name != name { rc.Name = name; dirty = true }
        if !strings.EqualFold(rc.Email, email) { rc.Email = email; dirty = true }
        if author.AccountID != "" && rc.JiraUserID != author.AccountID { rc.JiraUserID = author.AccountID; dirty = true }
        if rc.Active != active { rc.Active = active; dirty = true }
        if dirty {
            if err := s.store.UpdateResource(ctx, *rc); err != nil { return nil, fmt.Errorf("update resource %s: %w", email, err) }
        }
    }

    st.mu.Lock()
    st.resources[emailKey] = rc
    if author.AccountID != "" { st.resources[author.AccountID] = rc }
    st.mu.Unlock()
    return rc, nil
}
