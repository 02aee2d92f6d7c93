package sync

import (
    "context"
    "sync"

    "github.com/rodri-oliveira/pmo-backend-sub000/internal/adapters/jira"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/config"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/domain"
    "github.com/rs/zerolog"
)

// Store is the persistence surface the engine writes through.
// Lookups return (nil, nil) when the entity is absent. Creates adopt the
// existing row on a unique-key conflict and return its id, so two workers
// materializing the same entity converge on one row.
type Store interface {
    SectionByKey(ctx context.Context, jiraKey string) (*domain.Section, error)
    CreateSection(ctx context.Context, s domain.Section) (int64, error)

    EnsureDefaultStatus(ctx context.Context) (int64, error)
    ProjectByJiraKey(ctx context.Context, jiraKey string) (*domain.Project, error)
    CreateProject(ctx context.Context, p domain.Project) (int64, error)
    UpdateProject(ctx context.Context, p domain.Project) error

    ResourceByJiraUserID(ctx context.Context, jiraUserID string) (*domain.Resource, error)
    ResourceByEmail(ctx context.Context, email string) (*domain.Resource, error)
    CreateResource(ctx context.Context, rc domain.Resource) (int64, error)
    UpdateResource(ctx context.Context, rc domain.Resource) error

    SyncTimeEntry(ctx context.Context, e domain.TimeEntry) (int64, bool, error)

    StartSyncRun(ctx context.Context) (int64, error)
    FinishSyncRun(ctx context.Context, id int64, status, message string, processed int) error
    GetLastRun(ctx context.Context, status string) (*domain.SyncRun, error)
}

// Jira is the slice of the tracker client the engine consumes.
type Jira interface {
    SearchIssues(ctx context.Context, jql string, startAt, max int) (*jira.SearchPage, error)
    ListWorklogs(ctx context.Context, issueKey string) ([]jira.Worklog, error)
    Issue(ctx context.Context, key string) (*jira.Issue, error)
    User(ctx context.Context, accountID string) (*jira.User, error)
}

type Syncer struct {
    store Store
    jira  Jira
    cfg   config.Config
    log   zerolog.Logger
}

func NewSyncer(store Store, j Jira, cfg config.Config, log zerolog.Logger) *Syncer {
    return &Syncer{store: store, jira: j, cfg: cfg, log: log}
}

// runState carries the per-run entity caches and counters. Caches never
// outlive a run, so entities renamed between runs are picked up fresh.
type runState struct {
    mu sync.Mutex

    sections      map[string]int64            // remote project code -> section id
    projects      map[string]*domain.Project  // remote key -> project
    resources     map[string]*domain.Resource // lowercased email -> resource
    defaultStatus int64

    issues  int
    created int
    updated int
    skipped int
    failed  int
    errs    []string
}

func newRunState() *runState {
    return &runState{
        sections:  map[string]int64{},
        projects:  map[string]*domain.Project{},
        resources: map[string]*domain.Resource{},
    }
}

func (st *runState) fail(msg string) {
    st.mu.Lock()
    st.failed++
    if len(st.errs) < 20 { st.errs = append(st.errs, msg) }
    st.mu.Unlock()
}
