package domain

import "time"

// Provenance of a time entry. JIRA rows are owned by the sync engine,
// MANUAL rows are owned by humans and never touched by it.
const (
    SourceJira   = "JIRA"
    SourceManual = "MANUAL"
)

// Terminal and transient statuses of a synchronization run.
const (
    RunStatusRunning = "RUNNING"
    RunStatusSuccess = "SUCCESS"
    RunStatusPartial = "PARTIAL"
    RunStatusError   = "ERROR"
)

type Section struct {
    ID             int64
    Name           string
    Description    string
    JiraProjectKey string
    Active         bool
    CreatedAt      time.Time
    UpdatedAt      time.Time
}

type Project struct {
    ID             int64
    Name           string
    Description    string
    JiraProjectKey string
    SectionID      *int64
    StatusID       int64
    PlannedStart   *time.Time
    Active         bool
    CreatedAt      time.Time
    UpdatedAt      time.Time
}

type Resource struct {
    ID         int64
    Name       string
    Email      string
    JiraUserID string
    Active     bool
    CreatedAt  time.Time
    UpdatedAt  time.Time
}

// TimeEntry is one "apontamento": hours attributed to a resource/project/day.
// JiraWorklogID is the idempotency key for engine-owned rows; manual rows
// carry an empty one.
type TimeEntry struct {
    ID                int64
    JiraWorklogID     string
    ResourceID        int64
    ProjectID         int64
    IssueKey          string
    ParentKey         string
    IssueType         string
    SubtaskName       string
    ParentProjectID   *int64
    ParentProjectName string
    Date              time.Time
    StartedAt         *time.Time
    Hours             float64
    Description       string
    Source            string
    SyncedAt          *time.Time
    CreatedAt         time.Time
    UpdatedAt         time.Time
}

// SyncRun is one ledger row per orchestrator invocation.
type SyncRun struct {
    ID         int64      `json:"id"`
    StartedAt  time.Time  `json:"data_inicio"`
    FinishedAt *time.Time `json:"data_fim"`
    Status     string     `json:"status"`
    Message    string     `json:"mensagem"`
    Processed  int        `json:"quantidade_apontamentos_processados"`
}

// RunSummary is what every sync invocation returns: explicit per-outcome
// counts, never a bare success flag.
type RunSummary struct {
    RunID    int64         `json:"run_id"`
    Status   string        `json:"status"`
    Message  string        `json:"mensagem,omitempty"`
    Issues   int           `json:"issues_processadas"`
    Created  int           `json:"apontamentos_criados"`
    Updated  int           `json:"apontamentos_atualizados"`
    Skipped  int           `json:"apontamentos_ignorados"`
    Failed   int           `json:"falhas"`
    Duration time.Duration `json:"-"`
}

// Processed is the count persisted in the run ledger.
func (s RunSummary) Processed() int { return s.Created + s.Updated }
