package sync

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"

    "github.com/rodri-oliveira/pmo-backend-sub000/internal/adapters/jira"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/domain"
)

// Params is one reconciliation window: the date range (inclusive, day
// granularity) and the remote project codes to cover.
type Params struct {
    From     time.Time
    To       time.Time
    Projects []string
}

func (p Params) normalized() Params {
    p.From = p.From.UTC().Truncate(24 * time.Hour)
    p.To = p.To.UTC().Truncate(24 * time.Hour)
    if len(p.Projects) == 0 { return p }
    out := make([]string, 0, len(p.Projects))
    for _, c := range p.Projects {
        c = strings.ToUpper(strings.TrimSpace(c))
        if c != "" { out = append(out, c) }
    }
    p.Projects = out
    return p
}

// buildJQL renders the window as a worklog-date search. Section-specific
// extra JQL applies only when a single project is requested.
func (s *Syncer) buildJQL(p Params) string {
    keys := p.Projects
    if len(keys) == 0 { keys = s.cfg.JiraKeys() }
    var b strings.Builder
    b.WriteString("project IN (")
    b.WriteString(strings.Join(keys, ", "))
    b.WriteString(")")
    fmt.Fprintf(&b, " AND worklogDate >= '%s' AND worklogDate <= '%s'", p.From.Format("2006-01-02"), p.To.Format("2006-01-02"))
    if len(keys) == 1 {
        if profile, ok := s.cfg.ProfileFor(keys[0]); ok && profile.ExtraJQL != "" {
            fmt.Fprintf(&b, " AND (%s)", profile.ExtraJQL)
        }
    }
    return b.String()
}

// Begin opens the ledger row for a run. Callers that execute in the
// background create the row first so the run is observable from the moment
// it is accepted.
func (s *Syncer) Begin(ctx context.Context) (int64, error) {
    return s.store.StartSyncRun(ctx)
}

// Run executes a full reconciliation pass over the window and returns its
// summary. The ledger row is always finished, whatever the outcome.
func (s *Syncer) Run(ctx context.Context, p Params) domain.RunSummary {
    runID, err := s.Begin(ctx)
    if err != nil {
        s.log.Error().Err(err).Msg("cannot open sync run")
        return domain.RunSummary{Status: domain.RunStatusError, Message: "abertura do registro de sincronização falhou: " + err.Error()}
    }
    return s.Execute(ctx, runID, p)
}

// Execute drives the engine for an already-opened ledger row: paginated
// search, a bounded worker pool per page, per-issue failure isolation.
func (s *Syncer) Execute(ctx context.Context, runID int64, p Params) domain.RunSummary {
    p = p.normalized()
    started := time.Now()
    st := newRunState()
    if p.From.After(p.To) {
        summary := s.finalize(ctx, runID, st, fmt.Errorf("janela inválida: %s > %s", p.From.Format("2006-01-02"), p.To.Format("2006-01-02")))
        summary.Duration = time.Since(started)
        return summary
    }
    jql := s.buildJQL(p)
    s.log.Info().Int64("run", runID).Str("jql", jql).Msg("sync started")

    var runErr error
    startAt := 0
    for {
        page, err := s.jira.SearchIssues(ctx, jql, startAt, jira.MaxPageSize)
        if err != nil {
            runErr = fmt.Errorf("search startAt=%d: %w", startAt, err)
            break
        }
        if len(page.Issues) == 0 { break }

        workers := s.cfg.WorkersSync
        if workers <= 0 { workers = 1 }
        jobs := make(chan jira.Issue)
        var wg sync.WaitGroup
        for i := 0; i < workers; i++ {
            wg.Add(1)
            go func() {
                defer wg.Done()
                for iss := range jobs {
                    if err := s.processIssue(ctx, st, p, iss); err != nil {
                        st.fail(fmt.Sprintf("%s: %v", iss.Key, err))
                        s.log.Warn().Err(err).Str("issue", iss.Key).Msg("issue failed")
                    }
                }
            }()
        }
        for _, iss := range page.Issues { jobs <- iss }
        close(jobs)
        wg.Wait()

        startAt = page.StartAt + len(page.Issues)
        if startAt >= page.Total { break }
        if ctx.Err() != nil {
            runErr = ctx.Err()
            break
        }
    }

    summary := s.finalize(ctx, runID, st, runErr)
    summary.Duration = time.Since(started)
    s.log.Info().Int64("run", runID).Str("status", summary.Status).
        Int("issues", summary.Issues).Int("criados", summary.Created).Int("atualizados", summary.Updated).
        Int("ignorados", summary.Skipped).Int("falhas", summary.Failed).
        Dur("dur", summary.Duration).Msg("sync finished")
    return summary
}

func (s *Syncer) finalize(ctx context.Context, runID int64, st *runState, runErr error) domain.RunSummary {
    st.mu.Lock()
    summary := domain.RunSummary{
        RunID:   runID,
        Issues:  st.issues,
        Created: st.created,
        Updated: st.updated,
        Skipped: st.skipped,
        Failed:  st.failed,
    }
    errs := append([]string(nil), st.errs...)
    st.mu.Unlock()

    msg := fmt.Sprintf("%d issues, %d criados, %d atualizados, %d ignorados, %d falhas",
        summary.Issues, summary.Created, summary.Updated, summary.Skipped, summary.Failed)
    switch {
    case runErr != nil:
        summary.Status = domain.RunStatusError
        msg = "sincronização interrompida: " + runErr.Error() + "; " + msg
    case summary.Failed > 0:
        summary.Status = domain.RunStatusPartial
        if len(errs) > 3 { errs = errs[:3] }
        msg = msg + "; erros: " + strings.Join(errs, " | ")
    default:
        summary.Status = domain.RunStatusSuccess
        msg = "Sincronização concluída: " + msg
    }
    summary.Message = msg

    if err := s.store.FinishSyncRun(ctx, runID, summary.Status, summary.Message, summary.Processed()); err != nil {
        s.log.Error().Err(err).Int64("run", runID).Msg("cannot finish sync run")
    }
    return summary
}

// FullParams is the window from the historical start date to today, over
// every configured section.
func (s *Syncer) FullParams() Params {
    return Params{From: s.cfg.FullSyncStart, To: time.Now().UTC()}
}

// SectionParams is the full historical window restricted to one section's
// remote project.
func (s *Syncer) SectionParams(code string) (Params, error) {
    profile, ok := s.cfg.ProfileFor(code)
    if !ok { return Params{}, fmt.Errorf("seção desconhecida: %s", code) }
    p := s.FullParams()
    p.Projects = []string{profile.JiraKey}
    return p, nil
}

// RunFull reconciles everything from the historical start date to today.
// Unless forced, a run is skipped while the last successful one is fresh.
func (s *Syncer) RunFull(ctx context.Context, force bool) domain.RunSummary {
    if !force {
        if skip, msg := s.Fresh(ctx); skip {
            s.log.Info().Msg(msg)
            return domain.RunSummary{Status: domain.RunStatusSuccess, Message: msg}
        }
    }
    return s.Run(ctx, s.FullParams())
}

// RunSection reconciles a single section's remote project over the full
// historical window.
func (s *Syncer) RunSection(ctx context.Context, code string, force bool) (domain.RunSummary, error) {
    p, err := s.SectionParams(code)
    if err != nil { return domain.RunSummary{}, err }
    if !force {
        if skip, msg := s.Fresh(ctx); skip {
            s.log.Info().Msg(msg)
            return domain.RunSummary{Status: domain.RunStatusSuccess, Message: msg}, nil
        }
    }
    return s.Run(ctx, p), nil
}

// RunRecent reconciles the trailing incremental window; the cron job's body.
func (s *Syncer) RunRecent(ctx context.Context) domain.RunSummary {
    now := time.Now().UTC()
    return s.Run(ctx, Params{From: now.AddDate(0, 0, -s.cfg.SyncWindowDays), To: now})
}

// Fresh reports whether the last successful run is younger than the
// staleness threshold.
func (s *Syncer) Fresh(ctx context.Context) (bool, string) {
    last, err := s.store.GetLastRun(ctx, domain.RunStatusSuccess)
    if err != nil || last == nil { return false, "" }
    ref := last.StartedAt
    if last.FinishedAt != nil { ref = *last.FinishedAt }
    age := time.Since(ref)
    if age >= s.cfg.StaleAfter { return false, "" }
    return true, fmt.Sprintf("sincronização ignorada: última execução bem-sucedida há %s (use force=true)", age.Round(time.Minute))
}
