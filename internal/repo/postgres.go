package repo

import (
    "context"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/config"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/domain"
    "github.com/rs/zerolog"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second); defer cancel()
    if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// ---- Sections ----

// SectionByKey looks up a section by its remote project code. Returns
// (nil, nil) when absent.
func (r *Repository) SectionByKey(ctx context.Context, jiraKey string) (*domain.Section, error) {
    const q = `SELECT id, nome, COALESCE(descricao,''), COALESCE(jira_project_key,''), ativo, data_criacao, data_atualizacao
        FROM secao WHERE jira_project_key = $1`
    var s domain.Section
    err := r.db.Pool.QueryRow(ctx, q, jiraKey).Scan(&s.ID, &s.Name, &s.Description, &s.JiraProjectKey, &s.Active, &s.CreatedAt, &s.UpdatedAt)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &s, nil
}

// CreateSection inserts a section or adopts the existing row when another
// worker materialized the same key first; either way the surviving id comes
// back.
func (r *Repository) CreateSection(ctx context.Context, s domain.Section) (int64, error) {
    const q = `INSERT INTO secao(nome, descricao, jira_project_key, ativo, data_criacao, data_atualizacao)
        VALUES($1,$2,$3,true,now(),now())
        ON CONFLICT (jira_project_key) DO UPDATE SET data_atualizacao=now()
        RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, s.Name, s.Description, s.JiraProjectKey).Scan(&id); err != nil { return 0, err }
    return id, nil
}

// ---- Project status ----

// EnsureDefaultStatus returns the id of the "Em andamento" status, creating
// it when the table is empty. New projects materialized by the sync land
// there.
func (r *Repository) EnsureDefaultStatus(ctx context.Context) (int64, error) {
    var id int64
    err := r.db.Pool.QueryRow(ctx, `SELECT id FROM status_projeto WHERE nome = $1`, "Em andamento").Scan(&id)
    if errors.Is(err, pgx.ErrNoRows) {
        err = r.db.Pool.QueryRow(ctx,
            `INSERT INTO status_projeto(nome, descricao, is_final, ordem_exibicao) VALUES($1,$2,false,1) RETURNING id`,
            "Em andamento", "Status padrão para projetos sincronizados").Scan(&id)
    }
    if err != nil { return 0, err }
    return id, nil
}

// ---- Projects ----

func (r *Repository) ProjectByJiraKey(ctx context.Context, jiraKey string) (*domain.Project, error) {
    const q = `SELECT id, nome, COALESCE(descricao,''), COALESCE(jira_project_key,''), secao_id, status_projeto_id,
        data_inicio_prevista, ativo, data_criacao, data_atualizacao
        FROM projeto WHERE jira_project_key = $1`
    var p domain.Project
    err := r.db.Pool.QueryRow(ctx, q, jiraKey).Scan(&p.ID, &p.Name, &p.Description, &p.JiraProjectKey, &p.SectionID,
        &p.StatusID, &p.PlannedStart, &p.Active, &p.CreatedAt, &p.UpdatedAt)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &p, nil
}

// CreateProject inserts a project or adopts the row a concurrent worker won
// with; the conflict clause keeps the racing insert from failing the issue.
func (r *Repository) CreateProject(ctx context.Context, p domain.Project) (int64, error) {
    const q = `INSERT INTO projeto(nome, descricao, jira_project_key, secao_id, status_projeto_id, data_inicio_prevista, ativo, data_criacao, data_atualizacao)
        VALUES($1,$2,$3,$4,$5,$6,true,now(),now())
        ON CONFLICT (jira_project_key) DO UPDATE SET data_atualizacao=now()
        RETURNING id`
    var id int64
    err := r.db.Pool.QueryRow(ctx, q, p.Name, p.Description, p.JiraProjectKey, p.SectionID, p.StatusID, p.PlannedStart).Scan(&id)
    if err != nil { return 0, err }
    return id, nil
}

// UpdateProject rewrites the mutable fields the sync owns.
func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
    const q = `UPDATE projeto SET nome=$2, secao_id=$3, data_inicio_prevista=$4, data_atualizacao=now() WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, p.ID, p.Name, p.SectionID, p.PlannedStart)
    return err
}

// ---- Resources ----

const resourceColumns = `id, nome, email, COALESCE(jira_user_id,''), ativo, data_criacao, data_atualizacao`

func (r *Repository) scanResource(row pgx.Row) (*domain.Resource, error) {
    var rc domain.Resource
    err := row.Scan(&rc.ID, &rc.Name, &rc.Email, &rc.JiraUserID, &rc.Active, &rc.CreatedAt, &rc.UpdatedAt)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return &rc, nil
}

// ResourceByJiraUserID is the primary identity lookup: the remote account id
// survives an email change.
func (r *Repository) ResourceByJiraUserID(ctx context.Context, jiraUserID string) (*domain.Resource, error) {
    const q = `SELECT ` + resourceColumns + ` FROM recurso WHERE jira_user_id = $1`
    return r.scanResource(r.db.Pool.QueryRow(ctx, q, jiraUserID))
}

func (r *Repository) ResourceByEmail(ctx context.Context, email string) (*domain.Resource, error) {
    const q = `SELECT ` + resourceColumns + ` FROM recurso WHERE lower(email) = lower($1)`
    return r.scanResource(r.db.Pool.QueryRow(ctx, q, email))
}

// CreateResource inserts a resource or adopts the row a concurrent worker
// created for the same email.
func (r *Repository) CreateResource(ctx context.Context, rc domain.Resource) (int64, error) {
    const q = `INSERT INTO recurso(nome, email, jira_user_id, ativo, data_criacao, data_atualizacao)
        VALUES($1,$2,$3,$4,now(),now())
        ON CONFLICT (email) DO UPDATE SET data_atualizacao=now()
        RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, rc.Name, rc.Email, rc.JiraUserID, rc.Active).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) UpdateResource(ctx context.Context, rc domain.Resource) error {
    const q = `UPDATE recurso SET nome=$2, email=$3, jira_user_id=$4, ativo=$5, data_atualizacao=now() WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, rc.ID, rc.Name, rc.Email, rc.JiraUserID, rc.Active)
    return err
}

// ---- Time entries ----

// nullIfEmpty maps absent hierarchy values to SQL NULL so reporting filters
// on IS NOT NULL keep working.
func nullIfEmpty(s string) any {
    if s == "" { return nil }
    return s
}

// SyncTimeEntry upserts an engine-owned time entry keyed by its remote
// worklog id. created reports whether the row was inserted (xmax = 0 on a
// freshly inserted tuple). Manual rows carry a NULL jira_worklog_id, so the
// conflict target can never reach them; the fonte guard is a second fence.
// id == 0 with a nil error means the guard refused the update.
func (r *Repository) SyncTimeEntry(ctx context.Context, e domain.TimeEntry) (int64, bool, error) {
    const q = `
        INSERT INTO apontamento(jira_worklog_id, recurso_id, projeto_id, jira_issue_key, jira_parent_key,
            jira_issue_type, nome_subtarefa, projeto_pai_id, nome_projeto_pai,
            data_apontamento, data_hora_inicio_trabalho, horas_apontadas, descricao,
            fonte_apontamento, data_sincronizacao_jira, data_criacao, data_atualizacao)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now(),now())
        ON CONFLICT (jira_worklog_id) DO UPDATE SET
            recurso_id=EXCLUDED.recurso_id,
            projeto_id=EXCLUDED.projeto_id,
            jira_issue_key=EXCLUDED.jira_issue_key,
            jira_parent_key=EXCLUDED.jira_parent_key,
            jira_issue_type=EXCLUDED.jira_issue_type,
            nome_subtarefa=EXCLUDED.nome_subtarefa,
            projeto_pai_id=EXCLUDED.projeto_pai_id,
            nome_projeto_pai=EXCLUDED.nome_projeto_pai,
            data_apontamento=EXCLUDED.data_apontamento,
            data_hora_inicio_trabalho=EXCLUDED.data_hora_inicio_trabalho,
            horas_apontadas=EXCLUDED.horas_apontadas,
            descricao=EXCLUDED.descricao,
            data_sincronizacao_jira=now(),
            data_atualizacao=now()
        WHERE apontamento.fonte_apontamento = $14
        RETURNING id, (xmax = 0)`
    var id int64
    var created bool
    err := r.db.Pool.QueryRow(ctx, q, e.JiraWorklogID, e.ResourceID, e.ProjectID, e.IssueKey, nullIfEmpty(e.ParentKey),
        e.IssueType, nullIfEmpty(e.SubtaskName), e.ParentProjectID, nullIfEmpty(e.ParentProjectName),
        e.Date, e.StartedAt, e.Hours, e.Description, domain.SourceJira).Scan(&id, &created)
    if errors.Is(err, pgx.ErrNoRows) { return 0, false, nil }
    if err != nil { return 0, false, err }
    return id, created, nil
}

// ---- Sync run ledger ----

func (r *Repository) StartSyncRun(ctx context.Context) (int64, error) {
    const q = `INSERT INTO sincronizacao_jira(data_inicio, status, mensagem, quantidade_apontamentos_processados)
        VALUES(now(), $1, '', 0) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, domain.RunStatusRunning).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishSyncRun(ctx context.Context, id int64, status, message string, processed int) error {
    const q = `UPDATE sincronizacao_jira SET data_fim=now(), status=$2, mensagem=$3, quantidade_apontamentos_processados=$4 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, status, message, processed)
    return err
}

const runColumns = `id, data_inicio, data_fim, status, COALESCE(mensagem,''), COALESCE(quantidade_apontamentos_processados,0)`

func scanRun(row pgx.Row) (*domain.SyncRun, error) {
    var sr domain.SyncRun
    if err := row.Scan(&sr.ID, &sr.StartedAt, &sr.FinishedAt, &sr.Status, &sr.Message, &sr.Processed); err != nil {
        return nil, err
    }
    return &sr, nil
}

func (r *Repository) GetRun(ctx context.Context, id int64) (*domain.SyncRun, error) {
    row := r.db.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM sincronizacao_jira WHERE id=$1`, id)
    sr, err := scanRun(row)
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return sr, nil
}

// GetLastRun returns the most recent run, optionally filtered by status.
func (r *Repository) GetLastRun(ctx context.Context, status string) (*domain.SyncRun, error) {
    q := `SELECT ` + runColumns + ` FROM sincronizacao_jira`
    args := []any{}
    if status != "" {
        q += ` WHERE status = $1`
        args = append(args, status)
    }
    q += ` ORDER BY data_inicio DESC LIMIT 1`
    sr, err := scanRun(r.db.Pool.QueryRow(ctx, q, args...))
    if errors.Is(err, pgx.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return sr, nil
}

// ListRuns returns runs started in the last N days, newest first.
func (r *Repository) ListRuns(ctx context.Context, days int, status string) ([]domain.SyncRun, error) {
    if days <= 0 { days = 7 }
    q := `SELECT ` + runColumns + ` FROM sincronizacao_jira WHERE data_inicio >= now() - make_interval(days => $1)`
    args := []any{days}
    if status != "" {
        q += ` AND status = $2`
        args = append(args, status)
    }
    q += ` ORDER BY data_inicio DESC`
    rows, err := r.db.Pool.Query(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []domain.SyncRun
    for rows.Next() {
        var sr domain.SyncRun
        if err := rows.Scan(&sr.ID, &sr.StartedAt, &sr.FinishedAt, &sr.Status, &sr.Message, &sr.Processed); err != nil { return nil, err }
        out = append(out, sr)
    }
    return out, rows.Err()
}
