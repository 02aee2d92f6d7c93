package jobs

import (
    "context"
    "time"

    "github.com/rodri-oliveira/pmo-backend-sub000/internal/config"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/domain"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/repo"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

type service interface {
    RunRecent(ctx context.Context) domain.RunSummary
}

// syncLockKey serializes scheduled syncs across replicas.
const syncLockKey int64 = 737001

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    repo *repo.Repository
    c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
    _, _ = c.AddFunc(cfg.SyncCron, cr.incremental)
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

func (cr *Cron) incremental() {
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute); defer cancel()
    ok, err := cr.repo.TryAdvisoryLock(ctx, syncLockKey)
    if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
    if !ok { cr.log.Info().Msg("cron: sync already running elsewhere"); return }
    defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), syncLockKey) }()
    cr.log.Info().Int("dias", cr.cfg.SyncWindowDays).Msg("cron: incremental sync")
    summary := cr.svc.RunRecent(ctx)
    if summary.Status == domain.RunStatusError {
        cr.log.Error().Str("mensagem", summary.Message).Msg("cron: sync failed")
    }
}
