package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rodri-oliveira/pmo-backend-sub000/internal/adapters/jira"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/config"
    httpapi "github.com/rodri-oliveira/pmo-backend-sub000/internal/http"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/jobs"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/logger"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/repo"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/sync"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    repository := repo.NewRepository(db, log)

    jc := jira.NewClient(cfg, log)
    syncer := sync.NewSyncer(repository, jc, cfg, log)

    router := httpapi.NewRouter(cfg, log, syncer, repository)

    cron := jobs.NewCron(cfg, log, syncer, repository)
    cron.Start()
    defer cron.Stop()

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()
    log.Info().Str("addr", cfg.HTTPAddr).Msg("api up")

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
