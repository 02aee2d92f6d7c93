package http

import (
    "github.com/gin-gonic/gin"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/config"
    "github.com/rs/zerolog"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc syncService, store runStore) *gin.Engine {
    if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
    r := gin.New()
    r.Use(gin.Recovery())
    r.Use(func(c *gin.Context) {
        c.Next()
        log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
    })

    h := NewHandlers(cfg, log, svc, store)

    r.GET("/healthz", h.Healthz)

    s := r.Group("/sync")
    s.POST("/full", h.SyncFull)
    s.POST("/sections/:code", h.SyncSection)
    s.POST("/window", h.SyncWindow)
    s.GET("/runs", h.ListRuns)
    s.GET("/runs/last", h.LastRun)
    s.GET("/runs/:id", h.GetRun)
    s.GET("/status", h.SyncStatus)

    return r
}
