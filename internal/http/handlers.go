package http

import (
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/config"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/domain"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/sync"
    "github.com/rs/zerolog"
)

type syncService interface {
    Begin(ctx context.Context) (int64, error)
    Execute(ctx context.Context, runID int64, p sync.Params) domain.RunSummary
    FullParams() sync.Params
    SectionParams(code string) (sync.Params, error)
    Fresh(ctx context.Context) (bool, string)
}

type runStore interface {
    GetRun(ctx context.Context, id int64) (*domain.SyncRun, error)
    GetLastRun(ctx context.Context, status string) (*domain.SyncRun, error)
    ListRuns(ctx context.Context, days int, status string) ([]domain.SyncRun, error)
}

type Handlers struct {
    cfg   config.Config
    log   zerolog.Logger
    svc   syncService
    store runStore
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc syncService, store runStore) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc, store: store}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

// accept opens the ledger row synchronously and runs the engine detached
// from the request, so the caller can poll the run by id right away.
func (h *Handlers) accept(c *gin.Context, p sync.Params) {
    runID, err := h.svc.Begin(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    go func() { _ = h.svc.Execute(context.Background(), runID, p) }()
    c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": domain.RunStatusRunning})
}

func (h *Handlers) SyncFull(c *gin.Context) {
    force := c.Query("force") == "true"
    if !force {
        if fresh, msg := h.svc.Fresh(c.Request.Context()); fresh {
            c.JSON(http.StatusOK, gin.H{"status": domain.RunStatusSuccess, "mensagem": msg})
            return
        }
    }
    h.accept(c, h.svc.FullParams())
}

func (h *Handlers) SyncSection(c *gin.Context) {
    force := c.Query("force") == "true"
    p, err := h.svc.SectionParams(c.Param("code"))
    if err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
        return
    }
    if !force {
        if fresh, msg := h.svc.Fresh(c.Request.Context()); fresh {
            c.JSON(http.StatusOK, gin.H{"status": domain.RunStatusSuccess, "mensagem": msg})
            return
        }
    }
    h.accept(c, p)
}

type windowRequest struct {
    From     string   `json:"data_inicio" binding:"required"`
    To       string   `json:"data_fim" binding:"required"`
    Projects []string `json:"projetos"`
}

func (h *Handlers) SyncWindow(c *gin.Context) {
    var req windowRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    from, err := time.Parse("2006-01-02", req.From)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "data_inicio inválida, use AAAA-MM-DD"})
        return
    }
    to, err := time.Parse("2006-01-02", req.To)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "data_fim inválida, use AAAA-MM-DD"})
        return
    }
    if to.Before(from) {
        c.JSON(http.StatusBadRequest, gin.H{"error": "data_fim anterior a data_inicio"})
        return
    }
    if to.After(time.Now().UTC().Truncate(24 * time.Hour)) {
        c.JSON(http.StatusBadRequest, gin.H{"error": "data_fim no futuro"})
        return
    }
    for _, code := range req.Projects {
        if _, ok := h.cfg.ProfileFor(code); !ok {
            c.JSON(http.StatusBadRequest, gin.H{"error": "projeto desconhecido: " + code})
            return
        }
    }
    h.accept(c, sync.Params{From: from, To: to, Projects: req.Projects})
}

func (h *Handlers) GetRun(c *gin.Context) {
    id, err := strconv.ParseInt(c.Param("id"), 10, 64)
    if err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "id inválido"})
        return
    }
    run, err := h.store.GetRun(c.Request.Context(), id)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    if run == nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "sincronização não encontrada"})
        return
    }
    c.JSON(http.StatusOK, run)
}

func (h *Handlers) LastRun(c *gin.Context) {
    run, err := h.store.GetLastRun(c.Request.Context(), c.Query("status"))
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    if run == nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "nenhuma sincronização registrada"})
        return
    }
    c.JSON(http.StatusOK, run)
}

func (h *Handlers) ListRuns(c *gin.Context) {
    days, _ := strconv.Atoi(c.DefaultQuery("dias", "7"))
    runs, err := h.store.ListRuns(c.Request.Context(), days, c.Query("status"))
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    if runs == nil { runs = []domain.SyncRun{} }
    c.JSON(http.StatusOK, gin.H{"dias": days, "total": len(runs), "sincronizacoes": runs})
}

// SyncStatus reports how stale the data is relative to the last successful
// run.
func (h *Handlers) SyncStatus(c *gin.Context) {
    last, err := h.store.GetLastRun(c.Request.Context(), domain.RunStatusSuccess)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    if last == nil {
        c.JSON(http.StatusOK, gin.H{"sincronizado": false, "mensagem": "nenhuma sincronização bem-sucedida"})
        return
    }
    ref := last.StartedAt
    if last.FinishedAt != nil { ref = *last.FinishedAt }
    age := time.Since(ref)
    c.JSON(http.StatusOK, gin.H{
        "sincronizado":    age < h.cfg.StaleAfter,
        "idade_horas":     age.Hours(),
        "ultima_execucao": last,
    })
}
