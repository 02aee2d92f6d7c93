package main

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "time"

    "github.com/rodri-oliveira/pmo-backend-sub000/internal/adapters/jira"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/config"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/domain"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/logger"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/repo"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/sync"
    "github.com/spf13/cobra"
)

type app struct {
    cfg    config.Config
    repo   *repo.Repository
    db     *repo.DB
    syncer *sync.Syncer
}

func newApp(ctx context.Context) *app {
    cfg := config.Load()
    log := logger.New(cfg)
    db := repo.MustOpen(ctx, cfg, log)
    repository := repo.NewRepository(db, log)
    jc := jira.NewClient(cfg, log)
    return &app{
        cfg:    cfg,
        repo:   repository,
        db:     db,
        syncer: sync.NewSyncer(repository, jc, cfg, log),
    }
}

func (a *app) close() { a.db.Close() }

func printJSON(v any) error {
    b, err := json.MarshalIndent(v, "", "  ")
    if err != nil { return err }
    fmt.Println(string(b))
    return nil
}

func exitCode(summary domain.RunSummary) error {
    if summary.Status == domain.RunStatusError {
        return fmt.Errorf("sincronização terminou com ERROR: %s", summary.Message)
    }
    return nil
}

func main() {
    root := &cobra.Command{
        Use:           "syncctl",
        Short:         "Dispara e inspeciona sincronizações de apontamentos do Jira",
        SilenceUsage:  true,
        SilenceErrors: true,
    }

    var force bool

    fullCmd := &cobra.Command{
        Use:   "full",
        Short: "Sincroniza todas as seções desde a data histórica inicial",
        RunE: func(cmd *cobra.Command, args []string) error {
            a := newApp(cmd.Context())
            defer a.close()
            summary := a.syncer.RunFull(cmd.Context(), force)
            if err := printJSON(summary); err != nil { return err }
            return exitCode(summary)
        },
    }
    fullCmd.Flags().BoolVar(&force, "force", false, "ignora a janela de frescor e executa mesmo assim")

    var sectionForce bool
    sectionCmd := &cobra.Command{
        Use:   "section <codigo>",
        Short: "Sincroniza uma única seção (ex.: SEG, SGI, TIN)",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            a := newApp(cmd.Context())
            defer a.close()
            summary, err := a.syncer.RunSection(cmd.Context(), args[0], sectionForce)
            if err != nil { return err }
            if err := printJSON(summary); err != nil { return err }
            return exitCode(summary)
        },
    }
    sectionCmd.Flags().BoolVar(&sectionForce, "force", false, "ignora a janela de frescor e executa mesmo assim")

    var from, to string
    var projects []string
    windowCmd := &cobra.Command{
        Use:   "window",
        Short: "Sincroniza um intervalo de datas explícito",
        RunE: func(cmd *cobra.Command, args []string) error {
            f, err := time.Parse("2006-01-02", from)
            if err != nil { return fmt.Errorf("--from inválido, use AAAA-MM-DD") }
            t, err := time.Parse("2006-01-02", to)
            if err != nil { return fmt.Errorf("--to inválido, use AAAA-MM-DD") }
            if t.Before(f) { return fmt.Errorf("--to anterior a --from") }
            a := newApp(cmd.Context())
            defer a.close()
            summary := a.syncer.Run(cmd.Context(), sync.Params{From: f, To: t, Projects: projects})
            if err := printJSON(summary); err != nil { return err }
            return exitCode(summary)
        },
    }
    windowCmd.Flags().StringVar(&from, "from", "", "início do intervalo (AAAA-MM-DD)")
    windowCmd.Flags().StringVar(&to, "to", "", "fim do intervalo (AAAA-MM-DD)")
    windowCmd.Flags().StringSliceVar(&projects, "projects", nil, "códigos de projeto remotos (padrão: todos)")
    _ = windowCmd.MarkFlagRequired("from")
    _ = windowCmd.MarkFlagRequired("to")

    var days int
    statusCmd := &cobra.Command{
        Use:   "status",
        Short: "Mostra as últimas sincronizações registradas",
        RunE: func(cmd *cobra.Command, args []string) error {
            a := newApp(cmd.Context())
            defer a.close()
            runs, err := a.repo.ListRuns(cmd.Context(), days, "")
            if err != nil { return err }
            return printJSON(runs)
        },
    }
    statusCmd.Flags().IntVar(&days, "days", 7, "quantos dias de histórico listar")

    root.AddCommand(fullCmd, sectionCmd, windowCmd, statusCmd)

    if err := root.Execute(); err != nil {
        fmt.Fprintln(os.Stderr, "erro:", err)
        os.Exit(1)
    }
}
