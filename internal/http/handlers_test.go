package http

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/rodri-oliveira/pmo-backend-sub000/internal/config"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/domain"
    "github.com/rodri-oliveira/pmo-backend-sub000/internal/sync"
    "github.com/rs/zerolog"
)

type fakeSvc struct {
    began    int
    executed chan sync.Params
}

func (f *fakeSvc) Begin(context.Context) (int64, error) { f.began++; return int64(f.began), nil }
func (f *fakeSvc) Execute(_ context.Context, _ int64, p sync.Params) domain.RunSummary {
    f.executed <- p
    return domain.RunSummary{Status: domain.RunStatusSuccess}
}
func (f *fakeSvc) FullParams() sync.Params { return sync.Params{From: time.Now().AddDate(-1, 0, 0), To: time.Now()} }
func (f *fakeSvc) SectionParams(code string) (sync.Params, error) {
    return sync.Params{Projects: []string{code}}, nil
}
func (f *fakeSvc) Fresh(context.Context) (bool, string) { return false, "" }

type fakeRuns struct {
    runs map[int64]*domain.SyncRun
}

func (f *fakeRuns) GetRun(_ context.Context, id int64) (*domain.SyncRun, error) { return f.runs[id], nil }
func (f *fakeRuns) GetLastRun(_ context.Context, status string) (*domain.SyncRun, error) {
    var last *domain.SyncRun
    for _, r := range f.runs {
        if status != "" && r.Status != status { continue }
        if last == nil || r.ID > last.ID { last = r }
    }
    return last, nil
}
func (f *fakeRuns) ListRuns(_ context.Context, days int, status string) ([]domain.SyncRun, error) {
    var out []domain.SyncRun
    for _, r := range f.runs { out = append(out, *r) }
    return out, nil
}

func testRouter(svc *fakeSvc, store *fakeRuns) http.Handler {
    cfg := config.Config{AppEnv: "test", StaleAfter: 24 * time.Hour, Sections: []config.SectionProfile{
        {JiraKey: "SEG", SectionKey: "SEG", Name: "Seção Segurança"},
    }}
    return NewRouter(cfg, zerolog.Nop(), svc, store)
}

func TestSyncWindowAccepted(t *testing.T) {
    svc := &fakeSvc{executed: make(chan sync.Params, 1)}
    r := testRouter(svc, &fakeRuns{runs: map[int64]*domain.SyncRun{}})

    body := `{"data_inicio":"2024-08-01","data_fim":"2024-08-31","projetos":["SEG"]}`
    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest("POST", "/sync/window", strings.NewReader(body)))

    if w.Code != http.StatusAccepted { t.Fatalf("status = %d body=%s", w.Code, w.Body.String()) }
    var resp struct {
        RunID  int64  `json:"run_id"`
        Status string `json:"status"`
    }
    if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil { t.Fatal(err) }
    if resp.RunID != 1 || resp.Status != domain.RunStatusRunning { t.Fatalf("resp = %+v", resp) }

    select {
    case p := <-svc.executed:
        if len(p.Projects) != 1 || p.Projects[0] != "SEG" { t.Fatalf("params = %+v", p) }
    case <-time.After(time.Second):
        t.Fatal("background execution never started")
    }
}

func TestSyncWindowValidation(t *testing.T) {
    svc := &fakeSvc{executed: make(chan sync.Params, 1)}
    r := testRouter(svc, &fakeRuns{runs: map[int64]*domain.SyncRun{}})

    cases := []string{
        `{"data_fim":"2024-08-31"}`,                                                  // missing start
        `{"data_inicio":"31/08/2024","data_fim":"2024-08-31"}`,                       // bad format
        `{"data_inicio":"2024-08-31","data_fim":"2024-08-01"}`,                       // inverted
        `{"data_inicio":"2024-08-01","data_fim":"2099-01-01"}`,                       // future
        `{"data_inicio":"2024-08-01","data_fim":"2024-08-31","projetos":["XYZ"]}`,    // unknown project
    }
    for _, body := range cases {
        w := httptest.NewRecorder()
        r.ServeHTTP(w, httptest.NewRequest("POST", "/sync/window", strings.NewReader(body)))
        if w.Code != http.StatusBadRequest {
            t.Fatalf("body %s: status = %d, want 400", body, w.Code)
        }
    }
    if svc.began != 0 { t.Fatalf("invalid requests must not open runs, began = %d", svc.began) }
}

func TestGetRunNotFound(t *testing.T) {
    svc := &fakeSvc{executed: make(chan sync.Params, 1)}
    r := testRouter(svc, &fakeRuns{runs: map[int64]*domain.SyncRun{}})

    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest("GET", "/sync/runs/42", nil))
    if w.Code != http.StatusNotFound { t.Fatalf("status = %d", w.Code) }
}

func TestSyncStatusReportsStaleness(t *testing.T) {
    svc := &fakeSvc{executed: make(chan sync.Params, 1)}
    now := time.Now()
    fin := now.Add(-2 * time.Hour)
    store := &fakeRuns{runs: map[int64]*domain.SyncRun{
        1: {ID: 1, StartedAt: fin.Add(-time.Minute), FinishedAt: &fin, Status: domain.RunStatusSuccess},
    }}
    r := testRouter(svc, store)

    w := httptest.NewRecorder()
    r.ServeHTTP(w, httptest.NewRequest("GET", "/sync/status", nil))
    if w.Code != http.StatusOK { t.Fatalf("status = %d", w.Code) }
    var resp struct {
        Synced bool    `json:"sincronizado"`
        Age    float64 `json:"idade_horas"`
    }
    if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil { t.Fatal(err) }
    if !resp.Synced { t.Fatal("2h-old run must count as fresh") }
    if resp.Age < 1.9 || resp.Age > 2.5 { t.Fatalf("idade_horas = %v", resp.Age) }
}
