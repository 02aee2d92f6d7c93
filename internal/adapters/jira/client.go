package jira

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/rodri-oliveira/pmo-backend-sub000/internal/config"
    "github.com/rs/zerolog"
)

// MaxPageSize is the hard cap the tracker enforces per page; requests asking
// for more are silently clamped server-side, so we clamp here first.
const MaxPageSize = 100

// APIError is a failed exchange with the tracker after the transient-retry
// budget is spent.
type APIError struct {
    Endpoint string
    Status   int
    Body     string
}

func (e *APIError) Error() string {
    return fmt.Sprintf("jira api %s status=%d body=%s", e.Endpoint, e.Status, e.Body)
}

type User struct {
    AccountID   string `json:"accountId"`
    DisplayName string `json:"displayName"`
    Email       string `json:"emailAddress"`
    Active      bool   `json:"active"`
}

type ParentRef struct {
    Key    string `json:"key"`
    Fields struct {
        Summary string `json:"summary"`
    } `json:"fields"`
}

type Sprint struct {
    Name      string `json:"name"`
    StartDate string `json:"startDate"`
}

type IssueFields struct {
    Summary  string `json:"summary"`
    Created  string `json:"created"`
    Assignee *User  `json:"assignee"`
    Project  struct {
        Key  string `json:"key"`
        Name string `json:"name"`
    } `json:"project"`
    Parent    *ParentRef `json:"parent"`
    IssueType struct {
        Name    string `json:"name"`
        Subtask bool   `json:"subtask"`
    } `json:"issuetype"`
    Status struct {
        Name string `json:"name"`
    } `json:"status"`
    Sprints []Sprint `json:"customfield_10020"`
}

type Issue struct {
    Key    string      `json:"key"`
    Fields IssueFields `json:"fields"`
}

type SearchPage struct {
    StartAt    int     `json:"startAt"`
    MaxResults int     `json:"maxResults"`
    Total      int     `json:"total"`
    Issues     []Issue `json:"issues"`
}

type Worklog struct {
    ID               string          `json:"id"`
    Author           *User           `json:"author"`
    Comment          json.RawMessage `json:"comment"`
    Created          string          `json:"created"`
    Updated          string          `json:"updated"`
    Started          string          `json:"started"`
    TimeSpentSeconds int             `json:"timeSpentSeconds"`
}

type WorklogPage struct {
    StartAt    int       `json:"startAt"`
    MaxResults int       `json:"maxResults"`
    Total      int       `json:"total"`
    Worklogs   []Worklog `json:"worklogs"`
}

// searchFields is the fixed projection the sync engine consumes.
var searchFields = "summary,assignee,project,parent,issuetype,created,status,customfield_10020"

type Client struct {
    baseURL string
    token   string
    user    string
    pass    string
    http    *http.Client
    log     zerolog.Logger
    apiVer  string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: cfg.JiraBaseURL,
        token:   cfg.JiraPAT,
        user:    cfg.JiraUsername,
        pass:    cfg.JiraAPIToken,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
        apiVer:  cfg.JiraAPIVersion,
    }
}

func (c *Client) apiPath(suffix string) string {
    if c.apiVer == "2" { return "/rest/api/2" + suffix }
    return "/rest/api/3" + suffix
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

func (c *Client) doJSON(ctx context.Context, method, u, endpoint string, body, out any) error {
    if c.baseURL == "" { return errors.New("jira: empty baseURL") }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        if attempt > 0 {
            // backoff
            time.Sleep(time.Duration(300*(1<<(attempt-1))) * time.Millisecond)
        }
        var r io.Reader
        if payload != nil { r = bytes.NewReader(payload) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return err }
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        req.Header.Set("Accept", "application/json")
        if c.token != "" {
            req.Header.Set("Authorization", "Bearer "+c.token)
        } else if c.user != "" && c.pass != "" {
            req.SetBasicAuth(c.user, c.pass)
        }
        resp, err := c.http.Do(req)
        if err != nil {
            lastErr = err
            continue
        }
        if resp.StatusCode >= 300 {
            b, _ := io.ReadAll(resp.Body)
            resp.Body.Close()
            apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
            // retry on 429/5xx only
            if resp.StatusCode != 429 && resp.StatusCode < 500 { return apiErr }
            lastErr = apiErr
            continue
        }
        err = json.NewDecoder(resp.Body).Decode(out)
        resp.Body.Close()
        if err != nil {
            return &APIError{Endpoint: endpoint, Status: resp.StatusCode, Body: "malformed payload: " + err.Error()}
        }
        return nil
    }
    return lastErr
}

// SearchIssues runs one page of a JQL search.
func (c *Client) SearchIssues(ctx context.Context, jql string, startAt, max int) (*SearchPage, error) {
    if jql == "" { return nil, errors.New("jira: empty jql") }
    if max <= 0 || max > MaxPageSize { max = MaxPageSize }
    q := url.Values{}
    q.Set("jql", jql)
    q.Set("startAt", fmt.Sprint(startAt))
    q.Set("maxResults", fmt.Sprint(max))
    q.Set("fields", searchFields)
    u := c.apiURL(c.apiPath("/search"), q)
    var page SearchPage
    if err := c.doJSON(ctx, http.MethodGet, u, "search", nil, &page); err != nil { return nil, err }
    return &page, nil
}

// Worklogs runs one page of an issue's worklog listing.
func (c *Client) Worklogs(ctx context.Context, issueKey string, startAt, max int) (*WorklogPage, error) {
    if issueKey == "" { return nil, errors.New("jira: empty issue key") }
    if max <= 0 || max > MaxPageSize { max = MaxPageSize }
    q := url.Values{}
    q.Set("startAt", fmt.Sprint(startAt))
    q.Set("maxResults", fmt.Sprint(max))
    u := c.apiURL(c.apiPath("/issue/"+url.PathEscape(issueKey)+"/worklog"), q)
    var page WorklogPage
    if err := c.doJSON(ctx, http.MethodGet, u, "worklog", nil, &page); err != nil { return nil, err }
    return &page, nil
}

// ListWorklogs pages through every worklog of an issue until exhaustion.
func (c *Client) ListWorklogs(ctx context.Context, issueKey string) ([]Worklog, error) {
    var out []Worklog
    startAt := 0
    for {
        page, err := c.Worklogs(ctx, issueKey, startAt, MaxPageSize)
        if err != nil { return nil, err }
        out = append(out, page.Worklogs...)
        next := page.StartAt + len(page.Worklogs)
        if len(page.Worklogs) == 0 || next >= page.Total { break }
        startAt = next
    }
    return out, nil
}

// Issue fetches a single issue; the engine uses it to materialize parents
// referenced by sub-tasks that the window search never returned.
func (c *Client) Issue(ctx context.Context, key string) (*Issue, error) {
    if key == "" { return nil, errors.New("jira: empty issue key") }
    q := url.Values{}
    q.Set("fields", searchFields)
    u := c.apiURL(c.apiPath("/issue/"+url.PathEscape(key)), q)
    var iss Issue
    if err := c.doJSON(ctx, http.MethodGet, u, "issue", nil, &iss); err != nil { return nil, err }
    return &iss, nil
}

// User fetches a single user by account id, for backfilling author emails
// the worklog payload omits.
func (c *Client) User(ctx context.Context, accountID string) (*User, error) {
    if accountID == "" { return nil, errors.New("jira: empty account id") }
    q := url.Values{}
    q.Set("accountId", accountID)
    u := c.apiURL(c.apiPath("/user"), q)
    var usr User
    if err := c.doJSON(ctx, http.MethodGet, u, "user", nil, &usr); err != nil { return nil, err }
    return &usr, nil
}
