package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/taskmaster/internal/auth"
	"github.com/hitoshi/taskmaster/internal/middleware"
	"github.com/hitoshi/taskmaster/internal/model"
	"github.com/hitoshi/taskmaster/internal/task"
	"github.com/hitoshi/taskmaster/internal/view"
)

// --- インメモリ状態を持つ統合テスト用の実装 ---

type memoryUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	nextID int64
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[int64]*model.User)}
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memoryUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return model.ErrDuplicateUsername
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *memorySessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *memorySessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok && sess.ExpiresAt.After(time.Now()) {
		cp := *sess
		return &cp, nil
	}
	return nil, nil
}

func (r *memorySessionRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memorySessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

// memoryTaskService は一覧の絞り込みを行わない簡易なタスクサービス。
type memoryTaskService struct {
	mu     sync.Mutex
	tasks  map[int64]*model.Task
	nextID int64
}

func newMemoryTaskService() *memoryTaskService {
	return &memoryTaskService{tasks: make(map[int64]*model.Task)}
}

func (s *memoryTaskService) List(ctx context.Context, q model.ListQuery) (*task.ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := &task.ListResult{Counts: &model.TaskCounts{}, Query: q.Normalize()}
	for _, t := range s.tasks {
		cp := *t
		res.Tasks = append(res.Tasks, &cp)
		res.Counts.Total++
	}
	sort.Slice(res.Tasks, func(i, j int) bool { return res.Tasks[i].ID < res.Tasks[j].ID })
	return res, nil
}

func (s *memoryTaskService) Get(ctx context.Context, id int64) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, model.NewTaskNotFoundError(id)
	}
	cp := *t
	return &cp, nil
}

func (s *memoryTaskService) Create(ctx context.Context, in task.Input, actor model.Actor) (*model.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, model.ValidationErrorFrom(err)
	}
	due, _ := task.ParseDueDate(in.DueDate, testLoc)
	status := model.TaskStatus(in.Status)
	if status == "" {
		status = model.StatusNotStarted
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := time.Now()
	t := &model.Task{
		ID:                s.nextID,
		Title:             in.Title,
		Description:       in.Description,
		DueDate:           due,
		Status:            status,
		Remarks:           in.Remarks,
		CreatedOn:         now,
		LastUpdatedOn:     now,
		CreatedByID:       actor.UserID,
		CreatedByName:     actor.Name,
		LastUpdatedByID:   actor.UserID,
		LastUpdatedByName: actor.Name,
	}
	s.tasks[t.ID] = t
	cp := *t
	return &cp, nil
}

func (s *memoryTaskService) Update(ctx context.Context, id int64, in task.Input, actor model.Actor) (*model.Task, error) {
	return nil, model.NewTaskNotFoundError(id)
}

func (s *memoryTaskService) Patch(ctx context.Context, id int64, p task.Patch, actor model.Actor) (*model.Task, error) {
	return nil, model.NewTaskNotFoundError(id)
}

func (s *memoryTaskService) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return model.NewTaskNotFoundError(id)
	}
	delete(s.tasks, id)
	return nil
}

func (s *memoryTaskService) PatchStatus(ctx context.Context, id int64, status *string, actor model.Actor) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, model.NewTaskNotFoundError(id)
	}
	if status == nil {
		return nil, model.NewStatusNotProvidedError()
	}
	if !model.TaskStatus(*status).Valid() {
		return nil, model.NewInvalidStatusError(*status)
	}
	t.Status = model.TaskStatus(*status)
	t.LastUpdatedOn = time.Now()
	t.LastUpdatedByID = actor.UserID
	t.LastUpdatedByName = actor.Name
	cp := *t
	return &cp, nil
}

func (s *memoryTaskService) Location() *time.Location {
	return testLoc
}

// --- テストヘルパー ---

type testClient struct {
	t      *testing.T
	server *httptest.Server
	client *http.Client
}

func newIntegrationServer(t *testing.T) *testClient {
	t.Helper()

	tokens := auth.NewSessionTokens(auth.SessionTokensConfig{
		Secret:         "integration-secret",
		SessionMaxAge:  time.Hour,
		RememberMaxAge: 24 * time.Hour,
	})
	authService := auth.NewService(newMemoryUserRepo(), newMemorySessionRepo(), auth.NewPasswordHasher(bcrypt.MinCost), tokens)

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	router := NewRouter(&RouterDeps{
		SessionResolver:   authService,
		AuthRequired:      true,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Renderer:          newTestRenderer(t),
		StaticHandler:     view.StaticHandler(),
		AuthService:       authService,
		TaskService:       newMemoryTaskService(),
		DB:                &mockPinger{},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		t.Fatalf("cookiejar.New() error: %v", err)
	}
	return &testClient{t: t, server: server, client: &http.Client{Jar: jar}}
}

// csrfToken はcookie jarに保持されたCSRFトークンを返す。
func (c *testClient) csrfToken() string {
	c.t.Helper()
	v := c.cookieValue("csrf_token")
	if v == "" {
		c.t.Fatal("csrf_token cookie not found")
	}
	return v
}

// cookieValue はcookie jarに保持された指定Cookieの値を返す。無い場合は空文字列。
func (c *testClient) cookieValue(name string) string {
	u, _ := url.Parse(c.server.URL)
	for _, ck := range c.client.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (c *testClient) get(path string) (*http.Response, string) {
	c.t.Helper()
	resp, err := c.client.Get(c.server.URL + path)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(c.t, resp)
}

func (c *testClient) postForm(path string, form url.Values) (*http.Response, string) {
	c.t.Helper()
	form.Set(middleware.CSRFFormField, c.csrfToken())
	resp, err := c.client.PostForm(c.server.URL+path, form)
	if err != nil {
		c.t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(c.t, resp)
}

func (c *testClient) postJSON(path, body string) (*http.Response, string) {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.server.URL+path, strings.NewReader(body))
	if err != nil {
		c.t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.CSRFHeaderName, c.csrfToken())
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("POST %s: %v", path, err)
	}
	return resp, readBody(c.t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

// --- テスト ---

func TestIntegration_RegisterLoginTaskLogout(t *testing.T) {
	c := newIntegrationServer(t)

	// 1. 未ログインで保護画面にアクセスするとログイン画面へ
	resp, _ := c.get("/tasks/new")
	if resp.Request.URL.Path != "/login" || resp.Request.URL.Query().Get("next") != "/tasks/new" {
		t.Fatalf("redirected to %s, want /login?next=/tasks/new", resp.Request.URL)
	}

	// 2. 利用者登録
	c.get("/register")
	resp, body := c.postForm("/register", url.Values{
		"username":         {"alice"},
		"password":         {"secret1"},
		"confirm_password": {"secret1"},
	})
	if resp.Request.URL.Path != "/login" {
		t.Fatalf("after register at %s, want /login", resp.Request.URL.Path)
	}
	if !strings.Contains(body, "Registration successful! You can now log in.") {
		t.Error("login page should show the registration flash")
	}

	// 3. 同じユーザー名は登録できない
	resp, _ = c.postForm("/register", url.Values{
		"username":         {"alice"},
		"password":         {"another"},
		"confirm_password": {"another"},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	// 4. 誤ったパスワードでは失敗する
	resp, body = c.postForm("/login", url.Values{"username": {"alice"}, "password": {"wrong!"}})
	if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(body, "Invalid username or password") {
		t.Errorf("bad login status = %d", resp.StatusCode)
	}

	// 5. ログインするとnextへ遷移する
	resp, body = c.postForm("/login", url.Values{
		"username": {"alice"},
		"password": {"secret1"},
		"next":     {"/tasks/new"},
	})
	if resp.Request.URL.Path != "/tasks/new" || resp.StatusCode != http.StatusOK {
		t.Fatalf("after login at %s (status %d), want /tasks/new", resp.Request.URL.Path, resp.StatusCode)
	}
	if !strings.Contains(body, "alice") {
		t.Error("page should show the signed-in user")
	}

	// 6. タスクを作成すると一覧にフラッシュとともに表示される
	resp, body = c.postForm("/tasks/new", url.Values{
		"title":    {"Write report"},
		"due_date": {"2024-05-12"},
		"status":   {"not-started"},
	})
	if resp.Request.URL.Path != "/tasks" {
		t.Fatalf("after create at %s, want /tasks", resp.Request.URL.Path)
	}
	for _, s := range []string{"Task created successfully!", "Write report", "2024-05-12"} {
		if !strings.Contains(body, s) {
			t.Errorf("list page should contain %q", s)
		}
	}

	// フラッシュは一度だけ表示される
	_, body = c.get("/tasks")
	if strings.Contains(body, "Task created successfully!") {
		t.Error("flash should be consumed after one render")
	}

	// 7. ステータス更新APIで操作者が記録される
	resp, body = c.postJSON("/api/tasks/1/status", `{"status":"completed"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status update = %d: %s", resp.StatusCode, body)
	}
	var updated taskResponse
	if err := json.Unmarshal([]byte(body), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Task == nil || updated.Task.Status != "completed" || updated.Task.LastUpdatedByName != "alice" {
		t.Errorf("updated task = %+v", updated.Task)
	}

	resp, _ = c.postJSON("/api/tasks/1/status", `{"status":"archived"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	// 8. ログアウト後は再びログインが必要
	sessionToken := c.cookieValue(middleware.SessionCookieName)
	if sessionToken == "" {
		t.Fatal("session cookie should be set after login")
	}
	resp, _ = c.get("/logout")
	if resp.Request.URL.Path != "/login" {
		t.Errorf("after logout at %s, want /login", resp.Request.URL.Path)
	}
	resp, _ = c.get("/tasks")
	if resp.Request.URL.Path != "/login" {
		t.Errorf("after logout /tasks led to %s, want /login", resp.Request.URL.Path)
	}

	// 9. ログアウト前に控えたトークンを再送しても認証されない
	req, err := http.NewRequest(http.MethodGet, c.server.URL+"/api/tasks/1", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionToken})
	replayed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/tasks/1: %v", err)
	}
	readBody(t, replayed)
	if replayed.StatusCode != http.StatusUnauthorized {
		t.Errorf("replayed token status = %d, want %d", replayed.StatusCode, http.StatusUnauthorized)
	}
}
