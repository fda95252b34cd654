package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskmaster/internal/auth"
	"github.com/hitoshi/taskmaster/internal/metrics"
	"github.com/hitoshi/taskmaster/internal/middleware"
	"github.com/hitoshi/taskmaster/internal/model"
	"github.com/hitoshi/taskmaster/internal/task"
	"github.com/hitoshi/taskmaster/internal/view"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn    func(ctx context.Context, in auth.LoginInput) (*auth.Session, error)
	logoutFn   func(ctx context.Context, token string) error
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return &model.User{ID: 1, Username: in.Username}, nil
}

func (m *mockAuthService) Login(ctx context.Context, in auth.LoginInput) (*auth.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, in)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, token)
	}
	return nil
}

type mockTaskService struct {
	listFn        func(ctx context.Context, q model.ListQuery) (*task.ListResult, error)
	getFn         func(ctx context.Context, id int64) (*model.Task, error)
	createFn      func(ctx context.Context, in task.Input, actor model.Actor) (*model.Task, error)
	updateFn      func(ctx context.Context, id int64, in task.Input, actor model.Actor) (*model.Task, error)
	patchFn       func(ctx context.Context, id int64, p task.Patch, actor model.Actor) (*model.Task, error)
	deleteFn      func(ctx context.Context, id int64) error
	patchStatusFn func(ctx context.Context, id int64, status *string, actor model.Actor) (*model.Task, error)
}

func (m *mockTaskService) List(ctx context.Context, q model.ListQuery) (*task.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return &task.ListResult{Counts: &model.TaskCounts{}, Query: q.Normalize()}, nil
}

func (m *mockTaskService) Get(ctx context.Context, id int64) (*model.Task, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewTaskNotFoundError(id)
}

func (m *mockTaskService) Create(ctx context.Context, in task.Input, actor model.Actor) (*model.Task, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in, actor)
	}
	return sampleTask(1), nil
}

func (m *mockTaskService) Update(ctx context.Context, id int64, in task.Input, actor model.Actor) (*model.Task, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, in, actor)
	}
	return sampleTask(id), nil
}

func (m *mockTaskService) Patch(ctx context.Context, id int64, p task.Patch, actor model.Actor) (*model.Task, error) {
	if m.patchFn != nil {
		return m.patchFn(ctx, id, p, actor)
	}
	return sampleTask(id), nil
}

func (m *mockTaskService) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockTaskService) PatchStatus(ctx context.Context, id int64, status *string, actor model.Actor) (*model.Task, error) {
	if m.patchStatusFn != nil {
		return m.patchStatusFn(ctx, id, status, actor)
	}
	return sampleTask(id), nil
}

func (m *mockTaskService) Location() *time.Location {
	return testLoc
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

// mockMetrics はログイン試行の記録を保持する。
type mockMetrics struct {
	metrics.NopCollector

	mu     sync.Mutex
	logins []string
}

func (m *mockMetrics) RecordLoginAttempt(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins = append(m.logins, result)
}

func (m *mockMetrics) loginResults() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.logins...)
}

// --- テストヘルパー ---

var testLoc = time.FixedZone("JST", 9*60*60)

func sampleTask(id int64) *model.Task {
	uid := int64(7)
	return &model.Task{
		ID:                id,
		Title:             "Write report",
		Description:       "Quarterly numbers",
		DueDate:           time.Date(2024, 5, 12, 0, 0, 0, 0, testLoc),
		Status:            model.StatusInProgress,
		Remarks:           "Draft first",
		CreatedOn:         time.Date(2024, 5, 1, 9, 30, 0, 0, testLoc),
		LastUpdatedOn:     time.Date(2024, 5, 2, 14, 5, 0, 0, testLoc),
		CreatedByID:       &uid,
		CreatedByName:     "alice",
		LastUpdatedByID:   &uid,
		LastUpdatedByName: "alice",
	}
}

func newTestRenderer(t *testing.T) *view.Renderer {
	t.Helper()
	r, err := view.NewRenderer(testLoc)
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}
	return r
}

func aliceActor() model.Actor {
	id := int64(7)
	return model.Actor{UserID: &id, Name: "alice"}
}

// withActor はリクエストコンテキストに操作者を設定する。
func withActor(r *http.Request, actor model.Actor) *http.Request {
	return r.WithContext(middleware.ContextWithActor(r.Context(), actor))
}

// withURLParam はchiのURLパラメータを設定する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// findCookie はレスポンスから指定名のCookieを取得する。
func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// flashCookieFrom はリダイレクト応答のフラッシュCookieを次のリクエストに引き継いで内容を取得する。
func flashCookieFrom(t *testing.T, resp *http.Response) *view.Flash {
	t.Helper()
	c := findCookie(resp, flashCookieName)
	if c == nil {
		t.Fatal("flash cookie not set")
	}
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.AddCookie(c)
	return flashStore{}.pop(httptest.NewRecorder(), req)
}
