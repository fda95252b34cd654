package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskmaster/internal/middleware"
	"github.com/hitoshi/taskmaster/internal/model"
	"github.com/hitoshi/taskmaster/internal/task"
	"github.com/hitoshi/taskmaster/internal/view"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	List(ctx context.Context, q model.ListQuery) (*task.ListResult, error)
	Get(ctx context.Context, id int64) (*model.Task, error)
	Create(ctx context.Context, in task.Input, actor model.Actor) (*model.Task, error)
	Update(ctx context.Context, id int64, in task.Input, actor model.Actor) (*model.Task, error)
	Patch(ctx context.Context, id int64, p task.Patch, actor model.Actor) (*model.Task, error)
	Delete(ctx context.Context, id int64) error
	PatchStatus(ctx context.Context, id int64, status *string, actor model.Actor) (*model.Task, error)
	Location() *time.Location
}

var _ TaskServiceInterface = (*task.Service)(nil)

const formErrorMessage = "Please correct the errors below."

// TaskHandler はタスク画面のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
	pages   pages
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface, renderer PageRenderer, cookie CookieConfig, authRequired bool) *TaskHandler {
	return &TaskHandler{
		service: service,
		pages: pages{
			renderer:     renderer,
			flash:        flashStore{cookie: cookie},
			authRequired: authRequired,
		},
	}
}

// Index は一覧画面へ遷移させる。
// GET /
func (h *TaskHandler) Index(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/tasks", http.StatusFound)
}

// List はタスク一覧をサイドバー件数とともに表示する。
// GET /tasks?filter=today&status=completed&search=doc&sort_by=title&sort_order=desc
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.List(r.Context(), listQueryFromRequest(r))
	if err != nil {
		h.handlePageError(w, r, err)
		return
	}

	page := h.pages.page(w, r, view.ListTitle(result.Query.Filter))
	page.Counts = result.Counts
	page.Data = view.TaskListData{
		Tasks:      result.Tasks,
		Query:      result.Query,
		Statuses:   model.TaskStatuses(),
		SortFields: view.SortOptions,
	}
	h.pages.renderer.Render(w, http.StatusOK, view.PageTasks, page)
}

// NewForm はタスク作成画面を表示する。
// GET /tasks/new
func (h *TaskHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, "New Task", view.TaskFormData{
		Action: "/tasks/new",
		Input:  task.Input{Status: string(model.StatusNotStarted)},
	})
}

// Create はタスクを作成し、一覧画面へ遷移させる。
// POST /tasks/new
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	in := taskInputFromForm(r)
	actor := middleware.ActorFromContext(r.Context())

	if _, err := h.service.Create(r.Context(), in, actor); err != nil {
		if fields, ok := validationFields(err); ok {
			h.renderInvalidForm(w, r, "New Task", view.TaskFormData{
				Action: "/tasks/new",
				Input:  in,
				Errors: fields,
			})
			return
		}
		h.handlePageError(w, r, err)
		return
	}

	h.pages.redirectWithFlash(w, r, "/tasks", flashSuccess, "Task created successfully!")
}

// EditForm はタスク編集画面を表示する。
// GET /tasks/{id}/edit
func (h *TaskHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskIDParam(w, r)
	if !ok {
		return
	}

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handlePageError(w, r, err)
		return
	}

	h.renderForm(w, r, http.StatusOK, "Edit Task", view.TaskFormData{
		Action: editPath(id),
		Input:  task.InputFromTask(t, h.service.Location()),
		Task:   t,
	})
}

// Update はタスクを更新し、一覧画面へ遷移させる。
// POST /tasks/{id}/edit
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskIDParam(w, r)
	if !ok {
		return
	}

	current, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handlePageError(w, r, err)
		return
	}

	in := taskInputFromForm(r)
	actor := middleware.ActorFromContext(r.Context())
	if _, err := h.service.Update(r.Context(), id, in, actor); err != nil {
		if fields, ok := validationFields(err); ok {
			h.renderInvalidForm(w, r, "Edit Task", view.TaskFormData{
				Action: editPath(id),
				Input:  in,
				Errors: fields,
				Task:   current,
			})
			return
		}
		h.handlePageError(w, r, err)
		return
	}

	h.pages.redirectWithFlash(w, r, "/tasks", flashSuccess, "Task updated successfully!")
}

// Delete はタスクを削除し、一覧画面へ遷移させる。
// POST /tasks/{id}/delete
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handlePageError(w, r, err)
		return
	}

	h.pages.redirectWithFlash(w, r, "/tasks", flashSuccess, "Task deleted successfully!")
}

func (h *TaskHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, title string, data view.TaskFormData) {
	data.Statuses = model.TaskStatuses()
	page := h.pages.page(w, r, title)
	page.Data = data
	h.pages.renderer.Render(w, status, view.PageTaskForm, page)
}

// renderInvalidForm は入力値とフィールドエラーを保持したままフォームを再表示する。
func (h *TaskHandler) renderInvalidForm(w http.ResponseWriter, r *http.Request, title string, data view.TaskFormData) {
	data.Statuses = model.TaskStatuses()
	page := h.pages.page(w, r, title)
	page.Flash = &view.Flash{Kind: flashError, Message: formErrorMessage}
	page.Data = data
	h.pages.renderer.Render(w, http.StatusBadRequest, view.PageTaskForm, page)
}

// taskIDParam はURLのタスクIDを取得する。解釈できない場合は404画面を返す。
func (h *TaskHandler) taskIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseTaskID(r)
	if err != nil {
		h.pages.renderError(w, r, http.StatusNotFound, "Task not found")
		return 0, false
	}
	return id, true
}

// handlePageError はサービス層のエラーをエラー画面に変換する。
func (h *TaskHandler) handlePageError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		h.pages.renderError(w, r, mapAPIErrorToHTTPStatus(apiErr), apiErr.Message)
		return
	}

	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	h.pages.renderError(w, r, http.StatusInternalServerError, "An internal error occurred")
}

// listQueryFromRequest はクエリパラメータから検索条件を組み立てる。
// 未知の値の扱いはサービス層の正規化に任せる。
func listQueryFromRequest(r *http.Request) model.ListQuery {
	q := r.URL.Query()
	return model.ListQuery{
		Filter:    model.FilterType(q.Get("filter")),
		Status:    q.Get("status"),
		Search:    q.Get("search"),
		SortBy:    model.SortField(q.Get("sort_by")),
		SortOrder: model.SortOrder(q.Get("sort_order")),
	}
}

func taskInputFromForm(r *http.Request) task.Input {
	return task.Input{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		DueDate:     r.PostFormValue("due_date"),
		Status:      r.PostFormValue("status"),
		Remarks:     r.PostFormValue("remarks"),
	}
}

// validationFields は入力検証エラーのフィールド別メッセージを返す。
func validationFields(err error) (map[string]string, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidation {
		return apiErr.Fields, true
	}
	return nil, false
}

func parseTaskID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func editPath(id int64) string {
	return "/tasks/" + strconv.FormatInt(id, 10) + "/edit"
}
