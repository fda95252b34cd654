package handler

import (
	"net/http"

	"github.com/hitoshi/taskmaster/internal/middleware"
	"github.com/hitoshi/taskmaster/internal/model"
	"github.com/hitoshi/taskmaster/internal/task"
)

// TaskAPIHandler はタスクのJSON APIハンドラー。
type TaskAPIHandler struct {
	service TaskServiceInterface
}

// NewTaskAPIHandler はTaskAPIHandlerを生成する。
func NewTaskAPIHandler(service TaskServiceInterface) *TaskAPIHandler {
	return &TaskAPIHandler{service: service}
}

// statusRequest はステータス更新APIのリクエストボディ。
// statusキーの欠落を区別するためポインタで受ける。
type statusRequest struct {
	Status *string `json:"status"`
}

// List はタスク一覧と件数を返す。
// GET /api/tasks?filter=overdue&status=not-started&search=doc&sort_by=title&sort_order=asc
func (h *TaskAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.List(r.Context(), listQueryFromRequest(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	loc := h.service.Location()
	tasks := make([]taskView, 0, len(result.Tasks))
	for _, t := range result.Tasks {
		tasks = append(tasks, toTaskView(t, loc))
	}

	writeJSON(w, http.StatusOK, listEnvelope{
		Success: true,
		Tasks:   tasks,
		Counts:  result.Counts,
	})
}

// Get は指定IDのタスクを返す。
// GET /api/tasks/{id}
func (h *TaskAPIHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromAPIRequest(w, r)
	if !ok {
		return
	}

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.writeTask(w, http.StatusOK, t)
}

// Create はタスクを作成する。
// POST /api/tasks
func (h *TaskAPIHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in task.Input
	if err := decodeJSON(r, &in); err != nil {
		handleServiceError(w, r, err)
		return
	}

	t, err := h.service.Create(r.Context(), in, middleware.ActorFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.writeTask(w, http.StatusCreated, t)
}

// Update は指定されたフィールドのみタスクを更新する。
// PATCH /api/tasks/{id}
func (h *TaskAPIHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromAPIRequest(w, r)
	if !ok {
		return
	}

	var p task.Patch
	if err := decodeJSON(r, &p); err != nil {
		handleServiceError(w, r, err)
		return
	}

	t, err := h.service.Patch(r.Context(), id, p, middleware.ActorFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.writeTask(w, http.StatusOK, t)
}

// Delete はタスクを削除する。
// DELETE /api/tasks/{id}
func (h *TaskAPIHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromAPIRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

// UpdateStatus はタスクのステータスのみを更新する。
// POST /api/tasks/{id}/status
// 存在確認を先に行うため、未知のIDは本文の内容によらず404となる。
func (h *TaskAPIHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFromAPIRequest(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		// 本文が解釈できない場合はステータス未指定として扱う
		req.Status = nil
	}

	t, err := h.service.PatchStatus(r.Context(), id, req.Status, middleware.ActorFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.writeTask(w, http.StatusOK, t)
}

func (h *TaskAPIHandler) writeTask(w http.ResponseWriter, status int, t *model.Task) {
	v := toTaskView(t, h.service.Location())
	writeJSON(w, status, envelope{Success: true, Task: &v})
}

// taskIDFromAPIRequest はURLのタスクIDを取得する。解釈できない場合は404を返す。
func taskIDFromAPIRequest(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseTaskID(r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeTaskNotFound,
			Message:  "Task not found",
			Category: "task",
			Action:   "タスクIDを確認してください。",
		})
		return 0, false
	}
	return id, true
}
