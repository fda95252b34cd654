package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/taskmaster/internal/middleware"
	"github.com/hitoshi/taskmaster/internal/model"
)

// 表示形式
const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"
)

// taskView はJSON APIで返すタスク表現。
type taskView struct {
	ID                int64  `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	DueDate           string `json:"due_date"`
	Status            string `json:"status"`
	Remarks           string `json:"remarks"`
	CreatedOn         string `json:"created_on"`
	LastUpdatedOn     string `json:"last_updated_on"`
	CreatedByName     string `json:"created_by_name"`
	LastUpdatedByName string `json:"last_updated_by_name"`
}

// envelope はJSON APIの共通レスポンス。
type envelope struct {
	Success bool      `json:"success"`
	Task    *taskView `json:"task,omitempty"`
	Message string    `json:"message,omitempty"`
}

// listEnvelope は一覧APIのレスポンス。空の一覧でもtasksを省略しない。
type listEnvelope struct {
	Success bool              `json:"success"`
	Tasks   []taskView        `json:"tasks"`
	Counts  *model.TaskCounts `json:"counts"`
}

func toTaskView(t *model.Task, loc *time.Location) taskView {
	return taskView{
		ID:                t.ID,
		Title:             t.Title,
		Description:       t.Description,
		DueDate:           t.DueDate.In(loc).Format(dateLayout),
		Status:            string(t.Status),
		Remarks:           t.Remarks,
		CreatedOn:         t.CreatedOn.In(loc).Format(dateTimeLayout),
		LastUpdatedOn:     t.LastUpdatedOn.In(loc).Format(dateTimeLayout),
		CreatedByName:     t.CreatedByName,
		LastUpdatedByName: t.LastUpdatedByName,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層のエラーをJSONエラーレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はエラーコードをHTTPステータスコードに変換する。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeDuplicateUsername:
		return http.StatusConflict
	case model.ErrCodeInvalidCredentials, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeTaskNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation, model.ErrCodeInvalidStatus:
		return http.StatusBadRequest
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON はリクエストボディをvに読み込む。
// 不正なJSONはVALIDATION_ERRORとして扱う。
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &model.APIError{
			Code:     model.ErrCodeValidation,
			Message:  "Invalid JSON body",
			Category: "validation",
			Action:   "リクエストボディを確認してください。",
		}
	}
	return nil
}

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 1 << 20
