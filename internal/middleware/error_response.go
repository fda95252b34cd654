package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/taskmaster/internal/model"
)

// ErrorResponseBody はJSON APIのエラーレスポンス。
// 成功時のエンベロープと同じくsuccessフィールドを持つ。
type ErrorResponseBody struct {
	Success  bool              `json:"success"`
	Code     string            `json:"code,omitempty"`
	Message  string            `json:"message"`
	Category string            `json:"category,omitempty"`
	Action   string            `json:"action,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success:  false,
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Errors:   apiErr.Fields,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "An internal error occurred",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
