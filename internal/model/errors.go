// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"

	"github.com/jellydator/validation"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, task, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // フィールド単位の検証エラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateUsername  = "DUPLICATE_USERNAME"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// ErrDuplicateUsername はリポジトリ層で一意制約違反を検出した場合に返す。
var ErrDuplicateUsername = errors.New("username already exists")

// NewDuplicateUsernameError はユーザー名重複エラーを生成する。
func NewDuplicateUsernameError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  "Username already taken. Please choose a different one.",
		Category: "auth",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー不在とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid username or password",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID int64) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("Task not found: %d", taskID),
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "Invalid input",
		Category: "validation",
		Action:   "入力内容を確認してください。",
		Fields:   fields,
	}
}

// ValidationErrorFrom はvalidation.Errorsをフィールド単位のAPIErrorに変換する。
// 検証エラー以外はそのまま返す。
func ValidationErrorFrom(err error) error {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for field, ferr := range verrs {
		if ferr != nil {
			fields[field] = ferr.Error()
		}
	}
	return NewValidationError(fields)
}

// NewStatusNotProvidedError はステータス未指定エラーを生成する。
func NewStatusNotProvidedError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  "Status not provided",
		Category: "validation",
		Action:   "status には not-started、in-progress、completed のいずれかを指定してください。",
	}
}

// NewInvalidStatusError は無効なステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("Invalid status: %s", status),
		Category: "validation",
		Action:   "status には not-started、in-progress、completed のいずれかを指定してください。",
	}
}
