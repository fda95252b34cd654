// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/taskmaster/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。大文字小文字は区別する。
	// 見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDと作成日時をuserに設定する。
	// ユーザー名が既に存在する場合はmodel.ErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は有効期限内のセッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// DeleteByID はセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
// 期日ウィンドウの境界は呼び出し側が算出して渡す。
type TaskRepository interface {
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Task, error)

	// List は検索条件に一致するタスクを並び替えて返す。
	// 同順位はid昇順で安定させる。
	List(ctx context.Context, q model.ListQuery, w model.DueWindows) ([]*model.Task, error)

	// Counts はサイドバー用の件数を1クエリで集計する。
	Counts(ctx context.Context, w model.DueWindows) (*model.TaskCounts, error)

	// Create はタスクを作成し、採番されたIDをtaskに設定する。
	Create(ctx context.Context, task *model.Task) error

	// Update は編集可能な全フィールドと最終更新者を上書きする。
	// 更新後の行を返し、見つからない場合はnilを返す。
	Update(ctx context.Context, task *model.Task) (*model.Task, error)

	// UpdateStatus はステータスと最終更新者のみを更新する。
	// 更新後の行を返し、見つからない場合はnilを返す。
	UpdateStatus(ctx context.Context, id int64, status model.TaskStatus, actor model.Actor, at time.Time) (*model.Task, error)

	// DeleteByID は指定IDのタスクを削除する。削除対象が存在したかを返す。
	DeleteByID(ctx context.Context, id int64) (bool, error)
}
