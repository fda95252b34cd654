package view

import (
	"github.com/hitoshi/taskmaster/internal/model"
	"github.com/hitoshi/taskmaster/internal/task"
)

// SortOption は並び替えキーの選択肢。
type SortOption struct {
	Value string
	Label string
}

// SortOptions は一覧画面の並び替え選択肢。
var SortOptions = []SortOption{
	{string(model.SortByDueDate), "Due date"},
	{string(model.SortByCreatedDate), "Created date"},
	{string(model.SortByTitle), "Title"},
	{string(model.SortByStatus), "Status"},
}

// TaskListData は一覧画面のデータ。
type TaskListData struct {
	Tasks      []*model.Task
	Query      model.ListQuery
	Statuses   []model.TaskStatus
	SortFields []SortOption
}

// TaskFormData は作成・編集画面のデータ。
type TaskFormData struct {
	Action   string
	Input    task.Input
	Errors   map[string]string
	Statuses []model.TaskStatus
	Task     *model.Task // 編集時のみ
}

// AuthFormData はログイン・登録画面のデータ。
// パスワードは再表示しない。
type AuthFormData struct {
	Username string
	Next     string
	Remember bool
	Errors   map[string]string
}

// ListTitle はフィルター種別に応じた一覧画面の見出しを返す。
func ListTitle(f model.FilterType) string {
	switch f {
	case model.FilterToday:
		return "Today's Tasks"
	case model.FilterUpcoming:
		return "Upcoming Tasks"
	case model.FilterOverdue:
		return "Overdue Tasks"
	}
	return "All Tasks"
}
