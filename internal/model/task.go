package model

import (
	"strings"
	"time"
)

// TaskStatus はタスクの進捗状態を表す。
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not-started"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
)

// TaskStatuses は選択可能なステータスを表示順で返す。
func TaskStatuses() []TaskStatus {
	return []TaskStatus{StatusNotStarted, StatusInProgress, StatusCompleted}
}

// Valid は定義済みのステータスであるかを返す。
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Label は画面表示用のラベルを返す。
func (s TaskStatus) Label() string {
	switch s {
	case StatusNotStarted:
		return "Not Started"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	}
	return string(s)
}

// Task は追跡対象の作業項目を表す。
// DueDateは設定タイムゾーンにおける日付の0時を保持する。
// CreatedByID/LastUpdatedByIDは利用者削除後やシステム利用者の場合nilとなるが、
// 名前は非正規化して保持し続ける。
type Task struct {
	ID                int64
	Title             string
	Description       string
	DueDate           time.Time
	Status            TaskStatus
	Remarks           string
	CreatedOn         time.Time
	LastUpdatedOn     time.Time
	CreatedByID       *int64
	CreatedByName     string
	LastUpdatedByID   *int64
	LastUpdatedByName string
}

// FilterType は期日ウィンドウによる絞り込み種別を表す。
type FilterType string

const (
	FilterAll      FilterType = "all"
	FilterToday    FilterType = "today"
	FilterUpcoming FilterType = "upcoming"
	FilterOverdue  FilterType = "overdue"
)

// SortField は一覧の並び替えキーを表す。
type SortField string

const (
	SortByDueDate     SortField = "due_date"
	SortByCreatedDate SortField = "created_date"
	SortByTitle       SortField = "title"
	SortByStatus      SortField = "status"
)

// SortOrder は並び順を表す。
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListQuery はタスク一覧の検索条件を表す。
type ListQuery struct {
	Filter    FilterType
	Status    string
	Search    string
	SortBy    SortField
	SortOrder SortOrder
}

// Normalize は未知の値を既定値に置き換えた検索条件を返す。
// Statusは自由入力のまま残し、未知の値は何にも一致しない。
func (q ListQuery) Normalize() ListQuery {
	switch q.Filter {
	case FilterAll, FilterToday, FilterUpcoming, FilterOverdue:
	default:
		q.Filter = FilterAll
	}
	switch q.SortBy {
	case SortByDueDate, SortByCreatedDate, SortByTitle, SortByStatus:
	default:
		q.SortBy = SortByDueDate
	}
	switch q.SortOrder {
	case SortAsc, SortDesc:
	default:
		q.SortOrder = SortAsc
	}
	q.Status = strings.TrimSpace(q.Status)
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// TaskCounts はサイドバーに表示する件数を表す。
// 絞り込み条件に依存せず全タスクを対象とする。
type TaskCounts struct {
	Total      int `json:"total"`
	Today      int `json:"today"`
	Upcoming   int `json:"upcoming"`
	Overdue    int `json:"overdue"`
	NotStarted int `json:"not_started"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// UpcomingDays は upcoming ウィンドウの日数。
const UpcomingDays = 7

// DueWindows は基準時刻から算出した期日ウィンドウの境界を表す。
type DueWindows struct {
	TodayStart    time.Time // 当日0時
	TomorrowStart time.Time // 翌日0時
	UpcomingEnd   time.Time // 当日0時 + UpcomingDays日（この時刻を含む）
}

// NewDueWindows はnowをlocに変換した暦日を基準に期日ウィンドウを算出する。
func NewDueWindows(now time.Time, loc *time.Location) DueWindows {
	start := StartOfDay(now, loc)
	return DueWindows{
		TodayStart:    start,
		TomorrowStart: start.AddDate(0, 0, 1),
		UpcomingEnd:   start.AddDate(0, 0, UpcomingDays),
	}
}

// StartOfDay はtをlocに変換した日付の0時を返す。
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
