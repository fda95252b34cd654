package task

import (
	"time"

	"github.com/jellydator/validation"

	"github.com/hitoshi/taskmaster/internal/model"
)

// DateLayout は期日の入出力形式。
const DateLayout = "2006-01-02"

// MaxTitleLength はタイトルの最大文字数。
const MaxTitleLength = 100

// Input はタスク作成・更新フォームの入力。
// DueDateはYYYY-MM-DDまたはRFC 3339の文字列で受け付ける。
type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
	Remarks     string `json:"remarks"`
}

// Patch はAPIからの部分更新。nilのフィールドは既存値を維持する。
type Patch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
	Status      *string `json:"status"`
	Remarks     *string `json:"remarks"`
}

// Validate はタイトル必須かつ100文字以内、期日必須かつ解釈可能、ステータスが定義済みであることを検証する。
// ステータスの空文字はnot-startedとして扱うため許可する。
func (in Input) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title,
			validation.Required.Error("Title is required"),
			validation.RuneLength(1, MaxTitleLength).Error("Title must be at most 100 characters"),
		),
		validation.Field(&in.DueDate,
			validation.Required.Error("Due date is required"),
			validation.By(func(v any) error {
				s, _ := v.(string)
				if _, err := ParseDueDate(s, time.UTC); err != nil {
					return validation.NewError("validation_due_date", "Due date must be in YYYY-MM-DD format")
				}
				return nil
			}),
		),
		validation.Field(&in.Status,
			validation.In(
				string(model.StatusNotStarted),
				string(model.StatusInProgress),
				string(model.StatusCompleted),
			).Error("Status must be one of not-started, in-progress, completed"),
		),
	)
}

// ParseDueDate は期日文字列をlocにおけるその日の0時に変換する。
// RFC 3339形式の場合はlocに変換した暦日に切り詰める。
func ParseDueDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return model.StartOfDay(t, loc), nil
}

// InputFromTask は既存タスクからフォーム初期値を生成する。
func InputFromTask(t *model.Task, loc *time.Location) Input {
	return Input{
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate.In(loc).Format(DateLayout),
		Status:      string(t.Status),
		Remarks:     t.Remarks,
	}
}

// apply はPatchの指定フィールドをInputに上書きする。
func (p Patch) apply(in Input) Input {
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.DueDate != nil {
		in.DueDate = *p.DueDate
	}
	if p.Status != nil {
		in.Status = *p.Status
	}
	if p.Remarks != nil {
		in.Remarks = *p.Remarks
	}
	return in
}
