// Package task はタスクの一覧・検索・作成・更新・削除を提供する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/taskmaster/internal/metrics"
	"github.com/hitoshi/taskmaster/internal/model"
	"github.com/hitoshi/taskmaster/internal/repository"
)

// ServiceConfig はタスクサービスの設定。
type ServiceConfig struct {
	Location *time.Location   // 期日ウィンドウを算出するタイムゾーン
	Now      func() time.Time // 現在時刻（nilの場合はtime.Now）
	Metrics  metrics.MetricsCollector
}

// Service はタスクに関するビジネスロジックを提供する。
type Service struct {
	repo    repository.TaskRepository
	loc     *time.Location
	now     func() time.Time
	metrics metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(repo repository.TaskRepository, cfg ServiceConfig) *Service {
	s := &Service{
		repo:    repo,
		loc:     cfg.Location,
		now:     cfg.Now,
		metrics: cfg.Metrics,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.metrics == nil {
		s.metrics = metrics.NopCollector{}
	}
	return s
}

// ListResult はListの戻り値。
type ListResult struct {
	Tasks  []*model.Task
	Counts *model.TaskCounts
	Query  model.ListQuery // 正規化後の検索条件
}

// Location は期日の表示に使うタイムゾーンを返す。
func (s *Service) Location() *time.Location {
	return s.loc
}

// Windows は現在時刻から期日ウィンドウを算出する。
func (s *Service) Windows() model.DueWindows {
	return model.NewDueWindows(s.now(), s.loc)
}

// List は検索条件に一致するタスクとサイドバー用件数を返す。
// 件数は検索条件に依存しない。
func (s *Service) List(ctx context.Context, q model.ListQuery) (*ListResult, error) {
	q = q.Normalize()
	w := s.Windows()

	tasks, err := s.repo.List(ctx, q, w)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	counts, err := s.repo.Counts(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	return &ListResult{Tasks: tasks, Counts: counts, Query: q}, nil
}

// Get は指定IDのタスクを返す。存在しない場合はTASK_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Task, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError(id)
	}
	return t, nil
}

// Create はタスクを作成する。作成者と最終更新者はactorとなる。
func (s *Service) Create(ctx context.Context, in Input, actor model.Actor) (*model.Task, error) {
	in = s.clean(in)
	if err := in.Validate(); err != nil {
		return nil, model.ValidationErrorFrom(err)
	}

	due, err := ParseDueDate(in.DueDate, s.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date: %w", err)
	}

	now := s.now()
	t := &model.Task{
		Title:             in.Title,
		Description:       in.Description,
		DueDate:           due,
		Status:            statusOrDefault(in.Status),
		Remarks:           in.Remarks,
		CreatedOn:         now,
		LastUpdatedOn:     now,
		CreatedByID:       actor.UserID,
		CreatedByName:     actor.Name,
		LastUpdatedByID:   actor.UserID,
		LastUpdatedByName: actor.Name,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.metrics.RecordTaskOperation(metrics.OpCreate)
	slog.Info("task created",
		slog.Int64("task_id", t.ID),
		slog.String("actor", actor.Name),
	)
	return t, nil
}

// Update は編集可能な全フィールドを上書きする。
func (s *Service) Update(ctx context.Context, id int64, in Input, actor model.Actor) (*model.Task, error) {
	in = s.clean(in)
	if err := in.Validate(); err != nil {
		return nil, model.ValidationErrorFrom(err)
	}

	due, err := ParseDueDate(in.DueDate, s.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date: %w", err)
	}

	updated, err := s.repo.Update(ctx, &model.Task{
		ID:                id,
		Title:             in.Title,
		Description:       in.Description,
		DueDate:           due,
		Status:            statusOrDefault(in.Status),
		Remarks:           in.Remarks,
		LastUpdatedOn:     s.now(),
		LastUpdatedByID:   actor.UserID,
		LastUpdatedByName: actor.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if updated == nil {
		return nil, model.NewTaskNotFoundError(id)
	}

	s.metrics.RecordTaskOperation(metrics.OpUpdate)
	slog.Info("task updated",
		slog.Int64("task_id", id),
		slog.String("actor", actor.Name),
	)
	return updated, nil
}

// Patch は指定されたフィールドのみを変更する。
// 既存値とマージした結果をUpdateと同じ規則で検証する。
func (s *Service) Patch(ctx context.Context, id int64, p Patch, actor model.Actor) (*model.Task, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, id, p.apply(InputFromTask(current, s.loc)), actor)
}

// Delete はタスクを削除する。存在しない場合はTASK_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if !deleted {
		return model.NewTaskNotFoundError(id)
	}

	s.metrics.RecordTaskOperation(metrics.OpDelete)
	slog.Info("task deleted", slog.Int64("task_id", id))
	return nil
}

// PatchStatus はステータスのみを変更する。
// 存在確認を先に行い、未指定または未定義のステータスではタスクを変更しない。
func (s *Service) PatchStatus(ctx context.Context, id int64, status *string, actor model.Actor) (*model.Task, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	if status == nil {
		return nil, model.NewStatusNotProvidedError()
	}
	next := model.TaskStatus(*status)
	if !next.Valid() {
		return nil, model.NewInvalidStatusError(*status)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, next, actor, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	// 存在確認後に他のリクエストで削除された場合
	if updated == nil {
		return nil, model.NewTaskNotFoundError(id)
	}

	s.metrics.RecordTaskOperation(metrics.OpPatchStatus)
	slog.Info("task status changed",
		slog.Int64("task_id", id),
		slog.String("status", string(next)),
		slog.String("actor", actor.Name),
	)
	return updated, nil
}

// clean は前後の空白のみを落とす。本文は入力どおりに保存し、表示時にエスケープする。
func (s *Service) clean(in Input) Input {
	in.DueDate = strings.TrimSpace(in.DueDate)
	in.Status = strings.TrimSpace(in.Status)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Remarks = strings.TrimSpace(in.Remarks)
	return in
}

func statusOrDefault(s string) model.TaskStatus {
	if s == "" {
		return model.StatusNotStarted
	}
	return model.TaskStatus(s)
}
