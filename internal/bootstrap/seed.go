// Package bootstrap はスキーマの初期化・リセットとデモデータ投入を提供する。
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskmaster/internal/auth"
	"github.com/hitoshi/taskmaster/internal/database"
	"github.com/hitoshi/taskmaster/internal/model"
	"github.com/hitoshi/taskmaster/internal/repository"
)

// デモ利用者の資格情報
const (
	DemoUsername = "demo"
	DemoPassword = "password"
)

// demoTask はデモタスクの定義。期日は本日からの日数で表す。
type demoTask struct {
	title       string
	description string
	dueInDays   int
	status      model.TaskStatus
	remarks     string
}

var demoTasks = []demoTask{
	{
		title:       "Complete Project Plan",
		description: "Finalize the project plan document including timeline and resources",
		dueInDays:   2,
		status:      model.StatusInProgress,
		remarks:     "Need to discuss with team",
	},
	{
		title:       "Review Code Changes",
		description: "Review pull request for the new feature implementation",
		dueInDays:   1,
		status:      model.StatusNotStarted,
		remarks:     "High priority",
	},
	{
		title:       "Deploy Application",
		description: "Deploy the latest version to production",
		dueInDays:   5,
		status:      model.StatusNotStarted,
		remarks:     "Needs testing first",
	},
	{
		title:       "Update Documentation",
		description: "Update API documentation with the latest changes",
		dueInDays:   -1,
		status:      model.StatusNotStarted,
		remarks:     "Overdue",
	},
}

// SeederConfig はSeederの設定。
type SeederConfig struct {
	Location *time.Location
	Now      func() time.Time
}

// Seeder はデモ利用者とデモタスクを投入する。
type Seeder struct {
	users  repository.UserRepository
	tasks  repository.TaskRepository
	hasher *auth.PasswordHasher
	loc    *time.Location
	now    func() time.Time
}

// NewSeeder はSeederを生成する。
func NewSeeder(users repository.UserRepository, tasks repository.TaskRepository, hasher *auth.PasswordHasher, cfg SeederConfig) *Seeder {
	s := &Seeder{
		users:  users,
		tasks:  tasks,
		hasher: hasher,
		loc:    cfg.Location,
		now:    cfg.Now,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// SeedDemo はデモ利用者が存在しない場合のみデモデータを投入する。
// 投入した場合はtrueを返す。
func (s *Seeder) SeedDemo(ctx context.Context) (bool, error) {
	existing, err := s.users.FindByUsername(ctx, DemoUsername)
	if err != nil {
		return false, fmt.Errorf("failed to check demo user: %w", err)
	}
	if existing != nil {
		slog.Info("demo data already present, skipping seed")
		return false, nil
	}

	if err := s.seed(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Seeder) seed(ctx context.Context) error {
	hash, err := s.hasher.Hash(DemoPassword)
	if err != nil {
		return fmt.Errorf("failed to hash demo password: %w", err)
	}

	user := &model.User{Username: DemoUsername, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create demo user: %w", err)
	}

	actor := model.ActorFromUser(user)
	now := s.now()
	today := model.StartOfDay(now, s.loc)

	for _, d := range demoTasks {
		t := &model.Task{
			Title:             d.title,
			Description:       d.description,
			DueDate:           today.AddDate(0, 0, d.dueInDays),
			Status:            d.status,
			Remarks:           d.remarks,
			CreatedOn:         now,
			LastUpdatedOn:     now,
			CreatedByID:       actor.UserID,
			CreatedByName:     actor.Name,
			LastUpdatedByID:   actor.UserID,
			LastUpdatedByName: actor.Name,
		}
		if err := s.tasks.Create(ctx, t); err != nil {
			return fmt.Errorf("failed to create demo task %q: %w", d.title, err)
		}
	}

	slog.Info("demo data seeded",
		slog.Int64("user_id", user.ID),
		slog.Int("tasks", len(demoTasks)),
	)
	return nil
}

// InitSchema は埋め込みマイグレーションを適用する。何度呼び出してもよい。
func InitSchema(databaseURL string) error {
	return database.RunMigrations(databaseURL)
}

// Reset は全テーブルを再作成し、デモデータを投入する。
// 既存の利用者とタスクはすべて失われる。
func Reset(ctx context.Context, databaseURL string, s *Seeder) error {
	if err := database.ResetSchema(databaseURL); err != nil {
		return err
	}
	if err := s.seed(ctx); err != nil {
		return err
	}
	slog.Info("database reset completed")
	return nil
}
