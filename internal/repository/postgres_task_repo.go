package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/taskmaster/internal/model"
)

// taskColumns はタスク取得時のカラム順。scanTaskと対応する。
const taskColumns = `id, title, description, due_date, status, remarks,
	created_on, last_updated_on,
	created_by_id, created_by_name, last_updated_by_id, last_updated_by_name`

// sortColumns は並び替えキーとカラムの対応表。
// ORDER BY句にはこの表の値のみを埋め込む。
var sortColumns = map[model.SortField]string{
	model.SortByDueDate:     "due_date",
	model.SortByCreatedDate: "created_on",
	model.SortByTitle:       "title",
	model.SortByStatus:      "status",
}

// likeEscaper はLIKEパターンのメタ文字をエスケープする。
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (*model.Task, error) {
	task := &model.Task{}
	var description, remarks, createdByName, lastUpdatedByName sql.NullString
	var createdByID, lastUpdatedByID sql.NullInt64
	var status string

	if err := s.Scan(
		&task.ID, &task.Title, &description, &task.DueDate, &status, &remarks,
		&task.CreatedOn, &task.LastUpdatedOn,
		&createdByID, &createdByName, &lastUpdatedByID, &lastUpdatedByName,
	); err != nil {
		return nil, err
	}

	task.Description = nullStringValue(description)
	task.Remarks = nullStringValue(remarks)
	task.Status = model.TaskStatus(status)
	task.CreatedByID = nullInt64Ptr(createdByID)
	task.CreatedByName = nullStringValue(createdByName)
	task.LastUpdatedByID = nullInt64Ptr(lastUpdatedByID)
	task.LastUpdatedByName = nullStringValue(lastUpdatedByName)
	return task, nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`,
		id,
	)
	return scanOptionalTask(row, "find task by ID")
}

func scanOptionalTask(row *sql.Row, op string) (*model.Task, error) {
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return task, nil
}

// buildListQuery は一覧取得用のSQLと引数を組み立てる。
// filterとstatusはAND、searchは3カラムのORとして合成する。
func buildListQuery(q model.ListQuery, w model.DueWindows) (string, []any) {
	q = q.Normalize()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1 = 1`
	var args []any
	argIndex := 1

	switch q.Filter {
	case model.FilterToday:
		query += fmt.Sprintf(" AND due_date >= $%d AND due_date < $%d", argIndex, argIndex+1)
		args = append(args, w.TodayStart, w.TomorrowStart)
		argIndex += 2
	case model.FilterUpcoming:
		query += fmt.Sprintf(" AND due_date >= $%d AND due_date <= $%d AND status <> 'completed'", argIndex, argIndex+1)
		args = append(args, w.TodayStart, w.UpcomingEnd)
		argIndex += 2
	case model.FilterOverdue:
		query += fmt.Sprintf(" AND due_date < $%d AND status <> 'completed'", argIndex)
		args = append(args, w.TodayStart)
		argIndex++
	case model.FilterAll:
		// 追加条件なし
	}

	if q.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, q.Status)
		argIndex++
	}

	if q.Search != "" {
		query += fmt.Sprintf(
			` AND (title ILIKE $%[1]d ESCAPE '\' OR description ILIKE $%[1]d ESCAPE '\' OR remarks ILIKE $%[1]d ESCAPE '\')`,
			argIndex,
		)
		args = append(args, "%"+likeEscaper.Replace(q.Search)+"%")
	}

	direction := "ASC"
	if q.SortOrder == model.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id ASC", sortColumns[q.SortBy], direction)

	return query, args
}

// List は検索条件に一致するタスクを返す。
func (r *PostgresTaskRepo) List(ctx context.Context, q model.ListQuery, w model.DueWindows) ([]*model.Task, error) {
	query, args := buildListQuery(q, w)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}

	return tasks, nil
}

// Counts はサイドバー用の件数を集計する。
func (r *PostgresTaskRepo) Counts(ctx context.Context, w model.DueWindows) (*model.TaskCounts, error) {
	c := &model.TaskCounts{}
	err := r.db.QueryRowContext(ctx,
		`SELECT
		    COUNT(*),
		    COUNT(*) FILTER (WHERE due_date >= $1 AND due_date < $2),
		    COUNT(*) FILTER (WHERE due_date >= $1 AND due_date <= $3 AND status <> 'completed'),
		    COUNT(*) FILTER (WHERE due_date < $1 AND status <> 'completed'),
		    COUNT(*) FILTER (WHERE status = 'not-started'),
		    COUNT(*) FILTER (WHERE status = 'in-progress'),
		    COUNT(*) FILTER (WHERE status = 'completed')
		 FROM tasks`,
		w.TodayStart, w.TomorrowStart, w.UpcomingEnd,
	).Scan(&c.Total, &c.Today, &c.Upcoming, &c.Overdue, &c.NotStarted, &c.InProgress, &c.Completed)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	return c, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tasks (title, description, due_date, status, remarks,
		                    created_on, last_updated_on,
		                    created_by_id, created_by_name, last_updated_by_id, last_updated_by_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		task.Title, nullString(task.Description), task.DueDate, string(task.Status), nullString(task.Remarks),
		task.CreatedOn, task.LastUpdatedOn,
		nullInt64(task.CreatedByID), nullString(task.CreatedByName),
		nullInt64(task.LastUpdatedByID), nullString(task.LastUpdatedByName),
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Update は編集可能な全フィールドを上書きする。
// last_updated_onはcreated_onを下回らないよう補正する。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE tasks
		 SET title = $2, description = $3, due_date = $4, status = $5, remarks = $6,
		     last_updated_on = GREATEST($7, created_on),
		     last_updated_by_id = $8, last_updated_by_name = $9
		 WHERE id = $1
		 RETURNING `+taskColumns,
		task.ID, task.Title, nullString(task.Description), task.DueDate, string(task.Status),
		nullString(task.Remarks), task.LastUpdatedOn,
		nullInt64(task.LastUpdatedByID), nullString(task.LastUpdatedByName),
	)
	return scanOptionalTask(row, "update task")
}

// UpdateStatus はステータスのみを更新する。
func (r *PostgresTaskRepo) UpdateStatus(ctx context.Context, id int64, status model.TaskStatus, actor model.Actor, at time.Time) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE tasks
		 SET status = $2,
		     last_updated_on = GREATEST($3, created_on),
		     last_updated_by_id = $4, last_updated_by_name = $5
		 WHERE id = $1
		 RETURNING `+taskColumns,
		id, string(status), at, nullInt64(actor.UserID), nullString(actor.Name),
	)
	return scanOptionalTask(row, "update task status")
}

// DeleteByID は指定IDのタスクを削除する。
func (r *PostgresTaskRepo) DeleteByID(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
