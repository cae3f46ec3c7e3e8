package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Feedline/internal/domain"
)

const taskColumns = `id, entry_id, name, category, priority, configuration, status,
	       result_ref, error, created_at, updated_at, started_at, completed_at`

// TaskRepo — репозиторий для работы с tasks.
type TaskRepo struct {
	pool *pgxpool.Pool
}

// NewTaskRepo создаёт новый TaskRepo.
func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

// GetByID возвращает task по ID.
func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	return scanTask(r.pool.QueryRow(ctx, query, id))
}

// ListByEntry возвращает tasks entry по возрастанию priority.
func (r *TaskRepo) ListByEntry(ctx context.Context, entryID uuid.UUID) ([]domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE entry_id = $1
		ORDER BY priority ASC, created_at ASC
	`
	return r.list(ctx, query, entryID)
}

// ListStale возвращает QUEUED и RUNNING tasks, статус которых не менялся с before.
func (r *TaskRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status IN ('QUEUED', 'RUNNING') AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, before, limit)
}

// Transition переводит task в статус to, если текущий статус — один из from.
//
// Возвращает false, если task уже в другом статусе.
// Переход в RUNNING выставляет started_at.
func (r *TaskRepo) Transition(ctx context.Context, id uuid.UUID, from []domain.TaskStatus, to domain.TaskStatus, at time.Time) (bool, error) {
	query := `
		UPDATE tasks
		SET status = $3,
		    updated_at = $4,
		    started_at = CASE WHEN $3 = 'RUNNING' THEN $4 ELSE started_at END
		WHERE id = $1 AND status = ANY($2)
	`
	result, err := r.pool.Exec(ctx, query, id, taskStatuses(from), string(to), at)
	if err != nil {
		return false, fmt.Errorf("update task status: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Finish переводит незавершённую task в финальный статус.
//
// Возвращает false, если task уже в финальном статусе.
func (r *TaskRepo) Finish(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errMsg, resultRef string, at time.Time) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: %s is not terminal", ErrInvalidState, status)
	}

	query := `
		UPDATE tasks
		SET status = $2, error = $3, result_ref = COALESCE($4, result_ref),
		    updated_at = $5, completed_at = $5
		WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED')
	`
	result, err := r.pool.Exec(ctx, query, id, string(status), nullString(errMsg), nullString(resultRef), at)
	if err != nil {
		return false, fmt.Errorf("finish task: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// --- Helpers ---

func (r *TaskRepo) list(ctx context.Context, query string, args ...any) ([]domain.Task, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var configJSON []byte
	var resultRef, taskError *string

	err := row.Scan(
		&task.ID,
		&task.EntryID,
		&task.Name,
		&task.Category,
		&task.Priority,
		&configJSON,
		&task.Status,
		&resultRef,
		&taskError,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.StartedAt,
		&task.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.Configuration = configJSON
	task.ResultRef = derefString(resultRef)
	task.Error = derefString(taskError)
	return &task, nil
}

func taskStatuses(statuses []domain.TaskStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
