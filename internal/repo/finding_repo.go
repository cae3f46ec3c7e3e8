package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Feedline/internal/domain"
)

const findingColumns = `id, entry_id, task_id, ruleset, source, code, message, severity, raw, created_at`

// FindingRepo — репозиторий findings.
//
// Findings только добавляются; порядок чтения совпадает с порядком вставки.
type FindingRepo struct {
	pool *pgxpool.Pool
}

// NewFindingRepo создаёт новый FindingRepo.
func NewFindingRepo(pool *pgxpool.Pool) *FindingRepo {
	return &FindingRepo{pool: pool}
}

// Append добавляет findings одной пачкой.
func (r *FindingRepo) Append(ctx context.Context, findings []domain.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, f := range findings {
		batch.Queue(`
			INSERT INTO findings (id, entry_id, task_id, ruleset, source, code, message, severity, raw, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO NOTHING
		`,
			f.ID,
			f.EntryID,
			f.TaskID,
			f.Ruleset,
			nullString(f.Source),
			f.Code,
			nullString(f.Message),
			string(f.Severity),
			nullJSON(f.Raw),
			f.CreatedAt,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert findings: %w", err)
	}
	return nil
}

// ListByTask возвращает findings task в порядке вставки.
func (r *FindingRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]domain.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM findings WHERE task_id = $1 ORDER BY seq ASC`
	return r.list(ctx, query, taskID)
}

// ListByEntry возвращает findings entry в порядке вставки.
func (r *FindingRepo) ListByEntry(ctx context.Context, entryID uuid.UUID) ([]domain.Finding, error) {
	query := `SELECT ` + findingColumns + ` FROM findings WHERE entry_id = $1 ORDER BY seq ASC`
	return r.list(ctx, query, entryID)
}

func (r *FindingRepo) list(ctx context.Context, query string, args ...any) ([]domain.Finding, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var findings []domain.Finding
	for rows.Next() {
		var f domain.Finding
		var source, message *string
		var raw []byte

		if err := rows.Scan(
			&f.ID,
			&f.EntryID,
			&f.TaskID,
			&f.Ruleset,
			&source,
			&f.Code,
			&message,
			&f.Severity,
			&raw,
			&f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}

		f.Source = derefString(source)
		f.Message = derefString(message)
		f.Raw = raw
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
