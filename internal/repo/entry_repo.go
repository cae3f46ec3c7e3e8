package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Feedline/internal/domain"
)

const entryColumns = `id, public_id, format, url, etag, business_id, name, metadata, notifications,
	       status, created_at, started_at, completed_at`

// EntryRepo — репозиторий для работы с entries.
type EntryRepo struct {
	pool *pgxpool.Pool
}

// NewEntryRepo создаёт новый EntryRepo.
func NewEntryRepo(pool *pgxpool.Pool) *EntryRepo {
	return &EntryRepo{pool: pool}
}

// Create создаёт entry вместе с tasks в одной транзакции.
func (r *EntryRepo) Create(ctx context.Context, entry *domain.Entry, tasks []domain.Task) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	notificationsJSON, err := json.Marshal(entry.Notifications)
	if err != nil {
		return fmt.Errorf("marshal notifications: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO entries (id, public_id, format, url, etag, business_id, name,
			                     metadata, notifications, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			entry.ID,
			entry.PublicID,
			entry.Format,
			entry.URL,
			nullString(entry.Etag),
			entry.BusinessID,
			nullString(entry.Name),
			metadataJSON,
			notificationsJSON,
			entry.Status,
			entry.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: entry %s", ErrAlreadyExists, entry.PublicID)
			}
			return fmt.Errorf("insert entry: %w", err)
		}

		batch := &pgx.Batch{}
		for _, t := range tasks {
			batch.Queue(`
				INSERT INTO tasks (id, entry_id, name, category, priority, configuration,
				                   status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			`, t.ID, entry.ID, t.Name, t.Category, t.Priority, nullJSON(t.Configuration), t.Status, t.CreatedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert tasks: %w", err)
		}
		return nil
	})
}

// GetByID возвращает entry по ID.
func (r *EntryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = $1`
	return scanEntry(r.pool.QueryRow(ctx, query, id))
}

// GetByPublicID возвращает entry по публичному идентификатору.
func (r *EntryRepo) GetByPublicID(ctx context.Context, publicID string) (*domain.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE public_id = $1`
	return scanEntry(r.pool.QueryRow(ctx, query, publicID))
}

// ListByStatus возвращает entries в статусе, созданные раньше before.
func (r *EntryRepo) ListByStatus(ctx context.Context, status domain.Status, before time.Time, limit int) ([]domain.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, status, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries by status: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// CompareAndSetStatus переводит entry в статус to, если текущий статус — один из from.
//
// Возвращает false, если статус уже изменён другим писателем.
// Переход в PROCESSING выставляет started_at, в финальный статус — completed_at.
func (r *EntryRepo) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from []domain.Status, to domain.Status, at time.Time) (bool, error) {
	from, err := AllowedFrom(from, to)
	if err != nil {
		return false, err
	}

	fromStrings := make([]string, len(from))
	for i, s := range from {
		fromStrings[i] = string(s)
	}

	query := `
		UPDATE entries
		SET status = $3,
		    started_at = CASE WHEN $3 = 'PROCESSING' THEN COALESCE(started_at, $4) ELSE started_at END,
		    completed_at = CASE WHEN $5 THEN $4 ELSE completed_at END
		WHERE id = $1 AND status = ANY($2)
	`
	result, err := r.pool.Exec(ctx, query, id, fromStrings, string(to), at, to.IsTerminal())
	if err != nil {
		return false, fmt.Errorf("update entry status: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// --- Helpers ---

// AllowedFrom оставляет в from только статусы, из которых допустим переход в to.
// Если таких нет, возвращает ErrInvalidState.
func AllowedFrom(from []domain.Status, to domain.Status) ([]domain.Status, error) {
	allowed := make([]domain.Status, 0, len(from))
	for _, s := range from {
		if s.CanTransitionTo(to) {
			allowed = append(allowed, s)
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("%w: entry cannot move from %v to %s", ErrInvalidState, from, to)
	}
	return allowed, nil
}

func scanEntry(row pgx.Row) (*domain.Entry, error) {
	var entry domain.Entry
	var etag, name *string
	var metadataJSON, notificationsJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.PublicID,
		&entry.Format,
		&entry.URL,
		&etag,
		&entry.BusinessID,
		&name,
		&metadataJSON,
		&notificationsJSON,
		&entry.Status,
		&entry.CreatedAt,
		&entry.StartedAt,
		&entry.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}

	entry.Etag = derefString(etag)
	entry.Name = derefString(name)
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if notificationsJSON != nil {
		if err := json.Unmarshal(notificationsJSON, &entry.Notifications); err != nil {
			return nil, fmt.Errorf("unmarshal notifications: %w", err)
		}
	}

	return &entry, nil
}

// nullJSON возвращает nil для пустого JSON (для NULL в БД).
func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
