package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/latch-escrow/internal/domain"
)

const activityColumns = 4

// ActivityArchive — долговременная копия журнала активности (реализует audit.Storage)
type ActivityArchive struct {
	db DBTX
}

func NewActivityArchive(db DBTX) *ActivityArchive {
	return &ActivityArchive{db: db}
}

func (r *ActivityArchive) WriteBatch(ctx context.Context, entries []domain.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	query, vals := buildActivityInsert(entries)
	if _, err := r.db.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write activity batch: %w", err)
	}
	return nil
}

// buildActivityInsert динамически строит запрос для пакетной вставки.
// ON CONFLICT делает повтор пачки после ретрая безопасным.
func buildActivityInsert(entries []domain.ActivityEntry) (string, []any) {
	var sb strings.Builder
	vals := make([]any, 0, len(entries)*activityColumns)

	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		p := i * activityColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", p+1, p+2, p+3, p+4)
		vals = append(vals, e.ID, e.Timestamp, e.Message, e.Failed())
	}

	query := "INSERT INTO activity_log (id, ts, message, failed) VALUES " + sb.String() +
		" ON CONFLICT (id) DO NOTHING"
	return query, vals
}

// FetchHistory возвращает записи новее-к-старым. Курсор сравнивается парой (ts, id),
// иначе записи с одинаковой миллисекундой теряются на границе страниц.
func (r *ActivityArchive) FetchHistory(ctx context.Context, cur domain.ActivityCursor, limit int) ([]domain.ActivityEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := `SELECT id, ts, message FROM activity_log
WHERE ($1::BIGINT = 0 OR (ts, id) < ($1::BIGINT, $2::TEXT))
ORDER BY ts DESC, id DESC LIMIT $3`

	rows, err := r.db.Query(ctx, query, cur.Before, cur.BeforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch activity: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ActivityEntry, 0, limit)
	for rows.Next() {
		var e domain.ActivityEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Message); err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
