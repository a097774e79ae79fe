package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Маркеры записей журнала
const (
	MarkFailure = "✖"
	MarkCreated = "✓"
	MarkMoved   = "⇢"
	MarkDeleted = "⌫"
	MarkExport  = "⇣"
)

// ActivityEntry — неизменяемая запись журнала активности (id, ts, message)
type ActivityEntry struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
	Message   string `json:"message"`
}

// Failed — запись о неудачной или отклоненной попытке
func (e ActivityEntry) Failed() bool {
	return strings.HasPrefix(e.Message, MarkFailure)
}

func (e ActivityEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

func NewActivityID() string {
	return "a_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ActivityCursor — позиция keyset-пагинации архива: строго раньше пары (Before, BeforeID).
// Нулевой Before означает первую страницу.
type ActivityCursor struct {
	Before   int64  `json:"before"`
	BeforeID string `json:"before_id,omitempty"`
}

// NextActivityCursor строит курсор следующей страницы по последней записи текущей
func NextActivityCursor(page []ActivityEntry) ActivityCursor {
	if len(page) == 0 {
		return ActivityCursor{}
	}
	last := page[len(page)-1]
	return ActivityCursor{Before: last.Timestamp, BeforeID: last.ID}
}
