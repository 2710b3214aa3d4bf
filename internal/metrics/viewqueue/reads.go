package viewqueue

import (
	"context"
	"time"

	"github.com/5w1tchy/folio-api/internal/store/dbx"
)

// Count is the number of recorded reads of one book.
type Count struct {
	BookID string
	Reads  int64
}

// SQLReads queries the events written by SQLSink.
type SQLReads struct {
	DB dbx.Queryer
}

// MostRead returns up to limit books ordered by reads since the given time.
func (s SQLReads) MostRead(ctx context.Context, since time.Time, limit int) ([]Count, error) {
	if limit <= 0 {
		return []Count{}, nil
	}

	const q = `
SELECT book_id, COUNT(*) AS reads
FROM book_read_events
WHERE read_at >= $1
GROUP BY book_id
ORDER BY reads DESC, book_id
LIMIT $2`

	rows, err := s.DB.QueryContext(ctx, q, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Count, 0, limit)
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.BookID, &c.Reads); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
