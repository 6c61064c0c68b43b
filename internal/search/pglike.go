package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgLike implements Searcher with a PostgreSQL ILIKE scan over entry reasons.
// Fallback only; the entry set per user is small enough that a sequential
// match is acceptable.
type PgLike struct {
	db *sql.DB
}

// NewPgLike creates a PostgreSQL fallback searcher.
func NewPgLike(db *sql.DB) *PgLike {
	return &PgLike{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgLike) Healthy() bool {
	return true
}

// Search matches q.Text case-insensitively against the user's entry reasons.
func (p *PgLike) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + escapeLike(q.Text) + "%"
	ctx := context.Background()

	var total int
	err := p.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM mood_entries
		WHERE user_id = $1 AND reason ILIKE $2`,
		q.UserID, pattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT day, reason, mood_value, mood_label, mood_color
		FROM mood_entries
		WHERE user_id = $1 AND reason ILIKE $2
		ORDER BY day DESC
		LIMIT $3 OFFSET $4`,
		q.UserID, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Day, &r.Snippet, &r.MoodValue, &r.MoodLabel, &r.MoodColor); err != nil {
			return nil, 0, fmt.Errorf("search scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadUserRecords returns a user's entries as index records for reindexing.
func (p *PgLike) LoadUserRecords(ctx context.Context, userID string) ([]EntryRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT user_id, day, reason, mood_value, mood_label, mood_color
		FROM mood_entries
		WHERE user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	defer rows.Close()

	records := make([]EntryRecord, 0)
	for rows.Next() {
		var rec EntryRecord
		if err := rows.Scan(&rec.UserID, &rec.Day, &rec.Reason, &rec.MoodValue, &rec.MoodLabel, &rec.MoodColor); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		rec.ID = RecordID(rec.UserID, rec.Day)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
