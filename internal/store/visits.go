package store

import (
	"context"
	"fmt"
	"time"
)

// Visit is one tracked page view. The client IP is stored only as a salted
// hash.
type Visit struct {
	ID        int64     `json:"id"`
	HashedIP  string    `json:"hashed_ip"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	VisitedAt time.Time `json:"visited_at"`
}

// Stats summarises the dashboard counters.
type Stats struct {
	Projects         int64   `json:"projects"`
	Messages         int64   `json:"messages"`
	UnreadMessages   int64   `json:"unread_messages"`
	TotalVisitors    int64   `json:"total_visitors"`
	UniqueVisitors   int64   `json:"unique_visitors"`
	VisitorsToday    int64   `json:"visitors_today"`
	VisitorsThisWeek int64   `json:"visitors_this_week"`
	RecentVisitors   []Visit `json:"recent_visitors"`
}

func (s *Store) RecordVisit(ctx context.Context, hashedIP, userAgent, path string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO visitors (hashed_ip, user_agent, path, visited_at)
		VALUES (?, ?, ?, ?)`,
		hashedIP, userAgent, path, s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

// PruneVisits deletes visits older than retention and returns how many went.
func (s *Store) PruneVisits(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM visitors WHERE visited_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune visits: %w", err)
	}
	return res.RowsAffected()
}

// RecentVisits returns the latest visits, newest first.
func (s *Store) RecentVisits(ctx context.Context, limit int) ([]Visit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hashed_ip, user_agent, path, visited_at
		FROM visitors
		ORDER BY visited_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	var visits []Visit
	for rows.Next() {
		var (
			v  Visit
			at int64
		)
		if err := rows.Scan(&v.ID, &v.HashedIP, &v.UserAgent, &v.Path, &at); err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		v.VisitedAt = time.Unix(at, 0).UTC()
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// Stats gathers the dashboard counters.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Unix()
	weekAgo := now.Add(-7 * 24 * time.Hour).Unix()

	stats := &Stats{}
	counters := []struct {
		dest  *int64
		query string
		args  []any
	}{
		{&stats.Projects, `SELECT COUNT(*) FROM projects`, nil},
		{&stats.Messages, `SELECT COUNT(*) FROM messages`, nil},
		{&stats.UnreadMessages, `SELECT COUNT(*) FROM messages WHERE is_read = 0`, nil},
		{&stats.TotalVisitors, `SELECT COUNT(*) FROM visitors`, nil},
		{&stats.UniqueVisitors, `SELECT COUNT(DISTINCT hashed_ip) FROM visitors`, nil},
		{&stats.VisitorsToday, `SELECT COUNT(*) FROM visitors WHERE visited_at >= ?`, []any{startOfDay}},
		{&stats.VisitorsThisWeek, `SELECT COUNT(*) FROM visitors WHERE visited_at >= ?`, []any{weekAgo}},
	}
	for _, c := range counters {
		if err := s.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to load stats: %w", err)
		}
	}

	recent, err := s.RecentVisits(ctx, 50)
	if err != nil {
		return nil, err
	}
	stats.RecentVisitors = recent
	return stats, nil
}
