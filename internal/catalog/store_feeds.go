package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const feedColumns = "id, url, title, active, consecutive_failures, last_checked_at, processed_count, failed_count, created_at, updated_at"

// UpsertFeed inserts a feed by URL or returns the existing row.
func (s *Store) UpsertFeed(ctx context.Context, url, title string) (*Feed, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO feeds (url, title, active, created_at, updated_at)
         VALUES (?, ?, 1, ?, ?)
         ON CONFLICT(url) DO NOTHING`,
		url,
		nullableString(title),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert feed: %w", err)
	}
	return s.GetFeedByURL(ctx, url)
}

// GetFeedByURL fetches a feed by its unique URL.
func (s *Store) GetFeedByURL(ctx context.Context, url string) (*Feed, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE url = ?`, url)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	return feed, nil
}

// ListFeeds returns all feeds ordered by creation time. When activeOnly is
// set, deactivated feeds are excluded.
func (s *Store) ListFeeds(ctx context.Context, activeOnly bool) ([]*Feed, error) {
	query := `SELECT ` + feedColumns + ` FROM feeds`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// RecordFeedSuccess resets the consecutive failure counter and stamps the
// check time after a successful discovery pass.
func (s *Store) RecordFeedSuccess(ctx context.Context, feedID int64, newEpisodes int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE feeds
         SET consecutive_failures = 0, last_checked_at = ?,
             processed_count = processed_count + ?, updated_at = ?
         WHERE id = ?`,
		now,
		newEpisodes,
		now,
		feedID,
	)
	if err != nil {
		return fmt.Errorf("record feed success: %w", err)
	}
	return nil
}

// RecordFeedFailure increments the consecutive failure counter and
// deactivates the feed once the ceiling is crossed. It reports whether the
// feed was deactivated by this call.
func (s *Store) RecordFeedFailure(ctx context.Context, feedID int64, ceiling int) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE feeds
         SET consecutive_failures = consecutive_failures + 1,
             failed_count = failed_count + 1,
             last_checked_at = ?, updated_at = ?
         WHERE id = ?`,
		now,
		now,
		feedID,
	)
	if err != nil {
		return false, fmt.Errorf("record feed failure: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE feeds SET active = 0, updated_at = ?
         WHERE id = ? AND active = 1 AND consecutive_failures >= ?`,
		now,
		feedID,
		ceiling,
	)
	if err != nil {
		return false, fmt.Errorf("deactivate feed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReactivateFeed clears the failure counter and re-activates a feed that was
// deactivated after crossing the failure ceiling.
func (s *Store) ReactivateFeed(ctx context.Context, url string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE feeds SET active = 1, consecutive_failures = 0, updated_at = ? WHERE url = ?`,
		now,
		url,
	)
	if err != nil {
		return fmt.Errorf("reactivate feed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanFeed(scanner interface{ Scan(dest ...any) error }) (*Feed, error) {
	var (
		id             int64
		url            string
		title          sql.NullString
		active         int
		failures       int
		lastCheckedRaw sql.NullString
		processed      int64
		failed         int64
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)
	if err := scanner.Scan(&id, &url, &title, &active, &failures, &lastCheckedRaw, &processed, &failed, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}

	feed := &Feed{
		ID:                  id,
		URL:                 url,
		Title:               title.String,
		Active:              active != 0,
		ConsecutiveFailures: failures,
		LastCheckedAt:       timePtr(lastCheckedRaw),
		ProcessedCount:      processed,
		FailedCount:         failed,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		feed.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		feed.UpdatedAt = updated
	}
	return feed, nil
}
