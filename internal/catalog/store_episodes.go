package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const episodeColumns = "id, guid, feed_id, title, description, published_at, audio_url, audio_path, transcript, word_count, chunk_count, scores, scored_at, status, failure_count, failure_reason, last_failure_at, created_at, updated_at"

// InsertEpisodeIfNew inserts a discovered episode keyed by guid. When the
// guid already exists the stored row is returned untouched, keeping
// discovery idempotent. The boolean reports whether a row was created.
func (s *Store) InsertEpisodeIfNew(ctx context.Context, ep *Episode) (*Episode, bool, error) {
	if ep == nil {
		return nil, false, errors.New("episode is nil")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO episodes (guid, feed_id, title, description, published_at, audio_url, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(guid) DO NOTHING`,
		ep.GUID,
		ep.FeedID,
		nullableString(ep.Title),
		nullableString(ep.Description),
		nullableTime(ep.PublishedAt),
		ep.AudioURL,
		StatusPending,
		now,
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert episode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	stored, err := s.GetEpisodeByGUID(ctx, ep.GUID)
	if err != nil {
		return nil, false, err
	}
	return stored, affected > 0, nil
}

// GetEpisodeByID fetches an episode by identifier.
func (s *Store) GetEpisodeByID(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return ep, nil
}

// GetEpisodeByGUID fetches an episode by its globally unique identifier.
func (s *Store) GetEpisodeByGUID(ctx context.Context, guid string) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE guid = ?`, guid)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get episode by guid: %w", err)
	}
	return ep, nil
}

// ListEpisodes returns episodes filtered by status set (or all episodes when
// no status is provided), oldest first, optionally capped.
func (s *Store) ListEpisodes(ctx context.Context, limit int, statuses ...Status) ([]*Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

// SetAudioPath records the local audio file location for an episode.
func (s *Store) SetAudioPath(ctx context.Context, id int64, path string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE episodes SET audio_path = ?, updated_at = ? WHERE id = ?`,
		nullableString(path),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set audio path: %w", err)
	}
	return nil
}

// SetPartialTranscript persists the in-progress transcript for an episode
// still in transcribing. The partial is observability only; a restart
// reprocesses the episode in full.
func (s *Store) SetPartialTranscript(ctx context.Context, id int64, text string, chunksDone int) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE episodes SET transcript = ?, chunk_count = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		nullableString(text),
		chunksDone,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusTranscribing,
	)
	if err != nil {
		return fmt.Errorf("set partial transcript: %w", err)
	}
	return nil
}

// SetTranscript stores the final transcript, word count, and chunk count.
func (s *Store) SetTranscript(ctx context.Context, id int64, text string, wordCount, chunkCount int) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE episodes SET transcript = ?, word_count = ?, chunk_count = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(text),
		wordCount,
		chunkCount,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set transcript: %w", err)
	}
	return nil
}

// ClearTranscript discards any persisted transcript text so a failed episode
// never exposes a dangling partial to scoring.
func (s *Store) ClearTranscript(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE episodes SET transcript = NULL, word_count = 0, chunk_count = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	return nil
}

// SetScores stores the full score vector with a single scoring timestamp.
func (s *Store) SetScores(ctx context.Context, id int64, scores ScoreVector) error {
	payload, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE episodes SET scores = ?, scored_at = ?, updated_at = ? WHERE id = ?`,
		string(payload),
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("set scores: %w", err)
	}
	return nil
}

// Advance performs one legal status transition as a compare-and-swap on the
// episode's current status. An illegal move returns ErrIllegalTransition (a
// caller bug); a CAS miss returns ErrConcurrencyConflict. The digested state
// is reachable only through MarkDigested.
func (s *Store) Advance(ctx context.Context, ep *Episode, to Status) error {
	if ep == nil {
		return errors.New("episode is nil")
	}
	if to == StatusDigested {
		return fmt.Errorf("%w: %s -> %s must go through MarkDigested", ErrIllegalTransition, ep.Status, to)
	}
	if !CanTransition(ep.Status, to) {
		return illegalTransition(ep.Status, to)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE episodes SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		now.Format(time.RFC3339Nano),
		ep.ID,
		ep.Status,
	)
	if err != nil {
		return fmt.Errorf("advance episode: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: episode %d no longer in %s", ErrConcurrencyConflict, ep.ID, ep.Status)
	}

	ep.Status = to
	ep.UpdatedAt = now
	return nil
}

// RecordFailure increments the failure counter and stores the reason. The
// episode moves to failed only when fail is set; scoring exhaustion keeps the
// episode in transcribed so a later run can retry it.
func (s *Store) RecordFailure(ctx context.Context, ep *Episode, reason string, fail bool) error {
	if ep == nil {
		return errors.New("episode is nil")
	}
	if fail && !CanTransition(ep.Status, StatusFailed) {
		return illegalTransition(ep.Status, StatusFailed)
	}

	now := time.Now().UTC()
	status := ep.Status
	if fail {
		status = StatusFailed
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE episodes
         SET status = ?, failure_count = failure_count + 1, failure_reason = ?,
             last_failure_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		status,
		reason,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		ep.ID,
		ep.Status,
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: episode %d no longer in %s", ErrConcurrencyConflict, ep.ID, ep.Status)
	}

	ep.Status = status
	ep.FailureCount++
	ep.FailureReason = reason
	ep.LastFailureAt = &now
	ep.UpdatedAt = now
	return nil
}

// MarkDigested moves every listed episode from scored to digested in one
// transaction. Any episode not currently in scored rolls the whole batch
// back, so a finalized digest can never reference an episode left behind in
// scored.
func (s *Store) MarkDigested(ctx context.Context, episodeIDs []int64) error {
	if len(episodeIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark digested tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, id := range episodeIDs {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE episodes SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusDigested,
			now,
			id,
			StatusScored,
		)
		if err != nil {
			return fmt.Errorf("mark episode %d digested: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: episode %d not in %s", ErrConcurrencyConflict, id, StatusScored)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark digested: %w", err)
	}
	return nil
}

// RestartTranscription resets an episode left in transcribing by an
// interrupted run back to pending and discards its partial transcript.
// Recovery path only; normal processing never moves backwards.
func (s *Store) RestartTranscription(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE episodes
         SET status = ?, transcript = NULL, word_count = 0, chunk_count = 0, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusTranscribing,
	)
	if err != nil {
		return fmt.Errorf("restart transcription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: episode %d not in %s", ErrConcurrencyConflict, id, StatusTranscribing)
	}
	return nil
}

// RetryFailed moves failed episodes back to pending. This is the only path
// out of failed and is never taken automatically.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE episodes
             SET status = ?, failure_reason = NULL, updated_at = ?
             WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed episodes: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE episodes
        SET status = ?, failure_reason = NULL, updated_at = ?
        WHERE status = ? AND id IN (` + placeholders + `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected episodes: %w", err)
	}
	return res.RowsAffected()
}

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		id            int64
		guid          string
		feedID        int64
		title         sql.NullString
		description   sql.NullString
		publishedRaw  sql.NullString
		audioURL      string
		audioPath     sql.NullString
		transcript    sql.NullString
		wordCount     int
		chunkCount    int
		scoresRaw     sql.NullString
		scoredRaw     sql.NullString
		statusStr     string
		failureCount  int
		failureReason sql.NullString
		lastFailRaw   sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&guid,
		&feedID,
		&title,
		&description,
		&publishedRaw,
		&audioURL,
		&audioPath,
		&transcript,
		&wordCount,
		&chunkCount,
		&scoresRaw,
		&scoredRaw,
		&statusStr,
		&failureCount,
		&failureReason,
		&lastFailRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	ep := &Episode{
		ID:            id,
		GUID:          guid,
		FeedID:        feedID,
		Title:         title.String,
		Description:   description.String,
		PublishedAt:   timePtr(publishedRaw),
		AudioURL:      audioURL,
		AudioPath:     audioPath.String,
		Transcript:    transcript.String,
		WordCount:     wordCount,
		ChunkCount:    chunkCount,
		ScoredAt:      timePtr(scoredRaw),
		Status:        Status(statusStr),
		FailureCount:  failureCount,
		FailureReason: failureReason.String,
		LastFailureAt: timePtr(lastFailRaw),
	}
	if scoresRaw.Valid && scoresRaw.String != "" {
		var scores ScoreVector
		if err := json.Unmarshal([]byte(scoresRaw.String), &scores); err != nil {
			return nil, fmt.Errorf("decode scores for episode %d: %w", id, err)
		}
		ep.Scores = scores
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		ep.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		ep.UpdatedAt = updated
	}
	return ep, nil
}
