package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const digestColumns = "id, topic, digest_date, episode_ids, episode_count, average_score, script, audio_path, external_url, published_at, created_at"

// CreateDigest inserts a digest under the (topic, date) unique key. When a
// digest already exists for that key the stored row is returned and created
// is false, keeping repeated runs idempotent.
func (s *Store) CreateDigest(ctx context.Context, d *Digest) (*Digest, bool, error) {
	if d == nil {
		return nil, false, errors.New("digest is nil")
	}
	ids, err := json.Marshal(d.EpisodeIDs)
	if err != nil {
		return nil, false, fmt.Errorf("marshal episode ids: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO digests (topic, digest_date, episode_ids, episode_count, average_score, script, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(topic, digest_date) DO NOTHING`,
		d.Topic,
		d.Date,
		string(ids),
		d.EpisodeCount,
		d.AverageScore,
		nullableString(d.Script),
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert digest: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	stored, err := s.GetDigest(ctx, d.Topic, d.Date)
	if err != nil {
		return nil, false, err
	}
	return stored, affected > 0, nil
}

// GetDigest fetches the digest for a (topic, date) key.
func (s *Store) GetDigest(ctx context.Context, topic, date string) (*Digest, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+digestColumns+` FROM digests WHERE topic = ? AND digest_date = ?`,
		topic,
		date,
	)
	d, err := scanDigest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get digest: %w", err)
	}
	return d, nil
}

// ListDigests returns digests, optionally filtered by date, newest first.
func (s *Store) ListDigests(ctx context.Context, date string) ([]*Digest, error) {
	query := `SELECT ` + digestColumns + ` FROM digests`
	var args []any
	if date != "" {
		query += ` WHERE digest_date = ?`
		args = append(args, date)
	}
	query += ` ORDER BY digest_date DESC, topic`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list digests: %w", err)
	}
	defer rows.Close()

	var digests []*Digest
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

// SetDigestAudio records the synthesized audio artifact for a digest.
func (s *Store) SetDigestAudio(ctx context.Context, id int64, audioPath string) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE digests SET audio_path = ? WHERE id = ?`,
		nullableString(audioPath),
		id,
	)
	if err != nil {
		return fmt.Errorf("set digest audio: %w", err)
	}
	return nil
}

// SetDigestPublished records publish metadata returned by the publishing
// collaborator. Values are stored verbatim.
func (s *Store) SetDigestPublished(ctx context.Context, id int64, externalURL string, publishedAt time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE digests SET external_url = ?, published_at = ? WHERE id = ?`,
		nullableString(externalURL),
		publishedAt.UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set digest published: %w", err)
	}
	return nil
}

func scanDigest(scanner interface{ Scan(dest ...any) error }) (*Digest, error) {
	var (
		id           int64
		topic        string
		date         string
		idsRaw       string
		episodeCount int
		averageScore float64
		script       sql.NullString
		audioPath    sql.NullString
		externalURL  sql.NullString
		publishedRaw sql.NullString
		createdRaw   sql.NullString
	)
	if err := scanner.Scan(&id, &topic, &date, &idsRaw, &episodeCount, &averageScore, &script, &audioPath, &externalURL, &publishedRaw, &createdRaw); err != nil {
		return nil, err
	}

	d := &Digest{
		ID:           id,
		Topic:        topic,
		Date:         date,
		EpisodeCount: episodeCount,
		AverageScore: averageScore,
		Script:       script.String,
		AudioPath:    audioPath.String,
		ExternalURL:  externalURL.String,
		PublishedAt:  timePtr(publishedRaw),
	}
	if err := json.Unmarshal([]byte(idsRaw), &d.EpisodeIDs); err != nil {
		return nil, fmt.Errorf("decode episode ids for digest %d: %w", id, err)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		d.CreatedAt = created
	}
	return d, nil
}
