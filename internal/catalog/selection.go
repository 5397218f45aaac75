package catalog

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// SelectionQuery describes the digest assembler's qualifying-episode query
// for one topic.
type SelectionQuery struct {
	Topic     string
	Threshold float64
	Since     time.Time
	Limit     int
}

// QualifyingEpisodes returns episodes eligible for a topic's digest: status
// exactly scored, topic score at or above the threshold, published within the
// lookback window. Ordering is score descending, then published date
// descending, then guid ascending for determinism. Digested and failed
// episodes can never match.
func (s *Store) QualifyingEpisodes(ctx context.Context, q SelectionQuery) ([]*Episode, error) {
	if q.Topic == "" {
		return nil, fmt.Errorf("selection topic must not be empty")
	}

	// Bound JSON path; topic names are validated slugs but binding avoids
	// any quoting concerns.
	scorePath := `$."` + q.Topic + `"`

	builder := sq.Select(episodeColumnList()...).
		From("episodes").
		Where(sq.Eq{"status": string(StatusScored)}).
		Where(sq.Expr("json_extract(scores, ?) >= ?", scorePath, q.Threshold)).
		Where(sq.GtOrEq{"published_at": q.Since.UTC().Format(time.RFC3339Nano)}).
		OrderByClause("json_extract(scores, ?) DESC", scorePath).
		OrderBy("published_at DESC", "guid ASC")
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build selection query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query qualifying episodes: %w", err)
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

func episodeColumnList() []string {
	return []string{
		"id", "guid", "feed_id", "title", "description", "published_at", "audio_url", "audio_path",
		"transcript", "word_count", "chunk_count", "scores", "scored_at", "status",
		"failure_count", "failure_reason", "last_failure_at", "created_at", "updated_at",
	}
}
