package catalog

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an episode.
type Status string

const (
	StatusPending      Status = "pending"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusScored       Status = "scored"
	StatusDigested     Status = "digested"
	StatusFailed       Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusTranscribing,
	StatusTranscribed,
	StatusScored,
	StatusDigested,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Feed represents a subscribed audio source.
type Feed struct {
	ID                  int64
	URL                 string
	Title               string
	Active              bool
	ConsecutiveFailures int
	LastCheckedAt       *time.Time
	ProcessedCount      int64
	FailedCount         int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ScoreVector maps topic name to a relevance score in [0,1].
type ScoreVector map[string]float64

// Episode represents one unit of audio content tracked through the pipeline.
type Episode struct {
	ID            int64
	GUID          string
	FeedID        int64
	Title         string
	Description   string
	PublishedAt   *time.Time
	AudioURL      string
	AudioPath     string
	Transcript    string
	WordCount     int
	ChunkCount    int
	Scores        ScoreVector
	ScoredAt      *time.Time
	Status        Status
	FailureCount  int
	FailureReason string
	LastFailureAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Topic is a named scoring target. Topics are configuration data loaded from
// the subscriptions file, not derived from episodes.
type Topic struct {
	Name      string
	Title     string
	Threshold float64
	Active    bool
}

// Digest is one topic's compiled output for one calendar date.
type Digest struct {
	ID           int64
	Topic        string
	Date         string // YYYY-MM-DD
	EpisodeIDs   []int64
	EpisodeCount int
	AverageScore float64
	Script       string
	AudioPath    string
	ExternalURL  string
	PublishedAt  *time.Time
	CreatedAt    time.Time
}

// DateFormat is the calendar-date layout used for digest keys.
const DateFormat = "2006-01-02"
