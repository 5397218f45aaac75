// Package discovery fetches subscribed RSS feeds and registers newly
// published episodes as pending work.
package discovery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"podsift/internal/catalog"
	"podsift/internal/config"
	"podsift/internal/logging"
	"podsift/internal/subscriptions"
)

// FeedParser is the RSS fetch/parse collaborator contract.
type FeedParser interface {
	ParseURL(ctx context.Context, url string) (*gofeed.Feed, error)
}

// Parser wraps gofeed for live fetching.
type Parser struct {
	parser *gofeed.Parser
}

// NewParser constructs a Parser with a descriptive user agent.
func NewParser() *Parser {
	p := gofeed.NewParser()
	p.UserAgent = "podsift/1.0"
	return &Parser{parser: p}
}

// ParseURL fetches and parses one feed.
func (p *Parser) ParseURL(ctx context.Context, url string) (*gofeed.Feed, error) {
	return p.parser.ParseURLWithContext(url, ctx)
}

// Summary reports what one discovery pass did.
type Summary struct {
	FeedsChecked     int
	FeedsFailed      int
	FeedsDeactivated int
	EpisodesSeen     int
	EpisodesNew      int
}

// Discoverer runs discovery passes over the subscribed feeds.
type Discoverer struct {
	store        *catalog.Store
	parser       FeedParser
	feeds        []subscriptions.FeedSpec
	ceiling      int
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// New constructs a Discoverer from application config.
func New(store *catalog.Store, parser FeedParser, feeds []subscriptions.FeedSpec, cfg *config.Config, logger *slog.Logger) *Discoverer {
	timeout := 30 * time.Second
	if cfg.Feeds.FetchTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Feeds.FetchTimeoutSeconds) * time.Second
	}
	return &Discoverer{
		store:        store,
		parser:       parser,
		feeds:        feeds,
		ceiling:      cfg.Feeds.MaxConsecutiveFailures,
		fetchTimeout: timeout,
		logger:       logging.NewComponentLogger(logger, "discovery"),
	}
}

// Run checks every subscribed feed once. A feed that fails to fetch or parse
// never stops the others; its consecutive failure counter is bumped and the
// feed is deactivated at the ceiling. Only store-level errors abort the pass.
func (d *Discoverer) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	for _, spec := range d.feeds {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		feed, err := d.store.UpsertFeed(ctx, spec.URL, spec.Title)
		if err != nil {
			return summary, err
		}
		if !feed.Active {
			d.logger.Debug("skipping deactivated feed",
				logging.Int64(logging.FieldFeedID, feed.ID),
				logging.String("url", feed.URL),
			)
			continue
		}
		summary.FeedsChecked++

		seen, created, fetchErr := d.processFeed(ctx, feed)
		summary.EpisodesSeen += seen
		summary.EpisodesNew += created
		if fetchErr == nil {
			if err := d.store.RecordFeedSuccess(ctx, feed.ID, created); err != nil {
				return summary, err
			}
			continue
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		summary.FeedsFailed++
		deactivated, err := d.store.RecordFeedFailure(ctx, feed.ID, d.ceiling)
		if err != nil {
			return summary, err
		}
		if deactivated {
			summary.FeedsDeactivated++
			d.logger.Warn("feed deactivated after repeated failures",
				logging.Int64(logging.FieldFeedID, feed.ID),
				logging.String("url", feed.URL),
				logging.Int("failure_ceiling", d.ceiling),
				logging.String(logging.FieldErrorHint, "re-activate by fixing the feed and running 'podsift feeds activate'"),
			)
		} else {
			d.logger.Warn("feed check failed",
				logging.Int64(logging.FieldFeedID, feed.ID),
				logging.String("url", feed.URL),
				logging.Error(fetchErr),
			)
		}
	}
	return summary, nil
}

func (d *Discoverer) processFeed(ctx context.Context, feed *catalog.Feed) (seen, created int, err error) {
	fetchCtx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	parsed, err := d.parser.ParseURL(fetchCtx, feed.URL)
	if err != nil {
		return 0, 0, err
	}

	for _, item := range parsed.Items {
		ep, skip := episodeFromItem(feed.ID, item)
		if skip != "" {
			if item != nil && strings.TrimSpace(item.Title) != "" {
				d.logger.Debug("skipping feed item",
					logging.Int64(logging.FieldFeedID, feed.ID),
					logging.String("title", item.Title),
					logging.String("reason", skip),
				)
			}
			continue
		}
		seen++
		_, isNew, err := d.store.InsertEpisodeIfNew(ctx, ep)
		if err != nil {
			return seen, created, err
		}
		if isNew {
			created++
			d.logger.Info("discovered episode",
				logging.Int64(logging.FieldFeedID, feed.ID),
				logging.String(logging.FieldGUID, ep.GUID),
				logging.String("title", ep.Title),
			)
		}
	}
	return seen, created, nil
}

// episodeFromItem maps one feed item to a pending episode, or returns a skip
// reason. Items without an audio enclosure are not episodes. Items without a
// parseable publish date are rejected too: digest selection windows on the
// publish date, so an undated episode would be transcribed and scored and
// then never qualify for any digest. A missing guid falls back to the
// enclosure URL, which is unique per episode in practice.
func episodeFromItem(feedID int64, item *gofeed.Item) (*catalog.Episode, string) {
	if item == nil {
		return nil, "nil item"
	}
	audioURL := audioEnclosure(item)
	if audioURL == "" {
		return nil, "no audio enclosure"
	}
	if item.PublishedParsed == nil {
		return nil, "no publish date"
	}

	guid := strings.TrimSpace(item.GUID)
	if guid == "" {
		guid = audioURL
	}

	published := item.PublishedParsed.UTC()
	return &catalog.Episode{
		GUID:        guid,
		FeedID:      feedID,
		Title:       strings.TrimSpace(item.Title),
		Description: StripHTML(item.Description),
		PublishedAt: &published,
		AudioURL:    audioURL,
	}, ""
}

func audioEnclosure(item *gofeed.Item) string {
	var fallback string
	for _, enc := range item.Enclosures {
		if enc == nil || strings.TrimSpace(enc.URL) == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") {
			return enc.URL
		}
		if fallback == "" {
			fallback = enc.URL
		}
	}
	return fallback
}
