// Package subscriptions loads the YAML file declaring subscribed feeds and
// scoring topics.
package subscriptions

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"podsift/internal/catalog"
)

// FeedSpec declares one subscribed feed.
type FeedSpec struct {
	URL   string `yaml:"url"`
	Title string `yaml:"title"`
}

// TopicSpec declares one scoring target. Threshold is optional; the
// configured default applies when omitted.
type TopicSpec struct {
	Name      string   `yaml:"name"`
	Title     string   `yaml:"title"`
	Threshold *float64 `yaml:"threshold"`
	Active    *bool    `yaml:"active"`
}

// File is the parsed subscriptions document.
type File struct {
	Feeds  []FeedSpec  `yaml:"feeds"`
	Topics []TopicSpec `yaml:"topics"`
}

// Topic names key the score vector JSON and appear in digest rows, so they
// stay restricted to simple slugs.
var topicNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ErrNoSubscriptions indicates the subscriptions file does not exist yet.
var ErrNoSubscriptions = errors.New("subscriptions file not found")

// Load reads and validates the subscriptions file, applying defaultThreshold
// to topics that omit their own.
func Load(path string, defaultThreshold float64) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoSubscriptions, path)
		}
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse subscriptions: %w", err)
	}

	if err := file.validate(); err != nil {
		return nil, err
	}
	file.applyDefaults(defaultThreshold)
	return &file, nil
}

func (f *File) validate() error {
	seenURLs := make(map[string]struct{}, len(f.Feeds))
	for i := range f.Feeds {
		f.Feeds[i].URL = strings.TrimSpace(f.Feeds[i].URL)
		raw := f.Feeds[i].URL
		if raw == "" {
			return fmt.Errorf("feeds[%d]: url must not be empty", i)
		}
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("feeds[%d]: invalid url %q", i, raw)
		}
		if _, dup := seenURLs[raw]; dup {
			return fmt.Errorf("feeds[%d]: duplicate url %q", i, raw)
		}
		seenURLs[raw] = struct{}{}
	}

	seenNames := make(map[string]struct{}, len(f.Topics))
	for i := range f.Topics {
		f.Topics[i].Name = strings.TrimSpace(f.Topics[i].Name)
		name := f.Topics[i].Name
		if !topicNamePattern.MatchString(name) {
			return fmt.Errorf("topics[%d]: name %q must be a lowercase slug", i, name)
		}
		if _, dup := seenNames[name]; dup {
			return fmt.Errorf("topics[%d]: duplicate name %q", i, name)
		}
		seenNames[name] = struct{}{}
		if t := f.Topics[i].Threshold; t != nil && (*t < 0 || *t > 1) {
			return fmt.Errorf("topics[%d]: threshold %v must be between 0 and 1", i, *t)
		}
	}
	return nil
}

func (f *File) applyDefaults(defaultThreshold float64) {
	for i := range f.Topics {
		if f.Topics[i].Threshold == nil {
			t := defaultThreshold
			f.Topics[i].Threshold = &t
		}
		if f.Topics[i].Active == nil {
			active := true
			f.Topics[i].Active = &active
		}
		if f.Topics[i].Title == "" {
			f.Topics[i].Title = f.Topics[i].Name
		}
	}
}

// ActiveTopics returns the declared topics as catalog values, excluding
// deactivated ones.
func (f *File) ActiveTopics() []catalog.Topic {
	topics := make([]catalog.Topic, 0, len(f.Topics))
	for _, spec := range f.Topics {
		if spec.Active != nil && !*spec.Active {
			continue
		}
		topics = append(topics, catalog.Topic{
			Name:      spec.Name,
			Title:     spec.Title,
			Threshold: *spec.Threshold,
			Active:    true,
		})
	}
	return topics
}

// Sample is a starter subscriptions document written by `podsift config init`.
const Sample = `# podsift subscriptions
#
# feeds: RSS/Atom podcast feeds to discover episodes from.
# topics: scoring targets; threshold defaults to scoring.default_threshold.

feeds:
  - url: https://example.com/podcast/feed.xml
    title: Example Podcast

topics:
  - name: ai
    title: Artificial Intelligence
  - name: space
    title: Spaceflight
    threshold: 0.7
`
