package digest

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"podsift/internal/catalog"
)

// Renderer turns a topic's qualifying episodes into a narration script.
type Renderer interface {
	Render(topic catalog.Topic, date string, episodes []*catalog.Episode) string
}

// maxNotesChars caps how much of an episode's show notes make it into the
// script. Notes past this point are usually credits and sponsor copy.
const maxNotesChars = 600

// ScriptRenderer produces a plain narration script: an intro line, one
// segment per episode in selection order, and a sign-off.
type ScriptRenderer struct{}

var titleCaser = cases.Title(language.English)

// Render builds the script. Episodes arrive already ordered by score.
func (ScriptRenderer) Render(topic catalog.Topic, date string, episodes []*catalog.Episode) string {
	topicTitle := strings.TrimSpace(topic.Title)
	if topicTitle == "" {
		topicTitle = titleCaser.String(strings.ReplaceAll(topic.Name, "_", " "))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "This is your %s digest for %s.\n", topicTitle, date)
	fmt.Fprintf(&b, "Today we cover %d %s.\n\n", len(episodes), pluralEpisodes(len(episodes)))

	for i, ep := range episodes {
		title := strings.TrimSpace(ep.Title)
		if title == "" {
			title = "an untitled episode"
		}
		fmt.Fprintf(&b, "Segment %d: %s.\n", i+1, title)
		if notes := truncateNotes(ep.Description); notes != "" {
			b.WriteString(notes)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("That wraps up today's digest. See you next time.")
	return b.String()
}

func pluralEpisodes(n int) string {
	if n == 1 {
		return "episode"
	}
	return "episodes"
}

func truncateNotes(notes string) string {
	notes = strings.TrimSpace(notes)
	if len(notes) <= maxNotesChars {
		return notes
	}
	cut := notes[:maxNotesChars]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
