package scoring

import (
	"fmt"
	"strings"

	"podsift/internal/catalog"
)

// maxTranscriptChars bounds the prompt size. Long transcripts are truncated
// from the end; topical relevance is established well before the closing
// minutes of an episode.
const maxTranscriptChars = 48000

func buildSystemPrompt(topics []catalog.Topic) string {
	var b strings.Builder
	b.WriteString("You rate how relevant a podcast episode transcript is to a fixed set of topics.\n")
	b.WriteString("For every topic listed below, assign a relevance score between 0.0 (not related at all) and 1.0 (the episode is substantially about this topic).\n")
	b.WriteString("Score each topic independently. An episode can be highly relevant to several topics at once.\n\n")
	b.WriteString("Topics:\n")
	for _, topic := range topics {
		title := strings.TrimSpace(topic.Title)
		if title == "" {
			title = topic.Name
		}
		fmt.Fprintf(&b, "- %s: %s\n", topic.Name, title)
	}
	b.WriteString("\nRespond with a single JSON object mapping each topic key to its score, for example: ")

	keys := make([]string, 0, len(topics))
	for _, topic := range topics {
		keys = append(keys, fmt.Sprintf("%q: 0.0", topic.Name))
	}
	b.WriteString("{" + strings.Join(keys, ", ") + "}")
	b.WriteString("\nInclude every topic key exactly once. Respond with JSON only, no commentary.")
	return b.String()
}

func buildUserPrompt(transcript string) string {
	transcript = strings.TrimSpace(transcript)
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[:maxTranscriptChars] + "\n[transcript truncated]"
	}
	return "Transcript:\n\n" + transcript
}
