package transcribe

import "strings"

// appendChunkText joins a chunk's text onto the in-progress transcript.
// Chunk boundaries can split a word across two segments, so when the buffer
// ends with the token the new chunk starts with, the duplicate is dropped.
func appendChunkText(buffer, chunkText string) string {
	chunkText = strings.TrimSpace(chunkText)
	if chunkText == "" {
		return buffer
	}
	if buffer == "" {
		return chunkText
	}

	prevFields := strings.Fields(buffer)
	nextFields := strings.Fields(chunkText)
	if len(prevFields) > 0 && len(nextFields) > 0 &&
		strings.EqualFold(prevFields[len(prevFields)-1], nextFields[0]) {
		nextFields = nextFields[1:]
	}
	if len(nextFields) == 0 {
		return buffer
	}
	return buffer + " " + strings.Join(nextFields, " ")
}

// countWords computes the word count of the final assembled transcript.
// Counting the assembled text, not per-chunk sums, keeps split boundary
// words from being counted twice.
func countWords(text string) int {
	return len(strings.Fields(text))
}
