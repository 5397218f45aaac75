package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"podsift/internal/catalog"
)

// download fetches the episode's source audio into the audio directory. The
// file is written through a temp name so a partial download never passes for
// a complete one.
func (m *Manager) download(ctx context.Context, ep *catalog.Episode) (string, error) {
	if strings.TrimSpace(ep.AudioURL) == "" {
		return "", fmt.Errorf("episode %d has no audio URL", ep.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.AudioURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: unexpected status %s", ep.AudioURL, resp.Status)
	}

	if err := os.MkdirAll(m.audioDir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}

	dest := filepath.Join(m.audioDir, audioFileName(ep))
	tmp, err := os.CreateTemp(m.audioDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("download %s: %w", ep.AudioURL, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("finalize download: %w", err)
	}
	return dest, nil
}

// audioFileName derives a stable on-disk name from the episode's GUID,
// keeping the source URL's extension when it has a sensible one.
func audioFileName(ep *catalog.Episode) string {
	ext := ".mp3"
	if parsed, err := url.Parse(ep.AudioURL); err == nil {
		if e := path.Ext(parsed.Path); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return sanitizeFileName(ep.GUID) + ext
}

func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "episode"
	}
	return b.String()
}
