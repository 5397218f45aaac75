// Package media wraps the ffprobe/ffmpeg invocations used to inspect and
// segment episode audio.
package media
