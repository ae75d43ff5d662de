package transcript

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidVideoID is returned when a video identifier cannot be derived
// from the given input.
var ErrInvalidVideoID = errors.New("invalid video id")

// Segment is a single timed caption line.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Metadata is the fallback description of a video used when no captions
// exist.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// Result is the outcome of a transcript lookup. When Available is false the
// video has no usable captions and Metadata describes it instead; this is
// the common case, not an error.
type Result struct {
	VideoID    string    `json:"videoId"`
	Available  bool      `json:"available"`
	Transcript string    `json:"transcript,omitempty"`
	Segments   []Segment `json:"segments,omitempty"`
	Language   string    `json:"language,omitempty"`
	Metadata   *Metadata `json:"metadata,omitempty"`
}

// Provider supplies captions or fallback metadata for a video.
type Provider interface {
	// Fetch returns the transcript for videoID. A video without captions
	// yields a Result with Available set to false rather than an error.
	Fetch(ctx context.Context, videoID string) (*Result, error)
}

// videoIDPattern matches the 11 character YouTube id alphabet.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseVideoID extracts the video id from a YouTube URL or validates a bare
// id. Supported forms are watch?v=, youtu.be/, /shorts/, /embed/ and /live/.
func ParseVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if videoIDPattern.MatchString(input) {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return "", ErrInvalidVideoID
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var candidate string
	switch host {
	case "youtu.be":
		candidate = strings.Trim(u.Path, "/")

	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		if v := u.Query().Get("v"); v != "" {
			candidate = v
			break
		}

		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 {
			switch parts[0] {
			case "shorts", "embed", "live", "v":
				candidate = parts[1]
			}
		}
	}

	if !videoIDPattern.MatchString(candidate) {
		return "", ErrInvalidVideoID
	}

	return candidate, nil
}

// WatchURL returns the canonical watch page URL for videoID.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
