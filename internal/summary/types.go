package summary

import "github.com/roasbeef/learnhub/internal/transcript"

// ContentType records what the summary was generated from.
type ContentType string

const (
	// ContentTranscript means the summary was generated from captions.
	ContentTranscript ContentType = "transcript"

	// ContentMetadata means only the title and description were known.
	ContentMetadata ContentType = "metadata"
)

// Result is a parsed and normalized summary. It is immutable once built.
type Result struct {
	Summary     string      `json:"summary"`
	Takeaways   []string    `json:"takeaways"`
	Actions     []string    `json:"actions"`
	IsTruncated bool        `json:"isTruncated"`
	ContentType ContentType `json:"contentType"`
}

// Request is a summarize call. Title and VideoURL are required, plus either
// a transcript or metadata. When both are missing they are looked up
// through the configured provider.
type Request struct {
	Title      string               `json:"title"`
	VideoURL   string               `json:"videoUrl"`
	VideoID    string               `json:"videoId,omitempty"`
	Transcript string               `json:"transcript,omitempty"`
	Metadata   *transcript.Metadata `json:"metadata,omitempty"`
}

// Response is a Result annotated with whether it came from the cache.
type Response struct {
	Result

	Cached bool `json:"cached"`
}
