package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/roasbeef/learnhub/internal/jsonx"
	"golang.org/x/net/html"
)

const (
	// DefaultTimeout bounds each outbound request to YouTube.
	DefaultTimeout = 15 * time.Second

	// DefaultBaseURL is the YouTube origin the watch page is fetched from.
	DefaultBaseURL = "https://www.youtube.com"

	// maxWatchPageBytes caps how much of the watch page is read.
	maxWatchPageBytes = 6 << 20

	// maxTimedTextBytes caps the caption XML size.
	maxTimedTextBytes = 2 << 20

	// playerResponseMarker precedes the player JSON in the watch page.
	playerResponseMarker = "ytInitialPlayerResponse = "

	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// errNoPlayerResponse is returned when the watch page carries no player
// JSON, e.g. a consent interstitial.
var errNoPlayerResponse = errors.New("ytInitialPlayerResponse not found")

// YouTubeConfig configures the YouTube provider.
type YouTubeConfig struct {
	// BaseURL is the origin watch pages are fetched from.
	BaseURL string `mapstructure:"base_url"`

	// Timeout bounds every outbound request.
	Timeout time.Duration `mapstructure:"timeout"`

	// Languages lists preferred caption languages, most preferred first.
	Languages []string `mapstructure:"languages"`
}

// DefaultYouTubeConfig returns the production configuration.
func DefaultYouTubeConfig() YouTubeConfig {
	return YouTubeConfig{
		BaseURL:   DefaultBaseURL,
		Timeout:   DefaultTimeout,
		Languages: []string{"en", "en-US", "en-GB"},
	}
}

// YouTube fetches captions by scraping the public watch page.
type YouTube struct {
	cfg    YouTubeConfig
	client *http.Client
	log    *slog.Logger
}

// NewYouTube creates a YouTube provider.
func NewYouTube(cfg YouTubeConfig, log *slog.Logger) *YouTube {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	return &YouTube{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With("component", "transcript"),
	}
}

// captionTrack is one entry of the player's caption track list.
type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

// playerResponse is the subset of ytInitialPlayerResponse we read.
type playerResponse struct {
	Captions *struct {
		Renderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`

	VideoDetails *struct {
		Title            string `json:"title"`
		ShortDescription string `json:"shortDescription"`
	} `json:"videoDetails"`
}

// timedText is the caption XML document.
type timedText struct {
	Lines []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

// Fetch implements Provider.
func (y *YouTube) Fetch(ctx context.Context, videoID string) (*Result,
	error) {

	if !videoIDPattern.MatchString(videoID) {
		return nil, ErrInvalidVideoID
	}

	page, err := y.get(ctx, y.cfg.BaseURL+"/watch?v="+videoID,
		maxWatchPageBytes)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	player, err := parsePlayerResponse(page)
	if err != nil {
		y.log.DebugContext(ctx, "Player response unavailable, using "+
			"page metadata", "video_id", videoID, "err", err)

		return y.unavailable(videoID, metadataFromHTML(page)), nil
	}

	meta := &Metadata{URL: WatchURL(videoID)}
	if player.VideoDetails != nil {
		meta.Title = player.VideoDetails.Title
		meta.Description = player.VideoDetails.ShortDescription
	} else {
		meta = metadataFromHTML(page)
	}
	meta.URL = WatchURL(videoID)

	var tracks []captionTrack
	if player.Captions != nil {
		tracks = player.Captions.Renderer.CaptionTracks
	}

	track, ok := pickTrack(tracks, y.cfg.Languages)
	if !ok {
		return y.unavailable(videoID, meta), nil
	}

	segments, err := y.fetchTimedText(ctx, track.BaseURL)
	if err != nil {
		y.log.WarnContext(ctx, "Caption download failed", "video_id",
			videoID, "lang", track.LanguageCode, "err", err)

		return y.unavailable(videoID, meta), nil
	}
	if len(segments) == 0 {
		return y.unavailable(videoID, meta), nil
	}

	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		texts = append(texts, seg.Text)
	}

	return &Result{
		VideoID:    videoID,
		Available:  true,
		Transcript: strings.Join(texts, " "),
		Segments:   segments,
		Language:   track.LanguageCode,
		Metadata:   meta,
	}, nil
}

// unavailable builds the no-captions result.
func (y *YouTube) unavailable(videoID string, meta *Metadata) *Result {
	if meta.URL == "" {
		meta.URL = WatchURL(videoID)
	}

	return &Result{
		VideoID:   videoID,
		Available: false,
		Metadata:  meta,
	}
}

// get performs a bounded GET and returns at most limit bytes of the body.
func (y *YouTube) get(ctx context.Context, url string,
	limit int64) ([]byte, error) {

	ctx, cancel := context.WithTimeout(ctx, y.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// fetchTimedText downloads and decodes a caption track.
func (y *YouTube) fetchTimedText(ctx context.Context,
	baseURL string) ([]Segment, error) {

	body, err := y.get(ctx, baseURL, maxTimedTextBytes)
	if err != nil {
		return nil, err
	}

	return parseTimedText(body)
}

// parsePlayerResponse extracts ytInitialPlayerResponse from a watch page.
func parsePlayerResponse(page []byte) (*playerResponse, error) {
	idx := bytes.Index(page, []byte(playerResponseMarker))
	if idx < 0 {
		return nil, errNoPlayerResponse
	}

	raw, ok := jsonx.LeadingObject(page[idx+len(playerResponseMarker):])
	if !ok {
		return nil, errNoPlayerResponse
	}

	var player playerResponse
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}

	return &player, nil
}

// parseTimedText decodes caption XML. YouTube double-escapes entities so
// the text is unescaped once more after XML decoding.
func parseTimedText(body []byte) ([]Segment, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext: %w", err)
	}

	segments := make([]Segment, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := strings.Join(
			strings.Fields(html.UnescapeString(line.Text)), " ",
		)
		if text == "" {
			continue
		}

		start, _ := strconv.ParseFloat(line.Start, 64)
		dur, _ := strconv.ParseFloat(line.Dur, 64)

		segments = append(segments, Segment{
			Text:     text,
			Start:    start,
			Duration: dur,
		})
	}

	return segments, nil
}

// needsPoToken reports whether a track can only be fetched by a browser.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickTrack selects a manual track in a preferred language, then an
// auto-generated one, then any English track, then the first usable one.
func pickTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.BaseURL != "" && !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}

	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}

	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}

	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}

	return usable[0], true
}

// metadataFromHTML reads the title and description meta tags of a page.
func metadataFromHTML(page []byte) *Metadata {
	meta := &Metadata{}
	z := html.NewTokenizer(bytes.NewReader(page))

	var inTitle bool
	for {
		switch z.Next() {
		case html.ErrorToken:
			return meta

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "title":
				inTitle = true

			case "meta":
				applyMetaTag(meta, tok.Attr)

			case "body":
				return meta
			}

		case html.TextToken:
			if inTitle && meta.Title == "" {
				title := strings.TrimSpace(string(z.Text()))
				meta.Title = strings.TrimSuffix(title, " - YouTube")
			}

		case html.EndTagToken:
			inTitle = false
		}
	}
}

// applyMetaTag copies a title or description meta tag into meta. Named
// tags win over their Open Graph equivalents.
func applyMetaTag(meta *Metadata, attrs []html.Attribute) {
	var key, content string
	for _, a := range attrs {
		switch a.Key {
		case "name", "property":
			key = a.Val
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}

	switch key {
	case "title":
		meta.Title = content

	case "og:title":
		if meta.Title == "" {
			meta.Title = content
		}

	case "description":
		meta.Description = content

	case "og:description":
		if meta.Description == "" {
			meta.Description = content
		}
	}
}

var _ Provider = (*YouTube)(nil)
