package extract

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// TranscriptSegment is one caption line.
type TranscriptSegment struct {
	Text  string
	Start time.Duration
}

// TranscriptFetcher loads captions for a video. Errors that a retry could fix
// should be marked transient by the implementation.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoID string) ([]TranscriptSegment, error)
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractTranscript fetches captions for a YouTube link and joins them with spaces.
func (e *Extractor) ExtractTranscript(ctx context.Context, link string) (string, error) {
	videoID, err := VideoID(link)
	if err != nil {
		return "", err
	}
	if e.transcripts == nil {
		return "", domain.NewDomainError(domain.ErrCodeConfiguration, "transcript fetching is not configured")
	}

	segments, err := e.transcripts.FetchTranscript(ctx, videoID)
	if err != nil {
		if domain.IsRetryable(err) {
			return "", domain.Transient("transcript fetch failed", err)
		}
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrNoTranscript.Message, err)
	}

	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "", domain.ErrNoTranscript
	}
	return strings.Join(parts, " "), nil
}

// VideoID pulls the 11-character video id out of a YouTube URL or returns the
// input if it already is one.
func VideoID(link string) (string, error) {
	link = strings.TrimSpace(link)
	if videoIDPattern.MatchString(link) {
		return link, nil
	}

	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return "", domain.ErrInvalidVideoURL
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		id = segments[0]
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch segments[0] {
		case "watch":
			id = u.Query().Get("v")
		case "shorts", "embed", "live", "v":
			if len(segments) > 1 {
				id = segments[1]
			}
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", domain.ErrInvalidVideoURL
	}
	return id, nil
}
