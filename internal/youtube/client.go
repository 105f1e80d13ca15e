// Package youtube fetches video captions for transcript ingestion.
package youtube

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/extract"
	yt "github.com/kkdai/youtube/v2"
)

const defaultLanguage = "en"

// VideoAPI is the subset of the kkdai client used here.
type VideoAPI interface {
	GetVideoContext(ctx context.Context, id string) (*yt.Video, error)
	GetTranscriptCtx(ctx context.Context, video *yt.Video, lang string) (yt.VideoTranscript, error)
}

// TranscriptClient implements extract.TranscriptFetcher.
type TranscriptClient struct {
	api      VideoAPI
	language string
}

var _ extract.TranscriptFetcher = (*TranscriptClient)(nil)

// NewTranscriptClient creates a client preferring captions in language.
func NewTranscriptClient(httpClient *http.Client, language string) *TranscriptClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return NewTranscriptClientWithAPI(&yt.Client{HTTPClient: httpClient}, language)
}

// NewTranscriptClientWithAPI creates a client with a custom API (for testing)
func NewTranscriptClientWithAPI(api VideoAPI, language string) *TranscriptClient {
	if language == "" {
		language = defaultLanguage
	}
	return &TranscriptClient{api: api, language: language}
}

// FetchTranscript loads the caption track for videoID. Videos without usable
// captions return a non-transient error; network trouble is transient.
func (c *TranscriptClient) FetchTranscript(ctx context.Context, videoID string) ([]extract.TranscriptSegment, error) {
	video, err := c.api.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, classify(err)
	}

	lang, ok := c.pickLanguage(video)
	if !ok {
		return nil, yt.ErrTranscriptDisabled
	}

	transcript, err := c.api.GetTranscriptCtx(ctx, video, lang)
	if err != nil {
		return nil, classify(err)
	}

	segments := make([]extract.TranscriptSegment, 0, len(transcript))
	for _, s := range transcript {
		segments = append(segments, extract.TranscriptSegment{
			Text:  s.Text,
			Start: time.Duration(s.StartMs) * time.Millisecond,
		})
	}
	return segments, nil
}

func (c *TranscriptClient) pickLanguage(video *yt.Video) (string, bool) {
	if video == nil || len(video.CaptionTracks) == 0 {
		return "", false
	}
	for _, track := range video.CaptionTracks {
		if track.LanguageCode == c.language {
			return c.language, true
		}
	}
	return video.CaptionTracks[0].LanguageCode, true
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var playability *yt.ErrPlayabiltyStatus
	switch {
	case errors.Is(err, yt.ErrTranscriptDisabled),
		errors.Is(err, yt.ErrVideoPrivate),
		errors.Is(err, yt.ErrLoginRequired),
		errors.Is(err, yt.ErrNotPlayableInEmbed),
		errors.Is(err, yt.ErrInvalidCharactersInVideoID),
		errors.Is(err, yt.ErrVideoIDMinLength),
		errors.As(err, &playability):
		return err
	}
	return domain.Transient("youtube request failed", err)
}
