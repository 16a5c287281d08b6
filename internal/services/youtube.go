package services

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"
	yt "github.com/kkdai/youtube/v2"
	"github.com/sirupsen/logrus"

	"river-backend/internal/models"
)

const undeterminedLanguage = "und"

// YouTubeService is both the metadata and the transcript source.
type YouTubeService struct {
	httpClient    *http.Client
	transcriptAPI *ytapi.YouTubeTranscriptApi
	ytClient      *yt.Client
	log           *logrus.Logger
	oembedURL     string
}

type timedTextXML struct {
	XMLName xml.Name  `xml:"transcript"`
	Texts   []textXML `xml:"text"`
}

type textXML struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

func NewYouTubeService(log *logrus.Logger) *YouTubeService {
	return &YouTubeService{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
		ytClient:      &yt.Client{},
		log:           log,
		oembedURL:     "https://www.youtube.com/oembed",
	}
}

// Lookup returns the title and best thumbnail of a video. The YouTube player
// API is tried first, then oEmbed.
func (s *YouTubeService) Lookup(ctx context.Context, videoID string) (models.VideoMetadata, error) {
	var meta models.VideoMetadata

	video, err := s.ytClient.GetVideoContext(ctx, videoID)
	if err == nil {
		if video.Title != "" {
			title := video.Title
			meta.Title = &title
		}
		if thumb := widestThumbnail(video.Thumbnails); thumb != "" {
			meta.ThumbnailURL = &thumb
		}
	} else {
		s.log.WithError(err).WithField("video_id", videoID).Debug("player metadata failed, trying oEmbed")
		meta, err = s.lookupOEmbed(ctx, videoID)
		if err != nil {
			return models.VideoMetadata{}, err
		}
	}

	if meta.ThumbnailURL == nil {
		fallback := fmt.Sprintf("https://img.youtube.com/vi/%s/mqdefault.jpg", videoID)
		meta.ThumbnailURL = &fallback
	}
	return meta, nil
}

func widestThumbnail(thumbs yt.Thumbnails) string {
	best := ""
	var bestWidth uint
	for _, t := range thumbs {
		if t.URL != "" && (best == "" || t.Width > bestWidth) {
			best = t.URL
			bestWidth = t.Width
		}
	}
	return best
}

func (s *YouTubeService) lookupOEmbed(ctx context.Context, videoID string) (models.VideoMetadata, error) {
	q := url.Values{}
	q.Set("url", CanonicalURL(videoID))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.oembedURL+"?"+q.Encode(), nil)
	if err != nil {
		return models.VideoMetadata{}, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.VideoMetadata{}, fmt.Errorf("oEmbed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.VideoMetadata{}, fmt.Errorf("oEmbed returned status %d", resp.StatusCode)
	}

	var oembed struct {
		Title        string `json:"title"`
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&oembed); err != nil {
		return models.VideoMetadata{}, fmt.Errorf("failed to decode oEmbed response: %w", err)
	}

	var meta models.VideoMetadata
	if oembed.Title != "" {
		meta.Title = &oembed.Title
	}
	if oembed.ThumbnailURL != "" {
		meta.ThumbnailURL = &oembed.ThumbnailURL
	}
	return meta, nil
}

// Fetch returns the captions of a video as one block of text, preferring
// English tracks.
func (s *YouTubeService) Fetch(ctx context.Context, videoID string) (models.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return models.Transcript{}, err
	}

	language := "en"
	transcript, err := s.transcriptAPI.GetTranscript(videoID, []string{"en", "en-US", "en-GB"})
	if err != nil {
		// Fallback: request any available language
		language = undeterminedLanguage
		transcript, err = s.transcriptAPI.GetTranscript(videoID, nil)
		if err != nil {
			legacy, legacyErr := s.getTranscriptViaTimedText(ctx, videoID)
			if legacyErr == nil {
				return legacy, nil
			}
			return models.Transcript{}, fmt.Errorf("no subtitles available via transcript API (%v) and timedtext fallback failed (%v)", err, legacyErr)
		}
	}

	if len(transcript.Entries) == 0 {
		return models.Transcript{}, fmt.Errorf("subtitle track is empty")
	}

	var fullText strings.Builder
	for _, entry := range transcript.Entries {
		text := strings.TrimSpace(html.UnescapeString(entry.Text))
		if text == "" {
			continue
		}
		fullText.WriteString(text)
		fullText.WriteString(" ")
	}

	cleaned := strings.TrimSpace(fullText.String())
	if cleaned == "" {
		return models.Transcript{}, fmt.Errorf("subtitle text resolved to empty content")
	}

	return models.Transcript{FullText: cleaned, Language: language}, nil
}

func (s *YouTubeService) getTranscriptViaTimedText(ctx context.Context, videoID string) (models.Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, CanonicalURL(videoID), nil)
	if err != nil {
		return models.Transcript{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("failed to fetch YouTube page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("failed to read YouTube page: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"video_id": videoID,
		"bytes":    len(body),
	}).Debug("timedtext fallback: fetched watch page")

	track, err := extractCaptionTrack(string(body))
	if err != nil {
		return models.Transcript{}, err
	}

	captionReq, err := http.NewRequestWithContext(ctx, http.MethodGet, track.URL, nil)
	if err != nil {
		return models.Transcript{}, err
	}
	captionResp, err := s.httpClient.Do(captionReq)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("failed to fetch captions: %w", err)
	}
	defer captionResp.Body.Close()

	captionBody, err := io.ReadAll(captionResp.Body)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("failed to read captions: %w", err)
	}

	text, err := parseCaptionsXML(captionBody)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("failed to parse captions XML: %w", err)
	}

	language := track.Language
	if language == "" {
		language = undeterminedLanguage
	}
	return models.Transcript{FullText: text, Language: language}, nil
}

type captionTrack struct {
	URL      string
	Language string
}

var (
	captionTracksRe = regexp.MustCompile(`"captionTracks"\s*:\s*\[(.*?)\],\s*"`)
	baseURLRe       = regexp.MustCompile(`"baseUrl"\s*:\s*"(.*?)"`)
	languageCodeRe  = regexp.MustCompile(`"languageCode"\s*:\s*"(.*?)"`)
)

// extractCaptionTrack picks a caption track from the watch page: "en" first,
// then any English variant, then whatever comes first.
func extractCaptionTrack(pageHTML string) (captionTrack, error) {
	matches := captionTracksRe.FindStringSubmatch(pageHTML)
	if len(matches) < 2 {
		return captionTrack{}, fmt.Errorf("no captions available for this video")
	}

	// Each track object starts at its baseUrl; the language code follows
	// somewhere before the next track.
	tracksJSON := matches[1]
	locs := baseURLRe.FindAllStringSubmatchIndex(tracksJSON, -1)
	var tracks []captionTrack
	for i, loc := range locs {
		segmentEnd := len(tracksJSON)
		if i+1 < len(locs) {
			segmentEnd = locs[i+1][0]
		}
		u := tracksJSON[loc[2]:loc[3]]
		u = strings.ReplaceAll(u, `\u0026`, "&")
		u = strings.ReplaceAll(u, `\/`, "/")
		track := captionTrack{URL: u}
		if lm := languageCodeRe.FindStringSubmatch(tracksJSON[loc[1]:segmentEnd]); len(lm) > 1 {
			track.Language = lm[1]
		}
		tracks = append(tracks, track)
	}
	if len(tracks) == 0 {
		return captionTrack{}, fmt.Errorf("caption track found but baseUrl missing")
	}

	for _, t := range tracks {
		if t.Language == "en" {
			return t, nil
		}
	}
	for _, t := range tracks {
		if strings.HasPrefix(t.Language, "en") {
			return t, nil
		}
	}
	return tracks[0], nil
}

func parseCaptionsXML(data []byte) (string, error) {
	var tt timedTextXML
	if err := xml.Unmarshal(data, &tt); err != nil {
		return "", err
	}

	var parts []string
	for _, t := range tt.Texts {
		text := html.UnescapeString(t.Text)
		text = strings.TrimSpace(text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("captions XML empty")
	}

	return strings.Join(parts, " "), nil
}
