package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os/exec"
	"regexp"
	"strings"
	"time"

	yt "github.com/kkdai/youtube/v2"

	"clipforge-backend/internal/models"
)

var supportedURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/watch\?v=[\w-]{11}`),
	regexp.MustCompile(`^https?://youtu\.be/[\w-]{11}`),
	regexp.MustCompile(`^https?://(www\.)?youtube\.com/shorts/[\w-]{11}`),
	regexp.MustCompile(`^https?://(www\.)?twitch\.tv/.+`),
}

// IsSupportedURL reports whether url points at a source the downloader
// can handle.
func IsSupportedURL(rawURL string) bool {
	for _, p := range supportedURLPatterns {
		if p.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// YouTubeService resolves source-video metadata without downloading.
type YouTubeService struct {
	httpClient *http.Client
	ytClient   *yt.Client
	ytdlpPath  string
}

func NewYouTubeService(ytdlpPath string) *YouTubeService {
	return &YouTubeService{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ytClient:   &yt.Client{},
		ytdlpPath:  ytdlpPath,
	}
}

// GetVideoInfo fetches title/duration/thumbnail for a source URL. It tries
// the YouTube innertube client first, then the oEmbed endpoint, and
// finally yt-dlp, which also covers non-YouTube sources.
func (s *YouTubeService) GetVideoInfo(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	if info, err := s.infoViaClient(ctx, rawURL); err == nil {
		return info, nil
	} else {
		log.Printf("[YouTube] Client metadata lookup failed, trying oEmbed: %v", err)
	}

	if info, err := s.infoViaOEmbed(ctx, rawURL); err == nil {
		return info, nil
	} else {
		log.Printf("[YouTube] oEmbed lookup failed, trying yt-dlp: %v", err)
	}

	return s.infoViaYtdlp(ctx, rawURL)
}

func (s *YouTubeService) infoViaClient(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	video, err := s.ytClient.GetVideoContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	info := &models.VideoInfo{
		VideoID:     video.ID,
		Title:       video.Title,
		Duration:    int(video.Duration.Seconds()),
		DurationStr: formatDuration(int(video.Duration.Seconds())),
		Uploader:    video.Author,
	}
	if len(video.Thumbnails) > 0 {
		info.ThumbnailURL = video.Thumbnails[len(video.Thumbnails)-1].URL
	}
	return info, nil
}

type oembedResponse struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

func (s *YouTubeService) infoViaOEmbed(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	endpoint := "https://www.youtube.com/oembed?format=json&url=" + url.QueryEscape(rawURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oEmbed returned status %d", resp.StatusCode)
	}

	var parsed oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	// oEmbed carries no duration.
	return &models.VideoInfo{
		Title:        parsed.Title,
		Uploader:     parsed.AuthorName,
		ThumbnailURL: parsed.ThumbnailURL,
	}, nil
}

type ytdlpInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	Uploader  string  `json:"uploader"`
}

func (s *YouTubeService) infoViaYtdlp(ctx context.Context, rawURL string) (*models.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, s.ytdlpPath, "--dump-json", "--no-playlist", rawURL)
	out, err := cmd.Output()
	if err != nil {
		// yt-dlp sometimes exits non-zero after printing valid JSON
		// (update notices go to stderr).
		if !strings.HasPrefix(strings.TrimSpace(string(out)), "{") {
			return nil, fmt.Errorf("yt-dlp metadata: %w", err)
		}
	}

	var parsed ytdlpInfo
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse yt-dlp metadata: %w", err)
	}

	return &models.VideoInfo{
		VideoID:      parsed.ID,
		Title:        parsed.Title,
		Duration:     int(parsed.Duration),
		DurationStr:  formatDuration(int(parsed.Duration)),
		Uploader:     parsed.Uploader,
		ThumbnailURL: parsed.Thumbnail,
	}, nil
}

func formatDuration(totalSeconds int) string {
	m := totalSeconds / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%d:%02d", m, s)
}
