package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"clipforge-backend/internal/models"
)

// ProgressFunc receives fractional completion in [0,1] as an external
// operation advances. Callbacks may arrive from another goroutine.
type ProgressFunc func(fraction float64)

// MediaProbe is the subset of stream metadata the pipelines care about.
type MediaProbe struct {
	Width    int
	Height   int
	Duration float64
}

// MediaService shells out to ffmpeg/ffprobe/yt-dlp for every media
// operation. All methods are safe for concurrent use; each invocation
// runs its own subprocess.
type MediaService struct {
	ffmpegPath  string
	ffprobePath string
	ytdlpPath   string
}

func NewMediaService(ffmpegPath, ffprobePath, ytdlpPath string) *MediaService {
	return &MediaService{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		ytdlpPath:   ytdlpPath,
	}
}

// encodeArgs produce seekable, faststart MP4 output rather than a stream
// copy, so every export plays from frame zero.
var encodeArgs = []string{
	"-c:v", "libx264",
	"-c:a", "aac",
	"-preset", "fast",
	"-crf", "23",
	"-movflags", "+faststart",
}

// ── Probe ────────────────────────────────────────────────────────────

type ffprobeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the dimensions and duration of the first video stream.
func (m *MediaService) Probe(ctx context.Context, path string) (MediaProbe, error) {
	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return MediaProbe{}, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return MediaProbe{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(parsed.Streams) == 0 {
		return MediaProbe{}, fmt.Errorf("no video stream in %s", filepath.Base(path))
	}

	duration, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil {
		return MediaProbe{}, fmt.Errorf("parse duration %q: %w", parsed.Format.Duration, err)
	}

	return MediaProbe{
		Width:    parsed.Streams[0].Width,
		Height:   parsed.Streams[0].Height,
		Duration: duration,
	}, nil
}

// ── Trim ─────────────────────────────────────────────────────────────

// Trim re-encodes the [startSec, endSec) range of the source into outPath.
func (m *MediaService) Trim(ctx context.Context, path string, startSec, endSec float64, outPath string, onProgress ProgressFunc) error {
	duration := endSec - startSec
	args := []string{
		"-y",
		"-ss", formatSeconds(startSec),
		"-i", path,
		"-t", formatSeconds(duration),
	}
	args = append(args, encodeArgs...)
	args = append(args, "-progress", "pipe:1", "-nostats", outPath)

	return m.runFfmpeg(ctx, args, duration, onProgress)
}

// ── Reframe ──────────────────────────────────────────────────────────

const (
	verticalTargetW = 1080
	verticalTargetH = 1920
)

// ReframeVertical composites a sharp centered crop over a blurred
// full-bleed background at 1080x1920.
func (m *MediaService) ReframeVertical(ctx context.Context, path, outPath string, onProgress ProgressFunc) error {
	probe, err := m.Probe(ctx, path)
	if err != nil {
		return err
	}
	crop := CropFor(probe.Width, probe.Height)

	filter := strings.Join([]string{
		fmt.Sprintf("[0:v]crop=%d:%d:%d:%d,scale=%d:%d[main]",
			crop.Width, crop.Height, crop.X, crop.Y, verticalTargetW, verticalTargetH),
		fmt.Sprintf("[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,boxblur=20:5[bg]",
			verticalTargetW, verticalTargetH, verticalTargetW, verticalTargetH),
		"[bg][main]overlay=(W-w)/2:(H-h)/2[out]",
	}, ";")

	args := []string{
		"-y",
		"-i", path,
		"-filter_complex", filter,
		"-map", "[out]",
		"-map", "0:a?",
	}
	args = append(args, encodeArgs...)
	args = append(args, "-progress", "pipe:1", "-nostats", outPath)

	return m.runFfmpeg(ctx, args, probe.Duration, onProgress)
}

// ── Caption burn ─────────────────────────────────────────────────────

// BurnCaptions renders word timings to a temporary ASS document and burns
// it into the video. The temporary document is removed on every exit path.
func (m *MediaService) BurnCaptions(ctx context.Context, path string, words []models.CaptionWord, styleName, outPath string, onProgress ProgressFunc) error {
	probe, err := m.Probe(ctx, path)
	if err != nil {
		return err
	}

	assPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".ass"
	if err := os.WriteFile(assPath, []byte(RenderASS(words, styleName)), 0o644); err != nil {
		return fmt.Errorf("write subtitle document: %w", err)
	}
	defer os.Remove(assPath)

	args := []string{
		"-y",
		"-i", path,
		"-vf", "ass=" + filepath.ToSlash(assPath),
		"-c:v", "libx264",
		"-c:a", "copy",
		"-preset", "fast",
		"-crf", "22",
		"-movflags", "+faststart",
		"-progress", "pipe:1", "-nostats",
		outPath,
	}

	return m.runFfmpeg(ctx, args, probe.Duration, onProgress)
}

// ── Thumbnail ────────────────────────────────────────────────────────

// Thumbnail extracts a single 960x540 still frame at atSecond.
func (m *MediaService) Thumbnail(ctx context.Context, path string, atSecond float64, outPath string) error {
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-ss", formatSeconds(atSecond),
		"-i", path,
		"-frames:v", "1",
		"-vf", "scale=960:540",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("thumbnail: %w: %s", err, tailOf(string(out)))
	}
	return nil
}

// ── Audio extraction ─────────────────────────────────────────────────

// ExtractAudio produces a 16kHz mono MP3, enough for speech transcription.
func (m *MediaService) ExtractAudio(ctx context.Context, path, audioPath string) error {
	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-i", path,
		"-vn",
		"-acodec", "libmp3lame",
		"-ar", "16000",
		"-ac", "1",
		"-b:a", "64k",
		audioPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("extract audio: %w: %s", err, tailOf(string(out)))
	}
	return nil
}

// ── Download ─────────────────────────────────────────────────────────

var downloadProgressRe = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)

// Download fetches url into destDir via yt-dlp and returns the resulting
// local path. yt-dlp may leave alternate-extension artifacts behind, so
// the largest media file in destDir wins.
func (m *MediaService) Download(ctx context.Context, url, destDir string, onProgress ProgressFunc) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	outputPath := filepath.Join(destDir, "source.mp4")
	cmd := exec.CommandContext(ctx, m.ytdlpPath,
		url,
		"-f", "best[ext=mp4][height<=1080]/bestvideo[ext=mp4]+bestaudio[ext=m4a]/best",
		"--merge-output-format", "mp4",
		"-o", outputPath,
		"--no-playlist",
		"--newline",
		"--no-warnings",
		"--no-part",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start yt-dlp: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if match := downloadProgressRe.FindStringSubmatch(scanner.Text()); match != nil && onProgress != nil {
			if pct, err := strconv.ParseFloat(match[1], 64); err == nil {
				onProgress(pct / 100)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		return "", fmt.Errorf("yt-dlp: %w: %s", err, tailOf(stderr.String()))
	}

	result, err := largestMediaFile(destDir)
	if err != nil {
		return "", err
	}
	if onProgress != nil {
		onProgress(1)
	}
	return result, nil
}

var mediaExtRe = regexp.MustCompile(`\.(mp4|mkv|webm)$`)

func largestMediaFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var best string
	var bestSize int64 = -1
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !mediaExtRe.MatchString(name) || strings.HasSuffix(name, ".temp.mp4") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best = filepath.Join(dir, name)
			bestSize = info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no media file produced in %s", dir)
	}
	return best, nil
}

// ── ffmpeg progress plumbing ─────────────────────────────────────────

// runFfmpeg executes ffmpeg with `-progress pipe:1` already appended to
// args and maps out_time updates against totalSeconds into [0,1).
func (m *MediaService) runFfmpeg(ctx context.Context, args []string, totalSeconds float64, onProgress ProgressFunc) error {
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if onProgress == nil || totalSeconds <= 0 {
			continue
		}
		if frac, ok := parseFfmpegProgress(scanner.Text(), totalSeconds); ok {
			onProgress(frac)
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tailOf(stderr.String()))
	}
	if onProgress != nil {
		onProgress(1)
	}
	return nil
}

// parseFfmpegProgress reads one key=value line of `-progress` output.
// out_time_ms is microseconds despite the name; newer builds also emit
// out_time_us.
func parseFfmpegProgress(line string, totalSeconds float64) (float64, bool) {
	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || (key != "out_time_ms" && key != "out_time_us") {
		return 0, false
	}
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	frac := (float64(us) / 1e6) / totalSeconds
	if frac > 0.99 {
		frac = 0.99
	}
	return frac, true
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// tailOf keeps error output short enough for a log line.
func tailOf(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 400 {
		s = s[len(s)-400:]
	}
	return s
}
