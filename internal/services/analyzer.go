package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"clipforge-backend/internal/models"
)

// AudioExtractor is the slice of the media adapter the analyzer needs.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, path, audioPath string) error
}

// AnalysisProgressFunc receives coarse progress (0-100) with a
// human-readable stage message.
type AnalysisProgressFunc func(percent int, message string)

// AnalysisResult is the outcome of one source-video analysis.
type AnalysisResult struct {
	Clips            []models.Clip
	Transcript       string
	UsedFallbackMock bool
}

// geminiModels is the fallback chain, cheapest quota first. A variant is
// skipped on quota-exceeded or not-found; any other failure propagates.
var geminiModels = []string{
	"gemini-2.0-flash-lite",
	"gemini-2.0-flash",
	"gemini-2.5-flash",
}

const defaultMockStepDelay = 1500 * time.Millisecond

// Analyzer turns a local source video into a transcript plus ranked clip
// candidates. With no API key configured it degrades to a deterministic
// local generator so the rest of the pipeline stays exercisable.
type Analyzer struct {
	apiKey     string
	media      AudioExtractor
	modelNames []string
	mockDelay  time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	clientOnce sync.Once
	client     *genai.Client
	clientErr  error
}

func NewAnalyzer(apiKey string, media AudioExtractor) *Analyzer {
	return &Analyzer{
		apiKey:     apiKey,
		media:      media,
		modelNames: geminiModels,
		mockDelay:  defaultMockStepDelay,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (a *Analyzer) ensureClient(ctx context.Context) (*genai.Client, error) {
	a.clientOnce.Do(func() {
		a.client, a.clientErr = genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	})
	return a.client, a.clientErr
}

// Close releases the underlying API client, if one was created.
func (a *Analyzer) Close() {
	if a.client != nil {
		a.client.Close()
	}
}

// Analyze transcribes the source audio and returns up to 5 ranked clip
// candidates. Progress runs 0-100 within the analysis stage; the caller
// maps it into its own band.
func (a *Analyzer) Analyze(ctx context.Context, sourcePath string, durationSeconds float64, onProgress AnalysisProgressFunc) (*AnalysisResult, error) {
	if onProgress == nil {
		onProgress = func(int, string) {}
	}

	if a.apiKey == "" {
		log.Println("[Analyzer] No Gemini key configured, using mock analysis")
		return a.analyzeMock(ctx, durationSeconds, onProgress)
	}

	log.Println("[Analyzer] Using Gemini analysis pipeline")

	onProgress(8, "Extracting audio...")
	audioPath := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + "_audio.mp3"
	if err := a.media.ExtractAudio(ctx, sourcePath, audioPath); err != nil {
		return nil, err
	}
	defer os.Remove(audioPath)

	client, err := a.ensureClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	onProgress(22, "Uploading audio...")
	file, err := a.uploadAudio(ctx, client, audioPath)
	if err != nil {
		return nil, err
	}
	defer client.DeleteFile(context.Background(), file.Name)

	onProgress(35, "Analyzing audio for clip candidates...")
	segmentation, err := a.transcribeAndSegment(ctx, client, file, durationSeconds)
	if err != nil {
		return nil, err
	}
	log.Printf("[Analyzer] Got %d clip candidates", len(segmentation.Clips))

	onProgress(80, "Generating metadata for each clip...")
	clips := a.buildClips(ctx, client, segmentation.Clips)

	onProgress(100, "Analysis complete!")
	return &AnalysisResult{
		Clips:      clips,
		Transcript: segmentation.Transcript,
	}, nil
}

// ── Gemini plumbing ──────────────────────────────────────────────────

func (a *Analyzer) uploadAudio(ctx context.Context, client *genai.Client, audioPath string) (*genai.File, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	file, err := client.UploadFile(ctx, "", f, &genai.UploadFileOptions{
		DisplayName: filepath.Base(audioPath),
		MIMEType:    "audio/mpeg",
	})
	if err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}

	// Short audio is usually ACTIVE immediately; poll briefly otherwise.
	for i := 0; i < 20 && file.State != genai.FileStateActive; i++ {
		if file.State == genai.FileStateFailed {
			return nil, errors.New("Gemini failed to process uploaded audio")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
		current, getErr := client.GetFile(ctx, file.Name)
		if getErr != nil {
			return nil, fmt.Errorf("check uploaded file state: %w", getErr)
		}
		file = current
	}
	if file.State != genai.FileStateActive {
		return nil, errors.New("uploaded audio did not become active in time")
	}

	return file, nil
}

// generateWithFallback walks the model chain until one variant answers.
// responseMIME, when non-empty, constrains the model's output format.
func (a *Analyzer) generateWithFallback(ctx context.Context, client *genai.Client, responseMIME string, parts ...genai.Part) (string, error) {
	for _, name := range a.modelNames {
		model := newGenerativeModel(client, name, responseMIME)

		resp, err := model.GenerateContent(ctx, parts...)
		if err != nil {
			if shouldAdvanceModel(err) {
				log.Printf("[Analyzer] Model %s unavailable, trying next: %v", name, err)
				continue
			}
			return "", fmt.Errorf("Gemini API error: %w", err)
		}
		return extractText(resp), nil
	}
	return "", errors.New("all Gemini model variants exhausted, try again later")
}

func newGenerativeModel(client *genai.Client, name, responseMIME string) *genai.GenerativeModel {
	model := client.GenerativeModel(name)
	model.SetTemperature(0.7)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(8192)
	if responseMIME != "" {
		model.ResponseMIMEType = responseMIME
	}
	return model
}

func shouldAdvanceModel(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == 429 || gerr.Code == 404) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota") ||
		strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}

// ── Transcription + segmentation ─────────────────────────────────────

type segmentationResponse struct {
	Transcript string        `json:"transcript"`
	Clips      []segmentJSON `json:"clips"`
}

type segmentJSON struct {
	StartSec        float64 `json:"start_sec"`
	EndSec          float64 `json:"end_sec"`
	Title           string  `json:"title"`
	Hook            string  `json:"hook"`
	Reason          string  `json:"reason"`
	EngagementScore int     `json:"engagementScore"`
	ViralType       string  `json:"viralType"`
	Transcript      string  `json:"transcript"`
}

func (a *Analyzer) transcribeAndSegment(ctx context.Context, client *genai.Client, file *genai.File, durationSeconds float64) (*segmentationResponse, error) {
	prompt := fmt.Sprintf(`You are a viral short-form video expert. I will give you an audio track from a long video.

Your tasks:
1. TRANSCRIBE the audio completely with timestamps (every ~5 seconds, format: [MM:SS])
2. FIND the top 5 most viral-worthy segments (15-60 seconds each)

For each clip, return:
- start_sec: start time in seconds (number)
- end_sec: end time in seconds (number, max %.0f)
- title: catchy title (max 8 words)
- hook: the opening hook line the viewer hears
- reason: why this is viral-worthy
- engagementScore: 1-100 virality prediction
- viralType: one of [educational, emotional, funny, inspiring, shocking, controversial]
- transcript: the words spoken in this segment

Rules:
- Clips must NOT overlap
- Clips must be 15-60 seconds
- Prioritize: hooks, surprises, strong emotions, humor, controversial takes
- The very first word/phrase must hook the viewer immediately

Respond ONLY with valid JSON:
{
  "transcript": "full transcript with [MM:SS] timestamps...",
  "clips": [
    { "start_sec": 12, "end_sec": 45, "title": "...", "hook": "...", "reason": "...", "engagementScore": 92, "viralType": "educational", "transcript": "..." }
  ]
}`, durationSeconds)

	raw, err := a.generateWithFallback(ctx, client, "application/json",
		genai.Text(prompt),
		genai.FileData{MIMEType: file.MIMEType, URI: file.URI},
	)
	if err != nil {
		return nil, err
	}

	var parsed segmentationResponse
	if err := decodeJSONObject(raw, &parsed); err != nil {
		return nil, fmt.Errorf("analysis response is not valid JSON: %w", err)
	}
	return &parsed, nil
}

// ── Per-clip metadata ────────────────────────────────────────────────

// buildClips fans out one metadata request per candidate. Metadata
// failures degrade to single-title/no-tags rather than failing the clip.
func (a *Analyzer) buildClips(ctx context.Context, client *genai.Client, segments []segmentJSON) []models.Clip {
	clips := make([]models.Clip, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			meta := a.generateClipMetadata(gctx, client, seg)
			clips[i] = models.Clip{
				Title:           seg.Title,
				Start:           seg.StartSec,
				End:             seg.EndSec,
				Status:          models.ClipStatusReady,
				CaptionStyle:    models.DefaultCaptionStyle,
				Hook:            seg.Hook,
				Reason:          seg.Reason,
				EngagementScore: seg.EngagementScore,
				Category:        seg.ViralType,
				Transcript:      seg.Transcript,
				Captions:        evenCaptionTiming(seg.Transcript, seg.StartSec, seg.EndSec),
				Metadata:        meta,
			}
			return nil
		})
	}
	g.Wait()

	return clips
}

func (a *Analyzer) generateClipMetadata(ctx context.Context, client *genai.Client, seg segmentJSON) *models.ClipMetadata {
	transcript := seg.Transcript
	if transcript == "" {
		transcript = seg.Hook
	}
	prompt := fmt.Sprintf(`For this viral video clip:
Title: "%s"
Type: %s
Transcript: "%s"

Generate:
1. 3 punchy viral title variations (emotional, clickbait, curiosity-driven)
2. 10 trending hashtags for TikTok/Reels/Shorts
3. A hook caption under 100 characters

Respond with JSON:
{
  "titles": ["title1", "title2", "title3"],
  "hashtags": ["#tag1", "#tag2", ...],
  "caption": "short hook caption"
}`, seg.Title, seg.ViralType, transcript)

	fallback := &models.ClipMetadata{
		Titles:   []string{seg.Title},
		Hashtags: []string{},
		Caption:  seg.Hook,
	}

	raw, err := a.generateWithFallback(ctx, client, "", genai.Text(prompt))
	if err != nil {
		log.Printf("[Analyzer] Metadata generation failed for %q: %v", seg.Title, err)
		return fallback
	}

	var meta models.ClipMetadata
	if err := decodeJSONObject(raw, &meta); err != nil || len(meta.Titles) == 0 {
		return fallback
	}
	return &meta
}

// evenCaptionTiming distributes the segment's words across its duration in
// equal slots, clip-relative. An approximation, not forced alignment.
func evenCaptionTiming(transcript string, startSec, endSec float64) []models.CaptionWord {
	words := strings.Fields(transcript)
	if len(words) == 0 {
		return nil
	}
	perWord := (endSec - startSec) / float64(len(words))

	captions := make([]models.CaptionWord, len(words))
	for i, w := range words {
		captions[i] = models.CaptionWord{
			Word:  w,
			Start: float64(i) * perWord,
			End:   float64(i+1) * perWord,
		}
	}
	return captions
}

// decodeJSONObject parses raw model output, tolerating markdown fences and
// surrounding prose by falling back to the first balanced object fragment.
func decodeJSONObject(raw string, v any) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	fragment, ok := firstBalancedObject(cleaned)
	if !ok {
		return fmt.Errorf("no JSON object found in %q", truncate(cleaned, 200))
	}
	return json.Unmarshal([]byte(fragment), v)
}

// firstBalancedObject returns the first {...} fragment with balanced
// braces, ignoring braces inside string literals.
func firstBalancedObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ── Mock analysis ────────────────────────────────────────────────────

type mockTemplate struct {
	title    string
	category string
	score    int
}

var mockTemplates = []mockTemplate{
	{"Mind-Blowing Fact You Never Knew", "educational", 94},
	{"This Changed Everything", "inspiring", 88},
	{"Wait For The Twist...", "shocking", 91},
	{"The Part Everyone's Talking About", "controversial", 97},
	{"You Won't Believe This Worked", "funny", 85},
}

var mockProgressScript = []struct {
	percent int
	message string
}{
	{30, "Scanning video frames..."},
	{65, "Detecting engagement peaks..."},
	{95, "Ranking clips by virality..."},
}

func (a *Analyzer) analyzeMock(ctx context.Context, durationSeconds float64, onProgress AnalysisProgressFunc) (*AnalysisResult, error) {
	for _, step := range mockProgressScript {
		onProgress(step.percent, step.message)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.mockDelay):
		}
	}

	clips := make([]models.Clip, len(mockTemplates))
	for i, tpl := range mockTemplates {
		start, end := a.mockSpan(durationSeconds)
		transcript := "Sample transcript for this clip segment."
		clips[i] = models.Clip{
			Title:           tpl.title,
			Start:           start,
			End:             end,
			Status:          models.ClipStatusReady,
			CaptionStyle:    models.DefaultCaptionStyle,
			Hook:            "This is the part where everything changes...",
			Reason:          "High engagement segment detected",
			EngagementScore: tpl.score,
			Category:        tpl.category,
			Transcript:      transcript,
			Captions:        evenCaptionTiming(transcript, start, end),
			Metadata: &models.ClipMetadata{
				Titles:   []string{tpl.title},
				Hashtags: []string{"#viral", "#trending", "#shorts"},
				Caption:  tpl.title,
			},
		}
	}

	onProgress(100, "Analysis complete!")
	return &AnalysisResult{Clips: clips, UsedFallbackMock: true}, nil
}

// mockSpan picks a plausible 20-45s window in the first half of the video.
func (a *Analyzer) mockSpan(durationSeconds float64) (start, end float64) {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()

	startRange := int(durationSeconds * 0.5)
	if startRange < 1 {
		startRange = 1
	}
	start = float64(a.rng.Intn(startRange) + 10)
	if start >= durationSeconds-2 {
		start = 0
	}
	end = start + float64(a.rng.Intn(25)+20)
	if end > durationSeconds-1 {
		end = durationSeconds - 1
	}
	if end <= start {
		end = start + 1
	}
	return start, end
}
