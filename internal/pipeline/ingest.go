package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"clipforge-backend/internal/events"
	"clipforge-backend/internal/models"
	"clipforge-backend/internal/services"
	"clipforge-backend/internal/store"
)

// MediaOps is the slice of the media adapter the pipelines call.
type MediaOps interface {
	Download(ctx context.Context, url, destDir string, onProgress services.ProgressFunc) (string, error)
	Probe(ctx context.Context, path string) (services.MediaProbe, error)
	Trim(ctx context.Context, path string, startSec, endSec float64, outPath string, onProgress services.ProgressFunc) error
	ReframeVertical(ctx context.Context, path, outPath string, onProgress services.ProgressFunc) error
	BurnCaptions(ctx context.Context, path string, words []models.CaptionWord, styleName, outPath string, onProgress services.ProgressFunc) error
	Thumbnail(ctx context.Context, path string, atSecond float64, outPath string) error
}

// ClipAnalyzer finds clip candidates in a downloaded source video.
type ClipAnalyzer interface {
	Analyze(ctx context.Context, sourcePath string, durationSeconds float64, onProgress services.AnalysisProgressFunc) (*services.AnalysisResult, error)
}

// Progress weighting across the ingest stages.
const (
	downloadBandEnd = 45
	probeProgress   = 47
	analysisBandEnd = 92
)

// Ingest turns a source URL into a downloaded video plus registered clip
// candidates. One Run per project, detached from the triggering request.
type Ingest struct {
	store      *store.Store
	bus        *events.Bus
	media      MediaOps
	analyzer   ClipAnalyzer
	uploadsDir string
	maxMinutes int
}

func NewIngest(st *store.Store, bus *events.Bus, media MediaOps, analyzer ClipAnalyzer, uploadsDir string, maxVideoDurationMinutes int) *Ingest {
	return &Ingest{
		store:      st,
		bus:        bus,
		media:      media,
		analyzer:   analyzer,
		uploadsDir: uploadsDir,
		maxMinutes: maxVideoDurationMinutes,
	}
}

// Run executes the full ingest state machine: download, probe, analysis,
// clip registration. Progress is monotonic; failure preserves any clips
// already registered.
func (p *Ingest) Run(ctx context.Context, projectID uuid.UUID, sourceURL string) {
	last := 0
	advance := func(pct int, msg string) {
		if pct < last {
			pct = last
		}
		last = pct
		status := models.ProjectStatusProcessing
		p.store.Update(projectID, store.ProjectUpdate{Status: &status, Progress: &pct, ProgressMsg: &msg})
		p.bus.Publish(projectID, models.ProgressEvent{Progress: pct, Message: msg, Status: status})
		log.Printf("[Ingest:%s] %d%% - %s", projectID, pct, msg)
	}

	advance(2, "Downloading video...")
	destDir := filepath.Join(p.uploadsDir, projectID.String())
	videoPath, err := p.media.Download(ctx, sourceURL, destDir, func(frac float64) {
		advance(int(frac*downloadBandEnd), fmt.Sprintf("Downloading... %d%%", int(frac*100)))
	})
	if err != nil {
		p.fail(projectID, last, fmt.Errorf("download failed: %w", err))
		return
	}
	p.store.Update(projectID, store.ProjectUpdate{VideoPath: &videoPath})

	probe, err := p.media.Probe(ctx, videoPath)
	if err != nil {
		p.fail(projectID, last, fmt.Errorf("probe failed: %w", err))
		return
	}
	if p.maxMinutes > 0 && probe.Duration > float64(p.maxMinutes*60) {
		p.fail(projectID, last, fmt.Errorf("video too long, max %d minutes", p.maxMinutes))
		return
	}

	advance(probeProgress, "Starting AI analysis...")
	result, err := p.analyzer.Analyze(ctx, videoPath, probe.Duration, func(pct int, msg string) {
		advance(probeProgress+pct*(analysisBandEnd-probeProgress)/100, msg)
	})
	if err != nil {
		p.fail(projectID, last, fmt.Errorf("analysis failed: %w", err))
		return
	}

	for _, clip := range result.Clips {
		clip.Reframe = true
		p.store.AddClip(projectID, clip)
	}

	done := 100
	status := models.ProjectStatusCompleted
	msg := "Done!"
	p.store.Update(projectID, store.ProjectUpdate{Status: &status, Progress: &done, ProgressMsg: &msg})

	finalMsg := fmt.Sprintf("Analysis complete! Found %d viral clips", len(result.Clips))
	if result.UsedFallbackMock {
		finalMsg += " (mock mode)"
	}
	finalMsg += "."

	final := models.ProgressEvent{Progress: 100, Message: finalMsg, Status: status}
	if project, ok := p.store.Get(projectID); ok {
		final.Clips = project.Clips
	}
	p.bus.Publish(projectID, final)
	log.Printf("[Ingest:%s] Completed with %d clips", projectID, len(result.Clips))
}

// fail marks the project errored at its last known progress. Clips already
// registered stay ready; nothing is rolled back.
func (p *Ingest) fail(projectID uuid.UUID, lastProgress int, cause error) {
	log.Printf("[Ingest:%s] %v", projectID, cause)
	status := models.ProjectStatusError
	msg := cause.Error()
	p.store.Update(projectID, store.ProjectUpdate{Status: &status, ProgressMsg: &msg})
	p.bus.Publish(projectID, models.ProgressEvent{
		Progress: lastProgress,
		Message:  "Error: " + cause.Error(),
		Status:   status,
	})
}
