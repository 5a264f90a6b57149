package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"clipforge-backend/internal/events"
	"clipforge-backend/internal/models"
	"clipforge-backend/internal/store"
)

// Export stage boundaries. A skipped stage's band is absorbed by the next
// stage, which starts at the last reached boundary.
const (
	exportStartProgress = 5
	trimBandEnd         = 40
	reframeBandEnd      = 70
	captionsBandEnd     = 92
	thumbnailBandEnd    = 100
)

// Export turns one clip definition into a finished vertical video with
// thumbnail. One Run per clip; runs for different clips may overlap.
type Export struct {
	store    *store.Store
	bus      *events.Bus
	media    MediaOps
	clipsDir string
}

func NewExport(st *store.Store, bus *events.Bus, media MediaOps, clipsDir string) *Export {
	return &Export{store: st, bus: bus, media: media, clipsDir: clipsDir}
}

// Run executes trim, optional reframe, optional caption burn, and
// thumbnail extraction for one clip. On success the clip's artifacts
// replace any prior export; on failure the clip lands in export_error
// with intermediates left on disk for inspection.
func (p *Export) Run(ctx context.Context, projectID, clipID uuid.UUID) {
	project, ok := p.store.Get(projectID)
	if !ok || project.VideoPath == nil {
		log.Printf("[Export:%s] Project missing or has no source video", clipID)
		return
	}
	clip, ok := p.store.GetClip(projectID, clipID)
	if !ok {
		log.Printf("[Export:%s] Clip not found in project %s", clipID, projectID)
		return
	}

	last := 0
	advance := func(pct int, msg string) {
		if pct < last {
			pct = last
		}
		last = pct
		p.store.UpdateClip(projectID, clipID, store.ClipUpdate{ExportProgress: &pct})
		p.bus.Publish(projectID, models.ProgressEvent{
			ClipExport: &models.ClipExportEvent{ClipID: clipID, Progress: pct, Message: msg},
		})
	}

	outDir := filepath.Join(p.clipsDir, projectID.String())
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		p.fail(projectID, clipID, last, err)
		return
	}

	rawPath := filepath.Join(outDir, clipID.String()+"_raw.mp4")
	framedPath := filepath.Join(outDir, clipID.String()+"_framed.mp4")
	finalPath := filepath.Join(outDir, clipID.String()+"_final.mp4")
	thumbPath := filepath.Join(outDir, clipID.String()+"_thumb.jpg")

	advance(exportStartProgress, "Cutting clip...")
	err := p.media.Trim(ctx, *project.VideoPath, clip.Start, clip.End, rawPath,
		bandProgress(advance, exportStartProgress, trimBandEnd, "Cutting..."))
	if err != nil {
		p.fail(projectID, clipID, last, fmt.Errorf("trim failed: %w", err))
		return
	}

	currentPath := rawPath
	low := trimBandEnd

	if clip.Reframe {
		advance(low, "Reframing to 9:16...")
		err = p.media.ReframeVertical(ctx, currentPath, framedPath,
			bandProgress(advance, low, reframeBandEnd, "Reframing..."))
		if err != nil {
			p.fail(projectID, clipID, last, fmt.Errorf("reframe failed: %w", err))
			return
		}
		currentPath = framedPath
		low = reframeBandEnd
	}

	if len(clip.Captions) > 0 {
		advance(low, "Burning subtitles...")
		err = p.media.BurnCaptions(ctx, currentPath, clip.Captions, clip.CaptionStyle, finalPath,
			bandProgress(advance, low, captionsBandEnd, "Adding subtitles..."))
		if err != nil {
			p.fail(projectID, clipID, last, fmt.Errorf("caption burn failed: %w", err))
			return
		}
		currentPath = finalPath
		low = captionsBandEnd
	}

	advance(low, "Generating thumbnail...")
	if err := p.media.Thumbnail(ctx, currentPath, 1, thumbPath); err != nil {
		p.fail(projectID, clipID, last, fmt.Errorf("thumbnail failed: %w", err))
		return
	}

	// Best-effort cleanup of superseded intermediates.
	for _, intermediate := range []string{rawPath, framedPath} {
		if intermediate != currentPath {
			os.Remove(intermediate)
		}
	}

	var fileSize int64
	if stat, err := os.Stat(currentPath); err == nil {
		fileSize = stat.Size()
	}

	done := 100
	status := models.ClipStatusExported
	exported := true
	p.store.UpdateClip(projectID, clipID, store.ClipUpdate{
		Status:         &status,
		Exported:       &exported,
		ExportProgress: &done,
		ClipPath:       &currentPath,
		ThumbPath:      &thumbPath,
		FileSize:       &fileSize,
	})

	p.bus.Publish(projectID, models.ProgressEvent{
		ClipExport: &models.ClipExportEvent{ClipID: clipID, Progress: 100, Message: "Export complete!", Done: true},
	})
	log.Printf("[Export:%s] Exported %s (%d bytes)", clipID, filepath.Base(currentPath), fileSize)
}

// fail marks the clip export_error and leaves completed intermediates on
// disk for diagnosis. No artifact fields are populated.
func (p *Export) fail(projectID, clipID uuid.UUID, lastProgress int, cause error) {
	log.Printf("[Export:%s] %v", clipID, cause)
	status := models.ClipStatusExportError
	p.store.UpdateClip(projectID, clipID, store.ClipUpdate{Status: &status})
	p.bus.Publish(projectID, models.ProgressEvent{
		ClipExport: &models.ClipExportEvent{
			ClipID:   clipID,
			Progress: lastProgress,
			Message:  "Export failed: " + cause.Error(),
			Done:     true,
		},
	})
}

// bandProgress maps an operation's [0,1] fraction into the [low,high]
// stage band.
func bandProgress(advance func(int, string), low, high int, msg string) func(float64) {
	return func(frac float64) {
		advance(low+int(frac*float64(high-low)), msg)
	}
}
