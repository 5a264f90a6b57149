package models

import (
	"time"

	"github.com/google/uuid"
)

// Clip lifecycle statuses.
const (
	ClipStatusReady       = "ready"
	ClipStatusExporting   = "exporting"
	ClipStatusExported    = "exported"
	ClipStatusExportError = "export_error"
)

// Category tags assigned by the analyzer.
var ClipCategories = []string{"educational", "emotional", "funny", "inspiring", "shocking", "controversial"}

// DefaultCaptionStyle is applied to clips that don't choose one explicitly.
const DefaultCaptionStyle = "viral-bold"

type Clip struct {
	ID              uuid.UUID     `json:"id"`
	Title           string        `json:"title"`
	Start           float64       `json:"start"`
	End             float64       `json:"end"`
	Status          string        `json:"status"` // "ready" | "exporting" | "exported" | "export_error"
	Exported        bool          `json:"exported"`
	Reframe         bool          `json:"reframe"`
	CaptionStyle    string        `json:"caption_style"`
	Hook            string        `json:"hook,omitempty"`
	Reason          string        `json:"reason,omitempty"`
	EngagementScore int           `json:"engagement_score,omitempty"` // 1-100 virality prediction
	Category        string        `json:"category,omitempty"`
	Transcript      string        `json:"transcript,omitempty"`
	Captions        []CaptionWord `json:"captions,omitempty"`
	Metadata        *ClipMetadata `json:"metadata,omitempty"`
	ExportProgress  int           `json:"export_progress"`
	ClipPath        *string       `json:"clip_path,omitempty"`
	ThumbPath       *string       `json:"thumb_path,omitempty"`
	FileSize        int64         `json:"file_size,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// CaptionWord is one word of a clip's caption track. Times are relative to the
// clip's own start so they line up with the trimmed output.
type CaptionWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ClipMetadata carries the generated title/hashtag/caption variants.
type ClipMetadata struct {
	Titles   []string `json:"titles"`
	Hashtags []string `json:"hashtags"`
	Caption  string   `json:"caption"`
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	return c.End - c.Start
}
