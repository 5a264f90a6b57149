package models

import (
	"time"

	"github.com/google/uuid"
)

// Project lifecycle statuses.
const (
	ProjectStatusQueued     = "queued"
	ProjectStatusProcessing = "processing"
	ProjectStatusCompleted  = "completed"
	ProjectStatusError      = "error"
)

type Project struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	SourceURL   string    `json:"source_url"`
	Status      string    `json:"status"` // "queued" | "processing" | "completed" | "error"
	Progress    int       `json:"progress"`
	ProgressMsg string    `json:"progress_msg"`
	VideoPath   *string   `json:"video_path"`
	Clips       []Clip    `json:"clips"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type VideoInfo struct {
	VideoID      string `json:"video_id,omitempty"`
	Title        string `json:"title"`
	Duration     int    `json:"duration_seconds"`
	DurationStr  string `json:"duration_str"`
	Uploader     string `json:"uploader,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}
