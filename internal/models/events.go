package models

import "github.com/google/uuid"

// ProgressEvent is one update pushed over a project's progress stream.
type ProgressEvent struct {
	Progress   int              `json:"progress"`
	Message    string           `json:"msg"`
	Status     string           `json:"status,omitempty"`
	ClipExport *ClipExportEvent `json:"clip_export,omitempty"`
	Clips      []Clip           `json:"clips,omitempty"`
}

// ClipExportEvent is the per-clip sub-event carried during an export run.
type ClipExportEvent struct {
	ClipID   uuid.UUID `json:"clip_id"`
	Progress int       `json:"progress"`
	Message  string    `json:"msg,omitempty"`
	Done     bool      `json:"done,omitempty"`
}

// Terminal reports whether the event must be delivered if at all possible:
// project completion/failure and per-clip completion.
func (e ProgressEvent) Terminal() bool {
	if e.Status == ProjectStatusCompleted || e.Status == ProjectStatusError {
		return true
	}
	return e.ClipExport != nil && e.ClipExport.Done
}

// API error envelope, shared by all handlers.

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
