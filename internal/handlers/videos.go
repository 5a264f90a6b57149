package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clipforge-backend/internal/middleware"
	"clipforge-backend/internal/models"
	"clipforge-backend/internal/services"
	"clipforge-backend/internal/store"
	"clipforge-backend/internal/websocket"
)

// VideoInfoProvider resolves source metadata without downloading.
type VideoInfoProvider interface {
	GetVideoInfo(ctx context.Context, url string) (*models.VideoInfo, error)
}

// IngestRunner runs the full ingestion pipeline for one project.
type IngestRunner interface {
	Run(ctx context.Context, projectID uuid.UUID, sourceURL string)
}

// ExportRunner runs the export pipeline for one clip.
type ExportRunner interface {
	Run(ctx context.Context, projectID, clipID uuid.UUID)
}

type VideoHandler struct {
	store          *store.Store
	youtube        VideoInfoProvider
	ingest         IngestRunner
	export         ExportRunner
	hub            *websocket.Hub
	maxVideoMins   int
	maxClipSeconds int
}

func NewVideoHandler(st *store.Store, youtube VideoInfoProvider, ingest IngestRunner, export ExportRunner, hub *websocket.Hub, maxVideoMins, maxClipSeconds int) *VideoHandler {
	return &VideoHandler{
		store:          st,
		youtube:        youtube,
		ingest:         ingest,
		export:         export,
		hub:            hub,
		maxVideoMins:   maxVideoMins,
		maxClipSeconds: maxClipSeconds,
	}
}

// Info returns metadata for a source URL without starting a download.
func (h *VideoHandler) Info(w http.ResponseWriter, r *http.Request) {
	var req models.VideoInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "URL is required", r))
		return
	}
	if !services.IsSupportedURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid YouTube/Twitch URL", r))
		return
	}

	info, err := h.youtube.GetVideoInfo(r.Context(), req.URL)
	if err != nil {
		log.Printf("[Videos] Info lookup failed for %s: %v", req.URL, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INFO_FAILED", "Failed to fetch video info. Check the URL and try again.", r))
		return
	}
	if h.maxVideoMins > 0 && info.Duration > h.maxVideoMins*60 {
		writeJSON(w, http.StatusBadRequest, errorResp("VIDEO_TOO_LONG",
			fmt.Sprintf("Video too long. Max %d minutes.", h.maxVideoMins), r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "info": info})
}

// Process creates a project and kicks off ingestion detached. The project
// ID is returned immediately with 202.
func (h *VideoHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req models.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "URL is required", r))
		return
	}
	if !services.IsSupportedURL(req.URL) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid URL", r))
		return
	}

	// Best-effort title lookup; ingestion proceeds regardless.
	title := "New Project"
	if info, err := h.youtube.GetVideoInfo(r.Context(), req.URL); err == nil && info.Title != "" {
		title = info.Title
	}

	project := h.store.Create(store.ProjectSeed{
		UserID:    req.UserID,
		Title:     title,
		SourceURL: req.URL,
	})

	go h.ingest.Run(context.Background(), project.ID, req.URL)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success":    true,
		"project_id": project.ID,
		"project":    project,
	})
}

// List returns all projects, optionally filtered by user_id, newest first.
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	projects := h.store.List(r.URL.Query().Get("user_id"))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "projects": projects})
}

// Get returns one project with its clips.
func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	project, found := h.store.Get(projectID)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Project not found", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "project": project})
}

// Progress upgrades to a WebSocket stream of the project's live events.
func (h *VideoHandler) Progress(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	h.hub.HandleProgress(w, r, projectID)
}

// Cut creates a manually-defined clip from explicit timestamps.
func (h *VideoHandler) Cut(w http.ResponseWriter, r *http.Request) {
	projectID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	project, found := h.store.Get(projectID)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Project not found", r))
		return
	}
	if project.VideoPath == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("SOURCE_UNAVAILABLE", "Video not yet downloaded", r))
		return
	}

	var req models.CutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.Start == nil || req.End == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "start and end (seconds) are required", r))
		return
	}
	if *req.End <= *req.Start {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "end must be after start", r))
		return
	}
	if *req.End-*req.Start > float64(h.maxClipSeconds) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR",
			fmt.Sprintf("Clip max length is %d seconds", h.maxClipSeconds), r))
		return
	}

	title := req.Title
	if title == "" {
		title = "Manual Clip"
	}
	style := req.CaptionStyle
	if style == "" {
		style = models.DefaultCaptionStyle
	}

	clip, _ := h.store.AddClip(projectID, models.Clip{
		Title:        title,
		Start:        *req.Start,
		End:          *req.End,
		Status:       models.ClipStatusReady,
		Reframe:      true,
		CaptionStyle: style,
		Category:     "manual",
	})

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "clip": clip})
}

// UpdateClip patches clip fields; absent fields are left untouched.
func (h *VideoHandler) UpdateClip(w http.ResponseWriter, r *http.Request) {
	projectID, clipID, ok := parseClipIDs(w, r)
	if !ok {
		return
	}

	var req models.UpdateClipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.Start != nil && req.End != nil && *req.End <= *req.Start {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "end must be after start", r))
		return
	}

	clip, found := h.store.UpdateClip(projectID, clipID, store.ClipUpdate{
		Title:        req.Title,
		Start:        req.Start,
		End:          req.End,
		Reframe:      req.Reframe,
		CaptionStyle: req.CaptionStyle,
	})
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Clip not found", r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "clip": clip})
}

// DeleteClip removes a clip and discards its exported artifacts
// (best-effort on disk).
func (h *VideoHandler) DeleteClip(w http.ResponseWriter, r *http.Request) {
	projectID, clipID, ok := parseClipIDs(w, r)
	if !ok {
		return
	}

	clip, found := h.store.GetClip(projectID, clipID)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Clip not found", r))
		return
	}

	h.store.RemoveClip(projectID, clipID)

	if clip.ClipPath != nil {
		os.Remove(*clip.ClipPath)
	}
	if clip.ThumbPath != nil {
		os.Remove(*clip.ThumbPath)
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Export starts the export pipeline for one clip, detached. Re-issuing
// while an export is already running is rejected.
func (h *VideoHandler) Export(w http.ResponseWriter, r *http.Request) {
	projectID, clipID, ok := parseClipIDs(w, r)
	if !ok {
		return
	}
	project, found := h.store.Get(projectID)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Project not found", r))
		return
	}
	if _, found := h.store.GetClip(projectID, clipID); !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Clip not found", r))
		return
	}
	if project.VideoPath == nil {
		writeJSON(w, http.StatusBadRequest, errorResp("SOURCE_UNAVAILABLE", "Source video not available", r))
		return
	}

	// Claim under the store's write lock so racing requests cannot both
	// observe a non-exporting clip.
	started, found := h.store.BeginExport(projectID, clipID)
	if !found {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Clip not found", r))
		return
	}
	if !started {
		writeJSON(w, http.StatusConflict, errorResp("EXPORT_IN_PROGRESS", "Clip is already being exported", r))
		return
	}

	go h.export.Run(context.Background(), projectID, clipID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Export started",
		"clip_id": clipID,
	})
}

var unsafeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Download serves the exported clip file with a sanitized filename.
func (h *VideoHandler) Download(w http.ResponseWriter, r *http.Request) {
	projectID, clipID, ok := parseClipIDs(w, r)
	if !ok {
		return
	}
	clip, found := h.store.GetClip(projectID, clipID)
	if !found || clip.ClipPath == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Clip not exported yet", r))
		return
	}
	if _, err := os.Stat(*clip.ClipPath); err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "File not found", r))
		return
	}

	name := unsafeFilenameRe.ReplaceAllString(clip.Title, "_")
	if len(name) > 40 {
		name = name[:40]
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "clipforge_"+name+".mp4"))
	http.ServeFile(w, r, *clip.ClipPath)
}

// Thumbnail serves the exported clip's still frame.
func (h *VideoHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	projectID, clipID, ok := parseClipIDs(w, r)
	if !ok {
		return
	}
	clip, found := h.store.GetClip(projectID, clipID)
	if !found || clip.ThumbPath == nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Thumbnail not available", r))
		return
	}
	if _, err := os.Stat(*clip.ThumbPath); err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Thumbnail not available", r))
		return
	}
	http.ServeFile(w, r, *clip.ThumbPath)
}

// ── Helpers ──────────────────────────────────────────────────────────

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid "+param, r))
		return uuid.Nil, false
	}
	return id, true
}

func parseClipIDs(w http.ResponseWriter, r *http.Request) (projectID, clipID uuid.UUID, ok bool) {
	projectID, ok = parseID(w, r, "pid")
	if !ok {
		return
	}
	clipID, ok = parseID(w, r, "cid")
	return
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	}
}
