package handlers

import (
	"net/http"
	"os/exec"
	"time"
)

// HealthHandler reports process liveness plus availability of the external
// tools the pipelines shell out to.
type HealthHandler struct {
	geminiConfigured bool
	ffmpegPath       string
	ytdlpPath        string
}

func NewHealthHandler(geminiConfigured bool, ffmpegPath, ytdlpPath string) *HealthHandler {
	return &HealthHandler{
		geminiConfigured: geminiConfigured,
		ffmpegPath:       ffmpegPath,
		ytdlpPath:        ytdlpPath,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": map[string]bool{
			"gemini": h.geminiConfigured,
			"ffmpeg": toolAvailable(h.ffmpegPath),
			"ytdlp":  toolAvailable(h.ytdlpPath),
		},
	})
}

func toolAvailable(path string) bool {
	_, err := exec.LookPath(path)
	return err == nil
}
