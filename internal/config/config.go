package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Gemini AI (empty key enables the deterministic mock analyzer)
	GeminiAPIKey string

	// Storage
	UploadsDir string
	ClipsDir   string

	// External tools
	YtdlpPath   string
	FfmpegPath  string
	FfprobePath string

	// Limits
	MaxVideoDurationMinutes int
	MaxClipSeconds          int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                    getEnvOrDefault("PORT", "3001"),
		Env:                     getEnvOrDefault("ENV", "development"),
		GeminiAPIKey:            getEnvOrDefault("GEMINI_API_KEY", ""),
		UploadsDir:              getEnvOrDefault("UPLOADS_DIR", "./uploads"),
		ClipsDir:                getEnvOrDefault("CLIPS_DIR", "./clips"),
		YtdlpPath:               getEnvOrDefault("YTDLP_PATH", "yt-dlp"),
		FfmpegPath:              getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FfprobePath:             getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
		MaxVideoDurationMinutes: getEnvAsIntOrDefault("MAX_VIDEO_DURATION_MINUTES", 120),
		MaxClipSeconds:          getEnvAsIntOrDefault("MAX_CLIP_SECONDS", 180),
		FrontendURL:             getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	// Placeholder keys from a copied .env template mean "not configured".
	if cfg.GeminiAPIKey == "your_gemini_api_key_here" {
		cfg.GeminiAPIKey = ""
	}

	return cfg
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
