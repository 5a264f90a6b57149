package models

// Request payloads for the video API.

type VideoInfoRequest struct {
	URL string `json:"url"`
}

type ProcessRequest struct {
	URL    string `json:"url"`
	UserID string `json:"user_id"`
}

type CutRequest struct {
	Start        *float64 `json:"start"`
	End          *float64 `json:"end"`
	Title        string   `json:"title"`
	CaptionStyle string   `json:"caption_style"`
}

type UpdateClipRequest struct {
	Title        *string  `json:"title"`
	Start        *float64 `json:"start"`
	End          *float64 `json:"end"`
	Reframe      *bool    `json:"reframe"`
	CaptionStyle *string  `json:"caption_style"`
}
