package services

import "testing"

func TestIsSupportedURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://youtu.be/dQw4w9WgXcQ", true},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", true},
		{"https://www.twitch.tv/videos/123456789", true},
		{"http://youtube.com/watch?v=dQw4w9WgXcQ", true},
		{"https://www.youtube.com/watch?v=short", false},
		{"https://vimeo.com/123456", false},
		{"not a url", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsSupportedURL(tt.url); got != tt.want {
			t.Errorf("IsSupportedURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		sec  int
		want string
	}{
		{0, "0:00"},
		{59, "0:59"},
		{75, "1:15"},
		{3600, "60:00"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.sec); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}
