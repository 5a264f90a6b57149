package services

import (
	"fmt"
	"math"
	"strings"

	"clipforge-backend/internal/models"
)

// assStyle describes one caption look in ASS V4+ style terms.
type assStyle struct {
	FontName      string
	FontSize      int
	PrimaryColour string
	OutlineColour string
	Bold          int
	Italic        int
	Outline       int
	Shadow        int
	Alignment     int
}

var assStyles = map[string]assStyle{
	"viral-bold": {
		FontName:      "Impact",
		FontSize:      52,
		PrimaryColour: "&H00FFFFFF",
		OutlineColour: "&H00000000",
		Bold:          -1,
		Italic:        -1,
		Outline:       3,
		Shadow:        2,
		Alignment:     2,
	},
	"minimal": {
		FontName:      "Arial",
		FontSize:      38,
		PrimaryColour: "&H00FFFFFF",
		OutlineColour: "&H80000000",
		Outline:       1,
		Alignment:     2,
	},
	"neon-glow": {
		FontName:      "Arial Black",
		FontSize:      48,
		PrimaryColour: "&H00FFFF00",
		OutlineColour: "&H0000FFFF",
		Bold:          -1,
		Outline:       4,
		Shadow:        4,
		Alignment:     2,
	},
	"cinematic": {
		FontName:      "Georgia",
		FontSize:      32,
		PrimaryColour: "&H00FFFFFF",
		OutlineColour: "&H00000000",
		Alignment:     2,
	},
}

// defaultCaptionSpan covers words that arrive without an explicit end time.
const defaultCaptionSpan = 0.4

// RenderASS builds a complete ASS subtitle document from word-level caption
// timings. Unknown style names fall back to the default bold look. Each word
// becomes one upper-cased dialogue event.
func RenderASS(words []models.CaptionWord, styleName string) string {
	s, ok := assStyles[styleName]
	if !ok {
		s = assStyles[models.DefaultCaptionStyle]
	}

	var b strings.Builder
	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	b.WriteString("PlayResX: 1080\n")
	b.WriteString("PlayResY: 1920\n\n")
	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Default,%s,%d,%s,%s,&H00000000,%d,%d,0,0,100,100,0,0,1,%d,%d,%d,60,60,120,1\n\n",
		s.FontName, s.FontSize, s.PrimaryColour, s.OutlineColour, s.Bold, s.Italic, s.Outline, s.Shadow, s.Alignment)
	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, w := range words {
		end := w.End
		if end <= w.Start {
			end = w.Start + defaultCaptionSpan
		}
		text := strings.TrimSpace(strings.ToUpper(w.Word))
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(w.Start), formatASSTime(end), text)
	}

	return b.String()
}

// formatASSTime renders seconds as H:MM:SS.CC (centisecond precision).
func formatASSTime(sec float64) string {
	h := int(sec) / 3600
	m := (int(sec) % 3600) / 60
	s := int(sec) % 60
	cs := int(math.Round(math.Mod(sec, 1) * 100))
	if cs == 100 {
		cs = 99
	}
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}
