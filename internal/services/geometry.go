package services

import "math"

// VerticalTargetRatio is the width/height ratio of the exported clips.
const VerticalTargetRatio = 9.0 / 16.0

// CropRect is the region of the source frame kept as the sharp foreground
// layer when reframing to vertical.
type CropRect struct {
	Width  int
	Height int
	X      int
	Y      int
}

// CropFor computes a centered 9:16 crop for a source frame. Wide sources
// lose their sides; tall sources keep full width with a slight top bias,
// since faces usually sit above center. Heuristic only, no subject
// tracking.
func CropFor(srcWidth, srcHeight int) CropRect {
	srcRatio := float64(srcWidth) / float64(srcHeight)

	if srcRatio > VerticalTargetRatio {
		cropW := int(math.Floor(float64(srcHeight) * VerticalTargetRatio))
		return CropRect{
			Width:  cropW,
			Height: srcHeight,
			X:      (srcWidth - cropW) / 2,
			Y:      0,
		}
	}

	return CropRect{
		Width:  srcWidth,
		Height: int(math.Floor(float64(srcWidth) / VerticalTargetRatio)),
		X:      0,
		Y:      int(math.Floor(float64(srcHeight) * 0.05)),
	}
}
