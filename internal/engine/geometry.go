package engine

import "github.com/kozaktomas/face-recognizer/internal/recognition"

// cornerBox converts an engine bbox [x1, y1, x2, y2], measured on the uploaded
// image, to a source-frame Box. Detectors report boxes that spill past the
// image edge; they are clipped to width x height when the frame size is known.
// ok is false for malformed or empty boxes.
func cornerBox(bbox []float64, scale float64, width, height int) (box recognition.Box, ok bool) {
	if len(bbox) != 4 {
		return recognition.Box{}, false
	}
	x1, y1 := bbox[0]*scale, bbox[1]*scale
	x2, y2 := bbox[2]*scale, bbox[3]*scale

	if width > 0 && height > 0 {
		x1, x2 = clamp(x1, float64(width)), clamp(x2, float64(width))
		y1, y2 = clamp(y1, float64(height)), clamp(y2, float64(height))
	}
	if x2 <= x1 || y2 <= y1 {
		return recognition.Box{}, false
	}
	return recognition.Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}, true
}

func clamp(v, upper float64) float64 {
	return min(max(v, 0), upper)
}
