// Package video provides the frame sources the recognizer reads from: a
// polled HTTP camera snapshot and a directory of recorded stills.
package video

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/face-recognizer/internal/recognition"
)

// Common errors.
var (
	ErrNotOpen   = errors.New("video source is not open")
	ErrNotReady  = errors.New("no frame available yet")
	ErrExhausted = errors.New("no more frames")
	ErrTooLarge  = errors.New("snapshot too large")
)

const jpegQuality = 90

// decodeFrame validates encoded image data and turns it into a JPEG frame.
// JPEG input is kept as is; other formats are re-encoded.
func decodeFrame(data []byte, seq uint64, capturedAt time.Time) (recognition.Frame, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return recognition.Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}

	if format != "jpeg" {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return recognition.Frame{}, fmt.Errorf("failed to encode frame: %w", err)
		}
		data = buf.Bytes()
	}

	bounds := img.Bounds()
	return recognition.Frame{
		Seq:        seq,
		Data:       data,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: capturedAt,
	}, nil
}
