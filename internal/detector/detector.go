// Package detector runs the food detection model on an uploaded image.
//
// PIPELINE:
//
//	upload ──► Preprocess ──► Model.Infer ──► Postprocess ──► []Detection
//	           decode, RGB,   224x224 PNG in,  threshold, label,
//	           resize 224     raw rows out     round and clamp
//
// The model itself runs out of process (see detector/docker). This package
// only prepares its input and interprets its output.
package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// InputSize is the square edge, in pixels, the model was trained on.
const InputSize = 224

// ConfidenceThreshold is the minimum confidence (exclusive) for a detection
// to be reported.
const ConfidenceThreshold = 0.8

// MaxUploadBytes bounds the size of an uploaded image.
const MaxUploadBytes = 10 << 20

// ClassNames are the model's labels, indexed by class id.
var ClassNames = []string{"bean", "bitter gourd", "bottle gourd", "broccoli", "cabbage"}

// ErrInvalidImage is returned when the upload cannot be decoded.
var ErrInvalidImage = errors.New("detector: invalid image")

// Detection is one object found in the image. BBox is [x1, y1, x2, y2] in
// the 224x224 input space.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       [4]int  `json:"bbox"`
}

// Model runs inference on a preprocessed image and returns raw rows of
// [x1, y1, x2, y2, confidence, class_id, ...].
type Model interface {
	Infer(ctx context.Context, pngImage []byte) ([][]float64, error)
}

// Service ties preprocessing, the model and postprocessing together.
type Service struct {
	model  Model
	logger *slog.Logger
}

// New creates a detection Service.
func New(model Model, logger *slog.Logger) *Service {
	return &Service{model: model, logger: logger}
}

// Detect reads an image from r and returns the confident detections.
func (s *Service) Detect(ctx context.Context, r io.Reader) ([]Detection, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("detector: reading upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidImage, MaxUploadBytes)
	}

	input, err := Preprocess(data)
	if err != nil {
		return nil, err
	}

	rows, err := s.model.Infer(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("detector: running model: %w", err)
	}

	detections := Postprocess(rows)
	s.logger.Debug("detection finished",
		slog.Int("rows", len(rows)),
		slog.Int("detections", len(detections)),
	)
	return detections, nil
}

// Preprocess decodes a JPEG, PNG, GIF or WebP image, drops any alpha
// channel, resizes it to InputSize x InputSize and encodes it as PNG.
func Preprocess(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	// RGB conversion: keep the colour channels, discard transparency.
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			c := dst.NRGBAAt(x, y)
			c.A = 0xff
			dst.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("detector: encoding model input: %w", err)
	}
	return buf.Bytes(), nil
}

// Postprocess turns raw model rows into detections.
//
// Rows with fewer than six values are skipped. A row is kept when its
// confidence is above ConfidenceThreshold and its class id names a known
// class. Confidence is rounded to three decimals; box coordinates are
// rounded half to even and clamped to [0, InputSize].
func Postprocess(rows [][]float64) []Detection {
	detections := make([]Detection, 0)
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		x1, y1, x2, y2, conf := row[0], row[1], row[2], row[3], row[4]
		if math.IsNaN(row[5]) || math.IsInf(row[5], 0) {
			continue
		}
		classID := int(row[5])

		if !(conf > ConfidenceThreshold) || classID < 0 || classID >= len(ClassNames) {
			continue
		}

		detections = append(detections, Detection{
			Class:      ClassNames[classID],
			Confidence: math.Round(conf*1000) / 1000,
			BBox:       [4]int{clampCoord(x1), clampCoord(y1), clampCoord(x2), clampCoord(y2)},
		})
	}
	return detections
}

func clampCoord(v float64) int {
	r := math.RoundToEven(v)
	switch {
	case math.IsNaN(r) || r < 0:
		return 0
	case r > InputSize:
		return InputSize
	default:
		return int(r)
	}
}
