package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/detector"
	"github.com/sakif/foodlens/internal/metrics"
)

// Detector finds food items in an uploaded image. *detector.Service
// implements it.
type Detector interface {
	Detect(ctx context.Context, r io.Reader) ([]detector.Detection, error)
}

// DetectHandler serves the image detection endpoint.
type DetectHandler struct {
	detector Detector
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewDetectHandler creates a new DetectHandler.
func NewDetectHandler(d Detector, rec metrics.Recorder, logger *slog.Logger) *DetectHandler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &DetectHandler{
		detector: d,
		metrics:  rec,
		logger:   logger,
	}
}

// DetectResponse lists what was found in the image.
type DetectResponse struct {
	Detections []detector.Detection `json:"detections"`
}

// HandlePredict runs the detector on the multipart field "file".
//
// HTTP: POST /predict
//
// Decoding or model failures are reported as a generic 500; the error
// itself only goes to the log.
func (h *DetectHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	// Leave headroom for the multipart envelope around the image.
	r.Body = http.MaxBytesReader(w, r.Body, detector.MaxUploadBytes+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "An image file is required"))
		return
	}
	defer file.Close()

	h.logger.Info("running detection",
		slog.String("filename", header.Filename),
		slog.Int64("size", header.Size),
	)

	detections, err := h.detector.Detect(r.Context(), file)
	if err != nil {
		h.logger.Error("detection failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	for _, d := range detections {
		h.metrics.Detection(d.Class)
	}

	writeJSON(w, http.StatusOK, DetectResponse{Detections: detections})
}
