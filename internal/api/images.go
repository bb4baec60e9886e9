package api

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/dunamismax/pixelshift/internal/codec"
	"github.com/dunamismax/pixelshift/internal/domain"
	"github.com/dunamismax/pixelshift/internal/format"
	"github.com/dunamismax/pixelshift/internal/metadata"
	"github.com/dunamismax/pixelshift/internal/pipeline"
	"github.com/dunamismax/pixelshift/internal/source"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type pixelsResponse struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	// AspectRatio is null when the image has no height.
	AspectRatio *float64 `json:"aspect_ratio"`
	ColorDepth  int      `json:"color_depth"`
	Pixels      []byte   `json:"pixels"`
}

func (s *Server) handleFormats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"formats": format.Capabilities()})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	sourceType := r.URL.Query().Get("source_type")
	targetType := r.URL.Query().Get("target_type")

	target, known := format.Resolve(targetType)
	if !known {
		target = format.PNG
	}
	if target.IsVector() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported target_type: %s", targetType))
		return
	}

	settings, err := domain.ParseSettings([]byte(r.Header.Get(SettingsHeader)))
	if err != nil {
		s.writeImageError(w, r, err)
		return
	}

	data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	annotate(r, sourceType, target.MIME(), len(data))

	out, err := pipeline.Convert(data, sourceType, targetType, settings, nil)
	if err != nil {
		s.writeImageError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", target.MIME())
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "output."+target.Extension()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	sourceType := r.URL.Query().Get("source_type")
	data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	annotate(r, sourceType, "", len(data))

	md, err := pipeline.Metadata(data, sourceType, nil)
	if err != nil {
		s.writeImageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handlePixels(w http.ResponseWriter, r *http.Request) {
	sourceType := r.URL.Query().Get("source_type")
	data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	annotate(r, sourceType, "", len(data))

	px, err := pipeline.Pixels(data, sourceType)
	if err != nil {
		s.writeImageError(w, r, err)
		return
	}

	resp := pixelsResponse{
		Width:      px.Width,
		Height:     px.Height,
		ColorDepth: px.ColorDepth,
		Pixels:     px.Pixels,
	}
	if !math.IsInf(px.AspectRatio, 0) && !math.IsNaN(px.AspectRatio) {
		ratio := px.AspectRatio
		resp.AspectRatio = &ratio
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("image exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return nil, false
	}
	return data, true
}

func (s *Server) writeImageError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForImageError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("image request failed path=%s err=%v", r.URL.Path, err)
	}
	span := trace.SpanFromContext(r.Context())
	span.RecordError(err)
	writeError(w, status, err.Error())
}

func statusForImageError(err error) int {
	var (
		codecErr   *codec.Error
		parseErr   *domain.ParseError
		svgErr     *source.SVGError
		decoderErr *metadata.DecoderError
	)
	switch {
	case errors.Is(err, source.ErrUnknownFileType):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &parseErr), errors.As(err, &svgErr), errors.As(err, &decoderErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &codecErr):
		if codecErr.Op == "encode" {
			return http.StatusInternalServerError
		}
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func annotate(r *http.Request, sourceType, targetType string, size int) {
	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("image.source_type", sourceType),
		attribute.String("image.target_type", targetType),
		attribute.Int("image.bytes", size),
	)
}
