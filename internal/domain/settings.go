package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	SettingsTypeSVG = "svg"

	DefaultSVGWidth  = 100
	DefaultSVGHeight = 100

	// An RGBA render at the pixel limit takes 256 MiB.
	MaxSVGDimension = 16384
	MaxSVGPixels    = 64 << 20
)

var ErrSVGTooLarge = errors.New("svg render size too large")

// Settings carries per-conversion options. Only the SVG variant exists today;
// a nil Settings or a nil SVG means defaults.
type Settings struct {
	SVG *SVGSettings
}

type SVGSettings struct {
	Width  int
	Height int
}

// ParseError reports malformed settings JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parsing error: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type settingsEnvelope struct {
	Type   string `json:"type"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

func (s Settings) MarshalJSON() ([]byte, error) {
	if s.SVG == nil {
		return []byte("null"), nil
	}
	return json.Marshal(settingsEnvelope{
		Type:   SettingsTypeSVG,
		Width:  s.SVG.Width,
		Height: s.SVG.Height,
	})
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var env settingsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	s.SVG = nil
	if strings.EqualFold(strings.TrimSpace(env.Type), SettingsTypeSVG) {
		s.SVG = &SVGSettings{Width: env.Width, Height: env.Height}
	}
	return nil
}

// ParseSettings decodes settings JSON. Empty input and null yield nil. Unknown
// variant types are ignored.
func ParseSettings(data []byte) (*Settings, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &ParseError{Err: err}
	}
	if s.SVG == nil {
		return nil, nil
	}
	if err := s.Validate(); err != nil {
		return nil, &ParseError{Err: err}
	}
	return &s, nil
}

// Validate bounds the SVG render size so a small document cannot demand an
// arbitrarily large raster.
func (s *Settings) Validate() error {
	width, height := s.SVGDimensions()
	if width > MaxSVGDimension || height > MaxSVGDimension {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels per side", ErrSVGTooLarge, width, height, MaxSVGDimension)
	}
	if int64(width)*int64(height) > MaxSVGPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrSVGTooLarge, width, height, MaxSVGPixels)
	}
	return nil
}

// SVGDimensions returns the raster size for vector sources, falling back to
// the default on any axis that is unset or not positive.
func (s *Settings) SVGDimensions() (int, int) {
	width, height := DefaultSVGWidth, DefaultSVGHeight
	if s == nil || s.SVG == nil {
		return width, height
	}
	if s.SVG.Width > 0 {
		width = s.SVG.Width
	}
	if s.SVG.Height > 0 {
		height = s.SVG.Height
	}
	return width, height
}
