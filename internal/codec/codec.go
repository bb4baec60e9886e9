package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/dunamismax/pixelshift/internal/format"
)

var ErrUnsupported = errors.New("no codec for format")

// Error reports a failure inside a wrapped codec library.
type Error struct {
	Format format.Format
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("image library error: %s %s: %v", e.Op, e.Format, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Codec struct {
	Decode       func(r io.Reader) (image.Image, error)
	DecodeConfig func(r io.Reader) (image.Config, error)
	Encode       func(w io.Writer, img image.Image) error
}

func Lookup(f format.Format) (Codec, bool) {
	c, ok := registry[f]
	return c, ok
}

func Decode(data []byte, f format.Format) (img image.Image, err error) {
	c, ok := registry[f]
	if !ok || c.Decode == nil {
		return nil, &Error{Format: f, Op: "decode", Err: ErrUnsupported}
	}
	defer recoverAs(f, "decode", &err)

	img, err = c.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Format: f, Op: "decode", Err: err}
	}
	return img, nil
}

func DecodeConfig(data []byte, f format.Format) (cfg image.Config, err error) {
	c, ok := registry[f]
	if !ok || c.DecodeConfig == nil {
		return image.Config{}, &Error{Format: f, Op: "decode config", Err: ErrUnsupported}
	}
	defer recoverAs(f, "decode config", &err)

	cfg, err = c.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, &Error{Format: f, Op: "decode config", Err: err}
	}
	return cfg, nil
}

func Encode(w io.Writer, f format.Format, img image.Image) (err error) {
	c, ok := registry[f]
	if !ok || c.Encode == nil {
		return &Error{Format: f, Op: "encode", Err: ErrUnsupported}
	}
	defer recoverAs(f, "encode", &err)

	if err := c.Encode(w, img); err != nil {
		return &Error{Format: f, Op: "encode", Err: err}
	}
	return nil
}

// EncodeBytes encodes into a fresh buffer so a failed encode never leaks a
// partial result.
func EncodeBytes(f format.Format, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, f, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Some third-party decoders index past the end of truncated input instead of
// returning an error.
func recoverAs(f format.Format, op string, err *error) {
	if r := recover(); r != nil {
		*err = &Error{Format: f, Op: op, Err: fmt.Errorf("panic: %v", r)}
	}
}
