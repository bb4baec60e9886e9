package codec

import (
	"bytes"
	"errors"
	"image"
	"io"

	"github.com/dunamismax/pixelshift/internal/bitmap"
	"github.com/mrjoshuak/go-openexr/exr"
)

type sizedReaderAt interface {
	io.ReaderAt
	Size() int64
}

func exrSource(r io.Reader) (io.ReaderAt, int64, error) {
	if ra, ok := r.(sizedReaderAt); ok {
		return ra, ra.Size(), nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

func decodeEXR(r io.Reader) (image.Image, error) {
	ra, size, err := exrSource(r)
	if err != nil {
		return nil, err
	}
	return exr.Decode(ra, size)
}

func decodeEXRConfig(r io.Reader) (image.Config, error) {
	ra, size, err := exrSource(r)
	if err != nil {
		return image.Config{}, err
	}
	f, err := exr.OpenReader(ra, size)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()

	h := f.Header(0)
	if h == nil {
		return image.Config{}, errors.New("exr: file has no parts")
	}
	window := h.DataWindow()
	return image.Config{
		ColorModel: (&exr.RGBAImage{}).ColorModel(),
		Width:      int(window.Width()),
		Height:     int(window.Height()),
	}, nil
}

func encodeEXR(w io.Writer, img image.Image) error {
	m, ok := img.(*exr.RGBAImage)
	if !ok {
		m = bitmap.ToRGBA32F(img)
	}
	if ws, ok := w.(io.WriteSeeker); ok {
		return exr.Encode(ws, m)
	}

	var buf seekBuffer
	if err := exr.Encode(&buf, m); err != nil {
		return err
	}
	_, err := w.Write(buf.data)
	return err
}

// seekBuffer is an in-memory io.WriteSeeker; the EXR writer patches its
// offset table after the scanlines are written.
type seekBuffer struct {
	data []byte
	pos  int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		if end > int64(cap(b.data)) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = b.pos + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	b.pos = next
	return next, nil
}
