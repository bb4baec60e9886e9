package source

import (
	"errors"
	"image"

	"github.com/dunamismax/pixelshift/internal/codec"
	"github.com/dunamismax/pixelshift/internal/format"
)

var ErrUnknownFileType = errors.New("unknown file type")

type Kind int

const (
	Raster Kind = iota + 1
	Vector
)

// Source is a fully loaded input: a decoded raster or retained SVG bytes.
type Source struct {
	format format.Format
	kind   Kind
	image  image.Image
	svg    []byte
}

// Raw is an input classified by format but not decoded.
type Raw struct {
	Format format.Format
	Data   []byte
}

func (s *Source) Format() format.Format { return s.format }

func (s *Source) Kind() Kind { return s.kind }

func (s *Source) IsVector() bool { return s.kind == Vector }

// Image returns the decoded raster, or nil for vector sources.
func (s *Source) Image() image.Image { return s.image }

func (r *Raw) IsVector() bool { return r.Format.IsVector() }

// Load decodes data as f when known is true and otherwise sniffs the format
// from the content first. SVG input is kept as bytes until rasterized.
func Load(data []byte, f format.Format, known bool) (*Source, error) {
	f, err := classify(data, f, known)
	if err != nil {
		return nil, err
	}
	if f.IsVector() {
		return &Source{format: f, kind: Vector, svg: data}, nil
	}

	img, err := codec.Decode(data, f)
	if err != nil {
		return nil, err
	}
	return &Source{format: f, kind: Raster, image: img}, nil
}

func LoadRaw(data []byte, f format.Format, known bool) (*Raw, error) {
	f, err := classify(data, f, known)
	if err != nil {
		return nil, err
	}
	return &Raw{Format: f, Data: data}, nil
}

func classify(data []byte, f format.Format, known bool) (format.Format, error) {
	if known {
		return f, nil
	}
	sniffed, ok := format.Sniff(data)
	if !ok {
		return 0, ErrUnknownFileType
	}
	return sniffed, nil
}
