package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bep/imagemeta"
	"github.com/dunamismax/pixelshift/internal/format"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// ExifError reports embedded metadata that could not be parsed at all.
type ExifError struct {
	Err error
}

func (e *ExifError) Error() string {
	return "exif error: " + e.Err.Error()
}

func (e *ExifError) Unwrap() error {
	return e.Err
}

// exifResult holds either parsed fields or diagnostics, never both. Both empty
// means the image carries no EXIF.
type exifResult struct {
	fields      map[string]string
	diagnostics []string
}

func failed(err error) exifResult {
	return exifResult{diagnostics: []string{(&ExifError{Err: err}).Error()}}
}

var imagemetaFormats = map[format.Format]imagemeta.ImageFormat{
	format.PNG:  imagemeta.PNG,
	format.WebP: imagemeta.WebP,
	format.AVIF: imagemeta.AVIF,
}

func readEXIF(f format.Format, data []byte, dec Decoder) exifResult {
	switch f {
	case format.JPEG, format.TIFF:
		return decodeGoexif(data)
	}
	if imf, ok := imagemetaFormats[f]; ok {
		return decodeImagemeta(data, imf)
	}

	blob, err := dec.RawEXIF()
	if err != nil {
		return failed(err)
	}
	if blob == nil {
		return exifResult{}
	}
	return decodeGoexif(blob)
}

func decodeGoexif(data []byte) exifResult {
	x, err := exif.Decode(bytes.NewReader(data))
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), isMissingExifMarker(err):
		return exifResult{}
	case x != nil && !exif.IsCriticalError(err):
		return exifResult{diagnostics: splitDiagnostics(err.Error())}
	default:
		return failed(err)
	}

	w := fieldWalker{}
	if err := x.Walk(w); err != nil {
		return failed(err)
	}
	return exifResult{fields: w}
}

// goexif only looks at the first APP1 segment; an XMP packet there means the
// file has no EXIF it can reach.
func isMissingExifMarker(err error) bool {
	return strings.Contains(err.Error(), "failed to find exif intro marker")
}

func splitDiagnostics(msg string) []string {
	var out []string
	for _, line := range strings.Split(msg, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

type fieldWalker map[string]string

func (w fieldWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	w[string(name)] = display(string(name), tagValue(tag))
	return nil
}

func tagValue(tag *tiff.Tag) exifValue {
	v := exifValue{raw: tag.String()}
	switch tag.Format() {
	case tiff.StringVal:
		if s, err := tag.StringVal(); err == nil {
			v.raw = strings.TrimRight(s, "\x00 ")
		}
	case tiff.IntVal:
		for i := 0; i < int(tag.Count); i++ {
			n, err := tag.Int64(i)
			if err != nil {
				return exifValue{raw: v.raw}
			}
			v.ints = append(v.ints, n)
		}
	case tiff.RatVal:
		for i := 0; i < int(tag.Count); i++ {
			num, den, err := tag.Rat2(i)
			if err != nil {
				return exifValue{raw: v.raw}
			}
			v.rats = append(v.rats, [2]int64{num, den})
		}
	}
	return v
}

func decodeImagemeta(data []byte, imf imagemeta.ImageFormat) exifResult {
	fields := map[string]string{}
	var warnings []string

	_, err := imagemeta.Decode(imagemeta.Options{
		R:           bytes.NewReader(data),
		ImageFormat: imf,
		Sources:     imagemeta.EXIF,
		ShouldHandleTag: func(imagemeta.TagInfo) bool {
			return true
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if _, seen := fields[ti.Tag]; !seen {
				fields[ti.Tag] = display(ti.Tag, imagemetaValue(ti.Value))
			}
			return nil
		},
		Warnf: func(msg string, args ...any) {
			warnings = append(warnings, fmt.Sprintf(msg, args...))
		},
	})
	if err != nil {
		warnings = append(warnings, (&ExifError{Err: err}).Error())
	}
	if len(warnings) > 0 {
		return exifResult{diagnostics: warnings}
	}
	if len(fields) == 0 {
		return exifResult{}
	}
	return exifResult{fields: fields}
}
