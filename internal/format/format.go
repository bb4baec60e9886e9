package format

import (
	"mime"
	"strings"
)

type Format int

const (
	PNG Format = iota + 1
	JPEG
	GIF
	WebP
	BMP
	TIFF
	ICO
	AVIF
	Farbfeld
	HDR
	OpenEXR
	QOI
	TGA
	PNM
	SVG
)

type info struct {
	name      string
	mime      string
	extension string
	aliases   []string
	mimes     []string
}

var pnmMIMEAliases = []string{"image/x-portable-bitmap", "image/x-portable-graymap", "image/x-portable-pixmap"}

var formats = map[Format]info{
	PNG:      {name: "PNG", mime: "image/png", extension: "png"},
	JPEG:     {name: "JPEG", mime: "image/jpeg", extension: "jpeg", aliases: []string{"jpg", "jpe", "jfif"}},
	GIF:      {name: "GIF", mime: "image/gif", extension: "gif"},
	WebP:     {name: "WebP", mime: "image/webp", extension: "webp"},
	BMP:      {name: "BMP", mime: "image/bmp", extension: "bmp", aliases: []string{"dib"}},
	TIFF:     {name: "TIFF", mime: "image/tiff", extension: "tiff", aliases: []string{"tif"}},
	ICO:      {name: "ICO", mime: "image/x-icon", extension: "ico", mimes: []string{"image/vnd.microsoft.icon"}},
	AVIF:     {name: "AVIF", mime: "image/avif", extension: "avif"},
	Farbfeld: {name: "Farbfeld", mime: "image/farbfeld", extension: "ff"},
	HDR:      {name: "HDR", mime: "image/vnd.radiance", extension: "hdr", aliases: []string{"rgbe", "pic"}},
	OpenEXR:  {name: "OpenEXR", mime: "image/x-exr", extension: "exr"},
	QOI:      {name: "QOI", mime: "image/x-qoi", extension: "qoi", mimes: []string{"image/qoi"}},
	TGA:      {name: "TGA", mime: "image/x-targa", extension: "tga", aliases: []string{"icb", "vda", "vst"}, mimes: []string{"image/x-tga"}},
	PNM:      {name: "PNM", mime: "image/x-portable-anymap", extension: "pnm", aliases: []string{"pbm", "pgm", "ppm", "pam"}, mimes: pnmMIMEAliases},
	SVG:      {name: "SVG", mime: "image/svg+xml", extension: "svg"},
}

var (
	byMIME      = make(map[string]Format, len(formats))
	byExtension = make(map[string]Format, len(formats)*2)
)

func init() {
	for f, meta := range formats {
		byMIME[meta.mime] = f
		for _, alias := range meta.mimes {
			byMIME[alias] = f
		}
		byExtension[meta.extension] = f
		for _, alias := range meta.aliases {
			byExtension[alias] = f
		}
	}
}

// Resolve maps a MIME-like identifier to a format. Unknown identifiers report
// false so the caller can fall back to sniffing.
func Resolve(identifier string) (Format, bool) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return 0, false
	}
	if mediaType, _, err := mime.ParseMediaType(identifier); err == nil {
		identifier = mediaType
	}
	f, ok := byMIME[strings.ToLower(identifier)]
	return f, ok
}

func FromExtension(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	f, ok := byExtension[ext]
	return f, ok
}

func (f Format) String() string {
	if meta, ok := formats[f]; ok {
		return meta.name
	}
	return "unknown"
}

func (f Format) MIME() string {
	if meta, ok := formats[f]; ok {
		return meta.mime
	}
	return "application/octet-stream"
}

func (f Format) Extension() string {
	if meta, ok := formats[f]; ok {
		return meta.extension
	}
	return "bin"
}

func (f Format) IsVector() bool {
	return f == SVG
}

func (f Format) IsHDR() bool {
	return f == HDR
}
