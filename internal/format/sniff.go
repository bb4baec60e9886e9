package format

import (
	"bytes"
	"unicode/utf8"
)

type signature struct {
	format Format
	match  func([]byte) bool
}

// TGA has no magic number and is only handled when declared.
var signatures = []signature{
	{PNG, prefix("\x89PNG\r\n\x1a\n")},
	{JPEG, prefix("\xff\xd8\xff")},
	{GIF, anyPrefix("GIF87a", "GIF89a")},
	{WebP, func(b []byte) bool {
		return len(b) >= 12 && string(b[:4]) == "RIFF" && string(b[8:12]) == "WEBP"
	}},
	{BMP, prefix("BM")},
	{TIFF, anyPrefix("II*\x00", "MM\x00*")},
	{ICO, prefix("\x00\x00\x01\x00")},
	{AVIF, func(b []byte) bool {
		if len(b) < 12 || string(b[4:8]) != "ftyp" {
			return false
		}
		brand := string(b[8:12])
		return brand == "avif" || brand == "avis"
	}},
	{Farbfeld, prefix("farbfeld")},
	{HDR, anyPrefix("#?RADIANCE", "#?RGBE")},
	{OpenEXR, prefix("\x76\x2f\x31\x01")},
	{QOI, prefix("qoif")},
	{PNM, func(b []byte) bool {
		if len(b) < 3 || b[0] != 'P' || b[1] < '1' || b[1] > '7' {
			return false
		}
		switch b[2] {
		case ' ', '\t', '\r', '\n':
			return true
		}
		return false
	}},
	{SVG, looksLikeSVG},
}

// Sniff identifies a format from the leading bytes of data.
func Sniff(data []byte) (Format, bool) {
	for _, sig := range signatures {
		if sig.match(data) {
			return sig.format, true
		}
	}
	return 0, false
}

func prefix(magic string) func([]byte) bool {
	return func(b []byte) bool {
		return bytes.HasPrefix(b, []byte(magic))
	}
}

func anyPrefix(magics ...string) func([]byte) bool {
	return func(b []byte) bool {
		for _, magic := range magics {
			if bytes.HasPrefix(b, []byte(magic)) {
				return true
			}
		}
		return false
	}
}

func looksLikeSVG(b []byte) bool {
	const window = 1024
	head := b
	if len(head) > window {
		head = head[:window]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	head = bytes.TrimLeft(head, " \t\r\n")
	if !utf8.Valid(trimPartialRune(head)) {
		return false
	}
	if bytes.HasPrefix(head, []byte("<svg")) {
		return true
	}
	if bytes.HasPrefix(head, []byte("<?xml")) || bytes.HasPrefix(head, []byte("<!DOCTYPE")) || bytes.HasPrefix(head, []byte("<!--")) {
		return bytes.Contains(head, []byte("<svg"))
	}
	return false
}

func trimPartialRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}
