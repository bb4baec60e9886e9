package format

type Capability struct {
	Format    string `json:"format"`
	MIME      string `json:"mime"`
	Extension string `json:"extension"`
	Decoding  string `json:"decoding"`
	Encoding  string `json:"encoding"`

	format Format
}

var displayOrder = []Format{AVIF, BMP, Farbfeld, GIF, HDR, ICO, JPEG, OpenEXR, PNG, PNM, QOI, TGA, TIFF, WebP, SVG}

var encodingNotes = map[Format]string{
	AVIF: "Yes (lossy only)",
	WebP: "Yes (lossless only)",
	SVG:  "No",
}

func Capabilities() []Capability {
	out := make([]Capability, 0, len(displayOrder))
	for _, f := range displayOrder {
		encoding := "Yes"
		if note, ok := encodingNotes[f]; ok {
			encoding = note
		}
		out = append(out, Capability{
			Format:    f.String(),
			MIME:      f.MIME(),
			Extension: f.Extension(),
			Decoding:  "Yes",
			Encoding:  encoding,
			format:    f,
		})
	}
	return out
}

func Decodable() []Format {
	out := make([]Format, 0, len(displayOrder))
	for _, c := range Capabilities() {
		if c.Decoding != "No" {
			out = append(out, c.format)
		}
	}
	return out
}

func Encodable() []Format {
	out := make([]Format, 0, len(displayOrder))
	for _, c := range Capabilities() {
		if c.Encoding != "No" {
			out = append(out, c.format)
		}
	}
	return out
}
