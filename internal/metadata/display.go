package metadata

import (
	"fmt"
	"strconv"
	"strings"
)

var enumeratedTags = map[string]map[int64]string{
	"Orientation": {
		1: "row 0 at top and column 0 at left",
		2: "row 0 at top and column 0 at right",
		3: "row 0 at bottom and column 0 at right",
		4: "row 0 at bottom and column 0 at left",
		5: "row 0 at left and column 0 at top",
		6: "row 0 at right and column 0 at top",
		7: "row 0 at right and column 0 at bottom",
		8: "row 0 at left and column 0 at bottom",
	},
	"ResolutionUnit": {
		1: "no absolute unit",
		2: "inch",
		3: "cm",
	},
	"FocalPlaneResolutionUnit": {
		1: "no absolute unit",
		2: "inch",
		3: "cm",
	},
	"YCbCrPositioning": {
		1: "centered",
		2: "co-sited",
	},
	"ExposureProgram": {
		0: "not defined",
		1: "manual",
		2: "normal program",
		3: "aperture priority",
		4: "shutter priority",
		5: "creative program",
		6: "action program",
		7: "portrait mode",
		8: "landscape mode",
	},
	"MeteringMode": {
		0:   "unknown",
		1:   "average",
		2:   "center-weighted average",
		3:   "spot",
		4:   "multi-spot",
		5:   "pattern",
		6:   "partial",
		255: "other",
	},
	"LightSource": {
		0:   "unknown",
		1:   "daylight",
		2:   "fluorescent",
		3:   "tungsten",
		4:   "flash",
		9:   "fine weather",
		10:  "cloudy weather",
		11:  "shade",
		255: "other",
	},
	"ColorSpace": {
		1:      "sRGB",
		0xffff: "uncalibrated",
	},
	"ExposureMode": {
		0: "auto exposure",
		1: "manual exposure",
		2: "auto bracket",
	},
	"WhiteBalance": {
		0: "auto white balance",
		1: "manual white balance",
	},
	"SceneCaptureType": {
		0: "standard",
		1: "landscape",
		2: "portrait",
		3: "night scene",
	},
	"SensingMethod": {
		1: "not defined",
		2: "one-chip color area sensor",
		3: "two-chip color area sensor",
		4: "three-chip color area sensor",
		5: "color sequential area sensor",
		7: "trilinear sensor",
		8: "color sequential linear sensor",
	},
}

var flashModes = map[int64]string{
	1: "forced on",
	2: "forced off",
	3: "auto mode",
}

// exifValue is a decoded field before rendering. Only one of ints and rats is
// set for numeric fields.
type exifValue struct {
	ints []int64
	rats [][2]int64
	raw  string
}

// display renders v the way a photo viewer would label it, falling back to the
// raw string for tags without a known presentation.
func display(name string, v exifValue) string {
	if len(v.ints) == 1 {
		n := v.ints[0]
		if table, ok := enumeratedTags[name]; ok {
			if s, ok := table[n]; ok {
				return s
			}
			return fmt.Sprintf("unknown (%d)", n)
		}
		if name == "Flash" {
			return flashString(n)
		}
	}
	if len(v.rats) == 1 {
		return rationalString(name, v.rats[0][0], v.rats[0][1])
	}
	if len(v.rats) > 1 {
		parts := make([]string, len(v.rats))
		for i, r := range v.rats {
			parts[i] = ratio(r[0], r[1])
		}
		return strings.Join(parts, ", ")
	}
	return v.raw
}

func flashString(n int64) string {
	s := "not fired"
	if n&1 == 1 {
		s = "fired"
	}
	if mode, ok := flashModes[(n>>3)&3]; ok {
		s += ", " + mode
	}
	if n&0x20 != 0 {
		s += ", no flash function"
	}
	return s
}

func rationalString(name string, num, den int64) string {
	if den == 0 {
		return fmt.Sprintf("%d/%d", num, den)
	}
	switch name {
	case "ExposureTime":
		if num > 0 && num < den && den%num == 0 {
			return fmt.Sprintf("1/%d s", den/num)
		}
		return ratio(num, den) + " s"
	case "FNumber", "ApertureValue", "MaxApertureValue":
		return "f/" + ratio(num, den)
	case "FocalLength":
		return ratio(num, den) + " mm"
	case "XResolution", "YResolution":
		return ratio(num, den) + " pixels per unit"
	}
	return ratio(num, den)
}

func ratio(num, den int64) string {
	if den == 0 {
		return fmt.Sprintf("%d/%d", num, den)
	}
	if num%den == 0 {
		return strconv.FormatInt(num/den, 10)
	}
	return strconv.FormatFloat(float64(num)/float64(den), 'f', -1, 64)
}

// imagemetaValue maps the Go values imagemeta hands out onto exifValue.
func imagemetaValue(v any) exifValue {
	switch n := v.(type) {
	case uint8:
		return exifValue{ints: []int64{int64(n)}}
	case uint16:
		return exifValue{ints: []int64{int64(n)}}
	case uint32:
		return exifValue{ints: []int64{int64(n)}}
	case int16:
		return exifValue{ints: []int64{int64(n)}}
	case int32:
		return exifValue{ints: []int64{int64(n)}}
	case int64:
		return exifValue{ints: []int64{n}}
	case int:
		return exifValue{ints: []int64{int64(n)}}
	case string:
		return exifValue{raw: strings.TrimRight(n, "\x00 ")}
	}
	return exifValue{raw: fmt.Sprint(v)}
}
