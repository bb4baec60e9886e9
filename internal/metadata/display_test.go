package metadata

import "testing"

func TestDisplayRendersKnownTags(t *testing.T) {
	cases := []struct {
		name string
		in   exifValue
		want string
	}{
		{"Orientation", exifValue{ints: []int64{6}}, "row 0 at right and column 0 at top"},
		{"Orientation", exifValue{ints: []int64{42}}, "unknown (42)"},
		{"ResolutionUnit", exifValue{ints: []int64{2}}, "inch"},
		{"MeteringMode", exifValue{ints: []int64{5}}, "pattern"},
		{"Flash", exifValue{ints: []int64{0x19}}, "fired, auto mode"},
		{"Flash", exifValue{ints: []int64{0x10}}, "not fired, forced off"},
		{"ExposureTime", exifValue{rats: [][2]int64{{10, 2500}}}, "1/250 s"},
		{"ExposureTime", exifValue{rats: [][2]int64{{2, 1}}}, "2 s"},
		{"FNumber", exifValue{rats: [][2]int64{{28, 10}}}, "f/2.8"},
		{"FocalLength", exifValue{rats: [][2]int64{{50, 1}}}, "50 mm"},
		{"XResolution", exifValue{rats: [][2]int64{{72, 1}}}, "72 pixels per unit"},
		{"GPSLatitude", exifValue{rats: [][2]int64{{52, 1}, {30, 1}, {15, 2}}}, "52, 30, 7.5"},
		{"ImageWidth", exifValue{ints: []int64{640}, raw: "640"}, "640"},
		{"Make", exifValue{raw: "Canon"}, "Canon"},
	}
	for _, tc := range cases {
		if got := display(tc.name, tc.in); got != tc.want {
			t.Fatalf("display(%s, %+v) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestImagemetaValue(t *testing.T) {
	if got := display("Orientation", imagemetaValue(uint16(3))); got != "row 0 at bottom and column 0 at right" {
		t.Fatalf("unexpected orientation %q", got)
	}
	if got := display("Make", imagemetaValue("Nikon\x00")); got != "Nikon" {
		t.Fatalf("unexpected make %q", got)
	}
}
