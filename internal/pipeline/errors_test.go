package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dunamismax/pixelshift/internal/codec"
	"github.com/dunamismax/pixelshift/internal/format"
	"github.com/dunamismax/pixelshift/internal/source"
)

func TestPermanent(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unknown file type", fmt.Errorf("convert stage: %w", source.ErrUnknownFileType), true},
		{"codec", &codec.Error{Format: format.PNG, Op: "decode", Err: errors.New("bad")}, true},
		{"svg", &source.SVGError{Err: errors.New("bad")}, true},
		{"unsupported operation", fmt.Errorf("%w: resize", ErrUnsupportedOperation), true},
		{"fetch", fmt.Errorf("fetch stage: %w", errors.New("connection reset")), false},
		{"cancelled", context.Canceled, false},
	}
	for _, tc := range cases {
		if got := Permanent(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
