// SPDX-License-Identifier: MIT
package waterfall

import (
	"bytes"
	"errors"
	"testing"

	"melscope/internal/colormap"
)

func TestNewRejectsBadDimensions(t *testing.T) {
	tests := []struct {
		name                    string
		width, height, numBands int
	}{
		{"zero width", 0, 256, 64},
		{"zero height", 512, 0, 64},
		{"zero bands", 512, 256, 0},
		{"negative width", -512, 256, 64},
		{"negative bands", 512, 256, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.width, tt.height, tt.numBands); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, expected ErrInvalidConfig", err)
			}
		})
	}
}

func TestUpdateColumnRejectsWrongLength(t *testing.T) {
	b, err := New(64, 32, 16)
	if err != nil {
		t.Fatal(err)
	}

	for _, n := range []int{0, 1, 15, 17, 64} {
		if err := b.UpdateColumn(make([]float64, n)); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("length %d: error = %v, expected ErrInvalidInput", n, err)
		}
	}
	if b.CurrentColumn() != 0 {
		t.Errorf("cursor advanced on rejected column: %d", b.CurrentColumn())
	}
}

func TestUnwrittenRasterIsOpaqueBlack(t *testing.T) {
	b, err := New(8, 8, 4)
	if err != nil {
		t.Fatal(err)
	}

	data := b.TextureData()
	if len(data) != 8*8*4 {
		t.Fatalf("raster size = %d, expected %d", len(data), 8*8*4)
	}
	for i := 0; i < len(data); i += 4 {
		if data[i] != 0 || data[i+1] != 0 || data[i+2] != 0 || data[i+3] != 255 {
			t.Fatalf("pixel %d = %v, expected opaque black", i/4, data[i:i+4])
		}
	}
}

func TestTextureDataReturnsCopy(t *testing.T) {
	b, _ := New(8, 8, 4)
	first := b.TextureData()
	first[0] = 99

	if second := b.TextureData(); second[0] == 99 {
		t.Error("TextureData must return an independent copy")
	}
}

// grayMap makes the written color equal to round(value*255) on every
// channel, so raster pixels can be traced back to the value written.
func grayMap(t *testing.T) colormap.Map {
	t.Helper()
	m, err := colormap.New("gray", []colormap.Stop{
		{T: 0, R: 0, G: 0, B: 0},
		{T: 1, R: 255, G: 255, B: 255},
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestRingBufferChronology(t *testing.T) {
	const (
		width    = 8
		height   = 4
		numBands = 4
	)

	// Write width + 11 columns (wrapping past the ring seam) where
	// column k carries the value k/total in every band; the raster
	// must then hold exactly the last `width` writes, oldest on the
	// left, newest on the right.
	for _, extra := range []int{0, 3, 11, 2 * width, 3*width + 1} {
		b, err := New(width, height, numBands)
		if err != nil {
			t.Fatal(err)
		}
		b.SetColorMap(grayMap(t))

		total := width + extra
		column := make([]float64, numBands)
		for k := 0; k < total; k++ {
			v := float64(k) / float64(total)
			for i := range column {
				column[i] = v
			}
			if err := b.UpdateColumn(column); err != nil {
				t.Fatal(err)
			}
		}

		data := b.TextureData()
		for x := 0; x < width; x++ {
			k := total - width + x // the write this raster column must show
			want := byte(float64(k)/float64(total)*255 + 0.5)
			got := data[x*4] // row 0, column x, red channel
			if got != want {
				t.Errorf("extra=%d: column %d = %d, expected %d (write %d)", extra, x, got, want, k)
			}
		}
	}
}

func TestVerticalOrientation(t *testing.T) {
	const (
		width    = 4
		height   = 8
		numBands = 4
	)
	b, err := New(width, height, numBands)
	if err != nil {
		t.Fatal(err)
	}
	b.SetColorMap(grayMap(t))

	// Band 0 bright, all others dark. Band 0 is the lowest frequency
	// and must appear at the bottom of the raster.
	column := make([]float64, numBands)
	column[0] = 1.0
	if err := b.UpdateColumn(column); err != nil {
		t.Fatal(err)
	}

	data := b.TextureData()
	x := width - 1 // newest column is at the right edge

	bottom := data[((height-1)*width+x)*4]
	top := data[x*4]
	if bottom != 255 {
		t.Errorf("bottom row = %d, expected 255 (lowest band at the bottom)", bottom)
	}
	if top != 0 {
		t.Errorf("top row = %d, expected 0", top)
	}

	// Rows bucket to bands by floor(y*numBands/height): with height
	// twice numBands each band covers two raster rows.
	second := data[((height-2)*width+x)*4]
	if second != 255 {
		t.Errorf("second-from-bottom row = %d, expected 255 (same band bucket)", second)
	}
	third := data[((height-3)*width+x)*4]
	if third != 0 {
		t.Errorf("third-from-bottom row = %d, expected 0 (next band)", third)
	}
}

func TestClampingToDisplayRange(t *testing.T) {
	b, err := New(4, 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	b.SetColorMap(grayMap(t))
	if err := b.SetRange(-20, 0); err != nil {
		t.Fatal(err)
	}

	// One value far below the range, one far above.
	if err := b.UpdateColumn([]float64{-100, 100}); err != nil {
		t.Fatal(err)
	}

	data := b.TextureData()
	x := b.Width() - 1
	bottom := data[((b.Height()-1)*b.Width()+x)*4] // band 0, clamped to min
	top := data[x*4]                               // band 1, clamped to max
	if bottom != 0 {
		t.Errorf("below-range value = %d, expected 0", bottom)
	}
	if top != 255 {
		t.Errorf("above-range value = %d, expected 255", top)
	}
}

func TestSetRangeRejectsEmptyRange(t *testing.T) {
	b, _ := New(4, 4, 2)
	if err := b.SetRange(1, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, expected ErrInvalidConfig", err)
	}
	if err := b.SetRange(2, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, expected ErrInvalidConfig", err)
	}
}

func TestSustainedUpdatesKeepRasterStable(t *testing.T) {
	const (
		width    = 512
		height   = 256
		numBands = 64
		updates  = 600 // more than one full wrap
	)
	b, err := New(width, height, numBands)
	if err != nil {
		t.Fatal(err)
	}

	column := make([]float64, numBands)
	for i := range column {
		column[i] = 0.5
	}

	for i := 0; i < updates; i++ {
		if err := b.UpdateColumn(column); err != nil {
			t.Fatalf("update %d failed: %v", i, err)
		}
		if got := len(b.TextureData()); got != width*height*4 {
			t.Fatalf("update %d: raster size = %d, expected %d", i, got, width*height*4)
		}
	}

	// Constant input must produce a uniform raster once fully wrapped.
	data := b.TextureData()
	r, g, bl := colormap.Viridis.Interpolate(0.5)
	for i := 0; i < len(data); i += 4 {
		if data[i] != r || data[i+1] != g || data[i+2] != bl || data[i+3] != 255 {
			t.Fatalf("pixel %d = %v, expected (%d,%d,%d,255)", i/4, data[i:i+4], r, g, bl)
		}
	}

	if b.LastUpdateMs() < 0 {
		t.Errorf("LastUpdateMs = %g, expected >= 0", b.LastUpdateMs())
	}
}

func TestCursorWraps(t *testing.T) {
	b, _ := New(4, 4, 2)
	column := []float64{0.5, 0.5}

	for i := 0; i < 9; i++ {
		if got := b.CurrentColumn(); got != i%4 {
			t.Fatalf("before write %d: cursor = %d, expected %d", i, got, i%4)
		}
		if err := b.UpdateColumn(column); err != nil {
			t.Fatal(err)
		}
	}
}

func TestUpdateColumnHotPath(t *testing.T) {
	b, _ := New(128, 64, 32)
	column := make([]float64, 32)
	for i := range column {
		column[i] = float64(i) / 32
	}

	if err := b.UpdateColumn(column); err != nil {
		t.Fatal(err)
	}
	allocs := testing.AllocsPerRun(50, func() {
		_ = b.UpdateColumn(column)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in UpdateColumn hot path, got %.1f", allocs)
	}
}

func TestRasterIdenticalColumnsAgree(t *testing.T) {
	// After the ring wraps under constant input, every raster column
	// holds the same bytes.
	b, _ := New(16, 8, 8)
	column := make([]float64, 8)
	for i := range column {
		column[i] = float64(i) / 8
	}
	for i := 0; i < 40; i++ {
		if err := b.UpdateColumn(column); err != nil {
			t.Fatal(err)
		}
	}

	data := b.TextureData()
	w := b.Width()
	for y := 0; y < b.Height(); y++ {
		row := data[y*w*4 : (y+1)*w*4]
		first := row[:4]
		for x := 1; x < w; x++ {
			if !bytes.Equal(row[x*4:x*4+4], first) {
				t.Fatalf("row %d column %d differs from column 0", y, x)
			}
		}
	}
}

func BenchmarkUpdateColumn(b *testing.B) {
	buf, err := New(512, 256, 64)
	if err != nil {
		b.Fatal(err)
	}
	column := make([]float64, 64)
	for i := range column {
		column[i] = float64(i) / 64
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = buf.UpdateColumn(column)
	}
}
