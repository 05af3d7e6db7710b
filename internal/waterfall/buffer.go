// SPDX-License-Identifier: MIT
/*
Package waterfall accumulates color-mapped spectrum columns into a
scrolling raster. Columns live in a circular store indexed by a
persistent write cursor; every update rebuilds a width x height RGBA
raster with the oldest column on the left, the newest on the right,
and the lowest band at the bottom.

Like the spectrogram pipeline, a Buffer is single-threaded: callers
serialize UpdateColumn and TextureData against one instance.
*/
package waterfall

import (
	"errors"
	"fmt"
	"time"

	"melscope/internal/colormap"
)

// Error taxonomy mirrors the pipeline's: construction failures are
// ErrInvalidConfig, per-call failures are ErrInvalidInput and leave
// the ring buffer, raster and cursor untouched.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidInput  = errors.New("invalid input")
)

// Buffer is the circular column store plus its derived raster.
type Buffer struct {
	width    int
	height   int
	numBands int

	minValue float64
	maxValue float64
	cmap     colormap.Map

	ring          []byte // [width][numBands] RGBA, column-major
	raster        []byte // [height][width] RGBA, rebuilt on every update
	rowBand       []int  // per raster row: source band index
	currentColumn int

	lastUpdateMs float64
}

// New creates a Buffer with fixed dimensions, a [0, 1] display range
// and the viridis palette. Cursor and backing store persist for the
// Buffer's whole lifetime; recreate the Buffer to reset them.
func New(width, height, numBands int) (*Buffer, error) {
	if width <= 0 || height <= 0 || numBands <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d with %d bands must all be positive",
			ErrInvalidConfig, width, height, numBands)
	}

	b := &Buffer{
		width:    width,
		height:   height,
		numBands: numBands,
		minValue: 0,
		maxValue: 1,
		cmap:     colormap.Viridis,
		ring:     make([]byte, width*numBands*4),
		raster:   make([]byte, width*height*4),
		rowBand:  make([]int, height),
	}

	// Unwritten columns read as opaque black, so both stores start
	// with alpha 255 everywhere.
	for i := 3; i < len(b.ring); i += 4 {
		b.ring[i] = 255
	}
	for i := 3; i < len(b.raster); i += 4 {
		b.raster[i] = 255
	}

	// Raster row -> band mapping never changes; nearest-band bucket.
	for y := 0; y < height; y++ {
		band := y * numBands / height
		if band >= numBands {
			band = numBands - 1
		}
		b.rowBand[y] = band
	}

	return b, nil
}

// SetRange sets the display range band values are clamped to before
// normalization. Fails with ErrInvalidConfig unless min < max.
func (b *Buffer) SetRange(minValue, maxValue float64) error {
	if minValue >= maxValue {
		return fmt.Errorf("%w: display range [%g, %g] is empty", ErrInvalidConfig, minValue, maxValue)
	}
	b.minValue = minValue
	b.maxValue = maxValue
	return nil
}

// SetColorMap swaps the palette used for subsequent columns. Columns
// already in the ring keep the colors they were written with.
func (b *Buffer) SetColorMap(m colormap.Map) {
	if m.Stops != nil {
		b.cmap = m
	}
}

// UpdateColumn clamps, normalizes and color-maps one column of band
// values, writes it at the cursor, rebuilds the raster and advances
// the cursor. A vector whose length differs from the configured band
// count fails with ErrInvalidInput before anything is touched.
func (b *Buffer) UpdateColumn(bandValues []float64) error {
	if len(bandValues) != b.numBands {
		return fmt.Errorf("%w: %d band values, expected %d", ErrInvalidInput, len(bandValues), b.numBands)
	}

	start := time.Now()

	span := b.maxValue - b.minValue
	for band, v := range bandValues {
		if v < b.minValue {
			v = b.minValue
		}
		if v > b.maxValue {
			v = b.maxValue
		}
		normalized := (v - b.minValue) / span

		r, g, bl := b.cmap.Interpolate(normalized)
		idx := (b.currentColumn*b.numBands + band) * 4
		b.ring[idx+0] = r
		b.ring[idx+1] = g
		b.ring[idx+2] = bl
		b.ring[idx+3] = 255
	}

	b.rebuildRaster()

	b.currentColumn = (b.currentColumn + 1) % b.width
	b.lastUpdateMs = float64(time.Since(start)) / float64(time.Millisecond)
	return nil
}

// rebuildRaster redraws the whole raster from the ring buffer. Source
// columns are walked in chronological order starting one past the
// cursor (the oldest surviving column), so the newest column lands at
// the right edge. Rows are vertically flipped: raster row 0 shows the
// highest band. This is the dominant per-update cost at
// O(width*height).
func (b *Buffer) rebuildRaster() {
	oldest := b.currentColumn + 1
	for x := 0; x < b.width; x++ {
		srcCol := (oldest + x) % b.width
		colBase := srcCol * b.numBands * 4
		for y := 0; y < b.height; y++ {
			src := colBase + b.rowBand[y]*4
			dst := ((b.height-1-y)*b.width + x) * 4
			b.raster[dst+0] = b.ring[src+0]
			b.raster[dst+1] = b.ring[src+1]
			b.raster[dst+2] = b.ring[src+2]
			b.raster[dst+3] = b.ring[src+3]
		}
	}
}

// TextureData returns a fresh copy of the current raster,
// width*height*4 bytes, regardless of how many columns have been
// written. Unwritten columns are opaque black.
func (b *Buffer) TextureData() []byte {
	out := make([]byte, len(b.raster))
	copy(out, b.raster)
	return out
}

// TextureDataInto copies the raster into dst, which must be exactly
// width*height*4 bytes. Allocation-free variant for per-frame
// consumers.
func (b *Buffer) TextureDataInto(dst []byte) error {
	if len(dst) != len(b.raster) {
		return fmt.Errorf("%w: destination length %d, expected %d", ErrInvalidInput, len(dst), len(b.raster))
	}
	copy(dst, b.raster)
	return nil
}

// Width returns the raster width in columns.
func (b *Buffer) Width() int { return b.width }

// Height returns the raster height in rows.
func (b *Buffer) Height() int { return b.height }

// NumBands returns the number of bands per column.
func (b *Buffer) NumBands() int { return b.numBands }

// CurrentColumn returns the ring cursor, the column the next update
// will write.
func (b *Buffer) CurrentColumn() int { return b.currentColumn }

// LastUpdateMs returns the wall-clock cost of the last UpdateColumn.
func (b *Buffer) LastUpdateMs() float64 { return b.lastUpdateMs }
