package facematch

// BBox is a face bounding box [x1, y1, x2, y2] in pixel coordinates of the decoded image.
type BBox [4]float64

// NewBBox converts a loosely typed [x1, y1, x2, y2] slice (as returned by the
// embedding server) into a BBox. Returns false if the slice does not hold 4 values.
func NewBBox(v []float64) (BBox, bool) {
	if len(v) != 4 {
		return BBox{}, false
	}
	return BBox{v[0], v[1], v[2], v[3]}, true
}

// Width returns x2 - x1.
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height returns y2 - y1.
func (b BBox) Height() float64 { return b[3] - b[1] }

// Area returns the box area. Inverted boxes have zero area.
func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Scale multiplies every coordinate by factor. Used to map boxes detected on a
// downscaled image back to the original resolution.
func (b BBox) Scale(factor float64) BBox {
	return BBox{b[0] * factor, b[1] * factor, b[2] * factor, b[3] * factor}
}

// Relative converts the pixel bbox to relative (0-1) coordinates.
// Returns the box unchanged if the dimensions are not positive.
func (b BBox) Relative(width, height int) BBox {
	if width <= 0 || height <= 0 {
		return b
	}
	return BBox{
		b[0] / float64(width),
		b[1] / float64(height),
		b[2] / float64(width),
		b[3] / float64(height),
	}
}

// LargestIndex returns the index of the box with the largest area.
// Ties keep the first occurrence. Returns -1 for an empty slice.
func LargestIndex(boxes []BBox) int {
	best := -1
	bestArea := -1.0
	for i, b := range boxes {
		if a := b.Area(); a > bestArea {
			best = i
			bestArea = a
		}
	}
	return best
}
