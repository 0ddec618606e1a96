package labels

import "fmt"

// DefaultMaskBits is the number of low bits of a label kept for display.
const DefaultMaskBits = 20

// Mask reduces labels to a bounded range so they can index a color table.
// Masked values are only for display; merges always operate on full labels.
type Mask struct {
	bits uint8
	mask uint64
}

// NewMask returns a Mask keeping the low number of bits, which must be in [1, 32].
func NewMask(bits uint8) (Mask, error) {
	if bits == 0 || bits > 32 {
		return Mask{}, fmt.Errorf("display mask must keep between 1 and 32 bits, not %d", bits)
	}
	return Mask{bits: bits, mask: (uint64(1) << bits) - 1}, nil
}

// Bits returns the number of bits kept by the mask.
func (m Mask) Bits() uint8 {
	return m.bits
}

// Apply returns the display form of a label.
func (m Mask) Apply(label uint64) uint32 {
	return uint32(label & m.mask)
}

// Size returns the number of distinct display values, i.e., the color table size.
func (m Mask) Size() int {
	return int(m.mask) + 1
}
