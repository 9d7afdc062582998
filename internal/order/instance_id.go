package order

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// CartItemInput is the caller-supplied shape for AddItems: everything
// needed to price a new line and compute its content-addressed identity.
type CartItemInput struct {
	ProductID             int64
	Name                  string
	Price                 float64
	OriginalPrice         *float64
	Quantity              int
	SelectedOptions       []SelectedOption
	Specification         *Specification
	ManualDiscountPercent *float64
	Note                  string
	AuthorizerID          int64
	AuthorizerName        string
	TaxRate               float64
	CategoryName          string
}

// GenerateInstanceID content-addresses an item's identity-defining
// fields — product, input price, manual discount (if materially nonzero),
// selected options (attribute+option+quantity), and spec — into a 16-byte
// SHA-256 prefix, hex-encoded. Two AddItems calls with identical identity
// fields produce the same instance_id and so can be merged by quantity;
// anything that changes the instance_id (a different option, a different
// manual discount) becomes a distinct line.
//
// instance_id is computed purely from input fields, independent of any
// price-rule calculation result, so the same cart line always merges the
// same way regardless of whether the price-rule cache happens to be warm.
func GenerateInstanceID(input CartItemInput) string {
	h := sha256.New()

	var buf8 [8]byte
	binary.LittleEndian.PutUint64(buf8[:], uint64(input.ProductID))
	h.Write(buf8[:])

	binary.BigEndian.PutUint64(buf8[:], math.Float64bits(input.Price))
	h.Write(buf8[:])

	if input.ManualDiscountPercent != nil && math.Abs(*input.ManualDiscountPercent) > 0.01 {
		binary.BigEndian.PutUint64(buf8[:], math.Float64bits(*input.ManualDiscountPercent))
		h.Write(buf8[:])
	}

	for _, opt := range input.SelectedOptions {
		binary.LittleEndian.PutUint64(buf8[:], uint64(opt.AttributeID))
		h.Write(buf8[:])
		binary.LittleEndian.PutUint64(buf8[:], uint64(opt.OptionID))
		h.Write(buf8[:])
		binary.BigEndian.PutUint64(buf8[:], uint64(opt.Quantity))
		h.Write(buf8[:])
	}

	if input.Specification != nil {
		binary.LittleEndian.PutUint64(buf8[:], uint64(input.Specification.ID))
		h.Write(buf8[:])
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
