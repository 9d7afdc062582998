package order

import (
	"fmt"

	"github.com/tallyforge/edge/internal/trust"
)

// checksumView is the canonicalized, checksum-stable projection of a
// snapshot: it excludes StateChecksum itself (obviously) and UpdatedAt,
// since wall-clock bookkeeping must not perturb content addressing — two
// snapshots with identical business state produce the same checksum
// regardless of when the last write happened to land.
type checksumView struct {
	OrderID            string
	TenantID           string
	Status             Status
	TableID            string
	ZoneID             string
	GuestCount         int
	Note               string
	Items              []*CartItemSnapshot
	Payments           []*PaymentRecord
	PaidItemQuantities map[string]int
	PaidAmount         float64
	IsPrePayment       bool
	Total              float64
	RemainingAmount    float64
	Subtotal           float64
	ReceiptNumber      string
	LastSequence       uint64
	LinkedMemberID     string
}

func (s *OrderSnapshot) checksumView() checksumView {
	return checksumView{
		OrderID:            s.OrderID,
		TenantID:           s.TenantID,
		Status:             s.Status,
		TableID:            s.TableID,
		ZoneID:             s.ZoneID,
		GuestCount:         s.GuestCount,
		Note:               s.Note,
		Items:              s.Items,
		Payments:           s.Payments,
		PaidItemQuantities: s.PaidItemQuantities,
		PaidAmount:         s.PaidAmount,
		IsPrePayment:       s.IsPrePayment,
		Total:              s.Total,
		RemainingAmount:    s.RemainingAmount,
		Subtotal:           s.Subtotal,
		ReceiptNumber:      s.ReceiptNumber,
		LastSequence:       s.LastSequence,
		LinkedMemberID:     s.LinkedMemberID,
	}
}

// ComputeChecksum returns H(canonicalize(snapshot without checksum)),
// satisfying the invariant that every stored snapshot's StateChecksum
// equals this value and that replaying events 1..s for an order reproduces
// an identical checksum to the one stored at LastSequence=s.
func (s *OrderSnapshot) ComputeChecksum() (string, error) {
	hash, err := trust.CanonicalHash(s.checksumView())
	if err != nil {
		return "", fmt.Errorf("order: compute checksum: %w", err)
	}
	return hash, nil
}

// SealChecksum recomputes and stores StateChecksum on the snapshot.
func (s *OrderSnapshot) SealChecksum() error {
	sum, err := s.ComputeChecksum()
	if err != nil {
		return err
	}
	s.StateChecksum = sum
	return nil
}

// VerifyChecksum reports whether the snapshot's stored StateChecksum
// matches what ComputeChecksum derives from its current state.
func (s *OrderSnapshot) VerifyChecksum() (bool, error) {
	sum, err := s.ComputeChecksum()
	if err != nil {
		return false, err
	}
	return sum == s.StateChecksum, nil
}
