package settlement

// Seller is the subset of seller master data used by settlement.
type Seller struct {
	ID              string
	Name            string
	PayoutAccountID string
}

// HasPayoutAccount reports whether a payout destination is configured.
func (s *Seller) HasPayoutAccount() bool {
	return s != nil && s.PayoutAccountID != ""
}
