package marketplace

import (
	"fmt"

	"github.com/xtrntr/marketplace/internal/models"
)

// EscrowReport breaks down the funds the marketplace currently holds.
type EscrowReport struct {
	Received         uint64 `json:"received"`
	Withdrawn        uint64 `json:"withdrawn"`
	HeldInOrders     uint64 `json:"held_in_orders"`
	PendingBalances  uint64 `json:"pending_balances"`
	PlatformEarnings uint64 `json:"platform_earnings"`
}

// Holdings is the total the marketplace is accountable for.
func (r EscrowReport) Holdings() uint64 {
	return r.HeldInOrders + r.PendingBalances + r.PlatformEarnings
}

// Balanced reports whether holdings equal funds received minus funds paid out.
func (r EscrowReport) Balanced() bool {
	return r.Holdings() == r.Received-r.Withdrawn
}

// Audit computes the escrow report from a consistent snapshot.
func (e *Engine) Audit() EscrowReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r := EscrowReport{
		Received:         e.received,
		Withdrawn:        e.withdrawn,
		PlatformEarnings: e.platform.Earnings,
	}
	for _, o := range e.orders {
		if o.Status.Escrowed() {
			r.HeldInOrders += o.SellerAmount
		}
	}
	for _, s := range e.sellers {
		r.PendingBalances += s.PendingWithdrawal
	}
	return r
}

// CheckSolvency returns ErrLedgerImbalance if the escrow report does not
// balance.
func (e *Engine) CheckSolvency() error {
	r := e.Audit()
	if !r.Balanced() {
		return fmt.Errorf("%w: holdings %d, received %d, withdrawn %d",
			ErrLedgerImbalance, r.Holdings(), r.Received, r.Withdrawn)
	}
	return nil
}

// Stats returns platform-wide counters.
func (e *Engine) Stats() models.PlatformStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.PlatformStats{
		TotalProducts:  e.nextProductID - 1,
		TotalOrders:    e.nextOrderID - 1,
		TotalSellers:   e.sellerCount,
		CommissionRate: e.platform.CommissionRate,
	}
}
