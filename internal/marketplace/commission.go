package marketplace

import (
	"context"
	"math/bits"

	"github.com/xtrntr/marketplace/internal/models"
)

// ComputeFee returns floor(total * rate / 100). rate must not exceed
// MaxCommissionRate.
func ComputeFee(total uint64, rate uint8) uint64 {
	hi, lo := bits.Mul64(total, uint64(rate))
	fee, _ := bits.Div64(hi, lo, 100)
	return fee
}

// orderTotal returns price*qty and false on overflow.
func orderTotal(price, qty uint64) (uint64, bool) {
	hi, lo := bits.Mul64(price, qty)
	return lo, hi == 0
}

// SetCommissionRate changes the platform fee applied to future purchases.
func (e *Engine) SetCommissionRate(ctx context.Context, caller models.AccountID, rate uint8) error {
	ev := &models.Event{Kind: models.EventCommissionRate, Caller: caller, Rate: rate}
	return e.execute(ctx, ev)
}

func (e *Engine) planSetCommissionRate(ev *models.Event) (effect, error) {
	if ev.Caller != e.platform.Owner {
		return effect{}, ErrNotOwner
	}
	if ev.Rate > MaxCommissionRate {
		return effect{}, ErrRateTooHigh
	}
	return effect{commit: func() { e.platform.CommissionRate = ev.Rate }}, nil
}

// WithdrawPlatformEarnings pays accumulated commission to the owner and
// returns the amount sent.
func (e *Engine) WithdrawPlatformEarnings(ctx context.Context, caller models.AccountID) (uint64, error) {
	ev := &models.Event{Kind: models.EventPlatformWithdrawal, Caller: caller}
	if err := e.execute(ctx, ev); err != nil {
		return 0, err
	}
	return ev.Amount, nil
}

func (e *Engine) planWithdrawPlatformEarnings(ev *models.Event) (effect, error) {
	if ev.Caller != e.platform.Owner {
		return effect{}, ErrNotOwner
	}
	amount := e.platform.Earnings
	if amount == 0 {
		return effect{}, ErrNoFunds
	}
	ev.Amount = amount
	return effect{
		commit: func() {
			e.platform.Earnings = 0
			e.withdrawn += amount
		},
		payout: &payout{to: ev.Caller, amount: amount},
	}, nil
}

// Platform returns a copy of the platform account.
func (e *Engine) Platform() models.Platform {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.platform
}
