package marketplace

import (
	"context"
	"fmt"

	"github.com/xtrntr/marketplace/internal/models"
)

// RegisterSeller creates a seller record for caller with zero balances.
func (e *Engine) RegisterSeller(ctx context.Context, caller models.AccountID, name string) (models.Seller, error) {
	ev := &models.Event{Kind: models.EventSellerRegistered, Caller: caller, Name: name}
	if err := e.execute(ctx, ev); err != nil {
		return models.Seller{}, err
	}
	s, _ := e.Seller(caller)
	return s, nil
}

func (e *Engine) planRegisterSeller(ev *models.Event) (effect, error) {
	if _, ok := e.sellers[ev.Caller]; ok {
		return effect{}, ErrAlreadyRegistered
	}
	return effect{commit: func() {
		e.sellers[ev.Caller] = &models.Seller{
			Account:      ev.Caller,
			Name:         ev.Name,
			Registered:   true,
			Active:       true,
			RegisteredAt: ev.At,
		}
		e.sellerCount++
	}}, nil
}

// SetSellerActive lets the platform owner suspend or reinstate a seller.
// Inactive sellers cannot list new products.
func (e *Engine) SetSellerActive(ctx context.Context, caller, seller models.AccountID, active bool) error {
	ev := &models.Event{Kind: models.EventSellerActivity, Caller: caller, Target: seller, Active: active}
	return e.execute(ctx, ev)
}

func (e *Engine) planSetSellerActive(ev *models.Event) (effect, error) {
	if ev.Caller != e.platform.Owner {
		return effect{}, ErrNotOwner
	}
	s, ok := e.sellers[ev.Target]
	if !ok {
		return effect{}, ErrSellerNotFound
	}
	return effect{commit: func() { s.Active = ev.Active }}, nil
}

// Withdraw pays out the caller's pending balance and returns the amount sent.
func (e *Engine) Withdraw(ctx context.Context, caller models.AccountID) (uint64, error) {
	ev := &models.Event{Kind: models.EventSellerWithdrawal, Caller: caller}
	if err := e.execute(ctx, ev); err != nil {
		return 0, err
	}
	return ev.Amount, nil
}

func (e *Engine) planWithdraw(ev *models.Event) (effect, error) {
	s, ok := e.sellers[ev.Caller]
	if !ok || s.PendingWithdrawal == 0 {
		return effect{}, ErrNoFunds
	}
	amount := s.PendingWithdrawal
	ev.Amount = amount
	return effect{
		commit: func() {
			s.PendingWithdrawal = 0
			e.withdrawn += amount
		},
		payout: &payout{to: ev.Caller, amount: amount},
	}, nil
}

// planPayoutReverted restores a balance whose payout was journaled but never
// sent. Only replay reaches it; live commands leave the balance untouched.
func (e *Engine) planPayoutReverted(ev *models.Event) (effect, error) {
	if ev.Amount == 0 || ev.Amount > e.withdrawn {
		return effect{}, fmt.Errorf("marketplace: reverted payout of %d exceeds withdrawals", ev.Amount)
	}
	switch ev.Reverted {
	case models.EventSellerWithdrawal:
		s, ok := e.sellers[ev.Caller]
		if !ok {
			return effect{}, ErrSellerNotFound
		}
		return effect{commit: func() {
			s.PendingWithdrawal += ev.Amount
			e.withdrawn -= ev.Amount
		}}, nil
	case models.EventPlatformWithdrawal:
		return effect{commit: func() {
			e.platform.Earnings += ev.Amount
			e.withdrawn -= ev.Amount
		}}, nil
	default:
		return effect{}, fmt.Errorf("marketplace: cannot revert %q", ev.Reverted)
	}
}

// creditSeller releases escrowed funds to a seller's withdrawable balance.
func (e *Engine) creditSeller(s *models.Seller, amount uint64) {
	s.PendingWithdrawal += amount
	s.TotalEarnings += amount
	s.TotalSales++
}

// Seller returns a copy of the seller record for account.
func (e *Engine) Seller(account models.AccountID) (models.Seller, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sellers[account]
	if !ok {
		return models.Seller{}, false
	}
	return *s, true
}

// IsRegisteredSeller reports whether account has an active seller record.
func (e *Engine) IsRegisteredSeller(account models.AccountID) bool {
	s, ok := e.Seller(account)
	return ok && s.Registered && s.Active
}

// SellerCount returns the number of sellers ever registered.
func (e *Engine) SellerCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sellerCount
}
