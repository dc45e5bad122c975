package marketplace

import (
	"context"
	"sync"

	"github.com/xtrntr/marketplace/internal/models"
)

// MemoryWallet credits external balances in memory.
type MemoryWallet struct {
	mu       sync.Mutex
	balances map[models.AccountID]uint64
	failNext error
}

func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{balances: make(map[models.AccountID]uint64)}
}

// Transfer credits amount to the external balance of to.
func (w *MemoryWallet) Transfer(ctx context.Context, to models.AccountID, amount uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.failNext != nil {
		err := w.failNext
		w.failNext = nil
		return err
	}
	w.balances[to] += amount
	return nil
}

// FailNext makes the next transfer return err.
func (w *MemoryWallet) FailNext(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failNext = err
}

// Balance returns the external balance of account.
func (w *MemoryWallet) Balance(account models.AccountID) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[account]
}
