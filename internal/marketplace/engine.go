package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xtrntr/marketplace/internal/models"
)

// DefaultCommissionRate is the platform fee, in percent, applied when the
// engine is constructed without an explicit rate.
const DefaultCommissionRate uint8 = 2

// MaxCommissionRate bounds the platform fee in percent.
const MaxCommissionRate uint8 = 10

// Wallet moves funds from the marketplace to an external account.
type Wallet interface {
	Transfer(ctx context.Context, to models.AccountID, amount uint64) error
}

// Settler is a Wallet that can send a payout and journal its event in one
// atomic unit. When the wallet implements it, payout events are not passed
// to the Journal.
type Settler interface {
	Settle(ctx context.Context, ev models.Event, to models.AccountID, amount uint64) error
}

// Journal persists committed events in order.
type Journal interface {
	Append(ctx context.Context, ev models.Event) error
}

// Emitter is notified of every committed event in Seq order. Emit is called
// while commands are serialized, so it must not block or call back into the
// engine's commands.
type Emitter interface {
	Emit(ev models.Event)
}

type nopJournal struct{}

func (nopJournal) Append(context.Context, models.Event) error { return nil }

// Config describes the platform account created at construction time.
type Config struct {
	Owner          models.AccountID
	CommissionRate uint8
}

// Engine is the marketplace ledger: seller accounts, catalog, commission,
// escrowed orders and reviews. All mutations are serialized and applied as a
// single all-or-nothing unit; reads may run concurrently.
type Engine struct {
	// cmdMu serializes commands. mu guards the ledger state and is never
	// held across wallet or journal I/O, so reads do not wait on payouts.
	cmdMu sync.Mutex
	mu    sync.RWMutex

	platform models.Platform

	sellers     map[models.AccountID]*models.Seller
	sellerCount uint64

	products      map[uint64]*models.Product
	nextProductID uint64
	sellerIndex   map[models.AccountID][]uint64

	orders      map[uint64]*models.Order
	nextOrderID uint64
	buyerIndex  map[models.AccountID][]uint64
	purchases   map[models.AccountID]map[uint64]bool

	reviews map[uint64][]models.Review

	received  uint64
	withdrawn uint64
	seq       uint64

	wallet   Wallet
	journal  Journal
	emitters []Emitter
	nowFn    func() time.Time
	logger   *slog.Logger
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithJournal persists every committed event before it is applied.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		if j != nil {
			e.journal = j
		}
	}
}

// WithEmitter registers an observer of committed events.
func WithEmitter(em Emitter) Option {
	return func(e *Engine) {
		if em != nil {
			e.emitters = append(e.emitters, em)
		}
	}
}

// WithNowFunc overrides the clock. Intended for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.nowFn = now
		}
	}
}

// WithLogger sets the logger used for failures that cannot be returned.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an empty ledger owned by cfg.Owner. Withdrawals are paid
// out through wallet.
func NewEngine(cfg Config, wallet Wallet, opts ...Option) (*Engine, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("marketplace: platform owner is required")
	}
	if cfg.CommissionRate > MaxCommissionRate {
		return nil, ErrRateTooHigh
	}
	if wallet == nil {
		return nil, fmt.Errorf("marketplace: wallet is required")
	}
	e := &Engine{
		platform:      models.Platform{Owner: cfg.Owner, CommissionRate: cfg.CommissionRate},
		sellers:       make(map[models.AccountID]*models.Seller),
		products:      make(map[uint64]*models.Product),
		nextProductID: 1,
		sellerIndex:   make(map[models.AccountID][]uint64),
		orders:        make(map[uint64]*models.Order),
		nextOrderID:   1,
		buyerIndex:    make(map[models.AccountID][]uint64),
		purchases:     make(map[models.AccountID]map[uint64]bool),
		reviews:       make(map[uint64][]models.Review),
		wallet:        wallet,
		journal:       nopJournal{},
		nowFn:         time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// effect is the staged outcome of a validated command. commit must not fail
// and runs only once the event is durable and any payout has been sent.
type effect struct {
	commit func()
	payout *payout
}

type payout struct {
	to     models.AccountID
	amount uint64
}

// execute runs one command as a unit: validate and stage, journal (and pay
// out), commit, emit. Nothing is applied unless every step before commit
// succeeds.
func (e *Engine) execute(ctx context.Context, ev *models.Event) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()

	e.mu.RLock()
	ev.Seq = e.seq + 1
	ev.At = e.nowFn().UTC()
	eff, err := e.plan(ev)
	e.mu.RUnlock()
	if err != nil {
		return err
	}

	if eff.payout != nil {
		if err := e.settle(ctx, ev, eff); err != nil {
			return err
		}
	} else if err := e.journal.Append(ctx, *ev); err != nil {
		return fmt.Errorf("marketplace: failed to journal %s: %w", ev.Kind, err)
	}

	e.apply(ev.Seq, eff)
	e.emit(*ev)
	return nil
}

func (e *Engine) apply(seq uint64, eff effect) {
	e.mu.Lock()
	eff.commit()
	e.seq = seq
	e.mu.Unlock()
}

// settle sends a payout so that the journal and the wallet agree. A Settler
// does both atomically. Otherwise the event is journaled before the transfer,
// and a failed transfer is journaled as a reversal.
func (e *Engine) settle(ctx context.Context, ev *models.Event, eff effect) error {
	p := eff.payout
	if s, ok := e.wallet.(Settler); ok {
		if err := s.Settle(ctx, *ev, p.to, p.amount); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		return nil
	}

	if err := e.journal.Append(ctx, *ev); err != nil {
		return fmt.Errorf("marketplace: failed to journal %s: %w", ev.Kind, err)
	}
	if err := e.wallet.Transfer(ctx, p.to, p.amount); err != nil {
		e.revert(ctx, ev, eff)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	return nil
}

// revert journals the reversal of a payout whose transfer failed, leaving the
// balance in place. If even that cannot be written, the journaled payout is
// applied so memory matches what a restart would rebuild.
func (e *Engine) revert(ctx context.Context, ev *models.Event, eff effect) {
	if _, ok := e.journal.(nopJournal); ok {
		return
	}
	rev := models.Event{
		Seq:      ev.Seq + 1,
		Kind:     models.EventPayoutReverted,
		Caller:   ev.Caller,
		At:       ev.At,
		Amount:   ev.Amount,
		Reverted: ev.Kind,
	}
	if err := e.journal.Append(context.WithoutCancel(ctx), rev); err != nil {
		e.logger.Error("failed to journal payout reversal, funds need manual reconciliation",
			slog.String("kind", string(ev.Kind)),
			slog.Uint64("seq", ev.Seq),
			slog.String("account", string(eff.payout.to)),
			slog.Uint64("amount", eff.payout.amount),
			slog.Any("error", err))
		e.apply(ev.Seq, eff)
		return
	}
	e.mu.Lock()
	e.seq = rev.Seq
	e.mu.Unlock()
}

func (e *Engine) plan(ev *models.Event) (effect, error) {
	switch ev.Kind {
	case models.EventSellerRegistered:
		return e.planRegisterSeller(ev)
	case models.EventSellerActivity:
		return e.planSetSellerActive(ev)
	case models.EventSellerWithdrawal:
		return e.planWithdraw(ev)
	case models.EventProductAdded:
		return e.planAddProduct(ev)
	case models.EventProductUpdated:
		return e.planUpdateProduct(ev)
	case models.EventProductToggled:
		return e.planToggleActive(ev)
	case models.EventOrderPlaced:
		return e.planPurchase(ev)
	case models.EventOrderShipped:
		return e.planMarkShipped(ev)
	case models.EventOrderCompleted:
		return e.planConfirmDelivery(ev)
	case models.EventReviewSubmitted:
		return e.planSubmitReview(ev)
	case models.EventCommissionRate:
		return e.planSetCommissionRate(ev)
	case models.EventPlatformWithdrawal:
		return e.planWithdrawPlatformEarnings(ev)
	case models.EventPayoutReverted:
		return e.planPayoutReverted(ev)
	default:
		return effect{}, fmt.Errorf("marketplace: unknown event kind %q", ev.Kind)
	}
}

// Replay rebuilds the ledger from journaled events. Events must be in Seq
// order and are applied without transfers, journaling or emission.
func (e *Engine) Replay(events []models.Event) error {
	e.cmdMu.Lock()
	defer e.cmdMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range events {
		ev := events[i]
		if ev.Seq != e.seq+1 {
			return fmt.Errorf("marketplace: replay gap: expected seq %d, got %d", e.seq+1, ev.Seq)
		}
		eff, err := e.plan(&ev)
		if err != nil {
			return fmt.Errorf("marketplace: replay seq %d (%s): %w", ev.Seq, ev.Kind, err)
		}
		eff.commit()
		e.seq = ev.Seq
	}
	return nil
}

// Seq returns the sequence number of the last committed event.
func (e *Engine) Seq() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seq
}

func (e *Engine) emit(ev models.Event) {
	for _, em := range e.emitters {
		em.Emit(ev)
	}
}
