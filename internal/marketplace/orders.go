package marketplace

import (
	"context"

	"github.com/xtrntr/marketplace/internal/models"
)

// Purchase buys quantity units of a product. payment must equal
// price*quantity exactly. The seller's share stays in escrow until the buyer
// confirms delivery.
func (e *Engine) Purchase(ctx context.Context, buyer models.AccountID, productID, quantity, payment uint64) (models.Order, error) {
	ev := &models.Event{
		Kind:      models.EventOrderPlaced,
		Caller:    buyer,
		ProductID: productID,
		Quantity:  quantity,
		Amount:    payment,
	}
	if err := e.execute(ctx, ev); err != nil {
		return models.Order{}, err
	}
	o, _ := e.Order(ev.OrderID)
	return o, nil
}

func (e *Engine) planPurchase(ev *models.Event) (effect, error) {
	if ev.Quantity == 0 {
		return effect{}, ErrInvalidQuantity
	}
	p, ok := e.products[ev.ProductID]
	if !ok || !p.Active {
		return effect{}, ErrProductUnavailable
	}
	if err := checkStock(p, ev.Quantity); err != nil {
		return effect{}, err
	}
	if p.Seller == ev.Caller {
		return effect{}, ErrSellerCannotBuyOwnProduct
	}
	total, ok := orderTotal(p.Price, ev.Quantity)
	if !ok || ev.Amount != total {
		return effect{}, ErrIncorrectPayment
	}

	fee := ComputeFee(total, e.platform.CommissionRate)
	id := e.nextOrderID
	ev.OrderID = id
	order := &models.Order{
		ID:           id,
		ProductID:    p.ID,
		Buyer:        ev.Caller,
		Seller:       p.Seller,
		Quantity:     ev.Quantity,
		TotalPrice:   total,
		SellerAmount: total - fee,
		Fee:          fee,
		Status:       models.OrderPending,
		CreatedAt:    ev.At,
		UpdatedAt:    ev.At,
	}
	return effect{commit: func() {
		e.received += total
		e.platform.Earnings += fee
		recordSale(p, ev.Quantity)
		e.orders[id] = order
		e.nextOrderID++
		e.buyerIndex[ev.Caller] = append(e.buyerIndex[ev.Caller], id)
		bought := e.purchases[ev.Caller]
		if bought == nil {
			bought = make(map[uint64]bool)
			e.purchases[ev.Caller] = bought
		}
		bought[p.ID] = true
	}}, nil
}

// MarkShipped moves a pending order to shipped. Only the order's seller may
// call it.
func (e *Engine) MarkShipped(ctx context.Context, caller models.AccountID, orderID uint64) error {
	ev := &models.Event{Kind: models.EventOrderShipped, Caller: caller, OrderID: orderID}
	return e.execute(ctx, ev)
}

func (e *Engine) planMarkShipped(ev *models.Event) (effect, error) {
	o, ok := e.orders[ev.OrderID]
	if !ok {
		return effect{}, ErrOrderNotFound
	}
	if o.Seller != ev.Caller {
		return effect{}, ErrNotOrderSeller
	}
	if o.Status != models.OrderPending {
		return effect{}, ErrInvalidState
	}
	return effect{commit: func() {
		o.Status = models.OrderShipped
		o.UpdatedAt = ev.At
	}}, nil
}

// ConfirmDelivery completes a shipped order and credits the seller's share to
// their withdrawable balance. Only the order's buyer may call it.
func (e *Engine) ConfirmDelivery(ctx context.Context, caller models.AccountID, orderID uint64) error {
	ev := &models.Event{Kind: models.EventOrderCompleted, Caller: caller, OrderID: orderID}
	return e.execute(ctx, ev)
}

func (e *Engine) planConfirmDelivery(ev *models.Event) (effect, error) {
	o, ok := e.orders[ev.OrderID]
	if !ok {
		return effect{}, ErrOrderNotFound
	}
	if o.Buyer != ev.Caller {
		return effect{}, ErrNotOrderBuyer
	}
	if o.Status != models.OrderShipped {
		return effect{}, ErrInvalidState
	}
	s := e.sellers[o.Seller]
	ev.Amount = o.SellerAmount
	return effect{commit: func() {
		o.Status = models.OrderCompleted
		o.UpdatedAt = ev.At
		e.creditSeller(s, o.SellerAmount)
	}}, nil
}

// Order returns a copy of the order with the given id.
func (e *Engine) Order(id uint64) (models.Order, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.orders[id]
	if !ok {
		return models.Order{}, false
	}
	return *o, true
}

// BuyerOrders returns the orders placed by account, oldest first.
func (e *Engine) BuyerOrders(account models.AccountID) []models.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.buyerIndex[account]
	out := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, *e.orders[id])
	}
	return out
}

// SellerOrders returns the orders against account's products, oldest first.
func (e *Engine) SellerOrders(account models.AccountID) []models.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Order, 0)
	for id := uint64(1); id < e.nextOrderID; id++ {
		if o := e.orders[id]; o.Seller == account {
			out = append(out, *o)
		}
	}
	return out
}

// HasPurchased reports whether buyer has any order, in any status, for the
// product.
func (e *Engine) HasPurchased(buyer models.AccountID, productID uint64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.purchases[buyer][productID]
}

// OrderCount returns the number of orders ever created.
func (e *Engine) OrderCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nextOrderID - 1
}
