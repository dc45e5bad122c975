package marketplace

import (
	"context"
	"sort"

	"github.com/xtrntr/marketplace/internal/models"
)

// ProductInput carries the fields of a new listing
type ProductInput struct {
	Name        string
	Description string
	Image       string
	Price       uint64
	Stock       uint64
	Category    models.Category
}

// ProductUpdate carries the mutable fields of an existing listing
type ProductUpdate struct {
	Name        string
	Description string
	Image       string
	Price       uint64
	Stock       uint64
}

// AddProduct lists a new product for the calling seller.
func (e *Engine) AddProduct(ctx context.Context, caller models.AccountID, in ProductInput) (models.Product, error) {
	ev := &models.Event{
		Kind:        models.EventProductAdded,
		Caller:      caller,
		Name:        in.Name,
		Description: in.Description,
		Image:       in.Image,
		Price:       in.Price,
		Stock:       in.Stock,
		Category:    in.Category,
	}
	if err := e.execute(ctx, ev); err != nil {
		return models.Product{}, err
	}
	p, _ := e.Product(ev.ProductID)
	return p, nil
}

func (e *Engine) planAddProduct(ev *models.Event) (effect, error) {
	s, ok := e.sellers[ev.Caller]
	if !ok || !s.Registered || !s.Active {
		return effect{}, ErrNotRegisteredSeller
	}
	if ev.Price == 0 {
		return effect{}, ErrInvalidPrice
	}
	if ev.Stock == 0 {
		return effect{}, ErrInvalidStock
	}
	if !ev.Category.Valid() {
		return effect{}, ErrInvalidCategory
	}
	id := e.nextProductID
	ev.ProductID = id
	return effect{commit: func() {
		e.products[id] = &models.Product{
			ID:          id,
			Seller:      ev.Caller,
			Name:        ev.Name,
			Description: ev.Description,
			Image:       ev.Image,
			Price:       ev.Price,
			Stock:       ev.Stock,
			Category:    ev.Category,
			Active:      true,
			CreatedAt:   ev.At,
		}
		e.sellerIndex[ev.Caller] = append(e.sellerIndex[ev.Caller], id)
		e.nextProductID++
	}}, nil
}

// UpdateProduct replaces the mutable fields of a listing owned by caller.
// Sales and rating history are kept.
func (e *Engine) UpdateProduct(ctx context.Context, caller models.AccountID, id uint64, in ProductUpdate) (models.Product, error) {
	ev := &models.Event{
		Kind:        models.EventProductUpdated,
		Caller:      caller,
		ProductID:   id,
		Name:        in.Name,
		Description: in.Description,
		Image:       in.Image,
		Price:       in.Price,
		Stock:       in.Stock,
	}
	if err := e.execute(ctx, ev); err != nil {
		return models.Product{}, err
	}
	p, _ := e.Product(id)
	return p, nil
}

func (e *Engine) planUpdateProduct(ev *models.Event) (effect, error) {
	p, err := e.ownedProduct(ev.ProductID, ev.Caller)
	if err != nil {
		return effect{}, err
	}
	if ev.Price == 0 {
		return effect{}, ErrInvalidPrice
	}
	return effect{commit: func() {
		p.Name = ev.Name
		p.Description = ev.Description
		p.Image = ev.Image
		p.Price = ev.Price
		p.Stock = ev.Stock
	}}, nil
}

// ToggleActive flips the listing's active flag. Inactive products cannot be
// purchased but stay addressable for order history.
func (e *Engine) ToggleActive(ctx context.Context, caller models.AccountID, id uint64) (bool, error) {
	ev := &models.Event{Kind: models.EventProductToggled, Caller: caller, ProductID: id}
	if err := e.execute(ctx, ev); err != nil {
		return false, err
	}
	return ev.Active, nil
}

func (e *Engine) planToggleActive(ev *models.Event) (effect, error) {
	p, err := e.ownedProduct(ev.ProductID, ev.Caller)
	if err != nil {
		return effect{}, err
	}
	ev.Active = !p.Active
	return effect{commit: func() { p.Active = ev.Active }}, nil
}

func (e *Engine) ownedProduct(id uint64, caller models.AccountID) (*models.Product, error) {
	p, ok := e.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	if p.Seller != caller {
		return nil, ErrNotOwner
	}
	return p, nil
}

// checkStock validates a sale of qty units of p.
func checkStock(p *models.Product, qty uint64) error {
	if qty > p.Stock {
		return ErrInsufficientStock
	}
	return nil
}

// recordSale decrements stock and increments sales. Callers validate with
// checkStock first.
func recordSale(p *models.Product, qty uint64) {
	p.Stock -= qty
	p.TotalSales += qty
}

// applyRating folds a star rating into the running mean stored at x100.
func applyRating(p *models.Product, stars uint8) {
	p.Rating = (p.Rating*p.RatingCount + uint64(stars)*100) / (p.RatingCount + 1)
	p.RatingCount++
}

// Product returns a copy of the product with the given id.
func (e *Engine) Product(id uint64) (models.Product, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.products[id]
	if !ok {
		return models.Product{}, false
	}
	return *p, true
}

// ActiveProducts returns the purchasable listings ordered by id.
func (e *Engine) ActiveProducts() []models.Product {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Product, 0, len(e.products))
	for _, p := range e.products {
		if p.Active {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SellerProducts returns every listing created by account, in creation order.
func (e *Engine) SellerProducts(account models.AccountID) []models.Product {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.sellerIndex[account]
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, *e.products[id])
	}
	return out
}
