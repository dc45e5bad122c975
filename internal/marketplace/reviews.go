package marketplace

import (
	"context"

	"github.com/xtrntr/marketplace/internal/models"
)

// SubmitReview records a 1-5 star review from a buyer who has ordered the
// product and folds it into the product's aggregate rating. A buyer may
// review the same product more than once.
func (e *Engine) SubmitReview(ctx context.Context, buyer models.AccountID, productID uint64, rating uint8, comment string) (models.Review, error) {
	ev := &models.Event{
		Kind:      models.EventReviewSubmitted,
		Caller:    buyer,
		ProductID: productID,
		Rating:    rating,
		Comment:   comment,
	}
	if err := e.execute(ctx, ev); err != nil {
		return models.Review{}, err
	}
	return models.Review{
		ProductID: productID,
		Buyer:     buyer,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: ev.At,
	}, nil
}

func (e *Engine) planSubmitReview(ev *models.Event) (effect, error) {
	if ev.Rating < 1 || ev.Rating > 5 {
		return effect{}, ErrRatingOutOfRange
	}
	if !e.purchases[ev.Caller][ev.ProductID] {
		return effect{}, ErrPurchaseRequired
	}
	p := e.products[ev.ProductID]
	return effect{commit: func() {
		e.reviews[p.ID] = append(e.reviews[p.ID], models.Review{
			ProductID: p.ID,
			Buyer:     ev.Caller,
			Rating:    ev.Rating,
			Comment:   ev.Comment,
			CreatedAt: ev.At,
		})
		applyRating(p, ev.Rating)
	}}, nil
}

// ProductReviews returns the reviews of a product in submission order.
func (e *Engine) ProductReviews(productID uint64) []models.Review {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Review, len(e.reviews[productID]))
	copy(out, e.reviews[productID])
	return out
}
