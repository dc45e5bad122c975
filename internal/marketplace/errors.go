package marketplace

import "errors"

// Error is a typed marketplace outcome. Code is the stable identifier callers
// use to translate failures; every Error leaves the ledger unchanged.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return "marketplace: " + e.Message
}

func newError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrAlreadyRegistered         = newError("AlreadyRegistered", "already registered")
	ErrNotRegisteredSeller       = newError("NotRegisteredSeller", "caller is not a registered seller")
	ErrNotOwner                  = newError("NotOwner", "caller is not the owner")
	ErrInvalidPrice              = newError("InvalidPrice", "price must be greater than zero")
	ErrInvalidStock              = newError("InvalidStock", "stock must be greater than zero")
	ErrInvalidCategory           = newError("InvalidCategory", "unknown category")
	ErrInvalidQuantity           = newError("InvalidQuantity", "quantity must be greater than zero")
	ErrInsufficientStock         = newError("InsufficientStock", "insufficient stock")
	ErrProductUnavailable        = newError("ProductUnavailable", "product is not available")
	ErrProductNotFound           = newError("ProductNotFound", "product not found")
	ErrSellerNotFound            = newError("SellerNotFound", "seller not found")
	ErrOrderNotFound             = newError("OrderNotFound", "order not found")
	ErrSellerCannotBuyOwnProduct = newError("SellerCannotBuyOwnProduct", "seller cannot buy own product")
	ErrIncorrectPayment          = newError("IncorrectPayment", "incorrect payment amount")
	ErrInvalidState              = newError("InvalidState", "order is not in the required state")
	ErrNotOrderSeller            = newError("NotOrderSeller", "caller is not the order seller")
	ErrNotOrderBuyer             = newError("NotOrderBuyer", "caller is not the order buyer")
	ErrRatingOutOfRange          = newError("RatingOutOfRange", "rating must be between 1 and 5")
	ErrPurchaseRequired          = newError("PurchaseRequired", "must purchase the product before reviewing")
	ErrNoFunds                   = newError("NoFunds", "no funds to withdraw")
	ErrRateTooHigh               = newError("RateTooHigh", "commission rate cannot exceed 10 percent")
	ErrTransferFailed            = newError("TransferFailed", "transfer to external account failed")
	ErrLedgerImbalance           = newError("LedgerImbalance", "escrow holdings do not match funds received")
)

// Code returns the typed outcome code of err, or "" when err is not a
// marketplace outcome.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
