package models

import "time"

// AccountID identifies a caller. It is assigned at user registration and is
// opaque to the marketplace core.
type AccountID string

// User represents a registered user
type User struct {
	ID           int
	Account      AccountID
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Category is the closed set of product categories. The integer value is the
// wire encoding.
type Category uint8

const (
	CategoryElectronics Category = iota
	CategoryClothing
	CategoryBooks
	CategoryHome
	CategorySports
	CategoryOther
)

var categoryNames = [...]string{"Electronics", "Clothing", "Books", "Home", "Sports", "Other"}

// Valid reports whether the category index is within the supported range.
func (c Category) Valid() bool {
	return int(c) < len(categoryNames)
}

func (c Category) String() string {
	if !c.Valid() {
		return "Unknown"
	}
	return categoryNames[c]
}

// OrderStatus is the order lifecycle state. The integer value is the wire
// encoding; Delivered and Cancelled are reserved and never produced.
type OrderStatus uint8

const (
	OrderPending OrderStatus = iota
	OrderShipped
	OrderDelivered
	OrderCompleted
	OrderCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "Pending"
	case OrderShipped:
		return "Shipped"
	case OrderDelivered:
		return "Delivered"
	case OrderCompleted:
		return "Completed"
	case OrderCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Escrowed reports whether funds for an order in this status are still held
// by the marketplace.
func (s OrderStatus) Escrowed() bool {
	return s == OrderPending || s == OrderShipped
}

// Seller is a registered seller and their earnings ledger
type Seller struct {
	Account           AccountID `json:"account"`
	Name              string    `json:"name"`
	Registered        bool      `json:"is_registered"`
	Active            bool      `json:"is_active"`
	TotalEarnings     uint64    `json:"total_earnings"`
	PendingWithdrawal uint64    `json:"pending_withdrawal"`
	TotalSales        uint64    `json:"total_sales"`
	RegisteredAt      time.Time `json:"registered_at"`
}

// Product is a catalog listing. Rating is the running mean scaled by 100.
type Product struct {
	ID          uint64    `json:"id"`
	Seller      AccountID `json:"seller"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Price       uint64    `json:"price"`
	Stock       uint64    `json:"stock"`
	Category    Category  `json:"category"`
	Active      bool      `json:"is_active"`
	TotalSales  uint64    `json:"total_sales"`
	Rating      uint64    `json:"rating"`
	RatingCount uint64    `json:"total_ratings"`
	CreatedAt   time.Time `json:"created_at"`
}

// Order represents a purchase held in escrow until delivery is confirmed
type Order struct {
	ID           uint64      `json:"id"`
	ProductID    uint64      `json:"product_id"`
	Buyer        AccountID   `json:"buyer"`
	Seller       AccountID   `json:"seller"`
	Quantity     uint64      `json:"quantity"`
	TotalPrice   uint64      `json:"total_price"`
	SellerAmount uint64      `json:"seller_amount"`
	Fee          uint64      `json:"fee"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Review is a buyer's rating of a purchased product
type Review struct {
	ProductID uint64    `json:"product_id"`
	Buyer     AccountID `json:"buyer"`
	Rating    uint8     `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Platform holds the operator identity and the commission ledger
type Platform struct {
	Owner          AccountID `json:"owner"`
	CommissionRate uint8     `json:"commission_rate"`
	Earnings       uint64    `json:"earnings"`
}

// PlatformStats summarises marketplace counters
type PlatformStats struct {
	TotalProducts  uint64 `json:"total_products"`
	TotalOrders    uint64 `json:"total_orders"`
	TotalSellers   uint64 `json:"total_sellers"`
	CommissionRate uint8  `json:"commission_rate"`
}

// Payout is a transfer from the marketplace to an external account
type Payout struct {
	Reference string    `json:"reference"`
	Account   AccountID `json:"account"`
	Amount    uint64    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
