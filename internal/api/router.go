package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/xtrntr/marketplace/internal/metrics"
)

// RouterOptions carries the optional collaborators mounted next to the
// marketplace handlers.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Hub            *Hub
}

// NewRouter wires every marketplace route onto a chi router.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	// Credentials are only allowed for an explicit origin list
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	}))

	if opts.Hub != nil {
		r.Get("/ws", opts.Hub.ServeHTTP)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	// Public endpoints
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/stats", h.GetStats)
	r.Get("/products", h.ListProducts)
	r.Get("/products/{id}", h.GetProduct)
	r.Get("/products/{id}/reviews", h.ListReviews)
	r.Get("/sellers/{account}", h.GetSeller)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)

		r.Post("/sellers", h.RegisterSeller)
		r.Post("/sellers/withdraw", h.WithdrawSeller)
		r.Get("/sellers/me/products", h.GetMyProducts)
		r.Get("/sellers/me/orders", h.GetMyOrders)

		r.Post("/products", h.AddProduct)
		r.Put("/products/{id}", h.UpdateProduct)
		r.Post("/products/{id}/toggle", h.ToggleProduct)
		r.Post("/products/{id}/reviews", h.SubmitReview)
		r.Get("/products/{id}/purchased", h.HasPurchased)

		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.GetUserOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Post("/orders/{id}/ship", h.ShipOrder)
		r.Post("/orders/{id}/confirm", h.ConfirmOrder)

		r.Post("/platform/withdraw", h.WithdrawPlatform)
		r.Put("/platform/commission", h.SetCommission)
		r.Put("/platform/sellers/{account}/active", h.SetSellerActive)
		r.Get("/platform/audit", h.GetAudit)
	})

	return r
}
