package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/xtrntr/marketplace/internal/auth"
	"github.com/xtrntr/marketplace/internal/config"
	"github.com/xtrntr/marketplace/internal/db"
	"github.com/xtrntr/marketplace/internal/logging"
	"github.com/xtrntr/marketplace/internal/marketplace"
	"github.com/xtrntr/marketplace/internal/models"
)

const seedPassword = "password123"

// Seed the database with demo users, a seller, a catalog and one settled
// order. The events go through the engine so the server can replay them.
func main() {
	configPath := flag.String("config", "marketplace.toml", "path to the TOML config file")
	flag.Parse()

	cfg := config.Default()
	if loaded, err := config.Load(*configPath); err == nil {
		cfg = loaded
	} else if url := os.Getenv("MARKETPLACE_DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}
	logger := logging.Setup("marketplace-seed", cfg.Environment, cfg.LogLevel)

	if err := seed(context.Background(), cfg, logger); err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func seed(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("a database URL is required (set MARKETPLACE_DATABASE_URL)")
	}

	// Connect to database
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close(ctx)

	// First check if we already have events
	events, err := database.Events(ctx)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Printf("Database already has %d events. No need to seed.\n", len(events))
		return nil
	}

	authService := auth.NewAuthService(database, "seed", 0)
	accounts := make(map[string]models.AccountID)
	for _, name := range []string{"admin", "seller1", "buyer1"} {
		account, err := ensureUser(ctx, authService, database, name)
		if err != nil {
			return err
		}
		accounts[name] = account
	}

	owner := models.AccountID(cfg.PlatformOwner)
	if owner == "" {
		owner = accounts["admin"]
	}
	engine, err := marketplace.NewEngine(marketplace.Config{
		Owner:          owner,
		CommissionRate: cfg.CommissionRate,
	}, database, marketplace.WithJournal(database), marketplace.WithLogger(logger))
	if err != nil {
		return err
	}

	seller, buyer := accounts["seller1"], accounts["buyer1"]
	if _, err := engine.RegisterSeller(ctx, seller, "Demo Store"); err != nil {
		return fmt.Errorf("failed to register seller: %w", err)
	}

	catalog := []marketplace.ProductInput{
		{Name: "Wireless Headphones", Description: "Over-ear, noise cancelling", Image: "ipfs://headphones", Price: 12000, Stock: 25, Category: models.CategoryElectronics},
		{Name: "Linen Shirt", Description: "Relaxed fit", Image: "ipfs://shirt", Price: 4500, Stock: 40, Category: models.CategoryClothing},
		{Name: "The Go Programming Language", Image: "ipfs://gopl", Price: 3800, Stock: 10, Category: models.CategoryBooks},
		{Name: "Desk Lamp", Image: "ipfs://lamp", Price: 2500, Stock: 15, Category: models.CategoryHome},
	}
	var products []models.Product
	for _, in := range catalog {
		p, err := engine.AddProduct(ctx, seller, in)
		if err != nil {
			return fmt.Errorf("failed to add product %q: %w", in.Name, err)
		}
		products = append(products, p)
	}

	// One order taken all the way to a review
	lamp := products[3]
	order, err := engine.Purchase(ctx, buyer, lamp.ID, 2, lamp.Price*2)
	if err != nil {
		return fmt.Errorf("failed to place order: %w", err)
	}
	if err := engine.MarkShipped(ctx, seller, order.ID); err != nil {
		return fmt.Errorf("failed to ship order: %w", err)
	}
	if err := engine.ConfirmDelivery(ctx, buyer, order.ID); err != nil {
		return fmt.Errorf("failed to confirm order: %w", err)
	}
	if _, err := engine.SubmitReview(ctx, buyer, lamp.ID, 5, "Bright and sturdy"); err != nil {
		return fmt.Errorf("failed to submit review: %w", err)
	}

	// A second order left pending so escrow is non-empty
	book := products[2]
	if _, err := engine.Purchase(ctx, buyer, book.ID, 1, book.Price); err != nil {
		return fmt.Errorf("failed to place order: %w", err)
	}

	if err := engine.CheckSolvency(); err != nil {
		return err
	}

	fmt.Printf("Successfully seeded %d events.\n", engine.Seq())
	fmt.Printf("Users (password %q): admin=%s seller1=%s buyer1=%s\n", seedPassword, accounts["admin"], seller, buyer)
	if cfg.PlatformOwner == "" {
		fmt.Printf("Set MARKETPLACE_PLATFORM_OWNER=%s before starting the server.\n", owner)
	}
	return nil
}

func ensureUser(ctx context.Context, authService *auth.AuthService, database *db.DB, username string) (models.AccountID, error) {
	user, err := database.GetUserByUsername(ctx, username)
	if err == nil {
		return user.Account, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return "", err
	}
	user, err = authService.Register(ctx, username, seedPassword)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", username, err)
	}
	return user.Account, nil
}
