// Command seed-db loads the product catalog and the storefront/terminal API
// keys into the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/baminaj/storefront/internal/domain/auth"
	"github.com/baminaj/storefront/internal/domain/product"
	"github.com/baminaj/storefront/internal/storage/postgres"
)

type productJSON struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Description string          `json:"description"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		customerKey  string
		staffKey     string
		pepper       string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&customerKey, "customer-api-key", "", "storefront API key to seed (or STORE_SEED_CUSTOMER_KEY env)")
	flag.StringVar(&staffKey, "staff-api-key", "", "pickup terminal API key to seed (or STORE_SEED_STAFF_KEY env)")
	flag.StringVar(&pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STORE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if customerKey == "" {
		customerKey = os.Getenv("STORE_SEED_CUSTOMER_KEY")
	}
	if staffKey == "" {
		staffKey = os.Getenv("STORE_SEED_STAFF_KEY")
	}
	if customerKey == "" && staffKey == "" {
		slog.Error("at least one API key is required: set --customer-api-key or --staff-api-key")
		os.Exit(1)
	}
	if pepper == "" {
		pepper = os.Getenv("STORE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, customerKey, staffKey, pepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, customerKey, staffKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	keys := postgres.NewAPIKeyRepository(pool)
	if customerKey != "" {
		if err := seedAPIKey(ctx, keys, "storefront", customerKey, pepper, []string{auth.ScopeOrders}); err != nil {
			return errors.Wrap(err, "seed storefront key")
		}
	}
	if staffKey != "" {
		if err := seedAPIKey(ctx, keys, "pickup-terminal", staffKey, pepper, []string{auth.ScopePickup}); err != nil {
			return errors.Wrap(err, "seed terminal key")
		}
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, &product.Product{
			ID:          p.ID,
			Name:        p.Name,
			Price:       p.Price,
			Category:    p.Category,
			ImageRef:    p.Image,
			Description: p.Description,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, name, key, pepper string, scopes []string) error {
	if err := repo.Upsert(ctx, &auth.APIKeyInfo{
		ID:      name,
		KeyHash: auth.HashKey([]byte(pepper), key),
		Name:    name,
		Scopes:  scopes,
	}); err != nil {
		return errors.Wrapf(err, "upsert API key %s", name)
	}

	slog.Info("upserted API key", slog.String("name", name), slog.Any("scopes", scopes))
	return nil
}
