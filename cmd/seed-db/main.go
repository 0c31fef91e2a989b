// Command seed-db loads clients, products, prices and an API key into the
// order database.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/franchise-orders/internal/domain/auth"
	"github.com/xenking/franchise-orders/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		fixtureFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixtureFile, "fixture", "db/seed/fixture.json", "path to the seed fixture")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or ORDERS_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ORDERS_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ORDERS_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or ORDERS_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ORDERS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixtureFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixtureFile, apiKey, pepper string) error {
	fx, err := loadFixture(fixtureFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: databaseURL})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	clients := postgres.NewClientRepository(pool)
	for i := range fx.Clients {
		c := &fx.Clients[i]
		id, err := clients.Upsert(ctx, c)
		if err != nil {
			return errors.Wrapf(err, "upsert client %s/%s", c.Code, c.Store)
		}
		slog.Info("upserted client", slog.Int64("id", id), slog.String("code", c.Code), slog.String("store", c.Store))
	}

	catalogRepo := postgres.NewCatalogRepository(pool)
	for i := range fx.Products {
		p := &fx.Products[i]
		id, err := catalogRepo.UpsertProduct(ctx, p)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.Code)
		}
		slog.Info("upserted product", slog.Int64("id", id), slog.String("code", p.Code))
	}

	stored, err := catalogRepo.UpsertPrices(ctx, fx.Prices)
	if err != nil {
		return errors.Wrap(err, "upsert prices")
	}
	slog.Info("upserted prices", slog.Int64("count", stored))

	return seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper)
}

func seedAPIKey(ctx context.Context, keys *postgres.APIKeyRepository, apiKey, pepper string) error {
	info := &auth.APIKeyInfo{
		ID:      "seed-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(apiKey)).String()[:8],
		KeyHash: auth.HashKey([]byte(pepper), apiKey),
		Name:    "Seeded key",
		Scopes:  []string{"orders"},
	}
	if err := keys.Upsert(ctx, info); err != nil {
		return errors.Wrap(err, "upsert API key")
	}
	slog.Info("upserted API key", slog.String("id", info.ID))
	return nil
}
