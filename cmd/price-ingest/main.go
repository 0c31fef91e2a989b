// Command price-ingest loads gzip-compressed pricing-group price lists into
// the order database.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/franchise-orders/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		batchSize   int
		workers     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "rows per upsert batch")
	flag.IntVar(&workers, "workers", 4, "files ingested concurrently")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("usage: price-ingest [flags] FILE.gz...")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files, max(batchSize, 1), max(workers, 1)); err != nil {
		slog.Error("price ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("price ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, batchSize, workers int) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{URL: databaseURL, MaxConns: int32(workers + 1)})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	catalogRepo := postgres.NewCatalogRepository(pool)
	codes, err := catalogRepo.ProductCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "load product codes")
	}
	slog.Info("catalog loaded", slog.Int("products", len(codes)))

	in := newIngester(codes, catalogRepo, batchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		g.Go(func() error {
			slog.Info("ingesting file", slog.String("file", f))
			return in.ingestFile(gctx, f)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("ingest summary",
		slog.Int64("lines", in.stats.lines.Load()),
		slog.Int64("invalid", in.stats.invalid.Load()),
		slog.Int64("unknown_product", in.stats.unknown.Load()),
		slog.Int64("stored", in.stats.stored.Load()),
	)
	return nil
}
