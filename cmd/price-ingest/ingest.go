package main

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/franchise-orders/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// priceStore is the part of *postgres.CatalogRepository the ingest writes to.
type priceStore interface {
	UpsertPrices(ctx context.Context, rows []postgres.PriceRow) (int64, error)
}

type stats struct {
	lines   atomic.Int64
	invalid atomic.Int64
	unknown atomic.Int64
	stored  atomic.Int64
}

// ingester streams price lists into the store. Codes absent from the bloom
// filter are certainly not in the catalog and are dropped before any write.
type ingester struct {
	catalog   *bloom.BloomFilter
	store     priceStore
	batchSize int
	stats     stats
}

func newIngester(codes []string, store priceStore, batchSize int) *ingester {
	filter := bloom.NewWithEstimates(uint(max(len(codes), 1)), bloomFPR)
	for _, c := range codes {
		filter.AddString(c)
	}
	return &ingester{catalog: filter, store: store, batchSize: batchSize}
}

// ingestFile reads one gzip-compressed price list.
func (in *ingester) ingestFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return in.ingest(ctx, gz, path)
}

func (in *ingester) ingest(ctx context.Context, r io.Reader, name string) error {
	batch := make([]postgres.PriceRow, 0, in.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := in.store.UpsertPrices(ctx, batch)
		if err != nil {
			return errors.Wrapf(err, "%s: write batch", name)
		}
		in.stats.stored.Add(n)
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		row, ok, err := parseLine(scanner.Text())
		if !ok {
			continue
		}
		if n := in.stats.lines.Add(1); n%progressEvery == 0 {
			slog.Info("ingest progress", slog.Int64("lines", n))
		}
		if err != nil {
			in.stats.invalid.Add(1)
			slog.Warn("skipping line", slog.String("file", name), slog.Int("line", lineNo), slog.String("error", err.Error()))
			continue
		}
		if !in.catalog.TestString(row.ProductCode) {
			in.stats.unknown.Add(1)
			continue
		}
		batch = append(batch, row)
		if len(batch) >= in.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", name)
	}
	return flush()
}

// parseLine reads "product_code;pricing_group;price". Blank lines and lines
// starting with # are not records (ok is false). A decimal comma is accepted.
func parseLine(line string) (row postgres.PriceRow, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return row, false, nil
	}

	fields := strings.Split(line, ";")
	if len(fields) != 3 {
		return row, true, errors.Errorf("want 3 fields, got %d", len(fields))
	}
	code := strings.TrimSpace(fields[0])
	group := strings.TrimSpace(fields[1])
	if code == "" || group == "" {
		return row, true, errors.New("empty product code or pricing group")
	}

	raw := strings.ReplaceAll(strings.TrimSpace(fields[2]), ",", ".")
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return row, true, errors.Wrapf(err, "price %q", fields[2])
	}
	if !price.IsPositive() {
		return row, true, errors.Errorf("price %s must be positive", price)
	}
	return postgres.PriceRow{ProductCode: code, PricingGroup: group, Price: price}, true, nil
}
