// Command catalog-ingest loads supplier product feeds into the catalog.
// Feeds are JSON-lines files, one product per line, optionally gzipped.
// Duplicate product ids across feeds are dropped after their first
// occurrence, so feed order decides which supplier wins.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/baminaj/storefront/internal/domain/product"
	"github.com/baminaj/storefront/internal/storage/postgres"
)

const (
	dedupCapacity = 1_000_000
	dedupFPR      = 0.001
	writeWorkers  = 4
	progressEvery = 10_000
)

type feedRow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Image       string          `json:"image"`
	Description string          `json:"description"`
}

func main() {
	var databaseURL string

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	feeds := flag.Args()
	if len(feeds) == 0 {
		slog.Error("at least one feed file is required: catalog-ingest [flags] feed.jsonl[.gz]...")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, feeds); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, databaseURL string, feeds []string) error {
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewProductRepository(pool)

	// The dedup filter is shared across feeds; a (rare) false positive only
	// skips one product row, it never corrupts the catalog.
	var (
		mu    sync.Mutex
		seen  = bloom.NewWithEstimates(dedupCapacity, dedupFPR)
		total uint64
	)

	rows := make(chan feedRow, 256)

	g, gctx := errgroup.WithContext(ctx)

	// Writer workers upsert concurrently; the reader below preserves feed
	// precedence through the dedup filter, not through write order.
	for range writeWorkers {
		g.Go(func() error {
			for row := range rows {
				p := product.Product{
					ID:          row.ID,
					Name:        row.Name,
					Price:       row.Price,
					Category:    row.Category,
					ImageRef:    row.Image,
					Description: row.Description,
				}
				if err := repo.Upsert(gctx, &p); err != nil {
					return errors.Wrapf(err, "upsert product %s", p.ID)
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(rows)

		for _, feed := range feeds {
			slog.Info("reading feed", slog.String("path", feed))

			count := uint64(0)
			err := streamFeed(gctx, feed, func(row feedRow) error {
				if row.ID == "" {
					return nil
				}

				mu.Lock()
				dup := seen.TestString(row.ID)
				if !dup {
					seen.AddString(row.ID)
					total++
					count++
				}
				mu.Unlock()
				if dup {
					return nil
				}

				if count%progressEvery == 0 {
					slog.Info("feed progress", slog.String("path", feed), slog.Uint64("products", count))
				}

				select {
				case rows <- row:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
			if err != nil {
				return errors.Wrapf(err, "stream feed %s", feed)
			}

			slog.Info("feed complete", slog.String("path", feed), slog.Uint64("products", count))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("ingest done", slog.Uint64("total_products", total))
	return nil
}

// streamFeed reads a JSON-lines feed, transparently decompressing .gz files,
// and calls fn for every row.
func streamFeed(ctx context.Context, path string, fn func(feedRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var row feedRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return errors.Wrap(err, "parse feed row")
		}
		if err := fn(row); err != nil {
			return err
		}
	}

	return errors.Wrapf(scanner.Err(), "scan %s", path)
}
