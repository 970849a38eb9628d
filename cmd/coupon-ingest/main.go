// Command coupon-ingest bulk-loads vendor coupons from gzip-compressed CSV
// files. Each line is code,discount_percent,max_uses,expires_at. A code that
// appears in more than one file is ambiguous and skipped.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	batchSize     = 1000
	progressEvery = 100_000
	maxFiles      = 64
)

// Upserter persists a batch of coupons.
type Upserter interface {
	UpsertBatch(ctx context.Context, coupons []coupon.Coupon) error
}

func main() {
	var (
		dataDir     string
		databaseURL string
		vendorID    string
		capacity    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.csv.gz coupon files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&vendorID, "vendor", "", "vendor that issues the coupons")
	flag.UintVar(&capacity, "expected-codes", 1_000_000, "expected codes per file, sizes the bloom filters")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if vendorID == "" {
		lg.Fatal("Vendor is required: set --vendor")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	files, err := filepath.Glob(filepath.Join(dataDir, "*.csv.gz"))
	if err != nil {
		lg.Fatal("List files", zap.Error(err))
	}

	pool, err := postgres.NewPool(ctx, databaseURL, 4)
	if err != nil {
		lg.Fatal("Connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		lg.Fatal("Run migrations", zap.Error(err))
	}

	ing := &ingester{
		lg:       lg,
		store:    postgres.NewCouponRepository(pool),
		vendorID: vendorID,
		capacity: capacity,
	}
	stats, err := ing.Run(ctx, files)
	if err != nil {
		lg.Fatal("Coupon ingest failed", zap.Error(err))
	}
	lg.Info("Coupon ingest completed",
		zap.Int64("written", stats.Written),
		zap.Int64("duplicates", stats.Duplicates),
		zap.Int64("invalid", stats.Invalid),
	)
}

// Stats summarizes an ingest run.
type Stats struct {
	Written    int64
	Duplicates int64
	Invalid    int64
}

type ingester struct {
	lg       *zap.Logger
	store    Upserter
	vendorID string
	capacity uint

	mu    sync.Mutex
	stats Stats
}

// candidate is a row whose code may also be present in another file.
type candidate struct {
	files uint64
	row   coupon.Coupon
}

// Run writes every well-formed row whose code is unique across files.
//
// Pass 1 builds a bloom filter of codes per file. Pass 2 streams each file
// again: rows whose code no other filter contains are written right away,
// the rest are held until all files are scanned and written only when the
// code turned out to be in a single file (a bloom false positive).
func (i *ingester) Run(ctx context.Context, files []string) (Stats, error) {
	if len(files) == 0 {
		return Stats{}, errors.New("no coupon files found")
	}
	if len(files) > maxFiles {
		return Stats{}, errors.Errorf("too many files: %d > %d", len(files), maxFiles)
	}

	i.lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))
	filters, err := i.buildFilters(ctx, files)
	if err != nil {
		return Stats{}, errors.Wrap(err, "build bloom filters")
	}

	i.lg.Info("Pass 2: writing unique codes")
	held, err := i.writeUnique(ctx, files, filters)
	if err != nil {
		return Stats{}, errors.Wrap(err, "write unique codes")
	}

	merged := make(map[string]candidate)
	for _, m := range held {
		for code, c := range m {
			prev := merged[code]
			prev.files |= c.files
			prev.row = c.row
			merged[code] = prev
		}
	}
	var late []coupon.Coupon
	for _, c := range merged {
		if bits.OnesCount64(c.files) > 1 {
			i.stats.Duplicates++
			continue
		}
		late = append(late, c.row)
	}
	if err := i.flush(ctx, late); err != nil {
		return Stats{}, err
	}
	return i.stats, nil
}

func (i *ingester) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for idx, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(i.capacity, bloomFPR)
			var count int
			if err := i.stream(ctx, path, true, func(c coupon.Coupon) error {
				filter.AddString(c.Code)
				count++
				return nil
			}); err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			i.lg.Info("Pass 1 complete", zap.String("file", path), zap.Int("codes", count))
			filters[idx] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func (i *ingester) writeUnique(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]map[string]candidate, error) {
	held := make([]map[string]candidate, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for idx, path := range files {
		g.Go(func() error {
			own := make(map[string]candidate)
			bit := uint64(1) << uint(idx)
			batch := make([]coupon.Coupon, 0, batchSize)
			var count int

			err := i.stream(ctx, path, false, func(c coupon.Coupon) error {
				count++
				if count%progressEvery == 0 {
					i.lg.Info("Pass 2 progress", zap.String("file", path), zap.Int("codes", count))
				}
				if seenElsewhere(filters, idx, c.Code) {
					own[c.Code] = candidate{files: bit, row: c}
					return nil
				}
				batch = append(batch, c)
				if len(batch) < batchSize {
					return nil
				}
				err := i.flush(ctx, batch)
				batch = batch[:0]
				return err
			})
			if err != nil {
				return errors.Wrapf(err, "file %s", path)
			}
			if err := i.flush(ctx, batch); err != nil {
				return err
			}

			i.lg.Info("Pass 2 complete",
				zap.String("file", path),
				zap.Int("codes", count),
				zap.Int("held", len(own)),
			)
			held[idx] = own
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return held, nil
}

func seenElsewhere(filters []*bloom.BloomFilter, self int, code string) bool {
	for j, f := range filters {
		if j != self && f.TestString(code) {
			return true
		}
	}
	return false
}

func (i *ingester) flush(ctx context.Context, batch []coupon.Coupon) error {
	if len(batch) == 0 {
		return nil
	}
	if err := i.store.UpsertBatch(ctx, batch); err != nil {
		return errors.Wrap(err, "upsert batch")
	}
	i.mu.Lock()
	i.stats.Written += int64(len(batch))
	i.mu.Unlock()
	return nil
}

// stream calls fn for each well-formed row of a gzip CSV file. Malformed
// rows are skipped and, when report is set, counted.
func (i *ingester) stream(ctx context.Context, path string, report bool, fn func(c coupon.Coupon) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read line %d", line)
		}
		if line == 1 && isHeader(record) {
			continue
		}
		c, err := parseRow(record, i.vendorID)
		if err != nil {
			if report {
				i.invalid(path, line, err)
			}
			continue
		}
		if err := fn(c); err != nil {
			return err
		}
	}
}

func (i *ingester) invalid(path string, line int, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stats.Invalid++
	if i.stats.Invalid <= 20 {
		i.lg.Warn("Skipping malformed row",
			zap.String("file", path),
			zap.Int("line", line),
			zap.Error(err),
		)
	}
}
