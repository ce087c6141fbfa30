package master

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"braindrain/internal/acs"
	"braindrain/internal/cache"
)

// Fetcher retrieves one source table. census.Client and census.Cached
// satisfy it.
type Fetcher interface {
	Fetch(ctx context.Context, table acs.Table) ([]acs.StateRecord, error)
}

// Assembler fetches the four source tables and builds the master table.
type Assembler struct {
	fetcher Fetcher
	cache   cache.Cache[Table]
	log     *zap.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithCache memoises assembled tables.
func WithCache(c cache.Cache[Table]) Option {
	return func(a *Assembler) { a.cache = c }
}

// WithLogger sets the assembler logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) { a.log = l }
}

// NewAssembler creates an assembler over f. Without WithCache every call
// rebuilds from whatever f returns.
func NewAssembler(f Fetcher, opts ...Option) *Assembler {
	a := &Assembler{
		fetcher: f,
		cache:   cache.Nop[Table]{},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble returns the master table. If any fetch fails no table is
// returned and the error wraps the fetcher's error.
func (a *Assembler) Assemble(ctx context.Context) (Table, error) {
	return a.cache.GetOrCompute(ctx, masterKey(), a.assemble)
}

func (a *Assembler) assemble(ctx context.Context) (Table, error) {
	start := time.Now()
	tables := acs.Tables()
	results := make([][]acs.StateRecord, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range tables {
		g.Go(func() error {
			records, err := a.fetcher.Fetch(gctx, t)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", t.Description, err)
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.log.Error("assembly aborted", zap.Error(err))
		return Table{}, err
	}

	table := Build(results[0], results[1], results[2], results[3])

	a.log.Info("assembled master table",
		zap.Int("anchor_rows", len(results[0])),
		zap.Int("states", len(table.Records)),
		zap.Stringer("median_rate", table.MedianRate),
		zap.Stringer("median_concentration", table.MedianConcentration),
		zap.Duration("elapsed", time.Since(start)))

	return table, nil
}

func masterKey() string {
	keys := make([]string, 0, 4)
	for _, t := range acs.Tables() {
		keys = append(keys, t.CacheKey())
	}
	return "master|" + strings.Join(keys, "|")
}
