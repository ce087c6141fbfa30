package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"braindrain/internal/cache"
	"braindrain/internal/census"
	"braindrain/internal/config"
	"braindrain/internal/master"
	"braindrain/internal/notify"
	"braindrain/internal/storage"
)

// newAssembler wires the census client, retry transport and caches.
func newAssembler(c *config.Config, log *zap.Logger) *master.Assembler {
	hc := &http.Client{
		Timeout:   c.Census.Timeout,
		Transport: census.NewRetryTransport(nil, c.Census.Retries),
	}
	client := census.NewClient(c.CensusClient(),
		census.WithHTTPClient(hc),
		census.WithLogger(log.Named("census")))

	return master.NewAssembler(census.NewCached(client, nil),
		master.WithCache(cache.NewMemory[master.Table]()),
		master.WithLogger(log.Named("master")))
}

// saveSnapshot persists t to the configured store and, when enabled, the
// ClickHouse history and NATS announcement.
func saveSnapshot(ctx context.Context, c *config.Config, log *zap.Logger, t master.Table) (*storage.Snapshot, error) {
	snap := &storage.Snapshot{
		TakenAt: time.Now().UTC(),
		Year:    c.Census.Year,
		Table:   t,
	}

	store, err := storage.Open(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if _, err := store.SaveSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}
	log.Info("snapshot saved",
		zap.Int64("id", snap.ID),
		zap.String("store", c.Store.Driver),
		zap.Int("states", len(t.Records)))

	if c.History.Enabled {
		if err := appendHistory(ctx, c, snap); err != nil {
			return snap, err
		}
		log.Info("history appended", zap.Int64("id", snap.ID))
	}

	if c.NATS.URL != "" {
		pub, err := notify.Connect(c.NATS.URL, c.NATS.Subject, log.Named("notify"))
		if err != nil {
			return snap, err
		}
		defer pub.Close()
		if err := pub.PublishSnapshot(ctx, snap); err != nil {
			return snap, fmt.Errorf("announce snapshot: %w", err)
		}
	}

	return snap, nil
}

func appendHistory(ctx context.Context, c *config.Config, snap *storage.Snapshot) error {
	ch, err := storage.OpenClickHouse(ctx, c.Store.ClickHouse)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.CreateSchema(ctx); err != nil {
		return err
	}
	if err := ch.AppendHistory(ctx, snap); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
