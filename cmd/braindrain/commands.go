package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"braindrain/internal/api"
	"braindrain/internal/master"
	"braindrain/internal/report"
	"braindrain/internal/storage"
)

var (
	pretty     bool
	outputPath string
	listLimit  int
	port       int
	fromStore  bool
	topN       int
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Fetch the source tables and print the master table as JSON",
	Args:  cobra.NoArgs,
	RunE:  runAssemble,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Assemble and persist a snapshot",
	Long: `Assembles the master table and saves it to the configured store
(SQLite or PostgreSQL). With history enabled each state's metrics are also
appended to ClickHouse; with NATS_URL set the snapshot is announced on NATS.`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSnapshots,
}

var historyCmd = &cobra.Command{
	Use:   "history STATE",
	Short: "Print a state's recorded metrics from ClickHouse",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the master table and reports over HTTP",
	Long: `Starts the REST API under /api/v1:

  GET /health
  GET /states?sort=FIELD&order=asc|desc&segment=LABEL&limit=N
  GET /states/{state}
  GET /segments
  GET /summary?top=N
  GET /trend?x=FIELD&y=FIELD
  GET /compare?states=A,B&metrics=F1,F2
  GET /snapshots            (with --from-store)

When auth is enabled, requests must carry an API key via X-API-Key,
Authorization: Bearer <key> or ?api_key=<key>.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print national medians, segment counts and top movers",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func runAssemble(cmd *cobra.Command, args []string) error {
	t, err := newAssembler(cfg, logger).Assemble(cmd.Context())
	if err != nil {
		return err
	}

	if outputPath == "" {
		return writeTable(cmd.OutOrStdout(), t)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := writeTable(f, t); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

func writeTable(w io.Writer, t master.Table) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("write table: %w", err)
	}
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	t, err := newAssembler(cfg, logger).Assemble(ctx)
	if err != nil {
		return err
	}

	snap, err := saveSnapshot(ctx, cfg, logger, t)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "snapshot %d: %d states (ACS %d)\n", snap.ID, len(t.Records), snap.Year)
	return nil
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := storage.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListSnapshots(ctx, listLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTAKEN AT\tYEAR\tSTATES")
	for _, s := range list {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", s.ID, s.TakenAt.Format("2006-01-02 15:04:05"), s.Year, s.StateCount)
	}
	return w.Flush()
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ch, err := storage.OpenClickHouse(ctx, cfg.Store.ClickHouse)
	if err != nil {
		return err
	}
	defer ch.Close()

	points, err := ch.StateHistory(ctx, args[0])
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return fmt.Errorf("no history for %q", args[0])
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(points)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvCfg := api.Config{
		Port:        cfg.API.Port,
		AuthEnabled: cfg.API.AuthEnabled,
		APIKeys:     cfg.API.APIKeys,
		Logger:      logger.Named("api"),
	}
	if cmd.Flags().Changed("port") {
		srvCfg.Port = port
	}

	var src api.TableSource
	if fromStore {
		store, err := storage.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer store.Close()
		src = api.FromStore(store)
		srvCfg.Store = store
		logger.Info("serving latest stored snapshot", zap.String("store", cfg.Store.Driver))
	} else {
		src = api.FromAssembler(newAssembler(cfg, logger))
		logger.Info("serving live census data", zap.Int("year", cfg.Census.Year))
	}

	return api.NewServer(src, srvCfg).Run(ctx)
}

func runSummary(cmd *cobra.Command, args []string) error {
	if topN < 0 {
		return fmt.Errorf("--top must be non-negative, got %d", topN)
	}
	t, err := newAssembler(cfg, logger).Assemble(cmd.Context())
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), report.Summarize(t, topN))
	return nil
}

func printSummary(out io.Writer, s report.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "States:\t%d\n", s.States)
	fmt.Fprintf(w, "National median net rate:\t%s per 1,000\n", s.MedianRate)
	fmt.Fprintf(w, "National median concentration:\t%s%%\n", s.MedianConcentration)
	fmt.Fprintf(w, "Mean talent concentration:\t%s%%\n", s.MeanConcentration)
	fmt.Fprintf(w, "Net educated migrants:\t%s\n", s.NetEducatedMigrants)
	fmt.Fprintln(w, "\t")
	fmt.Fprintln(w, "SEGMENT\tSTATES")
	for _, seg := range master.Segments() {
		fmt.Fprintf(w, "%s\t%d\n", seg, s.Segments[seg.String()])
	}
	_ = w.Flush()

	printRanked(out, "Top gainers", s.TopGainers)
	printRanked(out, "Top losers", s.TopLosers)
}

func printRanked(out io.Writer, title string, rs []report.Ranked) {
	fmt.Fprintf(out, "\n%s (net educated migrants)\n", title)
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	for i, r := range rs {
		fmt.Fprintf(w, "%d.\t%s\t%s\t%s\n", i+1, r.State, r.Value, r.Segment)
	}
	_ = w.Flush()
}
