// Command enrich reads storm reports from a JSON file, resolves place
// context for each, composes narrative paragraphs, and writes the enriched
// results as JSON. Warning corroboration uses the alert store populated by
// the backfill command.
//
// Usage:
//
//	enrich -reports reports.json [-out enriched.json]
//
// With no -out the results go to stdout. Service settings come from the
// environment; see internal/config.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-archive-backfill/internal/adapter/places"
	"github.com/couchcryptid/storm-archive-backfill/internal/config"
	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	"github.com/couchcryptid/storm-archive-backfill/internal/enrich"
	"github.com/couchcryptid/storm-archive-backfill/internal/observability"
	"github.com/couchcryptid/storm-archive-backfill/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("enrich failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	reportsPath := flag.String("reports", "", "path to storm reports JSON file")
	outPath := flag.String("out", "", "output path for enriched JSON (default stdout)")
	flag.Parse()

	if *reportsPath == "" {
		flag.Usage()
		return fmt.Errorf("missing -reports")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	reports, err := loadReports(*reportsPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var finder domain.PlaceFinder
	if cfg.PlacesEnabled {
		client := places.NewClient(cfg.PlacesAPIKey, cfg.PlacesBaseURL, cfg.PlacesTimeout, logger)
		finder = places.NewCachedFinder(client, cfg.PlacesCacheSize, cfg.PlacesCacheTTL, nil)
		logger.Info("places lookups enabled", "cache_size", cfg.PlacesCacheSize, "cache_ttl", cfg.PlacesCacheTTL)
	} else {
		logger.Info("places lookups disabled, narratives fall back to the reference city table")
	}

	cities, err := enrich.LoadRefCities()
	if err != nil {
		return err
	}

	store, err := storage.NewStore(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}

	enricher := enrich.NewEnricher(finder, cities, logger, metrics)
	composer := enrich.NewComposer(enricher, store, logger, metrics, nil)

	results, errs := composer.ComposeBatch(ctx, reports)
	for _, re := range errs {
		logger.Error("report failed", "report_id", re.ReportID, "error", re.Err)
	}
	logger.Info("batch complete", "reports", len(reports), "enriched", len(results), "failed", len(errs))

	if err := writeResults(*outPath, results); err != nil {
		return err
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d reports failed", len(errs), len(reports))
	}
	return nil
}

func loadReports(path string) ([]domain.StormReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reports: %w", err)
	}
	var reports []domain.StormReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("parse reports: %w", err)
	}
	return reports, nil
}

func writeResults(path string, results []enrich.Result) error {
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	out = append(out, '\n')
	if path == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
