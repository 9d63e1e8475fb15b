// Command backfill ingests historical warning polygons for one or more
// forecast-office regions over a month range, recording resumable progress
// per (region, year, month) unit.
//
// Usage:
//
//	backfill -regions OUN,TSA -start 2024-01 -end 2024-06 [-force]
//	backfill -rollback
//
// -rollback deletes every alert ingested by previous backfill runs and
// exits; live-ingested alerts are untouched. Service settings (database,
// upstream URLs, API keys) come from the environment; see internal/config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/storm-archive-backfill/internal/adapter/http"
	"github.com/couchcryptid/storm-archive-backfill/internal/adapter/iem"
	kafkaadapter "github.com/couchcryptid/storm-archive-backfill/internal/adapter/kafka"
	"github.com/couchcryptid/storm-archive-backfill/internal/backfill"
	"github.com/couchcryptid/storm-archive-backfill/internal/config"
	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	"github.com/couchcryptid/storm-archive-backfill/internal/observability"
	"github.com/couchcryptid/storm-archive-backfill/internal/storage"
)

func main() {
	regions := flag.String("regions", "", "comma-separated forecast office codes, e.g. OUN,TSA")
	start := flag.String("start", "", "first month to backfill, YYYY-MM")
	end := flag.String("end", "", "last month to backfill, YYYY-MM (inclusive)")
	force := flag.Bool("force", false, "reprocess units already marked completed")
	rollback := flag.Bool("rollback", false, "delete all backfill-sourced alerts and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	var units []backfill.Unit
	if !*rollback {
		units, err = expandUnits(*regions, *start, *end)
		if err != nil {
			logger.Error("invalid arguments", "error", err)
			flag.Usage()
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}

	if *rollback {
		deleted, err := store.DeleteByDataSource(ctx, domain.SourceBackfill)
		if err != nil {
			logger.Error("rollback failed", "error", err)
			os.Exit(1)
		}
		logger.Info("rollback complete", "alerts_deleted", deleted)
		return
	}

	fetcher := iem.NewFetcher(cfg.IEMBaseURL, cfg.FetchTimeout, logger)
	tracker := backfill.NewTracker(store, nil)

	var publisher backfill.Publisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	orchestrator := backfill.New(store, fetcher, tracker, publisher, logger, metrics, nil, backfill.Options{
		FetchAttempts: cfg.FetchAttempts,
		FetchBackoff:  cfg.FetchBackoff,
		Force:         *force,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, storeReadiness{store: store}, store, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("backfill starting", "units", len(units), "force", *force)
	summary, runErr := orchestrator.Run(ctx, units)
	logSummary(logger, summary)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
	if summary.UnitsFailed > 0 {
		os.Exit(1)
	}
}

// expandUnits builds the ordered unit list: every month from start to end
// inclusive, for every region.
func expandUnits(regions, start, end string) ([]backfill.Unit, error) {
	regionList := strings.Split(regions, ",")
	for i := range regionList {
		regionList[i] = strings.TrimSpace(regionList[i])
	}
	if regions == "" || len(regionList) == 0 {
		return nil, fmt.Errorf("missing -regions")
	}

	first, err := time.Parse("2006-01", start)
	if err != nil {
		return nil, fmt.Errorf("invalid -start %q: %w", start, err)
	}
	last, err := time.Parse("2006-01", end)
	if err != nil {
		return nil, fmt.Errorf("invalid -end %q: %w", end, err)
	}
	if last.Before(first) {
		return nil, fmt.Errorf("-end %s precedes -start %s", end, start)
	}

	var units []backfill.Unit
	for _, region := range regionList {
		if region == "" {
			return nil, fmt.Errorf("empty region in -regions")
		}
		for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
			units = append(units, backfill.Unit{Region: region, Year: m.Year(), Month: m.Month()})
		}
	}
	return units, nil
}

func logSummary(logger *slog.Logger, s backfill.Summary) {
	logger.Info("backfill summary",
		"units_attempted", s.UnitsAttempted,
		"units_skipped", s.UnitsSkipped,
		"units_failed", s.UnitsFailed,
		"processed", s.Counts.Processed,
		"inserted", s.Counts.Inserted,
		"updated", s.Counts.Updated,
		"skipped", s.Counts.Skipped,
	)
	for _, ue := range s.Errors {
		logger.Error("unit error", "unit", ue.Unit.String(), "error", ue.Err)
	}
}

// storeReadiness answers ready once the store responds to a cheap query.
type storeReadiness struct {
	store storage.Store
}

func (r storeReadiness) CheckReadiness(ctx context.Context) error {
	_, err := r.store.LatestProgress(ctx, "readiness-probe", 0, time.January)
	return err
}
