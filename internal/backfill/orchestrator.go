package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-archive-backfill/internal/adapter/shapefile"
	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	"github.com/couchcryptid/storm-archive-backfill/internal/observability"
	"github.com/couchcryptid/storm-archive-backfill/internal/storage"
)

// Unit identifies one region-month of the archive.
type Unit struct {
	Region string
	Year   int
	Month  time.Month
}

func (u Unit) String() string {
	return fmt.Sprintf("%s/%04d-%02d", u.Region, u.Year, int(u.Month))
}

// UnitError pairs a failed unit with its cause.
type UnitError struct {
	Unit Unit
	Err  error
}

func (e UnitError) Error() string {
	return fmt.Sprintf("%s: %v", e.Unit, e.Err)
}

// Summary aggregates one run across all requested units. A unit's failure
// never stops the rest of the batch, so the summary can carry both progress
// counts and errors.
type Summary struct {
	UnitsAttempted int
	UnitsSkipped   int
	UnitsFailed    int
	Counts         domain.StepCounts
	Errors         []UnitError
}

// Fetcher downloads one region-month archive from the upstream source.
type Fetcher interface {
	FetchArchive(ctx context.Context, region string, start, end time.Time) ([]byte, error)
}

// Publisher forwards upserted alerts to downstream consumers. Optional.
type Publisher interface {
	PublishBatch(ctx context.Context, alerts []domain.AlertRecord) error
}

// Options tunes the per-unit retry and resume behavior.
type Options struct {
	// FetchAttempts is the maximum number of download tries per unit.
	// Zero or negative means one attempt.
	FetchAttempts int

	// FetchBackoff is the delay before the first retry; it doubles on
	// each subsequent retry up to maxFetchBackoff.
	FetchBackoff time.Duration

	// Force reprocesses units whose latest progress row says completed.
	Force bool
}

const maxFetchBackoff = 30 * time.Second

// Orchestrator runs backfill units end-to-end and records their progress.
type Orchestrator struct {
	store     storage.Store
	fetcher   Fetcher
	tracker   *Tracker
	publisher Publisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	opts      Options
}

// New creates an Orchestrator. publisher may be nil when no sink topic is
// configured; clock nil defaults to real time.
func New(store storage.Store, fetcher Fetcher, tracker *Tracker, publisher Publisher, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock, opts Options) *Orchestrator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.FetchAttempts < 1 {
		opts.FetchAttempts = 1
	}
	if opts.FetchBackoff <= 0 {
		opts.FetchBackoff = 200 * time.Millisecond
	}
	return &Orchestrator{
		store:     store,
		fetcher:   fetcher,
		tracker:   tracker,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		opts:      opts,
	}
}

// Run processes every unit in order and returns the combined summary. A
// failed unit is recorded and the loop moves on; only context cancellation
// stops the batch early, and even then the summary reflects the units that
// did run.
func (o *Orchestrator) Run(ctx context.Context, units []Unit) (Summary, error) {
	o.metrics.BackfillRunning.Set(1)
	defer o.metrics.BackfillRunning.Set(0)

	var summary Summary
	for _, unit := range units {
		if ctx.Err() != nil {
			o.logger.Info("backfill stopping", "reason", ctx.Err(), "units_done", summary.UnitsAttempted)
			return summary, ctx.Err()
		}

		skip, err := o.shouldSkip(ctx, unit)
		if err != nil {
			summary.UnitsFailed++
			summary.Errors = append(summary.Errors, UnitError{Unit: unit, Err: err})
			o.metrics.UnitsFailed.Inc()
			continue
		}
		if skip {
			o.logger.Info("unit already completed, skipping", "unit", unit.String())
			summary.UnitsSkipped++
			o.metrics.UnitsSkipped.Inc()
			continue
		}

		summary.UnitsAttempted++
		o.metrics.UnitsAttempted.Inc()
		start := o.clock.Now()

		counts, err := o.processUnit(ctx, unit)
		o.metrics.UnitDuration.Observe(o.clock.Since(start).Seconds())
		summary.Counts.Add(counts)
		if err != nil {
			o.logger.Error("unit failed", "unit", unit.String(), "error", err)
			summary.UnitsFailed++
			summary.Errors = append(summary.Errors, UnitError{Unit: unit, Err: err})
			o.metrics.UnitsFailed.Inc()
			continue
		}
		o.logger.Info("unit completed",
			"unit", unit.String(),
			"processed", counts.Processed,
			"inserted", counts.Inserted,
			"updated", counts.Updated,
			"skipped", counts.Skipped,
		)
	}
	return summary, nil
}

// shouldSkip consults the unit's latest progress row. A completed unit is
// skipped unless Force is set; anything else (failed, mid-flight, never
// touched) is reprocessed from the top.
func (o *Orchestrator) shouldSkip(ctx context.Context, unit Unit) (bool, error) {
	if o.opts.Force {
		return false, nil
	}
	latest, err := o.tracker.Latest(ctx, unit.Region, unit.Year, unit.Month)
	if err != nil {
		return false, fmt.Errorf("load progress: %w", err)
	}
	return latest != nil && latest.Step == domain.StepCompleted && latest.CompletedAt != nil, nil
}

func (o *Orchestrator) processUnit(ctx context.Context, unit Unit) (domain.StepCounts, error) {
	var counts domain.StepCounts

	archive, err := o.downloadStep(ctx, unit)
	if err != nil {
		return counts, err
	}

	records, dropped, err := o.parseStep(ctx, unit, archive)
	if err != nil {
		return counts, err
	}
	counts.Skipped += dropped

	if len(records) == 0 {
		// An empty month is a valid outcome.
		if err := o.tracker.StepResult(ctx, unit.Region, unit.Year, unit.Month, domain.StepCompleted, counts, ""); err != nil {
			return counts, err
		}
		return counts, nil
	}

	inserted, err := o.insertStep(ctx, unit, records, &counts)
	if err != nil {
		if resErr := o.tracker.StepResult(ctx, unit.Region, unit.Year, unit.Month, domain.StepFailed, counts, err.Error()); resErr != nil {
			o.logger.Error("record unit failure", "unit", unit.String(), "error", resErr)
		}
		return counts, err
	}

	if o.publisher != nil && len(inserted) > 0 {
		if err := o.publisher.PublishBatch(ctx, inserted); err != nil {
			// Rows are already durable; publishing is best effort.
			o.logger.Warn("publish alerts failed", "unit", unit.String(), "count", len(inserted), "error", err)
		}
	}

	if err := o.tracker.StepResult(ctx, unit.Region, unit.Year, unit.Month, domain.StepCompleted, counts, ""); err != nil {
		return counts, err
	}
	return counts, nil
}

// downloadStep fetches the unit's archive with retries and doubling backoff.
func (o *Orchestrator) downloadStep(ctx context.Context, unit Unit) ([]byte, error) {
	meta := map[string]string{"attempts": fmt.Sprintf("%d", o.opts.FetchAttempts)}
	if err := o.tracker.StepStart(ctx, unit.Region, unit.Year, unit.Month, domain.StepDownload, meta); err != nil {
		return nil, err
	}

	start, end := monthBounds(unit)
	backoff := o.opts.FetchBackoff

	var lastErr error
	for attempt := 1; attempt <= o.opts.FetchAttempts; attempt++ {
		archive, err := o.fetcher.FetchArchive(ctx, unit.Region, start, end)
		if err == nil {
			o.metrics.FetchAttempts.WithLabelValues("success").Inc()
			o.metrics.ArchiveBytes.Observe(float64(len(archive)))
			if resErr := o.tracker.StepResult(ctx, unit.Region, unit.Year, unit.Month, domain.StepDownload, domain.StepCounts{}, ""); resErr != nil {
				return nil, resErr
			}
			return archive, nil
		}
		o.metrics.FetchAttempts.WithLabelValues("error").Inc()
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < o.opts.FetchAttempts {
			o.logger.Warn("download failed, retrying",
				"unit", unit.String(), "attempt", attempt, "backoff", backoff, "error", err)
			if !o.sleep(ctx, backoff) {
				break
			}
			backoff = nextBackoff(backoff)
		}
	}

	err := fmt.Errorf("download after %d attempts: %w", o.opts.FetchAttempts, lastErr)
	if resErr := o.tracker.StepResult(ctx, unit.Region, unit.Year, unit.Month, domain.StepDownload, domain.StepCounts{}, err.Error()); resErr != nil {
		o.logger.Error("record download failure", "unit", unit.String(), "error", resErr)
	}
	return nil, err
}

// parseStep extracts shapefile records and reconstructs their geometries.
// Records with broken geometry are dropped and counted, never fatal.
func (o *Orchestrator) parseStep(ctx context.Context, unit Unit, archive []byte) ([]domain.AlertRecord, int, error) {
	if err := o.tracker.StepStart(ctx, unit.Region, unit.Year, unit.Month, domain.StepParse, nil); err != nil {
		return nil, 0, err
	}

	raw, err := shapefile.ExtractRecords(archive)
	if err != nil {
		parseErr := fmt.Errorf("parse archive: %w", err)
		if resErr := o.tracker.StepResult(ctx, unit.Region, unit.Year, unit.Month, domain.StepParse, domain.StepCounts{}, parseErr.Error()); resErr != nil {
			o.logger.Error("record parse failure", "unit", unit.String(), "error", resErr)
		}
		return nil, 0, parseErr
	}

	alerts := make([]domain.AlertRecord, 0, len(raw))
	dropped := 0
	for _, rec := range raw {
		geom, err := domain.ReconstructGeometry(rec.ShapeType, rec.Points, rec.Parts)
		if err != nil {
			dropped++
			o.logger.Warn("geometry reconstruction failed, dropping record",
				"unit", unit.String(), "shape_type", rec.ShapeType, "error", err)
			continue
		}
		alerts = append(alerts, alertFromAttributes(rec.Attributes, geom))
	}

	counts := domain.StepCounts{Processed: len(raw), Skipped: dropped}
	if err := o.tracker.StepResult(ctx, unit.Region, unit.Year, unit.Month, domain.StepParse, counts, ""); err != nil {
		return nil, dropped, err
	}
	return alerts, dropped, nil
}

// insertStep upserts each alert, counting inserts and updates separately.
// Records without a derivable natural key are skipped, not errors. Returns
// the alerts that were actually written, for downstream publishing.
func (o *Orchestrator) insertStep(ctx context.Context, unit Unit, alerts []domain.AlertRecord, counts *domain.StepCounts) ([]domain.AlertRecord, error) {
	if err := o.tracker.StepStart(ctx, unit.Region, unit.Year, unit.Month, domain.StepInsert, nil); err != nil {
		return nil, err
	}

	written := make([]domain.AlertRecord, 0, len(alerts))
	for _, alert := range alerts {
		counts.Processed++
		o.metrics.RecordsProcessed.Inc()

		key, ok := domain.BuildNaturalKey(alert.Properties)
		if !ok {
			counts.Skipped++
			o.metrics.RecordsSkipped.Inc()
			continue
		}
		if key.Degraded {
			o.logger.Warn("issuance year unavailable, key uses processing year",
				"unit", unit.String(), "key", key.Key)
		}
		alert.NaturalKey = key.Key
		alert.DataSource = domain.SourceBackfill

		created, err := o.store.UpsertAlert(ctx, alert)
		if err != nil {
			if resErr := o.tracker.StepResult(ctx, unit.Region, unit.Year, unit.Month, domain.StepInsert, *counts, err.Error()); resErr != nil {
				o.logger.Error("record insert failure", "unit", unit.String(), "error", resErr)
			}
			return written, fmt.Errorf("upsert %s: %w", key.Key, err)
		}
		if created {
			counts.Inserted++
			o.metrics.RecordsInserted.Inc()
		} else {
			counts.Updated++
			o.metrics.RecordsUpdated.Inc()
		}
		written = append(written, alert)
	}

	if err := o.tracker.StepResult(ctx, unit.Region, unit.Year, unit.Month, domain.StepInsert, *counts, ""); err != nil {
		return written, err
	}
	return written, nil
}

// alertFromAttributes promotes the well-known IEM attribute columns to named
// fields and keeps the full raw map in Properties.
func alertFromAttributes(attrs map[string]string, geom *domain.Geometry) domain.AlertRecord {
	alert := domain.AlertRecord{
		EventType:  eventTypeFromAttrs(attrs),
		Severity:   severityFromAttrs(attrs),
		Geometry:   geom,
		Properties: attrs,
	}
	if issued, ok := domain.ParseIssued(firstNonEmpty(attrs, "ISSUED", "ISSUE")); ok {
		alert.Issued = issued
		alert.Effective = issued
	}
	if expires, ok := domain.ParseIssued(firstNonEmpty(attrs, "EXPIRED", "EXPIRE")); ok {
		alert.Expires = expires
	}
	alert.AreaDesc = firstNonEmpty(attrs, "AREA_DESC", "NWS_UGC")
	return alert
}

var phenomenonNames = map[string]string{
	"TO": "Tornado",
	"SV": "Severe Thunderstorm",
	"FF": "Flash Flood",
	"MA": "Special Marine",
	"EW": "Extreme Wind",
	"DS": "Dust Storm",
}

var significanceNames = map[string]string{
	"W": "Warning",
	"A": "Watch",
	"Y": "Advisory",
	"S": "Statement",
}

// eventTypeFromAttrs maps VTEC phenomenon and significance codes to the
// display names the live ingest uses, e.g. SV+W = "Severe Thunderstorm
// Warning". Unknown codes fall back to the raw pair so the record is still
// usable.
func eventTypeFromAttrs(attrs map[string]string) string {
	phenom := firstNonEmpty(attrs, "PHENOM", "PH")
	sig := firstNonEmpty(attrs, "SIG", "SIGNIF")
	if phenom == "" || sig == "" {
		return ""
	}
	name, ok := phenomenonNames[phenom]
	if !ok {
		name = phenom
	}
	sigName, ok := significanceNames[sig]
	if !ok {
		sigName = sig
	}
	return name + " " + sigName
}

// severityFromAttrs derives the CAP-style severity the live ingest carries.
// The archive has no severity column, so it comes from the VTEC codes:
// tornado and extreme wind warnings are Extreme, other warnings Severe,
// watches Moderate, advisories and statements Minor.
func severityFromAttrs(attrs map[string]string) string {
	phenom := firstNonEmpty(attrs, "PHENOM", "PH")
	sig := firstNonEmpty(attrs, "SIG", "SIGNIF")
	switch sig {
	case "W":
		if phenom == "TO" || phenom == "EW" {
			return "Extreme"
		}
		return "Severe"
	case "A":
		return "Moderate"
	case "Y", "S":
		return "Minor"
	}
	return ""
}

func firstNonEmpty(attrs map[string]string, names ...string) string {
	for _, n := range names {
		if v := attrs[n]; v != "" {
			return v
		}
	}
	return ""
}

// monthBounds returns the UTC interval [first of month, first of next month).
func monthBounds(unit Unit) (time.Time, time.Time) {
	start := time.Date(unit.Year, unit.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxFetchBackoff {
		return maxFetchBackoff
	}
	return next
}

// sleep waits for d unless the context is cancelled first.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
