package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	"github.com/couchcryptid/storm-archive-backfill/internal/observability"
)

const (
	warningWindow      = 30 * time.Minute
	warningRadiusMiles = 25.0
	maxWarnings        = 3
	maxNarrativeNearby = 3
)

// severeWarningTypes limits the corroboration query to warning products that
// plausibly match a storm report.
var severeWarningTypes = []string{
	"Tornado Warning",
	"Severe Thunderstorm Warning",
	"Flash Flood Warning",
	"Special Marine Warning",
}

// WarningIndex is the slice of the alert store the composer needs for
// corroboration lookups.
type WarningIndex interface {
	ListWarningsBetween(ctx context.Context, start, end time.Time, eventTypes []string) ([]domain.AlertRecord, error)
}

// Result is one report's full enrichment output.
type Result struct {
	Report    domain.StormReport           `json:"report"`
	Location  domain.ReportLocationContext `json:"location"`
	Damage    domain.DamageAssessment      `json:"damage"`
	Warnings  []domain.AlertRecord         `json:"warnings,omitempty"`
	Narrative string                       `json:"narrative"`
}

// ReportError pairs a failed report with its cause.
type ReportError struct {
	ReportID string
	Err      error
}

func (e ReportError) Error() string {
	return fmt.Sprintf("report %s: %v", e.ReportID, e.Err)
}

// Composer produces the narrative paragraph for storm reports. Warning
// corroboration is optional; with a nil index the narrative simply omits it.
type Composer struct {
	enricher *Enricher
	warnings WarningIndex
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
}

// NewComposer creates a Composer. warnings may be nil; clock nil defaults to
// real time.
func NewComposer(enricher *Enricher, warnings WarningIndex, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Composer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Composer{enricher: enricher, warnings: warnings, logger: logger, metrics: metrics, clock: clock}
}

// Compose enriches one report and assembles its narrative.
func (c *Composer) Compose(ctx context.Context, report domain.StormReport) (Result, error) {
	start := c.clock.Now()
	defer func() {
		c.metrics.EnrichDuration.Observe(c.clock.Since(start).Seconds())
	}()

	if err := validateCoordinates(report.Lat, report.Lon); err != nil {
		return Result{}, err
	}

	location := c.enricher.Enrich(ctx, report.Lat, report.Lon)
	magnitude, magnitudeKnown := parseMagnitude(report.Magnitude)
	damage := domain.AssessDamage(report.EventType, magnitude)

	warnings, err := c.corroboratingWarnings(ctx, report)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Report:   report,
		Location: location,
		Damage:   damage,
		Warnings: warnings,
	}
	result.Narrative = assembleNarrative(report, location, damage, magnitude, magnitudeKnown, len(warnings))
	return result, nil
}

// ComposeBatch processes each report independently. A report's failure is
// collected and the batch continues; the error slice is empty on a fully
// clean run.
func (c *Composer) ComposeBatch(ctx context.Context, reports []domain.StormReport) ([]Result, []ReportError) {
	results := make([]Result, 0, len(reports))
	var errs []ReportError
	for _, report := range reports {
		result, err := c.Compose(ctx, report)
		if err != nil {
			c.logger.Warn("report enrichment failed", "report_id", report.ID, "error", err)
			errs = append(errs, ReportError{ReportID: report.ID, Err: err})
			continue
		}
		results = append(results, result)
	}
	return results, errs
}

// corroboratingWarnings finds official warnings issued within ±30 minutes of
// the report and whose polygon centroid lies within 25 miles, closest first,
// capped at maxWarnings.
func (c *Composer) corroboratingWarnings(ctx context.Context, report domain.StormReport) ([]domain.AlertRecord, error) {
	if c.warnings == nil {
		return nil, nil
	}

	candidates, err := c.warnings.ListWarningsBetween(ctx,
		report.Time.Add(-warningWindow), report.Time.Add(warningWindow), severeWarningTypes)
	if err != nil {
		return nil, fmt.Errorf("warning lookup: %w", err)
	}

	type scored struct {
		alert domain.AlertRecord
		dist  float64
	}
	var inRange []scored
	for _, alert := range candidates {
		if alert.Geometry == nil {
			continue
		}
		center, ok := alert.Geometry.Centroid()
		if !ok {
			continue
		}
		d := domain.Haversine(report.Lat, report.Lon, center.Lat, center.Lon)
		if d <= warningRadiusMiles {
			inRange = append(inRange, scored{alert: alert, dist: d})
		}
	}
	sort.Slice(inRange, func(i, j int) bool { return inRange[i].dist < inRange[j].dist })
	if len(inRange) > maxWarnings {
		inRange = inRange[:maxWarnings]
	}

	out := make([]domain.AlertRecord, len(inRange))
	for i, s := range inRange {
		out[i] = s.alert
	}
	return out, nil
}

func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("coordinates out of range: %f, %f", lat, lon)
	}
	if lat == 0 && lon == 0 {
		return fmt.Errorf("null island coordinates")
	}
	return nil
}

func parseMagnitude(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// assembleNarrative builds the paragraph in fixed clause order: date and
// event with magnitude, location clauses for whichever tiers resolved,
// observer comments, damage sentence, warning corroboration.
func assembleNarrative(report domain.StormReport, location domain.ReportLocationContext, damage domain.DamageAssessment, magnitude float64, magnitudeKnown bool, warningCount int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("On %s, %s was reported",
		report.Time.Format("January 2, 2006"),
		magnitudePhrase(report.EventType, magnitude, magnitudeKnown)))

	if loc := location.EventLocation; loc != nil {
		if loc.Direction != "" {
			sb.WriteString(fmt.Sprintf(" %.1f miles %s of %s", loc.DistanceMiles, loc.Direction, loc.Name))
		} else {
			sb.WriteString(fmt.Sprintf(" %.1f miles from %s", loc.DistanceMiles, loc.Name))
		}
	} else if report.County != "" {
		sb.WriteString(fmt.Sprintf(" in %s County", report.County))
	}
	sb.WriteString(".")

	if city := location.ReferenceCity; city != nil {
		sb.WriteString(fmt.Sprintf(" The report was %.1f miles %s of %s.",
			city.DistanceMiles, city.Direction, city.Name))
	}

	if len(location.NearbyPlaces) > 0 {
		nearby := location.NearbyPlaces
		if len(nearby) > maxNarrativeNearby {
			nearby = nearby[:maxNarrativeNearby]
		}
		parts := make([]string, len(nearby))
		for i, p := range nearby {
			parts[i] = fmt.Sprintf("%s (%.1f mi)", p.Name, p.DistanceMiles)
		}
		sb.WriteString(" Nearby: " + strings.Join(parts, ", ") + ".")
	}

	if report.Comments != "" {
		sb.WriteString(" Observer notes: " + strings.TrimSuffix(report.Comments, ".") + ".")
	}

	sb.WriteString(" " + damage.Summary)

	switch warningCount {
	case 0:
		sb.WriteString(" No corroborating official warnings were found near the report time.")
	case 1:
		sb.WriteString(" 1 corroborating official warning was active nearby.")
	default:
		sb.WriteString(fmt.Sprintf(" %d corroborating official warnings were active nearby.", warningCount))
	}

	return sb.String()
}

// magnitudePhrase renders the event and magnitude. Unknown magnitudes get an
// explicit phrase, never a zero.
func magnitudePhrase(eventType string, magnitude float64, known bool) string {
	switch eventType {
	case "hail":
		if !known {
			return "hail of unknown size"
		}
		return fmt.Sprintf("%.2f inch hail (%s sized)", magnitude, domain.HailSizeName(magnitude))
	case "wind":
		if !known {
			return "damaging wind of unknown speed"
		}
		return fmt.Sprintf("a %d mph wind gust", int(magnitude))
	case "tornado":
		return "a tornado"
	default:
		if eventType == "" {
			return "a severe weather event"
		}
		return "a " + eventType + " event"
	}
}
