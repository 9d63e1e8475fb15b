// Command genarchive writes a synthetic zipped shapefile archive shaped like
// an IEM watch/warning export. The fixtures back local runs of the backfill
// command against a file server instead of the live archive.
//
// Usage:
//
//	genarchive -region OUN -year 2024 -month 4 -count 25 -out wwa_202404.zip
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/couchcryptid/storm-archive-backfill/internal/adapter/shapefile"
	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
)

// phenomena cycles through the warning products seen in real archives.
var phenomena = []struct {
	phenom string
	sig    string
}{
	{"SV", "W"},
	{"TO", "W"},
	{"FF", "W"},
	{"MA", "W"},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	region := flag.String("region", "OUN", "forecast office code")
	year := flag.Int("year", 2024, "archive year")
	month := flag.Int("month", 4, "archive month (1-12)")
	count := flag.Int("count", 25, "number of warning polygons")
	seed := flag.Int64("seed", 1, "random seed for reproducible fixtures")
	out := flag.String("out", "", "output zip path")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing -out")
	}
	if *month < 1 || *month > 12 {
		return fmt.Errorf("invalid -month %d", *month)
	}

	rng := rand.New(rand.NewSource(*seed))
	records := make([]shapefile.Record, *count)
	for i := range records {
		records[i] = syntheticWarning(rng, *region, *year, time.Month(*month), i+1)
	}

	archive, err := shapefile.WriteArchive(fmt.Sprintf("wwa_%04d%02d", *year, *month), records)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, archive, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	fmt.Printf("wrote %d warning polygons to %s (%d bytes)\n", *count, *out, len(archive))
	return nil
}

// syntheticWarning builds one plausible warning polygon in the southern
// plains with IEM-style attributes.
func syntheticWarning(rng *rand.Rand, region string, year int, month time.Month, etn int) shapefile.Record {
	centerLat := 33.5 + rng.Float64()*3.5
	centerLon := -99.5 + rng.Float64()*3.5
	halfLat := 0.05 + rng.Float64()*0.2
	halfLon := 0.05 + rng.Float64()*0.2

	ring := []domain.Point{
		{Lon: centerLon - halfLon, Lat: centerLat - halfLat},
		{Lon: centerLon + halfLon, Lat: centerLat - halfLat},
		{Lon: centerLon + halfLon, Lat: centerLat + halfLat},
		{Lon: centerLon - halfLon, Lat: centerLat + halfLat},
		{Lon: centerLon - halfLon, Lat: centerLat - halfLat},
	}

	product := phenomena[rng.Intn(len(phenomena))]
	day := 1 + rng.Intn(28)
	issued := time.Date(year, month, day, rng.Intn(24), rng.Intn(60), 0, 0, time.UTC)
	expired := issued.Add(time.Duration(30+rng.Intn(60)) * time.Minute)

	return shapefile.Record{
		ShapeType: domain.ShapeTypePolygon,
		Points:    ring,
		Attributes: map[string]string{
			"WFO":     region,
			"PHENOM":  product.phenom,
			"SIG":     product.sig,
			"ETN":     fmt.Sprintf("%04d", etn),
			"ISSUED":  issued.Format("2006-01-02 15:04:05"),
			"EXPIRED": expired.Format("2006-01-02 15:04:05"),
			"STATUS":  "NEW",
		},
	}
}
