// Package domain models National Weather Service (NWS) warning and storm
// report data for the historical backfill pipeline.
//
// # Data Sources
//
// Warning geometry comes from the Iowa Environmental Mesonet (IEM) archive,
// which exports NWS watch/warning polygons as zipped shapefiles per
// office and date range. Each shapefile record carries a polygon (possibly
// multi-ring) plus a dBase attribute row with the fields needed to rebuild
// the warning's VTEC identity: issuing office (WFO), phenomenon code
// (PHENOM), significance code (SIG), event tracking number (ETN), and the
// issuance timestamp (ISSUED).
//
// # Natural Keys
//
// Warnings are keyed by a VTEC-style composite:
//
//	{office}-{phenomenon}{significance}-{year}-{etn}
//	e.g. "OUN-SVW-2024-0042"
//
// The key is deterministic, so re-running a backfill upserts rather than
// duplicates. Uniqueness holds only within one data source; the store
// scopes its conflict key by (natural key, data source). See [BuildNaturalKey].
//
// # Geometry
//
// Shapefile polygons arrive as a flat point list plus part offsets. Each
// part is reconstructed as an independent closed ring; the flat encoding
// does not distinguish interior holes from disjoint outer rings, so no
// hole inference is attempted. See [ReconstructGeometry].
//
// # Issuance Timestamp Formats
//
// The archive is not consistent about timestamp formatting. Observed forms,
// tried in order:
//
//	2024-04-26T15:10:00Z    ISO-8601 with zone
//	2024-04-26 15:10:00     space-separated
//	20240426 1510           compact date + HHMM
//	2024-04-26              date only
//
// When none parse, the key falls back to the current processing year and
// the record is flagged as degraded so the condition is auditable.
//
// # Damage Classification
//
// Report magnitudes map to fixed damage categories informed by NWS severe
// weather criteria:
//
//	Hail:  ≥4.0in Giant Hail/extreme | ≥2.0in Very Large Hail/significant |
//	       ≥1.0in Large Hail/minor   | else Small Hail/minimal
//	Wind:  ≥75mph Violent Wind/extreme | ≥65mph Very Damaging Wind/significant |
//	       ≥58mph Severe Wind/minor    | else Moderate Wind/minimal
//
// Hail sizes additionally render with the conventional object names
// (pea through grapefruit), matched nearest-at-or-below. See [AssessDamage]
// and [HailSizeName].
package domain
