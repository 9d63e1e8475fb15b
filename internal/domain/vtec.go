package domain

import (
	"fmt"
	"strings"
	"time"
)

// issuedFormats lists the issuance timestamp layouts observed in the IEM
// archive, tried in order. See the package documentation.
var issuedFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"20060102 1504",
	"2006-01-02",
}

// Attribute names carrying each natural-key component in the archive's dBase
// table, with the aliases seen across archive vintages.
var (
	officeFields = []string{"WFO", "OFFICE"}
	phenomFields = []string{"PHENOM", "PH"}
	sigFields    = []string{"SIG", "SIGNIF"}
	etnFields    = []string{"ETN", "EVENTID"}
	issuedFields = []string{"ISSUED", "ISSUE"}
)

// NaturalKey is the result of deriving a VTEC-style identifier from raw
// record attributes.
type NaturalKey struct {
	Key string

	// Degraded is true when the issuance timestamp was missing or
	// unparseable and the key's year fell back to the current processing
	// year. Such keys may misfile records issued in a different year;
	// callers log and count them so the condition stays auditable.
	Degraded bool
}

// BuildNaturalKey derives the upsert key {office}-{phenomenon}{significance}-
// {year}-{etn} from a raw attribute map. Returns ok=false when any of the
// four non-date components is blank; the caller must skip the record rather
// than synthesize a fake key.
func BuildNaturalKey(attrs map[string]string) (NaturalKey, bool) {
	office := firstAttr(attrs, officeFields)
	phenom := firstAttr(attrs, phenomFields)
	sig := firstAttr(attrs, sigFields)
	etn := firstAttr(attrs, etnFields)
	if office == "" || phenom == "" || sig == "" || etn == "" {
		return NaturalKey{}, false
	}

	year, degraded := issuedYear(firstAttr(attrs, issuedFields))
	return NaturalKey{
		Key:      fmt.Sprintf("%s-%s%s-%d-%s", office, phenom, sig, year, etn),
		Degraded: degraded,
	}, true
}

// ParseIssued parses an issuance timestamp, trying each known layout in order.
func ParseIssued(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range issuedFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// issuedYear extracts the year from an issuance timestamp, falling back to
// the current processing year when the value is absent or unparseable.
func issuedYear(value string) (int, bool) {
	if t, ok := ParseIssued(value); ok {
		return t.Year(), false
	}
	return clock.Now().UTC().Year(), true
}

func firstAttr(attrs map[string]string, names []string) string {
	for _, name := range names {
		if v := strings.TrimSpace(attrs[name]); v != "" {
			return v
		}
	}
	return ""
}
