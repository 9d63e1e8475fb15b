package domain

import "fmt"

// DamageAssessment is a derived, non-persisted classification of a report's
// damage potential. Computed purely from type and magnitude.
type DamageAssessment struct {
	Category string // e.g. "Large Hail"
	Severity string // minimal, minor, significant, extreme
	Summary  string // one-sentence assessment
}

// hailSizes maps hail diameter thresholds (inches) to the conventional
// object names used in NWS reports. Ordered ascending; matched
// nearest-at-or-below.
var hailSizes = []struct {
	Inches float64
	Name   string
}{
	{0.25, "pea"},
	{0.50, "mothball"},
	{0.75, "penny"},
	{0.88, "nickel"},
	{1.00, "quarter"},
	{1.25, "half dollar"},
	{1.50, "ping pong ball"},
	{1.75, "golf ball"},
	{2.00, "hen egg"},
	{2.50, "tennis ball"},
	{2.75, "baseball"},
	{3.00, "teacup"},
	{4.00, "softball"},
	{4.50, "grapefruit"},
}

// HailSizeName returns the size-category display name for a hail diameter,
// matching the largest threshold at or below the value. Diameters below the
// smallest threshold clamp to it.
func HailSizeName(inches float64) string {
	name := hailSizes[0].Name
	for _, s := range hailSizes {
		if inches >= s.Inches {
			name = s.Name
		}
	}
	return name
}

// AssessDamage classifies a report by fixed thresholds:
//   - hail: ≥4.0in extreme, ≥2.0in significant, ≥1.0in minor, else minimal
//   - wind: ≥75mph extreme, ≥65mph significant, ≥58mph minor, else minimal
//
// Unrecognized event types get a neutral assessment rather than an error;
// the composer renders whatever comes back.
func AssessDamage(eventType string, magnitude float64) DamageAssessment {
	switch eventType {
	case "hail":
		switch {
		case magnitude >= 4.0:
			return hailAssessment("Giant Hail", "extreme", magnitude)
		case magnitude >= 2.0:
			return hailAssessment("Very Large Hail", "significant", magnitude)
		case magnitude >= 1.0:
			return hailAssessment("Large Hail", "minor", magnitude)
		default:
			return hailAssessment("Small Hail", "minimal", magnitude)
		}
	case "wind":
		switch {
		case magnitude >= 75:
			return windAssessment("Violent Wind", "extreme", magnitude)
		case magnitude >= 65:
			return windAssessment("Very Damaging Wind", "significant", magnitude)
		case magnitude >= 58:
			return windAssessment("Severe Wind", "minor", magnitude)
		default:
			return windAssessment("Moderate Wind", "minimal", magnitude)
		}
	default:
		return DamageAssessment{
			Category: "Unclassified",
			Severity: "minimal",
			Summary:  "Damage potential could not be classified for this report type.",
		}
	}
}

func hailAssessment(category, severity string, inches float64) DamageAssessment {
	return DamageAssessment{
		Category: category,
		Severity: severity,
		Summary: fmt.Sprintf("%s (%s-sized, %.2f inch) indicates %s damage potential.",
			category, HailSizeName(inches), inches, severity),
	}
}

func windAssessment(category, severity string, mph float64) DamageAssessment {
	return DamageAssessment{
		Category: category,
		Severity: severity,
		Summary: fmt.Sprintf("%s (%.0f mph) indicates %s damage potential.",
			category, mph, severity),
	}
}
