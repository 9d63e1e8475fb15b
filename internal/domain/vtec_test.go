package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullAttrs() map[string]string {
	return map[string]string{
		"WFO":    "OUN",
		"PHENOM": "SV",
		"SIG":    "W",
		"ETN":    "0042",
		"ISSUED": "2024-04-26T15:10:00Z",
	}
}

func TestBuildNaturalKey(t *testing.T) {
	t.Run("all components present", func(t *testing.T) {
		key, ok := BuildNaturalKey(fullAttrs())
		require.True(t, ok)
		assert.Equal(t, "OUN-SVW-2024-0042", key.Key)
		assert.False(t, key.Degraded)
	})

	t.Run("missing component returns no key", func(t *testing.T) {
		for _, field := range []string{"WFO", "PHENOM", "SIG", "ETN"} {
			attrs := fullAttrs()
			attrs[field] = ""
			_, ok := BuildNaturalKey(attrs)
			assert.False(t, ok, "blank %s should yield no key", field)

			delete(attrs, field)
			_, ok = BuildNaturalKey(attrs)
			assert.False(t, ok, "absent %s should yield no key", field)
		}
	})

	t.Run("whitespace-only component returns no key", func(t *testing.T) {
		attrs := fullAttrs()
		attrs["ETN"] = "   "
		_, ok := BuildNaturalKey(attrs)
		assert.False(t, ok)
	})

	t.Run("alias field names accepted", func(t *testing.T) {
		key, ok := BuildNaturalKey(map[string]string{
			"OFFICE":  "TSA",
			"PH":      "TO",
			"SIGNIF":  "W",
			"EVENTID": "7",
			"ISSUE":   "2023-05-01 12:00:00",
		})
		require.True(t, ok)
		assert.Equal(t, "TSA-TOW-2023-7", key.Key)
		assert.False(t, key.Degraded)
	})

	t.Run("deterministic", func(t *testing.T) {
		k1, _ := BuildNaturalKey(fullAttrs())
		k2, _ := BuildNaturalKey(fullAttrs())
		assert.Equal(t, k1, k2)
	})
}

func TestBuildNaturalKey_TimestampFormats(t *testing.T) {
	tests := []struct {
		name   string
		issued string
		year   string
	}{
		{"ISO-8601 with Z", "2021-06-15T08:30:00Z", "2021"},
		{"space separated", "2020-03-02 14:00:00", "2020"},
		{"compact date HHMM", "20190815 2215", "2019"},
		{"date only", "2018-12-31", "2018"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := fullAttrs()
			attrs["ISSUED"] = tt.issued
			key, ok := BuildNaturalKey(attrs)
			require.True(t, ok)
			assert.Equal(t, "OUN-SVW-"+tt.year+"-0042", key.Key)
			assert.False(t, key.Degraded)
		})
	}
}

func TestBuildNaturalKey_FallbackYear(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)))
	defer SetClock(nil)

	t.Run("unparseable timestamp", func(t *testing.T) {
		attrs := fullAttrs()
		attrs["ISSUED"] = "yesterday sometime"
		key, ok := BuildNaturalKey(attrs)
		require.True(t, ok)
		assert.Equal(t, "OUN-SVW-2025-0042", key.Key)
		assert.True(t, key.Degraded)
	})

	t.Run("absent timestamp", func(t *testing.T) {
		attrs := fullAttrs()
		delete(attrs, "ISSUED")
		key, ok := BuildNaturalKey(attrs)
		require.True(t, ok)
		assert.Equal(t, "OUN-SVW-2025-0042", key.Key)
		assert.True(t, key.Degraded)
	})
}

func TestParseIssued(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		ts, ok := ParseIssued("2024-04-26 15:10:00")
		require.True(t, ok)
		assert.Equal(t, time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC), ts)
	})

	t.Run("invalid", func(t *testing.T) {
		_, ok := ParseIssued("not a time")
		assert.False(t, ok)
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := ParseIssued("")
		assert.False(t, ok)
	})
}
