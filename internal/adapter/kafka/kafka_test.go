package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeToMessage(t *testing.T) {
	alert := domain.AlertRecord{
		NaturalKey: "OUN-SVW-2024-0042",
		DataSource: domain.SourceBackfill,
		EventType:  "Severe Thunderstorm Warning",
		Issued:     time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC),
	}

	msg, err := serializeToMessage(alert)
	require.NoError(t, err)

	assert.Equal(t, []byte("OUN-SVW-2024-0042"), msg.Key)
	assert.Contains(t, string(msg.Value), `"natural_key":"OUN-SVW-2024-0042"`)
	assert.Contains(t, string(msg.Value), `"data_source":"iem_backfill"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("Severe Thunderstorm Warning"), msg.Headers[0].Value)
	assert.Equal(t, "data_source", msg.Headers[1].Key)
	assert.Equal(t, []byte("iem_backfill"), msg.Headers[1].Value)
}
