package notify

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"braindrain/internal/master"
	"braindrain/internal/storage"
)

func snapshot() *storage.Snapshot {
	return &storage.Snapshot{
		ID:      7,
		TakenAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Year:    2022,
		Table: master.Table{Records: []master.Record{
			{State: "Alpha", Segment: master.TalentHub},
			{State: "Beta", Segment: master.BrainDrainRisk},
			{State: "Gamma", Segment: master.BrainDrainRisk},
		}},
	}
}

func TestNewAnnouncement(t *testing.T) {
	a := NewAnnouncement(snapshot())

	assert.Equal(t, int64(7), a.ID)
	assert.Equal(t, 2022, a.Year)
	assert.Equal(t, 3, a.States)
	assert.Equal(t, map[string]int{"Talent Hub": 1, "Brain Drain Risk": 2}, a.Segments)

	b, err := json.Marshal(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 7,
		"taken_at": "2026-01-02T03:04:05Z",
		"year": 2022,
		"states": 3,
		"segments": {"Talent Hub": 1, "Brain Drain Risk": 2}
	}`, string(b))
}

func TestPublisher_RoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	pub, err := Connect(url, "braindrain.test", nil)
	if err != nil {
		t.Skip("No NATS server available")
	}
	defer pub.Close()

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	s, err := sub.SubscribeSync("braindrain.test")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	require.NoError(t, pub.PublishSnapshot(context.Background(), snapshot()))

	msg, err := s.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var got Announcement
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, 3, got.States)
}
