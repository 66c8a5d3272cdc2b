package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemNormalizedFromEventAfterWireRoundTrip(t *testing.T) {
	payload := ItemNormalizedEvent{ItemID: 42, Title: "Foo", URL: "http://x/1"}
	wire, err := json.Marshal(Event{ID: "evt-1", Type: EventItemNormalized, Data: payload.ToData()})
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(wire, &decoded))

	got, err := ItemNormalizedFromEvent(decoded)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestItemNormalizedFromEventRejectsMissingID(t *testing.T) {
	_, err := ItemNormalizedFromEvent(Event{ID: "evt-2", Data: map[string]interface{}{"title": "x"}})
	assert.Error(t, err)

	_, err = ItemNormalizedFromEvent(Event{ID: "evt-3"})
	assert.Error(t, err)
}

func TestNormalizedItemDataRoundTrip(t *testing.T) {
	posted := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	item := NormalizedItem{Title: "Foo", URL: "http://x/1", PostedAt: &posted, Tags: []string{"a", "b"}}

	got, err := NormalizedItemFromData(item.ToData())
	require.NoError(t, err)
	assert.Equal(t, "Foo", got.Title)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
	require.NotNil(t, got.PostedAt)
	assert.True(t, posted.Equal(*got.PostedAt))

	empty, err := NormalizedItemFromData(nil)
	require.NoError(t, err)
	assert.Equal(t, NormalizedItem{}, empty)
}
