package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsJSON(t *testing.T) {
	t.Parallel()

	pub := New(0)
	id, err := pub.Publish(context.Background(), "leads.generated", map[string]any{"run_id": "run-1", "count": 3})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "leads.generated", msgs[0].Topic)
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "run-1", got["run_id"])

	msgs[0].Topic = "modified"
	require.Equal(t, "leads.generated", pub.Messages()[0].Topic)
}

func TestPublisherCapacity(t *testing.T) {
	t.Parallel()

	pub := New(2)
	for range 3 {
		_, err := pub.Publish(context.Background(), "t", "x")
		require.NoError(t, err)
	}
	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "memory-2", msgs[0].ID)
	require.Equal(t, "memory-3", msgs[1].ID)
}

func TestPublisherErrors(t *testing.T) {
	t.Parallel()

	pub := New(1)
	_, err := pub.Publish(context.Background(), "", "x")
	require.Error(t, err)
	_, err = pub.Publish(context.Background(), "t", func() {})
	require.Error(t, err)
}
