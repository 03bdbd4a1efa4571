package trace_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G14MB0/conductor/internal/node"
	"github.com/G14MB0/conductor/internal/trace"
)

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("x", 500)
	preview := trace.Preview(long)
	assert.LessOrEqual(t, len(preview), 200)
	assert.Contains(t, preview, "truncated")
}

func TestPreviewShortPassesThrough(t *testing.T) {
	preview := trace.Preview("short")
	assert.Equal(t, `"short"`, preview)
}

func TestRecorderAppendAndSnapshotOrder(t *testing.T) {
	r := trace.NewRecorder()
	now := time.Now()

	e1 := trace.NewEntry("a", r.NextSequence(), now, now, node.Input{}, node.Output{Status: "success"}, nil, nil)
	e2 := trace.NewEntry("b", r.NextSequence(), now, now, node.Input{}, node.Output{Status: "error"}, nil, nil)

	r.Append(e1)
	r.Append(e2)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].NodeID)
	assert.Equal(t, "b", snap[1].NodeID)
	assert.Less(t, snap[0].Sequence, snap[1].Sequence)
}

func TestEntryRoundTripsThroughJSON(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	errMsg := "boom"
	e := trace.NewEntry("n", 1, now, now.Add(5*time.Millisecond), node.Input{Payload: "in"}, node.Output{Status: "error", Data: "out"}, []string{"next"}, &errMsg)

	raw, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded trace.Entry
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, e.NodeID, decoded.NodeID)
	assert.Equal(t, e.Status, decoded.Status)
	assert.Equal(t, e.Scheduled, decoded.Scheduled)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, *e.Error, *decoded.Error)
	assert.True(t, e.StartedAt.Equal(decoded.StartedAt))
}
