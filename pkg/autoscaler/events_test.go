package autoscaler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_NewestFirst(t *testing.T) {
	r := NewRecorder(3)
	ctx := context.Background()

	assert.Empty(t, r.Recent(0))

	for i := 1; i <= 5; i++ {
		r.Emit(ctx, ScalingEvent{ID: fmt.Sprintf("e%d", i)})
	}

	recent := r.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "e5", recent[0].ID)
	assert.Equal(t, "e4", recent[1].ID)
	assert.Equal(t, "e3", recent[2].ID)

	recent = r.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "e5", recent[0].ID)
}

func TestRecorder_PartiallyFilled(t *testing.T) {
	r := NewRecorder(10)
	r.Emit(context.Background(), ScalingEvent{ID: "a"})
	r.Emit(context.Background(), ScalingEvent{ID: "b"})

	recent := r.Recent(5)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].ID)
	assert.Equal(t, "a", recent[1].ID)
}

func TestRecorder_DefaultSize(t *testing.T) {
	r := NewRecorder(0)
	for i := 0; i < defaultRecorderSize+5; i++ {
		r.Emit(context.Background(), ScalingEvent{})
	}
	assert.Len(t, r.Recent(0), defaultRecorderSize)
}

func TestMultiSink(t *testing.T) {
	first, second := &capturingSink{}, &capturingSink{}
	var fnCalls int
	sink := MultiSink{first, nil, second, EventSinkFunc(func(context.Context, ScalingEvent) { fnCalls++ }), LogSink{}}

	sink.Emit(context.Background(), ScalingEvent{Type: EventHire, QueueType: "default", Message: "hire"})
	sink.Emit(context.Background(), ScalingEvent{Type: EventProviderFailure, QueueType: "default", Message: "failure"})

	assert.Equal(t, []EventType{EventHire, EventProviderFailure}, first.types())
	assert.Equal(t, []EventType{EventHire, EventProviderFailure}, second.types())
	assert.Equal(t, 2, fnCalls)
}
