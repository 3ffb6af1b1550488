package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpecs() []QueueSpec {
	return []QueueSpec{
		{Type: "critical", Priority: 1, Bounds: WorkerBounds{Min: 0, Max: 3}, Ratio: ScaleToDemand()},
		{Type: "mailers", Priority: 1, Bounds: WorkerBounds{Min: 0, Max: 2}, Ratio: ScaleToDemand()},
		{Type: "default", Priority: 2, Bounds: WorkerBounds{Min: 1, Max: 5}, Ratio: StaticTable(
			RatioRule{JobThreshold: 1, WorkerCount: 1},
			RatioRule{JobThreshold: 15, WorkerCount: 2},
		)},
		{Type: "low", Priority: 5, Bounds: WorkerBounds{Min: 0, Max: 1}, Ratio: ScaleToDemand()},
	}
}

func TestNew_BuildsTiersInOrder(t *testing.T) {
	p, err := New(testSpecs())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 5}, p.Tiers())
	assert.Equal(t, 5, p.MaxPriority())
	assert.Equal(t, []QueueType{"critical", "mailers"}, p.QueueTypesAt(1))
	assert.Equal(t, []QueueType{"critical", "mailers", "default", "low"}, p.QueueTypes())
	assert.Equal(t, []int{2, 5}, p.TiersBelow(1))
	assert.Equal(t, []int{5}, p.TiersBelow(2))
	assert.Empty(t, p.TiersBelow(5))
	assert.Equal(t, []int{1, 2}, p.TiersAbove(5))
}

func TestNew_RejectsInvalidDeclarations(t *testing.T) {
	tests := []struct {
		name    string
		specs   []QueueSpec
		wantErr error
	}{
		{
			name:  "empty",
			specs: nil,
		},
		{
			name: "duplicate type",
			specs: []QueueSpec{
				{Type: "a", Bounds: WorkerBounds{Max: 1}, Ratio: ScaleToDemand()},
				{Type: "a", Bounds: WorkerBounds{Max: 1}, Ratio: ScaleToDemand()},
			},
			wantErr: ErrDuplicateQueueType,
		},
		{
			name:  "min above max",
			specs: []QueueSpec{{Type: "a", Bounds: WorkerBounds{Min: 3, Max: 1}, Ratio: ScaleToDemand()}},
		},
		{
			name:  "negative min",
			specs: []QueueSpec{{Type: "a", Bounds: WorkerBounds{Min: -1, Max: 1}, Ratio: ScaleToDemand()}},
		},
		{
			name: "zero threshold",
			specs: []QueueSpec{{Type: "a", Bounds: WorkerBounds{Max: 1}, Ratio: RatioPolicy{
				Mode: RatioModeTable, Rules: []RatioRule{{JobThreshold: 0, WorkerCount: 1}},
			}}},
			wantErr: ErrInvalidRatio,
		},
		{
			name: "duplicate threshold",
			specs: []QueueSpec{{Type: "a", Bounds: WorkerBounds{Max: 1}, Ratio: StaticTable(
				RatioRule{JobThreshold: 5, WorkerCount: 1},
				RatioRule{JobThreshold: 5, WorkerCount: 2},
			)}},
			wantErr: ErrInvalidRatio,
		},
		{
			name:    "unknown mode",
			specs:   []QueueSpec{{Type: "a", Bounds: WorkerBounds{Max: 1}, Ratio: RatioPolicy{Mode: "lambda"}}},
			wantErr: ErrInvalidRatio,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.specs)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestLookup_UnknownQueueType(t *testing.T) {
	p, err := New(testSpecs())
	require.NoError(t, err)

	_, err = p.Lookup("missing")
	assert.ErrorIs(t, err, ErrUnknownQueueType)
	assert.False(t, p.Has("missing"))

	_, err = p.Desired("missing", 10)
	assert.ErrorIs(t, err, ErrUnknownQueueType)
}

func TestDesiredWorkers_StaticTable(t *testing.T) {
	ratio := StaticTable(
		RatioRule{JobThreshold: 20, WorkerCount: 1},
		RatioRule{JobThreshold: 50, WorkerCount: 2},
		RatioRule{JobThreshold: 100, WorkerCount: 3},
	)
	bounds := WorkerBounds{Min: 0, Max: 3}

	tests := []struct {
		pending int
		want    int
	}{
		{pending: 0, want: 0},
		{pending: 19, want: 0},
		{pending: 20, want: 1},
		{pending: 49, want: 1},
		{pending: 60, want: 2},
		{pending: 100, want: 3},
		{pending: 5000, want: 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DesiredWorkers(ratio, bounds, tt.pending), "pending=%d", tt.pending)
	}
}

func TestDesiredWorkers_CapsRuleAtMax(t *testing.T) {
	ratio := StaticTable(
		RatioRule{JobThreshold: 1, WorkerCount: 4},
		RatioRule{JobThreshold: 10, WorkerCount: 8},
	)
	bounds := WorkerBounds{Max: 5}

	assert.Equal(t, 4, DesiredWorkers(ratio, bounds, 3))
	assert.Equal(t, 5, DesiredWorkers(ratio, bounds, 10))
	assert.Equal(t, 5, DesiredWorkers(ratio, bounds, 11))
}

func TestDesiredWorkers_EmptyTable(t *testing.T) {
	assert.Equal(t, 0, DesiredWorkers(StaticTable(), WorkerBounds{Max: 5}, 42))
}

func TestDesiredWorkers_ScaleToDemand(t *testing.T) {
	bounds := WorkerBounds{Min: 0, Max: 5}

	assert.Equal(t, 0, DesiredWorkers(ScaleToDemand(), bounds, 0))
	assert.Equal(t, 3, DesiredWorkers(ScaleToDemand(), bounds, 3))
	assert.Equal(t, 5, DesiredWorkers(ScaleToDemand(), bounds, 5))
	assert.Equal(t, 5, DesiredWorkers(ScaleToDemand(), bounds, 80))
	assert.Equal(t, 0, DesiredWorkers(ScaleToDemand(), bounds, -4))
}

func TestStaticTable_SortsDescending(t *testing.T) {
	ratio := StaticTable(
		RatioRule{JobThreshold: 1, WorkerCount: 1},
		RatioRule{JobThreshold: 35, WorkerCount: 3},
		RatioRule{JobThreshold: 15, WorkerCount: 2},
	)
	require.Len(t, ratio.Rules, 3)
	assert.Equal(t, 35, ratio.Rules[0].JobThreshold)
	assert.Equal(t, 15, ratio.Rules[1].JobThreshold)
	assert.Equal(t, 1, ratio.Rules[2].JobThreshold)
}
