package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatusConstructors(t *testing.T) {
	h := NewHealthy("ingest", "consuming")
	assert.Equal(t, "healthy", h.Status)
	assert.True(t, h.Healthy)
	assert.Equal(t, "consuming", h.Message)
	assert.False(t, h.Timestamp.IsZero())

	u := NewUnhealthy("storage", "pool closed")
	assert.Equal(t, "unhealthy", u.Status)
	assert.False(t, u.Healthy)

	d := NewDegraded("queue", "near capacity")
	assert.Equal(t, "degraded", d.Status)
	assert.False(t, d.Healthy)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		subs     []Status
		expected string
	}{
		{
			name:     "no sub-statuses",
			subs:     nil,
			expected: "healthy",
		},
		{
			name: "all healthy",
			subs: []Status{
				NewHealthy("a", "ok"),
				NewHealthy("b", "ok"),
			},
			expected: "healthy",
		},
		{
			name: "one degraded",
			subs: []Status{
				NewHealthy("a", "ok"),
				NewDegraded("b", "slow"),
			},
			expected: "degraded",
		},
		{
			name: "unhealthy wins over degraded",
			subs: []Status{
				NewDegraded("a", "slow"),
				NewUnhealthy("b", "down"),
				NewHealthy("c", "ok"),
			},
			expected: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := Aggregate("tgvisd", tt.subs)
			assert.Equal(t, tt.expected, agg.Status)
			assert.Equal(t, "tgvisd", agg.Component)
			assert.Len(t, agg.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_CopiesSubStatuses(t *testing.T) {
	subs := []Status{NewHealthy("a", "ok")}
	agg := Aggregate("tgvisd", subs)

	subs[0].Message = "mutated"
	require.Len(t, agg.SubStatuses, 1)
	assert.Equal(t, "ok", agg.SubStatuses[0].Message)
}
