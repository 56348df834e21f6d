package health

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammarfaizi2/green-tea-bot/component"
)

// fakeComponent implements component.Discoverable for Observe tests.
type fakeComponent struct {
	name    string
	healthy bool
	lastErr string
}

func (f *fakeComponent) Meta() component.Metadata {
	return component.Metadata{Name: f.name, Type: "worker"}
}

func (f *fakeComponent) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:   f.healthy,
		LastCheck: time.Now(),
		LastError: f.lastErr,
	}
}

func TestMonitor_UpdateAndGet(t *testing.T) {
	m := NewMonitor()

	_, exists := m.Get("ingest")
	assert.False(t, exists)

	m.UpdateHealthy("ingest", "consuming updates")
	status, exists := m.Get("ingest")
	require.True(t, exists)
	assert.True(t, status.IsHealthy())
	assert.Equal(t, "ingest", status.Component)
	assert.False(t, status.Timestamp.IsZero())
}

func TestMonitor_UpdateForcesName(t *testing.T) {
	m := NewMonitor()
	m.Update("scraper", NewHealthy("something-else", "ok"))

	status, exists := m.Get("scraper")
	require.True(t, exists)
	assert.Equal(t, "scraper", status.Component)
}

func TestMonitor_ConvenienceUpdates(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("a", "ok")
	m.UpdateDegraded("b", "slow")
	m.UpdateUnhealthy("c", "down")

	all := m.GetAll()
	require.Len(t, all, 3)
	assert.True(t, all["a"].IsHealthy())
	assert.True(t, all["b"].IsDegraded())
	assert.True(t, all["c"].IsUnhealthy())
}

func TestMonitor_Observe(t *testing.T) {
	m := NewMonitor()
	m.Observe(
		&fakeComponent{name: "ingest", healthy: true},
		&fakeComponent{name: "scraper", healthy: false, lastErr: "sweep failed"},
		nil,
	)

	assert.Equal(t, 2, m.Count())

	ingest, exists := m.Get("ingest")
	require.True(t, exists)
	assert.True(t, ingest.IsHealthy())

	scraper, exists := m.Get("scraper")
	require.True(t, exists)
	assert.True(t, scraper.IsUnhealthy())
	assert.Equal(t, "sweep failed", scraper.Message)
}

func TestMonitor_RemoveAndClear(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("a", "ok")
	m.UpdateHealthy("b", "ok")

	m.Remove("a")
	assert.Equal(t, 1, m.Count())
	_, exists := m.Get("a")
	assert.False(t, exists)

	m.Clear()
	assert.Equal(t, 0, m.Count())
	assert.Empty(t, m.ListComponents())
}

func TestMonitor_AggregateHealth(t *testing.T) {
	m := NewMonitor()

	// Empty monitor aggregates healthy
	assert.True(t, m.AggregateHealth("tgvisd").IsHealthy())

	m.UpdateHealthy("ingest", "ok")
	m.UpdateHealthy("scraper", "ok")
	agg := m.AggregateHealth("tgvisd")
	assert.True(t, agg.IsHealthy())
	assert.Len(t, agg.SubStatuses, 2)

	m.UpdateDegraded("scraper", "behind schedule")
	assert.True(t, m.AggregateHealth("tgvisd").IsDegraded())

	m.UpdateUnhealthy("ingest", "storage gone")
	assert.True(t, m.AggregateHealth("tgvisd").IsUnhealthy())
}

func TestMonitor_ListComponents(t *testing.T) {
	m := NewMonitor()
	m.UpdateHealthy("ingest", "ok")
	m.UpdateHealthy("scraper", "ok")

	names := m.ListComponents()
	assert.ElementsMatch(t, []string{"ingest", "scraper"}, names)
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.UpdateHealthy("ingest", "ok")
				m.UpdateUnhealthy("scraper", "down")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.GetAll()
				m.AggregateHealth("tgvisd")
				m.Count()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, m.Count())
}
