package reconciler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cargodesk/consotrack/internal/models"
)

type fixedRand struct{ v int }

func (f fixedRand) Intn(n int) int {
	if f.v >= n {
		return n - 1
	}
	return f.v
}

func TestPlanner_BackoffDelay(t *testing.T) {
	p := DefaultPlanner()
	require.Equal(t, 5*time.Minute, p.BackoffDelay(1))
	require.Equal(t, 15*time.Minute, p.BackoffDelay(2))
	require.Equal(t, 30*time.Minute, p.BackoffDelay(3))
	require.Equal(t, 60*time.Minute, p.BackoffDelay(4))
	require.Equal(t, 60*time.Minute, p.BackoffDelay(100))
}

func TestPlanner_NextSyncDelay_Delivered(t *testing.T) {
	p := DefaultPlanner()
	require.Equal(t, 365*24*time.Hour, p.NextSyncDelay(models.ShipmentStatusDelivered))
}

func TestPlanner_NextSyncDelay_InTransitWindow(t *testing.T) {
	p := NewPlanner(PlannerConfig{
		InTransitMinDelay: 10 * time.Minute,
		InTransitMaxDelay: 20 * time.Minute,
	}, fixedRand{v: 0})
	require.Equal(t, 10*time.Minute, p.NextSyncDelay(models.ShipmentStatusInTransit))

	p = NewPlanner(PlannerConfig{
		InTransitMinDelay: 10 * time.Minute,
		InTransitMaxDelay: 10 * time.Minute,
	}, nil)
	require.Equal(t, 10*time.Minute, p.NextSyncDelay(models.ShipmentStatusInTransit))
}

func TestPlanner_NextSyncDelay_Pending(t *testing.T) {
	p := DefaultPlanner()
	require.Equal(t, 90*time.Minute, p.NextSyncDelay(models.ShipmentStatusPending))
}

func TestPlanner_ConfigFallbacks(t *testing.T) {
	p := NewPlanner(PlannerConfig{InTransitMaxDelay: time.Minute, InTransitMinDelay: time.Hour}, nil)
	// max < min выравнивается к min
	require.Equal(t, time.Hour, p.cfg.InTransitMaxDelay)
}
