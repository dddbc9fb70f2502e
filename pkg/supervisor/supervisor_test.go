package supervisor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAppliesDefaults(t *testing.T) {
	s := New(Config{})
	assert.Equal(t, 1, s.cfg.Workers)
	assert.Equal(t, 2*time.Second, s.cfg.Interval)
	assert.Equal(t, ModeHTTP, s.cfg.Mode)
	assert.Equal(t, StateStarting, s.State())
	assert.Len(t, s.slots, 1)
}

func TestNewRespectsExplicitConfig(t *testing.T) {
	s := New(Config{Workers: 5, Interval: 3 * time.Second, Mode: ModeQueue})
	assert.Equal(t, 5, s.cfg.Workers)
	assert.Equal(t, 3*time.Second, s.cfg.Interval)
	assert.Equal(t, ModeQueue, s.cfg.Mode)
	assert.Len(t, s.slots, 5)
}

func TestStateStringer(t *testing.T) {
	cases := map[State]string{
		StateStarting:    "Starting",
		StatePreFork:     "PreFork",
		StateForking:     "Forking",
		StateSupervising: "Supervising",
		StateDraining:    "Draining",
		StateStopped:     "Stopped",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}

func TestSlotOccupied(t *testing.T) {
	var nilSlot *slot
	assert.False(t, nilSlot.occupied())
	assert.False(t, (&slot{}).occupied())
}

func TestOccupiedCountAndWorkers(t *testing.T) {
	s := New(Config{Workers: 3})
	assert.Equal(t, 3, s.Workers())
	assert.Equal(t, 0, s.OccupiedCount())

	s.slots[0] = &slot{cmd: nil}
	// A slot only counts as occupied once it has a live *exec.Cmd; a
	// zero-value slot with no cmd never does.
	assert.False(t, s.slots[0].occupied())
	assert.Equal(t, 0, s.OccupiedCount())
}

func TestRestartsStartsAtZero(t *testing.T) {
	s := New(Config{Workers: 2})
	assert.Equal(t, uint64(0), s.Restarts())
}

func TestHeartbeatAgeWithoutHeartbeatDisabled(t *testing.T) {
	s := New(Config{Workers: 2})
	_, ok := s.HeartbeatAge(0)
	assert.False(t, ok)
}

func TestHeartbeatAgeReportsZeroForNeverBeaten(t *testing.T) {
	s := New(Config{Workers: 2})
	mem := make([]byte, 2*cellSize)
	s.heartbeat = NewHeartbeatBlock(mem, 2)

	age, ok := s.HeartbeatAge(0)
	assert.True(t, ok)
	assert.Equal(t, uint32(0), age)

	_, ok = s.HeartbeatAge(5)
	assert.False(t, ok, "out-of-range slot reports monitoring disabled")
}

func TestWorkerSlotAndIsWorkerProcessWhenUnset(t *testing.T) {
	prev, had := os.LookupEnv(EnvWorkerSlot)
	os.Unsetenv(EnvWorkerSlot)
	t.Cleanup(func() {
		if had {
			os.Setenv(EnvWorkerSlot, prev)
		}
	})
	assert.False(t, IsWorkerProcess())
	assert.Equal(t, -1, WorkerSlot())
}
