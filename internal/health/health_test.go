package health

import (
	"sync"
	"testing"
)

func TestNewMonitorOverallIsHealthy(t *testing.T) {
	m := NewMonitor()
	if got := m.Overall(); got != Healthy {
		t.Fatalf("Overall() on empty monitor = %q, want %q", got, Healthy)
	}
}

func TestOverallReturnsWorstStatus(t *testing.T) {
	m := NewMonitor()
	m.Update("store", Healthy, "")
	m.Update("cleanup", Degraded, "slow")
	m.Update("transport", Healthy, "")

	if got := m.Overall(); got != Degraded {
		t.Fatalf("Overall() = %q, want %q", got, Degraded)
	}
}

func TestOverallUnhealthyWorseThanDegraded(t *testing.T) {
	m := NewMonitor()
	m.Update("cleanup", Degraded, "")
	m.Update("transport", Unhealthy, "down")

	if got := m.Overall(); got != Unhealthy {
		t.Fatalf("Overall() = %q, want %q", got, Unhealthy)
	}
}

func TestUpdateOverwritesCheck(t *testing.T) {
	m := NewMonitor()
	m.Update("cleanup", Unhealthy, "stalled")
	m.Update("cleanup", Healthy, "")

	if got := m.Overall(); got != Healthy {
		t.Fatalf("Overall() after recovery = %q, want %q", got, Healthy)
	}
}

func TestGetReturnsCheckAndBool(t *testing.T) {
	m := NewMonitor()

	_, ok := m.Get("nonexistent")
	if ok {
		t.Fatal("Get should return false for nonexistent component")
	}

	m.Update("existing", Healthy, "fine")
	c, ok := m.Get("existing")
	if !ok {
		t.Fatal("Get should return true for existing component")
	}
	if c.Status != Healthy {
		t.Fatalf("Status = %q, want %q", c.Status, Healthy)
	}
}

func TestAllReturnsSnapshot(t *testing.T) {
	m := NewMonitor()
	m.Update("a", Healthy, "")
	m.Update("b", Degraded, "slow")

	all := m.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d checks, want 2", len(all))
	}
}

func TestConcurrentUpdatesAndReads(t *testing.T) {
	m := NewMonitor()
	m.Update("cleanup", Healthy, "")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.Update("cleanup", Degraded, "test")
			} else {
				m.Update("cleanup", Healthy, "")
			}
		}(i)
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, ok := m.Get("cleanup")
			if !ok {
				t.Error("check disappeared during concurrent access")
				return
			}
			if c.Status != Healthy && c.Status != Degraded {
				t.Errorf("unexpected status %q", c.Status)
			}
		}()
	}
	wg.Wait()
}
