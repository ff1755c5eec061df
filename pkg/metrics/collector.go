package metrics

import "time"

// WorkerSnapshot is the subset of fleet state the collector needs to
// populate per-worker gauges, decoupled from pkg/daemon to avoid an
// import cycle (the daemon owns both the fleet map and the collector).
type WorkerSnapshot struct {
	ID         string
	Health     string
	Circuit    string
	UsedSlots  int
	SlotsTotal int
	SpeedScore float64
}

// FleetSnapshotter is implemented by the daemon's fleet map.
type FleetSnapshotter interface {
	SnapshotWorkers() []WorkerSnapshot
}

// Collector periodically samples fleet state into the gauges in metrics.go.
type Collector struct {
	fleet  FleetSnapshotter
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over a fleet snapshotter.
func NewCollector(fleet FleetSnapshotter) *Collector {
	return &Collector{
		fleet:  fleet,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	workers := c.fleet.SnapshotWorkers()

	counts := make(map[string]map[string]int)
	for _, w := range workers {
		if counts[w.Health] == nil {
			counts[w.Health] = make(map[string]int)
		}
		counts[w.Health][w.Circuit]++

		WorkerSlotsUsed.WithLabelValues(w.ID).Set(float64(w.UsedSlots))
		WorkerSlotsTotal.WithLabelValues(w.ID).Set(float64(w.SlotsTotal))
		WorkerSpeedScore.WithLabelValues(w.ID).Set(w.SpeedScore)
	}

	for health, circuits := range counts {
		for circuit, count := range circuits {
			WorkersTotal.WithLabelValues(health, circuit).Set(float64(count))
		}
	}
}
