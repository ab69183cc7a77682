package http

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeSizer struct{ size int64 }

func (f fakeSizer) LogFileSizeBytes() int64 { return f.size }

func TestNewMetrics_RegistersAndCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "0.1.0", 1, fakeSizer{size: 42})

	m.IncRequests()
	m.IncBlocks()
	m.IncPluginBlock("exfil")
	m.ObservePluginTiming("exfil", 5)
	m.ObserveRequestLatency(12)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Fatal("Gather() returned no metric families")
	}

	found := false
	for _, f := range families {
		if f.GetName() == "sentra_requests_total" {
			found = true
			if f.Metric[0].GetCounter().GetValue() != 1 {
				t.Errorf("sentra_requests_total = %v, want 1", f.Metric[0].GetCounter().GetValue())
			}
		}
	}
	if !found {
		t.Error("sentra_requests_total metric not found in registry")
	}
}

func TestNewRegistry_SharesMetricsInstance(t *testing.T) {
	t.Parallel()

	reg, m := NewRegistry("0.1.0", 1, nil)
	if reg == nil || m == nil {
		t.Fatal("NewRegistry() returned a nil registry or metrics")
	}
	m.IncRequests()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Fatal("Gather() returned no metric families")
	}
}
