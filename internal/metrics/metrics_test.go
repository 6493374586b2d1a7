package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	JobsEnqueued.Inc()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "linegrade_jobs_enqueued_total" {
			found = true
		}
	}
	if !found {
		t.Error("linegrade_jobs_enqueued_total not gathered")
	}
}

func TestCollectors_Count(t *testing.T) {
	if got := len(Collectors()); got != 7 {
		t.Errorf("Collectors() = %d, want 7", got)
	}
}
