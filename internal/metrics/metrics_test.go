package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	ObserveRun("test_register", time.Now(), nil)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestObserveCounters(t *testing.T) {
	before := testutil.ToFloat64(SlotsWritten.WithLabelValues("created"))
	ObserveSlots(3, 1)
	if got := testutil.ToFloat64(SlotsWritten.WithLabelValues("created")) - before; got != 3 {
		t.Fatalf("created delta = %v, want 3", got)
	}

	errBefore := testutil.ToFloat64(RunsTotal.WithLabelValues("fetch_schedule_test", "error"))
	ObserveRun("fetch_schedule_test", time.Now(), errors.New("boom"))
	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("fetch_schedule_test", "error")) - errBefore; got != 1 {
		t.Fatalf("error runs delta = %v, want 1", got)
	}

	sentBefore := testutil.ToFloat64(AlertsSent.WithLabelValues("SLACK", "sent"))
	ObserveAlert("SLACK", nil)
	if got := testutil.ToFloat64(AlertsSent.WithLabelValues("SLACK", "sent")) - sentBefore; got != 1 {
		t.Fatalf("sent delta = %v, want 1", got)
	}
}
