package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGetMetricsReturnsSharedSingleton(t *testing.T) {
	a := GetMetrics()
	b := GetMetrics()
	if a != b {
		t.Error("expected GetMetrics to return the same instance on repeated calls")
	}
}

func TestRecordEventEmittedIncrementsCounter(t *testing.T) {
	m := GetMetrics()
	before := testutil.ToFloat64(m.EventsEmitted.WithLabelValues("aos"))
	RecordEventEmitted("aos")
	after := testutil.ToFloat64(m.EventsEmitted.WithLabelValues("aos"))
	if after != before+1 {
		t.Errorf("events_emitted_total{kind=aos} = %v, want %v", after, before+1)
	}
}

func TestUpdateBusConnectionStatus(t *testing.T) {
	UpdateBusConnectionStatus(true)
	if v := testutil.ToFloat64(GetMetrics().BusConnected); v != 1.0 {
		t.Errorf("connected gauge = %v, want 1", v)
	}
	UpdateBusConnectionStatus(false)
	if v := testutil.ToFloat64(GetMetrics().BusConnected); v != 0.0 {
		t.Errorf("connected gauge = %v, want 0", v)
	}
}

func TestHandlerReturnsNonNil(t *testing.T) {
	if Handler() == nil {
		t.Error("expected a non-nil metrics handler")
	}
}
