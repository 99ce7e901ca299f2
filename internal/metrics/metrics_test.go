package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordingBeforeInitIsNoop(t *testing.T) {
	if evaluationsTotal != nil {
		t.Skip("metrics already initialized by another test")
	}
	ObserveEvaluation("humidity", "low")
	ObserveDelivery("humidity", "indicate", "")
	IncIndicationDenied("humidity")
	IncWriteDropped("humidity", "")
	SetSample("humidity", 450)
	IncConnectionEvent("connect")
}

func TestCounters(t *testing.T) {
	Init()
	Init() // second call must not re-register

	before := testutil.ToFloat64(deliveriesTotal.WithLabelValues("soil_moisture", "notify", ResultSent))
	ObserveDelivery("soil_moisture", "notify", "")
	after := testutil.ToFloat64(deliveriesTotal.WithLabelValues("soil_moisture", "notify", ResultSent))
	if after-before != 1 {
		t.Errorf("deliveries delta = %v, want 1", after-before)
	}

	IncWriteDropped("humidity", "")
	if got := testutil.ToFloat64(writesDroppedTotal.WithLabelValues("humidity", "unknown")); got < 1 {
		t.Errorf("writes dropped = %v, want >= 1", got)
	}

	SetSample("humidity", 450)
	if got := testutil.ToFloat64(sampleValue.WithLabelValues("humidity")); got != 450 {
		t.Errorf("sample = %v, want 450", got)
	}

	IncIndicationDenied("water_presence")
	if got := testutil.ToFloat64(indicationDenied.WithLabelValues("water_presence")); got < 1 {
		t.Errorf("indication denied = %v, want >= 1", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	Init()
	ObserveEvaluation("water_level", "high")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gatt_sentry_evaluations_total") {
		t.Error("response missing gatt_sentry_evaluations_total")
	}
}
