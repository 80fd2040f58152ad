package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndHandler(t *testing.T) {
	t.Parallel()
	m := New()
	m.Fired()
	m.Fired()
	m.Delivery("email", "skipped", 0)
	m.Delivery("socket", "delivered", 0.01)
	m.SetArmed(3)
	m.TrackSessions(func() int { return 2 })

	if got := testutil.ToFloat64(m.firings); got != 2 {
		t.Fatalf("firings = %v", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("email", "skipped")); got != 1 {
		t.Fatalf("email skipped = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"reminderd_scheduler_armed_timers 3", "reminderd_socket_connected_users 2"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.Fired()
	m.FiringSkipped("inactive")
	m.PersistFailed("fire")
	m.SetArmed(1)
	m.Delivery("sms", "failed", 1)
	m.TrackSessions(func() int { return 0 })
	if m.Registry() != nil {
		t.Fatalf("nil registry expected")
	}
}
