package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"beltline.dev/internal/editor/store"
)

func TestGestureAndCommitCounters(t *testing.T) {
	m := New()
	m.Gesture("drop", false)
	m.Gesture("drop", true)
	m.Gesture("drop", true)
	m.OnCommit(store.Event{Tag: store.TagMove})
	m.OnCommit(store.Event{})
	m.OnCommit(store.Event{Reset: true})

	if got := testutil.ToFloat64(m.gestures.WithLabelValues("drop", "true")); got != 2 {
		t.Fatalf("accepted drops=%v", got)
	}
	if got := testutil.ToFloat64(m.commits.WithLabelValues("mov")); got != 1 {
		t.Fatalf("mov commits=%v", got)
	}
	if got := testutil.ToFloat64(m.commits.WithLabelValues("none")); got != 1 {
		t.Fatalf("untagged commits=%v", got)
	}
	if got := testutil.ToFloat64(m.resets); got != 1 {
		t.Fatalf("resets=%v", got)
	}
}

func TestHandlerExposesGauges(t *testing.T) {
	m := New()
	depth := 3.0
	if err := m.Gauge("session_inbox_depth", "Inbox backlog.", prometheus.Labels{"blueprint": "bp1"}, func() float64 { return depth }); err != nil {
		t.Fatalf("gauge: %v", err)
	}
	if err := m.Gauge("session_inbox_depth", "Inbox backlog.", prometheus.Labels{"blueprint": "bp1"}, func() float64 { return 0 }); err == nil {
		t.Fatalf("duplicate gauge registered")
	}
	m.Gesture("rotate", true)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		`beltline_session_inbox_depth{blueprint="bp1"} 3`,
		`beltline_gestures_total{accepted="true",gesture="rotate"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}
