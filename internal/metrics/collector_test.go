package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oddmeter/camhub/internal/metrics"
)

func scrape(t *testing.T, c *metrics.Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}

func TestSessionGauge_TracksConnectAndDisconnect(t *testing.T) {
	c := metrics.NewCollector()
	c.SessionConnected("viewer")
	c.SessionConnected("viewer")
	c.SessionDisconnected("viewer")

	body := scrape(t, c)
	if !strings.Contains(body, `camhub_sessions_active{kind="viewer"} 1`) {
		t.Errorf("expected one active viewer session, got:\n%s", body)
	}
}

func TestRailCounters_IncrementIndependently(t *testing.T) {
	c := metrics.NewCollector()
	c.RailPublish("frame")
	c.RailPublish("frame")
	c.RailSubscriberSkipped("control")

	body := scrape(t, c)
	if !strings.Contains(body, `camhub_rail_publish_total{rail="frame"} 2`) {
		t.Errorf("expected 2 frame publishes, got:\n%s", body)
	}
	if !strings.Contains(body, `camhub_rail_drop_total{rail="control"} 1`) {
		t.Errorf("expected 1 control drop, got:\n%s", body)
	}
}

func TestRecorderBytesWritten_Accumulates(t *testing.T) {
	c := metrics.NewCollector()
	c.RecorderBytesWritten("5", 1024)
	c.RecorderBytesWritten("5", 512)

	body := scrape(t, c)
	if !strings.Contains(body, `camhub_recorder_bytes_written_total{camera_id="5"} 1536`) {
		t.Errorf("expected 1536 bytes for camera 5, got:\n%s", body)
	}
}

func TestDiscoveryUp_ReflectsLatestSet(t *testing.T) {
	c := metrics.NewCollector()
	c.SetDiscoveryUp(true)
	if !strings.Contains(scrape(t, c), "camhub_discovery_up 1") {
		t.Error("expected discovery_up to read 1 after SetDiscoveryUp(true)")
	}
	c.SetDiscoveryUp(false)
	if !strings.Contains(scrape(t, c), "camhub_discovery_up 0") {
		t.Error("expected discovery_up to read 0 after SetDiscoveryUp(false)")
	}
}
