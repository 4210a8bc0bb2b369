package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから名前とラベルが一致するメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordRequest_IncrementsCounterAndHistogram はリクエスト数とレイテンシが記録されることを検証する。
func TestRecordRequest_IncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("GET", "/events", 200, 120*time.Millisecond)
	c.RecordRequest("GET", "/events", 200, 80*time.Millisecond)
	c.RecordRequest("DELETE", "/events/{id}", 403, 10*time.Millisecond)

	m := findMetric(t, reg, "eventdesk_api_requests_total", map[string]string{
		"method": "GET", "route": "/events", "status_code": "200",
	})
	if m == nil {
		t.Fatal("eventdesk_api_requests_total{GET,/events,200} not found")
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("requests_total = %v, want 2", got)
	}

	m = findMetric(t, reg, "eventdesk_api_requests_total", map[string]string{
		"method": "DELETE", "status_code": "403",
	})
	if m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("expected one DELETE 403 request")
	}

	h := findMetric(t, reg, "eventdesk_api_request_duration_seconds", map[string]string{"route": "/events"})
	if h == nil {
		t.Fatal("latency histogram not found")
	}
	if got := h.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("latency sample count = %d, want 2", got)
	}
}

// TestRecordNetworkErrorAndRetry は通信エラーとリトライのカウンタを検証する。
func TestRecordNetworkErrorAndRetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordNetworkError("GET", "/tags")
	c.RecordRetry("/tags")
	c.RecordRetry("/tags")

	if m := findMetric(t, reg, "eventdesk_api_network_errors_total", nil); m == nil || m.GetCounter().GetValue() != 1 {
		t.Error("network_errors_total should be 1")
	}
	if m := findMetric(t, reg, "eventdesk_api_retries_total", nil); m == nil || m.GetCounter().GetValue() != 2 {
		t.Error("retries_total should be 2")
	}
}

// TestWriteTextfile はtextfile形式でメトリクスが書き出されることを検証する。
func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRequest("GET", "/events", 200, time.Millisecond)

	path := filepath.Join(t.TempDir(), "eventdesk.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), "eventdesk_api_requests_total") {
		t.Errorf("textfile should contain eventdesk_api_requests_total, got:\n%s", data)
	}
}

// TestNopCollector_DoesNotPanic はNopCollectorが安全に呼び出せることを検証する。
func TestNopCollector_DoesNotPanic(t *testing.T) {
	var c MetricsCollector = NopCollector{}
	c.RecordRequest("GET", "/events", 200, time.Second)
	c.RecordNetworkError("GET", "/events")
	c.RecordRetry("/events")
}
