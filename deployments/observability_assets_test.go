package deployments

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	content := readAsset(t, "grafana", "arrowscan_dashboard.json")

	var decoded struct {
		Title  string `json:"title"`
		Panels []struct {
			Title   string `json:"title"`
			Targets []struct {
				Expr string `json:"expr"`
			} `json:"targets"`
		} `json:"panels"`
	}
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}
	if strings.TrimSpace(decoded.Title) == "" {
		t.Fatal("dashboard title is required")
	}
	if len(decoded.Panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
	for _, panel := range decoded.Panels {
		if len(panel.Targets) == 0 || !strings.Contains(panel.Targets[0].Expr, "arrowscan") {
			t.Fatalf("panel %q has no arrowscan query", panel.Title)
		}
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := readAsset(t, "prometheus", "arrowscan_rules.yaml")

	for _, alertName := range []string{
		"ArrowScanHTTPErrorRateHigh",
		"ArrowScanScanLatencyP95High",
		"ArrowScanScanFailuresDetected",
		"ArrowScanProviderFetchSlow",
		"ArrowScanPlaceholderConversionsObserved",
	} {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}
}

func TestPrometheusRecordingRulesReferenceExportedMetrics(t *testing.T) {
	text := readAsset(t, "prometheus", "arrowscan_recording_rules.yaml")

	for _, recordName := range []string{
		"arrowscan:slo_http_error_rate_5m",
		"arrowscan:slo_scan_latency_ms_p95",
		"arrowscan:slo_scan_failures_15m",
		"arrowscan:slo_rows_emitted_rate_5m",
		"arrowscan:slo_placeholder_conversions_1h",
		"arrowscan:slo_provider_fetch_latency_ms_p95",
	} {
		if !strings.Contains(text, "record: "+recordName) {
			t.Fatalf("recording rules missing record %q", recordName)
		}
	}
	for _, metric := range []string{
		"arrowscan_http_requests_total",
		"arrowscan_scan_duration_ms_bucket",
		"arrowscan_scans_total",
		"arrowscan_rows_emitted_total",
		"arrowscan_placeholder_conversions_total",
		"arrowscan_provider_fetch_duration_ms_bucket",
	} {
		if !strings.Contains(text, metric) {
			t.Fatalf("recording rules missing metric %q", metric)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := readAsset(t, "prometheus", "prometheus-scrape.example.yaml")

	for _, token := range []string{
		"metrics_path: /v1/metrics",
		"arrowscan_rules.yaml",
		"arrowscan_recording_rules.yaml",
		"job_name: arrowscan-api",
	} {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func readAsset(t *testing.T, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{repoRoot(t), "deployments", "observability"}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(content)
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
