package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistryExposesMetrics(t *testing.T) {
	reg := New()
	reg.JobsEnqueued.WithLabelValues("SCHEDULED").Inc()
	reg.ScrapeOutcomes.WithLabelValues("SUCCESS").Inc()
	reg.DLQSize.Set(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "pricewatch_jobs_enqueued_total") {
		t.Errorf("expected jobs_enqueued_total in output, got:\n%s", body)
	}
	if !strings.Contains(body, "pricewatch_dlq_size 3") {
		t.Errorf("expected dlq_size 3 in output, got:\n%s", body)
	}
}
