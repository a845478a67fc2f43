package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	RateLimitRejections.WithLabelValues("test").Inc()
	if v := testutil.ToFloat64(RateLimitRejections.WithLabelValues("test")); v < 1 {
		t.Fatalf("expected RateLimitRejections >= 1, got %v", v)
	}

	AdminLogins.WithLabelValues("failure").Add(2)
	if v := testutil.ToFloat64(AdminLogins.WithLabelValues("failure")); v < 2 {
		t.Fatalf("expected AdminLogins >= 2, got %v", v)
	}

	before := testutil.ToFloat64(ContactSubmissions)
	ContactSubmissions.Inc()
	if v := testutil.ToFloat64(ContactSubmissions); v != before+1 {
		t.Fatalf("expected ContactSubmissions %v, got %v", before+1, v)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	ChatUpstreamRequests.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "leaddesk_chat_upstream_requests_total") {
		t.Error("metrics output missing chat upstream counter")
	}
}
