package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Rate limiting
	RateLimitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_ratelimit_rejections_total",
		Help: "Total number of requests rejected by a rate limiter",
	}, []string{"limiter"})

	// Admin authentication
	AdminLogins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_admin_logins_total",
		Help: "Admin login attempts grouped by outcome (success/failure/error)",
	}, []string{"outcome"})

	// Lead capture
	LeadsCaptured = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_leads_captured_total",
		Help: "Total number of leads stored, by kind",
	}, []string{"kind"})
	ContactSubmissions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "leaddesk_contact_submissions_total",
		Help: "Total number of accepted contact form submissions",
	})

	// Mail
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_mail_send_success_total",
		Help: "Total number of successfully sent notification mails",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_mail_send_failure_total",
		Help: "Total number of notification mails that failed after all retries",
	}, []string{"host"})

	// Chat upstream
	ChatUpstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "leaddesk_chat_upstream_requests_total",
		Help: "Requests to the LLM provider grouped by outcome (ok/error/breaker_open)",
	}, []string{"outcome"})
	ChatUpstreamLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "leaddesk_chat_upstream_duration_seconds",
		Help:    "Latency of successful LLM provider requests",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})
)

func init() {
	prometheus.MustRegister(RateLimitRejections)
	prometheus.MustRegister(AdminLogins)
	prometheus.MustRegister(LeadsCaptured)
	prometheus.MustRegister(ContactSubmissions)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(ChatUpstreamRequests)
	prometheus.MustRegister(ChatUpstreamLatency)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
