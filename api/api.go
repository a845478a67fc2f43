// Package api implements the leaddesk HTTP surface: the public contact and
// chat endpoints and the admin leads dashboard.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/google/uuid"

	"github.com/jmcleod/leaddesk/chat"
	"github.com/jmcleod/leaddesk/mail"
	"github.com/jmcleod/leaddesk/ratelimit"
	"github.com/jmcleod/leaddesk/session"
	"github.com/jmcleod/leaddesk/storage"
)

// AdminCredentials identifies the single dashboard account.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// Limiters holds the per-endpoint rate limiters. ChatSessions caps new
// chat conversations per caller per day.
type Limiters struct {
	Contact      ratelimit.Checker
	Chat         ratelimit.Checker
	Login        ratelimit.Checker
	ChatSessions ratelimit.Checker
}

// PromptSource supplies the chat system prompt.
type PromptSource interface {
	Prompt() string
}

type staticPrompt string

func (p staticPrompt) Prompt() string { return string(p) }

// API holds the dependencies needed by the REST handlers.
type API struct {
	leads    storage.Repository
	signer   *session.Signer
	admin    AdminCredentials
	mailer   mail.Sender
	chat     chat.Completer
	prompts  PromptSource
	limiters Limiters

	trustedProxies  []netip.Prefix
	cookieSecure    bool
	maxHistoryMsgs  int
	maxHistoryChars int

	audit  *auditLogger
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request and audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithMailer sets the sender used for new-lead notifications.
func WithMailer(sender mail.Sender) Option {
	return func(a *API) {
		a.mailer = sender
	}
}

// WithChat enables POST /chat using c for completions and prompts for the
// system prompt.
func WithChat(c chat.Completer, prompts PromptSource) Option {
	return func(a *API) {
		a.chat = c
		a.prompts = prompts
	}
}

// WithHistoryLimits bounds the conversation forwarded to the chat provider.
func WithHistoryLimits(maxMessages, maxChars int) Option {
	return func(a *API) {
		a.maxHistoryMsgs = maxMessages
		a.maxHistoryChars = maxChars
	}
}

// WithLimiters replaces the default in-memory rate limiters. Nil fields keep
// their defaults.
func WithLimiters(l Limiters) Option {
	return func(a *API) {
		if l.Contact != nil {
			a.limiters.Contact = l.Contact
		}
		if l.Chat != nil {
			a.limiters.Chat = l.Chat
		}
		if l.Login != nil {
			a.limiters.Login = l.Login
		}
		if l.ChatSessions != nil {
			a.limiters.ChatSessions = l.ChatSessions
		}
	}
}

// WithTrustedProxies sets the CIDR ranges whose forwarding headers are
// trusted when determining the caller's address.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithCookieSecure forces the Secure attribute on cookies, for deployments
// that terminate TLS at a proxy which does not set X-Forwarded-Proto.
func WithCookieSecure(secure bool) Option {
	return func(a *API) {
		a.cookieSecure = secure
	}
}

// WithAlertFunc registers a callback for login-failure spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.audit.metrics = newMetricsCollector(fn)
	}
}

// New creates a new API instance.
func New(leads storage.Repository, signer *session.Signer, admin AdminCredentials, opts ...Option) *API {
	a := &API{
		leads:          leads,
		signer:         signer,
		admin:          admin,
		mailer:         mail.Noop{},
		limiters:       defaultLimiters(),
		maxHistoryMsgs: 20,
		audit:          &auditLogger{},
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.audit.logger = a.logger.With("component", "audit")
	if a.prompts == nil {
		a.prompts = staticPrompt("")
	}
	return a
}

// Router returns a chi.Router with all API routes mounted. It expects to be
// mounted at /api.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/redoc",
	}, nil))

	r.With(a.rateLimit("contact", func() ratelimit.Checker { return a.limiters.Contact })).
		Post("/contact", a.SubmitContact)
	r.With(a.rateLimit("chat", func() ratelimit.Checker { return a.limiters.Chat })).
		Post("/chat", a.Chat)

	r.Route("/admin", func(r chi.Router) {
		r.Use(noStore)
		r.With(a.rateLimit("login", func() ratelimit.Checker { return a.limiters.Login })).
			Post("/login", a.Login)
		r.Post("/logout", a.Logout)
		r.Get("/session", a.Session)

		r.Group(func(r chi.Router) {
			r.Use(a.AdminAuth)
			r.Use(a.CSRFMiddleware)
			r.Get("/leads", a.ListLeads)
			r.Get("/leads/{leadID}", a.GetLead)
			r.Patch("/leads/{leadID}", a.UpdateLead)
			r.Delete("/leads/{leadID}", a.DeleteLead)
		})
	})

	return r
}

func defaultLimiters() Limiters {
	mustNew := func(cfg ratelimit.Config) *ratelimit.Limiter {
		l, err := ratelimit.New(cfg)
		if err != nil {
			panic(err)
		}
		return l
	}
	daily, err := ratelimit.NewDaily(20)
	if err != nil {
		panic(err)
	}
	return Limiters{
		Contact:      mustNew(ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 20}),
		Chat:         mustNew(ratelimit.Config{MaxPerMinute: 10, MaxPerHour: 60}),
		Login:        mustNew(ratelimit.Config{MaxPerMinute: 5, MaxPerHour: 20}),
		ChatSessions: daily,
	}
}
