// Package mail delivers lead notifications over SMTP.
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jmcleod/leaddesk/metrics"
)

const (
	defaultRetryCount   = 3
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 32 * time.Second
	defaultSenderName   = "leaddesk"
)

// Config holds SMTP settings. An empty Host disables delivery.
type Config struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	SenderAddress      string        `yaml:"sender_address"`
	SenderName         string        `yaml:"sender_name"`
	Recipients         []string      `yaml:"recipients"`
	RetryCount         int           `yaml:"retry_count"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
}

// Enabled reports whether an SMTP host is configured.
func (c Config) Enabled() bool {
	return c.Host != ""
}

// Sender delivers a rendered message to the configured recipients.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// dialer is the subset of *gomail.Dialer used by smtpSender.
type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpSender struct {
	dialer        dialer
	host          string
	senderAddress string
	senderName    string
	recipients    []string
	retryCount    int
	retryBackoff  time.Duration
	logger        *slog.Logger
	sleep         func(context.Context, time.Duration) error
}

// NewSender returns an SMTP Sender for cfg, or Noop when cfg has no host.
func NewSender(cfg Config, logger *slog.Logger) Sender {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mail")
	if !cfg.Enabled() {
		logger.Info("smtp host not configured, notifications disabled")
		return Noop{}
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	if cfg.InsecureSkipVerify {
		logger.Warn("InsecureSkipVerify is enabled for mail TLS connection")
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return newSMTPSender(d, cfg, logger)
}

func newSMTPSender(d dialer, cfg Config, logger *slog.Logger) *smtpSender {
	senderAddr := cfg.SenderAddress
	if senderAddr == "" {
		senderAddr = "noreply@" + cfg.Host
	}
	senderName := cfg.SenderName
	if senderName == "" {
		senderName = defaultSenderName
	}
	retryCount := cfg.RetryCount
	if retryCount <= 0 {
		retryCount = defaultRetryCount
	}
	retryBackoff := cfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = defaultRetryBackoff
	}

	logger.Info("mail sender initialised",
		"host", cfg.Host, "port", cfg.Port, "retry_count", retryCount, "retry_backoff", retryBackoff)

	return &smtpSender{
		dialer:        d,
		host:          cfg.Host,
		senderAddress: senderAddr,
		senderName:    senderName,
		recipients:    cfg.Recipients,
		retryCount:    retryCount,
		retryBackoff:  retryBackoff,
		logger:        logger,
		sleep:         sleepContext,
	}
}

func (s *smtpSender) Send(ctx context.Context, subject, body string) error {
	if len(s.recipients) == 0 {
		return fmt.Errorf("no notification recipients configured")
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.senderAddress, s.senderName)
	msg.SetHeader("To", s.recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	var lastErr error
	backoff := s.retryBackoff
	for attempt := 0; attempt <= s.retryCount; attempt++ {
		err := s.dialer.DialAndSend(msg)
		if err == nil {
			s.logger.Info("mail sent", "recipients", len(s.recipients), "attempt", attempt+1)
			metrics.MailSendSuccess.WithLabelValues(s.host).Inc()
			return nil
		}
		lastErr = err
		if attempt == s.retryCount {
			break
		}
		s.logger.Warn("mail send attempt failed", "attempt", attempt+1, "retry_in", backoff, "error", err)
		if err := s.sleep(ctx, backoff); err != nil {
			lastErr = err
			break
		}
		backoff = min(backoff*2, maxRetryBackoff)
	}

	s.logger.Error("mail send failed", "attempts", s.retryCount+1, "error", lastErr)
	metrics.MailSendFailure.WithLabelValues(s.host).Inc()
	return fmt.Errorf("sending mail: %w", lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Noop discards every message.
type Noop struct{}

func (Noop) Send(context.Context, string, string) error { return nil }
