package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	minuteWindow = 1 * time.Minute
	hourWindow   = 1 * time.Hour
	dayWindow    = 24 * time.Hour

	// DefaultCleanupInterval is the minimum time between full sweeps.
	DefaultCleanupInterval = 5 * time.Minute
	// DefaultMaxEntries caps the number of distinct tracked keys.
	DefaultMaxEntries = 10000

	dailyCleanupInterval = 10 * time.Minute
)

// UnknownKey is the shared bucket for callers whose key cannot be determined.
const UnknownKey = "unknown"

// ErrInvalidConfig is returned when a limiter configuration is rejected.
var ErrInvalidConfig = errors.New("invalid rate limit config")

// Checker reports whether a request for key should be rejected. A false
// result means the request was allowed and has been counted.
type Checker interface {
	IsRateLimited(key string) bool
}

// Config holds the budgets for a Limiter.
type Config struct {
	// MaxPerMinute is the number of requests allowed per key in any 60 second window.
	MaxPerMinute int `yaml:"max_per_minute"`
	// MaxPerHour, when non-zero, additionally caps requests per key in any hour.
	MaxPerHour int `yaml:"max_per_hour"`
	// CleanupInterval is the minimum time between full sweeps of the log.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	// MaxEntries is the hard cap on distinct tracked keys.
	MaxEntries int `yaml:"max_entries"`
}

// Validate rejects zero or negative caps.
func (c Config) Validate() error {
	if c.MaxPerMinute <= 0 {
		return fmt.Errorf("%w: max_per_minute must be positive, got %d", ErrInvalidConfig, c.MaxPerMinute)
	}
	if c.MaxPerHour < 0 {
		return fmt.Errorf("%w: max_per_hour must not be negative, got %d", ErrInvalidConfig, c.MaxPerHour)
	}
	if c.CleanupInterval < 0 {
		return fmt.Errorf("%w: cleanup_interval must not be negative", ErrInvalidConfig)
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("%w: max_entries must not be negative, got %d", ErrInvalidConfig, c.MaxEntries)
	}
	return nil
}

// withDefaults fills in the optional fields.
func (c Config) withDefaults() Config {
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	return c
}

func (c Config) tiers() []tier {
	tiers := []tier{{span: minuteWindow, max: c.MaxPerMinute}}
	if c.MaxPerHour > 0 {
		tiers = append(tiers, tier{span: hourWindow, max: c.MaxPerHour})
	}
	return tiers
}

// Option customizes a limiter.
type Option func(*settings)

type settings struct {
	now func() time.Time
}

// WithClock replaces time.Now as the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

func applyOptions(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Limiter enforces per-minute and optional per-hour budgets per key.
type Limiter struct {
	cfg Config
	log *slidingLog
}

var _ Checker = (*Limiter)(nil)

// New validates cfg, applies defaults and returns a ready Limiter.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	s := applyOptions(opts)
	return &Limiter{
		cfg: cfg,
		log: newSlidingLog(cfg.tiers(), cfg.CleanupInterval, cfg.MaxEntries, s.now),
	}, nil
}

// IsRateLimited reports whether a request for key exceeds a budget. Rejected
// requests are not recorded; allowed requests are.
func (l *Limiter) IsRateLimited(key string) bool {
	return l.log.limited(key)
}

// Config returns the effective configuration, defaults included.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	return l.log.size()
}

// DailyLimiter enforces a single 24 hour budget per key.
type DailyLimiter struct {
	maxPerDay int
	log       *slidingLog
}

var _ Checker = (*DailyLimiter)(nil)

// NewDaily returns a DailyLimiter allowing maxPerDay requests per key in any
// 24 hour window.
func NewDaily(maxPerDay int, opts ...Option) (*DailyLimiter, error) {
	if maxPerDay <= 0 {
		return nil, fmt.Errorf("%w: max_per_day must be positive, got %d", ErrInvalidConfig, maxPerDay)
	}
	s := applyOptions(opts)
	return &DailyLimiter{
		maxPerDay: maxPerDay,
		log:       newSlidingLog([]tier{{span: dayWindow, max: maxPerDay}}, dailyCleanupInterval, DefaultMaxEntries, s.now),
	}, nil
}

// IsLimited reports whether key has used up its daily budget.
func (d *DailyLimiter) IsLimited(key string) bool {
	return d.log.limited(key)
}

// IsRateLimited is IsLimited under the Checker name.
func (d *DailyLimiter) IsRateLimited(key string) bool {
	return d.IsLimited(key)
}

// Len returns the number of tracked keys.
func (d *DailyLimiter) Len() int {
	return d.log.size()
}

type tier struct {
	span time.Duration
	max  int
}

// slidingLog is the timestamp log shared by Limiter and DailyLimiter.
// Every stored timestamp is within the longest tier as of the last sweep,
// keys with no timestamps are removed, and order holds keys oldest-inserted
// first so overflow eviction drops the oldest keys.
type slidingLog struct {
	mu              sync.Mutex
	tiers           []tier
	retention       time.Duration
	cleanupInterval time.Duration
	maxEntries      int
	entries         map[string][]time.Time
	order           []string
	lastCleanup     time.Time
	now             func() time.Time
}

func newSlidingLog(tiers []tier, cleanupInterval time.Duration, maxEntries int, now func() time.Time) *slidingLog {
	var retention time.Duration
	for _, t := range tiers {
		if t.span > retention {
			retention = t.span
		}
	}
	return &slidingLog{
		tiers:           tiers,
		retention:       retention,
		cleanupInterval: cleanupInterval,
		maxEntries:      maxEntries,
		entries:         make(map[string][]time.Time),
		lastCleanup:     now(),
		now:             now,
	}
}

func (s *slidingLog) limited(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if len(s.entries) >= s.maxEntries || now.Sub(s.lastCleanup) >= s.cleanupInterval {
		s.sweep(now)
	}

	stamps := s.entries[key]
	for _, t := range s.tiers {
		if countAfter(stamps, now.Add(-t.span)) >= t.max {
			return true
		}
	}

	if _, ok := s.entries[key]; !ok {
		s.order = append(s.order, key)
	}
	s.entries[key] = append(stamps, now)
	return false
}

// sweep drops timestamps outside the retention window, removes empty keys
// and evicts the oldest keys while above maxEntries. Caller holds mu.
func (s *slidingLog) sweep(now time.Time) {
	cutoff := now.Add(-s.retention)
	kept := make([]string, 0, len(s.order))
	for _, key := range s.order {
		stamps := trimWindow(s.entries[key], cutoff)
		if len(stamps) == 0 {
			delete(s.entries, key)
			continue
		}
		s.entries[key] = stamps
		kept = append(kept, key)
	}
	if over := len(kept) - s.maxEntries; over > 0 {
		for _, key := range kept[:over] {
			delete(s.entries, key)
		}
		kept = append([]string(nil), kept[over:]...)
	}
	s.order = kept
	s.lastCleanup = now
}

func (s *slidingLog) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// trimWindow removes entries at or before cutoff from the sorted slice.
func trimWindow(times []time.Time, cutoff time.Time) []time.Time {
	start := 0
	for start < len(times) && !times[start].After(cutoff) {
		start++
	}
	if start == len(times) {
		return nil
	}
	return times[start:]
}

func countAfter(times []time.Time, cutoff time.Time) int {
	n := 0
	for i := len(times) - 1; i >= 0; i-- {
		if !times[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}
