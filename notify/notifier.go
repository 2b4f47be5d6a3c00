// Package notify fans alerts out to the configured notification channels.
// Delivery is best effort per channel behind a circuit breaker; an alert
// succeeds when at least one channel accepts it.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"argus/core"
	"argus/metrics"
)

// Alert is the payload dispatched to every channel.
type Alert struct {
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Severity  core.ThreatLevel       `json:"severity"`
	DeviceRef string                 `json:"device_ref,omitempty"`
	UserRef   string                 `json:"user_ref,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Channel is one notification transport. Send returning nil is the
// channel's acceptance signal.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *Alert) error
}

// sendTimeout bounds each channel call so a stalled transport counts as one
// failed channel, never a stalled action.
const sendTimeout = 5 * time.Second

// Notifier fans out alerts across channels with per-channel circuit
// breakers and a global rate limit.
type Notifier struct {
	channels []Channel
	limiter  *rate.Limiter
	logger   *zap.SugaredLogger

	cbMu     sync.RWMutex
	breakers map[string]*core.CircuitBreaker
}

// NewNotifier builds a notifier over the given channels. ratePerSecond <= 0
// disables rate limiting.
func NewNotifier(channels []Channel, ratePerSecond float64, logger *zap.SugaredLogger) *Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond)+1)
	}
	return &Notifier{
		channels: channels,
		limiter:  limiter,
		logger:   logger,
		breakers: make(map[string]*core.CircuitBreaker),
	}
}

func (n *Notifier) breaker(channel string) *core.CircuitBreaker {
	n.cbMu.RLock()
	cb, ok := n.breakers[channel]
	n.cbMu.RUnlock()
	if ok {
		return cb
	}

	n.cbMu.Lock()
	defer n.cbMu.Unlock()
	if cb, ok := n.breakers[channel]; ok {
		return cb
	}
	cb = core.MustNewCircuitBreaker(core.CircuitBreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	})
	n.breakers[channel] = cb
	return cb
}

// Send dispatches the alert to every channel and reports whether at least
// one accepted it. A tripped breaker or channel error never suppresses the
// remaining channels.
func (n *Notifier) Send(ctx context.Context, alert *Alert) bool {
	if len(n.channels) == 0 {
		n.logger.Warnw("no notification channels configured", "title", alert.Title)
		return false
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	if n.limiter != nil && !n.limiter.Allow() {
		n.logger.Warnw("notification rate limit exceeded, dropping alert", "title", alert.Title)
		metrics.NotificationsSent.WithLabelValues("all", "rate_limited").Inc()
		return false
	}

	var accepted bool
	for _, channel := range n.channels {
		cb := n.breaker(channel.Name())
		if err := cb.Allow(); err != nil {
			n.logger.Warnw("notification channel circuit open",
				"channel", channel.Name(), "error", err)
			metrics.NotificationsSent.WithLabelValues(channel.Name(), "circuit_open").Inc()
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := channel.Send(sendCtx, alert)
		cancel()

		if err != nil {
			cb.RecordFailure()
			metrics.NotificationsSent.WithLabelValues(channel.Name(), "failed").Inc()
			n.logger.Warnw("notification channel failed",
				"channel", channel.Name(), "title", alert.Title, "error", err)
			continue
		}
		cb.RecordSuccess()
		metrics.NotificationsSent.WithLabelValues(channel.Name(), "sent").Inc()
		accepted = true
	}
	return accepted
}
