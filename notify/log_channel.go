package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogChannel writes alerts to the structured log. It is the always-available
// channel of last resort in deployments without external transports.
type LogChannel struct {
	logger *zap.SugaredLogger
}

// NewLogChannel builds a log-backed notification channel.
func NewLogChannel(logger *zap.SugaredLogger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(_ context.Context, alert *Alert) error {
	c.logger.Warnw("SECURITY ALERT",
		"title", alert.Title,
		"severity", alert.Severity,
		"device_ref", alert.DeviceRef,
		"user_ref", alert.UserRef,
		"message", alert.Message,
		"context", alert.Context)
	return nil
}
