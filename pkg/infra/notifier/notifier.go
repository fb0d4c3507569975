package notifier

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Notifier delivers rule Notify actions to an alerting channel. The
// transport itself is an external collaborator; implementations here only
// hand the event off.
type Notifier interface {
	Notify(ctx context.Context, channel, message string)
}

// LogNotifier writes notifications through the structured logger, throttled
// so a firing rule under attack traffic cannot flood the channel.
type LogNotifier struct {
	logger  *logrus.Logger
	limiter *rate.Limiter
}

func NewLogNotifier(logger *logrus.Logger, eventsPerSecond float64) *LogNotifier {
	if eventsPerSecond <= 0 {
		eventsPerSecond = 1
	}
	return &LogNotifier{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), int(eventsPerSecond)+1),
	}
}

func (n *LogNotifier) Notify(_ context.Context, channel, message string) {
	if !n.limiter.Allow() {
		n.logger.WithField("channel", channel).Debug("notification dropped by throttle")
		return
	}
	n.logger.WithFields(logrus.Fields{
		"channel": channel,
	}).Warn(message)
}
