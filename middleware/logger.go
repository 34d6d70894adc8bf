package middleware

import (
	logging "github.com/ipfs/go-log/v2"

	"github.com/hedeqiang/telreg/subscriber"
)

// Logger logs every push that passes through it.
type Logger struct {
	logger *logging.ZapEventLogger
	label  string
}

// NewLogger creates a logging middleware. If l is nil the
// "telreg/push" logger is used.
func NewLogger(l *logging.ZapEventLogger, label string) *Logger {
	if l == nil {
		l = logging.Logger("telreg/push")
	}
	return &Logger{logger: l, label: label}
}

// Wrap decorates the listener with push logging.
func (l *Logger) Wrap(next subscriber.Listener) subscriber.Listener {
	return intercept(next, func(u subscriber.Update, deliver func() error) error {
		err := deliver()
		if err != nil {
			l.logger.Debugw("push failed", "label", l.label, "field", u.Field.String(), "err", err)
			return err
		}
		l.logger.Debugw("push", "label", l.label, "field", u.Field.String())
		return nil
	})
}
