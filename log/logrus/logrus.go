// Package logrus routes queue diagnostics to a logrus entry.
package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/refillq"
)

// LogrusLogger adapts a *logrus.Entry to the refillq logging seam. Wrap an
// entry rather than a logger so dictionary-level fields (dict name, tier)
// can be bound once and carried on every queue message.
type LogrusLogger struct{ E *logrus.Entry }

var _ refillq.Logger = LogrusLogger{}

func (l LogrusLogger) Debug(msg string, f refillq.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f refillq.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f refillq.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f refillq.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
