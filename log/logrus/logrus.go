package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/pagestore"
)

var _ pagestore.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New wraps l (nil => logrus.StandardLogger()) and tags every entry with component=pagestore.
func New(l *logrus.Logger) LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return LogrusLogger{E: l.WithField("component", "pagestore")}
}

func (l LogrusLogger) Debug(msg string, f pagestore.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f pagestore.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f pagestore.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f pagestore.Fields) { l.with(f).Error(msg) }

// with moves an "err" field to logrus' own error key.
func (l LogrusLogger) with(f pagestore.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			lf[logrus.ErrorKey] = err
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
