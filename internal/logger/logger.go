// Package logger provides the small leveled logging interface threaded
// through every long-running task (announcer, peer loop, accept loop,
// tracker listeners, sweep), each constructed with a component name:
// logger.New("peer <- "+addr).
package logger

import (
	golog "github.com/cenkalti/log"
	"github.com/sirupsen/logrus"
)

// Logger is the interface every task-owning type holds a reference to.
type Logger interface {
	Debug(args ...interface{})
	Debugln(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infoln(args ...interface{})
	Infof(format string, args ...interface{})
	Warning(args ...interface{})
	Warningln(args ...interface{})
	Warningf(format string, args ...interface{})
	Error(args ...interface{})
	Errorln(args ...interface{})
	Errorf(format string, args ...interface{})
}

type namedLogger struct {
	name string
	l    golog.Logger
}

// New returns a Logger tagged with name, used as a prefix on every line
// so concurrent tasks (one per peer, one per torrent announcer) can be
// told apart in the log stream.
func New(name string) Logger {
	l := golog.NewLogger(name)
	return &namedLogger{name: name, l: l}
}

func (n *namedLogger) Debug(args ...interface{})                 { n.l.Debug(args...) }
func (n *namedLogger) Debugln(args ...interface{})                { n.l.Debugln(args...) }
func (n *namedLogger) Debugf(format string, args ...interface{})  { n.l.Debugf(format, args...) }
func (n *namedLogger) Info(args ...interface{})                   { n.l.Info(args...) }
func (n *namedLogger) Infoln(args ...interface{})                 { n.l.Infoln(args...) }
func (n *namedLogger) Infof(format string, args ...interface{})   { n.l.Infof(format, args...) }
func (n *namedLogger) Warning(args ...interface{})                { n.l.Warning(args...) }
func (n *namedLogger) Warningln(args ...interface{})              { n.l.Warningln(args...) }
func (n *namedLogger) Warningf(format string, args ...interface{}) {
	n.l.Warningf(format, args...)
}
func (n *namedLogger) Error(args ...interface{})                { n.l.Error(args...) }
func (n *namedLogger) Errorln(args ...interface{})              { n.l.Errorln(args...) }
func (n *namedLogger) Errorf(format string, args ...interface{}) { n.l.Errorf(format, args...) }

// requestLogger backs the request-handling side of the tracker
// (trackerserver, memtracker) with logrus instead of cenkalti/log: a
// structured field-based entry per request rather than the line-based
// per-task logger used by the peer/torrent runtime.
type requestLogger struct {
	entry *logrus.Entry
}

// NewRequest returns a Logger tagged with component, backed by logrus,
// for the request-handling layer (trackerserver and memtracker) rather
// than the per-task runtime logger.
func NewRequest(component string) Logger {
	return &requestLogger{entry: logrus.WithField("component", component)}
}

func (r *requestLogger) Debug(args ...interface{})                 { r.entry.Debug(args...) }
func (r *requestLogger) Debugln(args ...interface{})                { r.entry.Debugln(args...) }
func (r *requestLogger) Debugf(format string, args ...interface{})  { r.entry.Debugf(format, args...) }
func (r *requestLogger) Info(args ...interface{})                   { r.entry.Info(args...) }
func (r *requestLogger) Infoln(args ...interface{})                 { r.entry.Infoln(args...) }
func (r *requestLogger) Infof(format string, args ...interface{})   { r.entry.Infof(format, args...) }
func (r *requestLogger) Warning(args ...interface{})                { r.entry.Warning(args...) }
func (r *requestLogger) Warningln(args ...interface{})              { r.entry.Warningln(args...) }
func (r *requestLogger) Warningf(format string, args ...interface{}) {
	r.entry.Warningf(format, args...)
}
func (r *requestLogger) Error(args ...interface{})                { r.entry.Error(args...) }
func (r *requestLogger) Errorln(args ...interface{})              { r.entry.Errorln(args...) }
func (r *requestLogger) Errorf(format string, args ...interface{}) { r.entry.Errorf(format, args...) }
