package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// KeySendAlert flags a log entry for forwarding to the alert sink.
const KeySendAlert = "send_alert"

// AlertFunc receives flagged error entries. Implementations must not block;
// the core invokes it on a separate goroutine.
type AlertFunc func(level, message string, fields map[string]interface{})

// AlertCore is a zapcore.Core that tees flagged entries at or above minLevel
// into an AlertFunc while delegating everything to the wrapped core.
type AlertCore struct {
	core     zapcore.Core
	minLevel zapcore.Level
	send     AlertFunc
}

func NewAlertCore(core zapcore.Core, minLevel zapcore.Level, send AlertFunc) *AlertCore {
	return &AlertCore{core: core, minLevel: minLevel, send: send}
}

func (a *AlertCore) Enabled(lvl zapcore.Level) bool {
	return a.core.Enabled(lvl)
}

func (a *AlertCore) With(fields []zapcore.Field) zapcore.Core {
	return &AlertCore{
		core:     a.core.With(fields),
		minLevel: a.minLevel,
		send:     a.send,
	}
}

func (a *AlertCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if a.Enabled(entry.Level) {
		return a.core.Check(entry, checkedEntry).AddCore(entry, a)
	}
	return checkedEntry
}

func (a *AlertCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	shouldSend := false
	for _, f := range fields {
		if f.Key == KeySendAlert && f.Type == zapcore.BoolType && f.Integer == 1 {
			shouldSend = true
			break
		}
	}
	if entry.Level >= a.minLevel && shouldSend && a.send != nil {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}
		delete(enc.Fields, KeySendAlert)
		go a.send(entry.Level.CapitalString(), entry.Message, enc.Fields)
	}
	return a.core.Write(entry, fields)
}

func (a *AlertCore) Sync() error {
	return a.core.Sync()
}

// WithAlertFunc returns a child logger whose flagged error entries are
// forwarded to send.
func (l *Logger) WithAlertFunc(send AlertFunc) *Logger {
	return &Logger{l.Logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return NewAlertCore(c, zapcore.ErrorLevel, send)
	}))}
}
