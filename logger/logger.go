// Package logger provides prefixed, colored loggers backed by logrus.
package logger

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

const colorReset = "\033[0m"

// Logger writes leveled messages tagged with a component prefix.
type Logger struct {
	prefix string
	entry  *logrus.Entry
}

// New returns a logger writing to w. color is an ANSI escape wrapped around
// the prefix; pass an empty string for plain output.
func New(prefix, color string, w io.Writer) (*Logger, error) {
	if w == nil {
		return nil, errors.New("logger output is nil")
	}

	base := logrus.New()
	base.SetOutput(w)
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableQuote:     true,
		DisableColors:    color == "",
		PadLevelText:     true,
		QuoteEmptyFields: true,
	})

	tag := fmt.Sprintf("[%s]", prefix)
	if color != "" {
		tag = color + tag + colorReset
	}
	return &Logger{prefix: tag, entry: logrus.NewEntry(base)}, nil
}

// SetLevel changes the minimum level written, e.g. "debug" or "warning".
func (l *Logger) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.entry.Logger.SetLevel(lvl)
	return nil
}

// WithField returns a logger that attaches key=value to every message.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{prefix: l.prefix, entry: l.entry.WithField(key, value)}
}

// Debug writes msg at debug level.
func (l *Logger) Debug(msg string) {
	l.entry.Debug(l.prefix + " " + msg)
}

// Info writes msg at info level.
func (l *Logger) Info(msg string) {
	l.entry.Info(l.prefix + " " + msg)
}

// Warning writes msg at warning level.
func (l *Logger) Warning(msg string) {
	l.entry.Warn(l.prefix + " " + msg)
}

// Error writes msg at error level.
func (l *Logger) Error(msg string) {
	l.entry.Error(l.prefix + " " + msg)
}
