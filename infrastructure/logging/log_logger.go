package logging

import (
	"log"
	"sshcore/application/logging"
)

type LogLogger struct {
}

func NewLogLogger() logging.Logger {
	return &LogLogger{}
}

func (l LogLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// PrefixLogger prepends a fixed tag (usually the remote address) to every line.
type PrefixLogger struct {
	prefix string
	inner  logging.Logger
}

func NewPrefixLogger(prefix string, inner logging.Logger) logging.Logger {
	if inner == nil {
		inner = NewLogLogger()
	}
	return &PrefixLogger{prefix: prefix, inner: inner}
}

func (l *PrefixLogger) Printf(format string, v ...any) {
	l.inner.Printf("[%s] "+format, append([]any{l.prefix}, v...)...)
}
