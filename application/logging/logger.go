package logging

// Logger is the logging contract shared by every component.
type Logger interface {
	Printf(format string, v ...any)
}
