package core

// Logger is any leveled logging service.
//
// Implementations may inspect args for well-known types (a logged-in user,
// an error with a stack trace) and report them to an external collector.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
