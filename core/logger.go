package core

// Logger is any service that can log messages.
// args can be errors, maps of extra data or objects the implementation knows how to attach to a report.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
