package types

// Logger is the minimal logging collaborator every component in this
// module talks to. The only implementation shipped here is the default in
// package definition; callers supply their own to route log output
// elsewhere.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	ToggleDebug(value bool) bool
}
