// Package logger provides the leveled, thread-safe logger used by every
// dispatchd component.
//
// Each entry carries a timestamp, a level, an optional scope and the message.
// The scope names where the line came from: a worker ("worker-3"), the
// request server ("server") or the monitor ("api").
//
//	logger.Info("", "dispatchd starting")
//	logger.Warn("worker-2", "job panicked: %v", r)
//
//	l := logger.New(os.Stderr, logger.LevelDebug)
//	l.Debug("server", "accepted %s", conn.RemoteAddr())
//
// Messages below the configured level are dropped. ParseLevel maps the
// names used in config files and flags ("debug", "info", "warn", "error").
package logger
