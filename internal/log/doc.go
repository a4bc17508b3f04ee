// Package log builds the slog loggers used by sitesnap.
//
// Every logger returned by this package wraps its output handler in a
// RedactingHandler, which masks the values of attributes that may carry
// credentials: license keys, cookies, authorization headers and proxy
// passwords. URLs with embedded user information are logged with the
// password replaced.
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	logger.Info("request sent", "cookie", "session=abc123") // cookie=***REDACTED***
//	slog.SetDefault(logger)
package log
