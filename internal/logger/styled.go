// internal/logger/styled.go
package logger

import (
	"log/slog"

	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/theme"
)

// LogContext carries the two audiences a dataplane log line can serve:
// a short message for the operator's terminal (UserArgs) and the
// additional structured fields worth keeping in the file/JSON sink but
// too noisy for the terminal (DetailedArgs).
type LogContext struct {
	UserArgs     []any
	DetailedArgs []any
}

// StyledLogger is the logging surface adapters and middleware depend
// on instead of *slog.Logger directly, so the terminal can get
// pterm-styled output (PrettyStyledLogger) while non-TTY sinks stay
// plain (PlainStyledLogger). Tests substitute their own implementation.
type StyledLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	InfoWithCount(msg string, count int, args ...any)
	InfoWithEndpoint(msg string, endpoint string, args ...any)
	InfoWithHealthCheck(msg string, endpoint string, args ...any)
	InfoWithNumbers(msg string, numbers ...int64)
	WarnWithEndpoint(msg string, endpoint string, args ...any)
	ErrorWithEndpoint(msg string, endpoint string, args ...any)
	InfoHealthy(msg string, endpoint string, args ...any)
	InfoHealthStatus(msg string, name string, status domain.EndpointStatus, args ...any)

	InfoWithContext(msg string, endpoint string, ctx LogContext)
	WarnWithContext(msg string, endpoint string, ctx LogContext)
	ErrorWithContext(msg string, endpoint string, ctx LogContext)

	InfoConfigChange(oldName, newName string)

	GetUnderlying() *slog.Logger
	WithRequestID(requestID string) StyledLogger
	WithAttrs(attrs ...slog.Attr) StyledLogger
	With(args ...any) StyledLogger
}

// NewStyledLogger builds the theme-aware StyledLogger implementation.
// Kept as the canonical constructor name; it wires to PrettyStyledLogger.
func NewStyledLogger(logger *slog.Logger, appTheme *theme.Theme) StyledLogger {
	return NewPrettyStyledLogger(logger, appTheme)
}

// NewWithTheme builds both the raw slog.Logger and its styled wrapper
// from one Config — the constructor main.go calls at startup.
func NewWithTheme(cfg *Config) (*slog.Logger, StyledLogger, func(), error) {
	plain, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styled := NewPrettyStyledLogger(plain, appTheme)

	return plain, styled, cleanup, nil
}

// toInterfaceSlice converts a string slice to []any for Sprintf-style
// variadic formatting, shared by the Plain and Pretty implementations.
func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}
