/*
Package toolbox – logging.

The package logs through log/slog. Tables default to slog.Default(); pass a
handler-specific logger in TableParams to change level or destination.
Sent commands are logged at debug level, transport failures at error level.
*/
package toolbox

import (
	"context"
	"encoding/json"
	"log/slog"
)

func defaultLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}

// logTrace records a command about to be sent. The input is rendered lazily
// so disabled debug logging does not pay for the JSON encoding.
func logTrace(ctx context.Context, l *slog.Logger, op, table string, input any) {
	if !l.Enabled(ctx, slog.LevelDebug) {
		return
	}
	l.LogAttrs(ctx, slog.LevelDebug, "dynamodb-toolbox send",
		slog.String("op", op),
		slog.String("table", table),
		slog.String("input", fmtInput(input)),
	)
}

func logInfo(ctx context.Context, l *slog.Logger, msg string, attrs ...slog.Attr) {
	l.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func logError(ctx context.Context, l *slog.Logger, op, table string, err error) {
	l.LogAttrs(ctx, slog.LevelError, "dynamodb-toolbox request failed",
		slog.String("op", op),
		slog.String("table", table),
		slog.String("code", string(CodeOf(err))),
		slog.Any("error", err),
	)
}

// fmtInput is a compact JSON rendering of an SDK input for debug lines.
func fmtInput(input any) string {
	b, err := json.Marshal(input)
	if err != nil {
		return err.Error()
	}
	return string(b)
}
