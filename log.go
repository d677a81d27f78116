package gencode

import "log/slog"

// NopLogger discards all output. Components use it when no logger is configured.
var NopLogger = slog.New(slog.DiscardHandler)
