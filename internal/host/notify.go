package host

import "log/slog"

// Notifier surfaces user-facing outcome messages. The CLI prints them;
// tests capture them.
type Notifier interface {
	Success(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// LogNotifier reports outcomes through the structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Success(msg string) { n.Logger.Info(msg) }

func (n *LogNotifier) Info(msg string) { n.Logger.Info(msg) }

func (n *LogNotifier) Warn(msg string) { n.Logger.Warn(msg) }

func (n *LogNotifier) Error(msg string) { n.Logger.Error(msg) }
