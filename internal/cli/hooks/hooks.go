// Package hooks bridges engine events to the terminal UI or the log.
package hooks

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stackvity/stack-linguist/pkg/linguist"
)

// FileDiscoveredMsg signals that the walker found a file.
type FileDiscoveredMsg struct{ Path string }

// FileStatusUpdateMsg signals a change in a file's status.
type FileStatusUpdateMsg struct {
	Path     string
	Status   linguist.Status
	Message  string
	Duration time.Duration
}

// RunCompleteMsg carries the final results of a run.
type RunCompleteMsg struct {
	Results  *linguist.Results
	Duration time.Duration
}

// TUIProgram is the part of tea.Program the hooks need.
type TUIProgram interface {
	Send(msg tea.Msg)
}

// NoOpTUIProgram drops every message.
type NoOpTUIProgram struct{}

func (NoOpTUIProgram) Send(tea.Msg) {}

// CLIHooks implements linguist.Hooks. With the TUI enabled every event is
// forwarded as a message; otherwise events are logged, at debug level unless
// they report a failure.
type CLIHooks struct {
	logger     *slog.Logger
	tuiEnabled bool
	tuiProgram TUIProgram
}

// NewCLIHooks creates hooks. tuiProg may be nil when the TUI is disabled.
func NewCLIHooks(logger *slog.Logger, tuiEnabled bool, tuiProg TUIProgram) *CLIHooks {
	if tuiProg == nil {
		tuiProg = NoOpTUIProgram{}
	}
	return &CLIHooks{logger: logger, tuiEnabled: tuiEnabled, tuiProgram: tuiProg}
}

func (h *CLIHooks) OnFileDiscovered(path string) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileDiscoveredMsg{Path: path})
		return nil
	}
	h.logger.Debug("File discovered", slog.String("path", path))
	return nil
}

// OnFileStatusUpdate is called concurrently from every worker.
func (h *CLIHooks) OnFileStatusUpdate(path string, status linguist.Status, message string, duration time.Duration) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(FileStatusUpdateMsg{Path: path, Status: status, Message: message, Duration: duration})
		return nil
	}

	level := slog.LevelDebug
	msg := "File status updated"
	attrs := []slog.Attr{slog.String("path", path), slog.String("status", string(status))}
	if duration > 0 {
		attrs = append(attrs, slog.Duration("duration", duration))
	}
	if message != "" {
		key := "message"
		if status == linguist.StatusFailed {
			key = "error"
		}
		attrs = append(attrs, slog.String(key, message))
	}
	if status == linguist.StatusFailed {
		level = slog.LevelWarn
		msg = "File could not be read"
	}
	h.logger.LogAttrs(context.Background(), level, msg, attrs...)
	return nil
}

func (h *CLIHooks) OnRunComplete(results *linguist.Results, duration time.Duration) error {
	if h.tuiEnabled {
		h.tuiProgram.Send(RunCompleteMsg{Results: results, Duration: duration})
	}
	return nil
}
