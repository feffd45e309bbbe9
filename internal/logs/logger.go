// Package logs builds the structured logger shared by the command line
// tools. Loggers are provided through a dscope Module so that callers can
// replace the terminal writer or add a log file by forking the scope.
package logs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/reusee/dscope"
	slogmulti "github.com/samber/slog-multi"
)

type Module struct {
	dscope.Module
}

var level = func() *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(slog.LevelWarn)
	return v
}()

// SetLevel sets the minimum level of every logger built by this package.
func SetLevel(l slog.Level) {
	level.Set(l)
}

type Logger = *slog.Logger

// Writer receives human-readable log lines.
type Writer io.Writer

func (Module) Writer() Writer {
	return os.Stderr
}

// File is the path of an optional JSON log file. Empty means none.
type File string

func (Module) File() File {
	return ""
}

func (Module) Logger(
	writer Writer,
	file File,
) Logger {
	terminalHandler := slog.NewTextHandler(
		writer,
		&slog.HandlerOptions{
			Level: level,
		},
	)
	handlers := []slog.Handler{terminalHandler}

	if file != "" {
		f, err := os.OpenFile(string(file), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			record := slog.NewRecord(time.Now(), slog.LevelWarn, "open log file", 0)
			record.Add("file", string(file), "error", err)
			_ = terminalHandler.Handle(context.Background(), record)
		} else {
			// The file stays open for the life of the process.
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
				Level: level,
			}))
		}
	}

	return slog.New(slogmulti.Fanout(handlers...))
}
