// Package logging builds the logr logger used throughout a run, backed by
// zap through controller-runtime.
package logging

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Levels accepted by ParseLevel. There is no warn level: logr has only info
// and error, so warnings are info entries carrying a "warning" key and must
// stay visible whenever info is.
var Levels = []string{"debug", "info", "error"}

// ParseLevel parses a log level name. An empty name means info.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	name = strings.ToLower(name)
	if !slices.Contains(Levels, name) {
		return 0, fmt.Errorf("invalid log level %q (want one of %s)", name, strings.Join(Levels, ", "))
	}
	return zapcore.ParseLevel(name)
}

// New returns a console logger at level. It writes to the file at path,
// appending, or to stderr when path is empty. The returned closer releases
// the file and is a no-op for stderr.
func New(level, path string, stderr io.Writer) (logr.Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return logr.Discard(), nil, err
	}

	var (
		out    io.Writer = stderr
		closer io.Closer = nopCloser{}
	)
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return logr.Discard(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out, closer = f, f
	}

	logger := zap.New(
		zap.WriteTo(out),
		zap.Level(lvl),
		zap.ConsoleEncoder(),
		zap.StacktraceLevel(zapcore.PanicLevel),
	)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
