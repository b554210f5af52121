package sol

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// InitLogger configures the process-wide default slog logger: tint's
// colorized handler, with source file paths rewritten relative to the
// project root so log lines stay readable across machines.
func InitLogger(config *Config) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := getProjectRoot(filename)

	replaceAttr := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key != slog.SourceKey {
			return a
		}
		source, ok := a.Value.Any().(*slog.Source)
		if !ok {
			return a
		}
		if projectRoot != "" && strings.HasPrefix(source.File, projectRoot) {
			source.File = source.File[len(projectRoot)+1:]
		}
		return slog.Any(a.Key, source)
	}

	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:       config.GetSlogLevel(),
		AddSource:   true,
		NoColor:     false,
		TimeFormat:  time.RFC3339,
		ReplaceAttr: replaceAttr,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// getProjectRoot derives the module root from this file's own path: it
// lives two directories below the root (internal/sol/sol.go), so the
// root is two levels up from its directory.
func getProjectRoot(file string) string {
	return filepath.Dir(filepath.Dir(filepath.Dir(file)))
}
