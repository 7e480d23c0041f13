package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// OpenLogger writes structured logs to a file; the terminal belongs to
// the UI. An empty path discards logs. The returned func closes the file.
func OpenLogger(path string) (zerolog.Logger, func(), error) {
	if path == "" {
		return zerolog.Nop(), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	log := zerolog.New(file).With().Timestamp().Logger()
	return log, func() { _ = file.Close() }, nil
}
