// Package app wires the realtime core together for the terminal client.
package app

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Config defines the parameters the client needs.
type Config struct {
	// ServerURL is the room server base, http(s):// or ws(s)://.
	ServerURL string
	// Name is an optional display-name override for first runs.
	Name string
	// DBPath locates the local preference database.
	DBPath string
	// LogPath receives structured logs (the terminal itself is the UI).
	LogPath string
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("AUXROOM_DB_PATH"); env != "" {
		return env
	}
	if env := os.Getenv("AUXROOM_DATA_DIR"); env != "" {
		return filepath.Join(env, "auxroom.db")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "auxroom", "auxroom.db")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Auxroom", "auxroom.db")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Auxroom", "auxroom.db")
		}
		return filepath.Join(home, ".local", "share", "auxroom", "auxroom.db")
	}
	return filepath.Join(".", ".auxroom", "auxroom.db")
}

// WebSocketURL derives the ws(s)://host/ws endpoint from the server base.
func WebSocketURL(base string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = "/ws"
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}

// HTTPBaseURL derives the http(s)://host base for the side channel.
func HTTPBaseURL(base string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "http"
	case "https", "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}
