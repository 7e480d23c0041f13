// Package api is the read-only HTTP side channel: catalog browsing,
// lyrics, playlist paging, and the auth/admin endpoints. Failures here
// are enhancements failing, not core errors; callers default and move on.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"auxroom/internal/proto"
)

var httpTimeout = 10 * time.Second

// ErrUnauthorized marks a 401 reply.
var ErrUnauthorized = errors.New("api: unauthorized")

// Playlist is a platform playlist summary.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CoverURL   string `json:"coverUrl"`
	TrackCount int    `json:"trackCount"`
}

// PlatformUser is a platform account hit from user search.
type PlatformUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// RoomStatus reports whether the room is initialized and password-gated.
type RoomStatus struct {
	Initialized bool `json:"initialized"`
	HasPassword bool `json:"hasPassword"`
}

// Client calls the room server's HTTP endpoints.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger
}

// NewClient creates a Client for the given http(s) base URL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: httpTimeout},
		log:     log.With().Str("component", "api").Logger(),
	}
}

// Search finds tracks on a platform by keyword.
func (c *Client) Search(ctx context.Context, platform, keyword string) ([]proto.Music, error) {
	var out []proto.Music
	path := "/api/search/" + url.PathEscape(platform) + "/" + url.PathEscape(keyword)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Lyric fetches lyric text for a track. The endpoint replies with either
// a JSON string or plain text; both decode to the raw lyric.
func (c *Client) Lyric(ctx context.Context, platform, songID string) (string, error) {
	path := "/api/music/lyric/" + url.PathEscape(platform) + "/" + url.PathEscape(songID)
	body, err := c.doRaw(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	var text string
	if json.Unmarshal(body, &text) == nil {
		return text, nil
	}
	return string(body), nil
}

// UserPlaylists lists the playlists of a platform account.
func (c *Client) UserPlaylists(ctx context.Context, platform, userID string) ([]Playlist, error) {
	var out []Playlist
	path := "/api/user/playlists/" + url.PathEscape(platform) + "/" + url.PathEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PlaylistSongs pages through a playlist's tracks.
func (c *Client) PlaylistSongs(ctx context.Context, platform, playlistID string, offset, limit int) ([]proto.Music, error) {
	var out []proto.Music
	path := "/api/playlist/songs/" + url.PathEscape(platform) + "/" + url.PathEscape(playlistID) +
		"?offset=" + strconv.Itoa(offset) + "&limit=" + strconv.Itoa(limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchUser finds platform accounts by keyword.
func (c *Client) SearchUser(ctx context.Context, platform, keyword string) ([]PlatformUser, error) {
	var out []PlatformUser
	path := "/api/user/search/" + url.PathEscape(platform) + "/" + url.PathEscape(keyword)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AuthStatus checks whether the room is initialized and password-gated.
func (c *Client) AuthStatus(ctx context.Context) (*RoomStatus, error) {
	var out RoomStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthVerify checks a room password. A rejected password is reported as
// ok=false, not an error.
func (c *Client) AuthVerify(ctx context.Context, password string) (bool, error) {
	payload := map[string]string{"password": password}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/verify", payload, nil)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// AuthSetup initializes the room password.
func (c *Client) AuthSetup(ctx context.Context, password string) error {
	payload := map[string]string{"password": password}
	return c.doJSON(ctx, http.MethodPost, "/api/auth/setup", payload, nil)
}

// AdminCommand submits one free-text admin command with the admin
// password and returns the server's reply text. This is the unified
// command channel; the older split reset/set-password commands are gone.
func (c *Client) AdminCommand(ctx context.Context, password, command string) (string, error) {
	payload := map[string]string{"password": password, "command": command}
	body, err := c.doRaw(ctx, http.MethodPost, "/api/admin/command", payload)
	if err != nil {
		return "", err
	}
	var parsed map[string]string
	if json.Unmarshal(body, &parsed) == nil {
		if msg, ok := parsed["result"]; ok {
			return msg, nil
		}
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	body, err := c.doRaw(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api: server returned %d: %s", resp.StatusCode, readErrorEnvelope(data))
	}
	return data, nil
}

// readErrorEnvelope extracts the conventional {"error": msg} body, falling
// back to the raw text.
func readErrorEnvelope(data []byte) string {
	if len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}
