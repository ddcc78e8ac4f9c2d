// ABOUTME: Client for the CelesteNet game server's HTTP API
// ABOUTME: Fetches server status and the player list authenticated by a player key cookie

package netapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// KeyCookie is the cookie the game server reads the player key from.
const KeyCookie = "celestenet-key"

// DefaultTimeout bounds each request when none is configured.
const DefaultTimeout = 3 * time.Second

// Status is the server summary shown on the web page.
type Status struct {
	PlayerRefs    int     `json:"PlayerRefs"`
	PlayerCounter int     `json:"PlayerCounter"`
	StartupTime   string  `json:"StartupTime"`
	Banned        int     `json:"Banned"`
	Registered    int     `json:"Registered"`
	TickRate      float64 `json:"TickRate"`
}

type rawStatus struct {
	PlayerRefs    int     `json:"PlayerRefs"`
	PlayerCounter int     `json:"PlayerCounter"`
	StartupTime   int64   `json:"StartupTime"`
	Banned        int     `json:"Banned"`
	Registered    int     `json:"Registered"`
	TickRate      float64 `json:"TickRate"`
}

// Player is one entry of the game server's player list. Fields beyond
// these are ignored.
type Player struct {
	ID          uint32 `json:"ID"`
	Name        string `json:"Name"`
	FullName    string `json:"FullName"`
	DisplayName string `json:"DisplayName"`
	Avatar      string `json:"Avatar,omitempty"`
}

// Client talks to one game server.
type Client struct {
	baseURL string
	http    *http.Client
	zone    *time.Location
	logger  *slog.Logger
}

// New creates a client for apiAddr, given as host:port/path without scheme.
// Startup times are formatted in zone.
func New(apiAddr string, timeout time.Duration, zone *time.Location, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if zone == nil {
		zone = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := strings.TrimRight(apiAddr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		zone:    zone,
		logger:  logger.With("component", "netapi"),
	}
}

func (c *Client) get(ctx context.Context, path string, key string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if key != "" {
		req.AddCookie(&http.Cookie{Name: KeyCookie, Value: key})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("game server request failed", "path", path, "error", err)
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("game server returned error", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("requesting %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Status fetches /status. StartupTime arrives in unix milliseconds.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var raw rawStatus
	if err := c.get(ctx, "/status", "", &raw); err != nil {
		return nil, err
	}
	return &Status{
		PlayerRefs:    raw.PlayerRefs,
		PlayerCounter: raw.PlayerCounter,
		StartupTime:   time.UnixMilli(raw.StartupTime).In(c.zone).Format("2006-01-02 15:04:05"),
		Banned:        raw.Banned,
		Registered:    raw.Registered,
		TickRate:      raw.TickRate,
	}, nil
}

// Players fetches /players as seen by the holder of key.
func (c *Client) Players(ctx context.Context, key string) ([]Player, error) {
	var players []Player
	if err := c.get(ctx, "/players", key, &players); err != nil {
		return nil, err
	}
	return players, nil
}
