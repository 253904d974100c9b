// Package notifications pushes pool alerts to an ntfy topic.
package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/internal/env"
)

type Severity int

const (
	Info Severity = iota
	Warning
	Critical
)

// ntfy priorities run from 1 (min) to 5 (urgent).
func (s Severity) priority() string {
	switch s {
	case Critical:
		return "5"
	case Warning:
		return "4"
	}
	return "3"
}

func (s Severity) tags() string {
	switch s {
	case Critical:
		return "rotating_light,swimmer"
	case Warning:
		return "warning,swimmer"
	}
	return "white_check_mark,swimmer"
}

// SeverityFor classifies an alert by its title.
func SeverityFor(title string) Severity {
	switch {
	case strings.HasSuffix(title, "Failure"):
		return Critical
	case strings.HasSuffix(title, "Recovery"):
		return Info
	}
	return Warning
}

// Client posts alerts to one ntfy topic. Repeats of the same title inside the
// cooldown are dropped.
type Client struct {
	http     *http.Client
	url      string
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

func New(server, topic string, cooldown time.Duration) *Client {
	return &Client{
		http:     &http.Client{Timeout: 10 * time.Second},
		url:      strings.TrimRight(server, "/") + "/" + topic,
		cooldown: cooldown,
		lastSent: map[string]time.Time{},
		now:      time.Now,
	}
}

// Notify publishes message with ntfy's header API.
func (c *Client) Notify(ctx context.Context, sev Severity, title, message string) error {
	if c.suppressed(title) {
		log.Debug().Str("title", title).Msg("Pool alert suppressed during cooldown")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", sev.priority())
	req.Header.Set("Tags", sev.tags())

	resp, err := c.http.Do(req)
	if err != nil {
		c.forget(title)
		return fmt.Errorf("post pool alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.forget(title)
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().Str("title", title).Str("priority", sev.priority()).Msg("Pool alert sent")
	return nil
}

// Send is Notify with a severity derived from the title.
func (c *Client) Send(title, message string) error {
	return c.Notify(context.Background(), SeverityFor(title), title, message)
}

// suppressed claims the title's slot, reporting false when it may be sent.
func (c *Client) suppressed(title string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if last, ok := c.lastSent[title]; ok && c.cooldown > 0 && now.Sub(last) < c.cooldown {
		return true
	}
	c.lastSent[title] = now
	return false
}

func (c *Client) forget(title string) {
	c.mu.Lock()
	delete(c.lastSent, title)
	c.mu.Unlock()
}

var std *Client

// Init sets up the process-wide client from env.Cfg.
func Init() {
	if env.Cfg.NtfyTopic == "" {
		log.Warn().Msg("Ntfy topic not configured, pool alerts disabled")
		return
	}
	cooldown := time.Duration(env.Cfg.NtfyCooldownMinutes) * time.Minute
	std = New(env.Cfg.NtfyServer, env.Cfg.NtfyTopic, cooldown)
	log.Info().Str("server", env.Cfg.NtfyServer).Str("topic", env.Cfg.NtfyTopic).Dur("cooldown", cooldown).Msg("Pool alerts enabled")
}

func Send(title, message string) error {
	if std == nil {
		return fmt.Errorf("notifications not initialized")
	}
	return std.Send(title, message)
}
