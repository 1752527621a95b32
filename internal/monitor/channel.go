package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnknownChannel is returned for a channel type with no implementation.
var ErrUnknownChannel = errors.New("monitor: unknown channel type")

const defaultWebhookTimeout = 10 * time.Second

// Alert is one fired alarm delivered to the host's channels.
type Alert struct {
	Host       string         `json:"host"`
	Check      string         `json:"check"`
	CheckType  string         `json:"check_type"`
	Alarm      string         `json:"alarm"`
	Expression string         `json:"expression"`
	Metrics    map[string]any `json:"metrics"`
	FiredAt    time.Time      `json:"fired_at"`
}

// Channel delivers alerts.
type Channel interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// channelDeps are the shared resources channels are built with.
type channelDeps struct {
	stdout io.Writer
	client *http.Client
	clock  clock.Clock
}

func newChannel(kind string, opts map[string]string, deps channelDeps) (Channel, error) {
	switch kind {
	case "stdout":
		return &stdoutChannel{w: deps.stdout}, nil
	case "webhook":
		return newWebhookChannel(opts, deps)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownChannel, kind)
	}
}

// stdoutChannel writes one line per alert.
type stdoutChannel struct {
	w io.Writer
}

func (c *stdoutChannel) Name() string { return "stdout" }

func (c *stdoutChannel) Notify(_ context.Context, a Alert) error {
	keys := make([]string, 0, len(a.Metrics))
	for k := range a.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, a.Metrics[k]))
	}
	_, err := fmt.Fprintf(c.w, "[%s] ALERT %s/%s %s: %s (%s)\n",
		a.FiredAt.UTC().Format(time.RFC3339), a.Host, a.Check, a.Alarm, a.Expression, strings.Join(pairs, " "))
	return err
}

// webhookChannel POSTs alerts as JSON. With a secret configured each
// request carries an HS256 bearer token.
type webhookChannel struct {
	url     string
	secret  []byte
	timeout time.Duration
	client  *http.Client
	clock   clock.Clock
}

// WebhookClaims are the JWT claims sent with a signed webhook.
type WebhookClaims struct {
	Host  string `json:"host"`
	Alarm string `json:"alarm"`
	jwt.RegisteredClaims
}

func newWebhookChannel(opts map[string]string, deps channelDeps) (*webhookChannel, error) {
	if opts["url"] == "" {
		return nil, errors.New("webhook channel requires config.url")
	}
	c := &webhookChannel{
		url:     opts["url"],
		secret:  []byte(opts["secret"]),
		timeout: defaultWebhookTimeout,
		client:  deps.client,
		clock:   deps.clock,
	}
	if t := opts["timeout"]; t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("webhook timeout %q: %w", t, err)
		}
		c.timeout = d
	}
	return c, nil
}

func (c *webhookChannel) Name() string { return "webhook" }

func (c *webhookChannel) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("webhook: encode alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if len(c.secret) > 0 {
		token, err := c.sign(a)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: unexpected status %s", c.url, resp.Status)
	}
	return nil
}

func (c *webhookChannel) sign(a Alert) (string, error) {
	now := c.clock.Now()
	claims := WebhookClaims{
		Host:  a.Host,
		Alarm: a.Alarm,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
			Issuer:    "sshmon",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("webhook: sign: %w", err)
	}
	return token, nil
}
