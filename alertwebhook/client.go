// Package alertwebhook delivers monitor.Alert events to an external HTTP
// endpoint as a monitor.AlertHandler, adapted from the teacher's Icinga
// Notifications source client (notifications/source: BasicAuthTransport,
// Config, Client.ProcessEvent) with the event payload and endpoint path
// generalized from a fixed Icinga Notifications event shape to a plain
// alert webhook body.
package alertwebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/kcenon/dbcore/monitor"
)

// Config holds the webhook endpoint and optional basic-auth credentials.
type Config struct {
	// BaseURL is the webhook receiver, e.g. "https://alerts.example.com".
	BaseURL string `yaml:"base_url" env:"BASE_URL"`

	// Username/Password enable HTTP basic authentication if Username is set.
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD,unset"`
}

// basicAuthTransport adds basic authentication and a User-Agent header to
// every request, mirroring the teacher's BasicAuthTransport.
type basicAuthTransport struct {
	http.RoundTripper
	username, password string
}

func (b *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if b.username != "" {
		req.SetBasicAuth(b.username, b.password)
	}
	req.Header.Set("User-Agent", "dbcore-alertwebhook")
	return b.RoundTripper.RoundTrip(req)
}

// Client posts alert payloads to a webhook endpoint.
type Client struct {
	endpoint string
	http     http.Client
}

// NewClient parses cfg.BaseURL and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse webhook base URL")
	}

	return &Client{
		endpoint: base.ResolveReference(&url.URL{Path: "/alerts"}).String(),
		http: http.Client{
			Transport: &basicAuthTransport{
				RoundTripper: http.DefaultTransport,
				username:     cfg.Username,
				password:     cfg.Password,
			},
		},
	}, nil
}

// payload is the JSON body posted for each alert.
type payload struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Post sends a single alert to the configured endpoint.
func (c *Client) Post(ctx context.Context, alert monitor.Alert) error {
	body, err := json.Marshal(payload{
		Kind:      string(alert.Kind),
		Message:   alert.Message,
		Timestamp: alert.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return errors.Wrap(err, "cannot encode alert to JSON")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "cannot create HTTP request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "cannot POST alert")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		return errors.Errorf("unexpected response from alert webhook: %s", resp.Status)
	}

	return nil
}
