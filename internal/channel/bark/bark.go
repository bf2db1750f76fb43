// Package bark delivers pushes through a Bark relay server using its
// GET /{deviceKey}/{body} form.
package bark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"anypush/internal/apperr"
	"anypush/internal/content"
	"anypush/internal/dispatch"
	"anypush/internal/settings"
)

const (
	serviceName  = "Bark"
	levelCrit    = "critical"
	maxResponse  = 64 << 10
	fieldBarkURL = "pushServices.bark.url"
)

// Endpoint is a Bark URL split into its server root and device key.
type Endpoint struct {
	Server string // scheme://host
	Key    string
}

// ParseEndpoint extracts the device key from a configured Bark URL of the form
// http(s)://host/<key> with an optional trailing slash.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, apperr.Configf(fieldBarkURL, "cannot extract device key: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, apperr.Configf(fieldBarkURL, "cannot extract device key: scheme must be http or https")
	}
	if u.Host == "" {
		return Endpoint{}, apperr.Configf(fieldBarkURL, "cannot extract device key: missing host")
	}
	key := strings.TrimSuffix(strings.TrimPrefix(u.Path, "/"), "/")
	if key == "" || strings.Contains(key, "/") {
		return Endpoint{}, apperr.Configf(fieldBarkURL, "cannot extract device key from %q", raw)
	}
	return Endpoint{Server: u.Scheme + "://" + u.Host, Key: key}, nil
}

// DeviceKey returns just the key part of a Bark URL.
func DeviceKey(raw string) (string, error) {
	ep, err := ParseEndpoint(raw)
	return ep.Key, err
}

type Channel struct {
	ep     Endpoint
	cfg    settings.BarkConfig
	client *http.Client
}

// Build is the dispatch.Builder for the "bark" service key.
func Build(raw json.RawMessage, client *http.Client) (dispatch.Channel, error) {
	var cfg settings.BarkConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, apperr.Configf("pushServices.bark", "decode: %v", err)
	}
	return New(cfg, client)
}

func New(cfg settings.BarkConfig, client *http.Client) (*Channel, error) {
	ep, err := ParseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Channel{ep: ep, cfg: cfg, client: client}, nil
}

// RequestURL is the GET URL that pushes f.
func (c *Channel) RequestURL(f content.Formatted) string {
	return c.ep.Server + "/" + c.ep.Key + "/" + url.PathEscape(f.Content) + "?" + c.query().Encode()
}

func (c *Channel) query() url.Values {
	q := url.Values{}
	level := c.cfg.Level
	if level == "" {
		level = settings.DefaultBarkLevel
	}
	group := c.cfg.Group
	if group == "" {
		group = settings.DefaultBarkGroup
	}
	q.Set("level", level)
	q.Set("group", group)
	if c.cfg.Archive() {
		q.Set("isArchive", "1")
	} else {
		q.Set("isArchive", "0")
	}
	if strings.TrimSpace(c.cfg.Badge) != "" {
		q.Set("badge", c.cfg.Badge)
	}
	if strings.TrimSpace(c.cfg.Sound) != "" {
		q.Set("sound", c.cfg.Sound)
	}
	if c.cfg.AutoCopy {
		q.Set("autoCopy", "1")
	}
	if c.cfg.Level == levelCrit && c.cfg.Volume != 0 {
		q.Set("volume", strconv.Itoa(c.cfg.Volume))
	}
	return q
}

type reply struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Channel) Send(ctx context.Context, f content.Formatted) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(f), nil)
	if err != nil {
		return apperr.Configf(fieldBarkURL, "%v", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", serviceName, err)
	}
	defer resp.Body.Close()

	var r reply
	decErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponse)).Decode(&r)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.DeliveryError{Service: serviceName, StatusCode: resp.StatusCode, Message: r.Message}
	}
	if decErr != nil {
		return &apperr.DeliveryError{Service: serviceName, StatusCode: resp.StatusCode, Message: "invalid response: " + decErr.Error()}
	}
	if r.Code != http.StatusOK {
		msg := r.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return &apperr.DeliveryError{Service: serviceName, StatusCode: resp.StatusCode, Code: r.Code, Message: msg}
	}
	return nil
}
