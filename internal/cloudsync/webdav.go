// Package cloudsync mirrors the push settings to a remote location.
//
// Only WebDAV does any work; "none" and the account-native type are no-ops
// because the settings backend itself is what account sync would share.
package cloudsync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"anypush/internal/apperr"
	"anypush/internal/settings"
	logx "anypush/pkg/logx"
)

// FileName is the remote document name under the WebDAV folder.
const FileName = "anypush-config.json"

const maxDownload = 4 << 20

// Resolver turns a configured secret (literal or reference) into its value.
type Resolver interface {
	Resolve(v string) (string, error)
}

type Syncer struct {
	client *http.Client
	creds  Resolver
	log    logx.Logger
}

// New returns a Syncer. creds may be nil, in which case passwords are used
// literally.
func New(client *http.Client, creds Resolver, log logx.Logger) *Syncer {
	if client == nil {
		client = http.DefaultClient
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Syncer{client: client, creds: creds, log: log.With(logx.String("comp", "cloudsync"))}
}

// TargetURL is the document URL for a WebDAV folder URL.
func TargetURL(folder string) string {
	folder = strings.TrimSpace(folder)
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	return folder + FileName
}

// Upload stores payload remotely according to cfg. It reports whether
// anything was sent.
func (s *Syncer) Upload(ctx context.Context, cfg settings.SyncConfig, payload []byte) (bool, error) {
	switch cfg.Type {
	case settings.SyncNone, "", settings.SyncAccount:
		return false, nil
	case settings.SyncWebDAV:
	default:
		return false, apperr.Configf("syncConfig.type", "unknown sync type %q", cfg.Type)
	}

	req, err := s.request(ctx, http.MethodPut, cfg.WebDAV, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("webdav upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDownload))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &apperr.DeliveryError{Service: "WebDAV", StatusCode: resp.StatusCode}
	}
	s.log.Info("settings uploaded", logx.String("url", req.URL.Redacted()), logx.Int("bytes", len(payload)))
	return true, nil
}

// Download fetches the remote document. Only WebDAV supports it.
func (s *Syncer) Download(ctx context.Context, cfg settings.SyncConfig) ([]byte, error) {
	if cfg.Type != settings.SyncWebDAV {
		return nil, apperr.Configf("syncConfig.type", "download needs webdav sync, have %q", cfg.Type)
	}
	req, err := s.request(ctx, http.MethodGet, cfg.WebDAV, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webdav download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDownload))
		return nil, &apperr.DeliveryError{Service: "WebDAV", StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return nil, fmt.Errorf("webdav download: %w", err)
	}
	s.log.Info("settings downloaded", logx.String("url", req.URL.Redacted()), logx.Int("bytes", len(b)))
	return b, nil
}

func (s *Syncer) request(ctx context.Context, method string, dav *settings.WebDAVConfig, body io.Reader) (*http.Request, error) {
	if err := dav.Validate(); err != nil {
		return nil, err
	}
	password := dav.Password
	if s.creds != nil {
		p, err := s.creds.Resolve(password)
		if err != nil {
			return nil, apperr.Configf("syncConfig.webdav.password", "%v", err)
		}
		password = p
	}
	req, err := http.NewRequestWithContext(ctx, method, TargetURL(dav.URL), body)
	if err != nil {
		return nil, apperr.Configf("syncConfig.webdav.url", "%v", err)
	}
	req.SetBasicAuth(dav.Username, password)
	return req, nil
}
