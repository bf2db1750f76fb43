package settings

import (
	"strings"

	"anypush/internal/apperr"
)

// Normalize fills blank templates and the blank Bark group, level and volume
// with their defaults and trims user-entered endpoints.
func (b Bundle) Normalize() Bundle {
	if blank(b.PushSettings.TextTemplate) {
		b.PushSettings.TextTemplate = DefaultTextTemplate
	}
	if blank(b.PushSettings.URLTemplate) {
		b.PushSettings.URLTemplate = DefaultURLTemplate
	}
	if b.PushSettings.IncludeSource == nil {
		b.PushSettings.IncludeSource = BoolPtr(true)
	}
	if b.PushSettings.SourceFormat == "" {
		b.PushSettings.SourceFormat = SourceFull
	}

	if w := b.PushServices.Wechat; w != nil {
		c := *w
		c.Webhook = strings.TrimSpace(c.Webhook)
		b.PushServices.Wechat = &c
	}
	if bk := b.PushServices.Bark; bk != nil {
		c := *bk
		c.URL = strings.TrimSpace(c.URL)
		if blank(c.Group) {
			c.Group = DefaultBarkGroup
		}
		if blank(c.Level) {
			c.Level = DefaultBarkLevel
		}
		if c.Volume == 0 {
			c.Volume = DefaultBarkVolume
		}
		b.PushServices.Bark = &c
	}

	if b.SyncConfig.Type == "" {
		b.SyncConfig.Type = SyncNone
	}
	if d := b.SyncConfig.WebDAV; d != nil {
		c := *d
		c.URL = strings.TrimSpace(c.URL)
		c.Username = strings.TrimSpace(c.Username)
		b.SyncConfig.WebDAV = &c
	}
	return b
}

// Validate reports the first problem that would make the bundle unusable.
func (b Bundle) Validate() error {
	if w := b.PushServices.Wechat; w != nil && w.Enabled && blank(w.Webhook) {
		return apperr.Configf("pushServices.wechat.webhook", "enter the WeCom webhook URL")
	}
	if bk := b.PushServices.Bark; bk != nil && bk.Enabled && blank(bk.URL) {
		return apperr.Configf("pushServices.bark.url", "enter the Bark push URL")
	}

	switch b.SyncConfig.Type {
	case SyncNone, SyncAccount:
	case SyncWebDAV:
		return b.SyncConfig.WebDAV.Validate()
	default:
		return apperr.Configf("syncConfig.type", "unknown sync type %q", b.SyncConfig.Type)
	}
	return nil
}

// Validate checks that the WebDAV settings are complete. A nil config is
// incomplete.
func (d *WebDAVConfig) Validate() error {
	if d == nil || blank(d.URL) || blank(d.Username) || blank(d.Password) {
		return apperr.Configf("syncConfig.webdav", "enter the complete WebDAV settings")
	}
	return nil
}
