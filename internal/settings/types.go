package settings

import "strings"

// Top-level keys of the settings mapping.
const (
	KeyPushServices = "pushServices"
	KeyPushSettings = "pushSettings"
	KeySyncConfig   = "syncConfig"
)

// Service keys under pushServices.
const (
	ServiceWechat = "wechat"
	ServiceBark   = "bark"
)

// ServiceHeader is the part every entry of pushServices shares.
type ServiceHeader struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// WechatConfig configures a WeCom group-robot webhook.
type WechatConfig struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Webhook string `json:"webhook"`
}

// BarkConfig configures the Bark push relay. URL is "<server>/<deviceKey>/".
type BarkConfig struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`

	Level    string `json:"level,omitempty"` // active | timeSensitive | passive | critical
	Badge    string `json:"badge,omitempty"`
	Sound    string `json:"sound,omitempty"`
	Group    string `json:"group,omitempty"`
	AutoCopy bool   `json:"autoCopy,omitempty"`
	// IsArchive is a pointer so an absent value keeps the "archive" default.
	IsArchive *bool `json:"isArchive,omitempty"`
	// Volume is only sent for critical alerts.
	Volume int `json:"volume,omitempty"`
}

// Archive reports the effective isArchive flag (true unless explicitly false).
func (c BarkConfig) Archive() bool {
	return c.IsArchive == nil || *c.IsArchive
}

// PushServices is the typed view of the pushServices aggregate.
type PushServices struct {
	Wechat *WechatConfig `json:"wechat,omitempty"`
	Bark   *BarkConfig   `json:"bark,omitempty"`
}

// SourceFormat is stored with the push settings. Formatting is driven by the
// templates alone; the value is kept for round-tripping.
type SourceFormat string

const (
	SourceFull  SourceFormat = "full"
	SourceTitle SourceFormat = "title"
	SourceURL   SourceFormat = "url"
	SourceNone  SourceFormat = "none"
)

// PushSettings holds the formatting flags and templates.
type PushSettings struct {
	// IncludeSource is a pointer: absent means true.
	IncludeSource *bool        `json:"includeSource,omitempty"`
	SourceFormat  SourceFormat `json:"sourceFormat,omitempty"`
	TextTemplate  string       `json:"textTemplate,omitempty"`
	URLTemplate   string       `json:"urlTemplate,omitempty"`
}

// IncludesSource reports the effective includeSource flag. A nil receiver
// behaves like {includeSource: true}.
func (p *PushSettings) IncludesSource() bool {
	return p == nil || p.IncludeSource == nil || *p.IncludeSource
}

// SyncType selects where settings are mirrored.
type SyncType string

const (
	SyncNone SyncType = "none"
	// SyncAccount is the browser-account native sync; the settings backend
	// itself is shared, so nothing is uploaded.
	SyncAccount SyncType = "google"
	SyncWebDAV  SyncType = "webdav"
)

type WebDAVConfig struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	// Password may be a literal or a "keyring:<name>" reference.
	Password string `json:"password"`
}

type SyncConfig struct {
	Type   SyncType      `json:"type"`
	WebDAV *WebDAVConfig `json:"webdav"`
}

// Bundle is the three aggregates together, as saved from a settings form.
type Bundle struct {
	PushServices PushServices `json:"pushServices"`
	PushSettings PushSettings `json:"pushSettings"`
	SyncConfig   SyncConfig   `json:"syncConfig"`
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// BoolPtr is a small helper for the pointer-typed flags.
func BoolPtr(v bool) *bool { return &v }
