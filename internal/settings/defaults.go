package settings

const (
	DefaultTextTemplate = "{text}\n\nSource: {title}\nLink: {url}"
	DefaultURLTemplate  = "{url}\n\nPage: {title}"
	DefaultBarkLevel    = "active"
	DefaultBarkGroup    = "AnyPush"
	DefaultBarkVolume   = 5
)

func DefaultPushServices() PushServices {
	return PushServices{
		Wechat: &WechatConfig{Name: "WeCom", Enabled: false, Webhook: ""},
		Bark: &BarkConfig{
			Name:      "Bark",
			Enabled:   false,
			URL:       "",
			Level:     DefaultBarkLevel,
			Group:     DefaultBarkGroup,
			IsArchive: BoolPtr(true),
			Volume:    DefaultBarkVolume,
		},
	}
}

func DefaultPushSettings() PushSettings {
	return PushSettings{
		IncludeSource: BoolPtr(true),
		SourceFormat:  SourceFull,
		TextTemplate:  DefaultTextTemplate,
		URLTemplate:   DefaultURLTemplate,
	}
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{Type: SyncNone, WebDAV: nil}
}

// defaultPushServicesDoc is the defaults as a generic document for MergeDefaults.
// Every field is spelled out (omitempty would drop false/empty defaults).
func defaultPushServicesDoc() map[string]any {
	d := DefaultPushServices()
	return map[string]any{
		ServiceWechat: map[string]any{
			"name":    d.Wechat.Name,
			"enabled": d.Wechat.Enabled,
			"webhook": d.Wechat.Webhook,
		},
		ServiceBark: map[string]any{
			"name":      d.Bark.Name,
			"enabled":   d.Bark.Enabled,
			"url":       d.Bark.URL,
			"level":     d.Bark.Level,
			"badge":     "",
			"sound":     "",
			"group":     d.Bark.Group,
			"autoCopy":  false,
			"isArchive": true,
			"volume":    float64(d.Bark.Volume),
		},
	}
}

func defaultPushSettingsDoc() map[string]any {
	d := DefaultPushSettings()
	return map[string]any{
		"includeSource": true,
		"sourceFormat":  string(d.SourceFormat),
		"textTemplate":  d.TextTemplate,
		"urlTemplate":   d.URLTemplate,
	}
}
