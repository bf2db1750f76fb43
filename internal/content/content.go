// Package content turns a captured text selection or page URL into the
// message body every push channel sends.
package content

import (
	"strings"

	"anypush/internal/settings"
)

type Kind string

const (
	KindText Kind = "text"
	KindURL  Kind = "url"
)

// Source is the page the content was captured from.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Item is one captured piece of content.
type Item struct {
	Kind    Kind   `json:"type"`
	Content string `json:"content"`
	Source  Source `json:"source"`
}

// Formatted is the result of Format, shared by every channel of a dispatch.
type Formatted struct {
	Content string
	// PureContent is set when Content is the raw item content with no
	// template applied.
	PureContent bool
	// OriginalURL is the content itself for URL items, the source page otherwise.
	OriginalURL string
}

// Format applies the push settings to item. A nil ps behaves like
// {includeSource: true} with the built-in templates.
func Format(item Item, ps *settings.PushSettings) Formatted {
	out := Formatted{OriginalURL: item.Source.URL}
	if item.Kind == KindURL {
		out.OriginalURL = item.Content
	}

	if !ps.IncludesSource() {
		out.Content = item.Content
		out.PureContent = true
		return out
	}

	out.Content = Render(template(item.Kind, ps), item)
	return out
}

// Render substitutes the first {text}, then the first {url}, then the first
// {title} in tmpl. Further occurrences and unknown tokens are left as they are.
func Render(tmpl string, item Item) string {
	s := strings.Replace(tmpl, "{text}", item.Content, 1)
	s = strings.Replace(s, "{url}", item.Source.URL, 1)
	return strings.Replace(s, "{title}", item.Source.Title, 1)
}

func template(kind Kind, ps *settings.PushSettings) string {
	var t string
	if ps != nil {
		if kind == KindURL {
			t = ps.URLTemplate
		} else {
			t = ps.TextTemplate
		}
	}
	if t != "" {
		return t
	}
	if kind == KindURL {
		return settings.DefaultURLTemplate
	}
	return settings.DefaultTextTemplate
}
