// Package push normalizes incoming push payloads into displayable
// notifications. Payloads are best-effort JSON; anything missing or
// malformed falls back to fixed defaults rather than failing.
package push

import "encoding/json"

const (
	DefaultTitle = "New Content Available"
	DefaultBody  = "Check out the latest videos!"
	DefaultTag   = "vidgate-notification"
	DefaultURL   = "/"

	iconPath = "/icon-192.png"
)

// Notification is a fully defaulted, display-ready notification.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
	Image string `json:"image,omitempty"`
	Tag   string `json:"tag"`
	URL   string `json:"url"`
}

type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image"`
	Tag   string `json:"tag"`
	URL   string `json:"url"`
}

// Parse turns a raw push payload into a Notification. An empty or
// unparseable payload yields the all-defaults notification.
func Parse(raw []byte) Notification {
	var p payload
	if len(raw) > 0 {
		// Bad JSON is treated the same as no payload.
		_ = json.Unmarshal(raw, &p)
	}

	n := Notification{
		Title: p.Title,
		Body:  p.Body,
		Icon:  iconPath,
		Badge: iconPath,
		Image: p.Image,
		Tag:   p.Tag,
		URL:   p.URL,
	}
	if n.Title == "" {
		n.Title = DefaultTitle
	}
	if n.Body == "" {
		n.Body = DefaultBody
	}
	if n.Tag == "" {
		n.Tag = DefaultTag
	}
	if n.URL == "" {
		n.URL = DefaultURL
	}
	return n
}
