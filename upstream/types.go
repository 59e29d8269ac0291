// Package upstream is the client for the third-party video search API.
// It normalizes the API's duck-typed response shapes into one canonical
// Video record at the boundary; nothing past this package sees the raw
// wire shape.
package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Thumb is one thumbnail variant.
type Thumb struct {
	Src    string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   string `json:"size"`
}

// Video is the canonical internal video record.
type Video struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Thumbnail    string   `json:"thumbnail"`
	Thumbs       []Thumb  `json:"thumbs,omitempty"`
	Duration     int      `json:"duration"`
	DurationText string   `json:"duration_text"`
	Views        int64    `json:"views"`
	Rating       float64  `json:"rating"`
	URL          string   `json:"url"`
	EmbedURL     string   `json:"embed_url"`
	Added        string   `json:"added"`
	Categories   []string `json:"categories,omitempty"`
	Keywords     string   `json:"keywords,omitempty"`
}

// Page is one page of search results with pagination metadata.
type Page struct {
	Videos     []Video `json:"videos"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	TotalCount int     `json:"total_count"`
	TotalPages int     `json:"total_pages"`
}

// wireID tolerates the API serializing ids as JSON strings or bare
// numbers; both appear in the wild.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*id = wireID(n.String())
	return nil
}

// rawVideo is the wire shape of one video.
type rawVideo struct {
	ID           wireID  `json:"id"`
	Title        string  `json:"title"`
	Keywords     string  `json:"keywords"`
	Views        int64   `json:"views"`
	Rate         string  `json:"rate"`
	URL          string  `json:"url"`
	Added        string  `json:"added"`
	LengthSec    int     `json:"length_sec"`
	LengthMin    string  `json:"length_min"`
	Embed        string  `json:"embed"`
	DefaultThumb *Thumb  `json:"default_thumb"`
	Thumbs       []Thumb `json:"thumbs"`
}

const maxCategories = 5

// normalizeVideo maps a wire video onto the canonical record.
func normalizeVideo(raw rawVideo) Video {
	var categories []string
	for _, k := range strings.Split(raw.Keywords, ",") {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		categories = append(categories, k)
		if len(categories) == maxCategories {
			break
		}
	}

	thumbnail := ""
	if raw.DefaultThumb != nil {
		thumbnail = raw.DefaultThumb.Src
	} else if len(raw.Thumbs) > 0 {
		thumbnail = raw.Thumbs[0].Src
	}

	rating, _ := strconv.ParseFloat(raw.Rate, 64)

	durationText := raw.LengthMin
	if durationText == "" {
		durationText = "0:00"
	}

	return Video{
		ID:           string(raw.ID),
		Title:        raw.Title,
		Description:  raw.Keywords,
		Thumbnail:    thumbnail,
		Thumbs:       raw.Thumbs,
		Duration:     raw.LengthSec,
		DurationText: durationText,
		Views:        raw.Views,
		Rating:       rating,
		URL:          raw.URL,
		EmbedURL:     raw.Embed,
		Added:        raw.Added,
		Categories:   categories,
		Keywords:     raw.Keywords,
	}
}
