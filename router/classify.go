// Package router classifies intercepted requests and dispatches them to
// the fetch strategy and cache partition their class calls for.
package router

import (
	"net/http"
	"path"
	"regexp"
	"strings"

	"vidgate/internal/config"
)

// Class is the routing category of an intercepted request. Exactly one
// class applies; classification runs in priority order.
type Class int

const (
	// ClassPassthrough requests bypass the caching layer entirely.
	ClassPassthrough Class = iota
	ClassNavigation
	ClassAPIList
	ClassAPIItem
	ClassImage
	ClassFont
	ClassAsset
)

func (c Class) String() string {
	switch c {
	case ClassNavigation:
		return "navigation"
	case ClassAPIList:
		return "api-list"
	case ClassAPIItem:
		return "api-item"
	case ClassImage:
		return "image"
	case ClassFont:
		return "font"
	case ClassAsset:
		return "asset"
	default:
		return "passthrough"
	}
}

var (
	imageExts = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
		".webp": true, ".svg": true, ".ico": true,
	}
	fontExts = map[string]bool{
		".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	}
	assetExts = map[string]bool{
		".css": true, ".js": true,
	}
)

// Classifier applies the configured route rules.
type Classifier struct {
	apiPrefix  string
	listPaths  []string
	itemRe     *regexp.Regexp
	imageHosts map[string]bool
}

// NewClassifier compiles the rules into a classifier.
func NewClassifier(rules config.Rules) (*Classifier, error) {
	c := &Classifier{
		apiPrefix:  rules.APIPrefix,
		listPaths:  rules.ListPaths,
		imageHosts: make(map[string]bool, len(rules.ImageHosts)),
	}
	if rules.ItemPattern != "" {
		re, err := regexp.Compile(rules.ItemPattern)
		if err != nil {
			return nil, err
		}
		c.itemRe = re
	}
	for _, h := range rules.ImageHosts {
		c.imageHosts[strings.ToLower(h)] = true
	}
	return c, nil
}

// Classify assigns a request to exactly one class. Non-GET requests are
// always passthrough; mutations never go through the cache layer.
func (c *Classifier) Classify(r *http.Request) Class {
	if r.Method != http.MethodGet {
		return ClassPassthrough
	}

	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return ClassNavigation
	}

	p := r.URL.Path
	if strings.HasPrefix(p, c.apiPrefix) || strings.Contains(r.Header.Get("Accept"), "application/json") {
		if c.isListPath(p) {
			return ClassAPIList
		}
		return ClassAPIItem
	}

	ext := strings.ToLower(path.Ext(p))
	dest := r.Header.Get("Sec-Fetch-Dest")

	if dest == "image" || imageExts[ext] || c.imageHosts[strings.ToLower(requestHost(r))] {
		return ClassImage
	}
	if dest == "font" || fontExts[ext] {
		return ClassFont
	}
	if dest == "style" || dest == "script" || assetExts[ext] {
		if sameOrigin(r) {
			return ClassAsset
		}
	}
	return ClassPassthrough
}

// isListPath reports whether an API path is a list/metadata endpoint.
// Single-item paths are excluded even when they share a list prefix.
func (c *Classifier) isListPath(p string) bool {
	if c.itemRe != nil && c.itemRe.MatchString(p) {
		return false
	}
	for _, lp := range c.listPaths {
		if strings.Contains(p, lp) {
			return true
		}
	}
	return false
}

func requestHost(r *http.Request) string {
	if r.URL.Host != "" {
		return r.URL.Hostname()
	}
	return r.Host
}

func sameOrigin(r *http.Request) bool {
	return r.URL.Host == "" || r.URL.Host == r.Host
}
