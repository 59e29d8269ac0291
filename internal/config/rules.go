package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules drive request classification and cache-key normalization.
// They ship with working defaults and can be overridden from a YAML file.
type Rules struct {
	// APIPrefix marks requests that belong to the application API.
	APIPrefix string `yaml:"api_prefix"`
	// ListPaths are API path fragments treated as list/metadata
	// endpoints (stale-while-revalidate). Individual item paths,
	// e.g. /movies/<id>, are matched separately and excluded.
	ListPaths []string `yaml:"list_paths"`
	// ItemPattern matches single-item API paths.
	ItemPattern string `yaml:"item_pattern"`
	// CacheBustParams are query parameters removed when deriving
	// image cache keys.
	CacheBustParams []string `yaml:"cache_bust_params"`
	// BootstrapAssets are written into the static partition on install.
	BootstrapAssets []string `yaml:"bootstrap_assets"`
	// OfflinePath is the fallback document served to failed navigations.
	OfflinePath string `yaml:"offline_path"`
	// ImageHosts are extra hostnames always treated as image sources.
	ImageHosts []string `yaml:"image_hosts"`
}

// DefaultRules mirrors the assets and route split the application ships with.
func DefaultRules() Rules {
	return Rules{
		APIPrefix:   "/api",
		ListPaths:   []string{"/categories", "/stars", "/movies"},
		ItemPattern: `/movies/[^/]+$`,
		CacheBustParams: []string{
			"_t", "_cb", "v",
		},
		BootstrapAssets: []string{
			"/",
			"/index.html",
			"/offline.html",
			"/manifest.json",
			"/icon-192.png",
			"/icon-512.png",
		},
		OfflinePath: "/offline.html",
		ImageHosts:  []string{"static-eu-cdn.eporner.com"},
	}
}

// LoadRules reads rules from a YAML file, falling back to defaults for
// any field left unset. An empty path returns the defaults unchanged.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}

	var loaded Rules
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return Rules{}, fmt.Errorf("parse rules file: %w", err)
	}

	if loaded.APIPrefix != "" {
		rules.APIPrefix = loaded.APIPrefix
	}
	if len(loaded.ListPaths) > 0 {
		rules.ListPaths = loaded.ListPaths
	}
	if loaded.ItemPattern != "" {
		rules.ItemPattern = loaded.ItemPattern
	}
	if len(loaded.CacheBustParams) > 0 {
		rules.CacheBustParams = loaded.CacheBustParams
	}
	if len(loaded.BootstrapAssets) > 0 {
		rules.BootstrapAssets = loaded.BootstrapAssets
	}
	if loaded.OfflinePath != "" {
		rules.OfflinePath = loaded.OfflinePath
	}
	if len(loaded.ImageHosts) > 0 {
		rules.ImageHosts = loaded.ImageHosts
	}
	return rules, nil
}
