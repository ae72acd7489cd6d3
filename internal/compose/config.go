package compose

import (
	"encoding/json"
	"fmt"
	"strings"
)

// platformClassPrefix is the site-class convention member sites use to
// declare a target platform: member_sites carries no dedicated platform
// column, so "platform:<name>" doubles as both a SiteClasses entry and
// the Deploy-time platform filter source.
const platformClassPrefix = "platform:"

func decodeConfig(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" || raw == "{}" {
		return map[string]interface{}{}, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("compose: decoding config_json: %w", err)
	}
	return m, nil
}

// instanceSiteClasses reads the derivative's target site classes from the
// instance's config_json "siteClasses" key -- the convention this engine
// uses in place of a dedicated instance_blocks column.
func instanceSiteClasses(cfg map[string]interface{}) []string {
	raw, ok := cfg["siteClasses"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return splitClasses(v)
	default:
		return nil
	}
}

func splitClasses(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func classesIntersect(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, y := range b {
		if set[y] {
			return true
		}
	}
	return false
}

// sitePlatform extracts a member site's "platform:<name>" tagged class, if
// declared.
func sitePlatform(classes []string) (string, bool) {
	for _, c := range classes {
		if strings.HasPrefix(c, platformClassPrefix) {
			return strings.TrimPrefix(c, platformClassPrefix), true
		}
	}
	return "", false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// mergeConfig overlays each of layers in order onto a fresh map, later
// layers winning key conflicts -- the "defaults overlaid with instance
// config overlaid with metadata" rule of §4.10.
func mergeConfig(layers ...map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

func lastPathSegment(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
