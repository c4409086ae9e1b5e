package snapshot

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// MaxURLLength bounds surfaced hrefs, ellipsis excluded.
	MaxURLLength = 200
	// DataURLPlaceholder replaces inline data: image sources.
	DataURLPlaceholder = "[data-url]"
)

var sensitiveParams = map[string]bool{
	"token":         true,
	"key":           true,
	"api_key":       true,
	"auth":          true,
	"password":      true,
	"secret":        true,
	"access_token":  true,
	"refresh_token": true,
	"session":       true,
	"session_id":    true,
	"sessionid":     true,
	"credential":    true,
	"credentials":   true,
}

// SanitizeURL strips sensitive query parameters from absolute URLs and
// truncates the result. Relative URLs are only truncated.
func SanitizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if u, ok := absoluteURL(raw); ok && u.RawQuery != "" {
		kept := make([]string, 0, 4)
		for _, pair := range strings.Split(u.RawQuery, "&") {
			if pair == "" {
				continue
			}
			key, _, _ := strings.Cut(pair, "=")
			if k, err := url.QueryUnescape(key); err == nil {
				key = k
			}
			if sensitiveParams[strings.ToLower(key)] {
				continue
			}
			kept = append(kept, pair)
		}
		u.RawQuery = strings.Join(kept, "&")
		u.ForceQuery = false
		raw = u.String()
	}
	return truncateURL(raw)
}

// ReduceImageSrc shrinks an image source: data URLs collapse to a
// placeholder, absolute URLs keep host and path only.
func ReduceImageSrc(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(src), "data:") {
		return DataURLPlaceholder
	}
	if u, ok := absoluteURL(src); ok {
		return u.Host + u.Path
	}
	return src
}

func absoluteURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}

func truncateURL(s string) string {
	if utf8.RuneCountInString(s) <= MaxURLLength {
		return s
	}
	return string([]rune(s)[:MaxURLLength]) + "..."
}
