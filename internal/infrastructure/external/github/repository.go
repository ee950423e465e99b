package github

import (
	"net/url"
	"strings"
)

// ParseRepository extracts owner and name from the forms a roster uses for
// GitHub repositories:
//
//	https://github.com/owner/repo(.git)
//	git@github.com:owner/repo(.git)
//	owner/repo
func ParseRepository(raw string) (owner, repo string, ok bool) {
	raw = strings.TrimSpace(raw)
	var path string

	switch {
	case strings.HasPrefix(raw, "git@github.com:"):
		path = strings.TrimPrefix(raw, "git@github.com:")
	case strings.Contains(raw, "://"):
		u, err := url.Parse(raw)
		if err != nil || !strings.EqualFold(u.Hostname(), "github.com") {
			return "", "", false
		}
		path = strings.TrimPrefix(u.Path, "/")
	case !strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "."):
		path = raw
	default:
		return "", "", false
	}

	parts := strings.Split(strings.TrimSuffix(strings.TrimSuffix(path, "/"), ".git"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
