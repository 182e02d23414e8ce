package scanner

import (
	"path"
	"strings"
)

// LocalURL is the file_url stored for a file at rel under the uploads root.
func LocalURL(prefix, rel string) string {
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(path.Clean("/"+rel), "/")
}

// RelFromURL maps a stored local file_url back to a path relative to the
// uploads root. Paths with or without the leading slash are accepted, and
// ok is false for absolute http(s) URLs or paths escaping the root.
func RelFromURL(prefix, fileURL string) (string, bool) {
	if fileURL == "" || IsRemoteURL(fileURL) {
		return "", false
	}
	p := strings.Trim(strings.TrimRight(prefix, "/"), "/")
	u := strings.TrimLeft(fileURL, "/")
	if p != "" {
		if u == p {
			return "", false
		}
		u = strings.TrimPrefix(u, p+"/")
	}
	if strings.HasPrefix(path.Clean(u), "..") {
		return "", false
	}
	cleaned := strings.TrimLeft(path.Clean("/"+u), "/")
	if cleaned == "" {
		return "", false
	}
	return cleaned, true
}

// IsRemoteURL reports whether u is an absolute http(s) URL.
func IsRemoteURL(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
