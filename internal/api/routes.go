package api

import "strings"

// routeKey reduces a request to its rate-limit route: the HTTP method plus
// the path with snowflake IDs collapsed to a placeholder, so every request
// against the same endpoint shape shares one budget.
func routeKey(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if isSnowflake(seg) {
			segments[i] = ":id"
		}
	}
	return method + " " + strings.Join(segments, "/")
}

// isSnowflake reports whether a path segment looks like a Discord ID.
func isSnowflake(s string) bool {
	if len(s) < 15 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
