package crawler

import "strings"

// sanitizeBlobName flattens a URL into a safe object path segment.
func sanitizeBlobName(url string) string {
	replacer := strings.NewReplacer(
		"://", "_",
		"/", "_",
		"?", "_",
		"&", "_",
		"=", "_",
		"#", "_",
	)
	return replacer.Replace(url)
}
