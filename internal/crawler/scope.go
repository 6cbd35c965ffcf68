package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// RejectReason classifies why a discovered link fell outside the crawl
// scope. Rejection is an expected filtering outcome, not an error.
type RejectReason int

const (
	// RejectNone means the URL was accepted.
	RejectNone RejectReason = iota
	// RejectUnparseable means the href could not resolve to an absolute URL.
	RejectUnparseable
	// RejectForeignHost means the host differs from the target's host.
	RejectForeignHost
	// RejectAbovePath means the path escapes the target's base path.
	RejectAbovePath
	// RejectOutsidePrefix means a configured path prefix did not match.
	RejectOutsidePrefix
	// RejectExtension means the path ends with a non-document extension.
	RejectExtension
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "accepted"
	case RejectUnparseable:
		return "unparseable"
	case RejectForeignHost:
		return "foreign host"
	case RejectAbovePath:
		return "above base path"
	case RejectOutsidePrefix:
		return "outside path prefix"
	case RejectExtension:
		return "skipped extension"
	default:
		return "unknown"
	}
}

// skipExtensions lists path suffixes that never carry indexable documents.
var skipExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico",
	".css", ".js", ".xml", ".zip", ".tar", ".gz", ".mp4", ".avi",
}

// ScopePolicy decides whether a discovered link is eligible for crawling.
// It is a pure value: Resolve has no side effects and the same inputs
// always yield the same verdict.
type ScopePolicy struct {
	host       string
	basePath   string
	pathPrefix string
}

// NewScopePolicy builds a policy from the crawl target. pathPrefix is an
// optional extra restriction below the base path ("" disables it).
func NewScopePolicy(targetURL, pathPrefix string) (ScopePolicy, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return ScopePolicy{}, fmt.Errorf("parse target url: %w", err)
	}
	if parsed.Host == "" {
		return ScopePolicy{}, fmt.Errorf("target url %q has no host", targetURL)
	}
	return ScopePolicy{
		host:       parsed.Host,
		basePath:   strings.TrimRight(parsed.Path, "/"),
		pathPrefix: pathPrefix,
	}, nil
}

// Resolve turns a raw href found on baseURL into a canonical absolute URL,
// or rejects it. Accepted URLs keep their query string and case but lose
// any fragment. The crawl may only move downward or sideways from the
// entry path, never to a parent directory.
func (p ScopePolicy) Resolve(href, baseURL string) (string, RejectReason) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", RejectUnparseable
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", RejectUnparseable
	}
	abs := base.ResolveReference(ref)
	if abs.Host == "" || abs.Scheme == "" {
		return "", RejectUnparseable
	}
	if abs.Host != p.host {
		return "", RejectForeignHost
	}

	path := strings.TrimRight(abs.Path, "/")
	if p.basePath != "" && !strings.HasPrefix(path, p.basePath) {
		return "", RejectAbovePath
	}
	if p.pathPrefix != "" && !strings.HasPrefix(path, p.pathPrefix) {
		return "", RejectOutsidePrefix
	}

	canonical := abs.Scheme + "://" + abs.Host + abs.Path
	if abs.RawQuery != "" {
		canonical += "?" + abs.RawQuery
	}
	lower := strings.ToLower(canonical)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(lower, ext) {
			return "", RejectExtension
		}
	}
	return canonical, RejectNone
}
