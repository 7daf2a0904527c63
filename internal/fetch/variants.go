package fetch

import (
	"net/url"
	"path"
	"strings"
)

// AssetDir is the conventional directory backends move notebook
// attachments into during path normalization.
const AssetDir = ".assets/"

// pathVariants returns the ordered list of candidate paths to probe for a
// logical file path: the path as given, the asset-directory variant, and
// the bare filename. For paths containing spaces, percent-encoded forms
// of all three are appended, tried only after the straightforward
// attempts fail. The caller stops at the first variant that succeeds.
func pathVariants(p string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(v string) {
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	add(p)
	if !strings.HasPrefix(p, AssetDir) {
		add(AssetDir + p)
	}
	add(path.Base(p))

	if strings.Contains(p, " ") {
		for _, v := range append([]string(nil), out...) {
			add(escapePath(v))
		}
	}

	return out
}

// escapePath percent-encodes each path segment, keeping separators.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
