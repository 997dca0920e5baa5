package transfer

import (
	"net/url"
	"path"
	"strings"
)

// LinkType is the transfer kind a submitted URL maps to.
type LinkType string

const (
	LinkDirect  LinkType = "direct"
	LinkTorrent LinkType = "torrent"
	LinkMagnet  LinkType = "magnet"
	LinkUnknown LinkType = "unknown"
)

// Classify maps a URL to a transfer kind. Magnet scheme wins, then a
// .torrent path suffix, then plain http/https; anything else is unknown and
// fails the job without a transfer attempt.
func Classify(rawURL string) LinkType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return LinkUnknown
	}

	scheme := strings.ToLower(u.Scheme)

	switch {
	case scheme == "magnet":
		return LinkMagnet
	case strings.HasSuffix(strings.ToLower(u.Path), ".torrent"):
		return LinkTorrent
	case scheme == "http" || scheme == "https":
		return LinkDirect
	default:
		return LinkUnknown
	}
}

// Result is what a strategy hands back for a completed transfer: local file
// paths plus an optional display name (a torrent's declared name). The
// orchestrator owns the files until the job's work dir is removed.
type Result struct {
	Files       []string
	DisplayName string
}

// FilenameFromURL derives a default filename from the URL path, the way the
// submission layer names direct downloads when no rename is given.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}

	return name
}
