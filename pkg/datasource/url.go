package datasource

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kasuganosora/sqlscope/pkg/api"
)

// URL is a parsed connection URL.
//
// The scheme may carry a driver suffix ("sqlite+aiosqlite",
// "postgresql+asyncpg"); Backend holds the part before '+', Driver the part
// after it. Driver is informational only.
type URL struct {
	*url.URL
	Backend string
	Driver  string
}

// ParseURL parses raw into a URL, failing with a configuration error when
// raw is empty, unparsable or has no scheme.
func ParseURL(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, api.NewConfigurationError("database url is empty", nil)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, api.NewConfigurationError("malformed database url", err)
	}
	if u.Scheme == "" {
		return nil, api.NewConfigurationError(fmt.Sprintf("database url %q has no scheme", raw), nil)
	}
	if u.Opaque != "" {
		return nil, api.NewConfigurationError(fmt.Sprintf("database url %q must be of the form scheme://...", u.Redacted()), nil)
	}

	backend, driver, _ := strings.Cut(strings.ToLower(u.Scheme), "+")
	return &URL{URL: u, Backend: backend, Driver: driver}, nil
}

// FilePath resolves the location of a file-based backend:
// "scheme:///rel.db" -> "rel.db", "scheme:////abs/x.db" -> "/abs/x.db",
// "scheme://", "scheme:///:memory:" -> ":memory:". A host part is an error.
func (u *URL) FilePath() (string, error) {
	if u.Host != "" {
		return "", api.NewConfigurationError(
			fmt.Sprintf("%s url must not have a host, use %s:///path", u.Backend, u.Backend), nil)
	}
	p := strings.TrimPrefix(u.Path, "/")
	if p == "" || p == ":memory:" {
		return ":memory:", nil
	}
	return p, nil
}
