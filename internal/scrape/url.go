package scrape

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL    = errors.New("empty url")
	ErrMissingHost = errors.New("url has no host")
	ErrScheme      = errors.New("url scheme must be http or https")
)

// tracking parameters dropped from website urls
var trackingParams = map[string]struct{}{
	"utm_source": {}, "utm_medium": {}, "utm_campaign": {}, "utm_term": {}, "utm_content": {},
	"gclid": {}, "fbclid": {}, "mc_cid": {}, "mc_eid": {},
}

// Canonicalize normalizes a business website url: https is assumed when no
// scheme is given, the host is lowercased and punycoded, default ports,
// credentials, fragments and tracking parameters are dropped, and the
// remaining query is sorted.
func Canonicalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrScheme, raw)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingHost, raw)
	}

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	port := u.Port()
	switch {
	case port == "", u.Scheme == "http" && port == "80", u.Scheme == "https" && port == "443":
		u.Host = host
	default:
		u.Host = net.JoinHostPort(host, port)
	}
	u.User = nil
	u.Fragment = ""

	u.Path = path.Clean("/" + u.Path)
	u.RawPath = ""

	q := u.Query()
	for k := range q {
		if _, ok := trackingParams[strings.ToLower(k)]; ok {
			q.Del(k)
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := url.Values{}
	for _, k := range keys {
		vs := q[k]
		sort.Strings(vs)
		for _, v := range vs {
			ordered.Add(k, v)
		}
	}
	u.RawQuery = ordered.Encode()
	return u.String(), nil
}
