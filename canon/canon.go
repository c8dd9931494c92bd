// Package canon canonicalizes competitor URLs into the stable dedupe key
// used by the Competitor Tracker Store. Pure and deterministic: no I/O.
package canon

import (
	"errors"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidURL is returned when the scheme isn't http(s) or the host is empty.
var ErrInvalidURL = errors.New("canon: invalid url")

// trackingPrefixes and trackingParams are dropped from the query string.
var trackingPrefixes = []string{"utm_", "mc_"}
var trackingParams = map[string]struct{}{
	"gclid": {},
	"fbclid": {},
	"ref":   {},
}

// Canonicalize collapses equivalent product URLs to one stable form:
//  1. lowercase scheme/host, strip default port
//  2. drop fragment
//  3. re-encode query names and values consistently
//  4. sort query params by name, drop tracking params
//  5. drop trailing slash unless path is exactly "/"
//
// Percent-encoding in the path is kept as written whenever it is a valid
// encoding, so "/p/%7E1" and "/p/~1" do not collapse to one form.
func Canonicalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidURL
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", ErrInvalidURL
	}

	u.Scheme = scheme
	u.Fragment = ""

	port := u.Port()
	if isDefaultPort(scheme, port) {
		u.Host = host
	} else if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	// EscapedPath returns the path's original encoding when it is valid
	// and only escapes it afresh otherwise; the query is rebuilt from
	// decoded values by canonicalQuery.
	path := u.EscapedPath()
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	query := canonicalQuery(u.Query())

	built := u.Scheme + "://" + u.Host + path
	if query != "" {
		built += "?" + query
	}
	return built, nil
}

func isDefaultPort(scheme, port string) bool {
	return port == "" || (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func isTrackingParam(name string) bool {
	lname := strings.ToLower(name)
	if _, ok := trackingParams[lname]; ok {
		return true
	}
	for _, p := range trackingPrefixes {
		if strings.HasPrefix(lname, p) {
			return true
		}
	}
	return false
}

func canonicalQuery(values url.Values) string {
	names := make([]string, 0, len(values))
	for name := range values {
		if isTrackingParam(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		vals := append([]string{}, values[name]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}
