// Package urlparse decomposes an "http://" or "https://" URL into its
// scheme, user info, host, port, path, query and fragment, following the
// grammar sketched in original_source's HttpURLParser: scheme, authority
// (optional userinfo, host, optional port), path, optional query, optional
// fragment. Every field is a slice into the input string, except Scheme,
// which is lower-cased, and the "/" that an empty path defaults to.
package urlparse

import (
	"errors"
	"strconv"
	"strings"
)

// Errors returned by Parse. All are non-retryable: the input is malformed
// and re-parsing the same string will fail again.
var (
	ErrInvalidScheme    = errors.New("urlparse: invalid scheme")
	ErrInvalidStructure = errors.New("urlparse: missing \"://\"")
	ErrInvalidHost      = errors.New("urlparse: invalid host")
	ErrInvalidPort      = errors.New("urlparse: port out of range")
	ErrInvalidPath      = errors.New("urlparse: path must not contain spaces")
)

// URL is an immutable view decomposition of a parsed URL string. Every
// field except Scheme and a defaulted "/" path borrows a slice of the
// original input passed to Parse.
type URL struct {
	Scheme   string
	User     string
	Pass     string
	Host     string // hostname[:port], as it appeared in the input
	Hostname string // host without the port, brackets kept for IPv6
	Port     uint16
	Path     string // pathname + query, e.g. "/a?q=1"
	Pathname string
	Query    string
	Fragment string
}

var defaultPort = map[string]uint16{
	"http":  80,
	"https": 443,
}

// Parse decomposes input into a URL. See package doc for the grammar.
func Parse(input string) (URL, error) {
	var u URL

	schemeEnd := strings.IndexByte(input, ':')
	if schemeEnd < 0 {
		return URL{}, ErrInvalidStructure
	}
	scheme := input[:schemeEnd]
	lower := strings.ToLower(scheme)
	if lower != "http" && lower != "https" {
		return URL{}, ErrInvalidScheme
	}
	u.Scheme = lower
	u.Port = defaultPort[lower]

	rest := input[schemeEnd:]
	if !strings.HasPrefix(rest, "://") {
		return URL{}, ErrInvalidStructure
	}
	rest = rest[len("://"):]

	authorityEnd := strings.IndexByte(rest, '/')
	var authority string
	var pathAndRest string
	if authorityEnd < 0 {
		authority = rest
		pathAndRest = ""
	} else {
		authority = rest[:authorityEnd]
		pathAndRest = rest[authorityEnd:]
	}

	if err := u.parseAuthority(authority); err != nil {
		return URL{}, err
	}

	if pathAndRest == "" {
		u.Path = "/"
		u.Pathname = "/"
		return u, nil
	}

	path := pathAndRest
	if idx := strings.IndexByte(path, '#'); idx >= 0 {
		u.Fragment = path[idx+1:]
		path = path[:idx]
	}
	if strings.IndexByte(path, ' ') >= 0 {
		return URL{}, ErrInvalidPath
	}
	u.Path = path
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		u.Pathname = path[:idx]
		u.Query = path[idx+1:]
	} else {
		u.Pathname = path
	}
	if u.Pathname == "" {
		u.Pathname = "/"
		if u.Path == "" {
			u.Path = "/"
		}
	}
	return u, nil
}

func (u *URL) parseAuthority(authority string) error {
	hostport := authority
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		userinfo := authority[:at]
		hostport = authority[at+1:]
		if colon := strings.IndexByte(userinfo, ':'); colon >= 0 {
			u.User = userinfo[:colon]
			u.Pass = userinfo[colon+1:]
		} else {
			u.User = userinfo
		}
	}

	if hostport == "" {
		return ErrInvalidHost
	}

	u.Host = hostport
	if hostport[0] == '[' {
		end := strings.IndexByte(hostport, ']')
		if end < 0 {
			return ErrInvalidHost
		}
		u.Hostname = hostport[:end+1]
		remainder := hostport[end+1:]
		if remainder != "" {
			if remainder[0] != ':' {
				return ErrInvalidHost
			}
			port, err := parsePort(remainder[1:])
			if err != nil {
				return err
			}
			u.Port = port
		}
	} else if colon := strings.IndexByte(hostport, ':'); colon >= 0 {
		u.Hostname = hostport[:colon]
		port, err := parsePort(hostport[colon+1:])
		if err != nil {
			return err
		}
		u.Port = port
	} else {
		u.Hostname = hostport
	}

	return u.validateHostname()
}

func parsePort(s string) (uint16, error) {
	if s == "" {
		return 0, ErrInvalidPort
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > 65535 {
		return 0, ErrInvalidPort
	}
	return uint16(v), nil
}

// validateHostname requires the hostname to be either an IPv6 literal
// enclosed in [...], contain a '.', or equal "localhost".
func (u *URL) validateHostname() error {
	h := u.Hostname
	if h == "" {
		return ErrInvalidHost
	}
	if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		return nil
	}
	if strings.Contains(h, ".") {
		return nil
	}
	if strings.EqualFold(h, "localhost") {
		return nil
	}
	return ErrInvalidHost
}
