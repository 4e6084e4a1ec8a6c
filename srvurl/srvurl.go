// Package srvurl implements SLP service URL parsing and the reserved
// character escaping rules of RFC 2608 section 5.
package srvurl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse is returned for any malformed URL, escape sequence or
// illegal tag character.
var ErrParse = errors.New("srvurl: parse error")

// ServiceURL is the decomposed form of a service URL
// "service:type://host:port/service-part". Immutable once parsed.
type ServiceURL struct {
	ServiceType string
	Host        string
	Port        int
	NetFamily   string
	Remainder   string
}

func (u *ServiceURL) String() string {
	s := u.ServiceType + "://" + u.Host
	if u.Port != 0 {
		s += ":" + strconv.Itoa(u.Port)
	}
	return s + u.Remainder
}

// Parse splits a service URL into its components. The service type is
// everything before "://", including any "service:" prefix. NetFamily
// is empty for IP, the only family this implementation speaks.
func Parse(url string) (*ServiceURL, error) {
	srvtype, rest, ok := strings.Cut(url, "://")
	if !ok || srvtype == "" {
		return nil, fmt.Errorf("%w: missing \"://\" separator in %q", ErrParse, url)
	}
	if !validServiceType(srvtype) {
		return nil, fmt.Errorf("%w: bad service type %q", ErrParse, srvtype)
	}
	authority := rest
	remainder := ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority, remainder = rest[:i], rest[i:]
	}
	host := authority
	port := 0
	if i := strings.LastIndexByte(authority, ':'); i >= 0 {
		p, err := strconv.Atoi(authority[i+1:])
		if err != nil || p < 0 || p > 65535 {
			return nil, fmt.Errorf("%w: bad port in %q", ErrParse, url)
		}
		host, port = authority[:i], p
	}
	return &ServiceURL{
		ServiceType: srvtype,
		Host:        host,
		Port:        port,
		Remainder:   remainder,
	}, nil
}

func validServiceType(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '+' || c == '-' || c == '.' || c == ':':
		default:
			return false
		}
	}
	return true
}

// reserved reports whether c must be escaped in SLP strings.
func reserved(c byte) bool {
	switch c {
	case '(', ')', ',', '\\', '!', '<', '=', '>', '~', ';', '*', '+':
		return true
	}
	return c < 0x20 || c == 0x7f
}

// badTag reports whether c may not appear in an attribute tag at all,
// escaped or not.
func badTag(c byte) bool {
	switch c {
	case '*', '_', '\n', '\r', '\t':
		return true
	}
	return false
}

// Escape replaces reserved characters with backslash-hex sequences,
// e.g. "," becomes `\2C`. With isTag set, characters that are illegal
// in attribute tags fail with ErrParse instead of being escaped.
func Escape(s string, isTag bool) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isTag && badTag(c) {
			return "", fmt.Errorf("%w: character %q illegal in tag", ErrParse, c)
		}
		if reserved(c) {
			fmt.Fprintf(&b, "\\%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

// Unescape decodes backslash-hex sequences produced by Escape.
// Truncated or non-hex sequences fail with ErrParse, as do decoded
// characters that are illegal in tags when isTag is set.
func Unescape(s string, isTag bool) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			if isTag && badTag(c) {
				return "", fmt.Errorf("%w: character %q illegal in tag", ErrParse, c)
			}
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("%w: truncated escape at offset %d", ErrParse, i)
		}
		hi, ok1 := unhex(s[i+1])
		lo, ok2 := unhex(s[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("%w: bad escape %q", ErrParse, s[i:i+3])
		}
		c = hi<<4 | lo
		if isTag && badTag(c) {
			return "", fmt.Errorf("%w: character %q illegal in tag", ErrParse, c)
		}
		b.WriteByte(c)
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
